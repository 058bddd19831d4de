// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for values that end up
// in subprocess calls. Branch names flow from notifications into git
// invocations; validating them first prevents argument injection and
// malformed refs.
package validation

import (
	"fmt"
	"strings"
)

// detachedHead is the reserved non-branch value git prints for a
// detached checkout. It is never a valid merge-request source.
const detachedHead = "HEAD"

// maxBranchLength bounds branch names well past anything git hosting
// services accept.
const maxBranchLength = 250

// ValidateBranch checks that name is usable as a git branch argument.
//
// The rules follow git-check-ref-format for the one-level ref case:
// no leading dash or dot, no "..", no "@{", no control or space
// characters, no trailing ".lock" or "/", and the detached-HEAD
// sentinel is rejected outright.
//
// Example:
//
//	if err := validation.ValidateBranch(branch); err != nil {
//	    return fmt.Errorf("invalid branch: %w", err)
//	}
//	// Safe to pass to git
func ValidateBranch(name string) error {
	if name == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if name == detachedHead {
		return fmt.Errorf("%q is a detached checkout, not a branch", name)
	}
	if len(name) > maxBranchLength {
		return fmt.Errorf("branch name exceeds %d characters", maxBranchLength)
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("branch name %q must not start with a dash", name)
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "/") {
		return fmt.Errorf("branch name %q must not start with %q", name, name[:1])
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("branch name %q must not end with %q", name, name[len(name)-1:])
	}
	if strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("branch name %q must not end with .lock", name)
	}
	if strings.Contains(name, "..") || strings.Contains(name, "//") || strings.Contains(name, "@{") {
		return fmt.Errorf("branch name %q contains a forbidden sequence", name)
	}
	for _, r := range name {
		if r <= 0x20 || r == 0x7f {
			return fmt.Errorf("branch name %q contains control or space characters", name)
		}
		switch r {
		case '~', '^', ':', '?', '*', '[', '\\':
			return fmt.Errorf("branch name %q contains forbidden character %q", name, r)
		}
	}
	return nil
}
