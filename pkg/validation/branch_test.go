// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBranch_Valid(t *testing.T) {
	for _, name := range []string{
		"main",
		"develop",
		"feature/retry-backoff",
		"qa/r5-s1",
		"release-2.4",
		"user/jane.doe/wip",
		"hotfix_2025",
	} {
		assert.NoError(t, ValidateBranch(name), name)
	}
}

func TestValidateBranch_Invalid(t *testing.T) {
	for _, name := range []string{
		"",
		"HEAD",
		"-rm",
		"--force",
		".hidden",
		"/leading",
		"trailing/",
		"trailing.",
		"refs/heads/main.lock",
		"a..b",
		"a//b",
		"a@{1}",
		"has space",
		"has\ttab",
		"has\nnewline",
		"tilde~1",
		"caret^2",
		"colon:ref",
		"glob*",
		"question?",
		"bracket[",
		"back\\slash",
		strings.Repeat("x", 251),
	} {
		assert.Error(t, ValidateBranch(name), name)
	}
}
