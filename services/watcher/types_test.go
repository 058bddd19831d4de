// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommitRecordOnBranch(t *testing.T) {
	assert.True(t, CommitRecord{Branch: "main"}.OnBranch())
	assert.False(t, CommitRecord{Branch: DetachedHead}.OnBranch())
	assert.False(t, CommitRecord{}.OnBranch())
}
