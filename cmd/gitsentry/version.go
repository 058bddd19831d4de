// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gitsentry version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gitsentry", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
