// Copyright 2024 Dirstate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dirstate/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a repository",
	Long: `Initialize a repository in the specified directory (or current directory).

Creates the metadata directory with default settings and ignore files.
Existing files are left untouched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absDir, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	metaPath := filepath.Join(absDir, viper.GetString("meta-dir"))
	_, statErr := os.Stat(metaPath)
	if err := config.Init(metaPath); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if statErr == nil {
		fmt.Fprintf(out, "Reinitialized existing repository in %s\n", metaPath)
	} else {
		fmt.Fprintf(out, "Initialized empty repository in %s\n", metaPath)
	}
	return nil
}
