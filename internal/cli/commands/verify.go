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

	"github.com/spf13/cobra"

	"dirstate/internal/dirstate"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the state against the parents' file lists",
	Long: `Cross-check every record against the file lists of the first and second
parent, one repository-relative path per line.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().String("p1", "-", "file listing the first parent's paths (- for stdin)")
	verifyCmd.Flags().String("p2", "", "file listing the second parent's paths")
	rootCmd.AddCommand(verifyCmd)
}

func loadManifest(cmd *cobra.Command, flag string) (*dirstate.ManifestSet, error) {
	name, _ := cmd.Flags().GetString(flag)
	if name == "" {
		return dirstate.NewManifest(), nil
	}
	paths, err := readPathList(cmd.InOrStdin(), name)
	if err != nil {
		return nil, err
	}
	return dirstate.NewManifest(paths...), nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	m1, err := loadManifest(cmd, "p1")
	if err != nil {
		return err
	}
	m2, err := loadManifest(cmd, "p2")
	if err != nil {
		return err
	}

	r, err := openRepo(false)
	if err != nil {
		return err
	}
	defer r.Close()

	seq, err := r.ds.Verify(m1, m2)
	if err != nil {
		return err
	}
	n := 0
	out := cmd.OutOrStdout()
	for bad := range seq {
		fmt.Fprintln(out, bad)
		n++
	}
	if n > 0 {
		return fmt.Errorf("%d inconsistencies found", n)
	}
	return nil
}
