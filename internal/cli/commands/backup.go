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
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Save, restore or clear named backups of the state",
	Long: `Named backups are hard links of the state file (and its data file for the v2
format) inside the metadata directory. Restoring a backup replaces the
current state; a missing backup leaves the state untouched.`,
}

func init() {
	for _, sub := range []struct {
		use, short string
		run        func(r *repo, name string) error
		done       string
	}{
		{"save name", "Save the current state as a backup", func(r *repo, name string) error { return r.ds.SaveBackup(nil, name) }, "saved"},
		{"restore name", "Replace the state with a backup", func(r *repo, name string) error { return r.ds.RestoreBackup(nil, name) }, "restored"},
		{"clear name", "Delete a backup", func(r *repo, name string) error { return r.ds.ClearBackup(nil, name) }, "cleared"},
	} {
		backupCmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := openRepo(true)
				if err != nil {
					return err
				}
				defer r.Close()
				if err := sub.run(r, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s backup %s\n", sub.done, args[0])
				return nil
			},
		})
	}
	rootCmd.AddCommand(backupCmd)
}
