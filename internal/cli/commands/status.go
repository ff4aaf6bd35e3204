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
	"io"

	"github.com/spf13/cobra"

	"dirstate/internal/dirstate"
)

var statusCmd = &cobra.Command{
	Use:     "status [pattern...]",
	Aliases: []string{"st"},
	Short:   "Show changed files in the working directory",
	Long: `Show how the working directory differs from its parent revisions.

Codes:
  M modified   A added     R removed   ! deleted
  ? unknown    I ignored   C clean     L needs a content check

Patterns are files or directories relative to the current directory, or
repository-relative "path:dir" and "glob:expr" patterns.`,
	RunE: runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.BoolP("all", "A", false, "show status of all files")
	f.BoolP("clean", "c", false, "show clean files")
	f.BoolP("ignored", "i", false, "show ignored files")
	f.BoolP("unknown", "u", true, "show unknown files")
	f.Bool("no-lookup", false, "do not list files that need a content check")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	r, err := openRepo(false)
	if err != nil {
		return err
	}
	defer r.Close()

	m, err := r.matcher(cmd, args)
	if err != nil {
		return err
	}
	all, _ := cmd.Flags().GetBool("all")
	clean, _ := cmd.Flags().GetBool("clean")
	ignored, _ := cmd.Flags().GetBool("ignored")
	unknown, _ := cmd.Flags().GetBool("unknown")
	noLookup, _ := cmd.Flags().GetBool("no-lookup")

	res, err := r.ds.Status(m, dirstate.StatusOptions{
		ListClean:   clean || all,
		ListIgnored: ignored || all,
		ListUnknown: unknown || all,
	})
	if err != nil {
		return err
	}
	if noLookup {
		res.Lookup = nil
	}
	printStatus(cmd.OutOrStdout(), res)
	return nil
}

func printStatus(w io.Writer, res *dirstate.StatusResult) {
	st := res.Status
	groups := []struct {
		code  byte
		paths []string
	}{
		{'M', st.Modified},
		{'A', st.Added},
		{'R', st.Removed},
		{'!', st.Deleted},
		{'L', res.Lookup},
		{'?', st.Unknown},
		{'I', st.Ignored},
		{'C', st.Clean},
	}
	for _, g := range groups {
		for _, p := range g.paths {
			fmt.Fprintf(w, "%c %s\n", g.code, p)
		}
	}
}
