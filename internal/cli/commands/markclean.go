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

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"dirstate/internal/common"
	"dirstate/internal/dirstate"
	"dirstate/internal/match"
)

var markCleanCmd = &cobra.Command{
	Use:   "markclean file...",
	Short: "Record files whose content was verified unchanged",
	Long: `Record files from the content-check list of 'status' as clean, after the
caller compared them with the parent revision. A file modified within the
current second stays on the list.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMarkClean,
}

func init() {
	rootCmd.AddCommand(markCleanCmd)
}

func runMarkClean(cmd *cobra.Command, args []string) error {
	r, err := openRepo(true)
	if err != nil {
		return err
	}
	defer r.Close()

	paths, err := r.rels(args)
	if err != nil {
		return err
	}
	res, err := r.ds.Status(match.Exact(paths...), dirstate.StatusOptions{})
	if err != nil {
		return err
	}
	lookup := lo.SliceToMap(res.Lookup, func(p string) (string, bool) { return p, true })
	errOut := cmd.ErrOrStderr()
	for _, p := range paths {
		if !lookup[p] {
			fmt.Fprintf(errOut, "skipping %s: no content check needed\n", p)
			continue
		}
		st, err := dirstate.Lstat(common.JoinRoot(r.root, p))
		if err != nil {
			return err
		}
		if err := r.ds.MarkClean(p, st, res.Boundary); err != nil {
			return err
		}
	}
	return r.ds.Write(nil)
}
