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
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"dirstate/internal/match"
)

var addCmd = &cobra.Command{
	Use:   "add [file...]",
	Short: "Start tracking files",
	Long: `Mark files to be added to the next revision.

Directories are searched for unknown files; ignored files are only added
when named explicitly. Without arguments every unknown file is added.`,
	RunE: runAdd,
}

var forgetCmd = &cobra.Command{
	Use:   "forget file...",
	Short: "Stop tracking files without deleting them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runForget,
}

var copyCmd = &cobra.Command{
	Use:   "copy source dest",
	Short: "Record that dest is a copy of source",
	Long: `Record that the tracked file dest is a copy of source. The file itself is not
copied. An empty source forgets the copy record of dest.`,
	Args: cobra.ExactArgs(2),
	RunE: runCopy,
}

func init() {
	rootCmd.AddCommand(addCmd, forgetCmd, copyCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	r, err := openRepo(true)
	if err != nil {
		return err
	}
	defer r.Close()

	m, err := r.matcher(cmd, args)
	if err != nil {
		return err
	}
	explicit, err := r.rels(args)
	if err != nil {
		return err
	}
	named := lo.SliceToMap(explicit, func(p string) (string, bool) { return p, true })

	files, err := r.ds.Walk(m, nil, true, false, true)
	if err != nil {
		return err
	}
	paths := lo.Keys(files)
	sort.Strings(paths)
	out := cmd.OutOrStdout()
	for _, p := range paths {
		if files[p] == nil {
			continue
		}
		if it, ok, err := r.ds.Get(p); err != nil {
			return err
		} else if ok && it.Tracked() {
			continue
		}
		added, err := r.ds.SetTracked(p, false)
		if err != nil {
			return err
		}
		if added && !named[p] {
			fmt.Fprintf(out, "adding %s\n", p)
		}
	}
	return r.ds.Write(nil)
}

func runForget(cmd *cobra.Command, args []string) error {
	r, err := openRepo(true)
	if err != nil {
		return err
	}
	defer r.Close()

	paths, err := r.rels(args)
	if err != nil {
		return err
	}
	sm, err := r.ds.Map()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range paths {
		if it, ok := sm.Get(p); ok && it.Tracked() {
			if _, err := r.ds.SetUntracked(p); err != nil {
				return err
			}
			continue
		}
		if !sm.HasTrackedDir(p) {
			fmt.Fprintf(cmd.ErrOrStderr(), "not removing %s: file is not tracked\n", p)
			continue
		}
		under, err := match.Include("path:" + p)
		if err != nil {
			return err
		}
		files, err := r.ds.Matches(under)
		if err != nil {
			return err
		}
		for _, f := range files {
			if it, _ := sm.Get(f); f != p && it.Tracked() {
				if _, err := r.ds.SetUntracked(f); err != nil {
					return err
				}
				fmt.Fprintf(out, "removing %s\n", f)
			}
		}
	}
	return r.ds.Write(nil)
}

func runCopy(cmd *cobra.Command, args []string) error {
	r, err := openRepo(true)
	if err != nil {
		return err
	}
	defer r.Close()

	dest, err := r.rel(args[1])
	if err != nil {
		return err
	}
	source := ""
	if args[0] != "" {
		if source, err = r.rel(args[0]); err != nil {
			return err
		}
	}
	if err := r.ds.Copy(source, dest); err != nil {
		return err
	}
	return r.ds.Write(nil)
}
