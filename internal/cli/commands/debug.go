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
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dirstate/internal/dirstate"
	"dirstate/internal/storage"
)

var debugStateCmd = &cobra.Command{
	Use:   "debugstate",
	Short: "Show the contents of the state file",
	Args:  cobra.NoArgs,
	RunE:  runDebugState,
}

var debugWalkCmd = &cobra.Command{
	Use:   "debugwalk [pattern...]",
	Short: "Show the files a walk visits",
	RunE:  runDebugWalk,
}

var debugNormalizeCmd = &cobra.Command{
	Use:   "debugnormalize path...",
	Short: "Show paths spelled the way the working copy knows them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDebugNormalize,
}

var debugIgnoreCmd = &cobra.Command{
	Use:   "debugignore path...",
	Short: "Show which ignore rule matches each path",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDebugIgnore,
}

func init() {
	debugStateCmd.Flags().BoolP("human", "H", false, "human readable sizes and times")
	debugWalkCmd.Flags().BoolP("ignored", "i", false, "include ignored files")
	debugWalkCmd.Flags().Bool("no-unknown", false, "list tracked files only")
	rootCmd.AddCommand(debugStateCmd, debugWalkCmd, debugNormalizeCmd, debugIgnoreCmd)
}

func runDebugState(cmd *cobra.Command, args []string) error {
	r, err := openRepo(false)
	if err != nil {
		return err
	}
	defer r.Close()

	sm, err := r.ds.Map()
	if err != nil {
		return err
	}
	human, _ := cmd.Flags().GetBool("human")
	out := cmd.OutOrStdout()

	parents := sm.Parents()
	fmt.Fprintf(out, "parents: %s %s\n", parents[0].Short(), parents[1].Short())
	fmt.Fprintf(out, "format: %s, %d entries\n", r.settings.Format, sm.Len())
	if id, err := r.ds.Identity(); err == nil && id != "" {
		fmt.Fprintf(out, "identity: %s\n", id)
	}
	if r.settings.TrackedHint != nil && *r.settings.TrackedHint {
		if hint, err := r.ds.TrackedHint(); err == nil {
			fmt.Fprintf(out, "tracked-hint: %s\n", hint)
		}
	}
	for p, it := range sm.All() {
		printItem(out, p, it, human)
	}
	for dest, src := range sortedByKey(sm.Copies()) {
		fmt.Fprintf(out, "copy: %s -> %s\n", src, dest)
	}
	return nil
}

func printItem(w io.Writer, path string, it dirstate.Item, human bool) {
	size := fmt.Sprintf("%d", it.V1Size())
	if human && it.HasModeAndSize() {
		size = humanize.IBytes(uint64(it.Size()))
	}
	mtime := "unset"
	if ts, ok := it.Mtime(); ok {
		t := time.Unix(ts.Sec, int64(ts.Nsec))
		if human {
			mtime = humanize.Time(t)
		} else {
			mtime = t.Format("2006-01-02 15:04:05")
		}
	}
	fmt.Fprintf(w, "%c %4o %10s %-19s %s\n", it.V1State(), storage.Permissions(it.Mode()), size, mtime, path)
}

func runDebugWalk(cmd *cobra.Command, args []string) error {
	r, err := openRepo(false)
	if err != nil {
		return err
	}
	defer r.Close()

	m, err := r.matcher(cmd, args)
	if err != nil {
		return err
	}
	ignored, _ := cmd.Flags().GetBool("ignored")
	noUnknown, _ := cmd.Flags().GetBool("no-unknown")
	files, err := r.ds.Walk(m, nil, !noUnknown, ignored, true)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for p, st := range sortedByKey(files) {
		switch {
		case st == nil:
			fmt.Fprintf(out, "missing  %s\n", p)
		case st.IsSymlink():
			fmt.Fprintf(out, "link     %s\n", p)
		default:
			fmt.Fprintf(out, "f %6s %s\n", humanize.IBytes(uint64(st.Size)), p)
		}
	}
	return nil
}

func runDebugNormalize(cmd *cobra.Command, args []string) error {
	r, err := openRepo(false)
	if err != nil {
		return err
	}
	defer r.Close()

	paths, err := r.rels(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range paths {
		n, err := r.ds.Normalize(p, false, true)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s -> %s\n", p, n)
	}
	return nil
}

func runDebugIgnore(cmd *cobra.Command, args []string) error {
	r, err := openRepo(false)
	if err != nil {
		return err
	}
	defer r.Close()

	paths, err := r.rels(args)
	if err != nil {
		return err
	}
	cwd, err := r.ds.Getcwd()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range paths {
		shown := r.ds.PathTo(p, cwd)
		rule, ok, err := r.ds.IgnoreRule(p)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(out, "%s is not ignored\n", shown)
			continue
		}
		fmt.Fprintf(out, "%s is ignored\n", shown)
		if rule.Path != p {
			fmt.Fprintf(out, "(%s is ignored because of containing directory %s)\n", shown, r.ds.PathTo(rule.Path, cwd))
		}
		if rule.Source == "" {
			fmt.Fprintf(out, "(excluded by '%s')\n", rule.Line)
			continue
		}
		fmt.Fprintf(out, "(ignore rule in %s, line %d: '%s')\n", rule.Source, rule.LineNo, rule.Line)
	}
	return nil
}
