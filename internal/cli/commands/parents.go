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
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"dirstate/internal/dirstate"
	"dirstate/internal/storage"
)

var setParentsCmd = &cobra.Command{
	Use:   "setparents p1 [p2]",
	Short: "Set the parent revisions of the working directory",
	Long: `Set the parent revisions of the working directory without touching files.

Revisions are 40 hex digits. Leaving out p2 ends a merge; copy records of
files that only existed through the second parent are kept.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSetParents,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild p1",
	Short: "Rebuild the state from a revision's file list",
	Long: `Reset the state to the files of revision p1, read one path per line from
--manifest. Every listed file becomes tracked and possibly dirty. With
--changed only the listed files are reset.`,
	Args: cobra.ExactArgs(1),
	RunE: runRebuild,
}

var branchCmd = &cobra.Command{
	Use:   "branch [name]",
	Short: "Show or set the working directory branch",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBranch,
}

func init() {
	rebuildCmd.Flags().String("manifest", "-", "file listing the revision's paths (- for stdin)")
	rebuildCmd.Flags().String("changed", "", "file listing the paths to reset")
	rootCmd.AddCommand(setParentsCmd, rebuildCmd, branchCmd)
}

func runSetParents(cmd *cobra.Command, args []string) error {
	p1, err := storage.ParseNodeID(args[0])
	if err != nil {
		return err
	}
	p2 := dirstate.NullID
	if len(args) > 1 {
		if p2, err = storage.ParseNodeID(args[1]); err != nil {
			return err
		}
	}

	r, err := openRepo(true)
	if err != nil {
		return err
	}
	defer r.Close()

	var copies map[string]string
	err = r.ds.ChangingParents(func() error {
		copies, err = r.ds.SetParents(p1, p2)
		return err
	})
	if err != nil {
		return err
	}
	dests := lo.Keys(copies)
	sort.Strings(dests)
	for _, dest := range dests {
		if it, ok, err := r.ds.Get(dest); err != nil {
			return err
		} else if !ok || !it.Tracked() {
			continue
		}
		if err := r.ds.Copy(copies[dest], dest); err != nil {
			return err
		}
	}
	return r.ds.Write(nil)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	p1, err := storage.ParseNodeID(args[0])
	if err != nil {
		return err
	}
	manifestPath, _ := cmd.Flags().GetString("manifest")
	all, err := readPathList(cmd.InOrStdin(), manifestPath)
	if err != nil {
		return err
	}
	var changed []string
	if changedPath, _ := cmd.Flags().GetString("changed"); changedPath != "" {
		if changed, err = readPathList(cmd.InOrStdin(), changedPath); err != nil {
			return err
		}
		if changed == nil {
			changed = []string{}
		}
	}

	r, err := openRepo(true)
	if err != nil {
		return err
	}
	defer r.Close()

	err = r.ds.ChangingParents(func() error {
		return r.ds.Rebuild(p1, all, changed)
	})
	if err != nil {
		return err
	}
	return r.ds.Write(nil)
}

func runBranch(cmd *cobra.Command, args []string) error {
	r, err := openRepo(len(args) > 0)
	if err != nil {
		return err
	}
	defer r.Close()

	if len(args) == 0 {
		name, err := r.ds.Branch()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
		return nil
	}
	return r.ds.ChangingParents(func() error {
		return r.ds.SetBranch(args[0], nil)
	})
}

// readPathList reads one repository-relative path per line from name,
// or from stdin when name is "-". Blank lines are skipped.
func readPathList(stdin io.Reader, name string) ([]string, error) {
	in := stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}
	var paths []string
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			paths = append(paths, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return paths, nil
}
