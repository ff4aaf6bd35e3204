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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dirstate/internal/common"
	"dirstate/internal/config"
	"dirstate/internal/dirstate"
	"dirstate/internal/ignore"
	"dirstate/internal/match"
	"dirstate/internal/storage"
)

// LockFileName is the repository write lock inside the metadata directory.
const LockFileName = "wlock"

// repo is an opened working directory for one command run.
type repo struct {
	root     string
	metaPath string
	settings *config.Settings
	ds       *dirstate.Dirstate
	lock     *flock.Flock
}

// openRepo locates the repository, loads its settings and configures
// logging. With write set the repository lock is held until Close.
func openRepo(write bool) (*repo, error) {
	metaDir := viper.GetString("meta-dir")
	root := viper.GetString("repository")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if root, err = common.FindRoot(cwd, metaDir); err != nil {
			return nil, fmt.Errorf("%w (run 'dirstate init' first)", err)
		}
	} else {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path: %w", err)
		}
		root = abs
	}
	metaPath := filepath.Join(root, metaDir)
	if fi, err := os.Stat(metaPath); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a repository: %w", root, common.ErrNotFound)
	}

	settings, err := config.Load(metaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	level := viper.GetString("log-level")
	if level == "" {
		level = settings.LogLevel()
	}
	configureLogging(level, metaPath, viper.GetBool("log-stderr"))

	r := &repo{root: root, metaPath: metaPath, settings: settings}
	if write {
		r.lock = flock.New(filepath.Join(metaPath, LockFileName))
		locked, err := r.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("repository %s is locked by another process", root)
		}
	}

	opts := settings.Options(metaDir)
	opts.LoadIgnore = func() (ignore.Evaluator, error) {
		return ignore.New(root, ignore.Config{
			Gitignore: *settings.Gitignore,
			Files:     []string{filepath.Join(metaPath, config.IgnoreFileName)},
			Excludes:  settings.Excludes,
			MetaDir:   metaDir,
		})
	}
	ds, err := dirstate.Open(root, opts)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.ds = ds
	ds.AddParentChangeCallback("log", func(_ *dirstate.Dirstate, old, cur [2]dirstate.NodeID) {
		log.Infof("[openRepo] parents %s %s -> %s %s", old[0].Short(), old[1].Short(), cur[0].Short(), cur[1].Short())
	})
	if write && !*settings.TrackedHint {
		if _, err := os.Stat(filepath.Join(metaPath, storage.TrackedHintFileName)); err == nil {
			// tracked-hint was switched off since the last write
			if err := ds.DeleteTrackedHint(); err != nil {
				r.Close()
				return nil, err
			}
		}
	}
	log.Debugf("[openRepo] root=%s write=%v format=%s", root, write, settings.Format)
	return r, nil
}

// Close releases the write lock, if held.
func (r *repo) Close() {
	if r.lock != nil {
		if err := r.lock.Unlock(); err != nil {
			log.Warnf("[repo.Close] unlock %s: %v", r.lock.Path(), err)
		}
	}
}

// rel converts a command-line path, relative to the current directory,
// to a repository-relative path.
func (r *repo) rel(arg string) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", err
	}
	rel = common.NormalizePath(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside repository %s: %w", arg, r.root, common.ErrInvalidPath)
	}
	return rel, nil
}

// rels converts every argument with rel.
func (r *repo) rels(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		p, err := r.rel(a)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// matcher builds the matcher for pattern arguments. "path:" and "glob:"
// patterns are repository-relative; anything else is a file or directory
// relative to the current directory. No arguments match everything.
// Paths the walk cannot use are reported on stderr.
func (r *repo) matcher(cmd *cobra.Command, args []string) (match.Matcher, error) {
	m, err := r.patterns(args)
	if err != nil {
		return nil, err
	}
	cwd, err := r.ds.Getcwd()
	if err != nil {
		return nil, err
	}
	stderr := cmd.ErrOrStderr()
	return match.WithBad(m, func(p string, err error) {
		var pe *fs.PathError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		fmt.Fprintf(stderr, "%s: %v\n", r.ds.PathTo(p, cwd), err)
	}), nil
}

func (r *repo) patterns(args []string) (match.Matcher, error) {
	if len(args) == 0 {
		return match.Always(), nil
	}
	patterns := make([]string, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, "path:") || strings.HasPrefix(a, "glob:") {
			patterns = append(patterns, a)
			continue
		}
		p, err := r.rel(a)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, "path:"+p)
	}
	return match.Include(patterns...)
}
