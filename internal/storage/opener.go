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

// Package storage implements the on-disk side of the dirstate: the
// metadata-directory accessor, both state file formats, the docket and the
// tracked-hint file.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	billyutil "github.com/go-git/go-billy/v5/util"
	"github.com/natefinch/atomic"
	log "github.com/sirupsen/logrus"

	"dirstate/internal/util"
)

// Opener reads and writes files relative to the metadata directory.
// Names are plain file names, never paths outside the directory.
type Opener interface {
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	// AtomicWrite replaces name so that readers see either the old or the
	// new content, never a partial file.
	AtomicWrite(name string, data []byte) error
	Rename(oldname, newname string) error
	// Unlink removes name. A missing file is not an error.
	Unlink(name string) error
	Exists(name string) bool
	Stat(name string) (fs.FileInfo, error)
	// Link makes newname share oldname's content, by hardlink when the
	// backing filesystem allows it and by copy otherwise.
	Link(oldname, newname string) error
	// TempFile creates an empty file and returns its name.
	TempFile(prefix string) (string, error)
}

// FSOpener is an Opener backed by a billy filesystem.
type FSOpener struct {
	fs   billy.Filesystem
	base string // OS directory, empty for in-memory filesystems
	ctx  context.Context
}

var _ Opener = (*FSOpener)(nil)

// NewOpener returns an opener rooted at the OS directory dir.
func NewOpener(dir string) *FSOpener {
	return &FSOpener{fs: osfs.New(dir), base: dir, ctx: context.Background()}
}

// NewMemOpener returns an opener over an empty in-memory filesystem.
func NewMemOpener() *FSOpener {
	return &FSOpener{fs: memfs.New(), ctx: context.Background()}
}

// Base returns the OS directory backing the opener, or "" for memory.
func (o *FSOpener) Base() string {
	return o.base
}

func (o *FSOpener) Read(name string) ([]byte, error) {
	return billyutil.ReadFile(o.fs, name)
}

func (o *FSOpener) Write(name string, data []byte) error {
	return billyutil.WriteFile(o.fs, name, data, 0o644)
}

func (o *FSOpener) AtomicWrite(name string, data []byte) error {
	if o.base != "" {
		return util.Retry(o.ctx, func() error {
			return atomic.WriteFile(filepath.Join(o.base, name), bytes.NewReader(data))
		}, util.FileRetryOptions(o.ctx)...)
	}

	f, err := o.fs.TempFile(".", "."+name+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		o.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		o.fs.Remove(tmp)
		return err
	}
	return o.Rename(tmp, name)
}

func (o *FSOpener) Rename(oldname, newname string) error {
	if o.base == "" {
		// memfs renames every file sharing oldname as a prefix
		data, err := billyutil.ReadFile(o.fs, oldname)
		if err != nil {
			return err
		}
		if err := o.Write(newname, data); err != nil {
			return err
		}
		return o.fs.Remove(oldname)
	}
	err := util.Retry(o.ctx, func() error {
		return o.fs.Rename(oldname, newname)
	}, util.FileRetryOptions(o.ctx)...)
	if err != nil {
		return err
	}
	// rename(2) between two links to one inode succeeds and does nothing
	return o.Unlink(oldname)
}

func (o *FSOpener) Unlink(name string) error {
	err := o.fs.Remove(name)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (o *FSOpener) Exists(name string) bool {
	_, err := o.fs.Lstat(name)
	return err == nil
}

func (o *FSOpener) Stat(name string) (fs.FileInfo, error) {
	return o.fs.Stat(name)
}

func (o *FSOpener) Link(oldname, newname string) error {
	if err := o.Unlink(newname); err != nil {
		return err
	}
	if o.base != "" {
		err := os.Link(filepath.Join(o.base, oldname), filepath.Join(o.base, newname))
		if err == nil {
			return nil
		}
		log.Debugf("[FSOpener.Link] hardlink %s -> %s failed, copying: %v", oldname, newname, err)
	}
	return o.copyFile(oldname, newname)
}

func (o *FSOpener) copyFile(src, dst string) error {
	in, err := o.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := o.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (o *FSOpener) TempFile(prefix string) (string, error) {
	f, err := o.fs.TempFile(".", prefix)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	return name, nil
}
