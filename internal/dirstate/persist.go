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

package dirstate

import (
	"errors"
	"fmt"
	"io/fs"

	log "github.com/sirupsen/logrus"

	"dirstate/internal/common"
	"dirstate/internal/storage"
)

// Write persists the state if it changed. With a transaction the write
// is deferred to the transaction's finalizers. Writing while parents are
// changing is refused.
func (d *Dirstate) Write(tr storage.Transaction) error {
	if d.m == nil || !d.m.dirty {
		return nil
	}
	if err := d.requireNoScope("Write"); err != nil {
		return err
	}
	if tr != nil {
		tr.AddFinalizer("dirstate", d.writeNow)
		return nil
	}
	return d.writeNow()
}

func (d *Dirstate) writeNow() error {
	if d.m == nil || !d.m.dirty {
		return nil
	}
	if err := d.requireNoScope("Write"); err != nil {
		return err
	}
	m := d.m
	d.notifyParentChange(m)
	m.format = d.opts.Format
	if err := m.write(); err != nil {
		return fmt.Errorf("writing dirstate: %w", err)
	}
	if d.opts.UseTrackedHint && (m.dirtyTrackedSet || !d.opener.Exists(storage.TrackedHintFileName)) {
		if err := d.opener.AtomicWrite(storage.TrackedHintFileName, storage.PackTrackedHint()); err != nil {
			return fmt.Errorf("writing tracked hint: %w", err)
		}
	}
	log.Debugf("[Dirstate.Write] wrote %d entries as %s", m.Len(), m.format)
	m.clearDirty()
	return nil
}

// DeleteTrackedHint removes the tracked-hint file and stops maintaining
// it, as a format downgrade does.
func (d *Dirstate) DeleteTrackedHint() error {
	if err := d.opener.Unlink(storage.TrackedHintFileName); err != nil {
		return fmt.Errorf("removing tracked hint: %w", err)
	}
	d.opts.UseTrackedHint = false
	return nil
}

// TrackedHint returns the token of the tracked-hint file, or "" when the
// file does not exist.
func (d *Dirstate) TrackedHint() (string, error) {
	data, err := d.opener.Read(storage.TrackedHintFileName)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return storage.ParseTrackedHint(data)
}

// Identity returns a token that changes whenever the state file is
// replaced on disk.
func (d *Dirstate) Identity() (string, error) {
	m, err := d.Map()
	if err != nil {
		return "", err
	}
	return m.identity, nil
}

// IsStale reports whether another writer replaced the state file since
// it was loaded.
func (d *Dirstate) IsStale() (bool, error) {
	m, err := d.Map()
	if err != nil {
		return false, err
	}
	cur, err := diskIdentity(d.opener)
	if err != nil {
		return false, err
	}
	return cur != m.identity, nil
}

// diskIdentity computes the identity of the state file currently on disk
// without loading it.
func diskIdentity(opener storage.Opener) (string, error) {
	data, err := opener.Read(storage.StateFileName)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if storage.Detect(data) == storage.FormatV2 {
		docket, err := storage.ParseDocket(data)
		if err != nil {
			return "", common.Abort("load dirstate", storage.StateFileName, err)
		}
		return docket.ID, nil
	}
	fi, err := opener.Stat(storage.StateFileName)
	if err != nil {
		return "", err
	}
	return storage.FileIdentity(fi), nil
}
