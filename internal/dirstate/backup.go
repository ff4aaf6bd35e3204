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

// backupDataName is the name under which the data file of a v2 backup
// is kept.
func backupDataName(backup, dataFile string) string {
	return backup + "." + dataFile
}

// backupDocket returns the docket stored in file name, or nil when the
// file holds v1 state.
func backupDocket(opener storage.Opener, name string) (*storage.Docket, error) {
	data, err := opener.Read(name)
	if err != nil {
		return nil, err
	}
	if storage.Detect(data) != storage.FormatV2 {
		return nil, nil
	}
	return storage.ParseDocket(data)
}

// SaveBackup writes pending changes and records a copy of the persisted
// state under name. The copy is a hardlink where the filesystem allows.
func (d *Dirstate) SaveBackup(tr storage.Transaction, name string) error {
	const op = "save backup"
	if name == "" || name == storage.StateFileName {
		return common.Abort(op, name, common.ErrInvalidPath)
	}
	m, err := d.Map()
	if err != nil {
		return err
	}
	if m.dirty || !d.opener.Exists(storage.StateFileName) {
		// written now even inside a transaction: the backup must see it
		m.dirty = true
		if err := d.writeNow(); err != nil {
			return common.Abort(op, name, err)
		}
	}
	if tr != nil {
		tr.AddFinalizer("dirstate", d.writeNow)
	}

	if err := d.clearBackupFiles(name); err != nil {
		return common.Abort(op, name, err)
	}
	if err := d.opener.Link(storage.StateFileName, name); err != nil {
		return common.Abort(op, name, err)
	}
	if m.docket != nil {
		dataFile := m.docket.DataFileName()
		if err := d.opener.Link(dataFile, backupDataName(name, dataFile)); err != nil {
			return common.Abort(op, name, err)
		}
	}
	log.Debugf("[Dirstate.SaveBackup] saved %s", name)
	return nil
}

// RestoreBackup replaces the persisted state with the backup name and
// drops every in-memory change, whether or not the restore succeeds.
func (d *Dirstate) RestoreBackup(tr storage.Transaction, name string) error {
	const op = "restore backup"
	d.Invalidate()

	if !d.opener.Exists(name) {
		return common.Abort(op, name, common.ErrNoBackup)
	}
	var current string
	if docket, err := backupDocket(d.opener, storage.StateFileName); err == nil && docket != nil {
		current = docket.DataFileName()
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("[Dirstate.RestoreBackup] reading current docket: %v", err)
	}

	docket, err := backupDocket(d.opener, name)
	if err != nil {
		return common.Abort(op, name, err)
	}
	var restored string
	if docket != nil {
		restored = docket.DataFileName()
		if err := d.opener.Rename(backupDataName(name, restored), restored); err != nil {
			return common.Abort(op, name, fmt.Errorf("restoring data file: %w", err))
		}
	}
	if err := d.opener.Rename(name, storage.StateFileName); err != nil {
		return common.Abort(op, name, err)
	}
	if current != "" && current != restored {
		if err := d.opener.Unlink(current); err != nil {
			log.Warnf("[Dirstate.RestoreBackup] removing %s: %v", current, err)
		}
	}
	if tr != nil {
		// nothing is pending any more; a finalizer left by Write would
		// otherwise overwrite the restored files
		tr.AddFinalizer("dirstate", func() error { return nil })
	}
	log.Debugf("[Dirstate.RestoreBackup] restored %s", name)
	return nil
}

// ClearBackup removes the backup name.
func (d *Dirstate) ClearBackup(tr storage.Transaction, name string) error {
	if err := d.clearBackupFiles(name); err != nil {
		return common.Abort("clear backup", name, err)
	}
	return nil
}

func (d *Dirstate) clearBackupFiles(name string) error {
	docket, err := backupDocket(d.opener, name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		log.Warnf("[Dirstate.ClearBackup] unreadable backup %s: %v", name, err)
	case docket != nil:
		if err := d.opener.Unlink(backupDataName(name, docket.DataFileName())); err != nil {
			return err
		}
	}
	return d.opener.Unlink(name)
}
