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

package storage

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Transaction defers work until the caller's transaction commits.
type Transaction interface {
	// AddFinalizer registers fn under category, replacing any earlier
	// finalizer with the same category.
	AddFinalizer(category string, fn func() error)
}

// Tx is a minimal Transaction that runs finalizers on Close in
// registration order.
type Tx struct {
	order      []string
	finalizers map[string]func() error
	done       bool
}

var _ Transaction = (*Tx)(nil)

// NewTx starts an empty transaction.
func NewTx() *Tx {
	return &Tx{finalizers: make(map[string]func() error)}
}

func (t *Tx) AddFinalizer(category string, fn func() error) {
	if _, ok := t.finalizers[category]; !ok {
		t.order = append(t.order, category)
	}
	t.finalizers[category] = fn
}

// Pending returns the registered finalizer categories.
func (t *Tx) Pending() []string {
	return append([]string(nil), t.order...)
}

// Close runs every finalizer. All finalizers run even if one fails.
func (t *Tx) Close() error {
	if t.done {
		return errors.New("transaction already closed")
	}
	t.done = true
	var errs []error
	for _, cat := range t.order {
		log.Debugf("[Tx.Close] running finalizer %s", cat)
		if err := t.finalizers[cat](); err != nil {
			errs = append(errs, fmt.Errorf("finalizer %s: %w", cat, err))
		}
	}
	t.order, t.finalizers = nil, nil
	return errors.Join(errs...)
}

// Abort drops the finalizers without running them.
func (t *Tx) Abort() {
	t.done = true
	t.order, t.finalizers = nil, nil
}
