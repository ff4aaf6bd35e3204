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
	"fmt"
	"strings"

	"dirstate/internal/common"
)

// trackedHintVersion is the first line of the tracked-hint file.
const trackedHintVersion = "1"

// PackTrackedHint returns fresh tracked-hint content: the format version
// line followed by a random hex token.
func PackTrackedHint() []byte {
	return []byte(trackedHintVersion + "\n" + NewDataID() + "\n")
}

// ParseTrackedHint returns the token stored in a tracked-hint file.
func ParseTrackedHint(data []byte) (string, error) {
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 2 || lines[0] != trackedHintVersion || lines[1] == "" {
		return "", fmt.Errorf("%w: bad tracked hint", common.ErrCorrupt)
	}
	return lines[1], nil
}
