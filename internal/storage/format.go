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
	"encoding/hex"
	"fmt"
	"strings"

	"dirstate/internal/common"
)

// File names inside the metadata directory.
const (
	StateFileName       = "dirstate"
	TrackedHintFileName = "dirstate-tracked-hint"
	BranchFileName      = "branch"
)

// Format selects the on-disk layout of the state file.
type Format int

const (
	FormatV1 Format = 1
	FormatV2 Format = 2
)

func (f Format) String() string {
	switch f {
	case FormatV1:
		return "v1"
	case FormatV2:
		return "v2"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat accepts "v1", "1", "v2" or "2". An empty string selects v1.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "v1", "1":
		return FormatV1, nil
	case "v2", "2":
		return FormatV2, nil
	}
	return 0, fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, s)
}

// NodeIDLen is the size of a revision identifier.
const NodeIDLen = 20

// NodeID identifies a revision. The zero value is the null revision.
type NodeID [NodeIDLen]byte

// NullID is the null revision.
var NullID NodeID

// IsNull reports whether n is the null revision.
func (n NodeID) IsNull() bool {
	return n == NullID
}

// String returns the full hex form.
func (n NodeID) String() string {
	return hex.EncodeToString(n[:])
}

// Short returns the first 12 hex digits.
func (n NodeID) Short() string {
	return n.String()[:12]
}

// ParseNodeID parses a 40 digit hex revision identifier.
func ParseNodeID(s string) (NodeID, error) {
	var n NodeID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != NodeIDLen {
		return n, fmt.Errorf("%w: bad revision identifier %q", common.ErrInvalidPath, s)
	}
	copy(n[:], b)
	return n, nil
}

// Detect reports the format of a state file's raw content.
func Detect(data []byte) Format {
	if strings.HasPrefix(string(data[:min(len(data), len(DocketMarker))]), DocketMarker) {
		return FormatV2
	}
	return FormatV1
}
