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
	"bytes"
	"encoding/binary"
	"fmt"

	"dirstate/internal/common"
)

// V1Entry is one record of the v1 state file.
type V1Entry struct {
	State byte // 'n', 'a', 'r' or 'm'
	Mode  uint32
	Size  int32
	Mtime int32
	Path  string
	Copy  string // copy source, empty if none
}

const (
	v1ParentsLen = 2 * NodeIDLen
	v1HeaderLen  = 17 // state + mode + size + mtime + name length
)

// ParseV1 decodes a v1 state file. An empty file has null parents and no
// entries.
func ParseV1(data []byte) ([2]NodeID, []V1Entry, error) {
	var parents [2]NodeID
	if len(data) == 0 {
		return parents, nil, nil
	}
	if len(data) < v1ParentsLen {
		return parents, nil, fmt.Errorf("%w: too little data for parents", common.ErrCorrupt)
	}
	copy(parents[0][:], data[:NodeIDLen])
	copy(parents[1][:], data[NodeIDLen:v1ParentsLen])

	var entries []V1Entry
	pos := v1ParentsLen
	for pos < len(data) {
		if len(data)-pos < v1HeaderLen {
			return parents, nil, fmt.Errorf("%w: truncated entry header at offset %d", common.ErrCorrupt, pos)
		}
		h := data[pos : pos+v1HeaderLen]
		e := V1Entry{
			State: h[0],
			Mode:  binary.BigEndian.Uint32(h[1:5]),
			Size:  int32(binary.BigEndian.Uint32(h[5:9])),
			Mtime: int32(binary.BigEndian.Uint32(h[9:13])),
		}
		switch e.State {
		case 'n', 'a', 'r', 'm':
		default:
			return parents, nil, fmt.Errorf("%w: unknown entry state %q at offset %d", common.ErrCorrupt, e.State, pos)
		}
		n := int(binary.BigEndian.Uint32(h[13:17]))
		pos += v1HeaderLen
		if n > len(data)-pos {
			return parents, nil, fmt.Errorf("%w: truncated entry name at offset %d", common.ErrCorrupt, pos)
		}
		name := data[pos : pos+n]
		pos += n
		if i := bytes.IndexByte(name, 0); i >= 0 {
			e.Path, e.Copy = string(name[:i]), string(name[i+1:])
		} else {
			e.Path = string(name)
		}
		entries = append(entries, e)
	}
	return parents, entries, nil
}

// PackV1 encodes a v1 state file.
func PackV1(parents [2]NodeID, entries []V1Entry) []byte {
	size := v1ParentsLen
	for _, e := range entries {
		size += v1HeaderLen + len(e.Path)
		if e.Copy != "" {
			size += 1 + len(e.Copy)
		}
	}
	buf := make([]byte, 0, size)
	buf = append(buf, parents[0][:]...)
	buf = append(buf, parents[1][:]...)
	for _, e := range entries {
		name := e.Path
		if e.Copy != "" {
			name += "\x00" + e.Copy
		}
		buf = append(buf, e.State)
		buf = binary.BigEndian.AppendUint32(buf, e.Mode)
		buf = binary.BigEndian.AppendUint32(buf, uint32(e.Size))
		buf = binary.BigEndian.AppendUint32(buf, uint32(e.Mtime))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(name)))
		buf = append(buf, name...)
	}
	return buf
}
