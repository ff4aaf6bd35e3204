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
	"strings"

	"github.com/google/uuid"

	"dirstate/internal/common"
)

// DocketMarker opens every v2 docket.
const DocketMarker = "dirstate-v2\n"

const (
	docketParentLen = 32
	dataMagic       = "DSV2"
	v2HeaderLen     = 30 // flags + mode + size + sec + nsec + path len + copy len
)

// Docket is the small v2 state file pointing at the current data file.
type Docket struct {
	Parents  [2]NodeID
	DataSize uint32
	ID       string
}

// NewDataID returns a fresh data-file identifier: 32 hex digits.
func NewDataID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// DataFileName returns the name of the data file the docket refers to.
func (d *Docket) DataFileName() string {
	return StateFileName + "." + d.ID
}

// Pack encodes the docket.
func (d *Docket) Pack() []byte {
	buf := make([]byte, 0, len(DocketMarker)+2*docketParentLen+5+len(d.ID))
	buf = append(buf, DocketMarker...)
	for _, p := range d.Parents {
		var padded [docketParentLen]byte
		copy(padded[:], p[:])
		buf = append(buf, padded[:]...)
	}
	buf = binary.BigEndian.AppendUint32(buf, d.DataSize)
	buf = append(buf, byte(len(d.ID)))
	buf = append(buf, d.ID...)
	return buf
}

// ParseDocket decodes a v2 docket.
func ParseDocket(data []byte) (*Docket, error) {
	if !bytes.HasPrefix(data, []byte(DocketMarker)) {
		return nil, fmt.Errorf("%w: missing docket marker", common.ErrCorrupt)
	}
	rest := data[len(DocketMarker):]
	if len(rest) < 2*docketParentLen+5 {
		return nil, fmt.Errorf("%w: truncated docket", common.ErrCorrupt)
	}
	d := &Docket{}
	copy(d.Parents[0][:], rest[:NodeIDLen])
	copy(d.Parents[1][:], rest[docketParentLen:docketParentLen+NodeIDLen])
	rest = rest[2*docketParentLen:]
	d.DataSize = binary.BigEndian.Uint32(rest[:4])
	n := int(rest[4])
	rest = rest[5:]
	if len(rest) != n {
		return nil, fmt.Errorf("%w: docket id length %d, have %d bytes", common.ErrCorrupt, n, len(rest))
	}
	d.ID = string(rest)
	if strings.ContainsAny(d.ID, "/\\") {
		return nil, fmt.Errorf("%w: bad data file id %q", common.ErrCorrupt, d.ID)
	}
	return d, nil
}

// V2Entry is one record of the v2 data file.
type V2Entry struct {
	Flags     uint16
	Mode      uint32
	Size      int32
	MtimeSec  int64
	MtimeNsec uint32
	Path      string
	Copy      string
}

// PackV2Data encodes the v2 data file.
func PackV2Data(entries []V2Entry) []byte {
	size := len(dataMagic) + 4
	for _, e := range entries {
		size += v2HeaderLen + len(e.Path) + len(e.Copy)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, dataMagic...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = binary.BigEndian.AppendUint16(buf, e.Flags)
		buf = binary.BigEndian.AppendUint32(buf, e.Mode)
		buf = binary.BigEndian.AppendUint32(buf, uint32(e.Size))
		buf = binary.BigEndian.AppendUint64(buf, uint64(e.MtimeSec))
		buf = binary.BigEndian.AppendUint32(buf, e.MtimeNsec)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Path)))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Copy)))
		buf = append(buf, e.Path...)
		buf = append(buf, e.Copy...)
	}
	return buf
}

// ParseV2Data decodes the v2 data file.
func ParseV2Data(data []byte) ([]V2Entry, error) {
	if len(data) < len(dataMagic)+4 || string(data[:len(dataMagic)]) != dataMagic {
		return nil, fmt.Errorf("%w: bad data file header", common.ErrCorrupt)
	}
	count := binary.BigEndian.Uint32(data[len(dataMagic):])
	pos := len(dataMagic) + 4
	entries := make([]V2Entry, 0, min(int(count), len(data)/v2HeaderLen))
	for i := uint32(0); i < count; i++ {
		if len(data)-pos < v2HeaderLen {
			return nil, fmt.Errorf("%w: truncated entry %d", common.ErrCorrupt, i)
		}
		h := data[pos : pos+v2HeaderLen]
		e := V2Entry{
			Flags:     binary.BigEndian.Uint16(h[0:2]),
			Mode:      binary.BigEndian.Uint32(h[2:6]),
			Size:      int32(binary.BigEndian.Uint32(h[6:10])),
			MtimeSec:  int64(binary.BigEndian.Uint64(h[10:18])),
			MtimeNsec: binary.BigEndian.Uint32(h[18:22]),
		}
		pl := int(binary.BigEndian.Uint32(h[22:26]))
		cl := int(binary.BigEndian.Uint32(h[26:30]))
		pos += v2HeaderLen
		if pl+cl > len(data)-pos || pl < 0 || cl < 0 {
			return nil, fmt.Errorf("%w: truncated names in entry %d", common.ErrCorrupt, i)
		}
		e.Path = string(data[pos : pos+pl])
		e.Copy = string(data[pos+pl : pos+pl+cl])
		pos += pl + cl
		entries = append(entries, e)
	}
	if pos != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes in data file", common.ErrCorrupt, len(data)-pos)
	}
	return entries, nil
}
