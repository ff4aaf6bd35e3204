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
	"fmt"
	"io/fs"
	"time"
)

// rangeMask keeps sizes and seconds within the signed 31-bit range the v1
// format can store.
const rangeMask = 0x7fffffff

// futureSlack is how far in the future a file mtime may be before it is
// treated as clock skew rather than a racing write.
const futureSlack = 86400

// Timestamp is a file modification time truncated to 31-bit seconds.
// SecondAmbiguous marks a time recorded within the same second as the
// boundary it was checked against; such a time can only be trusted when
// the other side carries sub-second precision.
type Timestamp struct {
	Sec             int64
	Nsec            uint32
	SecondAmbiguous bool
}

// TimestampOf truncates t.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix() & rangeMask, Nsec: uint32(t.Nanosecond())}
}

// MtimeOf returns the modification time of fi.
func MtimeOf(fi fs.FileInfo) Timestamp {
	return TimestampOf(fi.ModTime())
}

// LikelyEqual reports whether a stored time t matches the on-disk time
// other. When either side lacks sub-second precision the seconds decide,
// unless t was recorded as second-ambiguous.
func (t Timestamp) LikelyEqual(other Timestamp) bool {
	if t.Sec != other.Sec {
		return false
	}
	if t.Nsec == 0 || other.Nsec == 0 {
		return !t.SecondAmbiguous
	}
	return t.Nsec == other.Nsec
}

// Before reports whether t is strictly earlier than other.
func (t Timestamp) Before(other Timestamp) bool {
	if t.Sec != other.Sec {
		return t.Sec < other.Sec
	}
	return t.Nsec < other.Nsec
}

func (t Timestamp) String() string {
	s := fmt.Sprintf("%d.%09d", t.Sec, t.Nsec)
	if t.SecondAmbiguous {
		s += "?"
	}
	return s
}

// ReliableMtime returns the mtime of st if it can be recorded as clean
// against boundary, the filesystem time captured before the scan started.
// In the boundary's second a file is only accepted when both times carry
// nanoseconds and the file's are earlier; anything else may still change
// without its mtime moving. Times a day or more ahead of the boundary are
// clock skew and accepted.
func ReliableMtime(st *StatResult, boundary Timestamp) (Timestamp, bool) {
	mt := st.Mtime
	if mt.Sec == boundary.Sec {
		if mt.Nsec == 0 || boundary.Nsec == 0 || mt.Nsec >= boundary.Nsec {
			return Timestamp{}, false
		}
		mt.SecondAmbiguous = true
		return mt, true
	}
	if boundary.Sec < mt.Sec && mt.Sec < boundary.Sec+futureSlack {
		return Timestamp{}, false
	}
	return mt, true
}
