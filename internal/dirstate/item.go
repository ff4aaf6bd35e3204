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

	"dirstate/internal/storage"
)

// v1 size and mtime sentinels.
const (
	sizeNonNormal = -1 // size unknown, file must be looked at
	sizeFromP2    = -2 // file content comes from the second parent
	mtimeUnset    = -1
)

// Item flag bits, as stored in the v2 data file.
const (
	flagWCTracked uint16 = 1 << iota
	flagP1Tracked
	flagP2Info
	flagHasModeAndSize
	flagHasMtime
	flagMtimeSecondAmbiguous
	flagHasFallbackExec
	flagFallbackExec
	flagHasFallbackSymlink
	flagFallbackSymlink
)

// ParentFileData is the mode, size and optional mtime of a file as
// checked out from a parent.
type ParentFileData struct {
	Mode  uint32
	Size  int64
	Mtime *Timestamp
}

// Item is the metadata recorded for one path.
//
// The tracking flags are independent: wcTracked says the working copy
// tracks the file, p1Tracked that the first parent has it, p2Info that
// the file carries information from the second parent of a merge.
type Item struct {
	flags uint16
	mode  uint32
	size  int64
	mtime Timestamp
}

// NewItem builds an item from its tracking flags. Mode, size and mtime
// are only recorded when pfd is given; possiblyDirty drops the mtime.
func NewItem(wcTracked, p1Tracked, p2Info, possiblyDirty bool, pfd *ParentFileData) Item {
	var it Item
	it.setFlag(flagWCTracked, wcTracked)
	it.setFlag(flagP1Tracked, p1Tracked)
	it.setFlag(flagP2Info, p2Info)
	if pfd != nil {
		it.flags |= flagHasModeAndSize
		it.mode = pfd.Mode
		it.size = pfd.Size & rangeMask
		if pfd.Mtime != nil && !possiblyDirty {
			it.flags |= flagHasMtime
			it.setMtime(*pfd.Mtime)
		}
	}
	return it
}

func (it *Item) setFlag(f uint16, on bool) {
	if on {
		it.flags |= f
	} else {
		it.flags &^= f
	}
}

func (it Item) has(f uint16) bool { return it.flags&f != 0 }

func (it *Item) setMtime(t Timestamp) {
	it.mtime = Timestamp{Sec: t.Sec, Nsec: t.Nsec}
	it.setFlag(flagMtimeSecondAmbiguous, t.SecondAmbiguous)
}

// Tracked reports whether the working copy tracks the file.
func (it Item) Tracked() bool { return it.has(flagWCTracked) }

// P1Tracked reports whether the first parent has the file.
func (it Item) P1Tracked() bool { return it.has(flagP1Tracked) }

// P2Info reports whether the file carries merge information.
func (it Item) P2Info() bool { return it.has(flagP2Info) }

// AnyTracked reports whether anything still refers to the file.
func (it Item) AnyTracked() bool {
	return it.flags&(flagWCTracked|flagP1Tracked|flagP2Info) != 0
}

// Added reports a file tracked in the working copy and unknown to both parents.
func (it Item) Added() bool {
	return it.Tracked() && !it.P1Tracked() && !it.P2Info()
}

// Removed reports a file a parent has but the working copy no longer tracks.
func (it Item) Removed() bool {
	return !it.Tracked() && (it.P1Tracked() || it.P2Info())
}

// Merged reports a file tracked everywhere with merge information.
func (it Item) Merged() bool {
	return it.Tracked() && it.P1Tracked() && it.P2Info()
}

// FromP2 reports a file tracked in the working copy that only the second
// parent has.
func (it Item) FromP2() bool {
	return it.Tracked() && !it.P1Tracked() && it.P2Info()
}

// MaybeClean reports whether the file may be unchanged relative to p1.
func (it Item) MaybeClean() bool {
	return it.Tracked() && it.P1Tracked() && !it.P2Info()
}

// HasModeAndSize reports whether mode and size are meaningful.
func (it Item) HasModeAndSize() bool { return it.has(flagHasModeAndSize) }

// HasMtime reports whether the recorded mtime is meaningful.
func (it Item) HasMtime() bool { return it.has(flagHasMtime) }

// Mode returns the recorded mode, 0 if unknown.
func (it Item) Mode() uint32 {
	if !it.HasModeAndSize() {
		return 0
	}
	return it.mode
}

// Size returns the recorded size, or a negative sentinel when the file
// must be looked at.
func (it Item) Size() int64 {
	return int64(it.V1Size())
}

// Mtime returns the recorded mtime and whether it is meaningful.
func (it Item) Mtime() (Timestamp, bool) {
	if !it.HasMtime() {
		return Timestamp{}, false
	}
	t := it.mtime
	t.SecondAmbiguous = it.has(flagMtimeSecondAmbiguous)
	return t, true
}

// MtimeLikelyEqual reports whether the recorded mtime matches other.
func (it Item) MtimeLikelyEqual(other Timestamp) bool {
	t, ok := it.Mtime()
	return ok && t.LikelyEqual(other)
}

// HasFallbackExec reports whether the exec bit comes from a fallback flag.
func (it Item) HasFallbackExec() bool { return it.has(flagHasFallbackExec) }

// HasFallbackSymlink reports whether symlink-ness comes from a fallback flag.
func (it Item) HasFallbackSymlink() bool { return it.has(flagHasFallbackSymlink) }

// FallbackExec returns the fallback exec bit, if any.
func (it Item) FallbackExec() (bool, bool) {
	return it.has(flagFallbackExec), it.HasFallbackExec()
}

// FallbackSymlink returns the fallback symlink bit, if any.
func (it Item) FallbackSymlink() (bool, bool) {
	return it.has(flagFallbackSymlink), it.HasFallbackSymlink()
}

// SetFallbackExec records the exec bit for filesystems that cannot store
// it. A nil value clears it.
func (it *Item) SetFallbackExec(v *bool) {
	it.setFlag(flagHasFallbackExec, v != nil)
	it.setFlag(flagFallbackExec, v != nil && *v)
}

// SetFallbackSymlink records symlink-ness for filesystems without
// symlinks. A nil value clears it.
func (it *Item) SetFallbackSymlink(v *bool) {
	it.setFlag(flagHasFallbackSymlink, v != nil)
	it.setFlag(flagFallbackSymlink, v != nil && *v)
}

// setPossiblyDirty forgets the mtime so the next status looks at the file.
func (it *Item) setPossiblyDirty() {
	it.flags &^= flagHasMtime | flagMtimeSecondAmbiguous
}

// setClean records the file as matching p1 with the given metadata.
func (it *Item) setClean(mode uint32, size int64, mtime Timestamp) {
	it.flags |= flagWCTracked | flagP1Tracked | flagHasModeAndSize | flagHasMtime
	it.mode = mode
	it.size = size & rangeMask
	it.setMtime(mtime)
}

// setTracked marks the file tracked and possibly dirty.
func (it *Item) setTracked() {
	it.flags |= flagWCTracked
	it.setPossiblyDirty()
}

// setUntracked drops working-copy tracking along with the metadata.
func (it *Item) setUntracked() {
	it.flags &^= flagWCTracked | flagHasModeAndSize
	it.mode, it.size = 0, 0
	it.setPossiblyDirty()
}

// dropMergeData forgets second-parent information.
func (it *Item) dropMergeData() {
	if !it.P2Info() {
		return
	}
	it.flags &^= flagP2Info | flagHasModeAndSize
	it.mode, it.size = 0, 0
	it.setPossiblyDirty()
}

// V1State returns the v1 state character: 'n', 'a', 'r', 'm', or '?'
// when nothing tracks the file.
func (it Item) V1State() byte {
	switch {
	case !it.AnyTracked():
		return '?'
	case it.Removed():
		return 'r'
	case it.Merged():
		return 'm'
	case it.Added():
		return 'a'
	}
	return 'n'
}

// V1Mode returns the mode stored in a v1 record.
func (it Item) V1Mode() uint32 {
	return it.Mode()
}

// V1Size returns the size stored in a v1 record.
func (it Item) V1Size() int32 {
	switch {
	case !it.AnyTracked():
		return 0
	case it.Removed() && it.P1Tracked() && it.P2Info():
		return sizeNonNormal
	case it.P2Info():
		return sizeFromP2
	case it.Removed():
		return 0
	case it.Added():
		return sizeNonNormal
	case !it.HasModeAndSize():
		return sizeNonNormal
	}
	return int32(it.size)
}

// V1Mtime returns the mtime stored in a v1 record.
func (it Item) V1Mtime() int32 {
	switch {
	case !it.AnyTracked(), it.Removed():
		return 0
	case !it.HasMtime(), it.P2Info(), !it.P1Tracked(), it.has(flagMtimeSecondAmbiguous):
		return mtimeUnset
	}
	return int32(it.mtime.Sec)
}

// ItemFromV1 rebuilds an item from a v1 record.
func ItemFromV1(state byte, mode uint32, size, mtime int32) (Item, error) {
	switch state {
	case 'm':
		return NewItem(true, true, true, false, nil), nil
	case 'a':
		return NewItem(true, false, false, false, nil), nil
	case 'r':
		switch size {
		case sizeNonNormal:
			return NewItem(false, true, true, false, nil), nil
		case sizeFromP2:
			return NewItem(false, false, true, false, nil), nil
		}
		return NewItem(false, true, false, false, nil), nil
	case 'n':
		switch {
		case size == sizeFromP2:
			return NewItem(true, false, true, false, nil), nil
		case size == sizeNonNormal:
			return NewItem(true, true, false, false, nil), nil
		case mtime == mtimeUnset:
			return NewItem(true, true, false, true, &ParentFileData{Mode: mode, Size: int64(size)}), nil
		}
		mt := Timestamp{Sec: int64(mtime)}
		return NewItem(true, true, false, false, &ParentFileData{Mode: mode, Size: int64(size), Mtime: &mt}), nil
	}
	return Item{}, fmt.Errorf("unknown state %q", state)
}

// v2Entry converts the item into a v2 data-file record.
func (it Item) v2Entry(path, copySource string) storage.V2Entry {
	e := storage.V2Entry{Flags: it.flags, Path: path, Copy: copySource}
	if it.HasModeAndSize() {
		e.Mode = it.mode
		e.Size = int32(it.size)
	}
	if it.HasMtime() {
		e.MtimeSec = it.mtime.Sec
		e.MtimeNsec = it.mtime.Nsec
	}
	return e
}

// itemFromV2 rebuilds an item from a v2 data-file record.
func itemFromV2(e storage.V2Entry) Item {
	it := Item{flags: e.Flags}
	if it.HasModeAndSize() {
		it.mode = e.Mode
		it.size = int64(e.Size)
	}
	if it.HasMtime() {
		it.mtime = Timestamp{Sec: e.MtimeSec, Nsec: e.MtimeNsec}
	}
	return it
}

func (it Item) String() string {
	t, ok := it.Mtime()
	mt := "unset"
	if ok {
		mt = t.String()
	}
	return fmt.Sprintf("%c %o %d %s", it.V1State(), it.Mode(), it.V1Size(), mt)
}
