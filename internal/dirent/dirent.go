// Package dirent implements the 32-byte FAT directory entry: parsing and
// serialization, 8.3 name normalization and validation, attribute flags, and
// FAT date/time packing, per spec.md section 4.4.
package dirent

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-restruct/restruct"

	ferrors "github.com/hisahi/gofat12/errors"
)

var defaultEncoding = binary.LittleEndian

// Size is the fixed length in bytes of one directory entry.
const Size = 32

// Attribute flags, per spec.md section 4.4.
const (
	AttrReadOnly    uint8 = 0x01
	AttrHidden      uint8 = 0x02
	AttrSystem      uint8 = 0x04
	AttrVolumeLabel uint8 = 0x08
	AttrDirectory   uint8 = 0x10
	AttrArchive     uint8 = 0x20

	// LFN entries carry all four of these bits set; gofat12 does not
	// generate them but must recognize and skip them when scanning a
	// directory written by another implementation.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

const (
	freeMarker    = 0x00
	deletedMarker = 0xE5
	kanjiE5Escape = 0x05
)

// fatEpoch is the earliest representable FAT timestamp, 1980-01-01.
var fatEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// RawEntry is the tagged, on-disk layout of a single 32-byte directory
// entry, packed/unpacked with restruct the same way internal/bpb packs the
// boot sector.
type RawEntry struct {
	Name             [8]byte
	Ext              [3]byte
	Attr             uint8
	NTReserved       uint8
	CreateTimeTenths uint8
	CreateTime       uint16
	CreateDate       uint16
	AccessDate       uint16
	FirstClusterHi   uint16
	WriteTime        uint16
	WriteDate        uint16
	FirstClusterLo   uint16
	FileSize         uint32
}

// Entry is the decoded, user-friendly form of a directory entry.
type Entry struct {
	Name         string // "NAME.EXT" or "NAME" joined form
	Attr         uint8
	FirstCluster uint16
	Size         uint32
	CreatedAt    time.Time
	ModifiedAt   time.Time
	AccessedAt   time.Time
}

// IsDir reports whether the entry's directory attribute bit is set.
func (e Entry) IsDir() bool { return e.Attr&AttrDirectory != 0 }

// IsVolumeLabel reports whether the entry is the volume label pseudo-entry.
func (e Entry) IsVolumeLabel() bool { return e.Attr&AttrVolumeLabel != 0 }

// IsReadOnly reports whether the entry's read-only attribute bit is set.
func (e Entry) IsReadOnly() bool { return e.Attr&AttrReadOnly != 0 }

// SlotState describes what a raw 32-byte slot currently holds, before it is
// decoded into an Entry.
type SlotState int

const (
	// SlotInUse holds a live, decodable directory entry.
	SlotInUse SlotState = iota
	// SlotFree marks the end of the in-use region of a directory; every
	// slot after the first SlotFree slot is also free.
	SlotFree
	// SlotDeleted held an entry that has since been removed; the slot is
	// reusable but the directory must keep scanning past it.
	SlotDeleted
	// SlotLongName is a Long File Name fragment; gofat12 never writes these
	// but must skip over them when reading a foreign image.
	SlotLongName
)

// Inspect classifies a raw 32-byte slot without fully decoding it.
func Inspect(raw [Size]byte) SlotState {
	switch raw[0] {
	case freeMarker:
		return SlotFree
	case deletedMarker:
		return SlotDeleted
	}
	if raw[11] == AttrLongName {
		return SlotLongName
	}
	return SlotInUse
}

// Parse decodes an in-use 32-byte slot into an Entry. Callers must check
// Inspect first; Parse assumes the slot is SlotInUse.
func Parse(raw [Size]byte) (Entry, error) {
	var re RawEntry
	if err := restruct.Unpack(raw[:], defaultEncoding, &re); err != nil {
		return Entry{}, ferrors.ErrCorruptDirectory.WrapError(err)
	}

	var name string
	if re.Attr&AttrVolumeLabel != 0 {
		name = joinLabel(re.Name, re.Ext)
	} else {
		name = joinName(re.Name, re.Ext)
	}

	return Entry{
		Name:         name,
		Attr:         re.Attr,
		FirstCluster: re.FirstClusterLo, // FirstClusterHi is unused on FAT12
		Size:         re.FileSize,
		CreatedAt:    TimestampFromParts(re.CreateDate, re.CreateTime, re.CreateTimeTenths),
		ModifiedAt:   TimestampFromParts(re.WriteDate, re.WriteTime, 0),
		AccessedAt:   DateFromInt(re.AccessDate),
	}, nil
}

// Serialize encodes an Entry back into its 32-byte on-disk form.
func (e Entry) Serialize() ([Size]byte, error) {
	var out [Size]byte

	var base [8]byte
	var ext [3]byte
	if e.IsVolumeLabel() {
		raw, err := NormalizeLabel(e.Name)
		if err != nil {
			return out, err
		}
		copy(base[:], raw[:8])
		copy(ext[:], raw[8:])
	} else {
		var err error
		base, ext, err = NormalizeName(e.Name)
		if err != nil {
			return out, err
		}
	}

	createDate, createTime, createTenths := partsFromTimestamp(e.CreatedAt)
	writeDate, writeTime, _ := partsFromTimestamp(e.ModifiedAt)
	accessDate, _, _ := partsFromTimestamp(e.AccessedAt)

	re := RawEntry{
		Name:             base,
		Ext:              ext,
		Attr:             e.Attr,
		CreateTimeTenths: createTenths,
		CreateTime:       createTime,
		CreateDate:       createDate,
		AccessDate:       accessDate,
		WriteTime:        writeTime,
		WriteDate:        writeDate,
		FirstClusterLo:   e.FirstCluster,
		FileSize:         e.Size,
	}

	packed, err := restruct.Pack(defaultEncoding, &re)
	if err != nil {
		return out, err
	}
	copy(out[:], packed)
	return out, nil
}

func joinName(rawName [8]byte, rawExt [3]byte) string {
	name := string(rawName[:])
	ext := string(rawExt[:])

	if rawName[0] == kanjiE5Escape {
		name = string(rune(deletedMarker)) + name[1:]
	}

	name = strings.TrimRight(name, " ")
	ext = strings.TrimRight(ext, " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// joinLabel reassembles a volume label's combined name+ext bytes into its
// display string. Unlike joinName, no dot is inserted at the 8/11 boundary:
// the 11 bytes are one field, trimmed only of their trailing space padding.
func joinLabel(rawName [8]byte, rawExt [3]byte) string {
	var combined [11]byte
	copy(combined[:8], rawName[:])
	copy(combined[8:], rawExt[:])
	if combined[0] == kanjiE5Escape {
		combined[0] = deletedMarker
	}
	return strings.TrimRight(string(combined[:]), " ")
}

// NormalizeName validates a candidate display name against the 8.3 rules in
// spec.md section 4.4 and splits it into padded, upper-cased base/extension
// fields ready for the wire format.
func NormalizeName(name string) (base [8]byte, ext [3]byte, err error) {
	for i := range base {
		base[i] = ' '
	}
	for i := range ext {
		ext[i] = ' '
	}

	if name == "" {
		return base, ext, ferrors.ErrBadName.WithMessage("name must not be empty")
	}

	// The "." and ".." pseudo-entries are the only directory names allowed
	// to contain a bare dot; they map directly onto the base field with no
	// extension, per spec.md section 4.5.
	if name == "." || name == ".." {
		copy(base[:], name)
		return base, ext, nil
	}

	var baseStr, extStr string
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		baseStr = strings.ToUpper(name[:dot])
		extStr = strings.ToUpper(name[dot+1:])
	} else {
		baseStr = strings.ToUpper(name)
	}

	if len(baseStr) == 0 || len(baseStr) > 8 {
		return base, ext, ferrors.ErrBadName.WithMessage(
			fmt.Sprintf("base name %q must be 1-8 characters", baseStr))
	}
	if len(extStr) > 3 {
		return base, ext, ferrors.ErrBadName.WithMessage(
			fmt.Sprintf("extension %q must be at most 3 characters", extStr))
	}

	if err := validateChars(baseStr); err != nil {
		return base, ext, err
	}
	if err := validateChars(extStr); err != nil {
		return base, ext, err
	}

	copy(base[:], baseStr)
	copy(ext[:], extStr)

	// 0xE5 as the first byte of a live entry collides with the
	// deleted-entry marker; on-disk this is escaped to 0x05.
	if base[0] == deletedMarker {
		base[0] = kanjiE5Escape
	}
	return base, ext, nil
}

// NormalizeLabel validates and encodes a volume label into the 11-byte
// combined name+ext field used by a volume-label entry. Unlike an 8.3 name,
// the field is not split into base and extension: spaces and a literal "."
// are ordinary label characters and no dot is ever inserted, per spec.md
// section 4.4.
func NormalizeLabel(label string) ([11]byte, error) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	if len(label) == 0 || len(label) > 11 {
		return out, ferrors.ErrBadName.WithMessage(
			fmt.Sprintf("volume label %q must be 1-11 characters", label))
	}

	upper := strings.ToUpper(label)
	const invalid = `"*+,/:;<=>?[\]|`
	for _, r := range upper {
		if r < 0x20 || r == 0x7F {
			return out, ferrors.ErrBadName.WithMessage("volume label must not contain control characters")
		}
		if strings.ContainsRune(invalid, r) {
			return out, ferrors.ErrBadName.WithMessage(
				fmt.Sprintf("volume label must not contain %q", string(r)))
		}
	}

	copy(out[:], upper)
	return out, nil
}

func validateChars(s string) error {
	const invalid = `"*+,/:;<=>?[\]|`
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			return ferrors.ErrBadName.WithMessage("name must not contain control characters")
		}
		if strings.ContainsRune(invalid, r) {
			return ferrors.ErrBadName.WithMessage(
				fmt.Sprintf("name must not contain %q", string(r)))
		}
		if r == ' ' {
			return ferrors.ErrBadName.WithMessage("name must not contain spaces")
		}
	}
	return nil
}

// DateFromInt converts a packed FAT date field into a time.Time at midnight
// UTC, the way the teacher's DateFromInt does for its richer set of FAT
// variants.
func DateFromInt(value uint16) time.Time {
	day := int(value & 0x1F)
	month := time.Month((value >> 5) & 0x0F)
	year := 1980 + int(value>>9)
	if day == 0 || month == 0 {
		return fatEpoch
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TimestampFromParts combines a packed FAT date, time, and optional
// hundredths-of-a-second field into a single time.Time.
func TimestampFromParts(datePart, timePart uint16, tenths uint8) time.Time {
	d := DateFromInt(datePart)

	seconds := int(timePart&0x1F) * 2
	minutes := int((timePart >> 5) & 0x3F)
	hours := int(timePart >> 11)
	nanos := int(tenths%100) * 10 * int(time.Millisecond)
	if tenths >= 100 {
		seconds++
	}

	return time.Date(d.Year(), d.Month(), d.Day(), hours, minutes, seconds, nanos, time.UTC)
}

// partsFromTimestamp is the inverse of TimestampFromParts/DateFromInt, used
// when serializing. Timestamps before the FAT epoch are clamped to it, per
// the teacher's fatEpoch floor.
func partsFromTimestamp(t time.Time) (datePart, timePart uint16, tenths uint8) {
	if t.Before(fatEpoch) {
		t = fatEpoch
	}
	datePart = uint16((t.Year()-1980)<<9) | uint16(int(t.Month())<<5) | uint16(t.Day())
	timePart = uint16(t.Hour()<<11) | uint16(t.Minute()<<5) | uint16(t.Second()/2)
	tenths = uint8((t.Second() % 2) * 100)
	return datePart, timePart, tenths
}
