// Package format builds a blank, freshly formatted FAT12 image: boot sector,
// blank mirrored FAT1/FAT2, a blank root directory, and an optional volume
// label entry, the way the teacher's fat8 FormatImage builds a blank image
// and FAT table before handing control back to the driver. See spec.md
// section 4.8.
package format

import (
	"time"

	"github.com/noxer/bytewriter"

	"github.com/hisahi/gofat12/internal/bpb"
	"github.com/hisahi/gofat12/internal/dirent"
	"github.com/hisahi/gofat12/internal/directory"
	"github.com/hisahi/gofat12/internal/fat"
	"github.com/hisahi/gofat12/internal/sector"
)

// Options configures a format operation. VolumeSerial and Now are both
// injectable so formatting is deterministic in tests, per spec.md section 9.
type Options struct {
	VolumeSerial uint32
	VolumeLabel  string // empty means no label entry is written
	Now          time.Time
}

// Result carries the freshly built components of a formatted image, ready
// to be handed to the higher-level filesystem wrapper.
type Result struct {
	Buffer *sector.Buffer
	Table  *fat.Table
	Boot   *bpb.BootSector
}

// Apply formats a blank sector buffer in place and returns the decoded
// components backing it.
func Apply(opts Options) (*Result, error) {
	buf := sector.NewBlank()

	var label [11]byte
	for i := range label {
		label[i] = ' '
	}
	if opts.VolumeLabel != "" {
		normalized, err := dirent.NormalizeLabel(opts.VolumeLabel)
		if err != nil {
			return nil, err
		}
		label = normalized
	}

	boot := bpb.New(opts.VolumeSerial, label)
	bootBytes, err := boot.Serialize()
	if err != nil {
		return nil, err
	}
	if err := buf.WriteSector(0, bootBytes[:]); err != nil {
		return nil, err
	}

	table := fat.New(bpb.MediaDescriptor)
	if err := writeFATs(buf, table); err != nil {
		return nil, err
	}

	rootSlice, err := buf.Slice(bpb.RootDirStart, bpb.RootDirSectors)
	if err != nil {
		return nil, err
	}
	if _, err := bytewriter.New(rootSlice).Write(make([]byte, bpb.RootDirSectors*bpb.BytesPerSector)); err != nil {
		return nil, err
	}

	if opts.VolumeLabel != "" {
		root := directory.New(directory.NewRootSource(buf))
		_, err := root.Insert(dirent.Entry{
			Name:       opts.VolumeLabel,
			Attr:       dirent.AttrVolumeLabel,
			CreatedAt:  opts.Now,
			ModifiedAt: opts.Now,
			AccessedAt: opts.Now,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Result{Buffer: buf, Table: table, Boot: boot}, nil
}

// writeFATs serializes table and writes both on-disk copies in one
// sequential pass each, the way the teacher's unixv1 Format writes its
// allocation bitmaps through a bytewriter instead of sector by sector.
func writeFATs(buf *sector.Buffer, table *fat.Table) error {
	fat1, fat2 := table.Serialize()

	fat1Slice, err := buf.Slice(bpb.FAT1Start, bpb.SectorsPerFAT)
	if err != nil {
		return err
	}
	if _, err := bytewriter.New(fat1Slice).Write(fat1[:]); err != nil {
		return err
	}

	fat2Slice, err := buf.Slice(bpb.FAT2Start, bpb.SectorsPerFAT)
	if err != nil {
		return err
	}
	if _, err := bytewriter.New(fat2Slice).Write(fat2[:]); err != nil {
		return err
	}
	return nil
}
