// Package bpb models the BIOS Parameter Block and boot sector of a 1.44 MB
// FAT12 floppy image: the constants and derived offsets in spec.md section 3,
// and the on-disk layout in spec.md section 4.2 / section 6.
package bpb

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"

	ferrors "github.com/hisahi/gofat12/errors"
)

// Fixed geometry constants for a 1.44 MB (3.5", HD) floppy, per spec.md
// section 3. This library supports exactly this geometry; anything else
// fails to parse with ErrUnsupportedGeometry.
const (
	BytesPerSector    = 512
	SectorsPerCluster = 1
	ReservedSectors   = 1
	NumFATs           = 2
	RootEntryCount    = 224
	RootDirSectors    = 14 // (224 * 32) / 512
	TotalSectors      = 2880
	MediaDescriptor   = 0xF0
	SectorsPerFAT     = 9
	SectorsPerTrack   = 18
	NumHeads          = 2

	// Derived sector offsets, per spec.md section 3.
	FAT1Start          = ReservedSectors             // 1
	FAT2Start          = FAT1Start + SectorsPerFAT    // 10
	RootDirStart       = FAT2Start + SectorsPerFAT    // 19
	DataRegionStart    = RootDirStart + RootDirSectors // 33
	FirstDataCluster   = 2
	TotalClusters      = TotalSectors - DataRegionStart // 2847
	MaxFileSizeInBytes = TotalClusters * BytesPerSector  // 1,457,664

	bootSignatureByte = 0x29
	signatureWord     = 0xAA55
)

// RawBootSector is the tagged, on-disk layout of the 512-byte boot sector,
// packed/unpacked via restruct.Pack/restruct.Unpack against
// binary.LittleEndian, the way dsoprea-go-exfat's structures.go packs its
// on-disk structures. Field order is the wire order; restruct packs byte by
// byte with no Go struct-alignment padding.
type RawBootSector struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	MediaDescriptor   uint8
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	DriveNumber       uint8
	NTReserved        uint8
	ExtBootSignature  uint8
	VolumeSerial      uint32
	VolumeLabel       [11]byte
	FileSystemType    [8]byte
	BootCode          [448]byte
	SignatureWord     uint16
}

// BootSector is the validated, in-memory form of RawBootSector.
type BootSector struct {
	VolumeSerial uint32
	VolumeLabel  [11]byte
	OEMName      [8]byte
	BootCode     [448]byte
}

var defaultEncoding = binary.LittleEndian

// Parse validates and decodes a 512-byte boot sector. Every field in
// spec.md section 4.2 is checked; any mismatch fails ErrUnsupportedGeometry.
func Parse(sectorBytes [512]byte) (*BootSector, error) {
	var raw RawBootSector
	if err := restruct.Unpack(sectorBytes[:], defaultEncoding, &raw); err != nil {
		return nil, ferrors.ErrBadImage.WrapError(err)
	}

	if err := validate(&raw); err != nil {
		return nil, err
	}

	return &BootSector{
		VolumeSerial: raw.VolumeSerial,
		VolumeLabel:  raw.VolumeLabel,
		OEMName:      raw.OEMName,
		BootCode:     raw.BootCode,
	}, nil
}

func validate(raw *RawBootSector) error {
	type check struct {
		name string
		got  uint64
		want uint64
	}
	checks := []check{
		{"BytesPerSector", uint64(raw.BytesPerSector), BytesPerSector},
		{"SectorsPerCluster", uint64(raw.SectorsPerCluster), SectorsPerCluster},
		{"ReservedSectors", uint64(raw.ReservedSectors), ReservedSectors},
		{"NumFATs", uint64(raw.NumFATs), NumFATs},
		{"RootEntryCount", uint64(raw.RootEntryCount), RootEntryCount},
		{"TotalSectors16", uint64(raw.TotalSectors16), TotalSectors},
		{"MediaDescriptor", uint64(raw.MediaDescriptor), MediaDescriptor},
		{"SectorsPerFAT", uint64(raw.SectorsPerFAT), SectorsPerFAT},
	}
	for _, c := range checks {
		if c.got != c.want {
			return ferrors.ErrUnsupportedGeometry.WithMessage(
				fmt.Sprintf("%s must be %d, got %d", c.name, c.want, c.got))
		}
	}
	if raw.SignatureWord != signatureWord {
		return ferrors.ErrUnsupportedGeometry.WithMessage(
			fmt.Sprintf("boot sector signature must be 0x%04X, got 0x%04X",
				signatureWord, raw.SignatureWord))
	}
	return nil
}

// New builds a fresh BootSector for formatting, with the given volume serial
// and label. The label is copied as-is (already padded/validated by the
// caller); OEMName defaults to "gofat12 " if left zeroed.
func New(volumeSerial uint32, label [11]byte) *BootSector {
	bs := &BootSector{
		VolumeSerial: volumeSerial,
		VolumeLabel:  label,
	}
	copy(bs.OEMName[:], "gofat12 ")
	return bs
}

// Serialize encodes the boot sector back into its 512-byte on-disk form.
func (bs *BootSector) Serialize() ([512]byte, error) {
	var out [512]byte

	raw := RawBootSector{
		OEMName:           bs.OEMName,
		BytesPerSector:    BytesPerSector,
		SectorsPerCluster: SectorsPerCluster,
		ReservedSectors:   ReservedSectors,
		NumFATs:           NumFATs,
		RootEntryCount:    RootEntryCount,
		TotalSectors16:    TotalSectors,
		MediaDescriptor:   MediaDescriptor,
		SectorsPerFAT:     SectorsPerFAT,
		SectorsPerTrack:   SectorsPerTrack,
		NumHeads:          NumHeads,
		DriveNumber:       0x00,
		ExtBootSignature:  bootSignatureByte,
		VolumeSerial:      bs.VolumeSerial,
		VolumeLabel:       bs.VolumeLabel,
		BootCode:          bs.BootCode,
		SignatureWord:     signatureWord,
	}
	copy(raw.JmpBoot[:], []byte{0xEB, 0x3C, 0x90})
	copy(raw.FileSystemType[:], "FAT12   ")

	packed, err := restruct.Pack(defaultEncoding, &raw)
	if err != nil {
		return out, err
	}
	copy(out[:], packed)
	return out, nil
}
