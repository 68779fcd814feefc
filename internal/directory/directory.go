// Package directory implements directory listing and mutation: the fixed
// root directory region and cluster-chained subdirectories described in
// spec.md section 4.5, built on top of internal/dirent's slot codec.
package directory

import (
	"github.com/hisahi/gofat12/internal/bpb"
	"github.com/hisahi/gofat12/internal/dirent"
	"github.com/hisahi/gofat12/internal/fat"
	"github.com/hisahi/gofat12/internal/sector"

	ferrors "github.com/hisahi/gofat12/errors"
)

// SlotsPerCluster is the number of 32-byte directory slots in one cluster.
const SlotsPerCluster = (bpb.SectorsPerCluster * bpb.BytesPerSector) / dirent.Size

// Source abstracts the underlying storage of a directory's slots, so
// Directory's higher-level Iter/Lookup/Insert/Remove logic doesn't need to
// care whether it's addressing the fixed root region or a growable cluster
// chain.
type Source interface {
	// SlotCount returns the number of 32-byte slots currently addressable.
	SlotCount() int
	// Get reads the slot at index i.
	Get(i int) ([dirent.Size]byte, error)
	// Set writes the slot at index i.
	Set(i int, data [dirent.Size]byte) error
	// Grow extends the source to make room for at least one more slot, or
	// fails if it cannot (the root directory never can, and fails with
	// ErrDirFull; a chain fails with the FAT's allocation error).
	Grow() error
}

// RootSource addresses the fixed-size root directory region: 14 sectors
// starting at bpb.RootDirStart, holding exactly bpb.RootEntryCount slots.
// It never grows.
type RootSource struct {
	buf *sector.Buffer
}

// NewRootSource wraps the root directory region of buf.
func NewRootSource(buf *sector.Buffer) *RootSource {
	return &RootSource{buf: buf}
}

func (r *RootSource) SlotCount() int { return bpb.RootEntryCount }

func (r *RootSource) Get(i int) ([dirent.Size]byte, error) {
	var out [dirent.Size]byte
	if i < 0 || i >= bpb.RootEntryCount {
		return out, ferrors.ErrOutOfRange.WithMessage("root directory slot index out of range")
	}
	sectorIdx, offsetInSector := slotLocation(i)
	sec, err := r.buf.ReadSector(bpb.RootDirStart + sectorIdx)
	if err != nil {
		return out, err
	}
	copy(out[:], sec[offsetInSector:offsetInSector+dirent.Size])
	return out, nil
}

func (r *RootSource) Set(i int, data [dirent.Size]byte) error {
	if i < 0 || i >= bpb.RootEntryCount {
		return ferrors.ErrOutOfRange.WithMessage("root directory slot index out of range")
	}
	sectorIdx, offsetInSector := slotLocation(i)
	sec, err := r.buf.ReadSector(bpb.RootDirStart + sectorIdx)
	if err != nil {
		return err
	}
	copy(sec[offsetInSector:offsetInSector+dirent.Size], data[:])
	return r.buf.WriteSector(bpb.RootDirStart+sectorIdx, sec[:])
}

func (r *RootSource) Grow() error {
	return ferrors.ErrDirFull.WithMessage("root directory has a fixed size and cannot grow")
}

func slotLocation(i int) (sectorIdx, offsetInSector int) {
	slotsPerSector := bpb.BytesPerSector / dirent.Size
	return i / slotsPerSector, (i % slotsPerSector) * dirent.Size
}

// ChainSource addresses a subdirectory's slots across the clusters of its
// chain, growing the chain (via the FAT) as new slots are needed.
type ChainSource struct {
	buf          *sector.Buffer
	table        *fat.Table
	firstCluster uint16
	clusters     []uint16
}

// NewChainSource wraps the cluster chain starting at firstCluster.
func NewChainSource(buf *sector.Buffer, table *fat.Table, firstCluster uint16) (*ChainSource, error) {
	chain, err := table.Walk(firstCluster)
	if err != nil {
		return nil, err
	}
	return &ChainSource{buf: buf, table: table, firstCluster: firstCluster, clusters: chain}, nil
}

// NewBlankChainSource wraps a freshly allocated, single-cluster chain,
// zero-filling its cluster first. AllocOne only touches the FAT; it leaves
// whatever bytes a previous occupant left in the data region, so callers
// building a brand-new subdirectory must go through this instead of
// NewChainSource to avoid inheriting stale dirent slots.
func NewBlankChainSource(buf *sector.Buffer, table *fat.Table, firstCluster uint16) (*ChainSource, error) {
	if err := zeroCluster(buf, firstCluster); err != nil {
		return nil, err
	}
	return NewChainSource(buf, table, firstCluster)
}

// OpenChainDirectory opens an existing subdirectory's cluster chain and
// validates that its first two entries are "." and "..", per spec.md
// section 4.5. Anything else means the directory region is corrupt.
func OpenChainDirectory(buf *sector.Buffer, table *fat.Table, firstCluster uint16) (*Directory, error) {
	src, err := NewChainSource(buf, table, firstCluster)
	if err != nil {
		return nil, err
	}
	dir := New(src)

	entries, err := dir.Iter()
	if err != nil {
		return nil, err
	}
	if len(entries) < 2 || entries[0].Name != "." || entries[1].Name != ".." {
		return nil, ferrors.ErrCorruptDirectory.WithMessage(
			"subdirectory's first two entries must be \".\" and \"..\"")
	}
	return dir, nil
}

// zeroCluster overwrites every sector of cluster with zero bytes.
func zeroCluster(buf *sector.Buffer, cluster uint16) error {
	var zero [bpb.BytesPerSector]byte
	for s := 0; s < bpb.SectorsPerCluster; s++ {
		secNum := bpb.DataRegionStart + (int(cluster)-bpb.FirstDataCluster)*bpb.SectorsPerCluster + s
		if err := buf.WriteSector(secNum, zero[:]); err != nil {
			return err
		}
	}
	return nil
}

func (c *ChainSource) SlotCount() int { return len(c.clusters) * SlotsPerCluster }

func (c *ChainSource) Get(i int) ([dirent.Size]byte, error) {
	var out [dirent.Size]byte
	clusterIdx, sectorIdx, offsetInSector, err := c.locate(i)
	if err != nil {
		return out, err
	}
	sec, err := c.buf.ReadSector(c.sectorNumber(clusterIdx, sectorIdx))
	if err != nil {
		return out, err
	}
	copy(out[:], sec[offsetInSector:offsetInSector+dirent.Size])
	return out, nil
}

func (c *ChainSource) Set(i int, data [dirent.Size]byte) error {
	clusterIdx, sectorIdx, offsetInSector, err := c.locate(i)
	if err != nil {
		return err
	}
	secNum := c.sectorNumber(clusterIdx, sectorIdx)
	sec, err := c.buf.ReadSector(secNum)
	if err != nil {
		return err
	}
	copy(sec[offsetInSector:offsetInSector+dirent.Size], data[:])
	return c.buf.WriteSector(secNum, sec[:])
}

// Grow appends one cluster to the chain, zero-filling it, and makes its
// slots available.
func (c *ChainSource) Grow() error {
	added, err := c.table.Extend(c.firstCluster, 1)
	if err != nil {
		return err
	}

	newCluster := added[0]
	if err := zeroCluster(c.buf, newCluster); err != nil {
		return err
	}

	c.clusters = append(c.clusters, newCluster)
	return nil
}

func (c *ChainSource) locate(i int) (clusterIdx, sectorIdx, offsetInSector int, err error) {
	if i < 0 || i >= c.SlotCount() {
		return 0, 0, 0, ferrors.ErrOutOfRange.WithMessage("directory slot index out of range")
	}
	slotsPerSector := bpb.BytesPerSector / dirent.Size
	slotsPerClusterGroup := SlotsPerCluster

	clusterIdx = i / slotsPerClusterGroup
	withinCluster := i % slotsPerClusterGroup
	sectorIdx = withinCluster / slotsPerSector
	offsetInSector = (withinCluster % slotsPerSector) * dirent.Size
	return clusterIdx, sectorIdx, offsetInSector, nil
}

func (c *ChainSource) sectorNumber(clusterIdx, sectorIdx int) int {
	cluster := c.clusters[clusterIdx]
	return bpb.DataRegionStart + (int(cluster)-bpb.FirstDataCluster)*bpb.SectorsPerCluster + sectorIdx
}

// Entry pairs a decoded directory entry with the slot index it lives at,
// for callers that need to mutate or remove it afterward.
type Entry struct {
	dirent.Entry
	Slot int
}

// Directory provides name-addressed operations over a Source.
type Directory struct {
	src Source
}

// New wraps a Source with the higher-level directory operations.
func New(src Source) *Directory {
	return &Directory{src: src}
}

// Iter returns every in-use entry in the directory, in slot order, skipping
// deleted and long-name slots and stopping at the first never-used slot.
func (d *Directory) Iter() ([]Entry, error) {
	var out []Entry
	n := d.src.SlotCount()
	for i := 0; i < n; i++ {
		raw, err := d.src.Get(i)
		if err != nil {
			return nil, err
		}
		switch dirent.Inspect(raw) {
		case dirent.SlotFree:
			return out, nil
		case dirent.SlotDeleted, dirent.SlotLongName:
			continue
		}
		entry, err := dirent.Parse(raw)
		if err != nil {
			return nil, ferrors.ErrCorruptDirectory.WrapError(err)
		}
		out = append(out, Entry{Entry: entry, Slot: i})
	}
	return out, nil
}

// Lookup finds an entry by case-insensitive display name.
func (d *Directory) Lookup(name string) (Entry, error) {
	entries, err := d.Iter()
	if err != nil {
		return Entry{}, err
	}
	target := normalizeForCompare(name)
	for _, e := range entries {
		if normalizeForCompare(e.Name) == target {
			return e, nil
		}
	}
	return Entry{}, ferrors.ErrNotFound
}

func normalizeForCompare(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// Insert adds a new entry, failing with ErrExists if the name is already
// present (case-insensitively) or ErrBadName if the name fails 8.3
// validation. The directory grows (if it can) when every existing slot is
// in use.
func (d *Directory) Insert(e dirent.Entry) (int, error) {
	if err := validateEntryName(e.Name, e.Attr); err != nil {
		return -1, err
	}
	if _, err := d.Lookup(e.Name); err == nil {
		return -1, ferrors.ErrExists
	}

	raw, err := e.Serialize()
	if err != nil {
		return -1, err
	}

	slot, err := d.findInsertSlot()
	if err != nil {
		return -1, err
	}
	if err := d.src.Set(slot, raw); err != nil {
		return -1, err
	}
	return slot, nil
}

// findInsertSlot returns the index of a deleted or free slot to reuse,
// growing the directory if none exists and it is able to.
func (d *Directory) findInsertSlot() (int, error) {
	n := d.src.SlotCount()
	for i := 0; i < n; i++ {
		raw, err := d.src.Get(i)
		if err != nil {
			return -1, err
		}
		state := dirent.Inspect(raw)
		if state == dirent.SlotFree || state == dirent.SlotDeleted {
			return i, nil
		}
	}

	if err := d.src.Grow(); err != nil {
		return -1, ferrors.ErrDirFull.WrapError(err)
	}
	return n, nil
}

// Remove marks the entry at slot as deleted.
func (d *Directory) Remove(slot int) error {
	raw, err := d.src.Get(slot)
	if err != nil {
		return err
	}
	raw[0] = 0xE5
	return d.src.Set(slot, raw)
}

// Rename updates the name of the entry at slot in place, validating the new
// name doesn't collide with an existing (different) entry. The entry keeps
// its slot and every other field: this is a single-slot rewrite, not a move.
func (d *Directory) Rename(slot int, newName string) error {
	raw, err := d.src.Get(slot)
	if err != nil {
		return err
	}
	entry, err := dirent.Parse(raw)
	if err != nil {
		return err
	}

	if err := validateEntryName(newName, entry.Attr); err != nil {
		return err
	}
	existing, err := d.Lookup(newName)
	if err == nil && existing.Slot != slot {
		return ferrors.ErrExists
	}

	entry.Name = newName
	newRaw, err := entry.Serialize()
	if err != nil {
		return err
	}
	return d.src.Set(slot, newRaw)
}

// validateEntryName checks a candidate name against the right rules for
// attr: 8.3 base/extension rules for an ordinary entry, or the distinct
// 11-byte label encoding for a volume-label entry.
func validateEntryName(name string, attr uint8) error {
	if attr&dirent.AttrVolumeLabel != 0 {
		_, err := dirent.NormalizeLabel(name)
		return err
	}
	_, _, err := dirent.NormalizeName(name)
	return err
}

// Update overwrites the entry at slot with e's fields, re-serializing it.
// Used by file handles to flush size/timestamp/first-cluster changes back
// to the directory on close.
func (d *Directory) Update(slot int, e dirent.Entry) error {
	raw, err := e.Serialize()
	if err != nil {
		return err
	}
	return d.src.Set(slot, raw)
}

// IsEmpty reports whether a directory holds no entries beyond "." and "..".
func (d *Directory) IsEmpty() (bool, error) {
	entries, err := d.Iter()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name != "." && e.Name != ".." {
			return false, nil
		}
	}
	return true, nil
}
