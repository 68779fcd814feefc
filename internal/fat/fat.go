// Package fat implements the 12-bit packed File Allocation Table: entry
// get/set, cluster-chain walking, allocation, truncation, and extension, plus
// the dual FAT1/FAT2 mirroring described in spec.md section 4.3.
package fat

import (
	"github.com/boljen/go-bitmap"

	"github.com/hisahi/gofat12/internal/bpb"

	ferrors "github.com/hisahi/gofat12/errors"
	"github.com/hisahi/gofat12/internal/diag"
)

// SizeBytes is the on-disk size in bytes of a single FAT copy (9 sectors of
// 512 bytes each).
const SizeBytes = bpb.SectorsPerFAT * bpb.BytesPerSector

// TotalClusters is the number of addressable data clusters, clusters 2
// through TotalClusters+1.
const TotalClusters = bpb.TotalClusters

const (
	entryFree     = 0x000
	entryBad      = 0xFF7
	entryEOC      = 0xFFF // value written when allocating/terminating a chain
	entryEOCFloor = 0xFF8 // any value >= this marks end-of-chain
	maxChainWalk  = TotalClusters + 2
)

// Table is the in-memory, decoded form of both FAT copies. FAT1 is
// authoritative; FAT2 is kept byte-identical to it on every mutation, the way
// spec.md section 4.3 requires.
type Table struct {
	entries []uint16 // index by cluster number, entries[0] and entries[1] are reserved
	free    bitmap.Bitmap
}

// New builds a blank table sized for a freshly formatted volume. Entry 0
// encodes the media descriptor in its low byte (0xF00 | media, per common
// FAT convention); entry 1 is a fixed EOC marker. Both are never allocatable.
func New(mediaDescriptor byte) *Table {
	t := &Table{
		entries: make([]uint16, TotalClusters+2),
		free:    bitmap.NewSlice(TotalClusters + 2),
	}
	t.entries[0] = 0xF00 | uint16(mediaDescriptor)
	t.entries[1] = 0xFFF
	t.free.Set(0, false)
	t.free.Set(1, false)
	for c := 2; c < len(t.entries); c++ {
		t.free.Set(c, true)
	}
	return t
}

// Load decodes a Table from the two on-disk FAT copies. If the copies
// disagree, FAT1 is treated as authoritative, a diagnostic is logged, and the
// returned table (when later saved) will re-mirror FAT1 onto FAT2 -- the
// resolution spec.md leaves open in section 9 decided in DESIGN.md.
func Load(fat1, fat2 [SizeBytes]byte) *Table {
	t := &Table{
		entries: make([]uint16, TotalClusters+2),
		free:    bitmap.NewSlice(TotalClusters + 2),
	}
	for c := 0; c < len(t.entries); c++ {
		t.entries[c] = getPacked(fat1[:], uint32(c))
	}

	if fat1 != fat2 {
		diag.Warnf("FAT1 and FAT2 differ; FAT1 is authoritative, re-mirroring onto FAT2")
	}

	for c := 2; c < len(t.entries); c++ {
		t.free.Set(c, t.entries[c] == entryFree)
	}
	return t
}

// Serialize re-encodes the table into its two on-disk FAT copies. Both
// copies are always written identically.
func (t *Table) Serialize() (fat1, fat2 [SizeBytes]byte) {
	var buf [SizeBytes]byte
	for c := 0; c < len(t.entries); c++ {
		setPacked(buf[:], uint32(c), t.entries[c])
	}
	return buf, buf
}

// Get returns the raw 12-bit entry for the given cluster number. Entries 0
// and 1 are reserved (media descriptor and fixed EOC marker) but still
// readable; use checkAddressable, not this check, to reject them as chain
// links.
func (t *Table) Get(cluster uint16) (uint16, error) {
	if int(cluster) >= len(t.entries) {
		return 0, ferrors.ErrBadCluster.WithMessage("cluster number out of range")
	}
	return t.entries[cluster], nil
}

func (t *Table) set(cluster uint16, value uint16) {
	t.entries[cluster] = value
	t.free.Set(int(cluster), value == entryFree)
}

// IsFree reports whether a cluster is unallocated.
func (t *Table) IsFree(cluster uint16) bool {
	return int(cluster) < len(t.entries) && t.entries[cluster] == entryFree
}

// IsEOC reports whether a raw entry value marks the end of a cluster chain.
func IsEOC(value uint16) bool { return value >= entryEOCFloor }

// IsBad reports whether a raw entry value marks a bad cluster.
func IsBad(value uint16) bool { return value == entryBad }

func (t *Table) checkAddressable(cluster uint16) error {
	if cluster < bpb.FirstDataCluster || int(cluster) >= len(t.entries) {
		return ferrors.ErrBadCluster.WithMessage("cluster out of addressable range")
	}
	return nil
}

// Walk returns every cluster in the chain starting at start, in order,
// stopping at (but not including) the end-of-chain marker. It fails with
// ErrBadChain if the chain runs into a free, bad, or out-of-range cluster
// before reaching EOC, or exceeds the maximum possible chain length (a cycle).
func (t *Table) Walk(start uint16) ([]uint16, error) {
	if err := t.checkAddressable(start); err != nil {
		return nil, err
	}

	chain := make([]uint16, 0, 16)
	current := start
	for i := 0; i < maxChainWalk; i++ {
		if IsBad(t.entries[current]) {
			return nil, ferrors.ErrBadChain.WithMessage("chain references a bad cluster")
		}
		if t.entries[current] == entryFree {
			return nil, ferrors.ErrBadChain.WithMessage("chain references a free cluster")
		}
		chain = append(chain, current)

		next := t.entries[current]
		if IsEOC(next) {
			return chain, nil
		}
		if err := t.checkAddressable(next); err != nil {
			return nil, ferrors.ErrBadChain.WrapError(err)
		}
		current = next
	}
	return nil, ferrors.ErrBadChain.WithMessage("cluster chain exceeds volume capacity (cycle?)")
}

// AllocOne allocates a single free cluster, marks it end-of-chain, and
// returns its number.
func (t *Table) AllocOne() (uint16, error) {
	clusters, err := t.AllocChain(1)
	if err != nil {
		return 0, err
	}
	return clusters[0], nil
}

// AllocChain allocates the n lowest-numbered free clusters (first fit; they
// need not be contiguous), links them into a chain terminated by EOC,
// and returns their numbers in chain order. If fewer than n clusters are
// free, no mutation occurs and ErrNoSpace is returned.
func (t *Table) AllocChain(n int) ([]uint16, error) {
	if n <= 0 {
		return nil, nil
	}

	found := make([]uint16, 0, n)
	for c := bpb.FirstDataCluster; c < len(t.entries) && len(found) < n; c++ {
		if t.free.Get(c) {
			found = append(found, uint16(c))
		}
	}
	if len(found) < n {
		return nil, ferrors.ErrNoSpace.WithMessage("not enough free clusters")
	}

	for i, cluster := range found {
		if i == len(found)-1 {
			t.set(cluster, entryEOC)
		} else {
			t.set(cluster, found[i+1])
		}
	}
	return found, nil
}

// FreeChain releases every cluster in the chain starting at start.
func (t *Table) FreeChain(start uint16) error {
	chain, err := t.Walk(start)
	if err != nil {
		return err
	}
	for _, cluster := range chain {
		t.set(cluster, entryFree)
	}
	return nil
}

// Truncate shortens the chain starting at start to exactly keepClusters
// clusters, freeing everything past that point. keepClusters must be >= 1;
// to free an entire chain use FreeChain instead.
func (t *Table) Truncate(start uint16, keepClusters int) error {
	chain, err := t.Walk(start)
	if err != nil {
		return err
	}
	if keepClusters <= 0 || keepClusters > len(chain) {
		return ferrors.ErrBadChain.WithMessage("truncate length out of range for chain")
	}

	for _, cluster := range chain[keepClusters:] {
		t.set(cluster, entryFree)
	}
	if keepClusters < len(chain) {
		t.set(chain[keepClusters-1], entryEOC)
	}
	return nil
}

// Extend appends addClusters new clusters to the end of the chain starting
// at start and returns the newly allocated cluster numbers. The table is
// left unmodified if there isn't enough free space.
func (t *Table) Extend(start uint16, addClusters int) ([]uint16, error) {
	chain, err := t.Walk(start)
	if err != nil {
		return nil, err
	}

	added, err := t.AllocChain(addClusters)
	if err != nil {
		return nil, err
	}

	t.set(chain[len(chain)-1], added[0])
	return added, nil
}

// FreeCount returns the number of unallocated data clusters.
func (t *Table) FreeCount() int {
	count := 0
	for c := bpb.FirstDataCluster; c < len(t.entries); c++ {
		if t.free.Get(c) {
			count++
		}
	}
	return count
}

// getPacked reads the 12-bit entry for the given index from a packed FAT12
// byte slice: even indices take the low 8 bits of byte[i] plus the low
// nibble of byte[i+1]; odd indices take the high nibble of byte[i] plus all
// of byte[i+1], following the classic FAT12 packing rule.
func getPacked(b []byte, index uint32) uint16 {
	bytePos := (index * 3) / 2
	if int(bytePos)+1 >= len(b) {
		return 0
	}
	if index%2 == 0 {
		return uint16(b[bytePos]) | ((uint16(b[bytePos+1]) & 0x0F) << 8)
	}
	return uint16(b[bytePos]>>4) | (uint16(b[bytePos+1]) << 4)
}

// setPacked writes a 12-bit entry into a packed FAT12 byte slice, preserving
// the neighboring nibble it shares a byte with.
func setPacked(b []byte, index uint32, value uint16) {
	bytePos := (index * 3) / 2
	if int(bytePos)+1 >= len(b) {
		return
	}
	if index%2 == 0 {
		b[bytePos] = byte(value & 0xFF)
		b[bytePos+1] = (b[bytePos+1] & 0xF0) | byte((value>>8)&0x0F)
	} else {
		b[bytePos] = (b[bytePos] & 0x0F) | byte((value&0x0F)<<4)
		b[bytePos+1] = byte(value >> 4)
	}
}
