// Package filehandle implements positioned, growable reads and writes over
// a file's cluster chain, the way the teacher's basicstream package wraps a
// block cache with io.Reader/io.Writer/io.Seeker semantics, adapted to
// allocate clusters lazily, only as many as a write needs, and to flush
// size/timestamp changes back to the owning directory entry on Close. See spec.md section 4.7.
package filehandle

import (
	"io"
	"time"

	"github.com/hisahi/gofat12/internal/bpb"
	"github.com/hisahi/gofat12/internal/dirent"
	"github.com/hisahi/gofat12/internal/directory"
	"github.com/hisahi/gofat12/internal/fat"
	"github.com/hisahi/gofat12/internal/sector"

	ferrors "github.com/hisahi/gofat12/errors"
)

const bytesPerCluster = bpb.SectorsPerCluster * bpb.BytesPerSector

// Clock supplies the current time for timestamping writes. Production code
// uses a wall-clock implementation; tests inject a fixed one for
// determinism, per spec.md section 9's testability requirement.
type Clock interface {
	Now() time.Time
}

// Handle is an open, positioned view of a file's contents.
type Handle struct {
	buf     *sector.Buffer
	table   *fat.Table
	dir     *directory.Directory
	slot    int
	entry   dirent.Entry
	clock   Clock
	pos     int64
	valid   bool
	clusters []uint16
}

// Open creates a Handle over the file described by entry, which lives at
// slot in dir.
func Open(buf *sector.Buffer, table *fat.Table, dir *directory.Directory, slot int, entry dirent.Entry, clock Clock) (*Handle, error) {
	var clusters []uint16
	if entry.FirstCluster != 0 {
		chain, err := table.Walk(entry.FirstCluster)
		if err != nil {
			return nil, err
		}
		clusters = chain
	}
	return &Handle{buf: buf, table: table, dir: dir, slot: slot, entry: entry, clock: clock, clusters: clusters, valid: true}, nil
}

func (h *Handle) checkValid() error {
	if !h.valid {
		return ferrors.ErrInvalidated
	}
	return nil
}

// Size returns the current file size in bytes.
func (h *Handle) Size() int64 { return int64(h.entry.Size) }

// Seek repositions the handle, per io.Seeker.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	if err := h.checkValid(); err != nil {
		return 0, err
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = h.pos + offset
	case io.SeekEnd:
		abs = h.Size() + offset
	default:
		return h.pos, ferrors.ErrBadSize.WithMessage("invalid seek whence")
	}
	if abs < 0 {
		return h.pos, ferrors.ErrBadSize.WithMessage("seek would go negative")
	}
	h.pos = abs
	return abs, nil
}

// Read implements io.Reader.
func (h *Handle) Read(p []byte) (int, error) {
	n, err := h.ReadAt(p, h.pos)
	h.pos += int64(n)
	return n, err
}

// ReadAt implements io.ReaderAt over the file's cluster chain.
func (h *Handle) ReadAt(p []byte, offset int64) (int, error) {
	if err := h.checkValid(); err != nil {
		return 0, err
	}
	if offset >= h.Size() {
		return 0, io.EOF
	}

	toRead := int64(len(p))
	if offset+toRead > h.Size() {
		toRead = h.Size() - offset
	}

	var read int64
	for read < toRead {
		clusterIdx := int((offset + read) / bytesPerCluster)
		clusterOffset := int((offset + read) % bytesPerCluster)
		if clusterIdx >= len(h.clusters) {
			break
		}

		secNum := clusterSector(h.clusters[clusterIdx], clusterOffset/bpb.BytesPerSector)
		sec, err := h.buf.ReadSector(secNum)
		if err != nil {
			return int(read), err
		}

		withinSector := clusterOffset % bpb.BytesPerSector
		n := copy(p[read:toRead], sec[withinSector:])
		read += int64(n)
	}

	if read < toRead {
		return int(read), io.EOF
	}
	if toRead < int64(len(p)) {
		return int(read), io.EOF
	}
	return int(read), nil
}

// Write implements io.Writer, growing the cluster chain as needed.
func (h *Handle) Write(p []byte) (int, error) {
	n, err := h.WriteAt(p, h.pos)
	h.pos += int64(n)
	return n, err
}

// WriteAt implements io.WriterAt, growing the cluster chain as needed and
// failing with ErrNoSpace if the write would exceed the maximum file size.
func (h *Handle) WriteAt(p []byte, offset int64) (int, error) {
	if err := h.checkValid(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, ferrors.ErrBadSize
	}

	if len(p) == 0 {
		return 0, nil
	}

	end := offset + int64(len(p))
	if end > bpb.MaxFileSizeInBytes {
		return 0, ferrors.ErrNoSpace.WithMessage("write would exceed maximum file size")
	}

	if err := h.ensureCapacity(end); err != nil {
		return 0, err
	}

	var written int64
	for written < int64(len(p)) {
		absOffset := offset + written
		clusterIdx := int(absOffset / bytesPerCluster)
		clusterOffset := int(absOffset % bytesPerCluster)

		secNum := clusterSector(h.clusters[clusterIdx], clusterOffset/bpb.BytesPerSector)
		sec, err := h.buf.ReadSector(secNum)
		if err != nil {
			return int(written), err
		}

		withinSector := clusterOffset % bpb.BytesPerSector
		n := copy(sec[withinSector:], p[written:])
		if err := h.buf.WriteSector(secNum, sec[:]); err != nil {
			return int(written), err
		}
		written += int64(n)
	}

	if end > int64(h.entry.Size) {
		h.entry.Size = uint32(end)
	}
	return int(written), nil
}

// ensureCapacity grows the cluster chain, allocating a first cluster if the
// file was previously empty, until it can hold at least size bytes.
func (h *Handle) ensureCapacity(size int64) error {
	neededClusters := int((size + bytesPerCluster - 1) / bytesPerCluster)
	if neededClusters == 0 {
		neededClusters = 1
	}

	if len(h.clusters) == 0 {
		first, err := h.table.AllocOne()
		if err != nil {
			return err
		}
		h.clusters = []uint16{first}
		h.entry.FirstCluster = first
	}

	if neededClusters <= len(h.clusters) {
		return nil
	}

	added, err := h.table.Extend(h.clusters[0], neededClusters-len(h.clusters))
	if err != nil {
		return err
	}
	h.clusters = append(h.clusters, added...)
	return nil
}

// Truncate resizes the file to size bytes, freeing clusters beyond the new
// end or leaving them allocated-but-unused is never done: spec.md requires
// clusters past the new size to be released immediately.
func (h *Handle) Truncate(size int64) error {
	if err := h.checkValid(); err != nil {
		return err
	}
	if size < 0 || size > bpb.MaxFileSizeInBytes {
		return ferrors.ErrBadSize
	}

	neededClusters := int((size + bytesPerCluster - 1) / bytesPerCluster)

	if size == 0 {
		if len(h.clusters) > 0 {
			if err := h.table.FreeChain(h.clusters[0]); err != nil {
				return err
			}
		}
		h.clusters = nil
		h.entry.FirstCluster = 0
	} else if neededClusters < len(h.clusters) {
		if err := h.table.Truncate(h.clusters[0], neededClusters); err != nil {
			return err
		}
		h.clusters = h.clusters[:neededClusters]
	} else if neededClusters > len(h.clusters) {
		if err := h.ensureCapacity(size); err != nil {
			return err
		}
	}

	h.entry.Size = uint32(size)
	if h.pos > size {
		h.pos = size
	}
	return nil
}

// Close flushes the handle's size, first cluster, and modification
// timestamp back to its directory entry. The handle must not be used
// afterward.
func (h *Handle) Close() error {
	if err := h.checkValid(); err != nil {
		return err
	}
	now := h.clock.Now()
	h.entry.ModifiedAt = now
	h.entry.AccessedAt = now

	if err := h.dir.Update(h.slot, h.entry); err != nil {
		return err
	}
	h.valid = false
	return nil
}

func clusterSector(cluster uint16, sectorWithinCluster int) int {
	return bpb.DataRegionStart + (int(cluster)-bpb.FirstDataCluster)*bpb.SectorsPerCluster + sectorWithinCluster
}
