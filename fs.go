// Package fat12 implements a library for reading, writing, and formatting
// 1.44 MB FAT12 floppy disk images.
package fat12

import (
	"io"

	"github.com/hisahi/gofat12/internal/bpb"
	"github.com/hisahi/gofat12/internal/check"
	"github.com/hisahi/gofat12/internal/dirent"
	"github.com/hisahi/gofat12/internal/directory"
	"github.com/hisahi/gofat12/internal/fat"
	"github.com/hisahi/gofat12/internal/filehandle"
	"github.com/hisahi/gofat12/internal/format"
	"github.com/hisahi/gofat12/internal/pathresolver"

	ferrors "github.com/hisahi/gofat12/errors"
)

// FS is a mounted FAT12 file system: a decoded boot sector and FAT sitting
// on top of an Image, plus the directory tree built from it.
type FS struct {
	img      *Image
	table    *fat.Table
	boot     *bpb.BootSector
	root     *directory.Directory
	resolver *pathresolver.Resolver
	clock    Clock
}

func newFS(img *Image, table *fat.Table, boot *bpb.BootSector, clock Clock) *FS {
	root := directory.New(directory.NewRootSource(img.buf))
	fs := &FS{img: img, table: table, boot: boot, root: root, clock: clock}
	fs.resolver = pathresolver.New(root, fs.openChild)
	return fs
}

func (fs *FS) openChild(cluster uint16) (*directory.Directory, error) {
	return directory.OpenChainDirectory(fs.img.buf, fs.table, cluster)
}

// flushFAT re-serializes the in-memory FAT table onto both on-disk copies.
// Every operation that mutates the table calls this before returning so the
// backing Image stays self-consistent between calls.
func (fs *FS) flushFAT() error {
	fat1, fat2 := fs.table.Serialize()
	for i := 0; i < bpb.SectorsPerFAT; i++ {
		off := i * bpb.BytesPerSector
		if err := fs.img.buf.WriteSector(bpb.FAT1Start+i, fat1[off:off+bpb.BytesPerSector]); err != nil {
			return err
		}
		if err := fs.img.buf.WriteSector(bpb.FAT2Start+i, fat2[off:off+bpb.BytesPerSector]); err != nil {
			return err
		}
	}
	return nil
}

// FormatOption configures Format.
type FormatOption func(*formatConfig)

type formatConfig struct {
	serial uint32
	label  string
	clock  Clock
}

// WithVolumeSerial sets the volume serial number written to the boot
// sector. The zero value is a valid serial. Without this option, Format
// derives the serial from DefaultClock's current Unix time.
func WithVolumeSerial(serial uint32) FormatOption {
	return func(c *formatConfig) { c.serial = serial }
}

// WithVolumeLabel writes a volume label entry into the root directory.
func WithVolumeLabel(label string) FormatOption {
	return func(c *formatConfig) { c.label = label }
}

// WithClock overrides the Clock used for directory-entry timestamps.
func WithClock(clock Clock) FormatOption {
	return func(c *formatConfig) { c.clock = clock }
}

// Format builds a freshly formatted FS: a blank boot sector, blank mirrored
// FAT1/FAT2, and a blank root directory (plus an optional label entry).
func Format(opts ...FormatOption) (*FS, error) {
	cfg := formatConfig{clock: DefaultClock, serial: uint32(DefaultClock.Now().Unix())}
	for _, opt := range opts {
		opt(&cfg)
	}

	result, err := format.Apply(format.Options{
		VolumeSerial: cfg.serial,
		VolumeLabel:  cfg.label,
		Now:          cfg.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	return newFS(&Image{buf: result.Buffer}, result.Table, result.Boot, cfg.clock), nil
}

// MountOption configures Mount.
type MountOption func(*mountConfig)

type mountConfig struct {
	clock Clock
}

// WithMountClock overrides the Clock used for directory-entry timestamps
// produced by operations on the mounted FS.
func WithMountClock(clock Clock) MountOption {
	return func(c *mountConfig) { c.clock = clock }
}

// Mount decodes an Image's boot sector and FAT, returning a usable FS. If
// the two FAT copies disagree, FAT1 is treated as authoritative; see
// DESIGN.md for the rationale.
func Mount(img *Image, opts ...MountOption) (*FS, error) {
	cfg := mountConfig{clock: DefaultClock}
	for _, opt := range opts {
		opt(&cfg)
	}

	sec0, err := img.buf.ReadSector(0)
	if err != nil {
		return nil, err
	}
	boot, err := bpb.Parse(sec0)
	if err != nil {
		return nil, err
	}

	var fat1, fat2 [fat.SizeBytes]byte
	for i := 0; i < bpb.SectorsPerFAT; i++ {
		s1, err := img.buf.ReadSector(bpb.FAT1Start + i)
		if err != nil {
			return nil, err
		}
		s2, err := img.buf.ReadSector(bpb.FAT2Start + i)
		if err != nil {
			return nil, err
		}
		copy(fat1[i*bpb.BytesPerSector:], s1[:])
		copy(fat2[i*bpb.BytesPerSector:], s2[:])
	}
	table := fat.Load(fat1, fat2)

	return newFS(img, table, boot, cfg.clock), nil
}

// Image returns the underlying raw disk image.
func (fs *FS) Image() *Image { return fs.img }

// VolumeSerial returns the volume serial number from the boot sector.
func (fs *FS) VolumeSerial() uint32 { return fs.boot.VolumeSerial }

// List returns every entry in the directory at path, excluding "." and ".."
// and the volume label entry.
func (fs *FS) List(path string) ([]Entry, error) {
	dir, err := fs.resolver.ResolveDirectory(path)
	if err != nil {
		return nil, err
	}
	entries, err := dir.Iter()
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." || e.IsVolumeLabel() {
			continue
		}
		out = append(out, entryFromDirent(e.Entry))
	}
	return out, nil
}

// Stat returns metadata for the file or directory at path.
func (fs *FS) Stat(path string) (Entry, error) {
	entry, _, err := fs.resolver.Resolve(path)
	if err != nil {
		return Entry{}, err
	}
	return entryFromDirent(entry.Entry), nil
}

// ReadFile returns the complete contents of the file at path.
func (fs *FS) ReadFile(path string) ([]byte, error) {
	entry, dir, err := fs.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, ferrors.ErrIsADirectory
	}

	h, err := filehandle.Open(fs.img.buf, fs.table, dir, entry.Slot, entry.Entry, fs.clock)
	if err != nil {
		return nil, err
	}

	data := make([]byte, entry.Size)
	if _, err := io.ReadFull(h, data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFile creates or overwrites the file at path with data.
func (fs *FS) WriteFile(path string, data []byte) error {
	parentDir, name, err := fs.resolver.ResolveParent(path)
	if err != nil {
		return err
	}

	existing, lookupErr := parentDir.Lookup(name)
	if lookupErr != nil {
		now := fs.clock.Now()
		if _, err := parentDir.Insert(dirent.Entry{
			Name: name, Attr: dirent.AttrArchive,
			CreatedAt: now, ModifiedAt: now, AccessedAt: now,
		}); err != nil {
			return err
		}
		existing, err = parentDir.Lookup(name)
		if err != nil {
			return err
		}
	} else if existing.IsDir() {
		return ferrors.ErrIsADirectory
	}

	h, err := filehandle.Open(fs.img.buf, fs.table, parentDir, existing.Slot, existing.Entry, fs.clock)
	if err != nil {
		return err
	}
	if err := h.Truncate(0); err != nil {
		return err
	}
	if _, err := h.Write(data); err != nil {
		return err
	}
	if err := h.Close(); err != nil {
		return err
	}
	return fs.flushFAT()
}

// Delete removes the file at path. It fails with ErrIsADirectory if path
// names a directory; use Rmdir for those.
func (fs *FS) Delete(path string) error {
	entry, dir, err := fs.resolver.Resolve(path)
	if err != nil {
		return err
	}
	if entry.IsDir() {
		return ferrors.ErrIsADirectory
	}

	if err := dir.Remove(entry.Slot); err != nil {
		return err
	}
	if entry.FirstCluster != 0 {
		if err := fs.table.FreeChain(entry.FirstCluster); err != nil {
			return err
		}
	}
	return fs.flushFAT()
}

// Mkdir creates a new, empty directory at path, with "." and ".." entries
// wired to itself and its parent.
func (fs *FS) Mkdir(path string) error {
	parentDir, parentCluster, name, err := fs.resolver.ResolveParentCluster(path)
	if err != nil {
		return err
	}
	if _, err := parentDir.Lookup(name); err == nil {
		return ferrors.ErrExists
	}

	newCluster, err := fs.table.AllocOne()
	if err != nil {
		return err
	}

	childSrc, err := directory.NewBlankChainSource(fs.img.buf, fs.table, newCluster)
	if err != nil {
		return err
	}
	child := directory.New(childSrc)

	now := fs.clock.Now()
	if _, err := child.Insert(dirent.Entry{
		Name: ".", Attr: dirent.AttrDirectory, FirstCluster: newCluster,
		CreatedAt: now, ModifiedAt: now, AccessedAt: now,
	}); err != nil {
		return err
	}
	if _, err := child.Insert(dirent.Entry{
		Name: "..", Attr: dirent.AttrDirectory, FirstCluster: parentCluster,
		CreatedAt: now, ModifiedAt: now, AccessedAt: now,
	}); err != nil {
		return err
	}

	if _, err := parentDir.Insert(dirent.Entry{
		Name: name, Attr: dirent.AttrDirectory, FirstCluster: newCluster,
		CreatedAt: now, ModifiedAt: now, AccessedAt: now,
	}); err != nil {
		return err
	}

	return fs.flushFAT()
}

// Rmdir removes the empty directory at path. It fails with ErrDirNotEmpty
// if the directory contains anything besides "." and "..".
func (fs *FS) Rmdir(path string) error {
	entry, parentDir, err := fs.resolver.Resolve(path)
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return ferrors.ErrNotADirectory
	}
	if entry.Name == "." || entry.Name == ".." {
		return ferrors.ErrBadName.WithMessage("cannot remove \".\" or \"..\"")
	}

	child, err := fs.openChild(entry.FirstCluster)
	if err != nil {
		return err
	}
	empty, err := child.IsEmpty()
	if err != nil {
		return err
	}
	if !empty {
		return ferrors.ErrDirNotEmpty
	}

	if err := parentDir.Remove(entry.Slot); err != nil {
		return err
	}
	if err := fs.table.FreeChain(entry.FirstCluster); err != nil {
		return err
	}
	return fs.flushFAT()
}

// Rename moves or renames the file or directory at oldPath to newPath.
// Both paths must resolve within the same volume; cross-directory renames
// are supported. A rename that stays within one directory rewrites the
// existing slot in place rather than moving it, per spec.md section 4.5.
func (fs *FS) Rename(oldPath, newPath string) error {
	oldParent, oldParentCluster, oldName, err := fs.resolver.ResolveParentCluster(oldPath)
	if err != nil {
		return err
	}
	entry, err := oldParent.Lookup(oldName)
	if err != nil {
		return err
	}

	newParent, newParentCluster, newName, err := fs.resolver.ResolveParentCluster(newPath)
	if err != nil {
		return err
	}

	if oldParentCluster == newParentCluster {
		return oldParent.Rename(entry.Slot, newName)
	}

	if _, err := newParent.Lookup(newName); err == nil {
		return ferrors.ErrExists
	}

	moved := entry.Entry
	moved.Name = newName
	if _, err := newParent.Insert(moved); err != nil {
		return err
	}

	if moved.IsDir() {
		child, err := fs.openChild(moved.FirstCluster)
		if err != nil {
			return err
		}
		if dotdot, err := child.Lookup(".."); err == nil {
			dotdot.FirstCluster = newParentCluster
			if err := child.Update(dotdot.Slot, dotdot.Entry); err != nil {
				return err
			}
		}
	}

	if err := oldParent.Remove(entry.Slot); err != nil {
		return err
	}
	return fs.flushFAT()
}

// Label returns the volume label, or "" if none is set.
func (fs *FS) Label() string {
	entries, err := fs.root.Iter()
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsVolumeLabel() {
			return e.Name
		}
	}
	return ""
}

// SetLabel replaces the volume label. An empty label removes it.
func (fs *FS) SetLabel(label string) error {
	entries, err := fs.root.Iter()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsVolumeLabel() {
			if label == "" {
				return fs.root.Remove(e.Slot)
			}
			return fs.root.Rename(e.Slot, label)
		}
	}

	if label == "" {
		return nil
	}
	now := fs.clock.Now()
	_, err = fs.root.Insert(dirent.Entry{
		Name: label, Attr: dirent.AttrVolumeLabel,
		CreatedAt: now, ModifiedAt: now, AccessedAt: now,
	})
	return err
}

// Check runs the non-destructive consistency checker over the whole volume
// and returns every issue found, aggregated, or nil if the volume is clean.
func (fs *FS) Check() error {
	report := check.Run(fs.img.buf, fs.table, fs.root, fs.openChild)
	return report.Err()
}
