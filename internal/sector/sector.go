// Package sector implements the fixed-size, sector-addressed byte image that
// every other gofat12 component reads and writes through. It has no notion
// of FAT entries, directories, or files; it only knows about 512-byte
// sectors and bounds checking, the way the teacher's blockcache package
// knows only about blocks.
package sector

import (
	"io"

	"github.com/xaionaro-go/bytesextra"

	ferrors "github.com/hisahi/gofat12/errors"
)

// BytesPerSector is fixed by spec.md's geometry table; this library supports
// exactly one floppy geometry.
const BytesPerSector = 512

// TotalSectors is the sector count of a 1.44 MB (3.5", HD) floppy image.
const TotalSectors = 2880

// ImageSize is the exact byte length of a valid FAT12 floppy image.
const ImageSize = BytesPerSector * TotalSectors

// Buffer is a fixed 1,474,560-byte mutable array addressed as 2,880 logical
// sectors of 512 bytes each.
type Buffer struct {
	data [ImageSize]byte
}

// NewBlank returns a Buffer filled with zero bytes.
func NewBlank() *Buffer {
	return &Buffer{}
}

// Load reads exactly ImageSize bytes from r into a fresh Buffer. It fails
// with ErrBadImage if r does not contain exactly that many bytes.
func Load(r io.Reader) (*Buffer, error) {
	buf := &Buffer{}
	n, err := io.ReadFull(r, buf.data[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if n != ImageSize {
		return nil, ferrors.ErrBadImage.WithMessage(
			"image must be exactly 1,474,560 bytes")
	}

	// A short trailing read is only acceptable if there's truly nothing left;
	// otherwise the source is longer than a floppy image and is just as bad
	// as one that's too short.
	var probe [1]byte
	if extra, _ := r.Read(probe[:]); extra != 0 {
		return nil, ferrors.ErrBadImage.WithMessage(
			"image is larger than 1,474,560 bytes")
	}

	return buf, nil
}

// Save writes the entire buffer to w in one pass, via bytesextra's
// []byte-to-io.ReadWriteSeeker adapter -- the same wiring the teacher's
// blockcache.WrapSlice uses to give a raw slice the io.ReadWriteSeeker shape
// needed for generic io.Copy.
func (b *Buffer) Save(w io.Writer) error {
	stream := bytesextra.NewReadWriteSeeker(b.data[:])
	_, err := io.Copy(w, stream)
	return err
}

// Slice returns a direct, mutable view of sectorCount sectors starting at
// startSector, the way the teacher's BlockDevice.GetSlice hands a sequential
// writer like bytewriter a window of the backing array to fill in one pass.
func (b *Buffer) Slice(startSector, sectorCount int) ([]byte, error) {
	if startSector < 0 || sectorCount < 0 || startSector+sectorCount > TotalSectors {
		return nil, ferrors.ErrOutOfRange.WithMessage("sector window out of range")
	}
	start := startSector * BytesPerSector
	end := start + sectorCount*BytesPerSector
	return b.data[start:end], nil
}

// ReadSector returns a copy of the n'th 512-byte sector.
func (b *Buffer) ReadSector(n int) ([BytesPerSector]byte, error) {
	var out [BytesPerSector]byte
	if n < 0 || n >= TotalSectors {
		return out, ferrors.ErrOutOfRange.WithMessage(
			"sector index out of range [0, 2880)")
	}
	copy(out[:], b.data[n*BytesPerSector:(n+1)*BytesPerSector])
	return out, nil
}

// WriteSector overwrites the n'th 512-byte sector with the contents of buf,
// which must be exactly BytesPerSector bytes long.
func (b *Buffer) WriteSector(n int, buf []byte) error {
	if n < 0 || n >= TotalSectors {
		return ferrors.ErrOutOfRange.WithMessage(
			"sector index out of range [0, 2880)")
	}
	if len(buf) != BytesPerSector {
		return ferrors.ErrBadSize.WithMessage(
			"sector writes must be exactly 512 bytes")
	}
	copy(b.data[n*BytesPerSector:(n+1)*BytesPerSector], buf)
	return nil
}

// ReadAt implements io.ReaderAt directly against the raw image, for callers
// that want to address several contiguous sectors at once instead of one at
// a time.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= ImageSize {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt against the raw image.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > ImageSize {
		return 0, ferrors.ErrOutOfRange.WithMessage("write exceeds image bounds")
	}
	return copy(b.data[off:], p), nil
}
