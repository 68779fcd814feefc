package fat12

import (
	"io"

	"github.com/hisahi/gofat12/internal/sector"
)

// Image is the raw, fixed-size byte image of a floppy disk. It has no
// knowledge of files or directories; Mount decodes one into an FS.
type Image struct {
	buf *sector.Buffer
}

// NewBlankImage returns an all-zero image, not yet formatted with a FAT12
// file system. Most callers want Format instead, which produces a formatted
// FS directly.
func NewBlankImage() *Image {
	return &Image{buf: sector.NewBlank()}
}

// OpenImage reads a complete 1.44 MB image from r.
func OpenImage(r io.Reader) (*Image, error) {
	buf, err := sector.Load(r)
	if err != nil {
		return nil, err
	}
	return &Image{buf: buf}, nil
}

// Save writes the complete image to w.
func (img *Image) Save(w io.Writer) error {
	return img.buf.Save(w)
}
