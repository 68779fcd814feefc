package fat12

import (
	"time"

	"github.com/hisahi/gofat12/internal/dirent"
)

// Entry describes a single file or directory as returned by FS.List and
// FS.Stat, decoupled from the on-disk dirent.Entry so internal packages can
// change without breaking callers.
type Entry struct {
	Name         string
	IsDir        bool
	IsReadOnly   bool
	IsHidden     bool
	IsSystem     bool
	Size         int64
	CreatedAt    time.Time
	ModifiedAt   time.Time
	AccessedAt   time.Time
}

func entryFromDirent(e dirent.Entry) Entry {
	return Entry{
		Name:       e.Name,
		IsDir:      e.IsDir(),
		IsReadOnly: e.IsReadOnly(),
		IsHidden:   e.Attr&dirent.AttrHidden != 0,
		IsSystem:   e.Attr&dirent.AttrSystem != 0,
		Size:       int64(e.Size),
		CreatedAt:  e.CreatedAt,
		ModifiedAt: e.ModifiedAt,
		AccessedAt: e.AccessedAt,
	}
}
