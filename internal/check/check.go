// Package check implements non-destructive, non-fatal consistency checking
// over a decoded image: FAT1/FAT2 parity, opening every subdirectory (which
// walks its cluster chain and checks its "." and ".." entries), and
// duplicate-name detection. File cluster chains are not walked, and
// cross-linked or unreachable clusters are not detected. It is new relative
// to the teacher, filling the
// "basic consistency checks" allowance and the CorruptFAT scenario of
// spec.md section 8; see SPEC_FULL.md section 12.
package check

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/hisahi/gofat12/internal/bpb"
	"github.com/hisahi/gofat12/internal/directory"
	"github.com/hisahi/gofat12/internal/fat"
	"github.com/hisahi/gofat12/internal/sector"

	ferrors "github.com/hisahi/gofat12/errors"
	"github.com/hisahi/gofat12/internal/diag"
)

// Report aggregates every consistency issue found. A nil Report (or one for
// which Report.Err() returns nil) means the image is clean.
type Report struct {
	Issues *multierror.Error
}

// Err returns nil if no issues were found, otherwise the aggregated error.
func (r *Report) Err() error {
	if r == nil || r.Issues == nil || len(r.Issues.Errors) == 0 {
		return nil
	}
	return r.Issues
}

// Run walks the FAT and the full directory tree, recording every
// inconsistency it finds rather than stopping at the first one. openChild
// opens a subdirectory's Directory given its first cluster, mirroring the
// resolver's.
func Run(buf *sector.Buffer, table *fat.Table, root *directory.Directory, openChild func(uint16) (*directory.Directory, error)) *Report {
	report := &Report{}

	checkFATParity(buf, report)
	checkDirectoryTree(root, openChild, "/", report, map[uint16]bool{})

	return report
}

func checkFATParity(buf *sector.Buffer, report *Report) {
	var fat1, fat2 [fat.SizeBytes]byte
	for i := 0; i < bpb.SectorsPerFAT; i++ {
		s1, err := buf.ReadSector(bpb.FAT1Start + i)
		if err != nil {
			report.Issues = multierror.Append(report.Issues, err)
			return
		}
		s2, err := buf.ReadSector(bpb.FAT2Start + i)
		if err != nil {
			report.Issues = multierror.Append(report.Issues, err)
			return
		}
		copy(fat1[i*bpb.BytesPerSector:], s1[:])
		copy(fat2[i*bpb.BytesPerSector:], s2[:])
	}

	if fat1 != fat2 {
		diag.Warnf("FAT1 and FAT2 differ byte-for-byte")
		report.Issues = multierror.Append(report.Issues,
			ferrors.ErrCorruptDirectory.WithMessage("FAT1 and FAT2 are not identical"))
	}
}

// checkDirectoryTree walks dir and its subdirectories, flagging duplicate
// names (case-insensitively) and subdirectories that fail to open cleanly.
// visited guards against a directory cycle causing infinite recursion.
func checkDirectoryTree(dir *directory.Directory, openChild func(uint16) (*directory.Directory, error), path string, report *Report, visited map[uint16]bool) {
	entries, err := dir.Iter()
	if err != nil {
		report.Issues = multierror.Append(report.Issues, err)
		return
	}

	seen := map[string]bool{}
	for _, e := range entries {
		key := normalizeForDup(e.Name)
		if seen[key] {
			report.Issues = multierror.Append(report.Issues,
				ferrors.ErrCorruptDirectory.WithMessage(
					fmt.Sprintf("duplicate name %q in %s", e.Name, path)))
		}
		seen[key] = true

		if e.Name == "." || e.Name == ".." {
			continue
		}
		if !e.IsDir() {
			continue
		}
		if e.FirstCluster == 0 || visited[e.FirstCluster] {
			continue
		}
		visited[e.FirstCluster] = true

		child, err := openChild(e.FirstCluster)
		if err != nil {
			report.Issues = multierror.Append(report.Issues,
				ferrors.ErrBadChain.WrapError(err))
			continue
		}
		checkDirectoryTree(child, openChild, path+e.Name+"/", report, visited)
	}
}

func normalizeForDup(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
