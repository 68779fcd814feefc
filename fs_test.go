package fat12

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hisahi/gofat12/internal/bpb"

	ferrors "github.com/hisahi/gofat12/errors"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testClock = fixedClock{time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}

func mustFormat(t *testing.T, opts ...FormatOption) *FS {
	t.Helper()
	fs, err := Format(append([]FormatOption{WithClock(testClock)}, opts...)...)
	require.NoError(t, err)
	return fs
}

func saveAndReload(t *testing.T, fs *FS) *FS {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, fs.Image().Save(&buf))
	img, err := OpenImage(&buf)
	require.NoError(t, err)
	reloaded, err := Mount(img, WithMountClock(testClock))
	require.NoError(t, err)
	return reloaded
}

func TestFormatSaveLoadListIsEmpty(t *testing.T) {
	fs := mustFormat(t)
	reloaded := saveAndReload(t, fs)

	entries, err := reloaded.List("/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFormatWithLabelRoundTrips(t *testing.T) {
	fs := mustFormat(t, WithVolumeLabel("MYDISK"))
	assert.Equal(t, "MYDISK", fs.Label())

	reloaded := saveAndReload(t, fs)
	assert.Equal(t, "MYDISK", reloaded.Label())

	entries, err := reloaded.List("/")
	require.NoError(t, err)
	assert.Empty(t, entries) // the label entry is filtered from List
}

func TestFormatWithLongLabelRoundTrips(t *testing.T) {
	fs := mustFormat(t, WithVolumeLabel("WORKDISK11"))
	assert.Equal(t, "WORKDISK11", fs.Label())

	reloaded := saveAndReload(t, fs)
	assert.Equal(t, "WORKDISK11", reloaded.Label())
}

func TestSetLabelWithSpaceAndDotAccepted(t *testing.T) {
	fs := mustFormat(t)

	require.NoError(t, fs.SetLabel("BACKUP 2024"))
	assert.Equal(t, "BACKUP 2024", fs.Label())

	require.NoError(t, fs.SetLabel("DISK.DAT"))
	assert.Equal(t, "DISK.DAT", fs.Label())

	reloaded := saveAndReload(t, fs)
	assert.Equal(t, "DISK.DAT", reloaded.Label())
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := mustFormat(t)
	data := []byte("Hello World!\r\n")

	require.NoError(t, fs.WriteFile("/HELLO.TXT", data))
	got, err := fs.ReadFile("/HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	entry, err := fs.Stat("/HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), entry.Size)
}

func TestFAT1EqualsFAT2AfterWrite(t *testing.T) {
	fs := mustFormat(t)
	require.NoError(t, fs.WriteFile("/A.TXT", []byte("some data")))

	var buf bytes.Buffer
	require.NoError(t, fs.Image().Save(&buf))
	raw := buf.Bytes()

	fat1 := raw[bpb.FAT1Start*bpb.BytesPerSector : (bpb.FAT1Start+bpb.SectorsPerFAT)*bpb.BytesPerSector]
	fat2 := raw[bpb.FAT2Start*bpb.BytesPerSector : (bpb.FAT2Start+bpb.SectorsPerFAT)*bpb.BytesPerSector]
	assert.Equal(t, fat1, fat2)
}

func TestMkdirAndWriteNestedFile(t *testing.T) {
	fs := mustFormat(t)
	require.NoError(t, fs.Mkdir("/SUB"))
	require.NoError(t, fs.WriteFile("/SUB/A.BIN", make([]byte, 600)))

	entries, err := fs.List("/SUB")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A.BIN", entries[0].Name)
	assert.Equal(t, int64(600), entries[0].Size)
}

func TestWriteExactlyOneClusterVsTwo(t *testing.T) {
	fs := mustFormat(t)
	require.NoError(t, fs.WriteFile("/ONE.BIN", make([]byte, bpb.BytesPerSector)))
	require.NoError(t, fs.WriteFile("/TWO.BIN", make([]byte, bpb.BytesPerSector+1)))

	one, err := fs.ReadFile("/ONE.BIN")
	require.NoError(t, err)
	assert.Len(t, one, bpb.BytesPerSector)

	two, err := fs.ReadFile("/TWO.BIN")
	require.NoError(t, err)
	assert.Len(t, two, bpb.BytesPerSector+1)

	oneChain, err := fs.table.Walk(firstClusterOf(t, fs, "/ONE.BIN"))
	require.NoError(t, err)
	assert.Len(t, oneChain, 1)

	twoChain, err := fs.table.Walk(firstClusterOf(t, fs, "/TWO.BIN"))
	require.NoError(t, err)
	assert.Len(t, twoChain, 2)
}

func TestWriteMaxFileSizeSucceedsOneByteMoreFails(t *testing.T) {
	fs := mustFormat(t)
	require.NoError(t, fs.WriteFile("/MAX.BIN", make([]byte, bpb.MaxFileSizeInBytes)))

	fs2 := mustFormat(t)
	err := fs2.WriteFile("/TOOBIG.BIN", make([]byte, bpb.MaxFileSizeInBytes+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ferrors.ErrNoSpace)
}

func TestRootDirectoryFillsUpAndFails(t *testing.T) {
	fs := mustFormat(t)
	for i := 0; i < bpb.RootEntryCount; i++ {
		name := nameForSlot(i)
		require.NoError(t, fs.WriteFile(name, nil))
	}

	err := fs.WriteFile("OVERFLOW.BIN", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ferrors.ErrDirFull)
}

func nameForSlot(i int) string {
	digits := "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	return string([]byte{digits[i/36%36], digits[i%36]}) + ".BIN"
}

func TestDeleteThenInsertReusesSlot(t *testing.T) {
	fs := mustFormat(t)
	require.NoError(t, fs.WriteFile("/A.BIN", nil))
	require.NoError(t, fs.WriteFile("/B.BIN", nil))

	before, _, err := fs.resolver.Resolve("/A.BIN")
	require.NoError(t, err)

	require.NoError(t, fs.Delete("/A.BIN"))
	require.NoError(t, fs.WriteFile("/C.BIN", nil))

	after, _, err := fs.resolver.Resolve("/C.BIN")
	require.NoError(t, err)
	assert.Equal(t, before.Slot, after.Slot)
}

func TestTruncateThenAllocateReusesFirstCluster(t *testing.T) {
	fs := mustFormat(t)
	oneMB := make([]byte, 1<<20)

	require.NoError(t, fs.WriteFile("/FIRST.BIN", oneMB))
	firstFirstCluster := firstClusterOf(t, fs, "/FIRST.BIN")

	require.NoError(t, fs.WriteFile("/FIRST.BIN", nil)) // truncate to zero
	require.NoError(t, fs.WriteFile("/SECOND.BIN", oneMB))
	secondFirstCluster := firstClusterOf(t, fs, "/SECOND.BIN")

	assert.Equal(t, firstFirstCluster, secondFirstCluster)
}

func firstClusterOf(t *testing.T, fs *FS, path string) uint16 {
	t.Helper()
	entry, dir, err := fs.resolver.Resolve(path)
	require.NoError(t, err)
	_ = dir
	return entry.FirstCluster
}

func TestRenameRoundTripRestoresSet(t *testing.T) {
	fs := mustFormat(t)
	require.NoError(t, fs.WriteFile("/A.TXT", []byte("x")))

	var before bytes.Buffer
	require.NoError(t, fs.Image().Save(&before))

	require.NoError(t, fs.Rename("/A.TXT", "/B.TXT"))
	require.NoError(t, fs.Rename("/B.TXT", "/A.TXT"))

	entries, err := fs.List("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A.TXT", entries[0].Name)

	var after bytes.Buffer
	require.NoError(t, fs.Image().Save(&after))
	assert.Equal(t, before.Bytes(), after.Bytes())
}

func TestRenameSameDirectoryRewritesSlotInPlace(t *testing.T) {
	fs := mustFormat(t)
	require.NoError(t, fs.WriteFile("/A.TXT", []byte("x")))
	require.NoError(t, fs.WriteFile("/KEEP.BIN", nil))
	before, _, err := fs.resolver.Resolve("/A.TXT")
	require.NoError(t, err)

	require.NoError(t, fs.Rename("/A.TXT", "/B.TXT"))

	after, _, err := fs.resolver.Resolve("/B.TXT")
	require.NoError(t, err)
	assert.Equal(t, before.Slot, after.Slot)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)

	entries, err := fs.List("/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRenameAcrossDirectoriesFixesUpDotDot(t *testing.T) {
	fs := mustFormat(t)
	require.NoError(t, fs.Mkdir("/SRC"))
	require.NoError(t, fs.Mkdir("/DST"))
	require.NoError(t, fs.Mkdir("/SRC/CHILD"))

	require.NoError(t, fs.Rename("/SRC/CHILD", "/DST/CHILD"))

	dstEntries, err := fs.List("/DST")
	require.NoError(t, err)
	require.Len(t, dstEntries, 1)
	require.Equal(t, "CHILD", dstEntries[0].Name)

	dstDirEntry, _, err := fs.resolver.Resolve("/DST")
	require.NoError(t, err)

	childEntries, err := fs.List("/DST/CHILD")
	require.NoError(t, err)
	assert.Empty(t, childEntries)

	dotdot, _, err := fs.resolver.Resolve("/DST/CHILD/..")
	require.NoError(t, err)
	assert.Equal(t, dstDirEntry.FirstCluster, dotdot.FirstCluster)
}

func TestDeleteNonEmptyDirectoryFails(t *testing.T) {
	fs := mustFormat(t)
	require.NoError(t, fs.Mkdir("/SUB"))
	require.NoError(t, fs.WriteFile("/SUB/A.BIN", nil))

	err := fs.Rmdir("/SUB")
	require.Error(t, err)
	assert.ErrorIs(t, err, ferrors.ErrDirNotEmpty)
}

func TestBadNameRejected(t *testing.T) {
	fs := mustFormat(t)
	err := fs.WriteFile("/BAD*NAME.TXT", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ferrors.ErrBadName)
}

func TestOpenImageRejectsWrongLength(t *testing.T) {
	_, err := OpenImage(bytes.NewReader(make([]byte, 100)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ferrors.ErrBadImage)
}

func TestCheckCleanImageHasNoIssues(t *testing.T) {
	fs := mustFormat(t)
	require.NoError(t, fs.WriteFile("/A.TXT", []byte("hi")))
	assert.NoError(t, fs.Check())
}

func TestCorruptFAT2IsPreferredAndReported(t *testing.T) {
	fs := mustFormat(t)
	require.NoError(t, fs.WriteFile("/A.TXT", []byte("hi")))

	var buf bytes.Buffer
	require.NoError(t, fs.Image().Save(&buf))
	raw := buf.Bytes()

	fat2Off := bpb.FAT2Start * bpb.BytesPerSector
	raw[fat2Off] ^= 0xFF // corrupt FAT2's first byte

	img, err := OpenImage(bytes.NewReader(raw))
	require.NoError(t, err)
	reloaded, err := Mount(img, WithMountClock(testClock))
	require.NoError(t, err)

	data, err := reloaded.ReadFile("/A.TXT")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data)

	err = reloaded.Check()
	require.Error(t, err)
}
