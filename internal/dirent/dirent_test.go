package dirent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNameUppercasesAndPads(t *testing.T) {
	base, ext, err := NormalizeName("readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "README  ", string(base[:]))
	assert.Equal(t, "TXT", string(ext[:]))
}

func TestNormalizeNameNoExtension(t *testing.T) {
	base, ext, err := NormalizeName("VMLINUZ")
	require.NoError(t, err)
	assert.Equal(t, "VMLINUZ ", string(base[:]))
	assert.Equal(t, "   ", string(ext[:]))
}

func TestNormalizeNameRejectsTooLong(t *testing.T) {
	_, _, err := NormalizeName("averylongname.txt")
	assert.Error(t, err)
}

func TestNormalizeNameRejectsInvalidChars(t *testing.T) {
	_, _, err := NormalizeName("bad*name.txt")
	assert.Error(t, err)
}

func TestNormalizeNameAcceptsDotForms(t *testing.T) {
	base, _, err := NormalizeName(".")
	assert.NoError(t, err)
	assert.Equal(t, ".       ", string(base[:]))
	base, _, err = NormalizeName("..")
	assert.NoError(t, err)
	assert.Equal(t, "..      ", string(base[:]))
}

func TestNormalizeNameSplitsAtLastDot(t *testing.T) {
	base, ext, err := NormalizeName("A.B.C")
	require.NoError(t, err)
	assert.Equal(t, "A.B     ", string(base[:]))
	assert.Equal(t, "C  ", string(ext[:]))
}

func TestNormalizeLabelAcceptsSpacesAndDots(t *testing.T) {
	label, err := NormalizeLabel("WORKDISK11")
	require.NoError(t, err)
	assert.Equal(t, "WORKDISK11 ", string(label[:]))

	label, err = NormalizeLabel("BACKUP 2024")
	require.NoError(t, err)
	assert.Equal(t, "BACKUP 2024", string(label[:]))

	label, err = NormalizeLabel("DISK.DAT")
	require.NoError(t, err)
	assert.Equal(t, "DISK.DAT   ", string(label[:]))
}

func TestLabelEntrySerializeParseRoundTrip(t *testing.T) {
	e := Entry{Name: "DISK.DAT", Attr: AttrVolumeLabel}
	raw, err := e.Serialize()
	require.NoError(t, err)

	got, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "DISK.DAT", got.Name)
}

func TestEntrySerializeParseRoundTrip(t *testing.T) {
	e := Entry{
		Name:         "FOO.BAR",
		Attr:         AttrArchive,
		FirstCluster: 5,
		Size:         1024,
		CreatedAt:    time.Date(2020, time.July, 4, 10, 30, 0, 0, time.UTC),
		ModifiedAt:   time.Date(2021, time.January, 2, 8, 15, 0, 0, time.UTC),
		AccessedAt:   time.Date(2021, time.January, 2, 0, 0, 0, 0, time.UTC),
	}

	raw, err := e.Serialize()
	require.NoError(t, err)
	assert.Equal(t, SlotInUse, Inspect(raw))

	got, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "FOO.BAR", got.Name)
	assert.Equal(t, e.Attr, got.Attr)
	assert.Equal(t, e.FirstCluster, got.FirstCluster)
	assert.Equal(t, e.Size, got.Size)
}

func TestInspectFreeAndDeleted(t *testing.T) {
	var free [Size]byte
	assert.Equal(t, SlotFree, Inspect(free))

	var deleted [Size]byte
	deleted[0] = 0xE5
	assert.Equal(t, SlotDeleted, Inspect(deleted))
}

func TestInspectLongName(t *testing.T) {
	var raw [Size]byte
	raw[0] = 'X'
	raw[11] = AttrLongName
	assert.Equal(t, SlotLongName, Inspect(raw))
}

func TestDateFromIntBeforeEpochClampsSanely(t *testing.T) {
	d := DateFromInt(0)
	assert.Equal(t, 1980, d.Year())
}

func TestTimestampFromPartsRoundTrip(t *testing.T) {
	datePart, timePart, tenths := partsFromTimestamp(
		time.Date(2022, time.March, 15, 13, 45, 30, 0, time.UTC))
	got := TimestampFromParts(datePart, timePart, tenths)
	assert.Equal(t, 2022, got.Year())
	assert.Equal(t, time.March, got.Month())
	assert.Equal(t, 15, got.Day())
	assert.Equal(t, 13, got.Hour())
	assert.Equal(t, 45, got.Minute())
}
