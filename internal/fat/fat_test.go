package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTableReservedEntries(t *testing.T) {
	tbl := New(0xF0)

	v0, err := tbl.Get(0)
	require.NoError(t, err) // reserved entries are readable, just never chain targets
	assert.Equal(t, uint16(0xFF0), v0)

	v1, err := tbl.Get(1)
	require.NoError(t, err)
	assert.True(t, IsEOC(v1))

	assert.False(t, tbl.IsFree(0))
	assert.False(t, tbl.IsFree(1))

	_, err = tbl.Walk(0)
	assert.Error(t, err) // reserved entries are still never valid chain starts
}

func TestAllocChainAndWalk(t *testing.T) {
	tbl := New(0xF0)

	chain, err := tbl.AllocChain(3)
	require.NoError(t, err)
	require.Len(t, chain, 3)

	walked, err := tbl.Walk(chain[0])
	require.NoError(t, err)
	assert.Equal(t, chain, walked)

	last, err := tbl.Get(chain[2])
	require.NoError(t, err)
	assert.True(t, IsEOC(last))
}

func TestAllocChainInsufficientSpaceDoesNotMutate(t *testing.T) {
	tbl := New(0xF0)
	before := tbl.FreeCount()

	_, err := tbl.AllocChain(TotalClusters + 1)
	require.Error(t, err)
	assert.Equal(t, before, tbl.FreeCount())
}

func TestFreeChain(t *testing.T) {
	tbl := New(0xF0)
	chain, err := tbl.AllocChain(2)
	require.NoError(t, err)

	require.NoError(t, tbl.FreeChain(chain[0]))
	assert.True(t, tbl.IsFree(chain[0]))
	assert.True(t, tbl.IsFree(chain[1]))
}

func TestTruncate(t *testing.T) {
	tbl := New(0xF0)
	chain, err := tbl.AllocChain(4)
	require.NoError(t, err)

	require.NoError(t, tbl.Truncate(chain[0], 2))

	walked, err := tbl.Walk(chain[0])
	require.NoError(t, err)
	assert.Equal(t, chain[:2], walked)
	assert.True(t, tbl.IsFree(chain[2]))
	assert.True(t, tbl.IsFree(chain[3]))
}

func TestExtend(t *testing.T) {
	tbl := New(0xF0)
	chain, err := tbl.AllocChain(2)
	require.NoError(t, err)

	added, err := tbl.Extend(chain[0], 2)
	require.NoError(t, err)
	require.Len(t, added, 2)

	walked, err := tbl.Walk(chain[0])
	require.NoError(t, err)
	assert.Len(t, walked, 4)
}

func TestWalkDetectsBadChain(t *testing.T) {
	tbl := New(0xF0)
	chain, err := tbl.AllocChain(2)
	require.NoError(t, err)

	// Corrupt the chain: point the first cluster at a free cluster instead
	// of the second.
	tbl.set(chain[0], 9999%uint16(len(tbl.entries)))

	_, err = tbl.Walk(chain[0])
	assert.Error(t, err)
}

func TestSerializeLoadRoundTrip(t *testing.T) {
	tbl := New(0xF0)
	_, err := tbl.AllocChain(5)
	require.NoError(t, err)

	fat1, fat2 := tbl.Serialize()
	assert.Equal(t, fat1, fat2)

	reloaded := Load(fat1, fat2)
	assert.Equal(t, tbl.entries, reloaded.entries)
}

func TestPackedEntryRoundTrip(t *testing.T) {
	buf := make([]byte, SizeBytes)
	setPacked(buf, 2, 0x123)
	setPacked(buf, 3, 0x456)

	assert.Equal(t, uint16(0x123), getPacked(buf, 2))
	assert.Equal(t, uint16(0x456), getPacked(buf, 3))
}
