package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer_SequentialChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.dat")
	tr, err := Open(path, "input.dat")
	require.NoError(t, err)

	require.NoError(t, tr.WriteChunk(0, []byte("abc")))
	require.NoError(t, tr.WriteChunk(1, []byte("def")))
	require.NoError(t, tr.WriteChunk(2, []byte("gh")))
	require.NoError(t, tr.Finish())

	assert.Equal(t, int64(8), tr.BytesWritten())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", string(b))
}

func TestTransfer_RejectsGapAndRepeat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.dat")
	tr, err := Open(path, "input.dat")
	require.NoError(t, err)

	require.NoError(t, tr.WriteChunk(0, []byte("abc")))

	err = tr.WriteChunk(2, []byte("skip"))
	require.ErrorIs(t, err, ErrOutOfOrder)

	err = tr.WriteChunk(0, []byte("again"))
	require.ErrorIs(t, err, ErrOutOfOrder)

	// Rejected chunks must not contribute any bytes.
	require.NoError(t, tr.Finish())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))
	assert.Equal(t, int64(3), tr.BytesWritten())
}

func TestTransfer_FirstChunkMustBeZero(t *testing.T) {
	tr, err := Open(filepath.Join(t.TempDir(), "input.dat"), "input.dat")
	require.NoError(t, err)

	assert.ErrorIs(t, tr.WriteChunk(1, []byte("late")), ErrOutOfOrder)
	assert.NoError(t, tr.WriteChunk(0, []byte("first")))
}

func TestTransfer_CancelRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.dat")
	tr, err := Open(path, "input.dat")
	require.NoError(t, err)

	require.NoError(t, tr.WriteChunk(0, []byte("partial")))
	require.NoError(t, tr.Cancel())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
