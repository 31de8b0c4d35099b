package rawzip

import (
	"bytes"
	"os"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memHandle(t *testing.T, data []byte) *Handle {
	t.Helper()

	ms, err := newMemStream(defaultGrowSize)
	require.NoError(t, err)
	ms.lend(data)
	h, err := OpenHandle(ms, OpenRead)
	require.NoError(t, err)

	return h
}

func TestHandleCursor(t *testing.T) {
	t.Parallel()

	h := memHandle(t, buildZip(t, sampleFiles[:2]))

	assert.ErrorIs(t, h.NextEntry(), ErrDirectoryWalk, "cursor must be positioned first")
	_, err := h.EntryInfo()
	assert.Error(t, err)

	require.NoError(t, h.FirstEntry())
	e, err := h.EntryInfo()
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", e.Name)
	assert.False(t, e.Raw)

	require.NoError(t, h.NextEntry())
	assert.ErrorIs(t, h.NextEntry(), ErrEndOfEntries)
	assert.ErrorIs(t, h.NextEntry(), ErrEndOfEntries, "end state is sticky")
	assert.NotErrorIs(t, h.NextEntry(), ErrDirectoryWalk)

	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.FirstEntry(), ErrDirectoryWalk)
	assert.ErrorIs(t, h.Close(), ErrArchiveClose)
}

func TestHandleEmptyArchive(t *testing.T) {
	t.Parallel()

	h := memHandle(t, buildZip(t, nil))
	assert.ErrorIs(t, h.FirstEntry(), ErrEndOfEntries)
	assert.Equal(t, 0, h.Len())
}

func TestHandleRawReadWrite(t *testing.T) {
	t.Parallel()

	src := memHandle(t, buildZip(t, sampleFiles))
	require.NoError(t, src.FirstEntry())
	e, err := src.EntryInfo()
	require.NoError(t, err)

	require.NoError(t, src.OpenEntryRaw())
	assert.ErrorIs(t, src.OpenEntryRaw(), ErrEntryRead, "entry already open")
	assert.ErrorIs(t, src.NextEntry(), ErrDirectoryWalk, "cannot move while an entry is open")

	var raw bytes.Buffer
	buf := make([]byte, 5)
	for {
		n, err := src.ReadEntry(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		raw.Write(buf[:n])
	}
	require.NoError(t, src.CloseEntry())
	assert.Equal(t, e.CompressedSize, uint64(raw.Len()))

	ms, err := newMemStream(defaultGrowSize)
	require.NoError(t, err)
	dst, err := OpenHandle(ms, OpenReadWriteCreate)
	require.NoError(t, err)

	assert.ErrorIs(t, dst.FirstEntry(), ErrDirectoryWalk, "create handles have no cursor")
	assert.ErrorIs(t, dst.OpenEntryRawWrite(e), ErrEntryWrite, "record must be marked raw")

	require.NoError(t, dst.OpenEntryRawWrite(e.rawCopy()))
	n, err := dst.WriteEntry(raw.Bytes())
	require.NoError(t, err)
	assert.Equal(t, raw.Len(), n)
	require.NoError(t, dst.CloseEntryRaw(e.UncompressedSize, e.CRC32))
	assert.ErrorIs(t, dst.CloseEntryRaw(0, 0), ErrEntryWrite, "no open entry")
	require.NoError(t, dst.Close())

	zr, err := zip.NewReader(bytes.NewReader(ms.Bytes()), int64(len(ms.Bytes())))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "hello world\n", readEntry(t, zr.File[0]))
}

func TestHandleCloseEntryRawChecksSizes(t *testing.T) {
	t.Parallel()

	ms, err := newMemStream(defaultGrowSize)
	require.NoError(t, err)
	dst, err := OpenHandle(ms, OpenReadWriteCreate)
	require.NoError(t, err)

	// stored entry without data descriptor: sizes are fixed in the local header
	e := Entry{Name: "fixed.txt", Method: zip.Store, CompressedSize: 4, UncompressedSize: 4, Raw: true}
	require.NoError(t, dst.OpenEntryRawWrite(e))
	_, err = dst.WriteEntry([]byte("ab"))
	require.NoError(t, err)
	assert.ErrorIs(t, dst.CloseEntryRaw(4, 0), ErrEntryWrite)
}

func TestHandleOpenEntryDecompresses(t *testing.T) {
	t.Parallel()

	h := memHandle(t, buildZip(t, sampleFiles))

	want := make(map[string]string)
	for _, f := range sampleFiles {
		want[f.name] = f.body
	}

	for err := h.FirstEntry(); err == nil; err = h.NextEntry() {
		e, err := h.EntryInfo()
		require.NoError(t, err)

		require.NoError(t, h.OpenEntry())
		var got bytes.Buffer
		buf := make([]byte, 1024)
		for {
			n, err := h.ReadEntry(buf)
			require.NoError(t, err, e.Name)
			if n == 0 {
				break
			}
			got.Write(buf[:n])
		}
		require.NoError(t, h.CloseEntry())
		assert.Equal(t, want[e.Name], got.String(), "%s (%s)", e.Name, MethodName(e.Method))
	}
}

func TestEveryMethodEntryIsAddressable(t *testing.T) {
	t.Parallel()

	// one entry per archive, so a payload written ahead of its header shows up at once
	for _, f := range sampleFiles {
		f := f
		t.Run(f.name, func(t *testing.T) {
			t.Parallel()

			data := buildZip(t, []testFile{f, {name: "after.txt", method: zip.Store, body: "after"}})
			assert.Equal(t, "PK\x03\x04", string(data[:4]))

			h := memHandle(t, data)
			require.NoError(t, h.FirstEntry())
			require.NoError(t, h.OpenEntryRaw())
			require.NoError(t, h.CloseEntry())

			require.NoError(t, h.NextEntry())
			e, err := h.EntryInfo()
			require.NoError(t, err)
			assert.Equal(t, "after.txt", e.Name)
			require.NoError(t, h.OpenEntry())
			buf := make([]byte, 16)
			n, err := h.ReadEntry(buf)
			require.NoError(t, err)
			assert.Equal(t, "after", string(buf[:n]))
			require.NoError(t, h.CloseEntry())
		})
	}
}

func TestOpenHandleNotAZip(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		data []byte
		kind string
	}{
		{name: "xz", data: []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0x00, 0x01}, kind: "xz"},
		{name: "bzip2", data: []byte("BZh91AY&SY"), kind: "bzip2"},
		{name: "text", data: []byte("just some text")},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ms, err := newMemStream(defaultGrowSize)
			require.NoError(t, err)
			ms.lend(tc.data)

			_, err = OpenHandle(ms, OpenRead)
			require.ErrorIs(t, err, ErrArchiveOpen)
			if tc.kind != "" {
				assert.Contains(t, err.Error(), tc.kind)
			}
		})
	}
}

// failingStream fails every operation.
type failingStream struct{}

func (failingStream) Read([]byte) (int, error) { return 0, os.ErrClosed }
func (failingStream) Write([]byte) (int, error) { return 0, os.ErrClosed }
func (failingStream) ReadAt([]byte, int64) (int, error) { return 0, os.ErrClosed }
func (failingStream) Seek(int64, int) (int64, error) { return 0, os.ErrClosed }
func (failingStream) Close() error { return nil }

func TestOpenHandleStreamFailure(t *testing.T) {
	t.Parallel()

	_, err := OpenHandle(failingStream{}, OpenRead)
	assert.ErrorIs(t, err, ErrArchiveOpen)
	assert.ErrorIs(t, err, os.ErrClosed)

	h, err := OpenHandle(failingStream{}, OpenReadWriteCreate)
	require.NoError(t, err)
	assert.ErrorIs(t, h.Close(), ErrArchiveClose)
}
