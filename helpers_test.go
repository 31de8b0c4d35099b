package rawzip

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pchchv/golog"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type testFile struct {
	name   string
	method uint16
	body   string
}

var testModified = time.Date(2023, 1, 22, 22, 1, 24, 0, time.UTC)

// sampleFiles covers every method the package can decompress, plus a directory.
var sampleFiles = []testFile{
	{name: "hello.txt", method: zip.Deflate, body: "hello world\n"},
	{name: "docs/", method: zip.Store},
	{name: "docs/stored.txt", method: zip.Store, body: "stored as is"},
	{name: "docs/long.txt", method: zip.Deflate, body: string(bytes.Repeat([]byte("compress me please "), 20000))},
	{name: "data.bz2.txt", method: ZipMethodBzip2, body: "bzip2 compressed entry body"},
	{name: "data.zst.txt", method: ZipMethodZstd, body: "zstandard compressed entry body"},
	{name: "data.xz.txt", method: ZipMethodXz, body: "xz compressed entry body"},
}

// buildZip returns a zip archive holding files.
func buildZip(t *testing.T, files []testFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(ZipMethodBzip2, func(out io.Writer) (io.WriteCloser, error) {
		return bzip2.NewWriter(out, &bzip2.WriterConfig{})
	})
	zw.RegisterCompressor(ZipMethodZstd, zstd.ZipCompressor())
	zw.RegisterCompressor(ZipMethodXz, func(out io.Writer) (io.WriteCloser, error) {
		return &lazyXzWriter{out: out}, nil
	})

	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.name,
			Method:   f.method,
			Modified: testModified,
		})
		require.NoError(t, err)
		if f.body != "" {
			_, err = io.WriteString(w, f.body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

// lazyXzWriter starts the xz stream on first use.
// xz.NewWriter writes the stream header right away, and the zip writer builds
// the compressor before it writes the local file header.
type lazyXzWriter struct {
	out io.Writer
	xw  *xz.Writer
}

func (w *lazyXzWriter) start() error {
	if w.xw != nil {
		return nil
	}

	xw, err := xz.NewWriter(w.out)
	if err != nil {
		return err
	}
	w.xw = xw

	return nil
}

func (w *lazyXzWriter) Write(p []byte) (int, error) {
	if err := w.start(); err != nil {
		return 0, err
	}

	return w.xw.Write(p)
}

func (w *lazyXzWriter) Close() error {
	if err := w.start(); err != nil {
		return err
	}

	return w.xw.Close()
}

// writeZip writes a zip archive holding files into dir and returns its path.
func writeZip(t *testing.T, dir, name string, files []testFile) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buildZip(t, files), 0o644))

	return path
}

// readZip opens the archive at path with the zip package directly.
func readZip(t *testing.T, path string) *zip.Reader {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	return zr
}

// readEntry returns the decompressed content of f.
func readEntry(t *testing.T, f *zip.File) string {
	t.Helper()

	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	return string(data)
}

// copyFile runs a full copy of src into dst with sessions of the given mode.
func copyFile(t *testing.T, src, dst string, mode Mode) {
	t.Helper()

	s, err := Open(src, mode, OpenRead)
	require.NoError(t, err)
	d, err := Open(dst, mode, OpenReadWriteCreate)
	require.NoError(t, err)

	require.NoError(t, CopyAllRaw(context.Background(), s.Handle(), d.Handle()))
	require.NoError(t, d.Close())
	require.NoError(t, s.Close())
}

// captureErrorLog sends golog error output to a file until the test ends and
// returns a function reading what was logged so far.
// Tests using it must not run in parallel.
func captureErrorLog(t *testing.T) func() string {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "errors-*.log")
	require.NoError(t, err)

	prev := golog.LevelOutputs[golog.LOG_ERROR]
	golog.LevelOutputs[golog.LOG_ERROR] = f
	t.Cleanup(func() {
		golog.LevelOutputs[golog.LOG_ERROR] = prev
		f.Close()
	})

	return func() string {
		data, err := os.ReadFile(f.Name())
		require.NoError(t, err)
		return string(data)
	}
}
