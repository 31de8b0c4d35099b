package rawzip

import (
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

const (
	// Compression methods not built into the zip package.
	// Raw copies never need them; they are used when entries are decompressed for verification.
	ZipMethodBzip2 = 12
	ZipMethodLzma  = 14
	ZipMethodZstd  = zstd.ZipMethodWinZip
	ZipMethodXz    = 95
)

var methodNames = map[uint16]string{
	zip.Store:      "store",
	zip.Deflate:    "deflate",
	ZipMethodBzip2: "bzip2",
	ZipMethodLzma:  "lzma",
	ZipMethodZstd:  "zstd",
	ZipMethodXz:    "xz",
}

func init() {
	zip.RegisterDecompressor(ZipMethodBzip2, func(r io.Reader) io.ReadCloser {
		bz2r, err := bzip2.NewReader(r, nil)
		if err != nil {
			return errReader{err}
		}
		return bz2r
	})

	zip.RegisterDecompressor(ZipMethodZstd, zstd.ZipDecompressor())

	zip.RegisterDecompressor(ZipMethodXz, func(r io.Reader) io.ReadCloser {
		xr, err := xz.NewReader(r)
		if err != nil {
			return errReader{err}
		}
		return io.NopCloser(xr)
	})
}

// MethodName returns a readable name for a zip compression method.
func MethodName(method uint16) string {
	if name, ok := methodNames[method]; ok {
		return name
	}

	return fmt.Sprintf("method %d", method)
}

// errReader reports a decompressor setup failure on first read.
type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}

func (errReader) Close() error {
	return nil
}
