package rawzip

import (
	"bytes"
	"errors"
	"io"
)

const zipFormat = "zip"

// signature is the magic number a format starts with, at the given offset.
type signature struct {
	name   string
	offset int
	magic  []byte
}

// signatures is checked in order, so weak (short) magic numbers come last.
var signatures = []signature{
	{name: zipFormat, magic: []byte("PK\x03\x04")},
	// headers of empty zip files end with 0x05,0x06 or 0x06,0x06 instead of 0x03,0x04
	{name: zipFormat, magic: []byte("PK\x05\x06")},
	{name: zipFormat, magic: []byte("PK\x06\x06")},
	{name: "7z", magic: []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}},
	{name: "rar", magic: []byte("Rar!\x1a\x07")},
	{name: "xz", magic: []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{name: "snappy", magic: []byte{0xff, 0x06, 0x00, 0x00, 0x73, 0x4e, 0x61, 0x50, 0x70, 0x59}},
	{name: "zstd", magic: []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{name: "lz4", magic: []byte{0x04, 0x22, 0x4d, 0x18}},
	{name: "tar", offset: 257, magic: []byte("ustar")},
	{name: "bzip2", magic: []byte("BZh")},
	{name: "gzip", magic: []byte{0x1f, 0x8b}},
	{name: "zlib", magic: []byte{0x78}},
}

var maxSignatureLen = func() int {
	var n int
	for _, sig := range signatures {
		if l := sig.offset + len(sig.magic); l > n {
			n = l
		}
	}
	return n
}()

// identify returns the name of the format stream starts with,
// or an empty string if no known magic number matches.
// It reads only as many bytes as the longest signature needs.
func identify(stream io.Reader) (string, error) {
	buf, err := readAtMost(stream, maxSignatureLen)
	if err != nil {
		return "", err
	}

	for _, sig := range signatures {
		end := sig.offset + len(sig.magic)
		if end <= len(buf) && bytes.Equal(buf[sig.offset:end], sig.magic) {
			return sig.name, nil
		}
	}

	return "", nil
}

// readAtMost reads at most n bytes from the stream.
// A nil, empty or short stream is not an error.
// The returned slice of bytes may have length < n without error.
func readAtMost(stream io.Reader, n int) ([]byte, error) {
	if stream == nil || n <= 0 {
		return []byte{}, nil
	}

	buf := make([]byte, n)
	nr, err := io.ReadFull(stream, buf)

	// If the error is EOF (the stream was empty) or UnexpectedEOF (the stream had less than n)
	// ignore these errors because it is not necessary to read all n bytes,
	// so an empty or short stream is not an error.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}

	if err != nil {
		return nil, err
	}

	return buf[:nr], nil
}
