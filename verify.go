package rawzip

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
)

// VerifiedSource is an EntrySource whose entries can also be read decompressed.
type VerifiedSource interface {
	EntrySource
	OpenEntry() error
}

type counter interface {
	Len() int
}

// Verify checks that dst holds a faithful copy of src: the same entries in the same order,
// with equal name, method, CRC-32 and sizes, and that the decompressed content of every
// entry of dst matches its recorded CRC-32 and size.
func Verify(ctx context.Context, src EntrySource, dst VerifiedSource) error {
	// archives that know their entry count are compared before anything is decompressed
	if sl, ok := src.(counter); ok {
		if dl, ok := dst.(counter); ok && sl.Len() != dl.Len() {
			return fmt.Errorf("%w: target has %d entries, source has %d", ErrVerify, dl.Len(), sl.Len())
		}
	}

	errSrc, errDst := src.FirstEntry(), dst.FirstEntry()
	buf := make([]byte, DefaultChunkSize)

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		endSrc, endDst := errors.Is(errSrc, ErrEndOfEntries), errors.Is(errDst, ErrEndOfEntries)
		switch {
		case endSrc && endDst:
			return nil
		case errSrc != nil && !endSrc:
			return fmt.Errorf("source entry %d: %w", idx, wrapAs(ErrDirectoryWalk, errSrc))
		case errDst != nil && !endDst:
			return fmt.Errorf("target entry %d: %w", idx, wrapAs(ErrDirectoryWalk, errDst))
		case endSrc:
			return fmt.Errorf("%w: target has more than %d entries", ErrVerify, idx)
		case endDst:
			return fmt.Errorf("%w: target has %d entries, source has more", ErrVerify, idx)
		}

		want, err := src.EntryInfo()
		if err != nil {
			return fmt.Errorf("source entry %d: %w", idx, wrapAs(ErrDirectoryWalk, err))
		}
		got, err := dst.EntryInfo()
		if err != nil {
			return fmt.Errorf("target entry %d: %w", idx, wrapAs(ErrDirectoryWalk, err))
		}

		if err := compareEntries(want, got); err != nil {
			return fmt.Errorf("entry %d: %s: %w", idx, want.Name, err)
		}
		if err := checkContent(dst, got, buf); err != nil {
			return fmt.Errorf("entry %d: %s: %w", idx, got.Name, err)
		}

		errSrc, errDst = src.NextEntry(), dst.NextEntry()
	}
}

func compareEntries(want, got Entry) error {
	switch {
	case want.Name != got.Name:
		return fmt.Errorf("%w: name %q, want %q", ErrVerify, got.Name, want.Name)
	case want.Method != got.Method:
		return fmt.Errorf("%w: method %s, want %s", ErrVerify, MethodName(got.Method), MethodName(want.Method))
	case want.CRC32 != got.CRC32:
		return fmt.Errorf("%w: crc %#08x, want %#08x", ErrVerify, got.CRC32, want.CRC32)
	case want.CompressedSize != got.CompressedSize:
		return fmt.Errorf("%w: compressed size %d, want %d", ErrVerify, got.CompressedSize, want.CompressedSize)
	case want.UncompressedSize != got.UncompressedSize:
		return fmt.Errorf("%w: size %d, want %d", ErrVerify, got.UncompressedSize, want.UncompressedSize)
	}

	return nil
}

// checkContent decompresses the entry at the cursor of src and checks it against e.
func checkContent(src VerifiedSource, e Entry, buf []byte) (err error) {
	if err := src.OpenEntry(); err != nil {
		return err
	}
	defer func() {
		if cerr := src.CloseEntry(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	hash := crc32.NewIEEE()
	var size uint64
	for {
		n, err := src.ReadEntry(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		hash.Write(buf[:n])
		size += uint64(n)
	}

	if size != e.UncompressedSize {
		return fmt.Errorf("%w: decompressed %d bytes, want %d", ErrVerify, size, e.UncompressedSize)
	}
	if sum := hash.Sum32(); sum != e.CRC32 {
		return fmt.Errorf("%w: content crc %#08x, want %#08x", ErrVerify, sum, e.CRC32)
	}

	return nil
}
