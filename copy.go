package rawzip

import (
	"context"
	"errors"
	"fmt"

	"github.com/pchchv/golog"
)

// DefaultChunkSize is the number of compressed bytes moved per read/write pair.
const DefaultChunkSize = 65535

// EntrySource is an archive whose entries are read in order with a cursor.
type EntrySource interface {
	FirstEntry() error
	NextEntry() error
	EntryInfo() (Entry, error)
	OpenEntryRaw() error
	// ReadEntry returns 0 and a nil error at the end of the entry.
	ReadEntry(p []byte) (int, error)
	CloseEntry() error
}

// EntrySink is an archive new entries are appended to.
type EntrySink interface {
	OpenEntryRawWrite(e Entry) error
	WriteEntry(p []byte) (int, error)
	CloseEntryRaw(uncompressedSize uint64, crc uint32) error
}

// RawCopier copies entries between archives without decompressing them.
// The zero value is ready to use.
type RawCopier struct {
	// Size of the buffer used to move compressed bytes.
	// If 0, DefaultChunkSize is used.
	ChunkSize int

	// Encoding used to display names of entries that are not UTF-8 encoded.
	// Any IANA name is accepted. If empty, CP437 is assumed.
	// Names are always written to the target unchanged.
	TextEncoding string

	// If true, every copied entry is logged.
	Verbose bool
}

// CopyAllRaw copies every entry of src into dst with the default RawCopier.
func CopyAllRaw(ctx context.Context, src EntrySource, dst EntrySink) error {
	return RawCopier{}.CopyAll(ctx, src, dst)
}

// CopyAll copies every entry of src, in archive order, into dst.
// The compressed bytes are transferred unchanged and the target records keep the
// name, timestamps, method, sizes and CRC-32 of their source.
//
// The first failing entry aborts the copy. Both entries involved are still closed,
// so dst is left with the entries copied so far. An empty src is not an error.
// The context is checked between entries.
func (c RawCopier) CopyAll(ctx context.Context, src EntrySource, dst EntrySink) error {
	names, err := newNameDecoder(c.TextEncoding)
	if err != nil {
		return err
	}

	err = src.FirstEntry()
	if errors.Is(err, ErrEndOfEntries) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("going to first entry: %w", wrapAs(ErrDirectoryWalk, err))
	}

	buf := make([]byte, c.chunkSize())
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err // honor context cancellation
		}

		if err := c.copyEntry(src, dst, names, idx, buf); err != nil {
			return err
		}

		err = src.NextEntry()
		if errors.Is(err, ErrEndOfEntries) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("going to entry %d: %w", idx+1, wrapAs(ErrDirectoryWalk, err))
		}
	}
}

func (c RawCopier) chunkSize() int {
	if c.ChunkSize > 0 {
		return c.ChunkSize
	}

	return DefaultChunkSize
}

// copyEntry copies the entry at the cursor of src.
// The target entry is closed before the source entry, on every path past their opening.
func (c RawCopier) copyEntry(src EntrySource, dst EntrySink, names nameDecoder, idx int, buf []byte) (err error) {
	entry, err := src.EntryInfo()
	if err != nil {
		return fmt.Errorf("entry %d: reading metadata: %w", idx, wrapAs(ErrDirectoryWalk, err))
	}
	name := names.decode(entry)

	if err := src.OpenEntryRaw(); err != nil {
		return fmt.Errorf("entry %d: %s: opening for raw read: %w", idx, name, wrapAs(ErrEntryRead, err))
	}
	defer func() {
		if cerr := src.CloseEntry(); cerr != nil {
			golog.Error("entry %d: %s: closing source entry: %v", idx, name, cerr)
			if err == nil {
				err = fmt.Errorf("entry %d: %s: closing source entry: %w", idx, name, wrapAs(ErrEntryRead, cerr))
			}
		}
	}()

	if err := dst.OpenEntryRawWrite(entry.rawCopy()); err != nil {
		return fmt.Errorf("entry %d: %s: opening for raw write: %w", idx, name, wrapAs(ErrEntryWrite, err))
	}
	defer func() {
		// the payload is untouched, so the source CRC and size stay valid
		if cerr := dst.CloseEntryRaw(entry.UncompressedSize, entry.CRC32); cerr != nil {
			golog.Error("entry %d: %s: closing target entry: %v", idx, name, cerr)
			if err == nil {
				err = fmt.Errorf("entry %d: %s: closing target entry: %w", idx, name, wrapAs(ErrEntryWrite, cerr))
			}
		}
	}()

	written, err := transfer(src, dst, buf)
	if err != nil {
		golog.Error("entry %d: %s: %v", idx, name, err)
		return fmt.Errorf("entry %d: %s: %w", idx, name, err)
	}

	if c.Verbose {
		golog.Info("copied %s (%s, %d bytes)", name, MethodName(entry.Method), written)
	}

	return nil
}

// transfer moves the bytes of the open source entry into the open target entry.
func transfer(src EntrySource, dst EntrySink, buf []byte) (uint64, error) {
	var written uint64
	for {
		nr, err := src.ReadEntry(buf)
		if err != nil {
			return written, wrapAs(ErrEntryRead, err)
		}
		if nr == 0 {
			return written, nil
		}

		nw, err := dst.WriteEntry(buf[:nr])
		written += uint64(nw)
		if err != nil {
			return written, wrapAs(ErrEntryWrite, err)
		}
		if nw != nr {
			return written, fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, nw, nr)
		}
	}
}
