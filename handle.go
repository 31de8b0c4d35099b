package rawzip

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/pchchv/golog"
)

// Entry is the metadata of one file record in an archive.
type Entry struct {
	// The path of the entry as it appears in the archive.
	Name string

	Modified         time.Time
	Method           uint16
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64

	// Set when the name is not UTF-8 encoded.
	NonUTF8 bool

	// Raw is set on records meant for OpenEntryRawWrite:
	// the payload written for them is already compressed with Method.
	Raw bool

	// The full header as read from the archive. Writing a record copies it
	// field for field, so extra fields, attributes and flags are preserved.
	Header zip.FileHeader
}

func entryFromHeader(fh *zip.FileHeader) Entry {
	return Entry{
		Name:             fh.Name,
		Modified:         fh.Modified,
		Method:           fh.Method,
		CRC32:            fh.CRC32,
		CompressedSize:   fh.CompressedSize64,
		UncompressedSize: fh.UncompressedSize64,
		NonUTF8:          fh.NonUTF8,
		Header:           *fh,
	}
}

// rawCopy returns a fresh record for writing e's compressed payload unchanged.
func (e Entry) rawCopy() Entry {
	c := e
	c.Raw = true
	return c
}

// header builds the header written to a target archive.
// The exported fields win over the embedded Header.
func (e Entry) header() *zip.FileHeader {
	fh := e.Header
	fh.Name = e.Name
	fh.Modified = e.Modified
	fh.Method = e.Method
	fh.CRC32 = e.CRC32
	fh.CompressedSize64 = e.CompressedSize
	fh.UncompressedSize64 = e.UncompressedSize
	fh.NonUTF8 = e.NonUTF8

	return &fh
}

// Handle is an entry-oriented view of one archive.
// A read handle walks the entries of an existing archive with a forward-only cursor,
// a create handle appends new entries.
//
// A Handle borrows its Stream and never closes it.
// It must not be used after the session that owns the stream is closed.
type Handle struct {
	stream Stream
	flags  OpenFlag

	zr     *zip.Reader
	cursor int

	zw *zip.Writer

	// open source entry
	rc     io.Reader
	closer io.Closer

	// open target entry
	wh      *zip.FileHeader
	w       io.Writer
	written uint64

	closed bool
}

// Interface guards
var (
	_ EntrySource    = (*Handle)(nil)
	_ EntrySink      = (*Handle)(nil)
	_ VerifiedSource = (*Handle)(nil)
)

// OpenHandle opens the archive held by s.
// With OpenCreate, a new empty archive is started and written to s as entries are added;
// otherwise the archive directory is read from s.
func OpenHandle(s Stream, flags OpenFlag) (*Handle, error) {
	h := &Handle{stream: s, flags: flags, cursor: -1}

	if flags.create() {
		h.zw = zip.NewWriter(s)
		return h, nil
	}

	size, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: sizing stream: %w", ErrArchiveOpen, err)
	}

	zr, err := zip.NewReader(s, size)
	if errors.Is(err, zip.ErrInsecurePath) {
		// names are copied verbatim and never extracted
		golog.Info("archive contains non-local entry names, copying them unchanged")
		err = nil
	}
	if err != nil {
		if kind, ierr := identify(io.NewSectionReader(s, 0, size)); ierr == nil && kind != "" && kind != zipFormat {
			return nil, fmt.Errorf("%w: stream looks like %s data: %w", ErrArchiveOpen, kind, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrArchiveOpen, err)
	}
	h.zr = zr

	return h, nil
}

// Len returns the number of entries of a read handle.
func (h *Handle) Len() int {
	if h.zr == nil {
		return 0
	}

	return len(h.zr.File)
}

// FirstEntry positions the cursor at the first entry.
// It returns ErrEndOfEntries when the archive is empty.
func (h *Handle) FirstEntry() error {
	if err := h.checkReadable(); err != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryWalk, err)
	}

	h.cursor = 0
	if len(h.zr.File) == 0 {
		return ErrEndOfEntries
	}

	return nil
}

// NextEntry advances the cursor.
// It returns ErrEndOfEntries once past the last entry.
func (h *Handle) NextEntry() error {
	if err := h.checkReadable(); err != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryWalk, err)
	}
	if h.cursor < 0 {
		return fmt.Errorf("%w: cursor is not positioned", ErrDirectoryWalk)
	}
	if h.rc != nil {
		return fmt.Errorf("%w: entry %d is still open", ErrDirectoryWalk, h.cursor)
	}

	if h.cursor < len(h.zr.File) {
		h.cursor++
	}
	if h.cursor == len(h.zr.File) {
		return ErrEndOfEntries
	}

	return nil
}

// EntryInfo returns the metadata of the entry at the cursor.
func (h *Handle) EntryInfo() (Entry, error) {
	f, err := h.current()
	if err != nil {
		return Entry{}, err
	}

	return entryFromHeader(&f.FileHeader), nil
}

// OpenEntryRaw opens the entry at the cursor for reading its compressed bytes.
func (h *Handle) OpenEntryRaw() error {
	f, err := h.current()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEntryRead, err)
	}
	if h.rc != nil {
		return fmt.Errorf("%w: %s: entry already open", ErrEntryRead, f.Name)
	}

	r, err := f.OpenRaw()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEntryRead, f.Name, err)
	}
	h.rc = r

	return nil
}

// OpenEntry opens the entry at the cursor for reading its decompressed content.
// The methods registered by this package are available besides store and deflate.
func (h *Handle) OpenEntry() error {
	f, err := h.current()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEntryRead, err)
	}
	if h.rc != nil {
		return fmt.Errorf("%w: %s: entry already open", ErrEntryRead, f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s (%s): %w", ErrEntryRead, f.Name, MethodName(f.Method), err)
	}
	h.rc, h.closer = rc, rc

	return nil
}

// ReadEntry reads from the open source entry.
// It returns 0 and a nil error at the end of the entry.
func (h *Handle) ReadEntry(p []byte) (int, error) {
	if h.rc == nil {
		return 0, fmt.Errorf("%w: no open entry", ErrEntryRead)
	}

	n, err := h.rc.Read(p)
	if err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrEntryRead, err)
	}

	return n, nil
}

// OpenEntryRawWrite adds a new entry built from e.
// The bytes written afterwards must already be compressed with e.Method,
// they are stored as they are.
func (h *Handle) OpenEntryRawWrite(e Entry) error {
	if err := h.checkWritable(); err != nil {
		return fmt.Errorf("%w: %w", ErrEntryWrite, err)
	}
	if h.wh != nil {
		return fmt.Errorf("%w: %s: entry %s is still open", ErrEntryWrite, e.Name, h.wh.Name)
	}
	if !e.Raw {
		return fmt.Errorf("%w: %s: record is not marked raw", ErrEntryWrite, e.Name)
	}

	fh := e.header()
	w, err := h.zw.CreateRaw(fh)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEntryWrite, e.Name, err)
	}
	h.wh, h.w, h.written = fh, w, 0

	return nil
}

// WriteEntry writes compressed bytes to the open target entry.
func (h *Handle) WriteEntry(p []byte) (int, error) {
	if h.w == nil {
		return 0, fmt.Errorf("%w: no open entry", ErrEntryWrite)
	}

	n, err := h.w.Write(p)
	h.written += uint64(n)
	if err != nil {
		return n, fmt.Errorf("%w: %s: %w", ErrEntryWrite, h.wh.Name, err)
	}

	return n, nil
}

// CloseEntryRaw finalizes the open target entry with the given uncompressed size and CRC-32.
// The compressed size is the number of bytes actually written.
// The values end up in the data descriptor (if the entry has one) and in the central directory.
func (h *Handle) CloseEntryRaw(uncompressedSize uint64, crc uint32) error {
	if h.wh == nil {
		return fmt.Errorf("%w: no open entry", ErrEntryWrite)
	}

	fh, written := h.wh, h.written
	h.wh, h.w, h.written = nil, nil, 0

	// without a data descriptor the sizes were already written in the local header
	announced := fh.CompressedSize64
	hasDescriptor := fh.Flags&0x8 != 0

	fh.CRC32 = crc
	fh.UncompressedSize64 = uncompressedSize
	fh.CompressedSize64 = written
	fh.UncompressedSize = clamp32(uncompressedSize)
	fh.CompressedSize = clamp32(written)

	if !hasDescriptor && written != announced {
		return fmt.Errorf("%w: %s: wrote %d compressed bytes, header announced %d",
			ErrEntryWrite, fh.Name, written, announced)
	}

	return nil
}

// CloseEntry closes the open entry. A source entry releases its reader,
// a target entry is finalized with the size and CRC-32 of its record.
func (h *Handle) CloseEntry() error {
	if h.wh != nil {
		return h.CloseEntryRaw(h.wh.UncompressedSize64, h.wh.CRC32)
	}
	if h.rc == nil {
		return fmt.Errorf("%w: no open entry", ErrEntryRead)
	}

	closer := h.closer
	h.rc, h.closer = nil, nil
	if closer != nil {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("%w: %w", ErrEntryRead, err)
		}
	}

	return nil
}

// Close finalizes the archive. For a create handle this writes the central directory
// through the stream, which stays open.
func (h *Handle) Close() error {
	if h.closed {
		return fmt.Errorf("%w: %w", ErrArchiveClose, os.ErrClosed)
	}
	h.closed = true
	defer func() { h.stream, h.zr, h.zw, h.rc, h.closer, h.w = nil, nil, nil, nil, nil, nil }()

	var err error
	if h.closer != nil {
		err = h.closer.Close()
	}
	if h.zw != nil {
		if werr := h.zw.Close(); werr != nil {
			err = werr
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveClose, err)
	}

	return nil
}

func (h *Handle) checkReadable() error {
	if h.closed {
		return os.ErrClosed
	}
	if h.zr == nil {
		return errors.New("archive is not open for reading")
	}

	return nil
}

func (h *Handle) checkWritable() error {
	if h.closed {
		return os.ErrClosed
	}
	if h.zw == nil {
		return errors.New("archive is not open for writing")
	}

	return nil
}

func (h *Handle) current() (*zip.File, error) {
	if err := h.checkReadable(); err != nil {
		return nil, err
	}
	if h.cursor < 0 || h.cursor >= len(h.zr.File) {
		return nil, errors.New("cursor is not on an entry")
	}

	return h.zr.File[h.cursor], nil
}

func clamp32(v uint64) uint32 {
	if v >= 0xffffffff {
		return 0xffffffff
	}

	return uint32(v)
}
