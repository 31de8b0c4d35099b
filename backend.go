package rawzip

import (
	"fmt"
	"io"
	"os"

	"github.com/pchchv/golog"
)

// persistChunkSize is the chunk size used to write an in-memory archive out to disk.
const persistChunkSize = 65535

// Stream is the byte-level capability every backend exposes to an archive handle.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
	io.ReaderAt
	io.Closer
}

// backend holds the streams a session owns for one Mode.
// Which fields are set depends on the mode:
//
//	Direct:   direct
//	Buffered: direct, buffered (buffered borrows direct)
//	Memory:   mem, and buf when an existing file was loaded (mem borrows buf)
type backend struct {
	mode  Mode
	path  string
	flags OpenFlag

	direct   *os.File
	buffered *bufferedStream
	mem      *memStream
	buf      []byte
}

// newBackend opens the storage for path. On failure nothing is left open.
func newBackend(mode Mode, path string, flags OpenFlag, opts sessionOptions) (*backend, error) {
	b := &backend{mode: mode, path: path, flags: flags}

	switch mode {
	case Direct:
		f, err := openFile(path, flags)
		if err != nil {
			return nil, err
		}
		b.direct = f
	case Buffered:
		f, err := openFile(path, flags)
		if err != nil {
			return nil, err
		}
		bs, err := newBufferedStream(f, opts.bufferSize)
		if err != nil {
			f.Close()
			return nil, err
		}
		b.direct, b.buffered = f, bs
	case Memory:
		ms, err := newMemStream(opts.growSize)
		if err != nil {
			return nil, err
		}
		if !flags.create() {
			// the session keeps ownership of buf, ms only borrows it
			buf, err := readFileIntoBuffer(path)
			if err != nil {
				return nil, err
			}
			ms.lend(buf)
			b.buf = buf
		}
		b.mem = ms
	default:
		return nil, fmt.Errorf("%w: unsupported backend mode %v", ErrIoOpen, mode)
	}

	return b, nil
}

// stream returns the stream an archive handle should use.
func (b *backend) stream() Stream {
	switch b.mode {
	case Direct:
		return b.direct
	case Buffered:
		return b.buffered
	case Memory:
		return b.mem
	}

	panic("rawzip: stream of unknown backend mode " + b.mode.String())
}

// close releases the streams in the order the mode requires, attempting every step.
// When persist is set, a created Memory archive is written out to the path first.
func (b *backend) close(td *teardown, persist bool) {
	switch b.mode {
	case Direct:
		td.step("closing file", b.direct.Close())
		b.direct = nil
	case Buffered:
		td.step("closing buffered stream", b.buffered.Close())
		b.buffered = nil
		// the buffered stream never closes its base
		td.step("closing file", b.direct.Close())
		b.direct = nil
	case Memory:
		if b.buf != nil {
			b.buf = nil
		} else if persist && b.flags.create() {
			td.step("persisting memory buffer", persistStream(b.mem, b.path))
		}
		td.step("closing memory stream", b.mem.Close())
		b.mem = nil
	default:
		panic("rawzip: close of unknown backend mode " + b.mode.String())
	}
}

func openFile(path string, flags OpenFlag) (*os.File, error) {
	f, err := os.OpenFile(path, flags.osFlags(), 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIoOpen, path, err)
	}

	return f, nil
}

// readFileIntoBuffer loads the whole file at path into a new buffer owned by the caller.
func readFileIntoBuffer(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIoOpen, path, err)
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: seeking to end of %s: %w", ErrIoOpen, path, err)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid file size %d", ErrAllocation, path, size)
	}

	// go back to the beginning before reading
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seeking to start of %s: %w", ErrIoOpen, path, err)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrIoOpen, path, err)
	}

	return buf, nil
}

// persistStream writes the contents of ms to a new file at path.
// The central directory is only complete once the archive handle is closed,
// so this must run after it.
func persistStream(ms *memStream, path string) (err error) {
	if ms.closed {
		return fmt.Errorf("%w: %s: %w", ErrPersist, path, os.ErrClosed)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: closing %s: %w", ErrPersist, path, cerr)
		}
	}()

	if err := writeChunks(f, ms.Bytes()); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return nil
}

// writeChunks writes data to w, persistChunkSize bytes at a time.
func writeChunks(w io.Writer, data []byte) error {
	for len(data) > 0 {
		chunk := data[:min(len(data), persistChunkSize)]

		n, err := w.Write(chunk)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPersist, err)
		}
		if n != len(chunk) {
			return fmt.Errorf("%w: wrote %d of %d bytes", ErrPersist, n, len(chunk))
		}
		data = data[n:]
	}

	return nil
}

// teardown runs release steps to the end, logging each failure and keeping the first one.
type teardown struct {
	path string
	err  error
}

func (td *teardown) step(what string, err error) {
	if err == nil {
		return
	}

	golog.Error("%s: %s: %v", td.path, what, err)
	if td.err == nil {
		td.err = err
	}
}
