package rawzip

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const defaultGrowSize = 128 * 1024

var errBorrowedWrite = errors.New("rawzip: write to a borrowed memory buffer")

// memStream is a Stream over a byte slice.
// It either grows as it is written, or serves a buffer lent to it by its owner.
// A lent buffer is never written, resized or kept after Close.
type memStream struct {
	data     []byte
	pos      int64
	grow     int
	borrowed bool
	closed   bool
}

// Interface guard
var _ Stream = (*memStream)(nil)

func newMemStream(grow int) (*memStream, error) {
	if grow <= 0 {
		return nil, fmt.Errorf("%w: memory grow size %d", ErrAllocation, grow)
	}

	return &memStream{grow: grow}, nil
}

// lend makes buf the backing storage without taking ownership of it.
func (m *memStream) lend(buf []byte) {
	m.data = buf
	m.pos = 0
	m.borrowed = true
}

func (m *memStream) Read(p []byte) (int, error) {
	if m.closed {
		return 0, os.ErrClosed
	}
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}

	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)

	return n, nil
}

func (m *memStream) ReadAt(p []byte, off int64) (int, error) {
	if m.closed {
		return 0, os.ErrClosed
	}
	if off < 0 {
		return 0, errors.New("rawzip: negative offset")
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}

	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (m *memStream) Write(p []byte) (int, error) {
	if m.closed {
		return 0, os.ErrClosed
	}
	if m.borrowed {
		return 0, errBorrowedWrite
	}

	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		m.ensure(end)
		m.data = m.data[:end]
	}

	n := copy(m.data[m.pos:], p)
	m.pos += int64(n)

	return n, nil
}

// ensure grows the capacity in steps of m.grow until it holds n bytes.
func (m *memStream) ensure(n int64) {
	if n <= int64(cap(m.data)) {
		return
	}

	c := int64(cap(m.data))
	for c < n {
		c += int64(m.grow)
	}

	data := make([]byte, len(m.data), c)
	copy(data, m.data)
	m.data = data
}

func (m *memStream) Seek(offset int64, whence int) (int64, error) {
	if m.closed {
		return 0, os.ErrClosed
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.data)) + offset
	default:
		return 0, errors.New("rawzip: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("rawzip: negative position")
	}
	m.pos = abs

	return abs, nil
}

// Bytes returns the current contents. The slice is only valid until the next Write or Close.
func (m *memStream) Bytes() []byte {
	return m.data
}

// Close drops the reference to the backing storage.
// A lent buffer stays with its owner, who is responsible for it.
func (m *memStream) Close() error {
	if m.closed {
		return os.ErrClosed
	}
	m.closed = true
	m.data = nil

	return nil
}
