package rawzip

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const defaultBufferSize = 64 * 1024

// bufferedStream batches small reads and writes into larger calls on its base stream.
// Reads go through a read-ahead window, writes are collected in a write-behind
// buffer and flushed when it is full, when the position jumps, or before any read.
//
// The base stream is borrowed: Close flushes pending writes but never closes the base.
// Whoever created the base must close it after the bufferedStream.
type bufferedStream struct {
	base Stream
	size int
	pos  int64

	rbuf []byte
	roff int64 // offset of rbuf[0] in base
	rlen int   // valid bytes in rbuf

	wbuf []byte // pending writes
	woff int64  // offset of wbuf[0] in base

	closed bool
}

// Interface guard
var _ Stream = (*bufferedStream)(nil)

func newBufferedStream(base Stream, size int) (*bufferedStream, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: buffered stream without base", ErrAllocation)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: buffer size %d", ErrAllocation, size)
	}

	return &bufferedStream{
		base: base,
		size: size,
		rbuf: make([]byte, size),
		wbuf: make([]byte, 0, size),
	}, nil
}

func (b *bufferedStream) Read(p []byte) (int, error) {
	n, err := b.ReadAt(p, b.pos)
	b.pos += int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}

	return n, err
}

func (b *bufferedStream) ReadAt(p []byte, off int64) (int, error) {
	if b.closed {
		return 0, os.ErrClosed
	}
	if off < 0 {
		return 0, errors.New("rawzip: negative offset")
	}
	if err := b.flush(); err != nil {
		return 0, err
	}

	var n int
	for n < len(p) {
		cur := off + int64(n)
		if cur < b.roff || cur >= b.roff+int64(b.rlen) {
			// reads larger than the window bypass it
			if len(p)-n >= b.size {
				m, err := b.base.ReadAt(p[n:], cur)
				return n + m, err
			}
			if err := b.fill(cur); err != nil {
				return n, err
			}
			if b.rlen == 0 {
				return n, io.EOF
			}
		}
		n += copy(p[n:], b.rbuf[cur-b.roff:b.rlen])
	}

	return n, nil
}

// fill loads the read-ahead window starting at off.
func (b *bufferedStream) fill(off int64) error {
	n, err := b.base.ReadAt(b.rbuf, off)
	b.roff, b.rlen = off, n
	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

func (b *bufferedStream) Write(p []byte) (int, error) {
	if b.closed {
		return 0, os.ErrClosed
	}
	if len(b.wbuf) > 0 && b.woff+int64(len(b.wbuf)) != b.pos {
		if err := b.flush(); err != nil {
			return 0, err
		}
	}
	b.rlen = 0

	var n int
	for n < len(p) {
		if len(b.wbuf) == 0 {
			b.woff = b.pos
		}
		m := copy(b.wbuf[len(b.wbuf):cap(b.wbuf)], p[n:])
		b.wbuf = b.wbuf[:len(b.wbuf)+m]
		n += m
		b.pos += int64(m)

		if len(b.wbuf) == cap(b.wbuf) {
			if err := b.flush(); err != nil {
				return n, err
			}
		}
	}

	return n, nil
}

// flush writes pending bytes to the base at their offset.
// Bytes the base did not accept stay pending.
func (b *bufferedStream) flush() error {
	if len(b.wbuf) == 0 {
		return nil
	}
	if _, err := b.base.Seek(b.woff, io.SeekStart); err != nil {
		return err
	}

	n, err := b.base.Write(b.wbuf)
	if err == nil && n != len(b.wbuf) {
		err = io.ErrShortWrite
	}
	b.wbuf = b.wbuf[:copy(b.wbuf, b.wbuf[n:])]
	b.woff += int64(n)

	return err
}

func (b *bufferedStream) Seek(offset int64, whence int) (int64, error) {
	if b.closed {
		return 0, os.ErrClosed
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.pos + offset
	case io.SeekEnd:
		end, err := b.base.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		if pending := b.woff + int64(len(b.wbuf)); len(b.wbuf) > 0 && pending > end {
			end = pending
		}
		abs = end + offset
	default:
		return 0, errors.New("rawzip: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("rawzip: negative position")
	}
	b.pos = abs

	return abs, nil
}

// Close flushes pending writes and releases the buffers. The base stays open.
func (b *bufferedStream) Close() error {
	if b.closed {
		return os.ErrClosed
	}

	err := b.flush()
	b.closed = true
	b.rbuf, b.wbuf = nil, nil

	return err
}
