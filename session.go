package rawzip

import (
	"fmt"
)

// Session owns the storage backend of one archive file and the Handle reading or writing it.
// Open acquires the backend and then the handle; Close releases them in the reverse order.
type Session struct {
	path  string
	mode  Mode
	flags OpenFlag

	backend *backend
	handle  *Handle
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	bufferSize int
	growSize   int
}

func defaultSessionOptions() sessionOptions {
	return sessionOptions{
		bufferSize: defaultBufferSize,
		growSize:   defaultGrowSize,
	}
}

// WithBufferSize sets the buffer size of the Buffered backend.
func WithBufferSize(n int) SessionOption {
	return func(o *sessionOptions) {
		o.bufferSize = n
	}
}

// WithGrowSize sets the step by which a created Memory archive grows.
func WithGrowSize(n int) SessionOption {
	return func(o *sessionOptions) {
		o.growSize = n
	}
}

// Open opens the archive at path through the backend selected by mode.
//
// With OpenRead the archive must exist. With OpenReadWriteCreate a new archive is started:
// the Direct and Buffered backends truncate path right away, the Memory backend
// does not touch path until Close.
//
// If Open fails, nothing is left open.
func Open(path string, mode Mode, flags OpenFlag, opts ...SessionOption) (*Session, error) {
	if !mode.valid() {
		return nil, fmt.Errorf("%w: %s: unsupported backend mode %v", ErrIoOpen, path, mode)
	}

	o := defaultSessionOptions()
	for _, opt := range opts {
		opt(&o)
	}

	b, err := newBackend(mode, path, flags, o)
	if err != nil {
		return nil, err
	}

	h, err := OpenHandle(b.stream(), flags)
	if err != nil {
		td := teardown{path: path}
		b.close(&td, false)
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Session{
		path:    path,
		mode:    mode,
		flags:   flags,
		backend: b,
		handle:  h,
	}, nil
}

// Path returns the archive path.
func (s *Session) Path() string {
	return s.path
}

// Mode returns the backend mode.
func (s *Session) Mode() Mode {
	return s.mode
}

// Handle returns the archive handle. It is valid until Close.
func (s *Session) Handle() *Handle {
	return s.handle
}

// Close finalizes the archive and releases the backend.
//
// The handle is closed first, since finalizing may still write through the backend.
// Then the backend streams are released; a created Memory archive is written out to
// its path at this point. Every step runs even if an earlier one failed, and the first
// failure is returned. Closing a closed session does nothing.
func (s *Session) Close() error {
	if s.backend == nil {
		return nil
	}

	td := teardown{path: s.path}
	if s.handle != nil {
		td.step("closing archive", s.handle.Close())
		s.handle = nil
	}

	s.backend.close(&td, true)
	s.backend = nil

	return td.err
}
