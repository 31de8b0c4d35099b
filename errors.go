package rawzip

import (
	"errors"
	"fmt"
)

// Errors returned by the package. They are wrapped together with the failing
// path or entry name, so callers should compare with errors.Is.
var (
	// ErrIoOpen is returned when the file behind a backend cannot be opened, sized or read.
	ErrIoOpen = errors.New("rawzip: cannot open file")

	// ErrAllocation is returned when a backend buffer cannot be set up.
	ErrAllocation = errors.New("rawzip: cannot allocate buffer")

	// ErrArchiveOpen is returned when the stream does not hold a zip archive
	// the format library can open in the requested mode.
	ErrArchiveOpen = errors.New("rawzip: cannot open archive")

	// ErrDirectoryWalk is returned when the entry cursor cannot be moved.
	ErrDirectoryWalk = errors.New("rawzip: cannot walk archive directory")

	// ErrEndOfEntries is the terminal state of the entry cursor.
	// It is not a failure: an archive without entries yields it from FirstEntry.
	ErrEndOfEntries = errors.New("rawzip: end of entries")

	// ErrEntryRead is returned when an entry cannot be opened or read.
	ErrEntryRead = errors.New("rawzip: cannot read entry")

	// ErrEntryWrite is returned when an entry cannot be created, written or finalized.
	ErrEntryWrite = errors.New("rawzip: cannot write entry")

	// ErrShortWrite is returned when a target entry accepts fewer bytes than were read.
	// It also matches ErrEntryWrite.
	ErrShortWrite = fmt.Errorf("%w: short write", ErrEntryWrite)

	// ErrPersist is returned when an in-memory archive cannot be written out to its path.
	ErrPersist = errors.New("rawzip: cannot persist memory buffer")

	// ErrArchiveClose is returned when the archive cannot be finalized.
	ErrArchiveClose = errors.New("rawzip: cannot close archive")

	// ErrVerify is returned when a copied archive does not match its source.
	ErrVerify = errors.New("rawzip: verification failed")
)

// wrapAs makes sure err matches kind, without wrapping it twice.
func wrapAs(kind, err error) error {
	if err == nil || errors.Is(err, kind) {
		return err
	}

	return fmt.Errorf("%w: %w", kind, err)
}
