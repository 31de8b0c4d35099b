package rawzip

import (
	"fmt"
	"os"
	"strings"
)

// Mode selects the storage backend an archive session reads and writes through.
type Mode int8

const (
	// Direct reads and writes the file with plain OS calls.
	Direct Mode = iota + 1
	// Buffered puts a read-ahead and write-behind buffer in front of a Direct stream.
	Buffered
	// Memory keeps the whole archive in a byte buffer.
	// A created archive reaches the disk only when its session is closed.
	Memory
)

// OpenFlag describes how an archive is opened.
type OpenFlag int

const (
	OpenRead OpenFlag = 1 << iota
	OpenWrite
	OpenCreate

	// OpenReadWriteCreate creates (or truncates) the archive for writing.
	OpenReadWriteCreate = OpenRead | OpenWrite | OpenCreate
)

// Modes lists every backend mode.
var Modes = []Mode{Direct, Buffered, Memory}

// ParseMode parses a mode from its command line flag ("--normal", "--bufstream", "--memory")
// or from its name as returned by String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimLeft(s, "-")) {
	case "normal", "direct":
		return Direct, nil
	case "bufstream", "buffered":
		return Buffered, nil
	case "memory":
		return Memory, nil
	}

	return 0, fmt.Errorf("unknown backend mode %q", s)
}

func (m Mode) String() string {
	switch m {
	case Direct:
		return "direct"
	case Buffered:
		return "buffered"
	case Memory:
		return "memory"
	}

	return fmt.Sprintf("Mode(%d)", int8(m))
}

func (m Mode) valid() bool {
	return m == Direct || m == Buffered || m == Memory
}

func (f OpenFlag) create() bool {
	return f&OpenCreate != 0
}

// osFlags maps f to the flags used for os.OpenFile.
func (f OpenFlag) osFlags() int {
	switch {
	case f.create():
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case f&OpenWrite != 0:
		return os.O_RDWR
	default:
		return os.O_RDONLY
	}
}

func (f OpenFlag) String() string {
	var parts []string
	if f&OpenRead != 0 {
		parts = append(parts, "read")
	}
	if f&OpenWrite != 0 {
		parts = append(parts, "write")
	}
	if f.create() {
		parts = append(parts, "create")
	}
	if len(parts) == 0 {
		return "none"
	}

	return strings.Join(parts, "|")
}
