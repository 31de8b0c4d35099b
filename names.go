package rawzip

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// nameDecoder turns entry names into printable text for log lines.
type nameDecoder struct {
	enc encoding.Encoding
}

func newNameDecoder(textEncoding string) (nameDecoder, error) {
	if textEncoding == "" {
		// the zip format defaults to IBM PC code page 437
		return nameDecoder{enc: charmap.CodePage437}, nil
	}

	enc, err := ianaindex.IANA.Encoding(textEncoding)
	if err != nil {
		return nameDecoder{}, fmt.Errorf("text encoding %q: %w", textEncoding, err)
	}
	if enc == nil {
		return nameDecoder{}, fmt.Errorf("text encoding %q is not supported", textEncoding)
	}

	return nameDecoder{enc: enc}, nil
}

// decode returns the name of e as text. UTF-8 names are returned as they are.
func (d nameDecoder) decode(e Entry) string {
	if !e.NonUTF8 || d.enc == nil {
		return e.Name
	}

	name, err := d.enc.NewDecoder().String(e.Name)
	if err != nil {
		return e.Name
	}

	return name
}
