package source

// streaming.go holds the reader wrappers applied between storage and the
// record parser:
//
//   - countingReader tracks raw bytes pulled from storage for progress
//   - decode strips a BOM and transcodes to UTF-8, replacing invalid
//     sequences with U+FFFD
//
// The wrappers never buffer more than a transform window, so memory stays
// constant regardless of file size.

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "utf-8"

// countingReader counts bytes read. The count is read from other
// goroutines by the metrics endpoint.
type countingReader struct {
	r     io.Reader
	bytes atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.bytes.Add(int64(n))
	return n, err
}

// CheckEncoding reports whether label names a supported encoding.
func CheckEncoding(label string) error {
	_, err := lookupEncoding(label)
	return err
}

func lookupEncoding(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultEncoding
	}
	if _, err := htmlindex.Get(label); err != nil {
		return "", fmt.Errorf("unsupported encoding %q", label)
	}
	return label, nil
}

// decode wraps r so that it yields UTF-8 without a byte order mark. A BOM
// overrides the configured encoding.
func decode(r io.Reader, label string) (io.Reader, error) {
	label, err := lookupEncoding(label)
	if err != nil {
		return nil, err
	}
	enc, _ := htmlindex.Get(label)
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}
