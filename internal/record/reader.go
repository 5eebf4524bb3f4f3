package record

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/elastic-upload/internal/fault"
	"github.com/JonMunkholm/elastic-upload/internal/naming"
)

// Options configures a Reader.
type Options struct {
	// Delimiter separates fields. A single character is parsed with full
	// quoting support; longer delimiters split plain lines.
	Delimiter string

	// Strategy normalizes header names.
	Strategy naming.Strategy
}

// Header is the header line of the input and its normalized field names.
type Header struct {
	Raw   []string // trimmed column headers as they appear in the file
	Names []string // normalized field names, same length as Raw

	dups bool // two columns normalize to the same name
}

// Len returns the number of columns.
func (h Header) Len() int { return len(h.Raw) }

// Lookup returns the normalized name for a raw header. When a raw header
// appears more than once the last column wins.
func (h Header) Lookup(raw string) (string, bool) {
	for i := len(h.Raw) - 1; i >= 0; i-- {
		if h.Raw[i] == raw {
			return h.Names[i], true
		}
	}
	return "", false
}

func newHeader(raw []string, normalize naming.Func) Header {
	h := Header{
		Raw:   make([]string, len(raw)),
		Names: make([]string, len(raw)),
	}
	seen := make(map[string]struct{}, len(raw))
	for i, col := range raw {
		col = strings.TrimSpace(col)
		name := normalize(col)
		h.Raw[i] = col
		h.Names[i] = name
		if _, ok := seen[name]; ok {
			h.dups = true
		}
		seen[name] = struct{}{}
	}
	return h
}

// Stats counts what a Reader has consumed so far.
type Stats struct {
	Records   int // records returned
	Blank     int // blank lines skipped
	Truncated int // rows with more fields than headers; extra fields dropped
}

// rowSource yields raw rows split by the delimiter.
type rowSource interface {
	Read() ([]string, error)
}

// Reader is a forward-only record stream over one delimited input.
// It is not safe for concurrent use.
type Reader struct {
	src    io.Closer
	rows   rowSource
	header Header
	stats  Stats
	done   bool
	closed bool
}

// NewReader reads the header line of src and prepares the record stream.
// The Reader takes ownership of src; it is closed by Close, or immediately
// when NewReader fails.
func NewReader(src io.ReadCloser, opts Options) (*Reader, error) {
	delim, err := ParseDelimiter(opts.Delimiter)
	if err != nil {
		src.Close()
		return nil, err
	}

	r := &Reader{src: src, rows: newRowSource(src, delim)}

	raw, err := r.nextRow()
	if errors.Is(err, io.EOF) {
		// Empty input: no header, no records.
		r.done = true
		return r, nil
	}
	if err != nil {
		src.Close()
		return nil, fault.Construction("read header", err)
	}
	if len(raw) < 2 {
		src.Close()
		return nil, fault.Newf(fault.KindConstruction, "read header",
			"delimiter %q not found in header line %q", delim, strings.Join(raw, ""))
	}

	r.header = newHeader(raw, opts.Strategy.Func())
	return r, nil
}

// Header returns the parsed header.
func (r *Reader) Header() Header { return r.header }

// Stats returns counters for the rows consumed so far.
func (r *Reader) Stats() Stats { return r.stats }

// Next returns the next record. It returns io.EOF at the end of input and
// ctx.Err() once ctx is cancelled.
func (r *Reader) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if r.done || r.closed {
		return Record{}, io.EOF
	}

	row, err := r.nextRow()
	if errors.Is(err, io.EOF) {
		r.done = true
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, fault.Construction("read row", err)
	}

	names := r.header.Names
	if len(row) > len(names) {
		r.stats.Truncated++
		row = row[:len(names)]
	}

	rec := Record{
		keys:   make([]string, 0, len(row)),
		values: make([]string, 0, len(row)),
	}
	for i, v := range row {
		rec.set(names[i], strings.TrimSpace(v), r.header.dups)
	}
	r.stats.Records++
	return rec, nil
}

// nextRow returns the next row, skipping empty and whitespace-only lines.
// A line made only of delimiters is a row of empty values.
func (r *Reader) nextRow() ([]string, error) {
	for {
		row, err := r.rows.Read()
		if err != nil {
			return nil, err
		}
		if !isBlank(row) {
			return row, nil
		}
		if r.header.Len() > 0 {
			r.stats.Blank++
		}
	}
}

// Close releases the underlying source. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.Close()
}

// isBlank reports whether row came from a line without any delimiter and
// nothing but whitespace.
func isBlank(row []string) bool {
	return len(row) == 1 && strings.TrimSpace(row[0]) == ""
}

// ParseDelimiter validates a delimiter option. "\t" and "tab" both mean TAB.
func ParseDelimiter(s string) (string, error) {
	switch strings.ToLower(s) {
	case `\t`, "tab":
		return "\t", nil
	}
	if s == "" {
		return "", fault.Newf(fault.KindConfig, "delimiter", "delimiter must not be empty")
	}
	if strings.ContainsAny(s, "\r\n") {
		return "", fault.Newf(fault.KindConfig, "delimiter", "delimiter must not contain a line break")
	}
	if s == `"` {
		return "", fault.Newf(fault.KindConfig, "delimiter", "delimiter must not be the quote character")
	}
	return s, nil
}

func newRowSource(r io.Reader, delim string) rowSource {
	if utf8.RuneCountInString(delim) == 1 {
		comma, _ := utf8.DecodeRuneInString(delim)
		cr := csv.NewReader(r)
		cr.Comma = comma
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		cr.ReuseRecord = true
		return cr
	}
	return &lineSplitter{r: bufio.NewReader(r), delim: delim}
}

// lineSplitter splits plain lines on a multi-character delimiter. Quoting
// is not interpreted.
type lineSplitter struct {
	r     *bufio.Reader
	delim string
	line  int
}

func (s *lineSplitter) Read() ([]string, error) {
	line, err := s.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("line %d: %w", s.line+1, err)
	}
	s.line++
	line = strings.TrimRight(line, "\r\n")
	return strings.Split(line, s.delim), nil
}
