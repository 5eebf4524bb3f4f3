// Package source opens the delimited input of an upload run.
//
// An input location is either a local path or a gocloud.dev blob URL
// (file://, s3://, gs://). Inputs ending in .gz or .zst are decompressed
// on the fly, and the text is decoded to UTF-8 before it reaches the
// record parser.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/gcsblob"  // gs:// URLs
	_ "gocloud.dev/blob/s3blob"   // s3:// URLs

	"github.com/JonMunkholm/elastic-upload/internal/fault"
)

// Options configures how an input is opened.
type Options struct {
	// Encoding is a WHATWG encoding label (utf-8, windows-1252, shift_jis, ...).
	Encoding string
}

// Input is an opened, decoded input stream. Close releases every layer,
// including the storage handle.
type Input struct {
	// Name is the base name of the location, e.g. "people.csv.gz".
	Name string
	// Size is the stored size in bytes, 0 if unknown.
	Size int64

	r       io.Reader
	counter *countingReader
	closers []io.Closer // closed last-to-first
	closed  bool
}

// Read implements io.Reader.
func (in *Input) Read(p []byte) (int, error) { return in.r.Read(p) }

// BytesRead returns the number of stored bytes consumed so far.
func (in *Input) BytesRead() int64 { return in.counter.bytes.Load() }

// Progress returns the read progress as a percentage (0-100), or 0 when
// the size is unknown.
func (in *Input) Progress() int {
	if in.Size <= 0 {
		return 0
	}
	return int(in.BytesRead() * 100 / in.Size)
}

// Close releases the input. It is safe to call more than once.
func (in *Input) Close() error {
	if in.closed {
		return nil
	}
	in.closed = true

	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open opens location for reading. Errors are construction errors.
func Open(ctx context.Context, location string, opts Options) (*Input, error) {
	in, err := open(ctx, location, opts)
	if err != nil {
		return nil, fault.Construction("open input", err)
	}
	return in, nil
}

func open(ctx context.Context, location string, opts Options) (*Input, error) {
	in := &Input{}

	var raw io.Reader
	if IsURL(location) {
		rd, name, err := openBlob(ctx, in, location)
		if err != nil {
			in.Close()
			return nil, err
		}
		raw, in.Name = rd, name
	} else {
		f, err := os.Open(location)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, f)
		if st, err := f.Stat(); err == nil {
			in.Size = st.Size()
		}
		raw, in.Name = f, filepath.Base(location)
	}

	in.counter = &countingReader{r: raw}
	var r io.Reader = in.counter

	switch compression(in.Name) {
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("gzip %s: %w", in.Name, err)
		}
		in.closers = append(in.closers, zr)
		r = zr
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("zstd %s: %w", in.Name, err)
		}
		rc := zr.IOReadCloser()
		in.closers = append(in.closers, rc)
		r = rc
	}

	decoded, err := decode(r, opts.Encoding)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.r = decoded
	return in, nil
}

// openBlob opens a blob URL. The bucket is registered on in for closing.
func openBlob(ctx context.Context, in *Input, location string) (io.Reader, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, "", fmt.Errorf("parse input url: %w", err)
	}

	bucketURL := *u
	var key string
	if u.Scheme == "file" {
		// fileblob buckets are directories
		bucketURL.Path = path.Dir(u.Path)
		key = path.Base(u.Path)
	} else {
		bucketURL.Path = ""
		key = strings.TrimPrefix(u.Path, "/")
	}
	if key == "" || key == "." || key == "/" {
		return nil, "", fmt.Errorf("input url %q has no object key", location)
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL.String())
	if err != nil {
		return nil, "", fmt.Errorf("open bucket: %w", err)
	}
	in.closers = append(in.closers, bucket)

	rd, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", key, err)
	}
	in.closers = append(in.closers, rd)
	in.Size = rd.Size()

	return rd, path.Base(key), nil
}

// IsURL reports whether location is a blob URL rather than a local path.
func IsURL(location string) bool {
	return strings.Contains(location, "://")
}

func compression(name string) string {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".gz", ".zst":
		return ext
	}
	return ""
}

// IndexName derives an index name from an input location: the base name
// without compression and data extensions, in lower case.
func IndexName(location string) string {
	name := location
	if IsURL(location) {
		if u, err := url.Parse(location); err == nil {
			name = u.Path
		}
	}
	name = path.Base(filepath.ToSlash(name))
	if ext := compression(name); ext != "" {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.ToLower(name)
}
