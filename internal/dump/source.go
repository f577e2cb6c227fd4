// Package dump loads SQL dump scripts and splits them into statements.
package dump

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
)

// Source provides the text of a SQL dump.
type Source interface {
	// Name identifies the dump in progress output, typically its path.
	Name() string
	// Load returns the whole dump as text.
	Load() (string, error)
}

// File is a dump stored on disk. Paths ending in ".gz" are decompressed
// while reading.
type File struct {
	Path string
}

var _ Source = File{}

// Name returns the file path.
func (f File) Name() string { return f.Path }

// Load reads the entire file into memory.
func (f File) Load() (string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", f.Path)
	}
	defer func() { _ = fh.Close() }()

	var r io.Reader = fh
	if strings.EqualFold(filepath.Ext(f.Path), ".gz") {
		gz, err := pgzip.NewReader(fh)
		if err != nil {
			return "", errors.Wrapf(err, "create gzip reader for %s", f.Path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", f.Path)
	}
	return string(data), nil
}

// Embedded is a dump compiled into the binary.
type Embedded struct {
	Label string
	SQL   string
}

var _ Source = Embedded{}

// Name returns the label with an "embedded:" prefix.
func (e Embedded) Name() string { return "embedded:" + e.Label }

// Load returns the embedded text. It fails only for an empty dump.
func (e Embedded) Load() (string, error) {
	if strings.TrimSpace(e.SQL) == "" {
		return "", errors.Errorf("embedded dump %q is empty", e.Label)
	}
	return e.SQL, nil
}
