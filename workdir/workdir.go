// Package workdir provides an in-memory handle to a decompiled application
// tree.
package workdir

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xi2/xz"
)

// Dir is a set of files addressed by slash-separated paths relative to the
// root of the tree.
type Dir struct {
	files   map[string][]byte
	changed map[string]bool
}

// New creates an empty Dir.
func New() *Dir {
	return &Dir{
		files:   map[string][]byte{},
		changed: map[string]bool{},
	}
}

// Open reads a tree from a directory or a .tar.xz bundle.
func Open(name string) (*Dir, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	if fi.IsDir() {
		d, err := ReadDir(os.DirFS(name))
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		return d, nil
	}
	if !strings.HasSuffix(name, ".tar.xz") && !strings.HasSuffix(name, ".txz") {
		return nil, fmt.Errorf("Open: %s is not a directory or a .tar.xz file", name)
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	defer f.Close()
	d, err := ReadTarXZ(f)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	return d, nil
}

// ReadDir reads every regular file from fsys.
func ReadDir(fsys fs.FS) (*Dir, error) {
	d := New()
	err := fs.WalkDir(fsys, ".", func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !e.Type().IsRegular() {
			return nil
		}
		buf, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		d.files[p] = buf
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}
	return d, nil
}

// ReadTarXZ reads every regular file from an xz-compressed tarball.
func ReadTarXZ(r io.Reader) (*Dir, error) {
	xr, err := xz.NewReader(r, 0)
	if err != nil {
		return nil, fmt.Errorf("read tar.xz: %w", err)
	}
	d := New()
	tr := tar.NewReader(xr)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("read tar.xz: %w", err)
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		buf, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read tar.xz: %s: %w", h.Name, err)
		}
		d.files[clean(h.Name)] = buf
	}
	return d, nil
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(p)), "/")
}

// Get gets the contents of a file.
func (d *Dir) Get(p string) ([]byte, bool) {
	buf, ok := d.files[clean(p)]
	return buf, ok
}

// Put sets the contents of a file, creating it if it doesn't exist.
func (d *Dir) Put(p string, buf []byte) {
	p = clean(p)
	if old, ok := d.files[p]; ok && bytes.Equal(old, buf) {
		return
	}
	d.files[p] = buf
	d.changed[p] = true
}

// Paths returns the sorted paths of all files.
func (d *Dir) Paths() []string {
	ps := make([]string, 0, len(d.files))
	for p := range d.files {
		ps = append(ps, p)
	}
	sort.Strings(ps)
	return ps
}

// Glob returns the sorted paths which start with prefix and end with suffix.
func (d *Dir) Glob(prefix, suffix string) []string {
	var ps []string
	for _, p := range d.Paths() {
		if strings.HasPrefix(p, prefix) && strings.HasSuffix(p, suffix) {
			ps = append(ps, p)
		}
	}
	return ps
}

// Changed returns the sorted paths of the files which were modified.
func (d *Dir) Changed() []string {
	var ps []string
	for p := range d.changed {
		ps = append(ps, p)
	}
	sort.Strings(ps)
	return ps
}

// ErrNotExist is returned by Edit if the file does not exist.
var ErrNotExist = errors.New("file does not exist")

// Edit calls fn with the contents of a file, and stores the result if fn
// returns a nil error. If fn returns nil contents, the file is left as-is.
func (d *Dir) Edit(p string, fn func(buf []byte) ([]byte, error)) error {
	buf, ok := d.Get(p)
	if !ok {
		return fmt.Errorf("Edit(%s): %w", p, ErrNotExist)
	}
	out, err := fn(buf)
	if err != nil {
		return fmt.Errorf("Edit(%s): %w", p, err)
	}
	if out != nil {
		d.Put(p, out)
	}
	return nil
}

// Write writes the tree to a directory or, if the name ends with .tar.gz or
// .tgz, to a gzipped tarball.
func (d *Dir) Write(name string) error {
	if strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz") {
		var buf bytes.Buffer
		if err := d.WriteTarGz(&buf); err != nil {
			return fmt.Errorf("Write: %w", err)
		}
		if err := os.WriteFile(name, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("Write: %w", err)
		}
		return nil
	}
	for _, p := range d.Paths() {
		fn := filepath.Join(name, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
			return fmt.Errorf("Write: %w", err)
		}
		if err := os.WriteFile(fn, d.files[p], 0644); err != nil {
			return fmt.Errorf("Write: %w", err)
		}
	}
	return nil
}

// WriteTarGz writes the tree as a gzipped tarball.
func (d *Dir) WriteTarGz(w io.Writer) error {
	zw := gzip.NewWriter(w)
	tw := tar.NewWriter(zw)
	now := time.Now()
	for _, p := range d.Paths() {
		buf := d.files[p]
		if err := tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     "./" + p,
			Mode:     0644,
			ModTime:  now,
			Size:     int64(len(buf)),
			Format:   tar.FormatPAX,
		}); err != nil {
			return fmt.Errorf("write header for %s: %w", p, err)
		}
		if _, err := tw.Write(buf); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("finish tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish gzip: %w", err)
	}
	return nil
}
