package workdir

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenTarXZ(t *testing.T) {
	d, err := Open(filepath.Join("testdata", "tree.tar.xz"))
	require.NoError(t, err)
	assert.Equal(t, []string{"res/xml/settings_headers.xml", "smali/a/A.smali"}, d.Paths())

	buf, ok := d.Get("./smali/a/A.smali")
	assert.True(t, ok)
	assert.Equal(t, ".class public La/A;\n.super Ljava/lang/Object;\n", string(buf))
	assert.Empty(t, d.Changed())
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join("testdata", "nonexistent"))
	assert.Error(t, err)

	_, err = Open("workdir.go")
	assert.Error(t, err)

	_, err = ReadTarXZ(bytes.NewReader([]byte("not xz")))
	assert.Error(t, err)
}

func TestReadDir(t *testing.T) {
	d, err := ReadDir(fstest.MapFS{
		"smali/a/A.smali":          {Data: []byte("a")},
		"smali_classes2/b/B.smali": {Data: []byte("b")},
		"res/values/public.xml":    {Data: []byte("c")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"smali/a/A.smali", "smali_classes2/b/B.smali"}, d.Glob("smali", ".smali"))
	assert.Equal(t, []string{"res/values/public.xml"}, d.Glob("res/", ""))
}

func TestPut(t *testing.T) {
	d := New()
	d.Put("a/b.txt", []byte("1"))
	d.Put("c.txt", []byte("2"))
	assert.Equal(t, []string{"a/b.txt", "c.txt"}, d.Changed())

	d = New()
	d.files["a.txt"] = []byte("same")
	d.Put("a.txt", []byte("same"))
	assert.Empty(t, d.Changed(), "writing identical contents should not mark the file as changed")
}

func TestEdit(t *testing.T) {
	d := New()
	d.files["a.xml"] = []byte("<a/>")

	assert.NoError(t, d.Edit("a.xml", func(buf []byte) ([]byte, error) {
		return append(buf, '\n'), nil
	}))
	buf, _ := d.Get("a.xml")
	assert.Equal(t, "<a/>\n", string(buf))

	assert.NoError(t, d.Edit("a.xml", func(buf []byte) ([]byte, error) {
		return nil, nil
	}))
	buf, _ = d.Get("a.xml")
	assert.Equal(t, "<a/>\n", string(buf))

	e := errors.New("oops")
	err := d.Edit("a.xml", func(buf []byte) ([]byte, error) {
		return []byte("discarded"), e
	})
	assert.ErrorIs(t, err, e)
	buf, _ = d.Get("a.xml")
	assert.Equal(t, "<a/>\n", string(buf))

	assert.ErrorIs(t, d.Edit("b.xml", func(buf []byte) ([]byte, error) {
		return buf, nil
	}), ErrNotExist)
}

func TestWrite(t *testing.T) {
	d := New()
	d.Put("smali/a/A.smali", []byte("a"))
	d.Put("res/xml/b.xml", []byte("b"))

	dir := t.TempDir()
	require.NoError(t, d.Write(filepath.Join(dir, "out")))
	buf, err := os.ReadFile(filepath.Join(dir, "out", "smali", "a", "A.smali"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(buf))

	d2, err := Open(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, d.Paths(), d2.Paths())

	require.NoError(t, d.Write(filepath.Join(dir, "out.tar.gz")))
	f, err := os.Open(filepath.Join(dir, "out.tar.gz"))
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(zr)
	files := map[string]string{}
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		buf, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[h.Name] = string(buf)
	}
	assert.Equal(t, map[string]string{
		"./res/xml/b.xml":   "b",
		"./smali/a/A.smali": "a",
	}, files)
}
