package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPath_EqualIgnoresSignature(t *testing.T) {
	a := CreateNew("/src/main.cpp", 1)
	b := CreateNew("/src/main.cpp", 2)
	c := CreateNew("/src/other.cpp", 1)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestCreateNew_Normalizes(t *testing.T) {
	p := CreateNew("/src/../src/./main.cpp", 7)
	assert.Equal(t, filepath.Clean("/src/main.cpp"), p.Name)
	assert.Equal(t, uint64(7), p.Signature)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeHash, false},
		{"hash", ModeHash, false},
		{"Timestamp", ModeTimestamp, false},
		{"mtime", ModeTimestamp, false},
		{"sha1", ModeHash, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateExisting_Missing(t *testing.T) {
	fp, err := New(ModeHash, 0)
	require.NoError(t, err)

	_, err = fp.CreateExisting(filepath.Join(t.TempDir(), "missing.c"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fp.CreateExisting(t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound, "directories are not files")
}

func TestCreateExisting_HashMode(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, filepath.Join(dir, "a.c"), "int a;")

	fp, err := New(ModeHash, 0)
	require.NoError(t, err)

	first, err := fp.CreateExisting(file)
	require.NoError(t, err)

	again, err := fp.CreateExisting(file)
	require.NoError(t, err)
	assert.Equal(t, first.Signature, again.Signature, "same content should hash the same")

	writeFile(t, file, "int a = 1;")
	changed, err := fp.CreateExisting(file)
	require.NoError(t, err)
	assert.NotEqual(t, first.Signature, changed.Signature)

	// Same content under another name gives the same signature
	other := writeFile(t, filepath.Join(dir, "b.c"), "int a = 1;")
	copyPath, err := fp.CreateExisting(other)
	require.NoError(t, err)
	assert.Equal(t, changed.Signature, copyPath.Signature)
}

func TestCreateExisting_TimestampMode(t *testing.T) {
	file := writeFile(t, filepath.Join(t.TempDir(), "a.c"), "int a;")

	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(file, mtime, mtime))

	fp, err := New(ModeTimestamp, 0)
	require.NoError(t, err)

	p, err := fp.CreateExisting(file)
	require.NoError(t, err)
	assert.Equal(t, uint64(mtime.UnixNano()), p.Signature)
	assert.Equal(t, ModeTimestamp, fp.Mode())
}

func TestCreateExistingAll(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		writeFile(t, filepath.Join(dir, "a.c"), "a"),
		writeFile(t, filepath.Join(dir, "sub", "b.c"), "b"),
		writeFile(t, filepath.Join(dir, "c.c"), "c"),
	}

	fp, err := New(ModeHash, 0)
	require.NoError(t, err)

	set, err := fp.CreateExistingAll(names)
	require.NoError(t, err)
	assert.Len(t, set, 3)

	for _, n := range names {
		assert.True(t, set.Contains(n))
	}

	_, err = fp.CreateExistingAll(append(names, filepath.Join(dir, "gone.c")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSet_NamesSorted(t *testing.T) {
	s := NewSet(CreateNew("/b", 2), CreateNew("/a", 1), CreateNew("/c", 3))

	assert.Equal(t, []string{"/a", "/b", "/c"}, s.Names())
	assert.Equal(t, Path{Name: "/a", Signature: 1}, s.Paths()[0])

	c := s.Clone()
	c.Add(CreateNew("/d", 4))
	assert.Len(t, s, 3)
	assert.Len(t, c, 4)
	assert.Nil(t, Set(nil).Clone())
}

func TestPathSet(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.h"), "a")

	var ps PathSet
	assert.True(t, ps.Add(a))
	assert.False(t, ps.Add(filepath.Join(dir, ".", "a.h")), "duplicates collapse after normalisation")
	assert.True(t, ps.Add(filepath.Join(dir, "later.h")))
	assert.Equal(t, 2, ps.Len())
	assert.Equal(t, []string{a, filepath.Join(dir, "later.h")}, ps.User())

	fp, err := New(ModeHash, 0)
	require.NoError(t, err)

	// later.h does not exist yet
	_, err = ps.Convert(fp)
	assert.ErrorIs(t, err, ErrNotFound)

	writeFile(t, filepath.Join(dir, "later.h"), "now it does")
	set, err := ps.Convert(fp)
	require.NoError(t, err)
	assert.Len(t, set, 2)
}
