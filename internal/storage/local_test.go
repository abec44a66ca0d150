package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "kb", "1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "kb", "1", "a.txt"), []byte("hello"), 0o644))
	l, err := NewLocal(root)
	require.NoError(t, err)
	return l
}

func TestResolve(t *testing.T) {
	l := newLocal(t)
	want := filepath.Join(l.Root(), "kb", "1", "a.txt")

	tests := []string{
		"kb/1/a.txt",
		"/kb/1/a.txt",
		"///kb/1/a.txt",
		`kb\1\a.txt`,
		`\kb\1\a.txt`,
		"kb/./1/../1/a.txt",
		"  kb/1/a.txt  ",
	}
	for _, in := range tests {
		got, err := l.Resolve(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestResolve_RejectsTraversal(t *testing.T) {
	l := newLocal(t)

	for _, in := range []string{"../etc/passwd", "kb/../../x", `..\..\secret`, "kb/1/../../../x"} {
		_, err := l.Resolve(in)
		require.Error(t, err, in)
		assert.True(t, kberrors.IsCode(err, kberrors.ErrCodePathTraversal), in)
	}
}

func TestResolve_Empty(t *testing.T) {
	l := newLocal(t)
	_, err := l.Resolve("  / ")
	assert.True(t, kberrors.IsValidation(err))
}

func TestExistsAndRead(t *testing.T) {
	l := newLocal(t)

	ok, err := l.Exists("kb/1/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Exists("kb/1/missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Exists("kb/1")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not files")

	data, err := l.Read("kb/1/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = l.Read("kb/1/missing.txt")
	assert.True(t, kberrors.IsCode(err, kberrors.ErrCodeFileNotFound))
}

func TestNewLocal_EmptyRoot(t *testing.T) {
	_, err := NewLocal(" ")
	assert.Error(t, err)
}
