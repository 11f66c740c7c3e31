package pack

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/objpack/internal/testsupport"
	"github.com/calvinalkan/objpack/recfmt"
)

func Test_IndexSidecar_Round_Trips(t *testing.T) {
	t.Parallel()

	storagePath := filepath.Join(t.TempDir(), "store.objpack")

	idx := NewIndex()
	idx.Set(testsupport.OID(1), recfmt.Position(100))
	idx.Set(testsupport.OID(2), recfmt.Position(200))

	want := indexSnapshot{Index: idx, EndPos: recfmt.Position(300), Redundant: false}

	require.NoError(t, writeIndexSidecar(storagePath, want))

	got, ok, err := readIndexSidecar(storagePath)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want.EndPos, got.EndPos)
	require.Equal(t, want.Redundant, got.Redundant)
	require.Equal(t, idx.Entries, got.Index.Entries)

	require.NoError(t, removeIndexSidecar(storagePath))

	_, ok, err = readIndexSidecar(storagePath)
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_ReadIndexSidecar_Missing_File_Is_Not_An_Error(t *testing.T) {
	t.Parallel()

	storagePath := filepath.Join(t.TempDir(), "store.objpack")

	snap, ok, err := readIndexSidecar(storagePath)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, snap)
}

func Test_ReadIndexSidecar_Corrupted_File_Reports_SidecarCorrupt(t *testing.T) {
	t.Parallel()

	storagePath := filepath.Join(t.TempDir(), "store.objpack")
	writeGarbage(t, storagePath+packIndexSuffix)

	_, _, err := readIndexSidecar(storagePath)
	require.Error(t, err)
	require.True(t, errors.Is(err, errSidecarCorrupt))
}

func Test_ErrorSidecar_Round_Trips(t *testing.T) {
	t.Parallel()

	storagePath := filepath.Join(t.TempDir(), "store.objpack")
	cause := errors.New("disk exploded")

	require.NoError(t, writeErrorSidecar(storagePath, "copyToPacktime", cause))

	got, ok, err := readErrorSidecar(storagePath)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "copyToPacktime", got.Phase)
	require.Equal(t, cause.Error(), got.Message)

	require.NoError(t, removeErrorSidecar(storagePath))

	_, ok, err = readErrorSidecar(storagePath)
	require.NoError(t, err)
	require.False(t, ok)
}

func writeGarbage(t *testing.T, path string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte("not a gob stream"), 0o644))
}
