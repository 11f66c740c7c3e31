package pack

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/objpack/internal/testsupport"
	"github.com/calvinalkan/objpack/recfmt"
)

func writeLiveFile(t *testing.T, b *testsupport.Builder) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "store.objpack")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))

	return path
}

func readAllRecords(t *testing.T, path string) ([]recfmt.DataHeader, []recfmt.TxnHeader) {
	t.Helper()

	data, err := os.ReadFile(path) //nolint:gosec
	require.NoError(t, err)

	rd := recfmt.NewReader(bytes.NewReader(data), 0, nil)
	fileEnd := recfmt.Position(len(data))

	var dhs []recfmt.DataHeader
	var ths []recfmt.TxnHeader

	pos := recfmt.MetadataSize
	for pos < fileEnd {
		h, err := rd.ReadTxnHeader(pos, fileEnd)
		require.NoError(t, err)
		ths = append(ths, h)

		dpos := h.DataStart()
		for dpos < h.DataEnd() {
			dh, err := rd.ReadDataHeader(dpos, h.DataEnd())
			require.NoError(t, err)
			dhs = append(dhs, dh)
			dpos = dh.End()
		}

		pos = h.End()
	}

	return dhs, ths
}

func Test_Pack_Rewrites_Current_Revision_And_Swaps_Live_File(t *testing.T) {
	t.Parallel()

	b := testsupport.NewBuilder()
	oid := testsupport.OID(1)

	b.BeginTxn(testsupport.TID(1), recfmt.StatusCommitted)
	b.Put(oid, 0, []byte("v1"))
	firstPos := b.EndTxn()

	b.BeginTxn(testsupport.TID(2), recfmt.StatusCommitted)
	b.Put(oid, firstPos, []byte("v2"))
	b.EndTxn()

	path := writeLiveFile(t, b)

	driver := NewDriver(path, Hooks{})

	newEnd, packed, err := driver.Pack(context.Background(), testsupport.TID(3))
	require.NoError(t, err)
	require.True(t, packed)
	require.Greater(t, newEnd, recfmt.Position(0))

	dhs, ths := readAllRecords(t, path)
	require.Len(t, dhs, 1)
	require.Equal(t, "v2", string(mustReadPayload(t, path, dhs[0])))
	require.Equal(t, recfmt.StatusPacked, ths[0].Status)

	_, err = os.Stat(path + ".old")
	require.NoError(t, err, ".old backup of the pre-pack file must exist")

	_, err = os.Stat(path + ".pack")
	require.True(t, os.IsNotExist(err), ".pack must be swapped away after a successful pack")

	_, err = os.Stat(path + ".packindex")
	require.True(t, os.IsNotExist(err), ".packindex must be cleaned up on success")
}

func mustReadPayload(t *testing.T, path string, dh recfmt.DataHeader) []byte {
	t.Helper()

	data, err := os.ReadFile(path) //nolint:gosec
	require.NoError(t, err)

	rd := recfmt.NewReader(bytes.NewReader(data), 0, nil)
	payload, err := rd.ReadPayload(dh)
	require.NoError(t, err)

	return payload
}

func Test_Pack_Redundant_Pack_Leaves_Live_File_Untouched(t *testing.T) {
	t.Parallel()

	b := testsupport.NewBuilder()
	b.BeginTxn(testsupport.TID(1), recfmt.StatusPacked)
	b.Put(testsupport.OID(1), 0, []byte("x"))
	b.EndTxn()

	path := writeLiveFile(t, b)
	before, err := os.ReadFile(path) //nolint:gosec
	require.NoError(t, err)

	driver := NewDriver(path, Hooks{})

	newEnd, packed, err := driver.Pack(context.Background(), testsupport.TID(2))
	require.NoError(t, err)
	require.False(t, packed)
	require.Equal(t, recfmt.Position(0), newEnd)

	after, err := os.ReadFile(path) //nolint:gosec
	require.NoError(t, err)
	require.Equal(t, before, after)

	_, err = os.Stat(path + ".pack")
	require.True(t, os.IsNotExist(err), ".pack must be removed for a no-benefit pack")
}

func Test_Pack_Rejects_Zero_Cutoff(t *testing.T) {
	t.Parallel()

	b := testsupport.NewBuilder()
	b.BeginTxn(testsupport.TID(1), recfmt.StatusCommitted)
	b.Put(testsupport.OID(1), 0, []byte("x"))
	b.EndTxn()

	path := writeLiveFile(t, b)
	driver := NewDriver(path, Hooks{})

	_, _, err := driver.Pack(context.Background(), recfmt.ZeroTID)
	require.ErrorIs(t, err, ErrInvalidPackTime)
}

func Test_Pack_Drops_Unreachable_Object_When_GC_Enabled(t *testing.T) {
	t.Parallel()

	b := testsupport.NewBuilder()
	root := testsupport.OID(0)
	kept := testsupport.OID(1)
	orphan := testsupport.OID(2)

	b.BeginTxn(testsupport.TID(1), recfmt.StatusCommitted)
	b.Put(root, 0, []byte(string(kept.Bytes())))
	b.Put(kept, 0, []byte("kept-payload"))
	b.Put(orphan, 0, []byte("orphan-payload"))
	b.EndTxn()

	path := writeLiveFile(t, b)

	extractor := func(payload []byte) []recfmt.OID {
		if string(payload) == string(kept.Bytes()) {
			return []recfmt.OID{kept}
		}

		return nil
	}

	driver := NewDriver(path, Hooks{ReferencesExtractor: extractor})

	_, packed, err := driver.Pack(context.Background(), testsupport.TID(2))
	require.NoError(t, err)
	require.True(t, packed)

	dhs, _ := readAllRecords(t, path)

	var oids []recfmt.OID
	for _, dh := range dhs {
		oids = append(oids, dh.OID)
	}

	require.Contains(t, oids, root)
	require.Contains(t, oids, kept)
	require.NotContains(t, oids, orphan)
}
