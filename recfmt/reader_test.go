package recfmt_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/objpack/recfmt"
	"github.com/calvinalkan/objpack/recfmt/recfmttest"
)

func oidOf(n uint64) recfmt.OID { return recfmt.OIDFromIOID(n) }

func Test_Reader_ReadTxnHeader_Reads_A_Valid_Header(t *testing.T) {
	t.Parallel()

	b := recfmttest.NewBuilder()
	b.BeginTxn(recfmt.TIDFromUint64(1), recfmt.StatusCommitted)
	b.Put(oidOf(1), 0, []byte("hello"))
	txnPos := b.EndTxn()

	data := b.Bytes()
	rd := recfmt.NewReader(bytes.NewReader(data), 0, nil)

	h, err := rd.ReadTxnHeader(txnPos, recfmt.Position(len(data)))
	require.NoError(t, err)
	require.Equal(t, recfmt.TIDFromUint64(1), h.TID)
	require.Equal(t, recfmt.StatusCommitted, h.Status)
}

func Test_Reader_ReadTxnHeader_Rejects_Invalid_Status(t *testing.T) {
	t.Parallel()

	b := recfmttest.NewBuilder()
	b.BeginTxn(recfmt.TIDFromUint64(1), recfmt.StatusCommitted)
	b.Put(oidOf(1), 0, []byte("hello"))
	txnPos := b.EndTxn()

	data := b.Bytes()
	// Corrupt the status byte (offset 16 within the header).
	data[int(txnPos)+16] = 'Z'

	rd := recfmt.NewReader(bytes.NewReader(data), 0, nil)

	_, err := rd.ReadTxnHeader(txnPos, recfmt.Position(len(data)))
	require.Error(t, err)

	var corrupt *recfmt.CorruptedData
	require.True(t, errors.As(err, &corrupt))
	require.True(t, errors.Is(err, recfmt.ErrCorrupted))
}

func Test_Reader_ReadTxnHeader_Rejects_Zero_TID(t *testing.T) {
	t.Parallel()

	b := recfmttest.NewBuilder()
	b.BeginTxn(recfmt.ZeroTID, recfmt.StatusCommitted)
	b.Put(oidOf(1), 0, []byte("x"))
	txnPos := b.EndTxn()

	data := b.Bytes()
	rd := recfmt.NewReader(bytes.NewReader(data), 0, nil)

	_, err := rd.ReadTxnHeader(txnPos, recfmt.Position(len(data)))
	require.ErrorIs(t, err, recfmt.ErrCorrupted)
}

func Test_Reader_ReadTxnHeader_Rejects_Length_Past_FileEnd(t *testing.T) {
	t.Parallel()

	b := recfmttest.NewBuilder()
	b.BeginTxn(recfmt.TIDFromUint64(1), recfmt.StatusCommitted)
	b.Put(oidOf(1), 0, []byte("x"))
	txnPos := b.EndTxn()

	data := b.Bytes()
	rd := recfmt.NewReader(bytes.NewReader(data), 0, nil)

	_, err := rd.ReadTxnHeader(txnPos, recfmt.Position(len(data)-1))
	require.ErrorIs(t, err, recfmt.ErrCorrupted)
}

func Test_Reader_ReadDataHeader_Rejects_NonZero_VersionLen(t *testing.T) {
	t.Parallel()

	b := recfmttest.NewBuilder()
	b.BeginTxn(recfmt.TIDFromUint64(1), recfmt.StatusCommitted)
	b.Put(oidOf(1), 0, []byte("hello"))
	txnPos := b.EndTxn()

	data := b.Bytes()
	// version-len is at data-header offset 32..34, data header starts
	// right after the 23-byte txn header.
	dataHeaderPos := int(txnPos) + recfmt.TxnHeaderSize
	data[dataHeaderPos+32] = 0
	data[dataHeaderPos+33] = 1 // non-zero version length

	rd := recfmt.NewReader(bytes.NewReader(data), 0, nil)
	h, err := rd.ReadTxnHeader(txnPos, recfmt.Position(len(data)))
	require.NoError(t, err)

	_, err = rd.ReadDataHeader(h.DataStart(), h.DataEnd())
	require.ErrorIs(t, err, recfmt.ErrVersionsUnsupported)
}

func Test_Reader_LoadBack_Resolves_A_Chain_Of_Backpointers(t *testing.T) {
	t.Parallel()

	b := recfmttest.NewBuilder()

	b.BeginTxn(recfmt.TIDFromUint64(1), recfmt.StatusCommitted)
	b.Put(oidOf(5), 0, []byte("v1 payload"))
	txn1 := b.EndTxn()

	// Locate the v1 data record's position precisely via a fresh read.
	data := b.Bytes()
	rd := recfmt.NewReader(bytes.NewReader(data), 0, nil)
	h1, err := rd.ReadTxnHeader(txn1, recfmt.Position(len(data)))
	require.NoError(t, err)
	v1RecPos := h1.DataStart()

	b.BeginTxn(recfmt.TIDFromUint64(2), recfmt.StatusCommitted)
	b.PutBackpointer(oidOf(5), txn1, v1RecPos)
	txn2 := b.EndTxn()

	data = b.Bytes()
	rd = recfmt.NewReader(bytes.NewReader(data), 0, nil)

	h2, err := rd.ReadTxnHeader(txn2, recfmt.Position(len(data)))
	require.NoError(t, err)

	dh2, err := rd.ReadDataHeader(h2.DataStart(), h2.DataEnd())
	require.NoError(t, err)
	require.True(t, dh2.IsBackpointer())

	back, err := rd.ReadBackpointer(dh2)
	require.NoError(t, err)

	payload, tid, err := rd.LoadBack(back, recfmt.Position(len(data)))
	require.NoError(t, err)
	require.Equal(t, []byte("v1 payload"), payload)
	require.Equal(t, recfmt.TIDFromUint64(1), tid)
}

func Test_Reader_LoadBack_Resolves_Deletion_To_Nil_Payload(t *testing.T) {
	t.Parallel()

	b := recfmttest.NewBuilder()
	b.BeginTxn(recfmt.TIDFromUint64(1), recfmt.StatusCommitted)
	b.PutDeletion(oidOf(9), 0)
	txnPos := b.EndTxn()

	data := b.Bytes()
	rd := recfmt.NewReader(bytes.NewReader(data), 0, nil)

	h, err := rd.ReadTxnHeader(txnPos, recfmt.Position(len(data)))
	require.NoError(t, err)

	dh, err := rd.ReadDataHeader(h.DataStart(), h.DataEnd())
	require.NoError(t, err)

	payload, _, err := rd.LoadBack(dh.Pos, recfmt.Position(len(data)))
	require.NoError(t, err)
	require.Nil(t, payload)
}
