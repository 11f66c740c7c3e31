package pack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/objpack/internal/testsupport"
	"github.com/calvinalkan/objpack/recfmt"
)

// memWriterAt is a minimal io.WriterAt over a growable byte slice, for
// exercising logWriter without a real file.
type memWriterAt struct {
	buf []byte
}

func (m *memWriterAt) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}

	copy(m.buf[off:end], p)

	return len(p), nil
}

func Test_TxnWriter_Empty_Transaction_Writes_Nothing(t *testing.T) {
	t.Parallel()

	out := &memWriterAt{}
	lw := newLogWriter(out, recfmt.MetadataSize)

	tw := lw.BeginTxn(testsupport.TID(1), recfmt.StatusPacked, 0, 0, 0, nil)
	require.True(t, tw.Empty())

	pos, err := tw.End()
	require.NoError(t, err)
	require.Equal(t, recfmt.Position(0), pos)
	require.Equal(t, recfmt.MetadataSize, lw.Pos())
}

func Test_TxnWriter_Round_Trips_Through_Reader(t *testing.T) {
	t.Parallel()

	out := &memWriterAt{}
	lw := newLogWriter(out, recfmt.MetadataSize)

	oid1 := testsupport.OID(1)
	oid2 := testsupport.OID(2)
	tid := testsupport.TID(7)

	tw := lw.BeginTxn(tid, recfmt.StatusPacked, 0, 0, 0, nil)
	pos1, err := tw.PutRecord(oid1, tid, []byte("payload-one"))
	require.NoError(t, err)
	pos2, err := tw.PutDeletion(oid2, tid)
	require.NoError(t, err)

	txnStart, err := tw.End()
	require.NoError(t, err)
	require.Equal(t, recfmt.MetadataSize, txnStart)

	rd := recfmt.NewReader(bytes.NewReader(out.buf), 0, nil)

	h, err := rd.ReadTxnHeader(txnStart, lw.Pos())
	require.NoError(t, err)
	require.Equal(t, recfmt.StatusPacked, h.Status)
	require.Equal(t, tid, h.TID)

	dh1, err := rd.ReadDataHeader(pos1, h.DataEnd())
	require.NoError(t, err)
	payload, err := rd.ReadPayload(dh1)
	require.NoError(t, err)
	require.Equal(t, []byte("payload-one"), payload)

	dh2, err := rd.ReadDataHeader(pos2, h.DataEnd())
	require.NoError(t, err)
	back, err := rd.ReadBackpointer(dh2)
	require.NoError(t, err)
	require.True(t, recfmt.IsGeorgeBailey(back))
}

func Test_TxnWriter_Preserves_Metadata_Lengths(t *testing.T) {
	t.Parallel()

	out := &memWriterAt{}
	lw := newLogWriter(out, recfmt.MetadataSize)

	tid := testsupport.TID(3)
	meta := []byte("userdescext")

	tw := lw.BeginTxn(tid, recfmt.StatusCommitted, 4, 4, 3, meta)
	_, err := tw.PutRecord(testsupport.OID(9), tid, []byte("x"))
	require.NoError(t, err)

	txnStart, err := tw.End()
	require.NoError(t, err)

	rd := recfmt.NewReader(bytes.NewReader(out.buf), 0, nil)
	h, err := rd.ReadTxnHeader(txnStart, lw.Pos())
	require.NoError(t, err)
	require.EqualValues(t, 4, h.UserLen)
	require.EqualValues(t, 4, h.DescLen)
	require.EqualValues(t, 3, h.ExtLen)

	got, err := rd.ReadRaw(h.MetaStart(), h.MetaSize())
	require.NoError(t, err)
	require.Equal(t, meta, got)
}
