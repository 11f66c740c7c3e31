package recfmt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/objpack/recfmt"
)

func Test_TxnHeader_RoundTrips_Through_Encode_Decode(t *testing.T) {
	t.Parallel()

	h := recfmt.TxnHeader{
		Pos:     4,
		TID:     recfmt.TIDFromUint64(42),
		Len:     123,
		Status:  recfmt.StatusPacked,
		UserLen: 3,
		DescLen: 5,
		ExtLen:  0,
	}

	buf := recfmt.EncodeTxnHeader(h)
	require.Len(t, buf, recfmt.TxnHeaderSize)

	got := recfmt.DecodeTxnHeader(h.Pos, buf)
	require.Equal(t, h, got)
}

func Test_TxnHeader_Offsets_Are_Derived_Correctly(t *testing.T) {
	t.Parallel()

	h := recfmt.TxnHeader{
		Pos:     100,
		Len:     50,
		UserLen: 2,
		DescLen: 3,
		ExtLen:  1,
	}

	require.Equal(t, recfmt.Position(100+recfmt.TxnHeaderSize), h.MetaStart())
	require.Equal(t, 6, h.MetaSize())
	require.Equal(t, recfmt.Position(100+recfmt.TxnHeaderSize+6), h.DataStart())
	require.Equal(t, recfmt.Position(100+50), h.DataEnd())
	require.Equal(t, recfmt.Position(100+50+recfmt.TxnTrailerSize), h.End())
}

func Test_TxnStatus_Valid_Recognizes_Exactly_The_Three_Statuses(t *testing.T) {
	t.Parallel()

	valid := []recfmt.TxnStatus{recfmt.StatusCommitted, recfmt.StatusPacked, recfmt.StatusCheckpoint}
	for _, s := range valid {
		require.True(t, s.Valid(), "status %q should be valid", byte(s))
	}

	require.False(t, recfmt.TxnStatus('x').Valid())
	require.False(t, recfmt.TxnStatus(0).Valid())
}

func Test_DataHeader_RoundTrips_Through_Encode_Decode(t *testing.T) {
	t.Parallel()

	h := recfmt.DataHeader{
		Pos:        200,
		OID:        recfmt.OIDFromIOID(7),
		TID:        recfmt.TIDFromUint64(9),
		PrevPos:    100,
		TxnPos:     50,
		VersionLen: 0,
		PayloadLen: 16,
	}

	buf := recfmt.EncodeDataHeader(h)
	require.Len(t, buf, recfmt.DataHeaderSize)

	got := recfmt.DecodeDataHeader(h.Pos, buf)
	require.Equal(t, h, got)
}

func Test_DataHeader_IsBackpointer_When_PayloadLen_Zero(t *testing.T) {
	t.Parallel()

	h := recfmt.DataHeader{PayloadLen: 0}
	require.True(t, h.IsBackpointer())
	require.Equal(t, h.PayloadStart().Add(recfmt.BackpointerSize), h.End())

	h2 := recfmt.DataHeader{PayloadLen: 10}
	require.False(t, h2.IsBackpointer())
	require.Equal(t, h2.PayloadStart().Add(10), h2.End())
}

func Test_IsGeorgeBailey_True_Only_For_Zero_Backpointer(t *testing.T) {
	t.Parallel()

	require.True(t, recfmt.IsGeorgeBailey(0))
	require.False(t, recfmt.IsGeorgeBailey(1))
}
