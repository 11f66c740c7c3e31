package refgraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_EncodeDecodeBucket_RoundTrips(t *testing.T) {
	t.Parallel()

	entries := map[uint64][]uint64{
		1: {2, 3},
		4: {},
		5: {6},
	}

	buf := encodeBucket(entries)

	got, err := decodeBucket(buf)
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func Test_DecodeBucket_Rejects_Bad_Magic(t *testing.T) {
	t.Parallel()

	buf := encodeBucket(map[uint64][]uint64{1: {2}})
	buf[0] = 'X'

	_, err := decodeBucket(buf)
	require.ErrorIs(t, err, ErrBucketCorrupt)
}

func Test_DecodeBucket_Rejects_Corrupted_Payload(t *testing.T) {
	t.Parallel()

	buf := encodeBucket(map[uint64][]uint64{1: {2, 3}})
	buf[len(buf)-1] ^= 0xFF

	_, err := decodeBucket(buf)
	require.ErrorIs(t, err, ErrBucketCorrupt)
}

func Test_DecodeBucket_Rejects_Truncated_Buffer(t *testing.T) {
	t.Parallel()

	buf := encodeBucket(map[uint64][]uint64{1: {2, 3}})

	_, err := decodeBucket(buf[:bucketHeaderSize+4])
	require.ErrorIs(t, err, ErrBucketCorrupt)
}

func Test_DecodeBucket_Rejects_Unsupported_Version(t *testing.T) {
	t.Parallel()

	buf := encodeBucket(map[uint64][]uint64{1: {2}})
	buf[4] = 99

	_, err := decodeBucket(buf)
	require.ErrorIs(t, err, ErrBucketCorrupt)
}
