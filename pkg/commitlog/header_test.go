package commitlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	in := newDataHeader(CompressionZlib, 0xdeadbeef, 4096, 1234)

	buf := in.Encode(nil)
	require.Len(t, buf, HeaderLength)

	out, err := DecodeBlockHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.False(t, out.IsTrailer())
	assert.True(t, out.validMagic())
}

func TestBlockHeaderDecodeShort(t *testing.T) {
	t.Parallel()

	_, err := DecodeBlockHeader(make([]byte, HeaderLength-1))
	assert.Error(t, err)
}

func TestTrailerTimestampPacking(t *testing.T) {
	t.Parallel()

	const ts = uint64(0x0123456789abcdef)

	trailer := NewTrailer(ts, CompressionSnappy)
	assert.True(t, trailer.IsTrailer())
	assert.Equal(t, ts, trailer.TrailerTimestamp())

	decoded, err := DecodeBlockHeader(trailer.Encode(nil))
	require.NoError(t, err)
	assert.True(t, decoded.IsTrailer())
	assert.Equal(t, ts, decoded.TrailerTimestamp())
	assert.Equal(t, CompressionSnappy, decoded.CompressionType)
}

func TestUnknownCompressionType(t *testing.T) {
	t.Parallel()

	_, err := NewCodec(99)
	require.Error(t, err)

	var cerr *CodecError
	assert.ErrorAs(t, err, &cerr)
}

func TestCodecRoundTrips(t *testing.T) {
	t.Parallel()

	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, " +
		"so that compression has something to chew on chew on chew on")

	for _, ctype := range []uint16{CompressionNone, CompressionZlib, CompressionSnappy} {
		codec, err := NewCodec(ctype)
		require.NoError(t, err)

		zbuf, err := codec.Deflate(payload)
		require.NoError(t, err)

		out, err := codec.Inflate(zbuf, len(payload))
		require.NoError(t, err, "codec %s", codec.Name())
		assert.Equal(t, payload, out, "codec %s", codec.Name())
	}
}

func TestCodecInflateLengthMismatch(t *testing.T) {
	t.Parallel()

	codec, err := NewCodec(CompressionSnappy)
	require.NoError(t, err)

	zbuf, err := codec.Deflate([]byte("some payload"))
	require.NoError(t, err)

	_, err = codec.Inflate(zbuf, 5)
	var cerr *CodecError
	assert.ErrorAs(t, err, &cerr)
}
