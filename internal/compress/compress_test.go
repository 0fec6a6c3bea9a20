package compress

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	data := bytes.Repeat([]byte("creation-time"), 512)

	for _, typ := range []Type{None, LZ4, ZSTD} {
		t.Run(typ.String(), func(t *testing.T) {
			enc, used, err := Encode(typ, data)
			require.NoError(t, err)
			assert.Equal(t, typ, used)
			if typ != None {
				assert.Less(t, len(enc), len(data))
			}

			dec, err := Decode(used, enc, len(data))
			require.NoError(t, err)
			assert.Equal(t, data, dec)
		})
	}
}

func TestEncode_IncompressibleFallsBackToNone(t *testing.T) {
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)

	for _, typ := range []Type{LZ4, ZSTD} {
		enc, used, err := Encode(typ, data)
		require.NoError(t, err)
		assert.Equal(t, None, used)
		assert.Equal(t, data, enc)
	}
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode(None, []byte{1, 2}, 3)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(ZSTD, []byte("not a frame"), 10)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(Type(9), nil, 0)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("snappy")
	assert.Error(t, err)
}
