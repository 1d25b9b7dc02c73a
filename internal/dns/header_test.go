package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderMarshal(t *testing.T) {
	h := Header{
		ID:      0x1234,
		Flags:   0x8180, // Standard response, no error
		QDCount: 1,
		ANCount: 2,
		NSCount: 3,
		ARCount: 4,
	}

	b, err := h.Marshal()
	require.NoError(t, err)

	assert.Len(t, b, HeaderSize)

	// Verify ID
	assert.Equal(t, byte(0x12), b[0])
	assert.Equal(t, byte(0x34), b[1])

	// Verify Flags
	assert.Equal(t, byte(0x81), b[2])
	assert.Equal(t, byte(0x80), b[3])

	// Verify counts
	assert.Equal(t, []byte{0, 1}, b[4:6], "unexpected QDCount")
	assert.Equal(t, []byte{0, 2}, b[6:8], "unexpected ANCount")
	assert.Equal(t, []byte{0, 3}, b[8:10], "unexpected NSCount")
	assert.Equal(t, []byte{0, 4}, b[10:12], "unexpected ARCount")
}
