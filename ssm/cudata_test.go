package ssm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleCUData = []byte{
	0xFF,
	0xA2, 0x10, 0x11,
	0x3D, 0x54, 0x44, 0x40, 0x06,
	0x73, 0xFA, 0xCB, 0xA6,
}

func TestParseCUData(t *testing.T) {
	data, err := ParseCUData(sampleCUData)
	require.NoError(t, err)

	assert.Equal(t, "A21011", data.SysIDHex())
	assert.Equal(t, "3D54444006", data.RomIDHex())
	assert.Equal(t, "=TD@.", data.RomIDASCII())
	assert.Equal(t, []byte{0x73, 0xFA, 0xCB, 0xA6}, data.Flagbytes)
	assert.Equal(t, sampleCUData, data.Payload())
}

func TestParseCUDataErrors(t *testing.T) {
	_, err := ParseCUData(nil)
	assert.ErrorIs(t, err, ErrUnexpectedReply)

	_, err = ParseCUData([]byte{0x7F, 0x00})
	assert.ErrorIs(t, err, ErrUnexpectedReply)

	_, err = ParseCUData(sampleCUData[:8])
	assert.ErrorIs(t, err, ErrShortReply)
}

func TestCUDataEqual(t *testing.T) {
	a, err := ParseCUData(sampleCUData)
	require.NoError(t, err)
	b, err := ParseCUData(sampleCUData)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	b.Flagbytes[0] = 0
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))

	var none *CUData
	assert.True(t, none.Equal(nil))
}
