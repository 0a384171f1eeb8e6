package drivers

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCaptureFrame(&buf, 0x01020304, 0x00BF, []byte{0xFF, 0xA2, 0x10}))
	require.NoError(t, writeCaptureFrame(&buf, 7, 0x00BF, nil))

	raw := buf.Bytes()
	assert.Equal(t, []byte{0xAA, 0x55, 0x04, 0x03, 0x02, 0x01, 0x00, 0xBF, 0x03}, raw[:9])

	reader := bufio.NewReader(&buf)
	frame, err := readCaptureFrame(reader)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), frame.millis)
	assert.Equal(t, uint16(0x00BF), frame.tag)
	assert.Equal(t, []byte{0xFF, 0xA2, 0x10}, frame.data)

	frame, err = readCaptureFrame(reader)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), frame.millis)
	assert.Empty(t, frame.data)

	_, err = readCaptureFrame(reader)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCaptureFrameResync(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x01, 0xAA, 0x02, 0xAA})
	require.NoError(t, writeCaptureFrame(&buf, 1, 0x00BF, []byte{0x42}))

	frame, err := readCaptureFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42}, frame.data)
}

func TestCaptureFrameBadCrc(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCaptureFrame(&buf, 1, 0x00BF, []byte{0x42}))
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF

	_, err := readCaptureFrame(bufio.NewReader(bytes.NewReader(raw)))
	assert.ErrorIs(t, err, badCrcErr)
}

func TestCaptureFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCaptureFrame(&buf, 1, 0x00BF, []byte{0x42, 0x43}))
	raw := buf.Bytes()

	_, err := readCaptureFrame(bufio.NewReader(bytes.NewReader(raw[:len(raw)-2])))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCaptureFrameTooLong(t *testing.T) {
	err := writeCaptureFrame(io.Discard, 1, 0x00BF, make([]byte, 256))
	assert.ErrorIs(t, err, badLenErr)
}

func TestCrc8(t *testing.T) {
	// CRC-8/SMBUS check value
	assert.Equal(t, byte(0xF4), crc8UpdateBuf(0x00, []byte("123456789")))
}

func TestReadCaptureSkipsDamagedRecords(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCaptureFrame(&buf, 1, 0x00BF, []byte{0x01}))
	damaged := buf.Len()
	require.NoError(t, writeCaptureFrame(&buf, 2, 0x00BF, []byte{0x02}))
	require.NoError(t, writeCaptureFrame(&buf, 3, 0x00BF, []byte{0x03}))
	raw := buf.Bytes()
	raw[damaged+9] ^= 0xFF

	var got []CaptureRecord
	err := ReadCapture(bytes.NewReader(raw), func(record CaptureRecord) error {
		got = append(got, record)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint32(1), got[0].Millis)
	assert.Equal(t, []byte{0x03}, got[1].Data)

	stop := errors.New("stop")
	err = ReadCapture(bytes.NewReader(raw), func(CaptureRecord) error { return stop })
	assert.ErrorIs(t, err, stop)
}
