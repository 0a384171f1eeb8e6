package ssm

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linePort behaves like a K-line cable: every write is echoed back, followed by whatever the
// control unit answers.
type linePort struct {
	rx      bytes.Buffer
	written [][]byte
	reply   func(request []byte) []byte
	resets  int
}

func (p *linePort) Write(b []byte) (int, error) {
	p.written = append(p.written, append([]byte(nil), b...))
	p.rx.Write(b)
	if p.reply != nil {
		p.rx.Write(p.reply(b))
	}
	return len(b), nil
}

func (p *linePort) Read(b []byte) (int, error) {
	if p.rx.Len() == 0 {
		return 0, nil
	}
	// hand out a few bytes at a time to exercise reassembly
	if len(b) > 3 {
		b = b[:3]
	}
	return p.rx.Read(b)
}

func (p *linePort) ResetInputBuffer() error {
	p.resets++
	p.rx.Reset()
	return nil
}

func replyFrom(cu byte, payload []byte) func([]byte) []byte {
	return func([]byte) []byte {
		frame, _ := EncodeFrame(TesterAddress, cu, payload)
		return frame
	}
}

func TestClientGetCUData(t *testing.T) {
	port := &linePort{reply: replyFrom(0x10, sampleCUData)}
	client := NewClient(port, 0x10)

	data, err := client.GetCUData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "A21011", data.SysIDHex())
	assert.Equal(t, "3D54444006", data.RomIDHex())
	require.Len(t, port.written, 1)
	assert.Equal(t, []byte{0x80, 0x10, 0xF0, 0x01, 0xBF, 0x40}, port.written[0])
	assert.Equal(t, 1, port.resets)
}

func TestClientIgnoresOtherUnits(t *testing.T) {
	port := &linePort{reply: func(req []byte) []byte {
		other, _ := EncodeFrame(TesterAddress, 0x18, []byte{0xFF, 1, 2, 3, 4, 5, 6, 7, 8})
		ours, _ := EncodeFrame(TesterAddress, 0x10, sampleCUData)
		return append(other, ours...)
	}}
	client := NewClient(port, 0x10)

	data, err := client.GetCUData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A21011", data.SysIDHex())
}

func TestClientTimeout(t *testing.T) {
	client := NewClient(&linePort{}, 0x10)
	client.SetTimeout(30 * time.Millisecond)

	_, err := client.GetCUData(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClientCancelled(t *testing.T) {
	client := NewClient(&linePort{}, 0x10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetCUData(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientRejectsUnexpectedReply(t *testing.T) {
	port := &linePort{reply: replyFrom(0x10, []byte{0x7F, 0xBF})}
	client := NewClient(port, 0x10)

	_, err := client.GetCUData(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}
