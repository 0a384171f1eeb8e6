package ssm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	DefaultRequestTimeout = 1200 * time.Millisecond
	idlePollDelay         = 5 * time.Millisecond
)

var ErrTimeout = errors.New("no ssm reply before timeout")

// Port is the bit of a serial port the client needs. Read is expected to return (0, nil) when its read
// timeout expires rather than block forever.
type Port interface {
	io.ReadWriter
	ResetInputBuffer() error
}

// Client talks SSM2 to one control unit over a K-line interface.
type Client struct {
	port    Port
	cu      byte
	timeout time.Duration
	decoder Decoder
}

func NewClient(port Port, cuAddress byte) *Client {
	return &Client{
		port:    port,
		cu:      cuAddress,
		timeout: DefaultRequestTimeout,
	}
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Request sends payload to the control unit and returns the payload of its reply. The echo most
// K-line cables produce of our own request is dropped.
func (c *Client) Request(ctx context.Context, payload []byte) ([]byte, error) {
	frame, err := EncodeFrame(c.cu, TesterAddress, payload)
	if err != nil {
		return nil, err
	}
	if err := c.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("reset input: %w", err)
	}
	c.decoder.Reset()
	if _, err := c.port.Write(frame); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := c.port.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read reply: %w", err)
		}
		if n == 0 {
			time.Sleep(idlePollDelay)
			continue
		}
		c.decoder.Write(buf[:n])
		for _, f := range c.decoder.Frames() {
			if f.Src == c.cu && f.Dst == TesterAddress {
				return f.Payload, nil
			}
			// anything else is our echo or another node's traffic
		}
	}
	return nil, ErrTimeout
}

// GetCUData asks the control unit to identify itself.
func (c *Client) GetCUData(ctx context.Context) (*CUData, error) {
	payload, err := c.Request(ctx, []byte{CmdGetCUData})
	if err != nil {
		return nil, err
	}
	return ParseCUData(payload)
}
