package ssm

import (
	"errors"
	"fmt"
)

// SSM2 frame layout: [80][dst][src][len][payload...][checksum]
const (
	FrameStart    = 0x80
	TesterAddress = 0xF0

	headerLength  = 4
	maxPayloadLen = 0xFF
)

var errPayloadTooLong = errors.New("ssm2 payload too long")

// Checksum is the low byte of the sum of every byte before it.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// EncodeFrame wraps payload in a frame sent from src to dst.
func EncodeFrame(dst, src byte, payload []byte) ([]byte, error) {
	if len(payload) > maxPayloadLen {
		return nil, fmt.Errorf("encode %d bytes: %w", len(payload), errPayloadTooLong)
	}
	frame := make([]byte, 0, headerLength+len(payload)+1)
	frame = append(frame, FrameStart, dst, src, byte(len(payload)))
	frame = append(frame, payload...)
	return append(frame, Checksum(frame)), nil
}

type Frame struct {
	Dst     byte
	Src     byte
	Payload []byte
}

// Decoder collects bytes off the line and hands back complete frames. Garbage and frames with a bad
// checksum are skipped one byte at a time until the stream lines up again.
type Decoder struct {
	buf []byte
}

func (d *Decoder) Write(p []byte) {
	d.buf = append(d.buf, p...)
}

// Frames returns every complete frame currently buffered, keeping any trailing partial frame.
func (d *Decoder) Frames() []Frame {
	var frames []Frame
	i := 0
	for i+headerLength+1 <= len(d.buf) {
		if d.buf[i] != FrameStart {
			i++
			continue
		}
		end := i + headerLength + int(d.buf[i+3]) + 1
		if end > len(d.buf) {
			break
		}
		raw := d.buf[i:end]
		if Checksum(raw[:len(raw)-1]) != raw[len(raw)-1] {
			i++
			continue
		}
		frames = append(frames, Frame{
			Dst:     raw[1],
			Src:     raw[2],
			Payload: append([]byte(nil), raw[headerLength:len(raw)-1]...),
		})
		i = end
	}
	d.buf = d.buf[i:]
	return frames
}

func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}
