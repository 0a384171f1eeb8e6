package drivers

import (
	"context"
	"errors"
	"fmt"

	"go.einride.tech/can"
)

// ISO 15765-2 protocol control information, the high nibble of the first data byte
const (
	pciSingleFrame      = 0x0
	pciFirstFrame       = 0x1
	pciConsecutiveFrame = 0x2

	flowControlContinue = 0x30
	singleFrameMaxData  = 7
)

var (
	errISOTPTooLong     = errors.New("isotp payload does not fit a single frame")
	errISOTPBadFrame    = errors.New("malformed isotp frame")
	errISOTPSequence    = errors.New("isotp consecutive frame out of sequence")
	errISOTPBusClosed   = errors.New("can bus closed")
	errISOTPNoFirstPart = errors.New("isotp consecutive frame without first frame")
)

// canBus is a request/response view of a CAN socket.
type canBus interface {
	TransmitFrame(ctx context.Context, frame can.Frame) error
	Receive() bool
	Frame() can.Frame
	Err() error
}

// isotpRequest sends a single frame request and reassembles the reply, sending flow control
// when the reply spans several frames. Frames from other ids are ignored.
func isotpRequest(ctx context.Context, bus canBus, txID, rxID uint32, payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > singleFrameMaxData {
		return nil, fmt.Errorf("request of %d bytes: %w", len(payload), errISOTPTooLong)
	}
	request := can.Frame{ID: txID, Length: 8}
	request.Data[0] = byte(len(payload))
	copy(request.Data[1:], payload)
	if err := bus.TransmitFrame(ctx, request); err != nil {
		return nil, fmt.Errorf("transmit request: %w", err)
	}

	var (
		reply    []byte
		expected int
		sequence byte
	)
	for bus.Receive() {
		frame := bus.Frame()
		if frame.ID != rxID || frame.IsRemote || frame.Length == 0 {
			continue
		}
		data := frame.Data[:frame.Length]

		switch data[0] >> 4 {
		case pciSingleFrame:
			n := int(data[0] & 0x0F)
			if n == 0 || 1+n > len(data) {
				return nil, fmt.Errorf("single frame % X: %w", data, errISOTPBadFrame)
			}
			return append([]byte(nil), data[1:1+n]...), nil

		case pciFirstFrame:
			if len(data) < 2 {
				return nil, fmt.Errorf("first frame % X: %w", data, errISOTPBadFrame)
			}
			expected = int(data[0]&0x0F)<<8 | int(data[1])
			reply = append(reply[:0], data[2:]...)
			sequence = 1
			flowControl := can.Frame{ID: txID, Length: 8}
			flowControl.Data[0] = flowControlContinue
			if err := bus.TransmitFrame(ctx, flowControl); err != nil {
				return nil, fmt.Errorf("transmit flow control: %w", err)
			}

		case pciConsecutiveFrame:
			if expected == 0 {
				return nil, errISOTPNoFirstPart
			}
			if data[0]&0x0F != sequence {
				return nil, fmt.Errorf("got %d want %d: %w", data[0]&0x0F, sequence, errISOTPSequence)
			}
			reply = append(reply, data[1:]...)
			sequence = (sequence + 1) & 0x0F

		default:
			// flow control from the other side, not expected on a reply
			continue
		}

		if expected > 0 && len(reply) >= expected {
			return reply[:expected], nil
		}
	}
	if err := bus.Err(); err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return nil, errISOTPBusClosed
}
