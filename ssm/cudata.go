package ssm

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	CmdGetCUData  = 0xBF
	RspGetCUData  = 0xFF
	minCUDataSize = 1 + 3 + 5
)

var (
	ErrUnexpectedReply = errors.New("unexpected reply")
	ErrShortReply      = errors.New("reply too short")
)

// CUData is the reply to a GET_CU_DATA request.
type CUData struct {
	SysID     [3]byte
	RomID     [5]byte
	Flagbytes []byte
}

// ParseCUData decodes a GET_CU_DATA reply payload: [FF][sys id:3][rom id:5][flagbytes...]
func ParseCUData(payload []byte) (*CUData, error) {
	if len(payload) == 0 || payload[0] != RspGetCUData {
		return nil, fmt.Errorf("get cu data % X: %w", payload, ErrUnexpectedReply)
	}
	if len(payload) < minCUDataSize {
		return nil, fmt.Errorf("get cu data % X: %w", payload, ErrShortReply)
	}
	data := &CUData{Flagbytes: append([]byte(nil), payload[minCUDataSize:]...)}
	copy(data.SysID[:], payload[1:4])
	copy(data.RomID[:], payload[4:9])
	return data, nil
}

// Payload rebuilds the reply payload, used when writing captures.
func (d *CUData) Payload() []byte {
	payload := make([]byte, 0, minCUDataSize+len(d.Flagbytes))
	payload = append(payload, RspGetCUData)
	payload = append(payload, d.SysID[:]...)
	payload = append(payload, d.RomID[:]...)
	return append(payload, d.Flagbytes...)
}

func (d *CUData) SysIDHex() string {
	return strings.ToUpper(hex.EncodeToString(d.SysID[:]))
}

func (d *CUData) RomIDHex() string {
	return strings.ToUpper(hex.EncodeToString(d.RomID[:]))
}

// RomIDASCII shows the ROM id with unprintable bytes as dots.
func (d *CUData) RomIDASCII() string {
	out := make([]byte, len(d.RomID))
	for i, b := range d.RomID {
		if b >= 32 && b <= 126 {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// Equal reports whether two replies identify the same unit with the same capabilities.
func (d *CUData) Equal(other *CUData) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.SysID == other.SysID && d.RomID == other.RomID && string(d.Flagbytes) == string(other.Flagbytes)
}
