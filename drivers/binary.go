package drivers

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"cuview/utils"
)

var (
	badLenErr = errors.New("error data length outside range")
	badCrcErr = errors.New("error frame checksum does not match")
)

var magicBytes = []byte{0xAA, 0x55}

type captureFrame struct {
	millis uint32
	tag    uint16
	data   []byte
}

// captureFile is a buffered capture log on disk.
type captureFile struct {
	*bufio.Writer
	file *os.File
}

func openCapture(dir string) (*captureFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	filePath := utils.NextAvailableFilename(dir, LOG_NAME, LOG_EXT)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	log.Printf("capturing identifications to %s", filePath)
	return &captureFile{bufio.NewWriterSize(file, 1<<12), file}, nil
}

func (c *captureFile) Close() error {
	if c == nil {
		return nil
	}
	_ = c.Flush()
	return c.file.Close()
}

// writeCaptureFrame writes one record with layout:
// [AA 55][millis:u32 LE][tag:u16 BE][len:u8][data:len][crc8:u8]
func writeCaptureFrame(w io.Writer, millis uint32, tag uint16, data []byte) error {
	dl := len(data)
	if dl > 0xFF {
		return fmt.Errorf("capture %d bytes: %w", dl, badLenErr)
	}
	rec := make([]byte, 2+7+dl+1)
	rec[0], rec[1] = magicBytes[0], magicBytes[1]

	// header
	rec[2] = byte(millis)
	rec[3] = byte(millis >> 8)
	rec[4] = byte(millis >> 16)
	rec[5] = byte(millis >> 24)
	rec[6] = byte(tag >> 8)
	rec[7] = byte(tag)
	rec[8] = byte(dl)

	// payload
	copy(rec[9:9+dl], data)

	// crc over header and payload
	rec[9+dl] = crc8UpdateBuf(0x00, rec[2:9+dl])

	if _, err := w.Write(rec); err != nil {
		return err
	}
	if flusher, ok := w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// readCaptureFrame reads a single record written by writeCaptureFrame, skipping to the next magic
// if the stream starts mid record.
func readCaptureFrame(bufferReader *bufio.Reader) (*captureFrame, error) {
	// resync on magic AA 55
	for {
		firstByte, err := bufferReader.ReadByte()
		if err != nil {
			return nil, err
		}
		if firstByte != magicBytes[0] {
			continue
		}
		secondByte, err := bufferReader.ReadByte()
		if err != nil {
			return nil, err
		}
		if secondByte == magicBytes[1] {
			break
		}
		if secondByte == magicBytes[0] {
			if err := bufferReader.UnreadByte(); err != nil {
				return nil, err
			}
		}
	}

	// header: millis(4 LE) + tag(2 BE) + len(1)
	header := make([]byte, 7)
	if _, err := io.ReadFull(bufferReader, header); err != nil {
		return nil, unexpectedEOF(err)
	}
	dataLength := int(header[6])

	// payload + crc
	tail := make([]byte, dataLength+1)
	if _, err := io.ReadFull(bufferReader, tail); err != nil {
		return nil, unexpectedEOF(err)
	}
	data := tail[:dataLength]

	crc := crc8UpdateBuf(0x00, header)
	crc = crc8UpdateBuf(crc, data)
	if crc != tail[dataLength] {
		return nil, badCrcErr
	}

	return &captureFrame{
		millis: uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16 | uint32(header[3])<<24,
		tag:    uint16(header[4])<<8 | uint16(header[5]),
		data:   data,
	}, nil
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// CRC-8-CCITT helpers (poly 0x07, init 0x00)
func crc8Update(crc, b byte) byte {
	crc ^= b
	for i := 0; i < 8; i++ {
		if crc&0x80 != 0 {
			crc = (crc << 1) ^ 0x07
		} else {
			crc <<= 1
		}
	}
	return crc
}

func crc8UpdateBuf(crc byte, buffer []byte) byte {
	for _, b := range buffer {
		crc = crc8Update(crc, b)
	}
	return crc
}

// CaptureRecord is one reply stored in a capture file.
type CaptureRecord struct {
	Millis uint32
	Tag    uint16
	Data   []byte
}

// ReadCapture calls fn for every intact record in r. Records with a bad checksum are skipped.
func ReadCapture(r io.Reader, fn func(CaptureRecord) error) error {
	bufferReader := bufio.NewReader(r)
	for {
		frame, err := readCaptureFrame(bufferReader)
		switch {
		case err == io.EOF:
			return nil
		case errors.Is(err, badCrcErr):
			continue
		case err != nil:
			return err
		}
		if err := fn(CaptureRecord{frame.millis, frame.tag, frame.data}); err != nil {
			return err
		}
	}
}
