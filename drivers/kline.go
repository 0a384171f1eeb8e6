package drivers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"cuview/config"
	"cuview/ssm"
)

const serialReadTimeout = 50 * time.Millisecond

// Common USB K-line cable VIDs
var preferredVIDs = map[string]bool{
	"0403": true, // FTDI
	"1A86": true, // CH340
	"10C4": true, // CP210x
	"067B": true, // Prolific
}

// klinePort is the part of serial.Port the driver uses.
type klinePort interface {
	ssm.Port
	SetReadTimeout(t time.Duration) error
	Close() error
}

// KLine identifies the control unit over an SSM2 K-line serial interface. A port that stops working is
// closed and opened again on the next attempt, so unplugging the cable or cycling the ignition is survived.
type KLine struct {
	*config.SerialFlags
	identifier     *Identifier
	captureDir     string
	requestTimeout time.Duration

	openPort func(name string, baud int) (klinePort, error)
	port     klinePort
	client   *ssm.Client
	capture  *captureFile
}

func NewKLine(serialFlags *config.SerialFlags, identifier *Identifier, captureDir string) *KLine {
	return &KLine{
		SerialFlags:    serialFlags,
		identifier:     identifier,
		captureDir:     captureDir,
		requestTimeout: ssm.DefaultRequestTimeout,
		openPort:       openSerialPort,
	}
}

func (k *KLine) Init() error {
	if err := k.connect(); err != nil {
		return err
	}

	if k.captureDir != "" {
		capture, err := openCapture(k.captureDir)
		if err != nil {
			k.disconnect()
			return err
		}
		k.capture = capture
		k.identifier.SetCapture(capture)
	}
	return nil
}

func (k *KLine) Run(ctx context.Context) error {
	return k.identifier.Poll(ctx, k.identify)
}

func (k *KLine) identify(ctx context.Context) (*ssm.CUData, error) {
	if k.client == nil {
		if err := k.connect(); err != nil {
			return nil, fmt.Errorf("reopen serial: %w", err)
		}
		log.Printf("serial port reopened")
	}

	data, err := k.client.GetCUData(ctx)
	if err != nil && ctx.Err() == nil && !isProtocolError(err) {
		log.Printf("serial port failed, closing: %v", err)
		k.disconnect()
	}
	return data, err
}

// isProtocolError reports errors that come from a working line, a silent or confused control unit.
func isProtocolError(err error) bool {
	return errors.Is(err, ssm.ErrTimeout) ||
		errors.Is(err, ssm.ErrUnexpectedReply) ||
		errors.Is(err, ssm.ErrShortReply)
}

func (k *KLine) connect() error {
	port, err := k.openPort(k.SerialPort, k.BaudRate)
	if err != nil {
		return err
	}
	k.port = port
	k.client = ssm.NewClient(port, byte(k.identifier.Kind()))
	k.client.SetTimeout(k.requestTimeout)
	return nil
}

func (k *KLine) disconnect() {
	if k.port == nil {
		return
	}
	if err := k.port.Close(); err != nil {
		log.Printf("close serial: %v", err)
	}
	k.port = nil
	k.client = nil
}

func (k *KLine) Close() error {
	if err := k.capture.Close(); err != nil {
		log.Printf("close capture: %v", err)
	}
	k.disconnect()
	return nil
}

func openSerialPort(name string, baud int) (klinePort, error) {
	port, err := getSerialPort(name, baud)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return port, nil
}

func getSerialPort(port string, baud int) (serial.Port, error) {
	// auto-select a K-line cable if requested
	if port == "auto" {
		name, err := autoSelectPort()
		if err != nil {
			return nil, fmt.Errorf("auto-select: %w", err)
		}
		port = name
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	serialPort, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("couldn't open serial %s: %w", port, err)
	}
	log.Printf("connected to %s @ %d", port, baud)

	return serialPort, nil
}

func autoSelectPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerate ports: %w", err)
	}
	for _, p := range ports {
		if p.IsUSB && preferredVIDs[strings.ToUpper(p.VID)] {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("no k-line serial ports found")
}
