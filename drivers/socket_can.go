package drivers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"go.einride.tech/can/pkg/socketcan"

	"cuview/config"
	"cuview/ecus"
	"cuview/ssm"
)

const (
	DefaultRespTimeout = 500 * time.Millisecond

	canResponseOffset = 0x08
)

// SSM over CAN request ids, the reply comes back on id+8
var canRequestIDs = map[ecus.Kind]uint32{
	ecus.Engine:       0x7E0,
	ecus.Transmission: 0x7E1,
}

// SocketCAN identifies the control unit with SSM commands carried over ISO-TP on a SocketCAN interface.
// When the interface goes away the socket is dialled again on the next attempt.
type SocketCAN struct {
	*config.SocketCANFlags
	identifier *Identifier
	captureDir string

	dial    func(ctx context.Context, network, address string) (net.Conn, error)
	conn    net.Conn
	bus     *socketCANBus
	txID    uint32
	rxID    uint32
	capture *captureFile
	timeout time.Duration
}

type socketCANBus struct {
	conn net.Conn
	*socketcan.Transmitter
	*socketcan.Receiver
}

// reset replaces the receiver after a read error, a timed out receiver cannot be reused.
func (b *socketCANBus) reset() {
	b.Receiver = socketcan.NewReceiver(b.conn)
}

func NewSocketCAN(flags *config.SocketCANFlags, identifier *Identifier, captureDir string) *SocketCAN {
	return &SocketCAN{
		SocketCANFlags: flags,
		identifier:     identifier,
		captureDir:     captureDir,
		dial:           socketcan.DialContext,
		timeout:        DefaultRespTimeout,
	}
}

func (p *SocketCAN) Init() error {
	txID, ok := canRequestIDs[p.identifier.Kind()]
	if !ok {
		return fmt.Errorf("no can ids known for %s", p.identifier.Kind())
	}
	p.txID, p.rxID = txID, txID+canResponseOffset

	if err := p.connect(context.Background()); err != nil {
		return err
	}
	log.Printf("connected to %s, requests on 0x%03X", p.SocketCanAddr, p.txID)

	if p.captureDir != "" {
		capture, err := openCapture(p.captureDir)
		if err != nil {
			p.disconnect()
			return err
		}
		p.capture = capture
		p.identifier.SetCapture(capture)
	}
	return nil
}

func (p *SocketCAN) connect(ctx context.Context) error {
	conn, err := p.dial(ctx, "can", p.SocketCanAddr)
	if err != nil {
		return fmt.Errorf("socketCAN open %s: %w", p.SocketCanAddr, err)
	}
	p.conn = conn
	p.bus = &socketCANBus{conn, socketcan.NewTransmitter(conn), socketcan.NewReceiver(conn)}
	return nil
}

func (p *SocketCAN) disconnect() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Close(); err != nil {
		log.Printf("close socketCAN: %v", err)
	}
	p.conn = nil
	p.bus = nil
}

func (p *SocketCAN) Run(ctx context.Context) error {
	return p.identifier.Poll(ctx, p.getCUData)
}

func (p *SocketCAN) getCUData(ctx context.Context) (*ssm.CUData, error) {
	if p.conn == nil {
		if err := p.connect(ctx); err != nil {
			return nil, fmt.Errorf("reopen: %w", err)
		}
		log.Printf("socketCAN %s reopened", p.SocketCanAddr)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		p.disconnect()
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	payload, err := isotpRequest(ctx, p.bus, p.txID, p.rxID, []byte{ssm.CmdGetCUData})
	if err != nil {
		if ctx.Err() == nil && !isBusAlive(err) {
			log.Printf("socketCAN failed, closing: %v", err)
			p.disconnect()
		} else {
			p.bus.reset()
		}
		return nil, err
	}
	return ssm.ParseCUData(payload)
}

// isBusAlive reports errors a working socket produces: read timeouts and malformed replies.
func isBusAlive(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, errISOTPBadFrame) ||
		errors.Is(err, errISOTPSequence) ||
		errors.Is(err, errISOTPNoFirstPart)
}

func (p *SocketCAN) Close() error {
	if err := p.capture.Close(); err != nil {
		log.Printf("close capture: %v", err)
	}
	p.disconnect()
	return nil
}

var _ canBus = (*socketCANBus)(nil)
