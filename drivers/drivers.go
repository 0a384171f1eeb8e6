package drivers

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"cuview/config"
	"cuview/cuinfo"
	"cuview/ecus"
	"cuview/events"
	"cuview/romdefs"
	"cuview/ssm"
)

const (
	LOG_NAME = "CUDATA"
	LOG_EXT  = ".bin"

	backoffFactor = 1.5
)

type Driver interface {
	Init() error
	Run(ctx context.Context) error
	Close() error
}

// IdentifyFunc performs one identification request over whatever transport a driver owns.
type IdentifyFunc func(ctx context.Context) (*ssm.CUData, error)

// Identifier turns CU data replies into identification events. Drivers share it so every transport
// captures, describes and deduplicates replies the same way.
type Identifier struct {
	kind     ecus.Kind
	defs     *romdefs.Definitions
	eventHub *events.EventHub
	capture  io.Writer

	interval   time.Duration
	backoffMin time.Duration
	backoffMax time.Duration

	startTime time.Time
	last      *ssm.CUData

	statusMu sync.Mutex
	status   events.Status
}

func NewIdentifier(kind ecus.Kind, defs *romdefs.Definitions, eventHub *events.EventHub, flags *config.Flags) *Identifier {
	return &Identifier{
		kind:       kind,
		defs:       defs,
		eventHub:   eventHub,
		interval:   flags.IdentifyInterval,
		backoffMin: flags.BackoffMin,
		backoffMax: flags.BackoffMax,
		startTime:  time.Now(),
		status:     events.Status{State: events.StatusStarting},
	}
}

// Status returns how identification is going. Safe to call from any goroutine.
func (i *Identifier) Status() events.Status {
	i.statusMu.Lock()
	defer i.statusMu.Unlock()
	return i.status
}

func (i *Identifier) markFailed(err error) {
	i.statusMu.Lock()
	defer i.statusMu.Unlock()
	i.status.State = events.StatusDegraded
	i.status.LastError = err.Error()
	i.status.LastErrorTs = time.Now().Format(time.RFC3339)
	i.status.Failures++
}

func (i *Identifier) markOK() {
	i.statusMu.Lock()
	defer i.statusMu.Unlock()
	i.status.State = events.StatusOK
	i.status.LastOkTs = time.Now().Format(time.RFC3339)
	i.status.Failures = 0
}

func (i *Identifier) Kind() ecus.Kind {
	return i.kind
}

// SetCapture makes Poll record every reply to w.
func (i *Identifier) SetCapture(w io.Writer) {
	i.capture = w
}

// Poll identifies the control unit every interval until ctx ends, backing off after failures.
func (i *Identifier) Poll(ctx context.Context, identify IdentifyFunc) error {
	backoff := i.backoffMin
	for {
		data, err := identify(ctx)
		wait := i.interval
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			i.markFailed(err)
			wait = min(backoff, i.backoffMax)
			log.Printf("identify %s failed, retrying in %s: %v", i.kind, wait, err)
			backoff = min(time.Duration(float64(backoff)*backoffFactor), i.backoffMax)
		} else {
			backoff = i.backoffMin
			i.record(data)
			i.Publish(data)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (i *Identifier) record(data *ssm.CUData) {
	if i.capture == nil {
		return
	}
	millis := uint32(time.Since(i.startTime) / time.Millisecond)
	if err := writeCaptureFrame(i.capture, millis, ssm.CmdGetCUData, data.Payload()); err != nil {
		log.Printf("capture write: %v", err)
	}
}

// Publish broadcasts data unless it repeats the previous identification.
func (i *Identifier) Publish(data *ssm.CUData) bool {
	i.markOK()
	if data.Equal(i.last) {
		return false
	}
	i.last = data
	event := i.Describe(data)
	log.Printf("identified %s: rom %s sys %s -> %q, %d memory blocks, %d switches",
		i.kind, event.Identification.RomID, data.SysIDHex(), event.Identification.SystemType,
		event.Identification.MemoryBlocks, event.Identification.Switches)
	i.eventHub.Broadcast(event)
	return true
}

// Describe builds the event for data without publishing it.
func (i *Identifier) Describe(data *ssm.CUData) *events.Event {
	event := &events.Event{CUData: data, Timestamp: time.Now()}

	var memoryBlocks, switches uint
	if i.defs != nil {
		ecu, err := i.defs.Lookup(data.RomIDHex())
		if err != nil {
			log.Printf("rom definitions: %v", err)
		} else {
			event.ECUName = ecu.Name
			memoryBlocks, switches = ecu.MemoryBlocks, ecu.Switches
		}
	}

	event.Identification = cuinfo.Identification{
		SystemType:   ecus.SystemType(i.kind, event.ECUName, data.SysIDHex()),
		RomID:        data.RomIDHex(),
		MemoryBlocks: memoryBlocks,
		Switches:     switches,
	}
	return event
}
