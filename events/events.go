package events

import (
	"sync"
	"time"

	"cuview/cuinfo"
	"cuview/ssm"
)

// Event is one successful identification of a control unit.
type Event struct {
	Identification cuinfo.Identification
	CUData         *ssm.CUData
	// ECUName is the name from the ROM definitions, empty when the ROM is unknown.
	ECUName   string
	Timestamp time.Time
}

type EventHub struct {
	mu   sync.Mutex
	subs map[int]chan *Event
	next int
	last *Event
}

func NewHub() *EventHub {
	return &EventHub{subs: map[int]chan *Event{}}
}

// Subscribe registers a listener. If something was already broadcast the listener gets the latest event
// straight away. Call the returned func to unsubscribe.
func (h *EventHub) Subscribe() (int, <-chan *Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan *Event, 16)
	if h.last != nil {
		ch <- h.copy(h.last)
	}
	h.subs[id] = ch
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			close(c)
			delete(h.subs, id)
		}
	}
	return id, ch, cancel
}

// Broadcast hands event to every subscriber. Subscribers that are not keeping up miss it.
func (h *EventHub) Broadcast(event *Event) {
	h.mu.Lock()
	h.last = event
	for _, ch := range h.subs {
		select {
		case ch <- h.copy(event):
		default:
		}
	}
	h.mu.Unlock()
}

// Last returns a copy of the latest event, nil before the first broadcast.
func (h *EventHub) Last() *Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil
	}
	return h.copy(h.last)
}

func (h *EventHub) copy(e *Event) *Event {
	return &Event{e.Identification, e.CUData, e.ECUName, e.Timestamp}
}

// Record is the JSON form of an event served to the web dashboard and published over MQTT.
type Record struct {
	SysID        string `json:"sys_id"`
	RomID        string `json:"rom_id"`
	ECUName      string `json:"ecu_name"`
	SystemType   string `json:"system_type"`
	MemoryBlocks uint   `json:"memory_blocks"`
	Switches     uint   `json:"switches"`
	Timestamp    string `json:"ts"`
}

func (e *Event) Record() Record {
	record := Record{
		RomID:        e.Identification.RomID,
		ECUName:      e.ECUName,
		SystemType:   e.Identification.SystemType,
		MemoryBlocks: e.Identification.MemoryBlocks,
		Switches:     e.Identification.Switches,
		Timestamp:    e.Timestamp.Format(time.RFC3339),
	}
	if e.CUData != nil {
		record.SysID = e.CUData.SysIDHex()
	}
	return record
}

// Identification states reported in Status.
const (
	StatusStarting = "starting"
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Status summarises how identification is going, for monitoring.
type Status struct {
	State       string `json:"status"`
	LastError   string `json:"last_error"`
	LastErrorTs string `json:"last_error_ts"`
	LastOkTs    string `json:"last_ok_ts"`
	Failures    int    `json:"consecutive_failures"`
}
