package web

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	ds "github.com/starfederation/datastar-go/datastar"

	"cuview/cuinfo"
	"cuview/ecus"
	"cuview/events"
	"cuview/web"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Dashboard hosts the CU-info panels on a web page. The panels are not safe for concurrent use, so
// every update and render goes through mu.
type Dashboard struct {
	eventHub  *events.EventHub
	kind      ecus.Kind
	templates *template.Template

	mu       sync.Mutex
	region   *cuinfo.Region
	simple   *cuinfo.Simple
	lastSeen map[string]map[string]uint64 // connectionID -> panel id -> revision
}

func NewDashboard(eventHub *events.EventHub, kind ecus.Kind) (*Dashboard, error) {
	templates, err := template.New("").ParseFS(web.Templates, "templates/dashboard/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse dashboard templates: %w", err)
	}

	region := cuinfo.NewRegion()
	simple, err := cuinfo.NewSimple(region)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		eventHub:  eventHub,
		kind:      kind,
		templates: templates,
		region:    region,
		simple:    simple,
		lastSeen:  map[string]map[string]uint64{},
	}, nil
}

func (d *Dashboard) Templates() *template.Template {
	return d.templates
}

func (d *Dashboard) Handlers() map[string]func(w http.ResponseWriter, r *http.Request) {
	return map[string]func(w http.ResponseWriter, r *http.Request){
		"/cu-info": d.CUInfoHandler,
	}
}

func (d *Dashboard) Data() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	var panels []template.HTML
	for _, panel := range d.region.Panels() {
		var buf strings.Builder
		if err := panel.Render(&buf); err != nil {
			log.Printf("couldn't render panel %s: %s", panel.ID(), err)
			continue
		}
		panels = append(panels, template.HTML(buf.String()))
	}

	return map[string]interface{}{
		"title":  "Control unit",
		"kind":   d.kind.String(),
		"panels": panels,
	}
}

// Run applies every identification event to the panels until ctx ends.
func (d *Dashboard) Run(ctx context.Context) {
	_, ch, unsubscribe := d.eventHub.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			d.apply(event)
		}
	}
}

func (d *Dashboard) apply(event *events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cuinfo.Show(d.simple, event.Identification)
}

// Identification returns what the simple panel currently shows.
func (d *Dashboard) Identification() cuinfo.Identification {
	d.mu.Lock()
	defer d.mu.Unlock()
	memoryBlocks, switches := d.simple.SupportedCounts()
	return cuinfo.Identification{
		SystemType:   d.simple.SystemTypeText(),
		RomID:        d.simple.RomIDText(),
		MemoryBlocks: memoryBlocks,
		Switches:     switches,
	}
}

// OnTick patches the panels whose revision moved on since the connection last got them.
func (d *Dashboard) OnTick(sse *ds.ServerSentEventGenerator, connectionID string) error {
	writer := strings.Builder{}

	d.mu.Lock()
	seen, ok := d.lastSeen[connectionID]
	if !ok {
		seen = map[string]uint64{}
		d.lastSeen[connectionID] = seen
	}
	for _, panel := range d.region.Panels() {
		if panel.Revision() <= seen[panel.ID()] {
			continue
		}
		if err := panel.Render(&writer); err != nil {
			log.Printf("couldn't render panel %s: %s", panel.ID(), err)
			continue
		}
		seen[panel.ID()] = panel.Revision()
	}
	d.mu.Unlock()

	if writer.Len() == 0 {
		return nil
	}
	return sse.PatchElements(writer.String())
}

func (d *Dashboard) Forget(connectionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastSeen, connectionID)
}

// CUInfoHandler serves the last identification as JSON, or 204 before the first one.
func (d *Dashboard) CUInfoHandler(w http.ResponseWriter, _ *http.Request) {
	event := d.eventHub.Last()
	if event == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(event.Record()); err != nil {
		log.Printf("couldn't encode cu info: %s", err)
	}
}
