package cuinfo

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

const SimplePanelID = "cu-info-simple"

//go:embed templates/*.gohtml
var templateFS embed.FS

// Simple shows the identification as four static labels in a web panel.
type Simple struct {
	region    *Region
	templates *template.Template

	systemType string
	romID      string
	counts     supportedCounts

	revision uint64
}

// supportedCounts is stored as one value so both counts always change together.
type supportedCounts struct {
	memoryBlocks uint
	switches     uint
	set          bool
}

type simpleView struct {
	ID           string
	SystemType   string
	RomID        string
	MemoryBlocks uint
	Switches     uint
	CountsSet    bool
}

// NewSimple creates the panel and attaches it to parent. A nil parent gets a new region of its own.
func NewSimple(parent *Region) (*Simple, error) {
	templates, err := template.ParseFS(templateFS, "templates/simple.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse simple cu info template: %w", err)
	}
	if parent == nil {
		parent = NewRegion()
	}

	s := &Simple{
		region:    parent,
		templates: templates,
	}
	parent.Add(s)
	return s, nil
}

// Region returns the region the panel is attached to, nil once closed.
func (s *Simple) Region() *Region {
	return s.region
}

// Close detaches the panel from its region. Calling it more than once is a no-op.
func (s *Simple) Close() {
	if s.region == nil {
		return
	}
	s.region.Remove(s)
	s.region = nil
}

func (s *Simple) SetSystemTypeText(text string) {
	if s.systemType == text {
		return
	}
	s.systemType = text
	s.revision++
}

func (s *Simple) SetRomIDText(text string) {
	if s.romID == text {
		return
	}
	s.romID = text
	s.revision++
}

func (s *Simple) SetSupportedCounts(memoryBlocks, switches uint) {
	counts := supportedCounts{memoryBlocks, switches, true}
	if s.counts == counts {
		return
	}
	s.counts = counts
	s.revision++
}

func (s *Simple) SystemTypeText() string {
	return s.systemType
}

func (s *Simple) RomIDText() string {
	return s.romID
}

func (s *Simple) SupportedCounts() (memoryBlocks, switches uint) {
	return s.counts.memoryBlocks, s.counts.switches
}

func (s *Simple) ID() string {
	return SimplePanelID
}

func (s *Simple) Revision() uint64 {
	return s.revision
}

func (s *Simple) Render(w io.Writer) error {
	return s.templates.ExecuteTemplate(w, "cuinfo.simple", simpleView{
		ID:           SimplePanelID,
		SystemType:   s.systemType,
		RomID:        s.romID,
		MemoryBlocks: s.counts.memoryBlocks,
		Switches:     s.counts.switches,
		CountsSet:    s.counts.set,
	})
}
