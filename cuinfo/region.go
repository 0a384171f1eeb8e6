package cuinfo

import "io"

// Panel is a rectangular piece of a web page that can be patched on its own.
type Panel interface {
	// ID is the DOM id of the panel's root element, used as the morph target.
	ID() string
	// Revision grows every time the rendered output would change.
	Revision() uint64
	Render(w io.Writer) error
}

// Region is an ordered set of panels laid out by the page that owns it.
type Region struct {
	panels []Panel
}

func NewRegion() *Region {
	return &Region{}
}

func (r *Region) Add(p Panel) {
	if r.Contains(p) {
		return
	}
	r.panels = append(r.panels, p)
}

func (r *Region) Remove(p Panel) {
	for i, existing := range r.panels {
		if existing == p {
			r.panels = append(r.panels[:i], r.panels[i+1:]...)
			return
		}
	}
}

func (r *Region) Contains(p Panel) bool {
	for _, existing := range r.panels {
		if existing == p {
			return true
		}
	}
	return false
}

// Panels returns the panels in layout order.
func (r *Region) Panels() []Panel {
	return append([]Panel(nil), r.panels...)
}
