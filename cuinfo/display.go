package cuinfo

// Display is implemented by every view that can show the identification of a control unit.
// Setters never fail and perform no validation; checking the values is the job of whoever read them from the CU.
type Display interface {
	// SetSystemTypeText replaces the displayed system type.
	SetSystemTypeText(text string)
	// SetRomIDText replaces the displayed ROM identifier.
	SetRomIDText(text string)
	// SetSupportedCounts replaces both counts in one step, a view never shows one new count next to a stale one.
	SetSupportedCounts(memoryBlocks, switches uint)
}

// Identification is one successful identification read, as shown by a Display.
type Identification struct {
	SystemType   string
	RomID        string
	MemoryBlocks uint
	Switches     uint
}

// Show pushes every field of id into d.
func Show(d Display, id Identification) {
	d.SetSystemTypeText(id.SystemType)
	d.SetRomIDText(id.RomID)
	d.SetSupportedCounts(id.MemoryBlocks, id.Switches)
}
