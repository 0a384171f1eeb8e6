package cuinfo

import (
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const consoleLabelWidth = 16

// Console shows the identification as labelled text rows inside a bordered tview panel.
// Like every tview primitive it must only be touched from the application's draw goroutine.
type Console struct {
	parent *tview.Flex
	panel  *tview.Flex

	systemType   *tview.TextView
	romID        *tview.TextView
	memoryBlocks *tview.TextView
	switches     *tview.TextView

	counts supportedCounts
}

// NewConsole builds the panel and appends it to parent. A nil parent gets a new top-level flex.
func NewConsole(parent *tview.Flex) *Console {
	if parent == nil {
		parent = tview.NewFlex()
	}

	c := &Console{
		parent:       parent,
		panel:        tview.NewFlex().SetDirection(tview.FlexRow),
		systemType:   newValueLabel(""),
		romID:        newValueLabel(""),
		memoryBlocks: newValueLabel("-"),
		switches:     newValueLabel("-"),
	}
	c.panel.SetBorder(true).SetTitle(" Control unit ")

	c.addRow("System type", c.systemType)
	c.addRow("ROM ID", c.romID)
	c.addRow("Memory blocks", c.memoryBlocks)
	c.addRow("Switches", c.switches)

	parent.AddItem(c.panel, 0, 1, false)
	return c
}

func newValueLabel(text string) *tview.TextView {
	return tview.NewTextView().
		SetDynamicColors(false).
		SetWrap(false).
		SetTextColor(tcell.ColorWhite).
		SetText(text)
}

func (c *Console) addRow(label string, value *tview.TextView) {
	title := tview.NewTextView().SetText(label).SetTextColor(tcell.ColorYellow)
	row := tview.NewFlex().
		AddItem(title, consoleLabelWidth, 0, false).
		AddItem(value, 0, 1, false)
	c.panel.AddItem(row, 1, 0, false)
}

// Parent returns the flex the panel lives in, nil once closed.
func (c *Console) Parent() *tview.Flex {
	return c.parent
}

// Primitive returns the panel itself.
func (c *Console) Primitive() tview.Primitive {
	return c.panel
}

// Close removes the panel from its parent. Calling it more than once is a no-op.
func (c *Console) Close() {
	if c.parent == nil {
		return
	}
	c.parent.RemoveItem(c.panel)
	c.parent = nil
}

func (c *Console) SetSystemTypeText(text string) {
	c.systemType.SetText(text)
}

func (c *Console) SetRomIDText(text string) {
	c.romID.SetText(text)
}

func (c *Console) SetSupportedCounts(memoryBlocks, switches uint) {
	c.counts = supportedCounts{memoryBlocks, switches, true}
	c.memoryBlocks.SetText(strconv.FormatUint(uint64(memoryBlocks), 10))
	c.switches.SetText(strconv.FormatUint(uint64(switches), 10))
}

func (c *Console) SystemTypeText() string {
	return c.systemType.GetText(false)
}

func (c *Console) RomIDText() string {
	return c.romID.GetText(false)
}

func (c *Console) SupportedCounts() (memoryBlocks, switches uint) {
	return c.counts.memoryBlocks, c.counts.switches
}

// CountLabels returns the text currently shown in the two count rows.
func (c *Console) CountLabels() (memoryBlocks, switches string) {
	return c.memoryBlocks.GetText(false), c.switches.GetText(false)
}
