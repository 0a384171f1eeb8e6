// Package romdefs reads RomRaider logger definitions to find out what a ROM supports.
package romdefs

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	ErrNoSSMProtocol = errors.New("no ssm log protocol in definitions")
	ErrUnknownROM    = errors.New("no ecu definition for rom id")
)

const (
	wildcardByte = "FF"
	boolKind     = "bool"
)

type logDefs struct {
	Protocols []logProtocol `xml:"logprotocols>logprotocol"`
}

type logProtocol struct {
	Type string    `xml:"type,attr"`
	ECUs []ecuNode `xml:"ecu"`
}

type ecuNode struct {
	ID         string          `xml:"id,attr"`
	Type       string          `xml:"type,attr"`
	Name       string          `xml:"name,attr"`
	Include    string          `xml:"include,attr"`
	Parameters []parameterNode `xml:"parameter"`
}

type parameterNode struct {
	ID          string `xml:"id,attr"`
	StorageType string `xml:"storagetype,attr"`
	Offset      string `xml:"offset,attr"`
	Kind        string `xml:"type,attr"`
}

// ECU is what the definitions know about one ROM.
type ECU struct {
	ID   string
	Name string
	Type string
	// MemoryBlocks counts the loggable value parameters.
	MemoryBlocks uint
	// Switches counts the single bit parameters.
	Switches uint
	// Skipped counts parameters that could not be parsed.
	Skipped uint
}

type idEntry struct {
	id  string
	ecu *ecuNode
}

type Definitions struct {
	byType map[string]*ecuNode
	byID   []idEntry
}

func Load(path string) (*Definitions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open definitions: %w", err)
	}
	defer func() { _ = file.Close() }()
	return Parse(file)
}

func Parse(r io.Reader) (*Definitions, error) {
	var doc logDefs
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode definitions: %w", err)
	}

	var ssm *logProtocol
	for i := range doc.Protocols {
		if strings.EqualFold(doc.Protocols[i].Type, "SSM") {
			ssm = &doc.Protocols[i]
			break
		}
	}
	if ssm == nil {
		return nil, ErrNoSSMProtocol
	}

	defs := &Definitions{byType: make(map[string]*ecuNode)}
	for i := range ssm.ECUs {
		node := &ssm.ECUs[i]
		ecuType := strings.TrimSpace(node.Type)
		if _, ok := defs.byType[ecuType]; ecuType != "" && !ok {
			defs.byType[ecuType] = node
		}
		if id := strings.ToUpper(strings.TrimSpace(node.ID)); id != "" {
			defs.byID = append(defs.byID, idEntry{id, node})
		}
	}
	return defs, nil
}

// Lookup finds the definition for a ROM id given as hex. An exact id wins, otherwise the
// definition with the fewest FF wildcard bytes that matches.
func (d *Definitions) Lookup(romIDHex string) (*ECU, error) {
	node := d.find(strings.ToUpper(romIDHex))
	if node == nil {
		return nil, fmt.Errorf("%s: %w", romIDHex, ErrUnknownROM)
	}

	params := make(map[string]parameterNode)
	var order []string
	var skipped uint
	visited := map[string]bool{node.Type: true}

	var collect func(n *ecuNode)
	collect = func(n *ecuNode) {
		for _, include := range strings.Split(n.Include, ",") {
			include = strings.TrimSpace(include)
			if include == "" || visited[include] {
				continue
			}
			visited[include] = true
			if parent, ok := d.byType[include]; ok {
				collect(parent)
			}
		}
		for _, p := range n.Parameters {
			name := strings.TrimSpace(p.ID)
			if name == "" || storageSize(p.StorageType) == 0 || !validOffset(p.Offset) {
				skipped++
				continue
			}
			if _, seen := params[name]; !seen {
				order = append(order, name)
			}
			params[name] = p
		}
	}
	collect(node)

	ecu := &ECU{
		ID:      node.ID,
		Name:    node.Name,
		Type:    node.Type,
		Skipped: skipped,
	}
	for _, name := range order {
		if strings.EqualFold(strings.TrimSpace(params[name].Kind), boolKind) {
			ecu.Switches++
		} else {
			ecu.MemoryBlocks++
		}
	}
	return ecu, nil
}

func (d *Definitions) find(romID string) *ecuNode {
	for _, entry := range d.byID {
		if entry.id == romID {
			return entry.ecu
		}
	}

	var best *ecuNode
	bestWildcards := -1
	for _, entry := range d.byID {
		if entry.id == "BASE" || !idMatches(entry.id, romID) {
			continue
		}
		wildcards := 0
		for i := 0; i < len(entry.id); i += 2 {
			if entry.id[i:i+2] == wildcardByte {
				wildcards++
			}
		}
		if bestWildcards < 0 || wildcards < bestWildcards {
			best, bestWildcards = entry.ecu, wildcards
		}
	}
	return best
}

func idMatches(pattern, romID string) bool {
	if len(pattern) != len(romID) || len(pattern)%2 != 0 {
		return false
	}
	for i := 0; i < len(pattern); i += 2 {
		p := pattern[i : i+2]
		if p != wildcardByte && p != romID[i:i+2] {
			return false
		}
	}
	return true
}

func storageSize(storageType string) int {
	switch strings.ToLower(strings.TrimSpace(storageType)) {
	case "uint8", "int8":
		return 1
	case "uint16", "int16":
		return 2
	case "uint32", "int32":
		return 4
	}
	return 0
}

// validOffset accepts 0x-prefixed hex, #-prefixed hex, or any literal strconv understands.
func validOffset(offset string) bool {
	offset = strings.ToLower(strings.TrimSpace(offset))
	if offset == "" {
		return false
	}
	if strings.HasPrefix(offset, "#") {
		offset = "0x" + offset[1:]
	}
	_, err := strconv.ParseUint(offset, 0, 32)
	return err == nil
}
