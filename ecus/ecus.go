package ecus

import (
	"fmt"
	"strings"
)

// Kind is the SSM2 bus address of a control unit.
type Kind byte

// Known control units
const (
	Engine       Kind = 0x10
	Transmission Kind = 0x18
)

var kindNames = map[Kind]string{
	Engine:       "Engine",
	Transmission: "Transmission",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CU 0x%02X", byte(k))
}

// ParseKind accepts a name ("engine", "transmission") or a bus address ("0x10").
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for kind, name := range kindNames {
		if s == strings.ToLower(name) {
			return kind, nil
		}
	}
	var address uint
	if _, err := fmt.Sscanf(s, "0x%x", &address); err != nil || address > 0xFF {
		return 0, fmt.Errorf("unknown control unit %q", s)
	}
	return Kind(address), nil
}

// SystemType is the text shown for a control unit. ecuName comes from the ROM definitions and may be
// empty when the ROM is unknown.
func SystemType(kind Kind, ecuName string, sysIDHex string) string {
	if ecuName != "" {
		return ecuName
	}
	return fmt.Sprintf("%s (SYS_ID %s)", kind, sysIDHex)
}
