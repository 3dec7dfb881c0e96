package panel

import (
	"fmt"
	"strings"
)

// Kind is the vendor family of a panel
type Kind int

const (
	KindUnknown Kind = iota
	KindMarzban
	KindXUI
)

func (k Kind) String() string {
	switch k {
	case KindMarzban:
		return "marzban"
	case KindXUI:
		return "xui"
	default:
		return "unknown"
	}
}

// Label is the name shown to admins
func (k Kind) Label() string {
	switch k {
	case KindMarzban:
		return "Marzban"
	case KindXUI:
		return "X-UI"
	default:
		return "?"
	}
}

// ParseKind maps a free-text panel type to its family, case-insensitively
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "marzban", "marzneshin":
		return KindMarzban, nil
	case "xui", "x-ui", "3x-ui", "3xui", "sanaei", "alireza", "tx-ui", "txui":
		return KindXUI, nil
	default:
		return KindUnknown, fmt.Errorf("unsupported panel type %q", raw)
	}
}
