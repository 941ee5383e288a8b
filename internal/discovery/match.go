package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/genba/labjackgo/internal/device"
)

// MatchBy selects which identity field a Match compares.
type MatchBy int

const (
	MatchAll MatchBy = iota
	MatchLocalID
	MatchSerial
	MatchAddress
	// MatchAny accepts either the local ID or the serial number.
	MatchAny
)

// Match filters enumerated devices. The zero value matches every device.
type Match struct {
	By      MatchBy
	Number  uint32
	Address string
}

// Matches reports whether id satisfies m.
func (m Match) Matches(id device.Identity) bool {
	switch m.By {
	case MatchLocalID:
		return uint32(id.LocalID) == m.Number
	case MatchSerial:
		return id.Serial == m.Number
	case MatchAddress:
		return id.Address == m.Address
	case MatchAny:
		return uint32(id.LocalID) == m.Number || id.Serial == m.Number
	default:
		return true
	}
}

func (m Match) String() string {
	switch m.By {
	case MatchLocalID:
		return fmt.Sprintf("local_id=%d", m.Number)
	case MatchSerial:
		return fmt.Sprintf("serial=%d", m.Number)
	case MatchAddress:
		return "address=" + m.Address
	case MatchAny:
		return fmt.Sprintf("local_id|serial=%d", m.Number)
	default:
		return "any"
	}
}

// ParseMatch parses a device selector:
//   - "" -> every device
//   - dotted quad -> network address
//   - number below 256 -> local ID or serial
//   - larger number -> serial
//   - "serial:N", "local:N", "address:A" force the field
func ParseMatch(s string) (Match, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Match{}, nil
	}
	if field, value, ok := strings.Cut(s, ":"); ok {
		switch field {
		case "serial", "local":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return Match{}, fmt.Errorf("invalid %s %q", field, value)
			}
			if field == "local" {
				if n > 255 {
					return Match{}, fmt.Errorf("local ID %d out of range", n)
				}
				return Match{By: MatchLocalID, Number: uint32(n)}, nil
			}
			return Match{By: MatchSerial, Number: uint32(n)}, nil
		case "address":
			if _, err := device.ParseAddress(value); err != nil {
				return Match{}, err
			}
			return Match{By: MatchAddress, Address: value}, nil
		}
		return Match{}, fmt.Errorf("unknown match field %q", field)
	}
	if strings.Contains(s, ".") {
		if _, err := device.ParseAddress(s); err != nil {
			return Match{}, err
		}
		return Match{By: MatchAddress, Address: s}, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return Match{}, fmt.Errorf("invalid device selector %q", s)
	}
	if n < 256 {
		return Match{By: MatchAny, Number: uint32(n)}, nil
	}
	return Match{By: MatchSerial, Number: uint32(n)}, nil
}
