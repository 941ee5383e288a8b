package device

import (
	"encoding/binary"
	"fmt"

	ljerrors "github.com/genba/labjackgo/internal/errors"
	"github.com/genba/labjackgo/internal/frame"
	"github.com/genba/labjackgo/internal/transport"
)

// Identity describes one device. It is filled in once by discovery and
// never modified afterwards.
type Identity struct {
	Family    Family
	Serial    uint32
	LocalID   uint8
	Address   string // dotted quad, empty for USB-only families
	Transport transport.Kind
	Pro       bool // U6-Pro hardware variant
}

func (id Identity) String() string {
	s := fmt.Sprintf("%s serial=%d local_id=%d via %s", id.Family, id.Serial, id.LocalID, id.Transport)
	if id.Address != "" {
		s += " address=" + id.Address
	}
	return s
}

// Layout is the byte layout of an identify response.
type Layout int

const (
	// LayoutA: hardware address at 28:34 stored byte-reversed, serial built
	// from 0x10 and its last three octets, network address in bytes 13..10,
	// local ID at byte 8.
	LayoutA Layout = iota + 1
	// LayoutB: little-endian serial at 15:19, local ID at byte 21.
	LayoutB
)

const (
	serialPrefix   = 0x10
	layoutLen      = 38
	u6ProMarker    = 12
	u6ProOffset    = 37
	layoutAMinLen  = 34
	layoutBMinLen  = 22
	layoutALocalID = 8
	layoutBLocalID = 21
)

func (l Layout) String() string {
	switch l {
	case LayoutA:
		return "A"
	case LayoutB:
		return "B"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// MinLen is the shortest response Decode accepts.
func (l Layout) MinLen() int {
	if l == LayoutA {
		return layoutAMinLen
	}
	return layoutBMinLen
}

// Decode parses the identity fields out of resp. Family and Transport are
// left for the caller to fill in.
func (l Layout) Decode(resp []byte) (Identity, error) {
	if len(resp) < l.MinLen() {
		return Identity{}, ljerrors.Newf(ljerrors.ShortRead, "decode identity",
			"layout %s needs %d bytes, got %d", l, l.MinLen(), len(resp))
	}
	var id Identity
	switch l {
	case LayoutA:
		mac := make([]byte, 6)
		for i := range mac {
			mac[i] = resp[33-i]
		}
		id.Serial = binary.BigEndian.Uint32([]byte{serialPrefix, mac[3], mac[4], mac[5]})
		id.Address = fmt.Sprintf("%d.%d.%d.%d", resp[13], resp[12], resp[11], resp[10])
		id.LocalID = resp[layoutALocalID]
	case LayoutB:
		id.Serial = binary.LittleEndian.Uint32(resp[15:19])
		id.LocalID = resp[layoutBLocalID]
		if len(resp) > u6ProOffset && resp[u6ProOffset] == u6ProMarker {
			id.Pro = true
		}
	default:
		return Identity{}, fmt.Errorf("unknown layout %d", int(l))
	}
	return id, nil
}

// Encode builds a checksummed identify response carrying id. It is the
// inverse of Decode and is used by the emulator and tests.
func (l Layout) Encode(id Identity) ([]byte, error) {
	resp := make([]byte, layoutLen)
	switch l {
	case LayoutA:
		if id.Serial>>24 != serialPrefix {
			return nil, fmt.Errorf("serial %d cannot be expressed in layout A", id.Serial)
		}
		addr := uint32(0)
		if id.Address != "" {
			v, err := ParseAddress(id.Address)
			if err != nil {
				return nil, err
			}
			addr = v
		}
		resp[1], resp[2], resp[3] = 0x78, 0x10, 0x01
		resp[layoutALocalID] = id.LocalID
		resp[10], resp[11], resp[12], resp[13] = byte(addr), byte(addr>>8), byte(addr>>16), byte(addr>>24)
		resp[28], resp[29], resp[30] = byte(id.Serial), byte(id.Serial>>8), byte(id.Serial>>16)
	case LayoutB:
		resp[1], resp[2], resp[3] = 0xF8, 0x10, 0x08
		binary.LittleEndian.PutUint32(resp[15:19], id.Serial)
		resp[layoutBLocalID] = id.LocalID
		if id.Pro {
			resp[u6ProOffset] = u6ProMarker
		}
	default:
		return nil, fmt.Errorf("unknown layout %d", int(l))
	}
	if err := frame.ApplyChecksum(resp); err != nil {
		return nil, err
	}
	return resp, nil
}
