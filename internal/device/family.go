package device

import (
	"fmt"
	"strings"

	"github.com/genba/labjackgo/internal/frame"
	"github.com/genba/labjackgo/internal/transport"
)

// Family is one device product line. The set is closed: UE9, U3 and U6.
// A session picks its family once at open; every family-specific frame and
// layout comes from here.
type Family struct {
	name           string
	productID      int
	network        bool
	usbRegisters   bool
	identify       []byte // unchecksummed identify command
	identifyLen    int
	identifyEcho   []byte // command bytes the identify response repeats at 1:4
	layout         Layout
	ping           []byte // sent as-is
	pingLen        int
	reset          []byte // sent as-is
	resetLen       int
	discoveryProbe []byte // UDP broadcast datagram, nil if not networked
}

var (
	// UE9 is the USB and Ethernet family.
	UE9 = Family{
		name:           "UE9",
		productID:      9,
		network:        true,
		usbRegisters:   false,
		identify:       commConfigFrame(),
		identifyLen:    38,
		identifyEcho:   []byte{0x78, 0x10, 0x01},
		layout:         LayoutA,
		ping:           []byte{0x70, 0x70},
		pingLen:        2,
		reset:          resetFrame(),
		resetLen:       4,
		discoveryProbe: []byte{0x22, 0x78, 0x00, 0xA9, 0x00, 0x00},
	}

	// U3 is a USB-only family.
	U3 = Family{
		name:         "U3",
		productID:    3,
		usbRegisters: true,
		identify:     configFrame(),
		identifyLen:  38,
		identifyEcho: []byte{0xF8, 0x10, 0x08},
		layout:       LayoutB,
		ping:         mustChecksum([]byte{0x00, 0xF8, 0x01, 0x2A, 0x00, 0x00, 0x00, 0x00}),
		pingLen:      40,
		reset:        resetFrame(),
		resetLen:     4,
	}

	// U6 is a USB-only family. It has no dedicated liveness command; the
	// configuration read doubles as the ping.
	U6 = Family{
		name:         "U6",
		productID:    6,
		usbRegisters: true,
		identify:     configFrame(),
		identifyLen:  38,
		identifyEcho: []byte{0xF8, 0x10, 0x08},
		layout:       LayoutB,
		ping:         mustChecksum(configFrame()),
		pingLen:      38,
		reset:        resetFrame(),
		resetLen:     4,
	}
)

// Families returns every supported family.
func Families() []Family {
	return []Family{UE9, U3, U6}
}

// FamilyByName looks a family up by name, case-insensitively.
func FamilyByName(name string) (Family, error) {
	for _, f := range Families() {
		if strings.EqualFold(f.name, name) {
			return f, nil
		}
	}
	return Family{}, fmt.Errorf("unknown device family %q", name)
}

// FamilyByProductID looks a family up by its USB product ID.
func FamilyByProductID(id int) (Family, error) {
	for _, f := range Families() {
		if f.productID == id {
			return f, nil
		}
	}
	return Family{}, fmt.Errorf("unknown product ID %d", id)
}

func (f Family) String() string { return f.name }

// Name returns the family name.
func (f Family) Name() string { return f.name }

// IsZero reports whether f is the zero Family.
func (f Family) IsZero() bool { return f.productID == 0 }

// ProductID returns the USB product ID.
func (f Family) ProductID() int { return f.productID }

// SupportsNetwork reports whether devices of f can be reached over Ethernet.
func (f Family) SupportsNetwork() bool { return f.network }

// USBRegisterAccess reports whether the firmware accepts register traffic
// over USB.
func (f Family) USBRegisterAccess() bool { return f.usbRegisters }

// SupportsTransport reports whether f can be reached over kind.
func (f Family) SupportsTransport(kind transport.Kind) bool {
	return kind == transport.KindUSB || f.network
}

// IdentifyFrame returns a fresh copy of the unchecksummed identify command.
func (f Family) IdentifyFrame() []byte { return clone(f.identify) }

// IdentifyResponseLen is the number of bytes read after identify.
func (f Family) IdentifyResponseLen() int { return f.identifyLen }

// IdentifyEcho returns the bytes an identify response carries at 1:4.
func (f Family) IdentifyEcho() []byte { return clone(f.identifyEcho) }

// Layout returns the identify response layout.
func (f Family) Layout() Layout { return f.layout }

// PingFrame returns the liveness probe, ready to send without a checksum pass.
func (f Family) PingFrame() []byte { return clone(f.ping) }

// PingResponseLen is the number of bytes read after a ping.
func (f Family) PingResponseLen() int { return f.pingLen }

// ResetFrame returns the reset command, ready to send without a checksum pass.
func (f Family) ResetFrame() []byte { return clone(f.reset) }

// ResetResponseLen is the confirmation length of a reset.
func (f Family) ResetResponseLen() int { return f.resetLen }

// DiscoveryProbe returns the UDP discovery datagram, or nil.
func (f Family) DiscoveryProbe() []byte { return clone(f.discoveryProbe) }

// commConfigFrame reads the UE9 communication configuration.
func commConfigFrame() []byte {
	b := make([]byte, 38)
	b[1], b[2], b[3] = 0x78, 0x10, 0x01
	return b
}

// configFrame reads the U3/U6 configuration block.
func configFrame() []byte {
	b := make([]byte, 26)
	b[1], b[2], b[3] = 0xF8, 0x0A, 0x08
	return b
}

// resetFrame carries its own checksum byte 0x9B.
func resetFrame() []byte {
	return []byte{0x9B, 0x99, 0x02, 0x00}
}

func mustChecksum(b []byte) []byte {
	if err := frame.ApplyChecksum(b); err != nil {
		panic(err)
	}
	return b
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
