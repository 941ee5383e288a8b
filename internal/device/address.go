package device

import (
	"fmt"
	"strconv"
	"strings"

	ljerrors "github.com/genba/labjackgo/internal/errors"
)

// AddressString renders a 32-bit address as a dotted quad, most significant
// octet first: 3232235985 is "192.168.1.209".
func AddressString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// ParseAddress is the inverse of AddressString.
func ParseAddress(s string) (uint32, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, ljerrors.Newf(ljerrors.InvalidAddress, "parse address", "%q is not a dotted quad", s)
	}
	var v uint32
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, ljerrors.Newf(ljerrors.InvalidAddress, "parse address", "%q: bad octet %q", s, p)
		}
		v = v<<8 | uint32(n)
	}
	return v, nil
}
