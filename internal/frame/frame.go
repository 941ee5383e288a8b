// Package frame builds and validates native command frames.
package frame

import (
	"bytes"
	"fmt"

	ljerrors "github.com/genba/labjackgo/internal/errors"
)

// BadChecksumSentinel is the lead byte pair a device returns when it rejected
// the checksum of the command it received.
var BadChecksumSentinel = [2]byte{0xB8, 0xB8}

// ErrorCodeOffset is the response byte holding the device error code.
const ErrorCodeOffset = 6

// BuildRequest returns a transport-ready copy of payload, with checksums
// applied when withChecksum is set.
func BuildRequest(payload []byte, withChecksum bool) ([]byte, error) {
	out := cloneBytes(payload)
	if withChecksum {
		if err := ApplyChecksum(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// HasBadChecksumSentinel reports whether resp starts with the B8 B8 pair.
func HasBadChecksumSentinel(resp []byte) bool {
	return len(resp) >= 2 && resp[0] == BadChecksumSentinel[0] && resp[1] == BadChecksumSentinel[1]
}

// ValidateResponse checks resp against the command it answers. The checks run
// in a fixed order: sentinel, echoed command bytes, checksum, error byte.
// echo holds the command-identifying bytes expected at resp[1:].
func ValidateResponse(resp, echo []byte) error {
	const op = "validate response"

	if HasBadChecksumSentinel(resp) {
		return ljerrors.New(ljerrors.DeviceReportedBadChecksum, op, nil)
	}
	if len(resp) < 1+len(echo) || !bytes.Equal(resp[1:1+len(echo)], echo) {
		return ljerrors.New(ljerrors.EchoMismatch, op, fmt.Errorf("want % X", echo))
	}
	if !VerifyChecksum(resp) {
		return ljerrors.New(ljerrors.ChecksumMismatch, op, nil)
	}
	if code := resp[ErrorCodeOffset]; code != 0 {
		return ljerrors.WithCode(ljerrors.DeviceError, op, code)
	}
	return nil
}
