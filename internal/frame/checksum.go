package frame

// Checksums for native command frames.
//
// Normal frames carry one 8-bit checksum in byte 0 over bytes 1..len-1.
// Extended frames (class nibble 15 in byte 1) carry a 16-bit checksum of
// bytes 6..len-1 in bytes 4-5, then an 8-bit checksum of bytes 1..5 in byte 0.

import (
	ljerrors "github.com/genba/labjackgo/internal/errors"
)

const (
	// MinFrameSize is the smallest frame the checksum engine accepts.
	MinFrameSize = 8

	// ExtendedClass is the class nibble value that marks an extended frame.
	ExtendedClass = 0x0F

	classMask  = 0x78
	classShift = 3

	extendedHeaderSize = 6
)

// Checksum8 sums buf[1:count], folds the carry twice and stores the result in buf[0].
func Checksum8(buf []byte, count int) {
	total := 0
	for i := 1; i < count; i++ {
		total += int(buf[i])
	}
	sum := (total & 0xFF) + (total >> 8)
	sum = (sum & 0xFF) + (sum >> 8)
	buf[0] = byte(sum)
}

// Checksum16 sums buf[6:] and stores it little-endian in buf[4:6].
func Checksum16(buf []byte) {
	total := 0
	for _, b := range buf[extendedHeaderSize:] {
		total += int(b)
	}
	buf[4] = byte(total)
	buf[5] = byte(total >> 8)
}

// Class returns the frame-class nibble of byte 1.
func Class(frame []byte) byte {
	if len(frame) < 2 {
		return 0
	}
	return (frame[1] & classMask) >> classShift
}

// IsExtended reports whether frame uses extended (16-bit + 8-bit) framing.
func IsExtended(frame []byte) bool {
	return Class(frame) == ExtendedClass
}

// ApplyChecksum writes the checksum bytes of frame in place.
func ApplyChecksum(frame []byte) error {
	if len(frame) < MinFrameSize {
		return ljerrors.Newf(ljerrors.FrameTooShort, "apply checksum", "%d bytes (minimum %d)", len(frame), MinFrameSize)
	}
	if IsExtended(frame) {
		Checksum16(frame)
		Checksum8(frame, extendedHeaderSize)
		return nil
	}
	Checksum8(frame, len(frame))
	return nil
}

// VerifyChecksum recomputes the checksum on a copy of frame and compares
// bytes 0, 4 and 5. Frames too short to carry a checksum never verify.
func VerifyChecksum(frame []byte) bool {
	tmp := cloneBytes(frame)
	if err := ApplyChecksum(tmp); err != nil {
		return false
	}
	return frame[0] == tmp[0] && frame[4] == tmp[4] && frame[5] == tmp[5]
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
