package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapNetworkError wraps network errors with user-friendly context
func WrapNetworkError(err error, address string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with device at %s", address),
		Reason:  extractNetworkReason(err),
		Hint:    "The device may be powered off, on another subnet, or its Ethernet port may be disabled",
		Try:     fmt.Sprintf("ljctl ping --target tcp://%s", address),
		Err:     err,
	}
}

// WrapDeviceError wraps device/protocol errors with user-friendly context
func WrapDeviceError(err error, operation string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Device operation failed: %s", operation),
		Reason:  extractDeviceReason(err),
		Hint:    deviceHint(err),
		Try:     "ljctl list --family <family> to confirm the device is reachable",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Generate a reference file with: ljctl config init",
		Try:     fmt.Sprintf("ljctl --config %s list", configPath),
		Err:     err,
	}
}

const timeoutReason = "Connection timeout - device may be offline or unreachable"

// socketReasons maps substrings of raw socket errors to explanations. The
// first match wins.
var socketReasons = []struct{ substr, reason string }{
	{"timeout", timeoutReason},
	{"deadline exceeded", timeoutReason},
	{"connection refused", "Connection refused - nothing is listening on that port"},
	{"no route to host", "No route to host - the device is on an unreachable subnet"},
	{"connection reset", "Connection reset - device closed the connection unexpectedly"},
}

func extractNetworkReason(err error) string {
	switch KindOf(err) {
	case Timeout:
		return timeoutReason
	case ConnectionReset:
		return "Connection reset - device closed the connection unexpectedly"
	}
	msg := err.Error()
	for _, r := range socketReasons {
		if strings.Contains(msg, r.substr) {
			return r.reason
		}
	}
	return "Network communication failed"
}

var deviceReasons = map[Kind]string{
	DeviceReportedBadChecksum: "The device rejected the command checksum",
	EchoMismatch:              "The reply did not echo the command bytes",
	ChecksumMismatch:          "The reply failed checksum validation",
	Timeout:                   "Device did not respond within timeout period",
	SessionClosed:             "The device session was already closed",
	DeviceNotFound:            "No matching device was found",
	UnsupportedOnTransport:    "The operation is not available on this transport",
	DriverUnavailable:         "The USB driver could not be loaded",
	InvalidValue:              "The value cannot be encoded for that register",
}

func extractDeviceReason(err error) string {
	kind := KindOf(err)
	switch kind {
	case DeviceError:
		code, _ := CodeOf(err)
		return fmt.Sprintf("Device returned error code %d", code)
	case ModbusException:
		code, _ := CodeOf(err)
		return fmt.Sprintf("Device returned Modbus exception %d", code)
	}
	if r, ok := deviceReasons[kind]; ok {
		return r
	}
	return "Device protocol error occurred"
}

func deviceHint(err error) string {
	switch KindOf(err) {
	case DriverUnavailable:
		return "Install libusb, or address a networked UE9 with --target tcp://<ip>"
	case UnsupportedOnTransport:
		return "Register access on the UE9 requires a tcp:// target"
	case DeviceNotFound:
		return "Check the cable and the --match value (local ID, serial number or IP address)"
	case ChecksumMismatch, EchoMismatch, DeviceReportedBadChecksum:
		return "Electrical noise or a second host talking to the device can corrupt frames"
	}
	return "The device may not support this operation, or the register address may be incorrect"
}
