package modbus

// Modbus function codes used on the register channel.

const (
	FcReadHoldingRegisters   FunctionCode = 0x03 // Read 1-125 holding registers
	FcReadInputRegisters     FunctionCode = 0x04 // Read 1-125 input registers
	FcWriteSingleRegister    FunctionCode = 0x06 // Write a single holding register
	FcWriteMultipleRegisters FunctionCode = 0x10 // Write 1-123 holding registers
)

// String returns a human-readable name for the function code.
func (fc FunctionCode) String() string {
	switch fc {
	case FcReadHoldingRegisters:
		return "Read_Holding_Registers"
	case FcReadInputRegisters:
		return "Read_Input_Registers"
	case FcWriteSingleRegister:
		return "Write_Single_Register"
	case FcWriteMultipleRegisters:
		return "Write_Multiple_Registers"
	default:
		return "Unknown"
	}
}

// IsKnownFunction returns true for function codes this codec understands.
func IsKnownFunction(fc FunctionCode) bool {
	switch fc {
	case FcReadHoldingRegisters, FcReadInputRegisters,
		FcWriteSingleRegister, FcWriteMultipleRegisters:
		return true
	default:
		return false
	}
}
