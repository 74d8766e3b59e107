// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package modbus holds the transport-neutral protocol vocabulary: the
Protocol Data Unit, function codes, and exception errors.
*/
package modbus

import "fmt"

// Function Codes
const (
	FuncCodeReadCoils           = 0x01
	FuncCodeReadDiscreteInputs  = 0x02
	FuncCodeReadHoldingRegister = 0x03
	FuncCodeReadInputRegister   = 0x04

	FuncCodeWriteSingleCoil       = 0x05
	FuncCodeWriteSingleRegister   = 0x06
	FuncCodeWriteMultipleCoils    = 0x0F
	FuncCodeWriteMultipleRegister = 0x10
	FuncCodeMaskWriteRegister     = 0x16

	FuncCodeReadExceptionStatus  = 0x07
	FuncCodeGetCommEventCounter  = 0x0B
	FuncCodeGetCommEventLog      = 0x0C
	FuncCodeReportServerID       = 0x11
	FuncCodeReadWriteMultipleReg = 0x17
	FuncCodeReadFIFOQueue        = 0x18

	// FuncCodeVendor is a vendor-specific function whose response
	// layout depends on a 16-bit subcall code embedded in the PDU.
	FuncCodeVendor = 0xFE

	// ExceptionFlag marks a response function code as an exception
	// response when OR-ed onto the request function code.
	ExceptionFlag = 0x80
)

// Exception Codes
const (
	ExceptionCodeIllegalFunction                    = 1
	ExceptionCodeIllegalDataAddress                 = 2
	ExceptionCodeIllegalDataValue                   = 3
	ExceptionCodeServerDeviceFailure                = 4
	ExceptionCodeAcknowledge                        = 5
	ExceptionCodeServerDeviceBusy                   = 6
	ExceptionCodeMemoryParityError                  = 8
	ExceptionCodeGatewayPathUnavailable             = 10
	ExceptionCodeGatewayTargetDeviceFailedToRespond = 11
)

// ProtocolDataUnit is the function code plus payload of a Modbus
// message, independent of the framing that carried it.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// Error implements error interface for a Modbus exception response.
type Error struct {
	FunctionCode  byte
	ExceptionCode byte
}

// Error converts known modbus exception code to error message.
func (e *Error) Error() string {
	var name string
	switch e.ExceptionCode {
	case ExceptionCodeIllegalFunction:
		name = "illegal function"
	case ExceptionCodeIllegalDataAddress:
		name = "illegal data address"
	case ExceptionCodeIllegalDataValue:
		name = "illegal data value"
	case ExceptionCodeServerDeviceFailure:
		name = "server device failure"
	case ExceptionCodeAcknowledge:
		name = "acknowledge"
	case ExceptionCodeServerDeviceBusy:
		name = "server device busy"
	case ExceptionCodeMemoryParityError:
		name = "memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		name = "gateway path unavailable"
	case ExceptionCodeGatewayTargetDeviceFailedToRespond:
		name = "gateway target device failed to respond"
	default:
		name = "unknown"
	}
	return fmt.Sprintf("modbus: exception '%v' (%s), function '%v'", e.ExceptionCode, name, e.FunctionCode&^byte(ExceptionFlag))
}

// IsException reports whether a response function code denotes an
// exception response. The exception range is 0x81..0xAA; vendor code
// 0xFE also carries the top bit but is not an exception.
func IsException(fnCode byte) bool {
	return fnCode >= ExceptionFlag|0x01 && fnCode <= 0xAA
}

// ResponseError maps an exception response PDU to its typed error.
// It returns nil for regular responses.
func ResponseError(pdu ProtocolDataUnit) error {
	if !IsException(pdu.FunctionCode) {
		return nil
	}
	exc := &Error{FunctionCode: pdu.FunctionCode}
	if len(pdu.Data) > 0 {
		exc.ExceptionCode = pdu.Data[0]
	}
	return exc
}
