// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"

	"github.com/ffutop/modbus-serial/modbus"
)

// predictPDULen inspects the leading bytes of a candidate frame and
// returns the expected PDU length. A zero length with a nil error
// means the prefix is too short to decide; an error means the frame
// cannot be valid and resynchronization is required. Predictors never
// consume bytes.
type predictPDULen func(adu []byte) (int, error)

// Vendor-specific (0xFE) response subcall codes with known lengths.
const (
	subcallStatus   = 0x0701
	subcallAck      = 0x0702
	subcallReadByte = 0x0703
	subcallBulkRead = 0x0704
)

// predictRequestPDULen returns the expected PDU length of a request
// frame based on its function code. For 0x0F/0x10/0x17 the length
// depends on an embedded byte-count field further into the frame.
func predictRequestPDULen(adu []byte) (int, error) {
	if len(adu) < 2 {
		return 0, nil
	}
	fnCode := adu[1]
	switch fnCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegister,
		modbus.FuncCodeReadInputRegister,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		return 5, nil
	case modbus.FuncCodeReadExceptionStatus,
		modbus.FuncCodeGetCommEventCounter,
		modbus.FuncCodeGetCommEventLog,
		modbus.FuncCodeReportServerID:
		return 1, nil
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegister:
		// Byte count at offset 6.
		if len(adu) < 7 {
			return 0, nil
		}
		return 6 + int(adu[6]), nil
	case modbus.FuncCodeMaskWriteRegister:
		return 7, nil
	case modbus.FuncCodeReadWriteMultipleReg:
		// Write byte count at offset 10.
		if len(adu) < 11 {
			return 0, nil
		}
		return 10 + int(adu[10]), nil
	case modbus.FuncCodeReadFIFOQueue:
		return 3, nil
	case 0x08, 0x14, 0x15, 0x2B:
		// Diagnostics, file records and encapsulated interface
		// transport are deliberately not framed here. Rejecting them
		// explicitly keeps them out of the generic invalid branch.
		return 0, &UnsupportedFunctionCodeError{FunctionCode: fnCode}
	default:
		return 0, &InvalidFunctionCodeError{FunctionCode: fnCode}
	}
}

// predictResponsePDULen returns the expected PDU length of a response
// frame. Read responses carry a byte count at offset 2; the FIFO
// queue response carries a 16-bit count; exception responses
// (0x81..0xAA) are always two bytes.
func predictResponsePDULen(adu []byte) (int, error) {
	if len(adu) < 2 {
		return 0, nil
	}
	fnCode := adu[1]
	switch fnCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegister,
		modbus.FuncCodeReadInputRegister,
		modbus.FuncCodeGetCommEventLog,
		modbus.FuncCodeReadWriteMultipleReg:
		// Byte count at offset 2.
		if len(adu) < 3 {
			return 0, nil
		}
		return 2 + int(adu[2]), nil
	case modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister,
		modbus.FuncCodeGetCommEventCounter,
		modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegister:
		return 5, nil
	case modbus.FuncCodeReadExceptionStatus:
		return 2, nil
	case modbus.FuncCodeMaskWriteRegister:
		return 7, nil
	case modbus.FuncCodeReadFIFOQueue:
		// 16-bit byte count at offset 2.
		if len(adu) < 4 {
			return 0, nil
		}
		return 3 + int(binary.BigEndian.Uint16(adu[2:4])), nil
	case modbus.FuncCodeVendor:
		return predictVendorPDULen(adu)
	case 0x08, 0x11, 0x14, 0x15, 0x2B:
		return 0, &UnsupportedFunctionCodeError{FunctionCode: fnCode}
	default:
		if fnCode >= 0x81 && fnCode <= 0xAA {
			// Exception response: mirrored function code plus one
			// exception-code byte.
			return 2, nil
		}
		return 0, &InvalidFunctionCodeError{FunctionCode: fnCode}
	}
}

// predictVendorPDULen resolves the 0xFE response length from the
// 16-bit subcall code at offset 2. Subcalls missing from the table
// are an error, never a guess.
func predictVendorPDULen(adu []byte) (int, error) {
	if len(adu) < 4 {
		return 0, nil
	}
	subcall := binary.BigEndian.Uint16(adu[2:4])
	switch subcall {
	case subcallStatus:
		// |addr|0xFE|0x07|0x01|status(4)|crc|
		return 7, nil
	case subcallAck:
		// |addr|0xFE|0x07|0x02|crc|
		return 3, nil
	case subcallReadByte:
		// |addr|0xFE|0x07|0x03|value(1)|crc|
		return 4, nil
	case subcallBulkRead:
		// |addr|0xFE|0x07|0x04|header(4)|data(64)|crc|
		return 71, nil
	default:
		return 0, &UnsupportedSubcallError{Subcall: subcall}
	}
}
