// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import "fmt"

// ParseRequest builds a typed request PDU from raw framed bytes whose
// first byte is the function code. The bytes have already passed the
// frame checksum, so a failure here is a protocol bug, not a
// transmission error.
func ParseRequest(data []byte) (ProtocolDataUnit, error) {
	if len(data) == 0 {
		return ProtocolDataUnit{}, fmt.Errorf("modbus: empty request PDU")
	}
	if data[0]&ExceptionFlag != 0 {
		return ProtocolDataUnit{}, fmt.Errorf("modbus: exception flag set on request function code 0x%02X", data[0])
	}
	return ProtocolDataUnit{FunctionCode: data[0], Data: data[1:]}, nil
}

// ParseResponse builds a typed response PDU from raw framed bytes
// whose first byte is the function code. Exception responses must
// carry the one-byte exception code.
func ParseResponse(data []byte) (ProtocolDataUnit, error) {
	if len(data) == 0 {
		return ProtocolDataUnit{}, fmt.Errorf("modbus: empty response PDU")
	}
	if data[0]&ExceptionFlag != 0 && len(data) < 2 {
		return ProtocolDataUnit{}, fmt.Errorf("modbus: exception response 0x%02X without exception code", data[0])
	}
	return ProtocolDataUnit{FunctionCode: data[0], Data: data[1:]}, nil
}
