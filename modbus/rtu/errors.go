// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by the client encoder when the request
// carries the disconnect sentinel. The caller is expected to drop the
// transport in response; no bytes are written.
var ErrNotConnected = errors.New("rtu: disconnecting - not connected")

// InvalidFunctionCodeError reports a candidate frame whose function
// code byte is outside the recognized set.
type InvalidFunctionCodeError struct {
	FunctionCode byte
}

func (e *InvalidFunctionCodeError) Error() string {
	return fmt.Sprintf("rtu: invalid function code: 0x%02X", e.FunctionCode)
}

// UnsupportedFunctionCodeError reports a function code that is part of
// the Modbus specification but whose frame length this codec does not
// predict. These codes are rejected explicitly so that they cannot be
// confused with line noise.
type UnsupportedFunctionCodeError struct {
	FunctionCode byte
}

func (e *UnsupportedFunctionCodeError) Error() string {
	return fmt.Sprintf("rtu: unsupported function code: 0x%02X", e.FunctionCode)
}

// UnsupportedSubcallError reports a vendor-specific (0xFE) response
// whose 16-bit subcall code has no entry in the length table. New
// subcalls must be added to the table; lengths are never guessed.
type UnsupportedSubcallError struct {
	Subcall uint16
}

func (e *UnsupportedSubcallError) Error() string {
	return fmt.Sprintf("rtu: unsupported vendor subcall: 0x%04X", e.Subcall)
}

// CRCError reports a frame whose trailer does not match the checksum
// computed over the received bytes.
type CRCError struct {
	Wire     uint16
	Computed uint16
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("rtu: invalid crc: wire = 0x%04X, computed = 0x%04X", e.Wire, e.Computed)
}
