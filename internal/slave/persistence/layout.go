// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ffutop/modbus-serial/internal/slave/model"
)

// On-disk layout shared by the file and mmap backends:
// - Coils: 65536 bytes (Offset 0)
// - DiscreteInputs: 65536 bytes (Offset 65536)
// - HoldingRegisters: 65536 * 2 bytes (Offset 131072)
// - InputRegisters: 65536 * 2 bytes (Offset 262144)
// Total Size: 393216 bytes
const (
	sizeCoils    = model.MaxAddress + 1
	sizeDiscrete = model.MaxAddress + 1
	sizeHolding  = (model.MaxAddress + 1) * 2
	sizeInput    = (model.MaxAddress + 1) * 2
	totalSize    = sizeCoils + sizeDiscrete + sizeHolding + sizeInput

	offsetCoils    = 0
	offsetDiscrete = offsetCoils + sizeCoils
	offsetHolding  = offsetDiscrete + sizeDiscrete
	offsetInput    = offsetHolding + sizeHolding
)

// mapBytesToModel constructs a DataModel backed by the provided data slice.
// Warning: This function uses unsafe pointers to cast byte slices to uint16 slices.
// The resulting DataModel relies on the host's endianness for multi-byte values,
// which is fine for a store that is written and read by the same machine but is
// not portable across architectures.
func mapBytesToModel(data []byte) *model.DataModel {
	m := &model.DataModel{}

	// Coils (Bytes)
	m.Coils = data[offsetCoils : offsetCoils+sizeCoils]

	// Discrete Inputs (Bytes)
	m.DiscreteInputs = data[offsetDiscrete : offsetDiscrete+sizeDiscrete]

	// Holding Registers (Uint16)
	holdingBytes := data[offsetHolding : offsetHolding+sizeHolding]
	m.HoldingRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&holdingBytes[0])), sizeHolding/2)

	// Input Registers (Uint16)
	inputBytes := data[offsetInput : offsetInput+sizeInput]
	m.InputRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&inputBytes[0])), sizeInput/2)

	return m
}

// openSized opens (creating if necessary) the backing file and forces
// it to the fixed layout size.
func openSized(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize %s: %w", path, err)
		}
	}
	return f, nil
}
