// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoilPackingRoundTrip(t *testing.T) {
	m := NewDataModel()

	// 11 coils spanning a byte boundary.
	data := []byte{0b10110101, 0b00000101}
	require.NoError(t, m.WriteMultipleCoils(100, 11, data))

	got, err := m.ReadCoils(100, 11)
	require.NoError(t, err)
	assert.Equal(t, []byte{0b10110101, 0b00000101}, got)

	// Reading a sub-range shifts the bits down.
	got, err = m.ReadCoils(101, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0b00000010}, got)
}

func TestRegisterRangeValidation(t *testing.T) {
	m := NewDataModel()

	_, err := m.ReadHoldingRegisters(0, 0)
	assert.Error(t, err)

	_, err = m.ReadHoldingRegisters(MaxAddress, 2)
	assert.Error(t, err)

	_, err = m.ReadHoldingRegisters(MaxAddress, 1)
	assert.NoError(t, err)

	err = m.WriteMultipleRegisters(0, 2, []byte{0x00})
	assert.Error(t, err)
}

func TestMaskWriteRegister(t *testing.T) {
	m := NewDataModel()
	require.NoError(t, m.WriteSingleRegister(7, 0x0F0F))

	require.NoError(t, m.MaskWriteRegister(7, 0xFF00, 0x00AA))

	got, err := m.ReadHoldingRegisters(7, 1)
	require.NoError(t, err)
	// (0x0F0F & 0xFF00) | (0x00AA &^ 0xFF00) = 0x0F00 | 0x00AA
	assert.Equal(t, []byte{0x0F, 0xAA}, got)
}
