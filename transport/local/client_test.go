// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-serial/internal/config"
	"github.com/ffutop/modbus-serial/modbus"
)

func TestLocalClientWriteThenRead(t *testing.T) {
	c := NewClient(config.PersistenceConfig{Type: "memory"})
	defer c.Close()
	ctx := context.Background()

	_, err := c.Send(ctx, 1, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         []byte{0x00, 0x08, 0x12, 0x34},
	})
	require.NoError(t, err)

	resp, err := c.Send(ctx, 1, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegister,
		Data:         []byte{0x00, 0x08, 0x00, 0x01},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x12, 0x34}, resp.Data)
}

func TestLocalClientMmapBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registers.mmap")
	c := NewClient(config.PersistenceConfig{Type: "mmap", Path: path})
	ctx := context.Background()

	_, err := c.Send(ctx, 1, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleCoil,
		Data:         []byte{0x00, 0x01, 0xFF, 0x00},
	})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	// A fresh client over the same file still sees the coil.
	c2 := NewClient(config.PersistenceConfig{Type: "mmap", Path: path})
	defer c2.Close()

	resp, err := c2.Send(ctx, 1, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadCoils,
		Data:         []byte{0x00, 0x01, 0x00, 0x01},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x01}, resp.Data)
}
