// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"log/slog"

	"github.com/ffutop/modbus-serial/internal/config"
	"github.com/ffutop/modbus-serial/internal/slave"
	"github.com/ffutop/modbus-serial/internal/slave/persistence"
	"github.com/ffutop/modbus-serial/modbus"
)

// Client implements Downstream interface for an in-process slave.
type Client struct {
	slave   *slave.Slave
	storage persistence.Storage
}

// NewClient creates a new local Client with the configured storage
// backend. A backend that fails to load falls back to volatile
// memory so the device still answers.
func NewClient(cfg config.PersistenceConfig) *Client {
	var storage persistence.Storage
	switch cfg.Type {
	case "file":
		slog.Info("Initializing slave with file persistence", "path", cfg.Path)
		storage = persistence.NewFileStorage(cfg.Path)
	case "mmap":
		slog.Info("Initializing slave with mmap persistence", "path", cfg.Path)
		storage = persistence.NewMmapStorage(cfg.Path)
	default:
		slog.Info("Initializing slave with memory storage (non-persistent)")
		storage = persistence.NewMemoryStorage()
	}

	m, err := storage.Load()
	if err != nil {
		slog.Error("Failed to load persistence data, starting with fresh model", "err", err)
		storage = persistence.NewMemoryStorage()
		m, _ = storage.Load()
	}

	return &Client{
		slave:   slave.NewSlave(m, storage),
		storage: storage,
	}
}

// Send processes the PDU locally.
func (c *Client) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	// The slave is synchronous and fast, so we just call Process.
	return c.slave.Process(pdu)
}

// Connect is a no-op for the in-process slave.
func (c *Client) Connect(ctx context.Context) error {
	return nil
}

// Close closes the storage.
func (c *Client) Close() error {
	return c.storage.Close()
}
