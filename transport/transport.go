// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"

	"github.com/ffutop/modbus-serial/modbus"
)

// Handler services one Modbus request/response cycle at the PDU
// level. The framing has already been verified and stripped by the
// upstream; the returned PDU is framed and written back by it.
type Handler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// Upstream is a source of requests: an external Master talks to us.
// It acts as a server on the serial bus.
type Upstream interface {
	// Start serves requests until ctx is cancelled. It blocks and
	// should be called in a goroutine.
	Start(ctx context.Context, handler Handler) error
	Close() error
}

// Downstream is a destination for requests: a Slave we talk to.
// It acts as a client.
type Downstream interface {
	// Send sends a PDU to a specific slave and returns the response PDU.
	Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)
	Connect(ctx context.Context) error
	Close() error
}
