// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-serial/internal/config"
	"github.com/ffutop/modbus-serial/modbus"
	codec "github.com/ffutop/modbus-serial/modbus/rtu"
)

// ErrRequestTimedOut is returned when a response is not received within the specified timeout.
var ErrRequestTimedOut = errors.New("modbus: request timed out")

// Client implements Downstream interface (Modbus RTU Master).
//
// Framing is delegated to the streaming codec: transmitted requests
// go through the encoder, and received bytes are fed into the
// response decoder until it produces a frame. Line noise between
// responses is skipped by the decoder, not by this transport.
type Client struct {
	serialPort

	codec *codec.ClientCodec
	// rx buffers bytes read from the bus across Send calls so a
	// response split across reads, or trailing noise after one, is
	// carried over to the next decode.
	rx bytes.Buffer
}

// NewClient allocates and initializes a RTU Client.
func NewClient(cfg config.SerialConfig) *Client {
	client := &Client{codec: codec.NewClientCodec()}

	// Map internal config to serial.Config
	client.serialPort.Config.Address = cfg.Device
	client.serialPort.Config.BaudRate = cfg.BaudRate
	client.serialPort.Config.DataBits = cfg.DataBits
	client.serialPort.Config.StopBits = cfg.StopBits
	client.serialPort.Config.Parity = cfg.Parity
	client.serialPort.Config.Timeout = cfg.Timeout

	if cfg.RS485 {
		client.serialPort.Config.RS485.Enabled = true
		client.serialPort.Config.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		client.serialPort.Config.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		client.serialPort.Config.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		client.serialPort.Config.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		client.serialPort.Config.RS485.RxDuringTx = cfg.RxDuringTx
	}

	client.IdleTimeout = serialIdleTimeout
	return client
}

// Send sends a PDU to the addressed slave and waits for its response.
func (mb *Client) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(ctx); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	mb.lastActivity = time.Now()
	defer mb.startCloseTimer()

	var tx bytes.Buffer
	err := mb.codec.Encode(codec.RequestADU{
		Header: codec.Header{SlaveID: slaveID},
		PDU:    pdu,
	}, &tx)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	slog.Debug("sending request", "slaveID", slaveID, "adu", hex.EncodeToString(tx.Bytes()))
	if _, err := mb.port.Write(tx.Bytes()); err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("failed to write request: %w", err)
	}

	timeout := mb.Config.Timeout
	if timeout <= 0 {
		timeout = serialTimeout
	}
	adu, err := mb.readResponse(ctx, time.Now().Add(timeout))
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	// Slave address must match
	if adu.Header.SlaveID != slaveID {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("modbus: response slave id '%v' does not match request '%v'", adu.Header.SlaveID, slaveID)
	}
	if err := adu.Exception(); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	return adu.PDU, nil
}

// readResponse drives the response decoder over port reads until a
// frame is produced or the deadline passes.
func (mb *Client) readResponse(ctx context.Context, deadline time.Time) (*codec.ResponseADU, error) {
	chunk := make([]byte, codec.MaxSize)
	for {
		adu, err := mb.codec.Decode(&mb.rx)
		if err != nil {
			return nil, err
		}
		if adu != nil {
			return adu, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, ErrRequestTimedOut
		}

		n, err := mb.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		mb.rx.Write(chunk[:n])
	}
}

// Disconnect tears the transport down via the codec's sentinel and
// closes the serial port.
func (mb *Client) Disconnect() error {
	var tx bytes.Buffer
	err := mb.codec.Encode(codec.RequestADU{Disconnect: true}, &tx)
	if !errors.Is(err, codec.ErrNotConnected) {
		return fmt.Errorf("modbus: disconnect sentinel not honored: %v", err)
	}
	return mb.Close()
}
