// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/grid-x/serial"

	"github.com/ffutop/modbus-serial/internal/config"
	codec "github.com/ffutop/modbus-serial/modbus/rtu"
	"github.com/ffutop/modbus-serial/transport"
)

// Server implements a Modbus RTU Server (Upstream).
// It acts as a Slave on the serial bus, waiting for requests from an
// external Master. Frames addressed to other units are decoded and
// discarded; only accepted unit ids reach the handler.
type Server struct {
	Config config.SerialConfig

	// AcceptIDs lists the unit ids this server answers for. Empty
	// accepts every id. Id 0 (broadcast) is always handled but never
	// answered.
	AcceptIDs []byte

	port io.ReadWriteCloser
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig, acceptIDs []byte) *Server {
	return &Server{
		Config:    cfg,
		AcceptIDs: acceptIDs,
	}
}

// Start opens the serial port and serves requests until ctx is cancelled.
func (s *Server) Start(ctx context.Context, handler transport.Handler) error {
	spConfig := &serial.Config{
		Address:  s.Config.Device,
		BaudRate: s.Config.BaudRate,
		DataBits: s.Config.DataBits,
		StopBits: s.Config.StopBits,
		Parity:   s.Config.Parity,
		Timeout:  s.Config.Timeout, // Read timeout
	}
	if s.Config.RS485 {
		spConfig.RS485.Enabled = true
		spConfig.RS485.DelayRtsBeforeSend = s.Config.DelayRtsBeforeSend
		spConfig.RS485.DelayRtsAfterSend = s.Config.DelayRtsAfterSend
		spConfig.RS485.RtsHighDuringSend = s.Config.RtsHighDuringSend
		spConfig.RS485.RtsHighAfterSend = s.Config.RtsHighAfterSend
		spConfig.RS485.RxDuringTx = s.Config.RxDuringTx
	}

	port, err := serial.Open(spConfig)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	s.port = port
	defer port.Close()
	slog.Info("RTU Server listening", "device", s.Config.Device)

	// handle close
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return s.serve(ctx, port, handler)
}

// Close closes the serial port, unblocking a pending read in serve.
func (s *Server) Close() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

// serve reads from the port and drives the request decoder. The codec
// resynchronizes on noise internally; this loop only moves bytes and
// dispatches complete requests.
func (s *Server) serve(ctx context.Context, port io.ReadWriteCloser, handler transport.Handler) error {
	sc := codec.NewServerCodec()
	var rx bytes.Buffer
	chunk := make([]byte, codec.MaxSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Drain every complete frame already buffered before reading
		// again; a single read may deliver several frames.
		for {
			adu, err := sc.Decode(&rx)
			if err != nil {
				// CRC already verified; a PDU rejected here cannot be
				// answered meaningfully.
				slog.Error("discarding malformed request PDU", "err", err)
				continue
			}
			if adu == nil {
				break
			}
			s.dispatch(ctx, port, sc, handler, adu)
		}

		n, err := port.Read(chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if n > 0 {
			rx.Write(chunk[:n])
		}
	}
}

func (s *Server) dispatch(ctx context.Context, port io.ReadWriteCloser, sc *codec.ServerCodec, handler transport.Handler, adu *codec.RequestADU) {
	slaveID := adu.Header.SlaveID
	if !s.accepts(slaveID) {
		slog.Debug("ignoring frame for other unit", "slaveID", slaveID)
		return
	}

	respPDU, err := handler(ctx, slaveID, adu.PDU)
	if err != nil {
		slog.Error("request handler failed", "slaveID", slaveID, "err", err)
		return
	}

	// Broadcast requests are executed but never answered.
	if slaveID == 0 {
		return
	}

	var tx bytes.Buffer
	if err := sc.Encode(codec.ResponseADU{
		Header: codec.Header{SlaveID: slaveID},
		PDU:    respPDU,
	}, &tx); err != nil {
		slog.Error("failed to encode response", "slaveID", slaveID, "err", err)
		return
	}
	if _, err := port.Write(tx.Bytes()); err != nil {
		slog.Error("failed to write response", "slaveID", slaveID, "err", err)
	}
}

func (s *Server) accepts(slaveID byte) bool {
	if slaveID == 0 || len(s.AcceptIDs) == 0 {
		return true
	}
	for _, id := range s.AcceptIDs {
		if id == slaveID {
			return true
		}
	}
	return false
}
