// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package rtu implements the Modbus serial line (RTU) framing codec.

The decoder operates on a streaming byte queue that may hold a
partial frame, a full frame, several frames, or line noise followed
by a frame. RTU frames carry no length header; the expected length is
predicted from the function code and, for some codes, from an
embedded byte-count field. Frames are accepted only after their
CRC-16 trailer verifies. On any decode failure exactly one leading
byte is skipped and decoding restarts, so a valid frame following any
amount of garbage is always recognized.
*/
package rtu

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-serial/modbus"
	"github.com/ffutop/modbus-serial/modbus/crc"
)

// Header carries the per-frame addressing of the serial bus.
type Header struct {
	SlaveID byte
}

// RequestADU is a framed request as seen by the server side.
// Disconnect is never set by the decoder; the client encoder uses it
// as a sentinel to tear down the transport.
type RequestADU struct {
	Header     Header
	PDU        modbus.ProtocolDataUnit
	Disconnect bool
}

// ResponseADU is a framed response as seen by the client side.
type ResponseADU struct {
	Header Header
	PDU    modbus.ProtocolDataUnit
}

// Exception returns the typed exception error if the response is an
// exception response, nil otherwise.
func (adu *ResponseADU) Exception() error {
	return modbus.ResponseError(adu.PDU)
}

// frameDecoder splits CRC-verified frames off the input queue and
// resynchronizes after failures. The request/response asymmetry lives
// entirely in the length predictor; everything else is shared.
type frameDecoder struct {
	role    string
	predict predictPDULen
	dropped []byte
}

func newFrameDecoder(role string, predict predictPDULen) frameDecoder {
	return frameDecoder{
		role:    role,
		predict: predict,
		dropped: make([]byte, 0, MaxSize),
	}
}

// decode drives predict → decodeFrame → recoverOnError until a frame
// is produced or the queue is exhausted. It returns a nil PDU when
// more bytes are needed. Framing errors never escape: each one skips
// exactly one byte, so the loop always makes progress.
func (d *frameDecoder) decode(buf *bytes.Buffer) (byte, []byte) {
	for {
		pduLen, err := d.predict(buf.Bytes())
		if err == nil {
			if pduLen == 0 {
				return 0, nil
			}
			slaveID, pdu, frameErr := d.decodeFrame(buf, pduLen)
			if frameErr == nil {
				return slaveID, pdu
			}
			err = frameErr
		}
		slog.Warn("failed to decode frame", "role", d.role, "err", err)
		d.recoverOnError(buf)
	}
}

// decodeFrame verifies and splits off one frame of pduLen PDU bytes.
// The queue holds the frame as |slave id|PDU|crc lo|crc hi|. Nothing
// is consumed unless the CRC verifies, so the queue is byte-identical
// to its pre-call state whenever an error is returned.
func (d *frameDecoder) decodeFrame(buf *bytes.Buffer, pduLen int) (byte, []byte, error) {
	aduLen := 1 + pduLen
	if buf.Len() < aduLen+2 {
		// Incomplete frame.
		return 0, nil, nil
	}

	data := buf.Bytes()
	wire := uint16(data[aduLen+1])<<8 | uint16(data[aduLen])
	var c crc.CRC
	if computed := c.Reset().PushBytes(data[:aduLen]).Value(); computed != wire {
		return 0, nil, &CRCError{Wire: wire, Computed: computed}
	}

	if len(d.dropped) > 0 {
		slog.Warn("decoded frame after dropping bytes",
			"role", d.role, "count", len(d.dropped), "bytes", hex.EncodeToString(d.dropped))
		d.dropped = d.dropped[:0]
	}

	frame := buf.Next(aduLen + 2)
	pdu := make([]byte, pduLen)
	copy(pdu, frame[1:aduLen])
	return frame[0], pdu, nil
}

// recoverOnError skips the first byte of the queue and records it in
// the dropped-byte log. The log is bounded by MaxSize; on overflow it
// is reported and recycled.
func (d *frameDecoder) recoverOnError(buf *bytes.Buffer) {
	first := buf.Next(1)
	if len(first) == 0 {
		// Decoding cannot fail on an empty queue.
		return
	}
	slog.Debug("dropped first byte", "role", d.role, "byte", fmt.Sprintf("0x%02X", first[0]))
	if len(d.dropped) >= MaxSize {
		slog.Error("giving up on frame after dropping bytes",
			"role", d.role, "count", len(d.dropped), "bytes", hex.EncodeToString(d.dropped))
		d.dropped = d.dropped[:0]
	}
	d.dropped = append(d.dropped, first[0])
}

// RequestDecoder extracts (slave id, PDU) frames from the server-side
// byte stream.
type RequestDecoder struct {
	frame frameDecoder
}

// NewRequestDecoder allocates a request decoder with an empty
// dropped-byte log.
func NewRequestDecoder() *RequestDecoder {
	return &RequestDecoder{frame: newFrameDecoder("request", predictRequestPDULen)}
}

// Decode returns the next frame from buf, or a nil PDU when more
// bytes are needed. The returned PDU is an owned copy whose first
// byte is the function code.
func (d *RequestDecoder) Decode(buf *bytes.Buffer) (byte, []byte) {
	return d.frame.decode(buf)
}

// ResponseDecoder extracts (slave id, PDU) frames from the
// client-side byte stream.
type ResponseDecoder struct {
	frame frameDecoder
}

// NewResponseDecoder allocates a response decoder with an empty
// dropped-byte log.
func NewResponseDecoder() *ResponseDecoder {
	return &ResponseDecoder{frame: newFrameDecoder("response", predictResponsePDULen)}
}

// Decode returns the next frame from buf, or a nil PDU when more
// bytes are needed.
func (d *ResponseDecoder) Decode(buf *bytes.Buffer) (byte, []byte) {
	return d.frame.decode(buf)
}

// ClientCodec frames requests and unframes typed responses for the
// master role.
type ClientCodec struct {
	decoder *ResponseDecoder
}

// NewClientCodec allocates a client codec.
func NewClientCodec() *ClientCodec {
	return &ClientCodec{decoder: NewResponseDecoder()}
}

// Decode returns the next response ADU, or nil when more bytes are
// needed. Frame decoding recovers from line noise internally; a
// non-nil error therefore means the CRC-verified PDU failed
// structural validation, which is not recoverable.
func (c *ClientCodec) Decode(buf *bytes.Buffer) (*ResponseADU, error) {
	slaveID, data := c.decoder.Decode(buf)
	if data == nil {
		return nil, nil
	}
	pdu, err := modbus.ParseResponse(data)
	if err != nil {
		slog.Error("failed to decode response PDU", "err", err)
		return nil, err
	}
	return &ResponseADU{Header: Header{SlaveID: slaveID}, PDU: pdu}, nil
}

// ServerCodec frames responses and unframes typed requests for the
// slave role.
type ServerCodec struct {
	decoder *RequestDecoder
}

// NewServerCodec allocates a server codec.
func NewServerCodec() *ServerCodec {
	return &ServerCodec{decoder: NewRequestDecoder()}
}

// Decode returns the next request ADU, or nil when more bytes are
// needed. The Disconnect flag on decoded requests is always false.
func (s *ServerCodec) Decode(buf *bytes.Buffer) (*RequestADU, error) {
	slaveID, data := s.decoder.Decode(buf)
	if data == nil {
		return nil, nil
	}
	pdu, err := modbus.ParseRequest(data)
	if err != nil {
		slog.Error("failed to decode request PDU", "err", err)
		return nil, err
	}
	return &RequestADU{Header: Header{SlaveID: slaveID}, PDU: pdu}, nil
}
