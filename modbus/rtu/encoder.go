// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"fmt"

	"github.com/ffutop/modbus-serial/modbus"
	"github.com/ffutop/modbus-serial/modbus/crc"
)

// Encode appends the framed request to buf:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes, low byte first
//
// A request carrying the disconnect sentinel writes nothing and
// returns ErrNotConnected; dropping the transport in response is how
// the higher layer closes a stale serial connection.
func (c *ClientCodec) Encode(adu RequestADU, buf *bytes.Buffer) error {
	if adu.Disconnect {
		return ErrNotConnected
	}
	return encodeADU(adu.Header.SlaveID, adu.PDU, buf)
}

// Encode appends the framed response to buf.
func (s *ServerCodec) Encode(adu ResponseADU, buf *bytes.Buffer) error {
	return encodeADU(adu.Header.SlaveID, adu.PDU, buf)
}

func encodeADU(slaveID byte, pdu modbus.ProtocolDataUnit, buf *bytes.Buffer) error {
	pduLen := 1 + len(pdu.Data)
	if pduLen > maxPDUSize {
		return fmt.Errorf("rtu: length of data '%v' must not be bigger than '%v'", pduLen+3, MaxSize)
	}

	buf.Grow(pduLen + 3)
	buf.WriteByte(slaveID)
	buf.WriteByte(pdu.FunctionCode)
	buf.Write(pdu.Data)

	// CRC over the just-appended address and PDU bytes only; buf may
	// already hold earlier frames.
	data := buf.Bytes()
	var c crc.CRC
	checksum := c.Reset().PushBytes(data[len(data)-(pduLen+1):]).Value()
	buf.WriteByte(byte(checksum))
	buf.WriteByte(byte(checksum >> 8))
	return nil
}
