// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ffutop/modbus-serial/modbus"
)

// readHoldingResponse is a well-formed frame for slave 0x01 carrying
// a ReadHoldingRegisters response with two register values, followed
// by one byte of trailing noise.
var readHoldingResponse = []byte{
	0x01, // slave address
	0x03, // function code
	0x04, // byte count
	0x89,
	0x02,
	0x42,
	0xC7,
	0x00, // crc
	0x9D, // crc
	0x00, // trailing noise
}

func TestDecodeRTUMessage(t *testing.T) {
	codec := NewClientCodec()
	buf := bytes.NewBuffer(append([]byte(nil), readHoldingResponse...))

	adu, err := codec.Decode(buf)
	require.NoError(t, err)
	require.NotNil(t, adu)

	assert.Equal(t, 1, buf.Len())
	assert.Equal(t, byte(0x01), adu.Header.SlaveID)

	want := modbus.ProtocolDataUnit{
		FunctionCode: 0x03,
		Data:         []byte{0x04, 0x89, 0x02, 0x42, 0xC7},
	}
	if diff := cmp.Diff(want, adu.PDU); diff != "" {
		t.Errorf("unexpected response PDU (-want +got):\n%s", diff)
	}
}

func TestDecodeDropsInvalidBytes(t *testing.T) {
	codec := NewClientCodec()
	buf := bytes.NewBuffer(append([]byte{0x42, 0x43}, readHoldingResponse...))

	// First the two noise bytes are recorded as dropped.
	adu, err := codec.Decode(buf)
	require.NoError(t, err)
	require.NotNil(t, adu)

	assert.Equal(t, 1, buf.Len())
	assert.Equal(t, byte(0x01), adu.Header.SlaveID)
	assert.Equal(t, byte(0x03), adu.PDU.FunctionCode)
	// The dropped-byte log is cleared once a frame decodes.
	assert.Empty(t, codec.decoder.frame.dropped)
}

func TestDecodeExceptionMessage(t *testing.T) {
	codec := NewClientCodec()
	buf := bytes.NewBuffer([]byte{
		0x66, // slave address
		0x82, // exception = 0x80 + 0x02
		0x03, // illegal data value
		0xB1, // crc
		0x7E, // crc
	})

	adu, err := codec.Decode(buf)
	require.NoError(t, err)
	require.NotNil(t, adu)
	assert.Equal(t, 0, buf.Len())

	assert.Equal(t, []byte{0x82, 0x03}, append([]byte{adu.PDU.FunctionCode}, adu.PDU.Data...))

	var exc *modbus.Error
	require.ErrorAs(t, adu.Exception(), &exc)
	assert.Equal(t, byte(0x82), exc.FunctionCode)
	assert.Equal(t, byte(0x03), exc.ExceptionCode)
	assert.EqualError(t, exc, "modbus: exception '3' (illegal data value), function '2'")
}

func TestDecodePartlyReceivedClientMessage(t *testing.T) {
	codec := NewClientCodec()
	buf := bytes.NewBuffer([]byte{
		0x12, // slave address
		0x02, // function code
		0x03, // byte count
		0x00, // data
		0x00, // data
		0x00, // data
		0x00, // crc first byte, second byte missing
	})

	adu, err := codec.Decode(buf)
	require.NoError(t, err)
	assert.Nil(t, adu)
	assert.Equal(t, 7, buf.Len())
}

func TestDecodeEmptyAndSingleByte(t *testing.T) {
	t.Run("client", func(t *testing.T) {
		codec := NewClientCodec()

		buf := &bytes.Buffer{}
		adu, err := codec.Decode(buf)
		require.NoError(t, err)
		assert.Nil(t, adu)
		assert.Equal(t, 0, buf.Len())

		buf = bytes.NewBuffer([]byte{0x00})
		adu, err = codec.Decode(buf)
		require.NoError(t, err)
		assert.Nil(t, adu)
		assert.Equal(t, 1, buf.Len())
	})

	t.Run("server", func(t *testing.T) {
		codec := NewServerCodec()

		buf := &bytes.Buffer{}
		adu, err := codec.Decode(buf)
		require.NoError(t, err)
		assert.Nil(t, adu)
		assert.Equal(t, 0, buf.Len())

		buf = bytes.NewBuffer([]byte{0x00})
		adu, err = codec.Decode(buf)
		require.NoError(t, err)
		assert.Nil(t, adu)
		assert.Equal(t, 1, buf.Len())
	})
}

func TestDecodePartlyReceivedServerMessages(t *testing.T) {
	// Two-byte prefixes of requests that cannot be complete yet: for
	// 0x0F/0x10 the byte-count field has not arrived, and 0x16 has a
	// fixed PDU length longer than the prefix.
	for _, fnCode := range []byte{0x16, 0x0F, 0x10} {
		codec := NewServerCodec()
		buf := bytes.NewBuffer([]byte{0x12, fnCode})

		adu, err := codec.Decode(buf)
		require.NoError(t, err)
		assert.Nil(t, adu, "function 0x%02X", fnCode)
		assert.Equal(t, 2, buf.Len(), "function 0x%02X", fnCode)
	}
}

func TestDecodeServerRequest(t *testing.T) {
	codec := NewServerCodec()
	buf := bytes.NewBuffer([]byte{0x01, 0x03, 0x08, 0x2B, 0x00, 0x02, 0xB6, 0x63})

	adu, err := codec.Decode(buf)
	require.NoError(t, err)
	require.NotNil(t, adu)

	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, byte(0x01), adu.Header.SlaveID)
	assert.False(t, adu.Disconnect)

	want := modbus.ProtocolDataUnit{
		FunctionCode: 0x03,
		Data:         []byte{0x08, 0x2B, 0x00, 0x02},
	}
	if diff := cmp.Diff(want, adu.PDU); diff != "" {
		t.Errorf("unexpected request PDU (-want +got):\n%s", diff)
	}
}

// A CRC mismatch must leave the queue byte-identical; only the resync
// step afterwards consumes, and it consumes exactly one byte.
func TestFrameDecoderNonDestructiveOnCRCMismatch(t *testing.T) {
	corrupted := append([]byte(nil), readHoldingResponse[:9]...)
	corrupted[8] ^= 0xFF

	fd := newFrameDecoder("response", predictResponsePDULen)
	buf := bytes.NewBuffer(append([]byte(nil), corrupted...))

	_, _, err := fd.decodeFrame(buf, 6)
	var crcErr *CRCError
	require.ErrorAs(t, err, &crcErr)
	assert.Equal(t, corrupted, buf.Bytes())

	fd.recoverOnError(buf)
	assert.Equal(t, corrupted[1:], buf.Bytes())
	assert.Equal(t, corrupted[:1], fd.dropped)
}

// Every decode error consumes exactly one byte: a run of invalid
// function codes shrinks to the single byte that is too short to
// judge.
func TestDecodeConsumesOneBytePerError(t *testing.T) {
	codec := NewClientCodec()
	garbage := bytes.Repeat([]byte{0x66}, 10)
	buf := bytes.NewBuffer(append([]byte(nil), garbage...))

	adu, err := codec.Decode(buf)
	require.NoError(t, err)
	assert.Nil(t, adu)
	assert.Equal(t, 1, buf.Len())
	assert.Equal(t, garbage[:9], codec.decoder.frame.dropped)
}

// The dropped-byte log is bounded: a garbage run longer than a
// maximum frame recycles the log and the next valid frame still
// decodes.
func TestDecodeRecoversAfterLongGarbageRun(t *testing.T) {
	codec := NewClientCodec()
	garbage := bytes.Repeat([]byte{0x66}, MaxSize+50)
	buf := bytes.NewBuffer(append(garbage, readHoldingResponse...))

	adu, err := codec.Decode(buf)
	require.NoError(t, err)
	require.NotNil(t, adu)
	assert.Equal(t, byte(0x01), adu.Header.SlaveID)
	assert.Equal(t, byte(0x03), adu.PDU.FunctionCode)
	assert.Equal(t, 1, buf.Len())
	assert.Empty(t, codec.decoder.frame.dropped)
}

// Any amount of leading noise is skipped byte-by-byte and the frame
// that follows is recognized intact.
func TestDecodeProgressUnderGarbage(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		slaveID := byte(0x66) // matches the garbage byte so no prefix can look like a frame start
		data := rapid.SliceOfN(rapid.Byte(), 4, 4).Draw(t, "data")
		garbageLen := rapid.IntRange(0, 300).Draw(t, "garbageLen")

		frame := &bytes.Buffer{}
		codec := NewClientCodec()
		err := codec.Encode(RequestADU{
			Header: Header{SlaveID: slaveID},
			PDU:    modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: data},
		}, frame)
		if err != nil {
			t.Fatalf("error while encoding: %+v", err)
		}
		frameLen := frame.Len()

		buf := bytes.NewBuffer(bytes.Repeat([]byte{0x66}, garbageLen))
		buf.Write(frame.Bytes())
		total := buf.Len()

		server := NewServerCodec()
		adu, err := server.Decode(buf)
		if err != nil {
			t.Fatalf("error while decoding: %+v", err)
		}
		if adu == nil {
			t.Fatalf("expected a frame after %d bytes of garbage", garbageLen)
		}
		if adu.Header.SlaveID != slaveID {
			t.Errorf("slave id = 0x%02X, want 0x%02X", adu.Header.SlaveID, slaveID)
		}
		if !cmp.Equal(data, adu.PDU.Data) {
			t.Errorf("invalid pdu data: %s", cmp.Diff(data, adu.PDU.Data))
		}
		if consumed := total - buf.Len(); consumed != garbageLen+frameLen {
			t.Errorf("consumed %d bytes, want %d", consumed, garbageLen+frameLen)
		}
	})
}

// Feeding any strict prefix of a valid frame reports need-more and
// leaves the queue untouched.
func TestDecodeNonDestructiveOnIncomplete(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		slaveID := rapid.Byte().Draw(t, "slaveID")
		data := rapid.SliceOfN(rapid.Byte(), 4, 4).Draw(t, "data")

		frame := &bytes.Buffer{}
		codec := NewClientCodec()
		err := codec.Encode(RequestADU{
			Header: Header{SlaveID: slaveID},
			PDU:    modbus.ProtocolDataUnit{FunctionCode: 0x05, Data: data},
		}, frame)
		if err != nil {
			t.Fatalf("error while encoding: %+v", err)
		}

		cut := rapid.IntRange(0, frame.Len()-1).Draw(t, "cut")
		prefix := append([]byte(nil), frame.Bytes()[:cut]...)
		buf := bytes.NewBuffer(append([]byte(nil), prefix...))

		server := NewServerCodec()
		adu, err := server.Decode(buf)
		if err != nil {
			t.Fatalf("error while decoding: %+v", err)
		}
		if adu != nil {
			t.Fatalf("decoded a frame from a strict prefix of %d bytes", cut)
		}
		if !bytes.Equal(prefix, buf.Bytes()) {
			t.Errorf("buffer changed: %s", cmp.Diff(prefix, buf.Bytes()))
		}
	})
}

func TestParseRequestRejectsExceptionFlag(t *testing.T) {
	_, err := modbus.ParseRequest([]byte{0x83, 0x02})
	assert.Error(t, err)

	_, err = modbus.ParseRequest(nil)
	assert.Error(t, err)
}

func TestDecodeErrorKinds(t *testing.T) {
	// Sanity for errors.Is/As plumbing used by the transports.
	err := error(&CRCError{Wire: 0x1234, Computed: 0x4321})
	var crcErr *CRCError
	assert.True(t, errors.As(err, &crcErr))
	assert.EqualError(t, err, "rtu: invalid crc: wire = 0x1234, computed = 0x4321")
}
