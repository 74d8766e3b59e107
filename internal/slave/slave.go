// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package slave implements the Modbus service side: requests framed by
the transport are executed against the register tables and answered
with a response PDU or an exception.
*/
package slave

import (
	"encoding/binary"

	"github.com/ffutop/modbus-serial/internal/slave/model"
	"github.com/ffutop/modbus-serial/internal/slave/persistence"
	"github.com/ffutop/modbus-serial/modbus"
)

// Slave executes Modbus function codes against a DataModel and
// notifies the storage backend about every mutation.
type Slave struct {
	model   *model.DataModel
	storage persistence.Storage
}

// NewSlave creates a new Slave on top of m. storage may be nil for a
// purely volatile instance.
func NewSlave(m *model.DataModel, storage persistence.Storage) *Slave {
	return &Slave{model: m, storage: storage}
}

// Process executes the Modbus function code against the memory model.
func (s *Slave) Process(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils:
		return s.handleReadBits(req, s.model.ReadCoils)
	case modbus.FuncCodeReadDiscreteInputs:
		return s.handleReadBits(req, s.model.ReadDiscreteInputs)
	case modbus.FuncCodeReadHoldingRegister:
		return s.handleReadRegisters(req, s.model.ReadHoldingRegisters)
	case modbus.FuncCodeReadInputRegister:
		return s.handleReadRegisters(req, s.model.ReadInputRegisters)
	case modbus.FuncCodeWriteSingleCoil:
		return s.handleWriteSingleCoil(req)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleCoils:
		return s.handleWriteMultipleCoils(req)
	case modbus.FuncCodeWriteMultipleRegister:
		return s.handleWriteMultipleRegisters(req)
	case modbus.FuncCodeMaskWriteRegister:
		return s.handleMaskWriteRegister(req)
	case modbus.FuncCodeReadWriteMultipleReg:
		return s.handleReadWriteMultipleRegisters(req)
	case modbus.FuncCodeReadExceptionStatus:
		// No exception status bits are maintained; answer all-clear.
		return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: []byte{0x00}}, nil
	default:
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
}

func (s *Slave) handleReadBits(req modbus.ProtocolDataUnit, read func(uint16, uint16) ([]byte, error)) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 2000 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	data, err := read(address, quantity)
	if err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	return s.byteCountResponse(req.FunctionCode, data), nil
}

func (s *Slave) handleReadRegisters(req modbus.ProtocolDataUnit, read func(uint16, uint16) ([]byte, error)) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 125 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	data, err := read(address, quantity)
	if err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	return s.byteCountResponse(req.FunctionCode, data), nil
}

func (s *Slave) handleWriteSingleCoil(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := s.model.WriteSingleCoil(address, value); err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	s.onWrite(model.TableCoils, address, 1)

	return req, nil // Echo request
}

func (s *Slave) handleWriteSingleRegister(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := s.model.WriteSingleRegister(address, value); err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	s.onWrite(model.TableHoldingRegisters, address, 1)

	return req, nil // Echo request
}

func (s *Slave) handleWriteMultipleCoils(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 6 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > 1968 || byte(len(req.Data)-5) != byteCount {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	if err := s.model.WriteMultipleCoils(address, quantity, req.Data[5:]); err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	s.onWrite(model.TableCoils, address, quantity)

	return s.addressQuantityResponse(req.FunctionCode, address, quantity), nil
}

func (s *Slave) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 6 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > 123 || byte(len(req.Data)-5) != byteCount {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	if err := s.model.WriteMultipleRegisters(address, quantity, req.Data[5:]); err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	s.onWrite(model.TableHoldingRegisters, address, quantity)

	return s.addressQuantityResponse(req.FunctionCode, address, quantity), nil
}

func (s *Slave) handleMaskWriteRegister(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 6 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	andMask := binary.BigEndian.Uint16(req.Data[2:4])
	orMask := binary.BigEndian.Uint16(req.Data[4:6])

	if err := s.model.MaskWriteRegister(address, andMask, orMask); err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	s.onWrite(model.TableHoldingRegisters, address, 1)

	return req, nil // Echo request
}

func (s *Slave) handleReadWriteMultipleRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 9 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	readAddress := binary.BigEndian.Uint16(req.Data[0:2])
	readQuantity := binary.BigEndian.Uint16(req.Data[2:4])
	writeAddress := binary.BigEndian.Uint16(req.Data[4:6])
	writeQuantity := binary.BigEndian.Uint16(req.Data[6:8])
	byteCount := req.Data[8]

	if readQuantity < 1 || readQuantity > 125 ||
		writeQuantity < 1 || writeQuantity > 121 ||
		byte(len(req.Data)-9) != byteCount {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	data, err := s.model.ReadWriteMultipleRegisters(readAddress, readQuantity, writeAddress, writeQuantity, req.Data[9:])
	if err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	s.onWrite(model.TableHoldingRegisters, writeAddress, writeQuantity)

	return s.byteCountResponse(req.FunctionCode, data), nil
}

func (s *Slave) byteCountResponse(funcCode byte, data []byte) modbus.ProtocolDataUnit {
	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode,
		Data:         respData,
	}
}

func (s *Slave) addressQuantityResponse(funcCode byte, address, quantity uint16) modbus.ProtocolDataUnit {
	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode,
		Data:         respData,
	}
}

func (s *Slave) onWrite(table model.TableType, address, quantity uint16) {
	if s.storage != nil {
		s.storage.OnWrite(table, address, quantity)
	}
}

func (s *Slave) exception(funcCode byte, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | modbus.ExceptionFlag,
		Data:         []byte{code},
	}
}
