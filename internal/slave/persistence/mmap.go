// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/ffutop/modbus-serial/internal/slave/model"
)

// MmapStorage persists the register tables through a memory-mapped
// file. Writes land directly in the mapped pages; the write hook only
// has to flush them.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path: path,
	}
}

// Load maps the backing file and builds the data model directly on
// top of the mapping.
func (ms *MmapStorage) Load() (*model.DataModel, error) {
	f, err := openSized(ms.path)
	if err != nil {
		return nil, err
	}
	ms.file = f

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	ms.data = data

	return mapBytesToModel(data), nil
}

// Save flushes the mapping to disk.
func (ms *MmapStorage) Save(m *model.DataModel) error {
	return ms.sync()
}

// OnWrite flushes the dirtied pages so a crash cannot lose the write.
func (ms *MmapStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if err := ms.sync(); err != nil {
		slog.Error("Failed to sync mmap", "err", err)
	}
}

func (ms *MmapStorage) sync() error {
	if ms.data == nil {
		return nil
	}
	return ms.data.Flush()
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	if ms.data != nil {
		if err := ms.data.Unmap(); err != nil {
			return err
		}
		ms.data = nil
	}
	if ms.file != nil {
		err := ms.file.Close()
		ms.file = nil
		return err
	}
	return nil
}
