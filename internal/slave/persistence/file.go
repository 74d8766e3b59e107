// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/modbus-serial/internal/slave/model"
)

// FileStorage persists the register tables in a flat file. The whole
// image is rewritten on every write hook, which is simple and robust
// but slower than the mmap backend.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the file image and builds the data model on top of it.
func (ms *FileStorage) Load() (*model.DataModel, error) {
	f, err := openSized(ms.path)
	if err != nil {
		return nil, err
	}
	ms.file = f

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	ms.data = data

	return mapBytesToModel(data), nil
}

// Save flushes the data to disk.
func (ms *FileStorage) Save(m *model.DataModel) error {
	return ms.sync()
}

// OnWrite triggers a sync for persistence.
func (ms *FileStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if err := ms.sync(); err != nil {
		slog.Error("Failed to sync file", "err", err)
	}
}

func (ms *FileStorage) sync() error {
	if ms.data == nil || ms.file == nil {
		return nil
	}
	if _, err := ms.file.WriteAt(ms.data, 0); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := ms.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (ms *FileStorage) Close() error {
	if ms.file == nil {
		return nil
	}
	err := ms.file.Close()
	ms.file = nil
	return err
}
