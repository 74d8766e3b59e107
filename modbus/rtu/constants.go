// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	// MinSize is the smallest possible RTU frame: slave id, function
	// code and CRC.
	MinSize = 4

	// MaxSize is the largest RTU frame the serial line specification
	// permits. The dropped-byte log shares the same bound.
	MaxSize = 256

	// maxPDUSize is the largest PDU that still fits a frame next to
	// the slave id and the CRC trailer.
	maxPDUSize = MaxSize - 3
)
