// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Slaves []SlaveConfig `mapstructure:"slaves"`
	Log    LogConfig     `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SlaveConfig defines a simulated slave device bound to a serial bus
type SlaveConfig struct {
	Name        string            `mapstructure:"name"`
	Serial      SerialConfig      `mapstructure:"serial"`
	SlaveIDs    string            `mapstructure:"slave_ids"` // Accepted unit ids: "1", "1,2", "1-10"; empty accepts all
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device    string        `mapstructure:"device"`
	BaudRate  int           `mapstructure:"baud_rate"`
	DataBits  int           `mapstructure:"data_bits"`
	Parity    string        `mapstructure:"parity"`
	StopBits  int           `mapstructure:"stop_bits"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RqstPause time.Duration `mapstructure:"rqst_pause"` // Pause between requests

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-serial/")
		v.AddConfigPath("$HOME/.modbus-serial")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		return nil, fmt.Errorf("failed to found config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	for i := range config.Slaves {
		fixupSerial(&config.Slaves[i].Serial)
	}

	return &config, nil
}

// ParseSlaveIDs parses a string of slave IDs (e.g. "1,2,5-10") into a slice of bytes.
func ParseSlaveIDs(input string) ([]byte, error) {
	var ids []byte
	parts := strings.Split(input, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			// Range
			ranges := strings.Split(part, "-")
			if len(ranges) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(ranges[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %w", err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(ranges[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %w", err)
			}
			if start > end {
				return nil, fmt.Errorf("start of range %d is greater than end %d", start, end)
			}
			for i := start; i <= end; i++ {
				if i < 0 || i > 255 {
					return nil, fmt.Errorf("id out of range: %d", i)
				}
				ids = append(ids, byte(i))
			}
		} else {
			// Single
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid id: %w", err)
			}
			if id < 0 || id > 255 {
				return nil, fmt.Errorf("id out of range: %d", id)
			}
			ids = append(ids, byte(id))
		}
	}
	return ids, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
	if s.RqstPause == 0 {
		s.RqstPause = 100 * time.Millisecond
	}
}
