// Copyright 2026 The Kaspa Register Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the register's TOML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	register "github.com/laudena/kaspa-register"
)

// Config is the full register configuration. The transport kind chosen
// here is the only place hardware selection happens; everything downstream
// works against the Transport interface.
type Config struct {
	Transport string `toml:"transport"` // "spi", "uart" or "pcsc"
	Address   string `toml:"address"`   // destination kaspa: address
	Capacity  int    `toml:"capacity"`  // assumed tag capacity in bytes
	Verify    bool   `toml:"verify"`    // read-back verification after write

	SPI   SPIConfig   `toml:"spi"`
	UART  UARTConfig  `toml:"uart"`
	PCSC  PCSCConfig  `toml:"pcsc"`
	Rates RatesConfig `toml:"rates"`
}

// SPIConfig configures the SPI transport.
type SPIConfig struct {
	Port         string `toml:"port"`          // e.g. "SPI0.0"
	ResetPin     string `toml:"reset_pin"`     // e.g. "GPIO25", empty disables
	IndicatorPin string `toml:"indicator_pin"` // e.g. "GPIO13", empty disables
}

// UARTConfig configures the serial transport.
type UARTConfig struct {
	Port string `toml:"port"` // e.g. "/dev/ttyAMA0"
}

// PCSCConfig configures the smartcard transport.
type PCSCConfig struct {
	ReaderHint string `toml:"reader_hint"` // substring match, e.g. "ACR1252"
}

// RatesConfig configures the fiat price refresher.
type RatesConfig struct {
	URL      string   `toml:"url"`
	Currency string   `toml:"currency"`
	Interval duration `toml:"interval"`
	MaxAge   duration `toml:"max_age"`
}

// duration parses TOML duration strings like "30s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = duration(parsed)
	return nil
}

// Duration returns the wrapped time.Duration.
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Transport: "pcsc",
		Capacity:  register.CapacityNTAG215,
		SPI: SPIConfig{
			Port: "SPI0.0",
		},
		UART: UARTConfig{
			Port: "/dev/ttyAMA0",
		},
		PCSC: PCSCConfig{
			ReaderHint: "ACR1252",
		},
		Rates: RatesConfig{
			URL:      "https://api.kaspa.org/info/price",
			Currency: "usd",
			Interval: duration(30 * time.Second),
			MaxAge:   duration(5 * time.Minute),
		},
	}
}

// Load reads path over the defaults. A missing file is an error; callers
// wanting pure defaults pass an empty path.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Transport {
	case "spi", "uart", "pcsc":
	default:
		return fmt.Errorf("transport must be spi, uart or pcsc, got %q", c.Transport)
	}

	if !register.IsNTAGCapacity(c.Capacity) {
		return fmt.Errorf("capacity %d is not an NTAG215/216 variant", c.Capacity)
	}

	if c.Transport == "spi" && c.SPI.Port == "" {
		return fmt.Errorf("spi.port must be set for the spi transport")
	}
	if c.Transport == "uart" && c.UART.Port == "" {
		return fmt.Errorf("uart.port must be set for the uart transport")
	}

	if c.Rates.Interval.Duration() < 0 || c.Rates.MaxAge.Duration() < 0 {
		return fmt.Errorf("rates intervals must not be negative")
	}
	return nil
}
