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

// Command kaspareg encodes a Kaspa payment request and writes it to the
// next NFC tag presented to the configured reader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	register "github.com/laudena/kaspa-register"
	"github.com/laudena/kaspa-register/internal/config"
	"github.com/laudena/kaspa-register/internal/rates"
	"github.com/laudena/kaspa-register/transport/pcsc"
	"github.com/laudena/kaspa-register/transport/spi"
	"github.com/laudena/kaspa-register/transport/uart"
)

var (
	flagConfig  string
	flagAddress string
	flagAmount  string
	flagFiat    bool
	flagMessage string
	flagVerify  bool
	flagTimeout time.Duration
	flagDebug   bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "Path to TOML config file (defaults apply if empty)")
	flag.StringVar(&flagAddress, "address", "", "Destination kaspa: address (overrides config)")
	flag.StringVar(&flagAmount, "amount", "", "Amount to request")
	flag.BoolVar(&flagFiat, "fiat", false, "Treat -amount as fiat and convert at the current rate")
	flag.StringVar(&flagMessage, "message", "", "Optional payment message shown by the wallet")
	flag.BoolVar(&flagVerify, "verify", false, "Read written pages back and verify byte-exact")
	flag.DurationVar(&flagTimeout, "timeout", 30*time.Second, "Whole-session timeout")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}

func newLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	level := zerolog.InfoLevel
	if flagDebug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(output).With().Timestamp().Str("app", "kaspareg").Logger().Level(level)
}

// newFactory is the only place a hardware kind is branched; everything
// downstream sees register.Transport.
func newFactory(cfg *config.Config) register.Factory {
	switch cfg.Transport {
	case "spi":
		return func() (register.Transport, error) {
			opts := make([]spi.Option, 0, 2)
			if cfg.SPI.ResetPin != "" {
				opts = append(opts, spi.WithResetPin(cfg.SPI.ResetPin))
			}
			if cfg.SPI.IndicatorPin != "" {
				opts = append(opts, spi.WithIndicatorPin(cfg.SPI.IndicatorPin, 20*time.Second))
			}
			return spi.New(cfg.SPI.Port, opts...)
		}
	case "uart":
		return func() (register.Transport, error) {
			return uart.New(cfg.UART.Port)
		}
	default:
		return func() (register.Transport, error) {
			return pcsc.New(cfg.PCSC.ReaderHint)
		}
	}
}

// resolveAmount turns the -amount flag into KAS, converting from fiat when
// asked. A missing rate degrades: the amount passes through as KAS and the
// degradation is logged, never fatal.
func resolveAmount(log zerolog.Logger, refresher *rates.Refresher, raw string, fiat bool) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", register.ErrAmountInvalid, err)
	}
	if !fiat {
		return amount, nil
	}

	kas, err := refresher.ConvertFiat(amount)
	if err != nil {
		if errors.Is(err, register.ErrRateUnavailable) {
			log.Info().Err(err).Msg("rate unavailable, treating amount as KAS")
			return amount, nil
		}
		return decimal.Zero, err
	}
	log.Info().Str("fiat", amount.String()).Str("kas", kas.String()).Msg("converted amount")
	return kas, nil
}

func run(ctx context.Context, log zerolog.Logger) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	address := cfg.Address
	if flagAddress != "" {
		address = flagAddress
	}
	if address == "" {
		return fmt.Errorf("%w: no address given (flag -address or config)", register.ErrAddressInvalid)
	}
	if flagAmount == "" {
		return fmt.Errorf("%w: no amount given (flag -amount)", register.ErrAmountInvalid)
	}
	verify := cfg.Verify || flagVerify

	refresher := rates.New(
		cfg.Rates.URL,
		cfg.Rates.Interval.Duration(),
		cfg.Rates.MaxAge.Duration(),
		rates.WithLogger(log),
	)
	if flagFiat {
		go refresher.Run(ctx)
		// Give the first fetch a moment; a miss degrades to KAS pass-through.
		time.Sleep(2 * time.Second)
	}

	amount, err := resolveAmount(log, refresher, flagAmount, flagFiat)
	if err != nil {
		return err
	}

	payment := register.PaymentURI{
		Address: address,
		Amount:  amount,
		Message: flagMessage,
	}
	uri, err := payment.BuildURI()
	if err != nil {
		return err
	}
	image, err := register.EncodeTagImage(payment, cfg.Capacity)
	if err != nil {
		return err
	}
	log.Info().Str("uri", uri).Int("pages", image.Pages()).Msg("payment encoded")

	writer := register.NewTagWriter(newFactory(cfg),
		register.WithVerify(verify),
		register.WithLogger(log),
		register.WithSessionTimeout(flagTimeout),
	)

	events, cancelSub := writer.Status().Subscribe(16)
	defer cancelSub()
	go func() {
		for ev := range events {
			entry := log.Info()
			if !ev.OK {
				entry = log.Error()
			}
			entry.Str("stage", ev.Stage).Msg(ev.Message)
		}
	}()

	return writer.Write(ctx, image)
}

func main() {
	flag.Parse()
	log := newLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn().Msg("shutting down")
		cancel()
	}()

	if err := run(ctx, log); err != nil {
		if errors.Is(err, register.ErrCancelled) || errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		log.Error().Err(err).Msg("write failed")
		os.Exit(1)
	}
}
