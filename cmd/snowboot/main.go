// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

// Command snowboot streams an Ogg Vorbis FIFO to an Icecast mount,
// synthesising silence whenever the producer goes away.
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

	"github.com/pion/logging"

	"github.com/dspearson/snowboot"
)

func main() {
	os.Exit(run())
}

func run() int { //nolint:cyclop
	host := flag.String("host", "localhost", "Icecast host")
	port := flag.Int("port", 8000, "Icecast port")
	mount := flag.String("mount", "/stream.ogg", "mount path (must start with /)")
	username := flag.String("user", "source", "source username")
	password := flag.String("password", "", "source password (or SNOWBOOT_PASSWORD)")
	useTLS := flag.Bool("tls", false, "wrap the connection with TLS")
	tlsInsecure := flag.Bool("tls-insecure", false, "skip TLS certificate verification")
	inputPipe := flag.String("pipe", "/tmp/snowboot.fifo", "input FIFO path")
	sampleRate := flag.Int("sample-rate", 44100, "silence PCM sample rate (Hz)")
	bitrate := flag.Int("bitrate", 128, "silence encoder bitrate (kbps)")
	bufferSeconds := flag.Float64("buffer", 2.0, "page buffer window (seconds)")
	initialBackoff := flag.Duration("initial-backoff", time.Second, "first reconnect delay")
	maxBackoff := flag.Duration("max-backoff", time.Minute, "reconnect delay cap")
	multiplier := flag.Float64("backoff-multiplier", 2.0, "reconnect delay growth factor")
	maxRetries := flag.Int("max-retries", 0, "transient failure budget, 0 = retry forever")
	name := flag.String("name", "", "stream name (Ice-Name)")
	description := flag.String("description", "", "stream description (Ice-Description)")
	genre := flag.String("genre", "", "stream genre (Ice-Genre)")
	streamURL := flag.String("url", "", "stream homepage (Ice-Url)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(snowboot.Version)

		return 0
	}

	if *password == "" {
		*password = os.Getenv("SNOWBOOT_PASSWORD")
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	log := loggerFactory.NewLogger("snowboot")

	cfg := snowboot.Config{
		Host:                  *host,
		Port:                  *port,
		Mount:                 *mount,
		Username:              *username,
		Password:              *password,
		UseTLS:                *useTLS,
		TLSInsecureSkipVerify: *tlsInsecure,
		InputPipe:             *inputPipe,
		SampleRate:            *sampleRate,
		BitrateKbps:           *bitrate,
		BufferSeconds:         *bufferSeconds,
		InitialBackoff:        *initialBackoff,
		MaxBackoff:            *maxBackoff,
		Multiplier:            *multiplier,
		MaxRetries:            *maxRetries,
		Name:                  *name,
		Description:           *description,
		Genre:                 *genre,
		URL:                   *streamURL,
		LoggerFactory:         loggerFactory,
	}

	supervisor, err := snowboot.New(cfg)
	if err != nil {
		log.Errorf("%v", err)

		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = supervisor.Run(ctx)
	switch {
	case err == nil:
		return 0
	case isConfigError(err):
		log.Errorf("%v", err)

		return 2
	default:
		log.Errorf("%v", err)

		return 1
	}
}

func isConfigError(err error) bool {
	var configErr *snowboot.ConfigError

	return errors.As(err, &configErr) || errors.Is(err, snowboot.ErrNotFIFO)
}
