// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

import (
	"fmt"
	"strings"
	"time"

	"github.com/pion/logging"
)

// Config collects everything the Supervisor needs to run a source
// session. The external configuration layer (flags, files) is expected
// to populate it and call Validate before handing it over; the core
// never re-parses anything.
type Config struct {
	// Icecast endpoint.
	Host  string
	Port  int
	Mount string

	Username string
	Password string

	// UseTLS wraps the socket with TLS. TLSInsecureSkipVerify disables
	// certificate verification; only for private deployments.
	UseTLS                bool
	TLSInsecureSkipVerify bool

	// InputPipe is the path of the FIFO the producer writes to.
	InputPipe string

	// Parameters of the silence stream; the producer must match them.
	SampleRate  int
	BitrateKbps int

	// BufferSeconds sizes the bounded queue between Mux and Transport.
	BufferSeconds float64

	// Retry tuning. MaxRetries of 0 means retry forever.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	MaxRetries     int

	// Optional stream metadata, forwarded as Ice-* headers only when
	// non-empty.
	Name        string
	Description string
	Genre       string
	URL         string

	// InputDeadline is how long the Mux waits for input before
	// inserting silence. WriteDeadline bounds each socket write.
	// Zero values select the defaults.
	InputDeadline time.Duration
	WriteDeadline time.Duration

	LoggerFactory logging.LoggerFactory
}

// Validate checks every field against its documented range. The first
// violation is returned as a *ConfigError naming the field.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return &ConfigError{Field: "host", Reason: "must not be empty"}
	case c.Port < 1 || c.Port > 65535:
		return &ConfigError{Field: "port", Reason: fmt.Sprintf("%d outside 1-65535", c.Port)}
	case !strings.HasPrefix(c.Mount, "/"):
		return &ConfigError{Field: "mount", Reason: "must start with /"}
	case c.Username == "":
		return &ConfigError{Field: "username", Reason: "must not be empty"}
	case c.InputPipe == "":
		return &ConfigError{Field: "input_pipe", Reason: "must not be empty"}
	case c.SampleRate < 8000 || c.SampleRate > 192000:
		return &ConfigError{Field: "sample_rate", Reason: fmt.Sprintf("%d outside 8000-192000", c.SampleRate)}
	case c.BitrateKbps < 8 || c.BitrateKbps > 500:
		return &ConfigError{Field: "bitrate", Reason: fmt.Sprintf("%d outside 8-500", c.BitrateKbps)}
	case c.BufferSeconds < 0.1 || c.BufferSeconds > 10.0:
		return &ConfigError{Field: "buffer_seconds", Reason: fmt.Sprintf("%g outside 0.1-10.0", c.BufferSeconds)}
	case c.InitialBackoff < 0:
		return &ConfigError{Field: "initial_backoff", Reason: "must be positive"}
	case c.MaxBackoff < 0:
		return &ConfigError{Field: "max_backoff", Reason: "must be positive"}
	case c.Multiplier < 0:
		return &ConfigError{Field: "multiplier", Reason: "must be positive"}
	case c.MaxRetries < 0:
		return &ConfigError{Field: "max_retries", Reason: "must be zero (infinite) or positive"}
	}

	return nil
}

// withDefaults returns a copy with zero-valued tunables replaced by the
// package defaults.
func (c Config) withDefaults() Config {
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.Multiplier == 0 {
		c.Multiplier = defaultMultiplier
	}
	if c.InputDeadline == 0 {
		c.InputDeadline = defaultInputDeadline
	}
	if c.WriteDeadline == 0 {
		c.WriteDeadline = defaultWriteDeadline
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	return c
}

func (c *Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// bufferWindow is the wall-clock span of audio the bounded queue may
// hold; pages older than this are stale after a reconnect.
func (c *Config) bufferWindow() time.Duration {
	return time.Duration(c.BufferSeconds * float64(time.Second))
}
