// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

import (
	"errors"
	"fmt"
)

// ConfigError indicates a configuration field failed validation. It is
// fatal at startup and names the offending field and accepted range.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("snowboot: ConfigError: %s: %s", e.Field, e.Reason)
}

// Permanent connection failures. These terminate the Transport.
var (
	// ErrAuthRejected is returned when the server answers the source
	// handshake with 401 or 403. It is never retried.
	ErrAuthRejected = errors.New("authentication rejected by server")

	// ErrRetriesExhausted is returned when max_retries is non-zero and
	// the attempt budget has been spent on transient failures.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Lifecycle errors.
var (
	ErrQueueClosed      = errors.New("page queue closed")
	ErrTransportClosed  = errors.New("transport closed")
	ErrSupervisorClosed = errors.New("supervisor closed")

	// ErrNotFIFO is returned when the configured input path exists but
	// is not a named pipe.
	ErrNotFIFO = errors.New("input path is not a FIFO")
)

// Internal invariant violations. Treated as fatal.
var (
	ErrGranuleRegression = errors.New("granule position would decrease")
	ErrBadSilenceAsset   = errors.New("embedded silence template is invalid")
)
