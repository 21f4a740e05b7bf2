// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

import "time"

// Version is reported to the server in the User-Agent header.
const Version = "0.3.0"

const (
	userAgent = "snowboot/" + Version

	// How long the Mux waits on the input buffer before inserting
	// silence.
	defaultInputDeadline = 100 * time.Millisecond

	// Per-page socket write deadline; guards against half-open peers.
	defaultWriteDeadline = 10 * time.Second

	defaultDialTimeout      = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second

	// Keepalive interval on the Icecast socket. Deliberately low so a
	// dead peer surfaces well before the write deadline fires.
	keepalivePeriod = 5 * time.Second

	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 60 * time.Second
	defaultMultiplier     = 2.0

	// The input buffer between the PipeReader and the Mux holds raw
	// pages; a second of typical Vorbis pages fits comfortably.
	inputBufferLimitBytes = 1024 * 1024
	inputBufferLimitPages = 256

	// Consecutive decode failures on the input stream at which the
	// PipeReader logs a warning. Every failure is already resynced to
	// the next capture pattern.
	resyncFailureThreshold = 3
)
