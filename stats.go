// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

import "time"

// StatsSnapshot is a read-only view of the core's counters, suitable for
// serialisation by an external health or metrics surface. The core never
// opens sockets for observability itself.
type StatsSnapshot struct {
	ConnectionState ConnectionState `json:"connection_state"`
	BytesSent       uint64          `json:"bytes_sent"`
	BytesRead       uint64          `json:"bytes_read"`
	PagesSent       uint64          `json:"chunks_sent"`
	ErrorsTotal     uint64          `json:"errors_total"`
	UptimeSeconds   float64         `json:"uptime_seconds"`
	CurrentBackoff  time.Duration   `json:"current_backoff"`
}
