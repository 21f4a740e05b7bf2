// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

// ConnectionState represents the current state of the Icecast transport.
type ConnectionState int

const (
	// ConnectionStateUnknown is the enum's zero-value.
	ConnectionStateUnknown ConnectionState = iota

	// ConnectionStateDisconnected indicates no connection exists and
	// none is being attempted.
	ConnectionStateDisconnected

	// ConnectionStateConnecting indicates a dial and source handshake
	// are in progress.
	ConnectionStateConnecting

	// ConnectionStateConnected indicates the handshake succeeded and
	// pages are being written to the socket.
	ConnectionStateConnected

	// ConnectionStateReconnecting indicates the connection was lost and
	// the transport is backing off before the next attempt.
	ConnectionStateReconnecting

	// ConnectionStateFailedPermanent indicates the server rejected the
	// credentials. Terminal: no further connects are attempted.
	ConnectionStateFailedPermanent
)

const (
	connectionStateDisconnectedStr    = "disconnected"
	connectionStateConnectingStr      = "connecting"
	connectionStateConnectedStr       = "connected"
	connectionStateReconnectingStr    = "reconnecting"
	connectionStateFailedPermanentStr = "failed-permanent"
	connectionStateUnknownStr         = "unknown"
)

func newConnectionState(raw string) ConnectionState {
	switch raw {
	case connectionStateDisconnectedStr:
		return ConnectionStateDisconnected
	case connectionStateConnectingStr:
		return ConnectionStateConnecting
	case connectionStateConnectedStr:
		return ConnectionStateConnected
	case connectionStateReconnectingStr:
		return ConnectionStateReconnecting
	case connectionStateFailedPermanentStr:
		return ConnectionStateFailedPermanent
	default:
		return ConnectionStateUnknown
	}
}

func (c ConnectionState) String() string {
	switch c {
	case ConnectionStateDisconnected:
		return connectionStateDisconnectedStr
	case ConnectionStateConnecting:
		return connectionStateConnectingStr
	case ConnectionStateConnected:
		return connectionStateConnectedStr
	case ConnectionStateReconnecting:
		return connectionStateReconnectingStr
	case ConnectionStateFailedPermanent:
		return connectionStateFailedPermanentStr
	default:
		return connectionStateUnknownStr
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c ConnectionState) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ConnectionState) UnmarshalText(b []byte) error {
	*c = newConnectionState(string(b))

	return nil
}
