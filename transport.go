// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
)

const redactedAuth = "Authorization: Basic [redacted]"

// Transport owns the socket to the Icecast server: it dials, performs
// the source handshake, writes pages popped from the bounded queue, and
// drives reconnection with exponential backoff. Transient failures stay
// inside the retry loop unless a non-zero MaxRetries budget runs out,
// which surfaces ErrRetriesExhausted. Credential rejection (401/403)
// surfaces as ErrAuthRejected after transitioning to FailedPermanent.
type Transport struct {
	log logging.LeveledLogger

	cfg   Config
	queue *pageQueue
	retry retryPolicy

	shutdown *atomicBool
	stopCh   chan struct{}

	lock      sync.RWMutex
	state     ConnectionState
	conn      net.Conn
	useSource bool

	onConnectionStateChangeHdlr atomic.Value // func(ConnectionState)

	bytesSent      uint64
	pagesSent      uint64
	errorsTotal    uint64
	currentBackoff int64 // nanoseconds
}

func newTransport(loggerFactory logging.LoggerFactory, cfg Config, queue *pageQueue, shutdown *atomicBool, stopCh chan struct{}) *Transport {
	return &Transport{
		log:   loggerFactory.NewLogger("transport"),
		cfg:   cfg,
		queue: queue,
		retry: retryPolicy{
			initial:    cfg.InitialBackoff,
			max:        cfg.MaxBackoff,
			multiplier: cfg.Multiplier,
			maxRetries: cfg.MaxRetries,
		},
		shutdown: shutdown,
		stopCh:   stopCh,
		state:    ConnectionStateDisconnected,
	}
}

// OnConnectionStateChange sets a handler that is fired when the
// connection state changes.
func (t *Transport) OnConnectionStateChange(f func(ConnectionState)) {
	t.onConnectionStateChangeHdlr.Store(f)
}

func (t *Transport) onConnectionStateChange(state ConnectionState) {
	if hdlr, ok := t.onConnectionStateChangeHdlr.Load().(func(ConnectionState)); ok && hdlr != nil {
		hdlr(state)
	}
}

// State returns the current connection state.
func (t *Transport) State() ConnectionState {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.state
}

// BytesSent returns the number of page bytes written to the socket.
func (t *Transport) BytesSent() uint64 { return atomic.LoadUint64(&t.bytesSent) }

// PagesSent returns the number of pages written to the socket.
func (t *Transport) PagesSent() uint64 { return atomic.LoadUint64(&t.pagesSent) }

// Errors returns the number of connection and write failures.
func (t *Transport) Errors() uint64 { return atomic.LoadUint64(&t.errorsTotal) }

// CurrentBackoff returns the delay of the backoff sleep in progress, or
// zero while connected.
func (t *Transport) CurrentBackoff() time.Duration {
	return time.Duration(atomic.LoadInt64(&t.currentBackoff))
}

func (t *Transport) setState(state ConnectionState) {
	t.lock.Lock()
	if t.state == state {
		t.lock.Unlock()

		return
	}
	t.state = state
	t.lock.Unlock()

	t.log.Infof("connection state: %s", state)
	t.onConnectionStateChange(state)
}

func (t *Transport) setConn(conn net.Conn) {
	t.lock.Lock()
	t.conn = conn
	t.lock.Unlock()
}

// CloseConn closes the live socket, if any, unblocking an in-flight
// write. No Ogg end-of-stream page is emitted: the server times the
// mount out instead of telling listeners the stream finished.
func (t *Transport) CloseConn() {
	t.lock.Lock()
	conn := t.conn
	t.conn = nil
	t.lock.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Run connects and streams until shutdown, a permanent failure, or
// retry exhaustion.
func (t *Transport) Run() error { //nolint:cyclop
	attempt := 0

	for !t.shutdown.get() {
		t.setState(ConnectionStateConnecting)

		conn, err := t.connect()
		if err != nil {
			if errors.Is(err, ErrAuthRejected) {
				t.log.Errorf("%v; giving up", err)
				t.setState(ConnectionStateFailedPermanent)

				return err
			}

			atomic.AddUint64(&t.errorsTotal, 1)
			t.log.Warnf("connect %s: %v", t.cfg.addr(), err)

			attempt++
			if t.retry.exhausted(attempt) {
				t.setState(ConnectionStateDisconnected)

				return fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempt)
			}
			t.setState(ConnectionStateReconnecting)
			if !t.backoffSleep(attempt - 1) {
				break
			}

			continue
		}

		t.setConn(conn)
		attempt = 0
		atomic.StoreInt64(&t.currentBackoff, 0)
		t.setState(ConnectionStateConnected)
		t.log.Infof("streaming to %s%s", t.cfg.addr(), t.cfg.Mount)

		err = t.writeLoop(conn)
		t.CloseConn()

		if errors.Is(err, ErrQueueClosed) || t.shutdown.get() {
			break
		}

		// The socket died mid-stream. Pages already queued but older
		// than the buffer window are stale audio, not worth replaying.
		atomic.AddUint64(&t.errorsTotal, 1)
		if dropped := t.queue.DiscardOlderThan(t.cfg.bufferWindow()); dropped > 0 {
			t.log.Warnf("write failed: %v; dropped %d stale pages", err, dropped)
		} else {
			t.log.Warnf("write failed: %v", err)
		}

		attempt++
		t.setState(ConnectionStateReconnecting)
		if !t.backoffSleep(attempt - 1) {
			break
		}
	}

	t.setState(ConnectionStateDisconnected)

	return nil
}

// backoffSleep waits out the backoff for the given zero-based attempt.
// Returns false if shutdown interrupted the sleep.
func (t *Transport) backoffSleep(attempt int) bool {
	delay := t.retry.backoff(attempt)
	atomic.StoreInt64(&t.currentBackoff, int64(delay))
	t.log.Infof("reconnecting in %s", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-t.stopCh:
		return false
	}
}

// writeLoop pops pages and writes each as a single Write call until the
// queue closes or the socket errors.
func (t *Transport) writeLoop(conn net.Conn) error {
	for {
		data, ok := t.queue.Pop()
		if !ok {
			return ErrQueueClosed
		}

		_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteDeadline))
		if _, err := conn.Write(data); err != nil {
			return err
		}

		atomic.AddUint64(&t.bytesSent, uint64(len(data)))
		atomic.AddUint64(&t.pagesSent, 1)
	}
}

// connect dials, optionally wraps with TLS, and performs the source
// handshake. The returned connection is ready for page writes.
func (t *Transport) connect() (net.Conn, error) {
	dialer := &net.Dialer{Timeout: defaultDialTimeout}

	raw, err := dialer.Dial("tcp", t.cfg.addr())
	if err != nil {
		return nil, err
	}

	if tcpConn, ok := raw.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(keepalivePeriod)
	}

	conn := raw
	if t.cfg.UseTLS {
		tlsConn := tls.Client(raw, &tls.Config{
			ServerName:         t.cfg.Host,
			InsecureSkipVerify: t.cfg.TLSInsecureSkipVerify, //nolint:gosec
		})
		_ = tlsConn.SetDeadline(time.Now().Add(defaultHandshakeTimeout))
		if err := tlsConn.Handshake(); err != nil {
			_ = raw.Close()

			return nil, err
		}
		_ = tlsConn.SetDeadline(time.Time{})
		conn = tlsConn
	}

	if err := t.handshake(conn); err != nil {
		_ = conn.Close()

		return nil, err
	}

	return conn, nil
}

func (t *Transport) method() string {
	t.lock.RLock()
	defer t.lock.RUnlock()

	if t.useSource {
		return "SOURCE"
	}

	return "PUT"
}

func (t *Transport) buildRequest(method string) string {
	var b strings.Builder

	credentials := base64.StdEncoding.EncodeToString([]byte(t.cfg.Username + ":" + t.cfg.Password))

	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, t.cfg.Mount)
	fmt.Fprintf(&b, "Host: %s\r\n", t.cfg.addr())
	fmt.Fprintf(&b, "Authorization: Basic %s\r\n", credentials)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	b.WriteString("Content-Type: application/ogg\r\n")
	b.WriteString("Ice-Public: 0\r\n")
	b.WriteString("Expect: 100-continue\r\n")

	for _, header := range []struct{ name, value string }{
		{"Ice-Name", t.cfg.Name},
		{"Ice-Description", t.cfg.Description},
		{"Ice-Genre", t.cfg.Genre},
		{"Ice-Url", t.cfg.URL},
	} {
		if header.value != "" {
			fmt.Fprintf(&b, "%s: %s\r\n", header.name, header.value)
		}
	}

	b.WriteString("\r\n")

	return b.String()
}

// handshake sends the source request and classifies the response:
// 1xx/2xx success, 401/403 permanent, anything else transient. A 405 on
// PUT switches subsequent attempts to the legacy SOURCE method.
func (t *Transport) handshake(conn net.Conn) error {
	method := t.method()
	request := t.buildRequest(method)

	_ = conn.SetDeadline(time.Now().Add(defaultHandshakeTimeout))
	defer func() { _ = conn.SetDeadline(time.Time{}) }()

	t.log.Debugf("handshake request:\n%s", redactAuthorization(request))

	if _, err := conn.Write([]byte(request)); err != nil {
		return err
	}

	status, err := readResponseStatus(bufio.NewReader(conn))
	if err != nil {
		return fmt.Errorf("reading handshake response: %w", err)
	}

	switch {
	case status >= 100 && status < 300:
		return nil
	case status == 401 || status == 403:
		return fmt.Errorf("%w (status %d)", ErrAuthRejected, status)
	case status == 405 && method == "PUT":
		t.lock.Lock()
		t.useSource = true
		t.lock.Unlock()

		return errors.New("server rejected PUT (status 405), will retry with SOURCE")
	default:
		return fmt.Errorf("unexpected handshake status %d", status)
	}
}

// readResponseStatus parses the status line and drains headers until the
// blank line. Only the status code matters.
func readResponseStatus(reader *bufio.Reader) (int, error) {
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		return 0, err
	}

	fields := strings.SplitN(strings.TrimRight(statusLine, "\r\n"), " ", 3)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, fmt.Errorf("malformed status line %q", statusLine)
	}

	status, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("malformed status code %q", fields[1])
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, err
		}
		if line == "\r\n" || line == "\n" {
			return status, nil
		}
	}
}

// redactAuthorization replaces the credential bytes of an Authorization
// header so request dumps never leak the password.
func redactAuthorization(request string) string {
	lines := strings.Split(request, "\r\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(line), "authorization:") {
			lines[i] = redactedAuth
		}
	}

	return strings.Join(lines, "\r\n")
}
