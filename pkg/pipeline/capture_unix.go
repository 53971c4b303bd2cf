package pipeline

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/oisp-sensor/core/pkg/event"
)

// wireCaptureEvent is the newline-delimited JSON shape an external capturer
// writes to the Unix domain socket, per the capture wire protocol.
type wireCaptureEvent struct {
	ID          string            `json:"id"`
	TimestampNs int64             `json:"timestamp_ns"`
	Kind        string            `json:"kind"`
	PID         int               `json:"pid"`
	TID         *int              `json:"tid,omitempty"`
	Data        string            `json:"data"` // base64, standard RFC 4648 with padding
	Metadata    wireMetadata      `json:"metadata"`
	RemoteHost  *string           `json:"remote_host,omitempty"`
	RemotePort  *int              `json:"remote_port,omitempty"`
}

type wireMetadata struct {
	Comm       *string `json:"comm,omitempty"`
	Exe        *string `json:"exe,omitempty"`
	UID        *int    `json:"uid,omitempty"`
	Fd         *int    `json:"fd,omitempty"`
	PPID       *int    `json:"ppid,omitempty"`
	BundleID   *string `json:"bundle_id,omitempty"`
}

// UnixSocketCapturer is the reference in-process capturer: it listens on a
// Unix domain socket and decodes newline-delimited JSON capture events from
// any number of concurrent external producers (the OS-level capture
// process, which lives outside this module).
type UnixSocketCapturer struct {
	SocketPath      string
	MaxConnections  int
	ReadBufferBytes int
	Log             *slog.Logger

	connSem chan struct{}
	active  atomic.Int32
}

func (c *UnixSocketCapturer) Name() string { return "capture.unix_socket" }

// Run listens until ctx is cancelled, closing the listener and waiting for
// in-flight connections to finish reading their current line.
func (c *UnixSocketCapturer) Run(ctx context.Context, out chan<- event.RawCaptureEvent) error {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}

	_ = os.Remove(c.SocketPath)
	ln, err := net.Listen("unix", c.SocketPath)
	if err != nil {
		return fmt.Errorf("capture: listen on %s: %w", c.SocketPath, err)
	}
	defer ln.Close()
	defer os.Remove(c.SocketPath)

	maxConn := c.MaxConnections
	if maxConn <= 0 {
		maxConn = 16
	}
	c.connSem = make(chan struct{}, maxConn)

	var wg sync.WaitGroup
	acceptDone := make(chan struct{})

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				close(acceptDone)
				wg.Wait()
				return nil
			default:
				log.Warn("capture: accept failed", "error", err)
				continue
			}
		}

		select {
		case c.connSem <- struct{}{}:
		default:
			log.Warn("capture: max connections reached, rejecting client")
			conn.Close()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-c.connSem }()
			c.handleConn(ctx, conn, out, log)
		}()
	}
}

func (c *UnixSocketCapturer) handleConn(ctx context.Context, conn net.Conn, out chan<- event.RawCaptureEvent, log *slog.Logger) {
	defer conn.Close()

	bufSize := c.ReadBufferBytes
	if bufSize <= 0 {
		bufSize = 1 << 20
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), bufSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw, err := decodeWireEvent(line)
		if err != nil {
			log.Debug("capture: malformed capture event, dropping", "error", err)
			continue
		}

		select {
		case out <- raw:
		default:
			// Upstream (decode) is full; the capture stage drops on
			// backpressure rather than blocking, per the at-most-once
			// in-memory hop contract.
			log.Debug("capture: decode channel full, dropping event", "id", raw.ID)
		}
	}
}

func decodeWireEvent(line []byte) (event.RawCaptureEvent, error) {
	var w wireCaptureEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return event.RawCaptureEvent{}, err
	}
	data, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return event.RawCaptureEvent{}, fmt.Errorf("decode base64 data: %w", err)
	}
	return event.RawCaptureEvent{
		ID:          w.ID,
		TimestampNs: w.TimestampNs,
		Kind:        event.CaptureKind(w.Kind),
		PID:         w.PID,
		TID:         w.TID,
		Data:        data,
		Metadata: event.RawCaptureMetadata{
			Comm:       w.Metadata.Comm,
			Exe:        w.Metadata.Exe,
			UID:        w.Metadata.UID,
			Fd:         w.Metadata.Fd,
			PPID:       w.Metadata.PPID,
			BundleID:   w.Metadata.BundleID,
		},
		RemoteHost: w.RemoteHost,
		RemotePort: w.RemotePort,
	}, nil
}
