package elan

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

const (
	pathEvents = "/api/ws"

	// eventQueueSize bounds events waiting for the main loop.
	eventQueueSize = 100

	// maxFrameSize caps a single WebSocket frame.
	maxFrameSize = 64 * 1024
)

// Event is a hub change notification. Device is the hub id of the device
// whose state changed, not its MAC.
type Event struct {
	Device string
	Raw    json.RawMessage
}

// EventStream delivers hub change events read from the WebSocket.
//
// A reader goroutine owns the connection; the consumer reads Events() and
// watches Done(). Malformed frames are counted and skipped. Any read error
// ends the stream.
type EventStream struct {
	conn   *websocket.Conn
	events chan Event
	logger Logger

	done    chan struct{}
	once    sync.Once
	errMu   sync.Mutex
	err     error
	closing atomic.Bool

	malformed atomic.Uint64
	dropped   atomic.Uint64
}

// Events opens the hub WebSocket using the session's cookies.
// Authenticate must have succeeded first.
func (c *Client) Events(ctx context.Context) (*EventStream, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = pathEvents

	dialer := websocket.Dialer{
		HandshakeTimeout: c.timeout,
		Jar:              c.jar,
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &StatusError{Method: "GET", URL: pathEvents, Code: resp.StatusCode}
		}
		return nil, fmt.Errorf("elan: dial %s: %w", u.String(), err)
	}
	conn.SetReadLimit(maxFrameSize)

	c.logger.Info("hub event stream connected", "url", u.String())

	s := &EventStream{
		conn:   conn,
		events: make(chan Event, eventQueueSize),
		logger: c.logger,
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *EventStream) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closing.Load() {
				s.finish(nil)
				return
			}
			s.finish(fmt.Errorf("%w: %w", ErrStreamClosed, err))
			return
		}

		ev, err := ParseEvent(data)
		if err != nil {
			s.malformed.Add(1)
			s.logger.Warn("dropping malformed hub event", "error", err, "frame", truncate(string(data), 200))
			continue
		}

		select {
		case s.events <- ev:
		default:
			s.dropped.Add(1)
			s.logger.Warn("event queue full, dropping hub event", "device", ev.Device)
		}
	}
}

func (s *EventStream) finish(err error) {
	s.once.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.done)
	})
}

// Events returns the queue of parsed events.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

// Done is closed when the stream ends.
func (s *EventStream) Done() <-chan struct{} {
	return s.done
}

// Err returns why the stream ended; nil while running or after Close.
func (s *EventStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Malformed returns the number of frames skipped as malformed.
func (s *EventStream) Malformed() uint64 {
	return s.malformed.Load()
}

// Dropped returns the number of events lost to a full queue.
func (s *EventStream) Dropped() uint64 {
	return s.dropped.Load()
}

// Close shuts the WebSocket down and waits for the reader to exit.
func (s *EventStream) Close() error {
	s.closing.Store(true)
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := s.conn.Close()
	<-s.done
	return err
}

// ParseEvent decodes a frame of the form {"device": <hub id>, ...}.
// The id may be a JSON string or number.
func ParseEvent(data []byte) (Event, error) {
	var frame struct {
		Device json.RawMessage `json:"device"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	id, err := flexibleID(frame.Device)
	if err != nil {
		return Event{}, err
	}

	return Event{Device: id, Raw: append(json.RawMessage(nil), data...)}, nil
}

// flexibleID accepts a JSON string or integer id.
func flexibleID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("%w: missing device id", ErrMalformedEvent)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("%w: empty device id", ErrMalformedEvent)
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return n.String(), nil
		}
	}

	return "", fmt.Errorf("%w: device id %s is neither string nor integer", ErrMalformedEvent, raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

