package binder

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Event is one decoded frame from the build service stream.
type Event struct {
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message,omitempty"`
}

// terminal reports whether this event ends the stream with a failure.
func (e Event) terminal() bool { return e.Phase == "failed" }

// StreamState is the terminal condition of one relayed stream.
type StreamState int

const (
	// StreamClosed means the upstream ended without a failure event,
	// including consumer cancellation.
	StreamClosed StreamState = iota
	// StreamFailed means a terminal failure event arrived.
	StreamFailed
)

func (s StreamState) String() string {
	if s == StreamFailed {
		return "failed"
	}
	return "closed"
}

// StreamResult is what Relay returns once the stream reaches a terminal
// state.
type StreamResult struct {
	State      StreamState
	Failure    string   // terminal failure message, when State is StreamFailed
	Transcript []string // every forwarded message, arrival order
}

// StreamRelay consumes the build service's event stream once and fans its
// messages out to the sinks. All callbacks are invoked from a single
// goroutine, in event arrival order.
type StreamRelay struct {
	// Interval bounds progress notification frequency. Messages are
	// batched and flushed at most once per interval.
	Interval time.Duration

	// Forward receives every message immediately, for interactive relays.
	// Optional.
	Forward func(message string)

	// OnProgress receives the batch of messages accumulated since the
	// previous notification. Optional.
	OnProgress func(messages []string)

	// OnFailure receives the terminal failure message exactly once.
	// Optional.
	OnFailure func(message string)

	Logger *slog.Logger
}

// Relay reads frames from upstream until failure, EOF, or cancellation.
//
// There is deliberately no overall deadline: an upstream that never closes
// holds the relay open. Callers bound the stream with ctx if they need to.
func (r *StreamRelay) Relay(ctx context.Context, upstream io.Reader) (*StreamResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	events := make(chan Event)
	readerDone := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		defer close(readerDone)
		defer close(events)
		scanner := bufio.NewScanner(upstream)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			ev, ok := parseFrame(scanner.Bytes())
			if !ok {
				// Keepalives and malformed frames are expected noise.
				continue
			}
			select {
			case events <- ev:
			case <-stop:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Debug("build stream read ended", "error", err)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	result := &StreamResult{State: StreamClosed}
	var pending []string

	flush := func() {
		if len(pending) == 0 || r.OnProgress == nil {
			return
		}
		r.OnProgress(pending)
		pending = nil
	}

	for {
		select {
		case <-ctx.Done():
			// Consumer abandoned the stream. Normal cancellation,
			// not a fault.
			logger.Debug("build stream cancelled by consumer")
			return result, nil

		case <-ticker.C:
			flush()

		case ev, open := <-events:
			if !open {
				flush()
				return result, nil
			}
			if ev.terminal() {
				if ev.Message != "" {
					result.Transcript = append(result.Transcript, ev.Message)
				}
				result.State = StreamFailed
				result.Failure = ev.Message
				if r.OnFailure != nil {
					r.OnFailure(ev.Message)
				}
				return result, nil
			}
			if ev.Message == "" {
				continue
			}
			result.Transcript = append(result.Transcript, ev.Message)
			pending = append(pending, ev.Message)
			if r.Forward != nil {
				r.Forward(ev.Message)
			}
		}
	}
}

// parseFrame decodes one stream line. Frames carry a JSON body, optionally
// behind an SSE-style "data:" field prefix.
func parseFrame(line []byte) (Event, bool) {
	s := strings.TrimSpace(string(line))
	if s == "" {
		return Event{}, false
	}
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		s = strings.TrimSpace(rest)
	}
	var ev Event
	if err := json.Unmarshal([]byte(s), &ev); err != nil {
		return Event{}, false
	}
	if ev.Phase == "" && ev.Message == "" {
		return Event{}, false
	}
	return ev, true
}
