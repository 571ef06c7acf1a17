package binder

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayForwardsInOrderAndCloses(t *testing.T) {
	upstream := strings.NewReader(strings.Join([]string{
		`data: {"phase": "building", "message": "Step 1/4"}`,
		`data: {"phase": "building", "message": "Step 2/4"}`,
		``,
		`: keepalive`,
		`data: {"phase": "built", "message": "Built image"}`,
	}, "\n"))

	var forwarded []string
	relay := &StreamRelay{
		Interval: time.Hour,
		Forward:  func(m string) { forwarded = append(forwarded, m) },
	}

	result, err := relay.Relay(context.Background(), upstream)
	require.NoError(t, err)
	assert.Equal(t, StreamClosed, result.State)
	assert.Equal(t, []string{"Step 1/4", "Step 2/4", "Built image"}, forwarded)
	assert.Equal(t, forwarded, result.Transcript)
}

func TestRelayTerminalFailureStopsConsumption(t *testing.T) {
	upstream := strings.NewReader(strings.Join([]string{
		`data: {"phase": "building", "message": "a"}`,
		`data: {"phase": "building", "message": "b"}`,
		`data: {"phase": "failed", "message": "x"}`,
		`data: {"phase": "building", "message": "never seen"}`,
	}, "\n"))

	var failures []string
	var forwarded []string
	relay := &StreamRelay{
		Interval:  time.Hour,
		Forward:   func(m string) { forwarded = append(forwarded, m) },
		OnFailure: func(m string) { failures = append(failures, m) },
	}

	result, err := relay.Relay(context.Background(), upstream)
	require.NoError(t, err)
	assert.Equal(t, StreamFailed, result.State)
	assert.Equal(t, "x", result.Failure)
	assert.Equal(t, []string{"x"}, failures, "failure notification must fire exactly once")
	assert.Equal(t, []string{"a", "b"}, forwarded, "nothing after the failure event is processed")
	assert.Equal(t, []string{"a", "b", "x"}, result.Transcript)
}

func TestRelayBatchesProgressByInterval(t *testing.T) {
	pr, pw := io.Pipe()
	var batches [][]string
	relay := &StreamRelay{
		Interval:   30 * time.Millisecond,
		OnProgress: func(msgs []string) { batches = append(batches, append([]string(nil), msgs...)) },
	}

	done := make(chan *StreamResult, 1)
	go func() {
		result, _ := relay.Relay(context.Background(), pr)
		done <- result
	}()

	io.WriteString(pw, "data: {\"message\": \"a\"}\n")
	io.WriteString(pw, "data: {\"message\": \"b\"}\n")
	time.Sleep(60 * time.Millisecond)
	io.WriteString(pw, "data: {\"message\": \"c\"}\n")
	pw.Close()

	result := <-done
	assert.Equal(t, StreamClosed, result.State)
	require.NotEmpty(t, batches)
	assert.Equal(t, []string{"a", "b"}, batches[0], "first batch holds pre-tick messages in order")
	assert.Equal(t, []string{"c"}, batches[len(batches)-1], "close flushes the remainder")
	assert.Equal(t, []string{"a", "b", "c"}, result.Transcript)
}

func TestRelayCancellationIsClean(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	relay := &StreamRelay{Interval: time.Hour}

	done := make(chan struct{})
	var result *StreamResult
	var err error
	go func() {
		defer close(done)
		result, err = relay.Relay(ctx, pr)
	}()

	io.WriteString(pw, "data: {\"message\": \"a\"}\n")
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop on cancellation")
	}
	require.NoError(t, err, "cancellation is not a fault")
	assert.Equal(t, StreamClosed, result.State)
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
		ok   bool
	}{
		{"sse data frame", `data: {"phase": "building", "message": "hi"}`, Event{Phase: "building", Message: "hi"}, true},
		{"bare json", `{"message": "hi"}`, Event{Message: "hi"}, true},
		{"keepalive comment", `: keepalive`, Event{}, false},
		{"blank", ``, Event{}, false},
		{"malformed json", `data: {nope`, Event{}, false},
		{"empty object", `data: {}`, Event{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseFrame([]byte(tt.line))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
