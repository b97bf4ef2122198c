package stream

import (
	"context"
	"errors"
	"io"
)

// UpstreamError is an error event received on the stream body.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return "upstream stream error: " + e.Message
}

// Result is the outcome of draining a completion stream.
type Result struct {
	Text    string
	Partial bool
}

// Consume drains typed events from r until the stream ends, an error event
// arrives, or ctx is cancelled. apply, if non-nil, is invoked after each event
// with the event and the authoritative text so far.
//
// Cancellation is a degraded result, not a failure: the text accumulated up to
// the cancel is returned with Partial set and a nil error, so a caller that
// tears down mid-stream still has the partial reply to show.
func Consume(ctx context.Context, r io.Reader, apply func(ev Event, text string)) (Result, error) {
	dec := NewDecoder(r)
	var acc Accumulator

	for {
		data, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Result{Text: acc.Text()}, nil
			}
			if ctx.Err() != nil {
				return Result{Text: acc.Text(), Partial: true}, nil
			}
			return Result{Text: acc.Text(), Partial: true}, err
		}

		ev, err := ParseEvent(data)
		if err != nil {
			// Malformed frames are dropped rather than ending the stream.
			continue
		}
		if ev.Error != "" {
			return Result{Text: acc.Text(), Partial: true}, &UpstreamError{Message: ev.Error}
		}

		text := acc.Apply(ev)
		if apply != nil {
			apply(ev, text)
		}

		select {
		case <-ctx.Done():
			return Result{Text: acc.Text(), Partial: true}, nil
		default:
		}
	}
}
