package client

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Event is one entry from a job's log stream.
type Event struct {
	// Type is "queued", "message", or "done".
	Type string
	// Seq and Line are set on message events.
	Seq  int
	Line string
	// State is the terminal state carried by the done event.
	State string
}

// Stream subscribes to a job's log stream. The returned channel replays
// everything logged so far, then tails live output; it is closed after
// the done event, after a queued event (the job has not started yet —
// re-subscribe later), or when ctx is cancelled. Keepalive pings are
// consumed internally.
func (c *Client) Stream(ctx context.Context, jobID string) (<-chan Event, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/jobs/"+jobID+"/stream", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var eventType string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				eventType = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data := strings.TrimPrefix(line, "data: ")
				evt, ok := parseEvent(eventType, data)
				if !ok {
					continue
				}
				select {
				case events <- evt:
				case <-ctx.Done():
					return
				}
				if evt.Type == "done" || evt.Type == "queued" {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.logger.Warn("conduct/client: stream read error",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return events, nil
}

func parseEvent(eventType, data string) (Event, bool) {
	switch eventType {
	case "queued":
		return Event{Type: "queued"}, true
	case "message":
		var payload struct {
			Seq  int    `json:"seq"`
			Line string `json:"line"`
		}
		if json.Unmarshal([]byte(data), &payload) != nil {
			return Event{}, false
		}
		return Event{Type: "message", Seq: payload.Seq, Line: payload.Line}, true
	case "done":
		var payload struct {
			State string `json:"state"`
		}
		if json.Unmarshal([]byte(data), &payload) != nil {
			return Event{}, false
		}
		return Event{Type: "done", State: payload.State}, true
	default:
		// Keepalive pings and unknown event types are consumed silently.
		return Event{}, false
	}
}
