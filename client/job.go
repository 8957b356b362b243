package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Job is the wire form of a job record as the server returns it.
type Job struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	Command       string     `json:"command"`
	Class         string     `json:"class"`
	State         string     `json:"state"`
	QueuePosition int        `json:"queue_position,omitempty"`
	QueuedAt      time.Time  `json:"queued_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	LogText       string     `json:"log_text,omitempty"`
	ArtefactIDs   []string   `json:"artefact_ids,omitempty"`
	PacketID      string     `json:"packet_id,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	switch j.State {
	case "done", "failed", "cancelled":
		return true
	}
	return false
}

// ListOpts filter a List call.
type ListOpts struct {
	State  string
	Limit  int
	Offset int
}

// Submit creates a job and returns the queued record.
func (c *Client) Submit(ctx context.Context, command string, params json.RawMessage) (*Job, error) {
	body := struct {
		Command string          `json:"command"`
		Params  json.RawMessage `json:"params,omitempty"`
	}{Command: command, Params: params}

	var j Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", body, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Get returns one job by id.
func (c *Client) Get(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID, nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// List returns the caller's jobs, newest first.
func (c *Client) List(ctx context.Context, opts ListOpts) ([]*Job, error) {
	q := url.Values{}
	if opts.State != "" {
		q.Set("state", opts.State)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/v1/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var jobs []*Job
	if err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Cancel requests cancellation and returns the job's current state.
// Cancelling a terminal job succeeds without changing anything.
func (c *Client) Cancel(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID+"/cancel", nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Delete removes a terminal job.
func (c *Client) Delete(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/jobs/"+jobID, nil, nil)
}
