package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/conducthq/conduct/job"
)

type ownerKey struct{}

func withOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// SubmitJobRequest is the body of POST /v1/jobs.
type SubmitJobRequest struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JobResponse is the wire form of a job record.
type JobResponse struct {
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

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:            j.ID.String(),
		OwnerID:       j.OwnerID,
		Command:       j.Command,
		Class:         string(j.Class),
		State:         string(j.State),
		QueuePosition: j.QueuePosition,
		QueuedAt:      j.QueuedAt,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
		LogText:       j.LogText,
		ArtefactIDs:   j.ArtefactIDs,
	}
	if !j.PacketID.IsNil() {
		resp.PacketID = j.PacketID.String()
	}
	return resp
}

func toJobResponses(jobs []*job.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	return out
}
