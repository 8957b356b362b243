package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/conducthq/conduct/id"
	"github.com/conducthq/conduct/job"
)

type jobModel struct {
	bun.BaseModel `bun:"table:conduct_jobs"`

	ID          string     `bun:"id,pk"`
	OwnerID     string     `bun:"owner_id,notnull"`
	Command     string     `bun:"command,notnull"`
	Params      []byte     `bun:"params"`
	Class       string     `bun:"class,notnull"`
	State       string     `bun:"state,notnull,default:'queued'"`
	QueuedAt    time.Time  `bun:"queued_at,notnull"`
	StartedAt   *time.Time `bun:"started_at"`
	FinishedAt  *time.Time `bun:"finished_at"`
	LogText     string     `bun:"log_text,notnull,default:''"`
	ArtefactIDs string     `bun:"artefact_ids,notnull,default:'[]'"`
	PacketID    string     `bun:"packet_id"`
}

func toJobModel(j *job.Job) (*jobModel, error) {
	artefacts, err := json.Marshal(j.ArtefactIDs)
	if err != nil {
		return nil, fmt.Errorf("conduct/bun: marshal artefact ids: %w", err)
	}
	if j.ArtefactIDs == nil {
		artefacts = []byte("[]")
	}

	return &jobModel{
		ID:          j.ID.String(),
		OwnerID:     j.OwnerID,
		Command:     j.Command,
		Params:      j.Params,
		Class:       string(j.Class),
		State:       string(j.State),
		QueuedAt:    j.QueuedAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
		LogText:     j.LogText,
		ArtefactIDs: string(artefacts),
		PacketID:    j.PacketID.String(),
	}, nil
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("conduct/bun: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		ID:         parsedID,
		OwnerID:    m.OwnerID,
		Command:    m.Command,
		Params:     m.Params,
		Class:      job.Class(m.Class),
		State:      job.State(m.State),
		QueuedAt:   m.QueuedAt,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		LogText:    m.LogText,
	}

	if m.ArtefactIDs != "" && m.ArtefactIDs != "[]" {
		if uErr := json.Unmarshal([]byte(m.ArtefactIDs), &j.ArtefactIDs); uErr != nil {
			return nil, fmt.Errorf("conduct/bun: unmarshal artefact ids for %q: %w", m.ID, uErr)
		}
	}

	if m.PacketID != "" {
		parsedPacket, pErr := id.ParsePacketID(m.PacketID)
		if pErr == nil {
			j.PacketID = parsedPacket
		}
	}

	return j, nil
}
