package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/types"
)

// JobID is a UUID-based identifier for Job.
// UUID v7 keeps job IDs roughly time-ordered for operator convenience.
type JobID string

// NewJobID generates a new UUID v7 JobID
func NewJobID() JobID {
	return JobID(uuid.Must(uuid.NewV7()).String())
}

// Job is a durable unit of asynchronous work. Status transitions are
// monotonic along queued → processing → {completed, failed}; the worker that
// claims a job exclusively owns its mutation until a terminal status is written.
type Job struct {
	ID        JobID
	Owner     string
	Kind      types.JobKind
	Payload   json.RawMessage
	Status    types.JobStatus
	Result    json.RawMessage // present only when completed
	Error     string          // present only when failed
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MediaPayload describes a media job: attachments to fetch, OCR and store.
type MediaPayload struct {
	ChannelID string   `json:"channel_id"`
	MediaURLs []string `json:"media_urls"`
	MimeTypes []string `json:"mime_types,omitempty"`
	Caption   string   `json:"caption,omitempty"`
}

// Validate checks the media payload invariants
func (p *MediaPayload) Validate() error {
	if p.ChannelID == "" {
		return goerr.New("media payload requires channel_id")
	}
	if len(p.MediaURLs) == 0 {
		return goerr.New("media payload requires at least one media URL")
	}
	return nil
}

// TextPayload describes a text job: a user-authored message to classify and route.
type TextPayload struct {
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

// Validate checks the text payload invariants
func (p *TextPayload) Validate() error {
	if p.ChannelID == "" {
		return goerr.New("text payload requires channel_id")
	}
	if p.Text == "" {
		return goerr.New("text payload requires non-empty text")
	}
	return nil
}

// JobResult is the structured result of a completed job
type JobResult struct {
	Response string   `json:"response"`
	RecordID RecordID `json:"record_id,omitempty"`
}

// NewJob builds a queued job for the given owner and kind, validating the
// payload against the kind. The payload is stored as opaque JSON.
func NewJob(owner string, kind types.JobKind, payload any) (*Job, error) {
	if owner == "" {
		return nil, goerr.Wrap(ErrInvalidJobPayload, "job owner is required")
	}

	switch kind {
	case types.JobKindMedia:
		var p *MediaPayload
		switch v := payload.(type) {
		case *MediaPayload:
			p = v
		case MediaPayload:
			p = &v
		default:
			return nil, goerr.Wrap(ErrInvalidJobPayload, "media job requires MediaPayload",
				goerr.V("payload", payload))
		}
		if err := p.Validate(); err != nil {
			return nil, goerr.Wrap(ErrInvalidJobPayload, err.Error())
		}
	case types.JobKindText:
		var p *TextPayload
		switch v := payload.(type) {
		case *TextPayload:
			p = v
		case TextPayload:
			p = &v
		default:
			return nil, goerr.Wrap(ErrInvalidJobPayload, "text job requires TextPayload",
				goerr.V("payload", payload))
		}
		if err := p.Validate(); err != nil {
			return nil, goerr.Wrap(ErrInvalidJobPayload, err.Error())
		}
	default:
		return nil, goerr.Wrap(ErrInvalidJobPayload, "unsupported job kind", goerr.V("kind", kind))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal job payload")
	}

	return &Job{
		ID:      NewJobID(),
		Owner:   owner,
		Kind:    kind,
		Payload: raw,
		Status:  types.JobStatusQueued,
	}, nil
}

// MediaPayload decodes the payload of a media job
func (j *Job) MediaPayload() (*MediaPayload, error) {
	if j.Kind != types.JobKindMedia {
		return nil, goerr.Wrap(ErrInvalidJobPayload, "job is not a media job", goerr.V("kind", j.Kind))
	}
	var p MediaPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, goerr.Wrap(ErrInvalidJobPayload, "failed to decode media payload")
	}
	if err := p.Validate(); err != nil {
		return nil, goerr.Wrap(ErrInvalidJobPayload, err.Error())
	}
	return &p, nil
}

// TextPayload decodes the payload of a text job
func (j *Job) TextPayload() (*TextPayload, error) {
	if j.Kind != types.JobKindText {
		return nil, goerr.Wrap(ErrInvalidJobPayload, "job is not a text job", goerr.V("kind", j.Kind))
	}
	var p TextPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, goerr.Wrap(ErrInvalidJobPayload, "failed to decode text payload")
	}
	if err := p.Validate(); err != nil {
		return nil, goerr.Wrap(ErrInvalidJobPayload, err.Error())
	}
	return &p, nil
}

// ReplyChannel returns the transport channel the job's outcome should be
// delivered to, regardless of the job kind.
func (j *Job) ReplyChannel() (string, error) {
	switch j.Kind {
	case types.JobKindMedia:
		p, err := j.MediaPayload()
		if err != nil {
			return "", err
		}
		return p.ChannelID, nil
	case types.JobKindText:
		p, err := j.TextPayload()
		if err != nil {
			return "", err
		}
		return p.ChannelID, nil
	default:
		return "", goerr.Wrap(ErrInvalidJobPayload, "unsupported job kind", goerr.V("kind", j.Kind))
	}
}

// DecodeResult decodes the structured result of a completed job
func (j *Job) DecodeResult() (*JobResult, error) {
	if len(j.Result) == 0 {
		return nil, goerr.New("job has no result", goerr.V("id", j.ID), goerr.V("status", j.Status))
	}
	var r JobResult
	if err := json.Unmarshal(j.Result, &r); err != nil {
		return nil, goerr.Wrap(err, "failed to decode job result", goerr.V("id", j.ID))
	}
	return &r, nil
}
