// Package events defines the NATS subjects and payloads the pipeline emits
// while a pass runs. The websocket bridge and any external tooling subscribe
// to SubjectPipelineProgress.
package events

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/EternisAI/mailsift/pkg/helpers"
)

const (
	SubjectPipelineProgress = "mailsift.pipeline.progress"
)

// Phase names the pipeline stage a progress event belongs to.
type Phase string

const (
	PhaseFetch     Phase = "fetch"
	PhaseNormalize Phase = "normalize"
	PhaseScore     Phase = "score"
	PhaseComplete  Phase = "complete"
)

// Progress is one progress event for a session pass.
type Progress struct {
	SessionID string    `json:"sessionId"`
	Phase     Phase     `json:"phase"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits pipeline events over NATS. A Publisher with a nil
// connection drops events, so the pipeline also runs without a broker.
type Publisher struct {
	nc     *nats.Conn
	logger *log.Logger
}

func NewPublisher(nc *nats.Conn, logger *log.Logger) *Publisher {
	return &Publisher{nc: nc, logger: logger}
}

func (p *Publisher) Progress(ev Progress) {
	if p == nil || p.nc == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	if err := helpers.NatsPublish(p.nc, SubjectPipelineProgress, ev); err != nil {
		p.logger.Warn("Dropped progress event", "phase", ev.Phase, "error", err)
	}
}
