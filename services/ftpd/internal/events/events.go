package events

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"bptools/pkg/bus"
	"bptools/services/ftpd/internal/ingest"
)

// Publisher is the subset of *bus.Bus used to emit events.
type Publisher interface {
	PublishEvent(ctx context.Context, subj string, evt bus.ArtifactEvent) error
}

// Sink publishes an ArtifactEvent for every processed upload.
type Sink struct {
	pub     Publisher
	subject string
}

// Subject returns the subject events are published to.
func (s *Sink) Subject() string {
	return s.subject
}

func NewSink(pub Publisher, subject string) (*Sink, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = bus.ArtifactsFiledSubject
	}
	return &Sink{pub: pub, subject: subject}, nil
}

func (s *Sink) Notify(ctx context.Context, outcome ingest.Outcome) error {
	return s.pub.PublishEvent(ctx, s.subject, eventFor(outcome))
}

func eventFor(outcome ingest.Outcome) bus.ArtifactEvent {
	return bus.ArtifactEvent{
		EventID:     uuid.New(),
		File:        outcome.File,
		Action:      string(outcome.Action),
		Folder:      outcome.Folder,
		Attributes:  outcome.Attributes,
		Destination: outcome.Destination,
		Size:        outcome.Size,
		SHA256:      outcome.SHA256,
		At:          outcome.At,
	}
}
