package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bptools/pkg/bus"
	"bptools/pkg/db"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bptools_ledger_events_total",
	Help: "Artifact events consumed by the ledger, by result.",
}, []string{"result"})

// Ingestor records artifact events from NATS into the filings table, with an audit
// entry per recorded event.
type Ingestor struct {
	pool    *pgxpool.Pool
	bus     *bus.Bus
	subject string
	logger  *log.Logger

	subMu sync.Mutex
	sub   io.Closer
}

// NewIngestor constructs an Ingestor for the provided dependencies.
func NewIngestor(pool *pgxpool.Pool, b *bus.Bus, subject string, logger *log.Logger) (*Ingestor, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	if b == nil {
		return nil, errors.New("bus is required")
	}
	if subject == "" {
		subject = bus.ArtifactsFiledSubject
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Ingestor{pool: pool, bus: b, subject: subject, logger: logger}, nil
}

// Subject returns the subject the ingestor consumes.
func (i *Ingestor) Subject() string {
	return i.subject
}

// Start subscribes to artifact events and processes them until ctx is cancelled.
func (i *Ingestor) Start(ctx context.Context) error {
	if i == nil {
		return errors.New("nil ingestor")
	}

	sub, err := i.bus.Subscribe(ctx, i.subject, filingsDurable, i.handleEvent)
	if err != nil {
		return err
	}

	i.subMu.Lock()
	i.sub = sub
	i.subMu.Unlock()

	i.logger.Printf("INFO consuming %s", i.subject)
	return nil
}

// Close stops the underlying subscription if it was created.
func (i *Ingestor) Close() error {
	if i == nil {
		return nil
	}

	i.subMu.Lock()
	defer i.subMu.Unlock()

	if i.sub == nil {
		return nil
	}
	err := i.sub.Close()
	i.sub = nil
	return err
}

func (i *Ingestor) handleEvent(ctx context.Context, data []byte) error {
	evt, err := decodeEvent(data)
	if err != nil {
		eventsTotal.WithLabelValues("invalid").Inc()
		i.logger.Printf("WARN dropping artifact event: %v", err)
		// Acknowledge so a poison message is not redelivered forever.
		return nil
	}

	var inserted bool
	err = db.InTx(ctx, i.pool, func(tx pgx.Tx) error {
		var err error
		inserted, err = insertFiling(ctx, tx, evt)
		if err != nil || !inserted {
			return err
		}
		return insertAudit(ctx, tx, evt)
	})
	if err != nil {
		eventsTotal.WithLabelValues("error").Inc()
		return err
	}
	if !inserted {
		eventsTotal.WithLabelValues("duplicate").Inc()
		i.logger.Printf("DEBUG duplicate event %s", evt.EventID)
		return nil
	}

	eventsTotal.WithLabelValues("recorded").Inc()
	i.logger.Printf("INFO recorded %s %s", evt.Action, evt.File)
	return nil
}

func decodeEvent(data []byte) (bus.ArtifactEvent, error) {
	var evt bus.ArtifactEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return bus.ArtifactEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if evt.EventID == uuid.Nil {
		return bus.ArtifactEvent{}, errors.New("event_id missing from event")
	}
	if evt.File == "" {
		return bus.ArtifactEvent{}, errors.New("file missing from event")
	}
	switch evt.Action {
	case "filed":
		if evt.Folder == "" {
			return bus.ArtifactEvent{}, errors.New("filed event without folder")
		}
	case "discarded":
	default:
		return bus.ArtifactEvent{}, fmt.Errorf("unknown action %q", evt.Action)
	}
	if evt.Attributes == nil {
		evt.Attributes = []string{}
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	return evt, nil
}

func insertFiling(ctx context.Context, q db.Querier, evt bus.ArtifactEvent) (bool, error) {
	attributes, err := json.Marshal(evt.Attributes)
	if err != nil {
		return false, err
	}

	tag, err := db.Exec(ctx, q, `
INSERT INTO filings (id, file, action, folder, attributes, destination, size, sha256, at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING
`, evt.EventID, evt.File, evt.Action, evt.Folder, attributes, evt.Destination, evt.Size, evt.SHA256, evt.At)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func insertAudit(ctx context.Context, q db.Querier, evt bus.ArtifactEvent) error {
	detailsBytes, err := json.Marshal(auditDetails(evt))
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, q, `
INSERT INTO audit (actor, action, obj, details)
VALUES ($1, $2, $3, $4::jsonb)
`, auditActor, "artifact_"+evt.Action, auditObject(evt), detailsBytes)
	return err
}

func auditObject(evt bus.ArtifactEvent) string {
	if evt.Folder == "" {
		return evt.File
	}
	return evt.Folder + "/" + evt.File
}

func auditDetails(evt bus.ArtifactEvent) map[string]any {
	details := map[string]any{
		"event_id": evt.EventID.String(),
		"size":     evt.Size,
		"sha256":   evt.SHA256,
	}
	if len(evt.Attributes) > 0 {
		details["attributes"] = evt.Attributes
	}
	if evt.Destination != "" {
		details["destination"] = evt.Destination
	}
	return details
}
