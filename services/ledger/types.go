package ledger

import (
	"time"

	"github.com/google/uuid"
)

const (
	filingsDurable = "ledger-filings"
	auditActor     = "cotcotd"
	defaultLimit   = 100
	maxLimit       = 1000
)

// Filing is a row of the filings table.
type Filing struct {
	ID          uuid.UUID `db:"id" json:"id"`
	File        string    `db:"file" json:"file"`
	Action      string    `db:"action" json:"action"`
	Folder      string    `db:"folder" json:"folder,omitempty"`
	Attributes  []string  `db:"attributes" json:"attributes,omitempty"`
	Destination string    `db:"destination" json:"destination,omitempty"`
	Size        int64     `db:"size" json:"size"`
	SHA256      string    `db:"sha256" json:"sha256"`
	At          time.Time `db:"at" json:"at"`
}
