package bus

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactsFiledSubject carries ArtifactEvent messages published by the FTP ingest service.
const ArtifactsFiledSubject = "bptools.artifacts.filed"

// ArtifactEvent reports what happened to an uploaded artifact.
type ArtifactEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	File        string    `json:"file"`
	Action      string    `json:"action"`
	Folder      string    `json:"folder,omitempty"`
	Attributes  []string  `json:"attributes,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	At          time.Time `json:"at"`
}
