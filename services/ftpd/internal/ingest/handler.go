package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bptools/services/ftpd/internal/config"
)

// Action is what the handler did with an upload.
type Action string

const (
	ActionFiled     Action = "filed"
	ActionDiscarded Action = "discarded"
)

// Outcome describes a processed upload.
type Outcome struct {
	Action      Action
	File        string
	Source      string
	Folder      string
	Attributes  []string
	Destination string
	Size        int64
	SHA256      string
	At          time.Time
}

// Sink is notified after an upload was filed or discarded. Sink errors are logged and
// never undo the move.
type Sink interface {
	Notify(ctx context.Context, outcome Outcome) error
}

// Handler routes completed uploads into per-competition folders below the root.
type Handler struct {
	root   string
	subdir string
	logger *log.Logger
	sinks  []Sink
	now    func() time.Time

	mu sync.Mutex
}

// NewHandler returns a Handler filing artifacts below cfg.RootDir.
func NewHandler(cfg config.IngestConfig, logger *log.Logger, sinks ...Sink) (*Handler, error) {
	root := strings.TrimSpace(cfg.RootDir)
	if root == "" {
		return nil, errors.New("ingest root directory is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &Handler{
		root:   abs,
		subdir: cfg.Subdir,
		logger: logger,
		sinks:  filtered,
		now:    time.Now,
	}, nil
}

// Root returns the absolute directory artifacts are filed under.
func (h *Handler) Root() string {
	if h == nil {
		return ""
	}
	return h.root
}

// Handle classifies the artifact at path. Artifacts carrying routing attributes are moved
// to <root>/<folder>/<subdir>/<name>; the others are deleted. On error the artifact is
// left where it is.
func (h *Handler) Handle(ctx context.Context, path string) (Outcome, error) {
	if h == nil {
		return Outcome{}, errors.New("nil handler")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	defer func() { handleSeconds.Observe(time.Since(start).Seconds()) }()

	outcome, err := h.handle(path)
	if err != nil {
		failuresTotal.Inc()
		return Outcome{}, err
	}
	artifactsTotal.WithLabelValues(string(outcome.Action)).Inc()

	for _, sink := range h.sinks {
		if err := sink.Notify(ctx, outcome); err != nil {
			h.logger.Printf("WARN notify %s for %s: %v", outcome.Action, outcome.File, err)
		}
	}
	return outcome, nil
}

func (h *Handler) handle(path string) (Outcome, error) {
	values, size, digest, err := classify(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("classify %s: %w", path, err)
	}

	outcome := Outcome{
		File:       filepath.Base(path),
		Source:     path,
		Attributes: values,
		Size:       size,
		SHA256:     digest,
		At:         h.now().UTC(),
	}

	folder, ok := FolderName(values)
	if !ok {
		if err := os.Remove(path); err != nil {
			return Outcome{}, fmt.Errorf("remove %s: %w", path, err)
		}
		outcome.Action = ActionDiscarded
		h.logger.Printf("INFO discarded %s: no routing attributes", outcome.File)
		return outcome, nil
	}

	folder, err = safeSegment(folder)
	if err != nil {
		return Outcome{}, err
	}
	dir := filepath.Join(h.root, folder, h.subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("create %s: %w", dir, err)
	}
	destination := filepath.Join(dir, outcome.File)
	if err := os.Rename(path, destination); err != nil {
		return Outcome{}, fmt.Errorf("move %s to %s: %w", path, destination, err)
	}

	outcome.Action = ActionFiled
	outcome.Folder = folder
	outcome.Destination = destination
	h.logger.Printf("INFO filed %s into %s", outcome.File, folder)
	return outcome, nil
}

func classify(path string) ([]string, int64, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, "", err
	}
	defer file.Close()

	hash := sha256.New()
	counter := &countingWriter{w: hash}
	tee := io.TeeReader(file, counter)

	values, err := ExtractRoutingAttributes(tee)
	if err != nil {
		return nil, 0, "", err
	}
	if _, err := io.Copy(counter, file); err != nil {
		return nil, 0, "", err
	}
	return values, counter.n, hex.EncodeToString(hash.Sum(nil)), nil
}

// safeSegment keeps attribute values from escaping the root.
func safeSegment(name string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)
	if cleaned == "." || cleaned == ".." {
		return "", fmt.Errorf("unsafe folder name %q", name)
	}
	return cleaned, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
