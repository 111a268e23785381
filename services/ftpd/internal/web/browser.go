package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	brandingfs "bptools/infra/branding"
	"bptools/pkg/render"
)

const (
	listingTemplate          = "listing.html.tmpl"
	maxPresignTTL            = time.Hour
	presignRequestsPerMinute = 60
)

// Presigner issues download links for archived artifacts.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type entry struct {
	Name    string
	Dir     bool
	Size    int64
	ModTime time.Time
}

type browser struct {
	root     http.FileSystem
	renderer *render.Engine
	logger   *log.Logger
}

// RegisterHandlers mounts the read-only result browser for root on r. The presign
// endpoint is only mounted when presigner is not nil.
func RegisterHandlers(r chi.Router, root string, renderer *render.Engine, presigner Presigner, defaultTTL time.Duration, ready *atomic.Bool, logger *log.Logger) error {
	if r == nil {
		return errors.New("nil router")
	}
	if ready == nil {
		return errors.New("ready indicator is nil")
	}
	if renderer == nil || !renderer.Has(listingTemplate) {
		return fmt.Errorf("renderer with %s is required", listingTemplate)
	}
	if strings.TrimSpace(root) == "" {
		return errors.New("web root is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	assets, err := fs.Sub(brandingfs.Files, ".")
	if err != nil {
		return fmt.Errorf("prepare branding filesystem: %w", err)
	}
	r.Handle("/_branding/*", http.StripPrefix("/_branding/", http.FileServer(http.FS(assets))))

	if presigner != nil {
		if defaultTTL <= 0 {
			defaultTTL = 5 * time.Minute
		}
		r.With(httprate.LimitByIP(presignRequestsPerMinute, time.Minute)).Get("/archive/presign", presignHandler(presigner, defaultTTL))
	}

	b := &browser{root: http.Dir(root), renderer: renderer, logger: logger}
	r.Get("/*", b.serve)
	r.Head("/*", b.serve)

	ready.Store(true)
	logger.Printf("INFO web browser serving %s", root)
	return nil
}

func (b *browser) serve(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	f, err := b.root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "cannot open "+name, http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "cannot stat "+name, http.StatusInternalServerError)
		return
	}

	if !info.IsDir() {
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
		return
	}

	if !strings.HasSuffix(r.URL.Path, "/") {
		http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
		return
	}

	infos, err := f.Readdir(-1)
	if err != nil {
		http.Error(w, "cannot list "+name, http.StatusInternalServerError)
		return
	}
	entries := make([]entry, 0, len(infos))
	for _, fi := range infos {
		if strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		entries = append(entries, entry{Name: fi.Name(), Dir: fi.IsDir(), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Dir != entries[j].Dir {
			return entries[i].Dir
		}
		return entries[i].Name < entries[j].Name
	})

	display := name
	if display != "/" {
		display += "/"
	}
	page, err := b.renderer.Render(listingTemplate, map[string]any{
		"Path":    display,
		"Parent":  name != "/",
		"Entries": entries,
	})
	if err != nil {
		b.logger.Printf("ERROR render listing for %s: %v", name, err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(page))
}

func presignHandler(presigner Presigner, defaultTTL time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.URL.Query().Get("key"))
		if key == "" {
			http.Error(w, "missing key query parameter", http.StatusBadRequest)
			return
		}

		ttl := defaultTTL
		if raw := strings.TrimSpace(r.URL.Query().Get("ttl")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid ttl", http.StatusBadRequest)
				return
			}
			ttl = time.Duration(parsed) * time.Second
		}
		if ttl > maxPresignTTL {
			ttl = maxPresignTTL
		}

		url, err := presigner.PresignGet(r.Context(), key, ttl)
		if err != nil {
			http.Error(w, fmt.Sprintf("presign: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"url": url})
	}
}
