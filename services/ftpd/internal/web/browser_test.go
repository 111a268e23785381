package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bptools/pkg/render"
)

type fakePresigner struct {
	key string
	ttl time.Duration
	err error
}

func (p *fakePresigner) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	p.key = key
	p.ttl = ttl
	if p.err != nil {
		return "", p.err
	}
	return "https://s3.example/" + key, nil
}

func newTestRouter(t *testing.T, presigner Presigner) (http.Handler, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Epee-M", "cotcot"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Epee-M", "cotcot", "a.cotcot"), []byte("<Competition/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644))

	engine, err := render.New()
	require.NoError(t, err)

	var ready atomic.Bool
	r := chi.NewRouter()
	require.NoError(t, RegisterHandlers(r, root, engine, presigner, 0, &ready, log.New(io.Discard, "", 0)))
	require.True(t, ready.Load())
	return r, root
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestBrowserListsRoot(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="Epee-M/"`)
	assert.NotContains(t, rec.Body.String(), ".hidden")
	assert.NotContains(t, rec.Body.String(), `href="../"`)
}

func TestBrowserRedirectsDirectoryWithoutSlash(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := get(t, h, "/Epee-M")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/Epee-M/", rec.Header().Get("Location"))
}

func TestBrowserServesFile(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := get(t, h, "/Epee-M/cotcot/a.cotcot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<Competition/>", rec.Body.String())
}

func TestBrowserNotFound(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := get(t, h, "/nope.cotcot")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBrowserServesBranding(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := get(t, h, "/_branding/style.css")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "font-family")
}

func TestPresignNotMountedWithoutPresigner(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := get(t, h, "/archive/presign?key=a")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPresign(t *testing.T) {
	p := &fakePresigner{}
	h, _ := newTestRouter(t, p)

	rec := get(t, h, "/archive/presign?key=Epee-M/a.cotcot&ttl=7200")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "https://s3.example/Epee-M/a.cotcot", body["url"])
	assert.Equal(t, time.Hour, p.ttl)
}

func TestPresignDefaultsAndErrors(t *testing.T) {
	p := &fakePresigner{}
	h, _ := newTestRouter(t, p)

	rec := get(t, h, "/archive/presign?key=k")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5*time.Minute, p.ttl)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/archive/presign").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/archive/presign?key=k&ttl=-1").Code)

	p.err = errors.New("denied")
	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/archive/presign?key=k").Code)
}

func TestRegisterHandlersValidates(t *testing.T) {
	engine, err := render.New()
	require.NoError(t, err)
	var ready atomic.Bool

	assert.Error(t, RegisterHandlers(nil, "/tmp", engine, nil, 0, &ready, nil))
	assert.Error(t, RegisterHandlers(chi.NewRouter(), "", engine, nil, 0, &ready, nil))
	assert.Error(t, RegisterHandlers(chi.NewRouter(), "/tmp", nil, nil, 0, &ready, nil))
	assert.Error(t, RegisterHandlers(chi.NewRouter(), "/tmp", engine, nil, 0, nil, nil))
}

func TestPresignIsRateLimited(t *testing.T) {
	h, _ := newTestRouter(t, &fakePresigner{})

	for i := 0; i < presignRequestsPerMinute; i++ {
		require.Equal(t, http.StatusOK, get(t, h, "/archive/presign?key=k").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/archive/presign?key=k").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/Epee-M/cotcot/a.cotcot").Code, "browsing is not limited")
}
