package render

import (
	"strings"
	"testing"
	"time"
)

type listingEntry struct {
	Name    string
	Dir     bool
	Size    int64
	ModTime time.Time
}

func TestRenderListingEscapesNames(t *testing.T) {
	engine, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	out, err := engine.Render("listing.html.tmpl", map[string]any{
		"Path":   "/Epee-M/",
		"Parent": true,
		"Entries": []listingEntry{
			{Name: "cotcot", Dir: true, ModTime: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)},
			{Name: "<b>x y.cotcot", Size: 2048, ModTime: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)},
		},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	for _, want := range []string{
		`<a href="cotcot/">cotcot/</a>`,
		`&lt;b&gt;x y.cotcot`,
		`href="%3Cb%3Ex%20y.cotcot"`,
		`2.0 KiB`,
		`<a href="../">../</a>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered listing missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<b>x") {
		t.Fatalf("unescaped name in output:\n%s", out)
	}
}

func TestRenderListingNeutralisesScriptLinks(t *testing.T) {
	engine, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	out, err := engine.Render("listing.html.tmpl", map[string]any{
		"Path": `/"><script>alert(1)</script>`,
		"Entries": []listingEntry{
			{Name: "javascript:alert(1)", ModTime: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)},
		},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("unescaped path in output:\n%s", out)
	}
	if strings.Contains(out, `href="javascript:`) {
		t.Fatalf("script link in output:\n%s", out)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	engine, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := engine.Render("missing.html.tmpl", nil); err == nil {
		t.Fatal("expected error for unknown page")
	}
}

func TestHumanSize(t *testing.T) {
	tests := map[int64]string{
		0:           "0 B",
		1023:        "1023 B",
		1024:        "1.0 KiB",
		1536:        "1.5 KiB",
		5 * 1 << 20: "5.0 MiB",
	}
	for in, want := range tests {
		if got := humanSize(in); got != want {
			t.Fatalf("humanSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestHas(t *testing.T) {
	engine, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !engine.Has("debian-control.tmpl") {
		t.Fatal("expected debian-control.tmpl to be parsed")
	}
	if !engine.Has("listing.html.tmpl") {
		t.Fatal("expected listing.html.tmpl to be parsed")
	}
	if engine.Has("missing.tmpl") {
		t.Fatal("unexpected template")
	}
}
