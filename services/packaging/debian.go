package packaging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bptools/pkg/render"
)

const firstRelease = 2009

var versionPattern = regexp.MustCompile(`^[0-9][A-Za-z0-9.+~]*$`)

// Metadata feeds the debian/ templates.
type Metadata struct {
	Name           string
	Section        string
	Maintainer     string
	Homepage       string
	Architecture   string
	BuildDepends   []string
	Depends        []string
	Summary        string
	Description    []string
	Version        string
	Revision       int
	Distribution   string
	Changes        []string
	Date           time.Time
	Copyright      string
	CopyrightYears string
	License        string
}

// Defaults returns the metadata of the BellePoule desktop package for version.
func Defaults(version string) Metadata {
	return Metadata{
		Name:         "bellepoule",
		Section:      "misc",
		Homepage:     "http://betton.escrime.free.fr/index.php/bellepoule",
		Architecture: "any",
		BuildDepends: []string{
			"debhelper-compat (= 13)",
			"libgtk-3-dev",
			"libgoocanvas-2.0-dev",
			"libxml2-dev",
			"libjson-glib-dev",
			"libsoup2.4-dev",
			"libmicrohttpd-dev",
		},
		Depends: []string{"php-cli"},
		Summary: "fencing tournament management",
		Description: []string{
			"BellePoule manages fencing competitions: check-in, pools,",
			"direct elimination tables and final classifications.",
			"",
			"Results can be published live to a local web server.",
		},
		Version:      version,
		Revision:     1,
		Distribution: "unstable",
		Copyright:    "Yannick Le Roux",
		License:      "GPL-3+",
	}
}

// MaintainerFromEnv builds "Name <email>" from DEBFULLNAME and DEBEMAIL.
func MaintainerFromEnv() string {
	name := strings.TrimSpace(os.Getenv("DEBFULLNAME"))
	email := strings.TrimSpace(os.Getenv("DEBEMAIL"))
	if name == "" || email == "" {
		return ""
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

func (m *Metadata) validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("package name is required")
	}
	if !versionPattern.MatchString(m.Version) {
		return fmt.Errorf("invalid upstream version %q", m.Version)
	}
	if m.Revision <= 0 {
		return fmt.Errorf("invalid debian revision %d", m.Revision)
	}
	if !strings.Contains(m.Maintainer, "<") || !strings.HasSuffix(m.Maintainer, ">") {
		return fmt.Errorf("maintainer %q must look like \"Name <email>\"", m.Maintainer)
	}
	if m.Date.IsZero() {
		m.Date = time.Now()
	}
	if len(m.Changes) == 0 {
		m.Changes = []string{"New upstream release " + m.Version + "."}
	}
	if m.CopyrightYears == "" {
		m.CopyrightYears = strconv.Itoa(firstRelease) + "-" + strconv.Itoa(m.Date.Year())
	}
	description := make([]string, len(m.Description))
	for i, line := range m.Description {
		if strings.TrimSpace(line) == "" {
			line = "."
		}
		description[i] = line
	}
	m.Description = description
	return nil
}

var debianFiles = map[string]string{
	"control":   "debian-control.tmpl",
	"changelog": "debian-changelog.tmpl",
	"copyright": "debian-copyright.tmpl",
}

// Render produces the debian/ control files keyed by file name.
func Render(engine *render.Engine, meta Metadata) (map[string]string, error) {
	if engine == nil {
		return nil, errors.New("render engine is required")
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(debianFiles))
	for name, tmpl := range debianFiles {
		body, err := engine.Render(tmpl, meta)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		if !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		out[name] = body
	}
	return out, nil
}

// WriteDebian renders the control files into dir and returns the written paths.
func WriteDebian(engine *render.Engine, meta Metadata, dir string) ([]string, error) {
	files, err := Render(engine, meta)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	written := make([]string, 0, len(files))
	for _, name := range []string{"changelog", "control", "copyright"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(files[name]), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", p, err)
		}
		written = append(written, p)
	}
	return written, nil
}
