package ffe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = `<?xml version="1.0" encoding="UTF-8"?>
<CompetitionIndividuelle ID="4242" Arme="E" Sexe="M">
  <Tireurs>
    <Tireur ID="1" Nom="DUPONT" Prenom="Jean"/>
    <Tireur ID="2" Nom="MARTIN" Prenom="Léa"/>
    <Tireur ID="3" Nom="NOUVEAU" Prenom="Paul"/>
  </Tireurs>
  <Phases>
    <TourDePoules PhaseID="1"/>
  </Phases>
</CompetitionIndividuelle>
`

const entryList = `<?xml version="1.0" encoding="UTF-8"?>
<CompetitionIndividuelle>
  <Tireurs>
    <Tireur Nom="DUPONT" Prenom="Jean" Classement="12"/>
    <Tireur Nom="MARTIN" Prenom="Léa" Classement="3"/>
    <Tireur Nom="SANSRANG" Prenom="Luc" Classement=""/>
  </Tireurs>
</CompetitionIndividuelle>
`

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readString(t *testing.T, s string) *etree.Document {
	t.Helper()
	doc, err := ReadDocument(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func TestLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ffe")
	require.NoError(t, os.WriteFile(path, []byte("[FFE]\nuser = 123456\npassword = s3cret\n"), 0o600))

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, Credentials{User: "123456", Password: "s3cret"}, creds)
}

func TestLoadCredentialsErrors(t *testing.T) {
	dir := t.TempDir()
	noSection := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(noSection, []byte("[Other]\nuser = x\n"), 0o600))
	noPassword := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(noPassword, []byte("[FFE]\nuser = x\n"), 0o600))

	for _, path := range []string{noSection, noPassword, filepath.Join(dir, "missing")} {
		_, err := LoadCredentials(path)
		require.Error(t, err, path)
	}
}

func TestHiddenInputs(t *testing.T) {
	page := `<html><body>
<input type="hidden" name="outside" value="no">
<form action="/login" method="post">
  <input type="hidden" name="signin[_csrf_token]" value="abc123">
  <input type="HIDDEN" name="signin[remember]" value="1">
  <input type="text" name="signin[username]">
</form></body></html>`

	values, err := HiddenInputs(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "abc123", values.Get("signin[_csrf_token]"))
	assert.Equal(t, "1", values.Get("signin[remember]"))
	assert.False(t, values.Has("outside"))
	assert.False(t, values.Has("signin[username]"))
}

func TestCompetitionID(t *testing.T) {
	doc := readString(t, export)
	id, err := CompetitionID(doc)
	require.NoError(t, err)
	assert.Equal(t, "4242", id)

	_, err = CompetitionID(readString(t, `<CompetitionParEquipes ID="1"/>`))
	require.Error(t, err)
	_, err = CompetitionID(readString(t, `<CompetitionIndividuelle/>`))
	require.Error(t, err)
}

func TestExtractAndInjectRanks(t *testing.T) {
	ranks, unranked := ExtractRanks(readString(t, entryList))
	assert.Equal(t, map[string]string{"DUPONT_Jean": "12", "MARTIN_Léa": "3"}, ranks)
	assert.Equal(t, []string{"SANSRANG"}, unranked)

	doc := readString(t, export)
	missing := InjectRanks(doc, ranks)
	assert.Equal(t, []string{"NOUVEAU"}, missing)

	got := map[string]string{}
	for _, fencer := range fencers(doc) {
		got[fencer.SelectAttrValue("Nom", "")] = fencer.SelectAttrValue("Ranking", "")
	}
	assert.Equal(t, map[string]string{"DUPONT": "12", "MARTIN": "3", "NOUVEAU": "0"}, got)
	assert.Equal(t, "/region/club/", doc.FindElement("//TourDePoules").SelectAttrValue("Decalage", ""))
}

func TestInjectRanksIgnoresTeamCompetition(t *testing.T) {
	doc := readString(t, `<CompetitionParEquipes><Tireurs><Tireur Nom="A" Prenom="B"/></Tireurs></CompetitionParEquipes>`)
	assert.Nil(t, InjectRanks(doc, nil))
	assert.Nil(t, doc.FindElement("//Tireur").SelectAttr("Ranking"))
}

func TestEntriesFromArchive(t *testing.T) {
	data := zipOf(t, map[string]string{"readme.txt": "x", "inscrits.XML": entryList})
	doc, err := EntriesFromArchive(data)
	require.NoError(t, err)
	ranks, _ := ExtractRanks(doc)
	assert.Len(t, ranks, 2)

	_, err = EntriesFromArchive(zipOf(t, map[string]string{"readme.txt": "x"}))
	assert.True(t, errors.Is(err, ErrNoEntries))

	_, err = EntriesFromArchive([]byte("not a zip"))
	require.Error(t, err)
}

func TestOutputPaths(t *testing.T) {
	assert.Equal(t, []string{"/tmp/open[1].cotcot", "/tmp/open[2].cotcot"}, OutputPaths("/tmp/open.xml"))
	assert.Equal(t, []string{"export[1].cotcot", "export[2].cotcot"}, OutputPaths("export"))
}

func TestWriteDocumentKeepsDeclaredEncoding(t *testing.T) {
	latin1 := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<CompetitionIndividuelle ID=\"1\" Titre=\"\xc9p\xe9e\"/>\n"
	doc, err := ReadDocument(strings.NewReader(latin1))
	require.NoError(t, err)
	assert.Equal(t, "Épée", doc.Root().SelectAttrValue("Titre", ""))

	path := filepath.Join(t.TempDir(), "out.cotcot")
	require.NoError(t, WriteDocument(doc, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\xc9p\xe9e")

	reread, err := ReadDocument(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Épée", reread.Root().SelectAttrValue("Titre", ""))
}

type fakeExtranet struct {
	loggedIn bool
	id       string
	archive  []byte
	err      error
}

func (f *fakeExtranet) Login(_ context.Context, creds Credentials) error {
	if creds.User == "" {
		return errors.New("no user")
	}
	f.loggedIn = true
	return f.err
}

func (f *fakeExtranet) DownloadEntries(_ context.Context, id string) ([]byte, error) {
	f.id = id
	return f.archive, nil
}

func TestConvert(t *testing.T) {
	source := filepath.Join(t.TempDir(), "open.xml")
	require.NoError(t, os.WriteFile(source, []byte(export), 0o644))

	extranet := &fakeExtranet{archive: zipOf(t, map[string]string{"inscrits.XML": entryList})}
	converter, err := NewConverter(extranet, Credentials{User: "u", Password: "p"}, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	report, err := converter.Convert(context.Background(), source)
	require.NoError(t, err)

	assert.True(t, extranet.loggedIn)
	assert.Equal(t, "4242", extranet.id)
	assert.Equal(t, 2, report.Ranked)
	assert.Equal(t, []string{"SANSRANG"}, report.Unranked)
	assert.Equal(t, []string{"NOUVEAU"}, report.Missing)
	require.Len(t, report.Outputs, 2)

	for _, out := range report.Outputs {
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(data), `Ranking="12"`)
		assert.Contains(t, string(data), `Decalage="/region/club/"`)
	}
}

func TestConvertStopsOnLoginFailure(t *testing.T) {
	source := filepath.Join(t.TempDir(), "open.xml")
	require.NoError(t, os.WriteFile(source, []byte(export), 0o644))

	converter, err := NewConverter(&fakeExtranet{err: errors.New("denied")}, Credentials{User: "u"}, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	_, err = converter.Convert(context.Background(), source)
	require.Error(t, err)
	_, statErr := os.Stat(OutputPaths(source)[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestClientSession(t *testing.T) {
	archive := zipOf(t, map[string]string{"inscrits.XML": entryList})

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `<form action="/login"><input type="hidden" name="signin[_csrf_token]" value="tok"></form>`)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Method != http.MethodPost || r.PostForm.Get("signin[_csrf_token]") != "tok" ||
			r.PostForm.Get("signin[username]") != "123456" || r.PostForm.Get("signin[password]") != "s3cret" {
			http.Error(w, "denied", http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/competition/downloadInscrits", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			http.Error(w, "login first", http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("id") != "4242" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(archive)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.DownloadEntries(context.Background(), "4242")
	require.Error(t, err, "download requires a session")

	require.Error(t, client.Login(context.Background(), Credentials{User: "123456", Password: "wrong"}))
	require.NoError(t, client.Login(context.Background(), Credentials{User: "123456", Password: "s3cret"}))

	data, err := client.DownloadEntries(context.Background(), "4242")
	require.NoError(t, err)
	assert.Equal(t, archive, data)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not a url")
	require.Error(t, err)
}
