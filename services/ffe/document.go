package ffe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/beevik/etree"
	"github.com/klauspost/compress/zip"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/ianaindex"
)

const (
	individualCompetition = "CompetitionIndividuelle"
	defaultRanking        = "0"
	poolShift             = "/region/club/"
)

// ErrNoEntries is returned when a downloaded archive holds no XML entry list.
var ErrNoEntries = errors.New("archive holds no .XML entry list")

// ReadDocument parses an XML file honouring its declared encoding.
func ReadDocument(r io.Reader) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	if doc.Root() == nil {
		return nil, errors.New("document has no root element")
	}
	return doc, nil
}

// CompetitionID returns the ID attribute of an individual competition document.
func CompetitionID(doc *etree.Document) (string, error) {
	root := doc.Root()
	if root == nil || root.Tag != individualCompetition {
		return "", fmt.Errorf("root element is not %s", individualCompetition)
	}
	id := strings.TrimSpace(root.SelectAttrValue("ID", ""))
	if id == "" {
		return "", errors.New("competition has no ID")
	}
	return id, nil
}

func fencerKey(fencer *etree.Element) string {
	return fencer.SelectAttrValue("Nom", "") + "_" + fencer.SelectAttrValue("Prenom", "")
}

func fencers(doc *etree.Document) []*etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	list := root.SelectElement("Tireurs")
	if list == nil {
		return nil
	}
	return list.ChildElements()
}

// ExtractRanks maps Nom_Prenom to Classement for every fencer of an entry list. Fencers
// without a Classement are returned by name.
func ExtractRanks(doc *etree.Document) (map[string]string, []string) {
	ranks := map[string]string{}
	var unranked []string
	for _, fencer := range fencers(doc) {
		classement := fencer.SelectAttrValue("Classement", "")
		if classement == "" {
			unranked = append(unranked, fencer.SelectAttrValue("Nom", ""))
			continue
		}
		ranks[fencerKey(fencer)] = classement
	}
	return ranks, unranked
}

// InjectRanks sets Ranking on every fencer of an individual competition, defaulting to
// 0, and applies the region/club pool shift. Fencers missing from ranks are returned by
// name.
func InjectRanks(doc *etree.Document, ranks map[string]string) []string {
	root := doc.Root()
	if root == nil || root.Tag != individualCompetition {
		return nil
	}

	var missing []string
	for _, fencer := range fencers(doc) {
		rank, ok := ranks[fencerKey(fencer)]
		if !ok {
			missing = append(missing, fencer.SelectAttrValue("Nom", ""))
			rank = defaultRanking
		}
		fencer.CreateAttr("Ranking", rank)
	}

	if pools := root.FindElement("./Phases/TourDePoules"); pools != nil {
		pools.CreateAttr("Decalage", poolShift)
	}
	return missing
}

// EntriesFromArchive returns the first .XML member of a zip archive.
func EntriesFromArchive(data []byte) (*etree.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".XML") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		doc, err := ReadDocument(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return doc, nil
	}
	return nil, ErrNoEntries
}

// OutputPaths returns the two .cotcot files written for source.
func OutputPaths(source string) []string {
	stem := strings.TrimSuffix(source, ".xml")
	return []string{stem + "[1].cotcot", stem + "[2].cotcot"}
}

// WriteDocument writes doc to path in the encoding named by its XML declaration.
func WriteDocument(doc *etree.Document, path string) error {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	out := buf.Bytes()

	if label := declaredEncoding(doc); label != "" && !strings.EqualFold(label, "utf-8") {
		enc, err := ianaindex.IANA.Encoding(label)
		if err != nil || enc == nil {
			return fmt.Errorf("unsupported encoding %q", label)
		}
		encoded, err := enc.NewEncoder().Bytes(out)
		if err != nil {
			return fmt.Errorf("encode %s: %w", label, err)
		}
		out = encoded
	}
	return os.WriteFile(path, out, 0o644)
}

func declaredEncoding(doc *etree.Document) string {
	for _, token := range doc.Child {
		pi, ok := token.(*etree.ProcInst)
		if !ok || pi.Target != "xml" {
			continue
		}
		for _, field := range strings.Fields(pi.Inst) {
			key, value, found := strings.Cut(field, "=")
			if found && key == "encoding" {
				return strings.Trim(value, `"'`)
			}
		}
	}
	return ""
}
