package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// RoutingAttributes are read, in this order, from the document element of an artifact.
var RoutingAttributes = []string{"Arme", "Sexe", "Categorie", "Label"}

// ErrStrayContent is returned for documents with text outside the document element.
var ErrStrayContent = errors.New("content outside document element")

// ExtractRoutingAttributes parses an artifact and returns the values of the routing
// attributes present on the first element found at the top level of the document,
// skipping comments and prolog tokens. A nil slice means the artifact carries none.
func ExtractRoutingAttributes(r io.Reader) ([]string, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}

	element, err := routingElement(doc)
	if err != nil {
		return nil, err
	}
	if element == nil {
		return nil, nil
	}

	var values []string
	for _, name := range RoutingAttributes {
		attr := element.SelectAttr(name)
		if attr == nil || attr.Value == "" {
			continue
		}
		values = append(values, attr.Value)
	}
	return values, nil
}

func routingElement(doc *etree.Document) (*etree.Element, error) {
	for _, token := range doc.Child {
		switch t := token.(type) {
		case *etree.Element:
			return t, nil
		case *etree.CharData:
			if strings.TrimSpace(t.Data) != "" {
				return nil, ErrStrayContent
			}
		case *etree.Comment, *etree.ProcInst, *etree.Directive:
		}
	}
	return nil, nil
}

// FolderName joins routing values with a hyphen. It reports false when there is nothing
// to join.
func FolderName(values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	return strings.Join(values, "-"), true
}
