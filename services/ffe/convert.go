package ffe

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
)

// Extranet is the part of Client the converter needs.
type Extranet interface {
	Login(ctx context.Context, creds Credentials) error
	DownloadEntries(ctx context.Context, competitionID string) ([]byte, error)
}

// Report summarises a conversion.
type Report struct {
	CompetitionID string
	Ranked        int
	Unranked      []string
	Missing       []string
	Outputs       []string
}

// Converter turns a competition export into .cotcot files ranked from the federation
// entry list.
type Converter struct {
	extranet Extranet
	creds    Credentials
	logger   *log.Logger
}

// NewConverter returns a Converter using extranet and creds.
func NewConverter(extranet Extranet, creds Credentials, logger *log.Logger) (*Converter, error) {
	if extranet == nil {
		return nil, errors.New("extranet client is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Converter{extranet: extranet, creds: creds, logger: logger}, nil
}

// Convert reads the export at source and writes the ranked copies next to it.
func (c *Converter) Convert(ctx context.Context, source string) (Report, error) {
	file, err := os.Open(source)
	if err != nil {
		return Report{}, err
	}
	doc, err := ReadDocument(file)
	file.Close()
	if err != nil {
		return Report{}, fmt.Errorf("%s: %w", source, err)
	}

	id, err := CompetitionID(doc)
	if err != nil {
		return Report{}, fmt.Errorf("%s: %w", source, err)
	}
	report := Report{CompetitionID: id}

	if err := c.extranet.Login(ctx, c.creds); err != nil {
		return report, err
	}
	archive, err := c.extranet.DownloadEntries(ctx, id)
	if err != nil {
		return report, err
	}
	entries, err := EntriesFromArchive(archive)
	if err != nil {
		return report, fmt.Errorf("competition %s: %w", id, err)
	}

	ranks, unranked := ExtractRanks(entries)
	for _, name := range unranked {
		c.logger.Printf("WARN %s has no \"Classement\"", name)
	}
	report.Ranked = len(ranks)
	report.Unranked = unranked

	report.Missing = InjectRanks(doc, ranks)
	for _, name := range report.Missing {
		c.logger.Printf("WARN %s has no \"Ranking\"", name)
	}

	for _, out := range OutputPaths(source) {
		if err := WriteDocument(doc, out); err != nil {
			return report, fmt.Errorf("write %s: %w", out, err)
		}
		report.Outputs = append(report.Outputs, out)
		c.logger.Printf("INFO wrote %s", out)
	}
	return report, nil
}
