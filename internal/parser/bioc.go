package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raphaelgruber/biocurator-go/internal/models"
)

// UnknownSection is used for passages without a section_type infon.
const UnknownSection = "UNKNOWN"

// DefaultSectionWhitelist lists the sections curated when none are configured.
var DefaultSectionWhitelist = []string{"RESULTS", "DISCUSSION"}

type biocCollection struct {
	Documents []biocDocument `json:"documents"`
}

type biocDocument struct {
	ID       string        `json:"id"`
	Passages []biocPassage `json:"passages"`
}

type biocPassage struct {
	Infons map[string]any `json:"infons"`
	Text   string         `json:"text"`
}

// ParseBioC groups the passage texts of a BioC JSON article by section type.
// data may be a single collection or an array of collections. Section types
// are upper-cased; only those in whitelist are kept (all when empty).
// Sections are returned in order of first appearance.
func ParseBioC(data []byte, whitelist []string) ([]models.Section, error) {
	collections, err := decodeCollections(data)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(whitelist))
	for _, w := range whitelist {
		allowed[strings.ToUpper(strings.TrimSpace(w))] = true
	}

	var sections []models.Section
	index := make(map[string]int)
	for _, coll := range collections {
		for _, doc := range coll.Documents {
			for _, p := range doc.Passages {
				st := sectionType(p.Infons)
				if len(allowed) > 0 && !allowed[st] {
					continue
				}
				i, ok := index[st]
				if !ok {
					i = len(sections)
					index[st] = i
					sections = append(sections, models.Section{Type: st})
				}
				sections[i].Passages = append(sections[i].Passages, p.Text)
			}
		}
	}

	return sections, nil
}

func decodeCollections(data []byte) ([]biocCollection, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("parse bioc: empty document")
	}

	if trimmed[0] == '[' {
		var colls []biocCollection
		if err := json.Unmarshal(trimmed, &colls); err != nil {
			return nil, fmt.Errorf("parse bioc: %w", err)
		}
		return colls, nil
	}

	var coll biocCollection
	if err := json.Unmarshal(trimmed, &coll); err != nil {
		return nil, fmt.Errorf("parse bioc: %w", err)
	}
	return []biocCollection{coll}, nil
}

func sectionType(infons map[string]any) string {
	v, ok := infons["section_type"]
	if !ok || v == nil {
		return UnknownSection
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return UnknownSection
	}
	return strings.ToUpper(s)
}
