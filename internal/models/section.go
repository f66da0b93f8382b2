package models

// Section is the concatenated text of one article section type.
type Section struct {
	Type     string   // upper-cased BioC section_type, e.g. "RESULTS"
	Passages []string // passage texts in document order
}

// CombinedText returns the section text submitted for chunking:
// the section type on its own line followed by the passages joined by spaces.
func (s Section) CombinedText() string {
	text := s.Type + "\n"
	for i, p := range s.Passages {
		if i > 0 {
			text += " "
		}
		text += p
	}
	return text
}
