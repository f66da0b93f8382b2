package parser

import (
	"testing"

	"github.com/raphaelgruber/biocurator-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBioC = `{
  "documents": [{
    "id": "PMC1",
    "passages": [
      {"infons": {"section_type": "TITLE"}, "text": "A title"},
      {"infons": {"section_type": "RESULTS"}, "text": "Result one."},
      {"infons": {"section_type": "discussion"}, "text": "We discuss."},
      {"infons": {"section_type": "RESULTS"}, "text": "Result two."},
      {"infons": {}, "text": "No type."}
    ]
  }]
}`

func TestParseBioC_Whitelist(t *testing.T) {
	sections, err := ParseBioC([]byte(sampleBioC), DefaultSectionWhitelist)
	require.NoError(t, err)
	assert.Equal(t, []models.Section{
		{Type: "RESULTS", Passages: []string{"Result one.", "Result two."}},
		{Type: "DISCUSSION", Passages: []string{"We discuss."}},
	}, sections)
}

func TestParseBioC_AllSections(t *testing.T) {
	sections, err := ParseBioC([]byte(sampleBioC), nil)
	require.NoError(t, err)
	require.Len(t, sections, 4)
	assert.Equal(t, "TITLE", sections[0].Type)
	assert.Equal(t, UnknownSection, sections[3].Type)
}

func TestParseBioC_ArrayOfCollections(t *testing.T) {
	sections, err := ParseBioC([]byte("["+sampleBioC+"]"), []string{"results"})
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "RESULTS\nResult one. Result two.", sections[0].CombinedText())
}

func TestParseBioC_Invalid(t *testing.T) {
	for _, in := range []string{"", "  ", "{not json", "[1, 2]"} {
		_, err := ParseBioC([]byte(in), nil)
		assert.Error(t, err, "input %q", in)
	}
}
