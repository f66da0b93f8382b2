package sanitize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"source tag keeps trailing space", "Gene: BRCA1 【3†source】", "Gene: BRCA1 "},
		{"multiple tags", "A【1†source】 and B【2:4†source】.", "A and B."},
		{"footnote evidence", "TP53 [4:0†evidence] is mutated.", "TP53  is mutated."},
		{"caret footnote", "Alleles[^1^] found", "Alleles found"},
		{"no markers", "Nothing to strip [1] here.", "Nothing to strip [1] here."},
		{"unclosed tag kept", "open 【3†source", "open 【3†source"},
		{"empty", "", ""},
		{"nested tag fixed point", "x[1†【s】a]y", "xy"},
		{"doubled brackets leave closer", "a【【1†source】】b", "a】b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in))
		})
	}
}

func TestTextIdempotent(t *testing.T) {
	inputs := []string{
		"Gene: BRCA1 【3†source】",
		"【a【b】c】",
		"x[1†【s】a]y",
		"[2†a] [3†b]【c】 plain",
		"unicode κινάση 【1†src】 text",
	}
	for _, in := range inputs {
		once := Text(in)
		assert.Equal(t, once, Text(once), "input %q", in)
	}
}

func TestJSONPassthroughOnMalformed(t *testing.T) {
	inputs := []string{
		`{"a": 1`,
		`{"a": 1} trailing`,
		`not json at all 【1†source】`,
		``,
		`{"a" 1}`,
	}
	for _, in := range inputs {
		out, ok := JSON(in)
		assert.False(t, ok, "input %q", in)
		assert.Equal(t, in, out, "malformed input must be returned verbatim")
	}
}

func TestJSONStripsAndPreservesOrder(t *testing.T) {
	in := `{"triage_result": "positive 【1†source】", "reasoning": "BRCA1 [2:1†source] noted", ` +
		`"genes": ["BRCA1【3†source】", "TP53"], "count": 2, "score": 1.50, "ok": true, "none": null, ` +
		`"name": "κινάση <b>"}`

	out, ok := JSON(in)
	require.True(t, ok)

	want := `{
    "triage_result": "positive ",
    "reasoning": "BRCA1  noted",
    "genes": [
        "BRCA1",
        "TP53"
    ],
    "count": 2,
    "score": 1.50,
    "ok": true,
    "none": null,
    "name": "κινάση <b>"
}`
	assert.Equal(t, want, out)
}

// parse -> strip -> serialize -> parse yields the same structure minus markers.
func TestJSONRoundTrip(t *testing.T) {
	in := `{"b": {"z": ["x 【1†source】", {"k": "v[1†s]"}]}, "a": [], "c": {}}`

	out, ok := JSON(in)
	require.True(t, ok)

	var got, want any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NoError(t, json.Unmarshal([]byte(`{"b": {"z": ["x ", {"k": "v"}]}, "a": [], "c": {}}`), &want))
	assert.Equal(t, want, got)

	// Key order survives a second pass and output is stable.
	again, ok := JSON(out)
	require.True(t, ok)
	assert.Equal(t, out, again)

	v, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, v.(*Object).Keys())
}

func TestJSONTopLevelArray(t *testing.T) {
	out, ok := JSON(`["a【1†source】", 3]`)
	require.True(t, ok)
	assert.Equal(t, "[\n    \"a\",\n    3\n]", out)
}

func TestResponse(t *testing.T) {
	assert.Equal(t, "Gene: BRCA1 ", Response("Gene: BRCA1 【3†source】"))
	assert.Equal(t, "{\n    \"g\": \"x\"\n}", Response(`{"g":"x【1†s】"}`))
}

func TestObjectSetKeepsPosition(t *testing.T) {
	o := NewObject()
	o.Set("a", 1)
	o.Set("b", 2)
	o.Set("a", 3)
	assert.Equal(t, []string{"a", "b"}, o.Keys())
	v, ok := o.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	_, ok = o.Get("missing")
	assert.False(t, ok)
}

func TestUnfence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n[1]\n```\n", "[1]"},
		{"not fenced", `{"a": 1}`, `{"a": 1}`},
		{"text around fence", "Here:\n```json\n{}\n```", "Here:\n```json\n{}\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Unfence(tt.in))
		})
	}
}
