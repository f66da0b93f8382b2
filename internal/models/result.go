package models

// ResultSource records which pass produced a CurationResult.
type ResultSource string

const (
	SourceFirstPass      ResultSource = "first_pass"
	SourceToolCall       ResultSource = "tool_call"
	SourceSelfCorrection ResultSource = "self_correction"
	// SourceFallback means the correction pass soft-failed and the
	// sanitized first-pass answer was kept.
	SourceFallback ResultSource = "first_pass_fallback"
)

// CurationResult is the sanitized answer for one (document, prompt) pair.
type CurationResult struct {
	Document string // document base name without extension
	Prompt   string
	Text     string
	Source   ResultSource

	// Set only when the self-correction pass ran and returned them.
	Adjustments *string
	Adjusted    *bool
}

// ArtifactName returns the output file name for the pair.
func (r CurationResult) ArtifactName() string {
	return ArtifactName(r.Document, r.Prompt)
}

// Corrected reports whether the self-correction pass changed the decision.
func (r CurationResult) Corrected() bool {
	return r.Adjusted != nil && *r.Adjusted
}
