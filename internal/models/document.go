package models

// DocumentState is the lifecycle stage of one input document.
type DocumentState string

const (
	DocumentPending  DocumentState = "pending"
	DocumentUploaded DocumentState = "uploaded"
	DocumentDetached DocumentState = "detached"
	DocumentDeleted  DocumentState = "deleted"
)

// RemoteDocument tracks an input file and its uploaded counterpart.
// It is owned by the pipeline for the duration of one document.
type RemoteDocument struct {
	Path    string
	Name    string // base name without extension, used for artifact names
	FileID  string
	StoreID string
	State   DocumentState
}

// NewRemoteDocument returns a pending document for path.
func NewRemoteDocument(path string) *RemoteDocument {
	return &RemoteDocument{
		Path:  path,
		Name:  DocumentBaseName(path),
		State: DocumentPending,
	}
}

// Uploaded reports whether remote resources exist that must be released.
func (d *RemoteDocument) Uploaded() bool {
	return d.FileID != "" && d.State != DocumentDeleted
}
