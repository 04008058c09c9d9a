package stagestore

import "time"

// RawRecord is the normalized producer output dropped into raw/{source}/.
// Records are immutable once written; audio records gain a transcript by
// being replaced wholesale, never edited in place.
type RawRecord struct {
	Text        string            `json:"text"`
	Filename    string            `json:"filename"`
	SourceName  string            `json:"source_name"`
	Teacher     string            `json:"teacher,omitempty"`
	ContentType string            `json:"content_type"`
	URL         string            `json:"url,omitempty"`
	Collection  string            `json:"collection,omitempty"`
	Topics      []string          `json:"topics,omitempty"`
	Series      string            `json:"series,omitempty"`
	Transcript  string            `json:"transcript,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IsAudio reports whether the record needs transcription before processing.
func (r *RawRecord) IsAudio() bool {
	switch r.ContentType {
	case "audio", "video":
		return true
	default:
		return false
	}
}

// Body returns the text to process: the transcript for audio records, the
// text field otherwise.
func (r *RawRecord) Body() string {
	if r.IsAudio() {
		return r.Transcript
	}
	return r.Text
}

// PackageChunk is one embedded span inside a ready package.
type PackageChunk struct {
	Index     int       `json:"index"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// ReadyPackage is the processor's self-contained output: everything the
// importer needs to catalog the content without consulting raw/.
type ReadyPackage struct {
	PackageID      string            `json:"package_id"`
	Fingerprint    string            `json:"fingerprint"`
	Filename       string            `json:"filename"`
	SourceName     string            `json:"source_name"`
	Teacher        string            `json:"teacher,omitempty"`
	ContentType    string            `json:"content_type"`
	URL            string            `json:"url,omitempty"`
	Collection     string            `json:"collection,omitempty"`
	Topics         []string          `json:"topics,omitempty"`
	Series         string            `json:"series,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	EmbeddingModel string            `json:"embedding_model"`
	CreatedAt      time.Time         `json:"created_at"`
	Chunks         []PackageChunk    `json:"chunks"`
}
