package library

import "time"

// SourceType records how a file entered the catalog.
type SourceType string

const (
	// SourceHarvest marks files imported from ready packages.
	SourceHarvest SourceType = "harvest"
	// SourceIngest marks files cataloged directly from local paths.
	SourceIngest SourceType = "ingest"
)

// File is a catalog row describing one piece of library content.
type File struct {
	ID           int64
	Filename     string
	FilePath     string
	MimeType     string
	SourceType   SourceType
	Fingerprint  string
	MetadataJSON string
	Indexed      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chunk is one embedded span of a library file's text.
type Chunk struct {
	ID            int64
	FileID        int64
	ChunkIndex    int
	Content       string
	EmbeddingJSON string
	Model         string
}

// Counts summarizes catalog contents for status output.
type Counts struct {
	Files   int `json:"files"`
	Indexed int `json:"indexed"`
	Chunks  int `json:"chunks"`
}
