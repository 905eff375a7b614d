package knowledge

import "time"

// Category classifies a knowledge document by subject area.
type Category string

const (
	CategoryPlatform   Category = "platform"   // tCredex platform docs, WPs, specs
	CategoryNMTC       Category = "nmtc"       // New Markets Tax Credit
	CategoryHTC        Category = "htc"        // Historic Tax Credit
	CategoryLIHTC      Category = "lihtc"      // Low-Income Housing Tax Credit
	CategoryOZ         Category = "oz"         // Opportunity Zones
	CategoryState      Category = "state"      // State-specific credits
	CategoryCompliance Category = "compliance" // General compliance guidance
	CategoryGeneral    Category = "general"    // General tax credit info
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryPlatform,
	CategoryNMTC,
	CategoryHTC,
	CategoryLIHTC,
	CategoryOZ,
	CategoryState,
	CategoryCompliance,
	CategoryGeneral,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// DocumentMetadata describes one ingested document. It is created once per
// ingestion; re-ingestion deletes the old row and creates a fresh identity.
type DocumentMetadata struct {
	ID         string
	Filename   string
	Category   Category
	Program    string
	Title      string
	Source     string
	PageCount  int
	UploadedAt time.Time
	UploadedBy string
	Checksum   string
}

// ChunkMetadata travels with every chunk into the vector index so search can
// filter and cite without a join.
type ChunkMetadata struct {
	Category   Category
	Program    string
	Filename   string
	Page       int // 0 when the source has no page structure
	Section    string
	ChunkIndex int
}

// DocumentChunk is the atomic unit of embedding and retrieval. The chunk
// index is unique and increasing within a document, and a stored embedding is
// never mutated, only deleted together with its document.
type DocumentChunk struct {
	ID         string
	DocumentID string
	Content    string
	Embedding  []float32
	Metadata   ChunkMetadata
	CreatedAt  time.Time
}

// VectorMatch is one scored hit from the vector index. With the cosine
// metric higher scores mean closer vectors.
type VectorMatch struct {
	ChunkID    string
	Content    string
	DocumentID string
	Category   Category
	Program    string
	Filename   string
	Page       int
	ChunkIndex int
	Score      float64
}

// SearchResult pairs a chunk with its cosine similarity to the query, in
// [-1, 1]. Produced per query, never persisted.
type SearchResult struct {
	Chunk    DocumentChunk
	Score    float64
	Document *DocumentMetadata
}

// SearchParams scope a similarity search. Category and program filters narrow
// the candidate set before ranking, so Limit returns the best matches within
// the requested scope.
type SearchParams struct {
	Categories []Category
	Programs   []string
	Limit      int
	MinScore   float64
}

// Page is one page of extracted document text, as produced by the per-MIME
// extractors.
type Page struct {
	PageNumber int
	Text       string
}

// Citation is a human-readable pointer from a retrieved chunk back to its
// source document.
type Citation struct {
	ID     string `json:"id"` // numbered marker, e.g. "[1]"
	Source string `json:"source"`
	Page   int    `json:"page,omitempty"`
	Text   string `json:"text"` // short content preview
}

// RAGContext is the retrieval output handed to the chat assistant: the chunks
// used, a text block for prompt injection, and the citation list.
type RAGContext struct {
	Chunks      []SearchResult
	ContextText string
	Citations   []Citation
}

// QueryAnalysis is the rule-table classification of a free-text query.
// IsGeneral is true exactly when no category rule matched.
type QueryAnalysis struct {
	Categories []Category
	Programs   []string
	IsGeneral  bool
}

// IngestResult reports the outcome of ingesting one document.
type IngestResult struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	ChunksCreated int    `json:"chunks_created"`
	Status        string `json:"status"` // "success" or "error"
	Error         string `json:"error,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)
