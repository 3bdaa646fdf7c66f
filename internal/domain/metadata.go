package domain

// Section concepts recognized by the metadata extractor.
const (
	SectionTableOfContents  = "table_of_contents"
	SectionExecutiveSummary = "executive_summary"
	SectionSummary          = "summary"
	SectionIntroduction     = "introduction"
	SectionConclusion       = "conclusion"
	SectionReferences       = "references"
	SectionAppendix         = "appendix"
)

// DocumentMetadata is computed once per ingested text.
type DocumentMetadata struct {
	CharCount int      `json:"charCount"`
	WordCount int      `json:"wordCount"`
	LineCount int      `json:"lineCount"`
	Emails    []string `json:"emails,omitempty"`
	Phones    []string `json:"phones,omitempty"`
	URLs      []string `json:"urls,omitempty"`
	Dates     []string `json:"dates,omitempty"`
	Sections  []string `json:"sections,omitempty"`
}

// ChunkMetadata is stored alongside each chunk.
type ChunkMetadata struct {
	DocumentMetadata

	SourceName  string            `json:"sourceName,omitempty"`
	SourceType  string            `json:"sourceType,omitempty"`
	Title       string            `json:"title,omitempty"`
	ChunkLength int               `json:"chunkLength"`
	ChunkIndex  int               `json:"chunkIndex"`
	TotalChunks int               `json:"totalChunks"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Source types recorded in chunk metadata.
const (
	SourceTypeDocument  = "document"
	SourceTypeKnowledge = "knowledge"
)
