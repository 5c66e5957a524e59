package model

type SourceType string

const (
	SourceWiki      SourceType = "wiki"
	SourceIssue     SourceType = "issue"
	SourceEmail     SourceType = "email"
	SourceGit       SourceType = "git"
	SourceCrawl     SourceType = "crawl"
	SourceKnowledge SourceType = "knowledge"
)

var knownSourceTypes = map[SourceType]bool{
	SourceWiki:      true,
	SourceIssue:     true,
	SourceEmail:     true,
	SourceGit:       true,
	SourceCrawl:     true,
	SourceKnowledge: true,
}

func (t SourceType) IsValid() bool {
	return knownSourceTypes[t]
}

func AllSourceTypes() []SourceType {
	return []SourceType{SourceWiki, SourceIssue, SourceEmail, SourceGit, SourceCrawl, SourceKnowledge}
}

// VectorRecord is one embedded content chunk. A long document ingests as
// several records sharing (SourceType, SourceID) and numbered by ChunkIndex.
// Records from different embedding providers coexist in the same table and
// are never compared against each other.
type VectorRecord struct {
	ID         int64      `json:"id"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	ChunkIndex int        `json:"chunk_index"`
	Scope      Scope      `json:"scope"`
	Provider   string     `json:"provider"`
	Dimension  int        `json:"dimension"`
	Content    string     `json:"content"`
	Metadata   Metadata   `json:"metadata"`
	Embedding  []float32  `json:"-"`
	Hash       string     `json:"-"`
	Ctime      int64      `json:"ctime"`
	Mtime      int64      `json:"mtime"`
}
