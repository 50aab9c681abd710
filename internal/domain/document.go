package domain

// Document represents a single text file fed to the offline indexer.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a part of a document that becomes one passage in the store.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}
