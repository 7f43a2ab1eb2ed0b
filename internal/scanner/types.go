package scanner

// Chunk is a contiguous line range of a source file.
type Chunk struct {
	// ID is a stable identifier derived from the file path, line range,
	// and content hash. Re-chunking unchanged content yields identical IDs.
	ID string

	// FilePath is the path relative to the workspace root.
	FilePath string

	// Content is the raw chunk text.
	Content string

	// StartLine and EndLine are 1-indexed inclusive.
	StartLine int
	EndLine   int
}

// FileResult is the outcome of scanning a single file.
type FileResult struct {
	// Path is relative to the workspace root.
	Path string

	// Chunks are the file's line-range chunks, in order.
	Chunks []Chunk

	// ContentHash is the SHA-256 of the file's raw bytes.
	ContentHash string

	// Err is set when the file could not be read. Path is still valid.
	Err error
}

// Batch groups chunks for a single embedding request.
type Batch struct {
	Chunks []Chunk

	// Bytes is the cumulative content size of the batch.
	Bytes int
}

// BatchStats reports what BuildBatches did with its input.
type BatchStats struct {
	// Batched is the number of chunks placed into batches.
	Batched int

	// Oversized is the number of chunks skipped for exceeding the
	// per-item limit.
	Oversized int
}
