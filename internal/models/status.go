package models

// Status summarizes what the service has stored and how it is configured.
type Status struct {
	Documents        int64    `json:"documents"`
	Chunks           int64    `json:"chunks"`
	KeywordChunks    uint64   `json:"keyword_chunks"`
	DiskUsageBytes   int64    `json:"disk_usage_bytes"`
	StorageBackend   string   `json:"storage_backend"`
	EmbeddingModel   string   `json:"embedding_model"`
	AnsweringModel   string   `json:"answering_model"`
	WatchDirectories []string `json:"watch_directories,omitempty"`
}
