package config

// Default prompt and answer values.
const (
	DefaultSystemPrompt = "You answer the given question by referring to the context."
	DefaultPreamble     = "You will be given some context and a question that follows that context." +
		"Your job is to answer the question based on the context provided."
	DefaultUncertainSentinel = "UNCERTAIN"
	DefaultFallbackMessage   = "Sorry I do not have enough information to answer this. Please contact the reception."
)

// DefaultDelimiters is the split priority used when none is configured:
// paragraphs, then lines, then sentences.
func DefaultDelimiters() []string {
	return []string{"\n\n", "\n", ". "}
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSQLite
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/compendium/data/db/embeddings.db"
	}
	if cfg.Storage.MongoURI == "" {
		cfg.Storage.MongoURI = "mongodb://localhost:27017"
	}
	if cfg.Storage.MongoDatabase == "" {
		cfg.Storage.MongoDatabase = "benefit_search"
	}
	if cfg.Storage.MongoCollection == "" {
		cfg.Storage.MongoCollection = "embeddings"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/compendium/data/indices/bleve"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "/usr/local/var/compendium/data/uploads"
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Provider.APIKeyEnv == "" {
		cfg.Provider.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Provider.TimeoutSeconds == 0 {
		cfg.Provider.TimeoutSeconds = 60
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-ada-002"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 50
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Retrieval.AnsweringModel == "" {
		cfg.Retrieval.AnsweringModel = "gpt-3.5-turbo"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 2
	}
	if cfg.Retrieval.TokenBudget == 0 {
		// 3200 token context minus 500 reserved for the answer.
		cfg.Retrieval.TokenBudget = 3200 - 500
	}
	if cfg.Retrieval.SystemPrompt == "" {
		cfg.Retrieval.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Retrieval.Preamble == "" {
		cfg.Retrieval.Preamble = DefaultPreamble
	}
	if cfg.Retrieval.UncertainSentinel == "" {
		cfg.Retrieval.UncertainSentinel = DefaultUncertainSentinel
	}
	if cfg.Retrieval.FallbackMessage == "" {
		cfg.Retrieval.FallbackMessage = DefaultFallbackMessage
	}
	if cfg.Chunking.MaxTokens == 0 {
		cfg.Chunking.MaxTokens = 1600
	}
	if cfg.Chunking.MaxRecursion == 0 {
		cfg.Chunking.MaxRecursion = 5
	}
	if len(cfg.Chunking.Delimiters) == 0 {
		cfg.Chunking.Delimiters = DefaultDelimiters()
	}
	if cfg.Chunking.SectionDelimiter == "" {
		cfg.Chunking.SectionDelimiter = "\n\n\n"
	}
	if cfg.Chunking.TokenizerModel == "" {
		cfg.Chunking.TokenizerModel = cfg.Retrieval.AnsweringModel
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
}
