package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/recipes.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "./data/recipes.index"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.Endpoint == "" {
		cfg.Embedding.Endpoint = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-minilm"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 5
	}
	if cfg.Search.SimThreshold == 0 {
		cfg.Search.SimThreshold = 0.6
	}
	if cfg.Watch.Directory == "" {
		cfg.Watch.Directory = "./recipe_uploads"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".md", ".txt"}
	}
	if cfg.Watch.PollIntervalSeconds == 0 {
		cfg.Watch.PollIntervalSeconds = 2
	}
	if cfg.Watch.ErrorBackoffSeconds == 0 {
		cfg.Watch.ErrorBackoffSeconds = 5
	}
}
