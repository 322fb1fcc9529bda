package models

// ConfigResponse represents the current service configuration
type ConfigResponse struct {
	APIHost        string `json:"api_host"`
	APIPort        int    `json:"api_port"`
	LogLevel       string `json:"log_level"`
	Workers        int    `json:"workers"`
	MaxBatchSize   int    `json:"max_batch_size"`
	RequestTimeout string `json:"request_timeout"`
}

// ConfigUpdateRequest represents a configuration update request
type ConfigUpdateRequest struct {
	LogLevel *string `json:"log_level,omitempty" binding:"omitempty,oneof=debug info warn error"`
}
