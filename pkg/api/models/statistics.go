package models

// StatisticsResponse represents all data plane statistics
type StatisticsResponse struct {
	TotalQueries   uint64 `json:"total_queries"`
	Permitted      uint64 `json:"permitted"`
	Rejected       uint64 `json:"rejected"`
	Unmatched      uint64 `json:"unmatched"`
	Malformed      uint64 `json:"malformed"`
	Rules          int    `json:"rules"`
	UniquePrefixes int    `json:"unique_prefixes"`
	TrieNodes      int    `json:"trie_nodes"`
	ShadowedRules  int    `json:"shadowed_rules"`
}

// QueryStatsResponse represents query-specific statistics
type QueryStatsResponse struct {
	TotalQueries uint64  `json:"total_queries"`
	Permitted    uint64  `json:"permitted"`
	Rejected     uint64  `json:"rejected"`
	Unmatched    uint64  `json:"unmatched"`
	Malformed    uint64  `json:"malformed"`
	PermitRate   float64 `json:"permit_rate"`
	RejectRate   float64 `json:"reject_rate"`
	MatchRate    float64 `json:"match_rate"`
}

// RuleStatsResponse represents rule set statistics
type RuleStatsResponse struct {
	Rules          int `json:"rules"`
	UniquePrefixes int `json:"unique_prefixes"`
	DuplicateRules int `json:"duplicate_rules"`
	ShadowedRules  int `json:"shadowed_rules"`
	TrieNodes      int `json:"trie_nodes"`
}
