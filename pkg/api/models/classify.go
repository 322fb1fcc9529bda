package models

// ClassifyRequest is a batch of addresses to classify
type ClassifyRequest struct {
	Addresses []string `json:"addresses" binding:"required,min=1"`
}

// ClassifyResult is the outcome for one address
type ClassifyResult struct {
	Address   string `json:"address"`
	Matched   bool   `json:"matched"`
	RuleIndex *int   `json:"rule_index,omitempty"`
	Action    string `json:"action,omitempty"` // "permit", "reject", "no match"
	Answer    string `json:"answer,omitempty"` // "match rule 0, permit"
	Error     string `json:"error,omitempty"`
}

// ClassifyResponse is the outcome of a batch, in request order
type ClassifyResponse struct {
	Results []ClassifyResult `json:"results"`
	Count   int              `json:"count"`
	Invalid int              `json:"invalid"`
}

// MatchResponse is one rule containing an explained address
type MatchResponse struct {
	RuleIndex int    `json:"rule_index"`
	Network   string `json:"network"`
	PrefixLen int    `json:"prefix_len"`
	Action    string `json:"action"`
}

// ExplainResponse lists every rule containing an address and the winner
type ExplainResponse struct {
	ClassifyResult
	Matches []MatchResponse `json:"matches"`
}
