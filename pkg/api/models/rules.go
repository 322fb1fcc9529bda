package models

// RuleResponse represents a rule in API responses
type RuleResponse struct {
	Index     int    `json:"index"`
	Network   string `json:"network"`
	Label     int    `json:"label"`
	Action    string `json:"action"`
	Duplicate bool   `json:"duplicate"`
}

// RuleListResponse represents a page of rules in index order
type RuleListResponse struct {
	Rules  []RuleResponse `json:"rules"`
	Count  int            `json:"count"`
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}
