package models

// AuditEntry is Core B's per-request audit record (§3, §6 "Audit JSON-lines").
type AuditEntry struct {
	SessionID           string               `json:"session_id"`
	Timestamp           string               `json:"timestamp"` // ISO-8601
	UserQuestion        string               `json:"user_question"`
	SQLQueriesExecuted  []string             `json:"sql_queries_executed"`
	QueryResultsSummary []QueryResultSummary `json:"query_results_summary,omitempty"`
	FinalResponse       string               `json:"final_response"`
	Metadata            AuditMetadata        `json:"metadata"`
}

// QueryResultSummary is either a row-count/column summary (default) or a
// full row dump (verbose mode) for one executed SQL query.
type QueryResultSummary struct {
	RowCount int      `json:"row_count"`
	Columns  []string `json:"columns"`
	Rows     []map[string]any `json:"rows,omitempty"` // present only when verbose
}

// AuditMetadata carries per-request model/cost/duration accounting (§3).
type AuditMetadata struct {
	Model            string   `json:"model"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	CostEstimateUSD  *float64 `json:"cost_estimate_usd"` // nil when the provider does not report cost
	DurationSeconds  float64  `json:"duration_seconds"`
	ToolCallCount    int      `json:"tool_call_count"`
}
