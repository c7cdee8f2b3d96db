package models

// StatementResult summarizes one provider settlement statement import
type StatementResult struct {
	DryRun         bool     `json:"dry_run"`
	TotalRows      int      `json:"total_rows"`
	Completed      int      `json:"completed"`
	Failed         int      `json:"failed"`
	Pending        int      `json:"pending"`
	AlreadySettled int      `json:"already_settled"`
	Mismatched     int      `json:"mismatched"`
	VotesCreated   int      `json:"votes_created"`
	Errors         []string `json:"errors"`
}
