package domain

import "time"

const (
	CategorySolvableBug      = "Solvable Bug"
	CategoryNotABug          = "Not a Bug"
	CategoryNeedsMoreDetails = "Needs More Details"
)

// Categories lists the triage categories in report order.
var Categories = []string{CategorySolvableBug, CategoryNotABug, CategoryNeedsMoreDetails}

const UnknownTicketKey = "UNKNOWN"

// Analysis is the model's verdict for one ticket.
type Analysis struct {
	TicketKey      string `json:"ticket_key"`
	Status         string `json:"status"`
	Category       string `json:"category"`
	Summary        string `json:"summary"`
	Reasoning      string `json:"reasoning"`
	SuggestedFix   string `json:"suggested_fix"`
	MissingDetails string `json:"missing_details"`
	Link           string `json:"link"`
	Chunk          int    `json:"chunk"`
}

type RunSummary struct {
	ID           string
	Source       string
	Format       string
	Provider     string
	Model        string
	Tickets      int
	Chunks       int
	FailedChunks int
	Analyses     int
	ReportPath   string
	TokensIn     int64
	TokensOut    int64
	StartedAt    time.Time
	FinishedAt   time.Time
}

func (s RunSummary) TotalTokens() int64 {
	return s.TokensIn + s.TokensOut
}

func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
