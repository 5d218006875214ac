package database

import (
	"time"
)

// Item is one stored news entry. Source specific fields travel in Payload.
type Item struct {
	ID        int64
	Source    string
	Link      string
	Title     string
	Topic     string
	Published string // YYYY-MM-DD
	Author    string
	Snippet   string
	Payload   map[string]any
	RunID     string
	CreatedAt time.Time
}

// Run records one pipeline execution.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	ReportPath string
	Counts     map[string]int
}
