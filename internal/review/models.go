package review

import (
	"encoding/json"
	"time"
)

// Platform identifies the review source.
type Platform string

const (
	PlatformGoogle Platform = "google"
	PlatformYelp   Platform = "yelp"
)

// DraftStatus tracks a reply draft through the approval protocol.
type DraftStatus string

const (
	DraftPending  DraftStatus = "pending"
	DraftApproved DraftStatus = "approved"
	DraftPosted   DraftStatus = "posted"
	DraftEdited   DraftStatus = "edited"
	DraftSkipped  DraftStatus = "skipped"
)

// Review is an ingested external review. (Platform, PlatformReviewID)
// is the global dedup key and is enforced by a unique index, not by a
// check-then-insert. Rows are immutable after ingestion.
type Review struct {
	ID               string          `json:"id"`
	AccountID        string          `json:"account_id"`
	Platform         Platform        `json:"platform"`
	PlatformReviewID string          `json:"platform_review_id"`
	Author           string          `json:"author"`
	Rating           int             `json:"rating"` // 1-5
	Text             string          `json:"text"`
	ReviewedAt       time.Time       `json:"reviewed_at"`
	Sentiment        string          `json:"sentiment"`
	SentimentScore   float64         `json:"sentiment_score"`
	Signals          []string        `json:"signals,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ReplyDraft is the single active draft attached to a review. It is
// created in the same transaction as its review and only the approval
// command handlers move its status afterwards.
type ReplyDraft struct {
	ID                string      `json:"id"`
	ReviewID          string      `json:"review_id"`
	DraftText         string      `json:"draft_text"`
	FinalText         string      `json:"final_text,omitempty"` // set on approve/edit
	Status            DraftStatus `json:"status"`
	Escalation        bool        `json:"escalation"`
	EscalationReasons []string    `json:"escalation_reasons,omitempty"`
	Confidence        float64     `json:"confidence"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}
