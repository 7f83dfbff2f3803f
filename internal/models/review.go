package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type ActionItem struct {
	Item  string `json:"item"`
	Owner string `json:"owner,omitempty"`
	Due   string `json:"due,omitempty"`
}

type PrincipleAssessment struct {
	Name     string   `json:"name"`
	Score    int      `json:"score"` // 0..100
	Evidence []string `json:"evidence,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// ReviewReport is the post-meeting output of the review pipeline.
type ReviewReport struct {
	MeetingID            string                `json:"meeting_id"`
	Summary              string                `json:"summary"`
	Decisions            []string              `json:"decisions"`
	ActionItems          []ActionItem          `json:"action_items"`
	Risks                []string              `json:"risks"`
	Strengths            []string              `json:"strengths,omitempty"`
	Recommendations      []string              `json:"recommendations,omitempty"`
	OverallScore         int                   `json:"overall_score"`
	PrincipleAssessments []PrincipleAssessment `json:"principle_assessments,omitempty"`
	Attempts             int                   `json:"attempts"`
	GeneratedAt          time.Time             `json:"generated_at"`
}

const (
	ReviewSucceeded = "succeeded"
	ReviewFailed    = "failed"
)

// ReviewRecord is the relational row of a review report. A failed review still gets a
// row so operators can see why no summary exists.
type ReviewRecord struct {
	ID        string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	MeetingID string `gorm:"column:meeting_id;type:uuid;uniqueIndex" json:"meeting_id"`
	Status    string `gorm:"column:status;type:text" json:"status"` // succeeded|failed
	Failure   string `gorm:"column:failure;type:text" json:"failure,omitempty"`

	Summary         string         `gorm:"column:summary;type:text" json:"summary"`
	Decisions       pq.StringArray `gorm:"column:decisions;type:text[]" json:"decisions"`
	Risks           pq.StringArray `gorm:"column:risks;type:text[]" json:"risks"`
	Strengths       pq.StringArray `gorm:"column:strengths;type:text[]" json:"strengths"`
	Recommendations pq.StringArray `gorm:"column:recommendations;type:text[]" json:"recommendations"`

	ActionItems datatypes.JSON `gorm:"column:action_items;type:jsonb" json:"action_items"`
	Assessments datatypes.JSON `gorm:"column:assessments;type:jsonb" json:"assessments"`

	OverallScore int       `gorm:"column:overall_score;type:integer" json:"overall_score"`
	Attempts     int       `gorm:"column:attempts;type:integer" json:"attempts"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (ReviewRecord) TableName() string { return "review_reports" }
