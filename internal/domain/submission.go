package domain

import "time"

// Criterion is one rubric line of a judging template.
type Criterion struct {
	ID       string  `json:"id" validate:"required"`
	Label    string  `json:"label"`
	MaxScore float64 `json:"max_score" validate:"gt=0"`
}

// JudgingTemplate is the ordered rubric judges score against. A template is
// immutable once scores reference it.
type JudgingTemplate struct {
	ID       string      `json:"id" validate:"required"`
	Name     string      `json:"name"`
	Criteria []Criterion `json:"criteria" validate:"required,min=1,dive"`
}

// MaxTotal returns the sum of all criterion max scores.
func (t JudgingTemplate) MaxTotal() float64 {
	var total float64
	for _, c := range t.Criteria {
		total += c.MaxScore
	}
	return total
}

// SubmissionStatus is the review state of a submission.
type SubmissionStatus string

// Submission review states.
const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionJudging  SubmissionStatus = "judging"
	SubmissionJudged   SubmissionStatus = "judged"
	SubmissionRejected SubmissionStatus = "rejected"
)

// CandidateStatuses lists the submission states that take part in ranking.
var CandidateStatuses = []SubmissionStatus{SubmissionApproved, SubmissionJudging, SubmissionJudged}

// IsCandidate reports whether a submission in this state is ranked.
func (s SubmissionStatus) IsCandidate() bool {
	for _, c := range CandidateStatuses {
		if s == c {
			return true
		}
	}
	return false
}

// Submission is a contest entry as seen by the engine. Views and LikeCount
// are owned by the tracking subsystem and are read-only here.
type Submission struct {
	ID          string           `json:"id"`
	ContestID   string           `json:"contest_id"`
	Status      SubmissionStatus `json:"status"`
	Views       int64            `json:"views"`
	LikeCount   int64            `json:"like_count"`
	SubmittedAt time.Time        `json:"submitted_at"`
}

// Score is one judge's rubric scoring of one submission. It is overwritten,
// not versioned, while the contest is judging.
type Score struct {
	SubmissionID   string             `json:"submission_id"`
	JudgeID        string             `json:"judge_id"`
	TemplateID     string             `json:"template_id"`
	CriteriaScores map[string]float64 `json:"criteria_scores"`
	Total          float64            `json:"total"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// BonusEntry is participant-submitted proof that earns fixed extra points
// once a host or admin verifies it.
type BonusEntry struct {
	ID            string  `json:"id"`
	SubmissionID  string  `json:"submission_id"`
	BonusConfigID string  `json:"bonus_config_id"`
	Score         float64 `json:"score"`
	Verified      bool    `json:"verified"`
}

// ContestSnapshot is everything one computation reads, taken at a single
// point in time.
type ContestSnapshot struct {
	Contest     Contest          `json:"contest"`
	Template    *JudgingTemplate `json:"template,omitempty"`
	Submissions []Submission     `json:"submissions"`
	Scores      []Score          `json:"scores"`
	Bonuses     []BonusEntry     `json:"bonuses"`
	ReadAt      time.Time        `json:"read_at"`
}

// Guard returns the state the write phase must still observe.
func (s ContestSnapshot) Guard() Guard {
	return Guard{Status: s.Contest.Status, Version: s.Contest.Version}
}
