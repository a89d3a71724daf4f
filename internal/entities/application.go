package entities

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusApplied    Status = "applied"
	StatusScreening  Status = "screening"
	StatusInterview  Status = "interview"
	StatusAssessment Status = "assessment"
	StatusOffer      Status = "offer"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusWithdrawn  Status = "withdrawn"
)

var statusRank = map[Status]int{
	StatusDraft:      0,
	StatusApplied:    1,
	StatusScreening:  2,
	StatusInterview:  3,
	StatusAssessment: 4,
	StatusOffer:      5,
	StatusAccepted:   6,
	StatusRejected:   6,
	StatusWithdrawn:  6,
}

func ToStatus(s string) (Status, error) {
	if _, ok := statusRank[Status(s)]; !ok {
		return "", errors.New("invalid application status")
	}
	return Status(s), nil
}

func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusWithdrawn
}

// AtOrPast reports whether s is at least as far along the pipeline as other.
func (s Status) AtOrPast(other Status) bool {
	return statusRank[s] >= statusRank[other]
}

// ApplicationRecord tracks one job application. Created manually or by the
// orchestrator; automated writes are serialized through the linked rule.
type ApplicationRecord struct {
	ID          uint
	UserID      int64
	RuleID      *int
	Board       Board
	PostingURL  string
	Title       string
	Company     string
	Status      Status
	StatusTimes string
	AppliedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewApplicationRecord(userID int64, ruleID *int, board Board, postingURL, title, company string) *ApplicationRecord {
	record := &ApplicationRecord{
		UserID:     userID,
		RuleID:     ruleID,
		Board:      board,
		PostingURL: postingURL,
		Title:      title,
		Company:    company,
		Status:     StatusDraft,
	}
	record.MarkStatusReached(StatusDraft, time.Now())
	return record
}

// MarkStatusReached records when a status was first reached. Times are kept
// as a serialized map so the reporting layer can read them without joins.
func (a *ApplicationRecord) MarkStatusReached(status Status, at time.Time) {
	times := a.StatusTimesAsMap()
	if _, ok := times[status]; ok {
		return
	}
	times[status] = at.UTC()

	serialized, err := json.Marshal(times)
	if err != nil {
		log.Errorf("failed to serialize status times: %v", err)
		return
	}
	a.StatusTimes = string(serialized)
}

func (a *ApplicationRecord) StatusTimesAsMap() map[Status]time.Time {
	times := map[Status]time.Time{}
	if a.StatusTimes == "" {
		return times
	}
	if err := json.Unmarshal([]byte(a.StatusTimes), &times); err != nil {
		log.Errorf("failed to parse status times: %v", err)
	}
	return times
}
