package groupgift

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

const InvitationPending = "pending"

const DefaultOccasion = "General"

// GroupGift is a campaign pooling contributions toward one gift for a recipient.
type GroupGift struct {
	ID                  int64          `json:"id"`
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	OccasionType        string         `json:"occasion_type"`
	RecipientID         int64          `json:"recipient_id"`
	GiftID              *int64         `json:"gift_id,omitempty"`
	TargetAmount        int64          `json:"target_amount"`  // Amount in cents
	CurrentAmount       int64          `json:"current_amount"` // Amount in cents
	Status              Status         `json:"status"`
	Deadline            time.Time      `json:"deadline"`
	CreatedBy           string         `json:"created_by"`
	CreatedAt           time.Time      `json:"created_at"`
	Contributors        []Contribution `json:"contributors"`
	InvitedContributors []Invitation   `json:"invited_contributors"`
}

type Contribution struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Amount        int64     `json:"amount"` // Amount in cents
	Message       string    `json:"message,omitempty"`
	ContributedAt time.Time `json:"contributed_at"`
}

type Invitation struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	InvitedAt time.Time `json:"invited_at"`
	Status    string    `json:"status"`
}

var (
	ErrValidation           = errors.New("validation failed")
	ErrCampaignNotFound     = errors.New("group gift not found")
	ErrDuplicateContributor = errors.New("email has already contributed")
	ErrOverfunding          = errors.New("contribution exceeds remaining amount")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type DuplicateContributorError struct {
	Email string
}

func (e *DuplicateContributorError) Error() string {
	return fmt.Sprintf("%s has already contributed", e.Email)
}

func (e *DuplicateContributorError) Is(target error) bool { return target == ErrDuplicateContributor }

// OverfundingError reports the amount that was still open when the contribution was rejected.
type OverfundingError struct {
	Amount    int64
	Remaining int64
}

func (e *OverfundingError) Error() string {
	return fmt.Sprintf("amount %d exceeds remaining %d", e.Amount, e.Remaining)
}

func (e *OverfundingError) Is(target error) bool { return target == ErrOverfunding }

// RepositoryError wraps a failure of the storage backend.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

func repoErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrCampaignNotFound) {
		return err
	}
	var re *RepositoryError
	if errors.As(err, &re) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}

// NewGroupGift builds an active campaign with no contributions. The id is assigned by the repository.
func NewGroupGift(title string, recipientID int64, targetAmount int64, deadline time.Time, createdBy string) (GroupGift, error) {
	if title == "" {
		return GroupGift{}, &ValidationError{Field: "title", Reason: "can't be empty"}
	}
	if recipientID <= 0 {
		return GroupGift{}, &ValidationError{Field: "recipient_id", Reason: "is required"}
	}
	if targetAmount <= 0 {
		return GroupGift{}, &ValidationError{Field: "target_amount", Reason: "must be positive"}
	}
	if deadline.IsZero() {
		return GroupGift{}, &ValidationError{Field: "deadline", Reason: "is required"}
	}
	if createdBy == "" {
		return GroupGift{}, &ValidationError{Field: "created_by", Reason: "can't be empty"}
	}

	return GroupGift{
		Title:               title,
		OccasionType:        DefaultOccasion,
		RecipientID:         recipientID,
		TargetAmount:        targetAmount,
		Status:              StatusActive,
		Deadline:            deadline,
		CreatedBy:           createdBy,
		CreatedAt:           time.Now().UTC(),
		Contributors:        []Contribution{},
		InvitedContributors: []Invitation{},
	}, nil
}

func (g *GroupGift) Remaining() int64 {
	if g.CurrentAmount >= g.TargetAmount {
		return 0
	}
	return g.TargetAmount - g.CurrentAmount
}

// ProgressPercent is the funded share of the target, capped at 100.
func (g *GroupGift) ProgressPercent() float64 {
	if g.TargetAmount <= 0 {
		return 0
	}
	p := float64(g.CurrentAmount) / float64(g.TargetAmount) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (g GroupGift) Clone() GroupGift {
	c := g
	if g.GiftID != nil {
		id := *g.GiftID
		c.GiftID = &id
	}
	c.Contributors = append(make([]Contribution, 0, len(g.Contributors)), g.Contributors...)
	c.InvitedContributors = append(make([]Invitation, 0, len(g.InvitedContributors)), g.InvitedContributors...)
	return c
}

// IsValidAmount reports whether amount can be accepted without overfunding.
func IsValidAmount(targetAmount, currentAmount, amount int64) bool {
	return amount > 0 && amount <= targetAmount-currentAmount
}

// IsDuplicateEmail reports whether email already contributed to the campaign.
// A pending invitation is not a duplicate, since invitees are expected to contribute.
func IsDuplicateEmail(g *GroupGift, email string) bool {
	for _, c := range g.Contributors {
		if c.Email == email {
			return true
		}
	}
	return false
}

func isInvited(g *GroupGift, email string) bool {
	for _, inv := range g.InvitedContributors {
		if inv.Email == email {
			return true
		}
	}
	return false
}

// IsCampaignExpired is informational. Expired campaigns still accept contributions.
func IsCampaignExpired(g *GroupGift, now time.Time) bool {
	return g.Status == StatusActive && now.After(g.Deadline)
}

// SuggestedAmounts mirrors the quick-pick buttons of the contribution form:
// 25, 50 and 100 capped by what remains, plus the remaining amount itself.
func SuggestedAmounts(g *GroupGift) []int64 {
	remaining := g.Remaining()
	if remaining <= 0 {
		return []int64{}
	}
	out := make([]int64, 0, 4)
	for _, v := range []int64{2500, 5000, 10000, remaining} {
		v = min(v, remaining)
		dup := false
		for _, o := range out {
			if o == v {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}
