package groupgift

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type ContributionInput struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Amount  int64  `json:"amount" validate:"gt=0"`
	Message string `json:"message"`
}

type InvitationInput struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Ledger is the only place that changes a campaign's amounts, status,
// contributors and invitations. Every method either applies its whole
// effect or returns an error with the campaign untouched.
type Ledger struct {
	now      func() time.Time
	newID    func() uuid.UUID
	validate *validator.Validate
}

type LedgerOption func(*Ledger)

func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

func WithIDGenerator(newID func() uuid.UUID) LedgerOption {
	return func(l *Ledger) {
		l.newID = newID
	}
}

func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.New,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) AddContribution(g *GroupGift, in ContributionInput) (Contribution, error) {
	in = normalizeContribution(in)
	if err := l.validateInput(in); err != nil {
		return Contribution{}, err
	}

	if IsDuplicateEmail(g, in.Email) {
		return Contribution{}, &DuplicateContributorError{Email: in.Email}
	}
	if !IsValidAmount(g.TargetAmount, g.CurrentAmount, in.Amount) {
		return Contribution{}, &OverfundingError{Amount: in.Amount, Remaining: g.Remaining()}
	}

	c := Contribution{
		ID:            l.newID(),
		Name:          in.Name,
		Email:         in.Email,
		Amount:        in.Amount,
		Message:       in.Message,
		ContributedAt: l.now(),
	}

	g.Contributors = append(g.Contributors, c)
	g.CurrentAmount += c.Amount
	g.InvitedContributors = withoutInvitation(g.InvitedContributors, c.Email)
	if g.CurrentAmount >= g.TargetAmount {
		g.Status = StatusCompleted
	}

	return c, nil
}

// InviteContributors appends the invitations whose email is neither a
// contributor nor already invited, and returns only those.
func (l *Ledger) InviteContributors(g *GroupGift, invitations []InvitationInput) []Invitation {
	added := make([]Invitation, 0, len(invitations))
	now := l.now()

	for _, in := range invitations {
		email := strings.TrimSpace(in.Email)
		if l.validate.Var(email, "required,email") != nil {
			continue
		}
		if IsDuplicateEmail(g, email) || isInvited(g, email) {
			continue
		}

		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = email
		}
		inv := Invitation{
			Email:     email,
			Name:      name,
			InvitedAt: now,
			Status:    InvitationPending,
		}
		g.InvitedContributors = append(g.InvitedContributors, inv)
		added = append(added, inv)
	}

	return added
}

// RemoveInvitation withdraws a pending invitation. Removing an absent email is a no-op.
func (l *Ledger) RemoveInvitation(g *GroupGift, email string) bool {
	before := len(g.InvitedContributors)
	g.InvitedContributors = withoutInvitation(g.InvitedContributors, email)
	return len(g.InvitedContributors) != before
}

// ValidateContribution checks a contribution on its own, without a campaign.
func (l *Ledger) ValidateContribution(in ContributionInput) error {
	return l.validateInput(normalizeContribution(in))
}

func normalizeContribution(in ContributionInput) ContributionInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	return in
}

func (l *Ledger) validateInput(in ContributionInput) error {
	err := l.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: strings.ToLower(fe.Field()), Reason: reasonFor(fe.Tag())}
	}
	return &ValidationError{Field: "contribution", Reason: err.Error()}
}

func reasonFor(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "invalid email format"
	case "gt":
		return "must be positive"
	default:
		return "is invalid"
	}
}

func withoutInvitation(invitations []Invitation, email string) []Invitation {
	out := make([]Invitation, 0, len(invitations))
	for _, inv := range invitations {
		if inv.Email != email {
			out = append(out, inv)
		}
	}
	return out
}
