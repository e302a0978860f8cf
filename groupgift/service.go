package groupgift

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

type CreateInput struct {
	Title        string
	Description  string
	OccasionType string
	RecipientID  int64
	GiftID       *int64
	TargetAmount int64 // Amount in cents
	Deadline     time.Time
	CreatedBy    string
	Invitations  []InvitationInput
}

// DetailsInput carries the display fields a creator may edit. Nil fields are left as they are.
type DetailsInput struct {
	Title        *string
	Description  *string
	OccasionType *string
	Deadline     *time.Time
}

type Filter struct {
	RecipientID int64
	CreatedBy   string
}

// Service is the entry point for callers. It runs ledger operations inside
// repository transactions and hands notification intents to the notifier.
type Service struct {
	repo            Repository
	ledger          *Ledger
	stats           *Aggregator
	notifier        Notifier
	logger          *slog.Logger
	now             func() time.Time
	defaultDeadline time.Duration
}

type ServiceOption func(*Service)

func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithLedger(l *Ledger) ServiceOption {
	return func(s *Service) {
		s.ledger = l
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithDefaultDeadline sets how far ahead the deadline lands when a campaign is created without one.
func WithDefaultDeadline(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.defaultDeadline = d
	}
}

func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:            repo,
		stats:           NewAggregator(repo),
		notifier:        NotifierFunc(func(Notification) {}),
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:             func() time.Time { return time.Now().UTC() },
		defaultDeadline: 30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		s.ledger = NewLedger(WithClock(s.now))
	}
	return s
}

func (s *Service) CreateGroupGift(ctx context.Context, in CreateInput) (*GroupGift, error) {
	deadline := in.Deadline
	if deadline.IsZero() {
		deadline = s.now().Add(s.defaultDeadline)
	}

	g, err := NewGroupGift(strings.TrimSpace(in.Title), in.RecipientID, in.TargetAmount, deadline, strings.TrimSpace(in.CreatedBy))
	if err != nil {
		return nil, err
	}
	g.Description = in.Description
	g.GiftID = in.GiftID
	g.CreatedAt = s.now()
	if occasion := strings.TrimSpace(in.OccasionType); occasion != "" {
		g.OccasionType = occasion
	}
	if in.GiftID != nil && *in.GiftID <= 0 {
		return nil, &ValidationError{Field: "gift_id", Reason: "must be positive"}
	}

	invited := s.ledger.InviteContributors(&g, in.Invitations)

	if err := s.repo.Create(ctx, &g); err != nil {
		s.logger.Error("failed to create group gift", "error", err)
		return nil, err
	}
	s.logger.Info("group gift created", "group_gift_id", g.ID, "created_by", g.CreatedBy, "invited", len(invited))

	s.notifier.Notify(Notification{
		Kind:       KindCreated,
		CampaignID: g.ID,
		Payload: CreatedEvent{
			Title:        g.Title,
			RecipientID:  g.RecipientID,
			TargetAmount: g.TargetAmount,
			Deadline:     g.Deadline,
			CreatedBy:    g.CreatedBy,
		},
	})
	if len(invited) > 0 {
		s.notifier.Notify(Notification{
			Kind:       KindInvitationsSent,
			CampaignID: g.ID,
			Payload:    InvitationsSentEvent{Title: g.Title, Invitations: invited},
		})
	}

	return &g, nil
}

func (s *Service) AddContribution(ctx context.Context, id int64, in ContributionInput) (Contribution, error) {
	if err := s.ledger.ValidateContribution(in); err != nil {
		return Contribution{}, err
	}

	var c Contribution
	var completed bool

	g, err := s.repo.Apply(ctx, id, func(g *GroupGift) error {
		wasActive := g.Status == StatusActive
		var err error
		c, err = s.ledger.AddContribution(g, in)
		if err != nil {
			return err
		}
		completed = wasActive && g.Status == StatusCompleted
		return nil
	})
	if err != nil {
		s.logFailure("failed to add contribution", id, err)
		return Contribution{}, err
	}
	s.logger.Info("contribution accepted", "group_gift_id", id, "contribution_id", c.ID, "amount", c.Amount, "current_amount", g.CurrentAmount)

	s.notifier.Notify(Notification{
		Kind:       KindContributionAccepted,
		CampaignID: id,
		Payload: ContributionAcceptedEvent{
			Title:         g.Title,
			Contribution:  c,
			CurrentAmount: g.CurrentAmount,
			Remaining:     g.Remaining(),
		},
	})
	if completed {
		s.logger.Info("group gift completed", "group_gift_id", id, "target_amount", g.TargetAmount)
		s.notifier.Notify(Notification{
			Kind:       KindCompleted,
			CampaignID: id,
			Payload: CompletedEvent{
				Title:         g.Title,
				RecipientID:   g.RecipientID,
				TargetAmount:  g.TargetAmount,
				Contributors:  len(g.Contributors),
				CompletedAt:   c.ContributedAt,
				CreatedBy:     g.CreatedBy,
				FinalEmail:    c.Email,
				CurrentAmount: g.CurrentAmount,
			},
		})
	}

	return c, nil
}

// errNoChange aborts an Apply whose function left the campaign as it was.
var errNoChange = errors.New("no change")

func (s *Service) InviteContributors(ctx context.Context, id int64, invitations []InvitationInput) ([]Invitation, error) {
	var added []Invitation

	g, err := s.repo.Apply(ctx, id, func(g *GroupGift) error {
		added = s.ledger.InviteContributors(g, invitations)
		if len(added) == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return []Invitation{}, nil
	}
	if err != nil {
		s.logFailure("failed to invite contributors", id, err)
		return nil, err
	}
	s.logger.Info("contributors invited", "group_gift_id", id, "invited", len(added), "skipped", len(invitations)-len(added))

	s.notifier.Notify(Notification{
		Kind:       KindInvitationsSent,
		CampaignID: id,
		Payload:    InvitationsSentEvent{Title: g.Title, Invitations: added},
	})
	return added, nil
}

// RemoveInvitation reports success once the email is no longer invited,
// whether or not an invitation existed.
func (s *Service) RemoveInvitation(ctx context.Context, id int64, email string) (bool, error) {
	_, err := s.repo.Apply(ctx, id, func(g *GroupGift) error {
		if !s.ledger.RemoveInvitation(g, strings.TrimSpace(email)) {
			return errNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		s.logFailure("failed to remove invitation", id, err)
		return false, err
	}
	if err == nil {
		s.logger.Info("invitation removed", "group_gift_id", id, "email", email)
	}
	return true, nil
}

func (s *Service) UpdateGroupGift(ctx context.Context, id int64, in DetailsInput) (*GroupGift, error) {
	g, err := s.repo.Apply(ctx, id, func(g *GroupGift) error {
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return &ValidationError{Field: "title", Reason: "can't be empty"}
			}
			g.Title = title
		}
		if in.Description != nil {
			g.Description = *in.Description
		}
		if in.OccasionType != nil {
			g.OccasionType = strings.TrimSpace(*in.OccasionType)
			if g.OccasionType == "" {
				g.OccasionType = DefaultOccasion
			}
		}
		if in.Deadline != nil {
			if in.Deadline.IsZero() {
				return &ValidationError{Field: "deadline", Reason: "is required"}
			}
			g.Deadline = *in.Deadline
		}
		return nil
	})
	if err != nil {
		s.logFailure("failed to update group gift", id, err)
		return nil, err
	}
	return g, nil
}

func (s *Service) GetGroupGift(ctx context.Context, id int64) (*GroupGift, error) {
	return s.repo.GetByID(ctx, id)
}

// ListGroupGifts returns campaigns newest first. A recipient filter wins over a creator filter.
func (s *Service) ListGroupGifts(ctx context.Context, f Filter) ([]GroupGift, error) {
	switch {
	case f.RecipientID > 0:
		return s.repo.GetByRecipient(ctx, f.RecipientID)
	case f.CreatedBy != "":
		return s.repo.GetByCreator(ctx, f.CreatedBy)
	default:
		return s.repo.GetAll(ctx)
	}
}

func (s *Service) DeleteGroupGift(ctx context.Context, id int64) (bool, error) {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logFailure("failed to delete group gift", id, err)
		return false, err
	}
	s.logger.Info("group gift deleted", "group_gift_id", id)
	return true, nil
}

func (s *Service) ContributionStats(ctx context.Context) (Stats, error) {
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		s.logger.Error("failed to compute contribution stats", "error", err)
		return Stats{}, err
	}
	return stats, nil
}

// logFailure keeps caller mistakes at debug level and storage failures at error level.
func (s *Service) logFailure(msg string, id int64, err error) {
	var re *RepositoryError
	if errors.As(err, &re) {
		s.logger.Error(msg, "group_gift_id", id, "error", err)
		return
	}
	s.logger.Debug(msg, "group_gift_id", id, "error", err)
}
