package groupgift

import "time"

type NotificationKind string

const (
	KindCreated              NotificationKind = "group_gift.created"
	KindInvitationsSent      NotificationKind = "group_gift.invitations_sent"
	KindContributionAccepted NotificationKind = "group_gift.contribution_accepted"
	KindCompleted            NotificationKind = "group_gift.completed"
)

// Notification describes something worth telling people about. Delivery is
// up to whoever receives it.
type Notification struct {
	Kind       NotificationKind
	CampaignID int64
	Payload    any
}

// Notifier accepts notification intents. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

type CreatedEvent struct {
	Title        string
	RecipientID  int64
	TargetAmount int64 // Amount in cents
	Deadline     time.Time
	CreatedBy    string
}

type InvitationsSentEvent struct {
	Title       string
	Invitations []Invitation
}

type ContributionAcceptedEvent struct {
	Title         string
	Contribution  Contribution
	CurrentAmount int64 // Amount in cents
	Remaining     int64 // Amount in cents
}

type CompletedEvent struct {
	Title         string
	RecipientID   int64
	TargetAmount  int64 // Amount in cents
	Contributors  int
	CompletedAt   time.Time
	CreatedBy     string
	FinalEmail    string // Contributor whose pledge completed the campaign
	CurrentAmount int64
}
