package eventlogger

import (
	"strconv"

	"github.com/billbatista/acasinha-gifts/groupgift"
)

// Notifier turns group gift notification intents into events on a Worker.
type Notifier struct {
	worker *Worker
}

func NewNotifier(worker *Worker) *Notifier {
	return &Notifier{worker: worker}
}

func (n *Notifier) Notify(gn groupgift.Notification) {
	n.worker.Log(ToEvent(gn))
}

func ToEvent(gn groupgift.Notification) Event {
	return NewEvent(
		WithType(string(gn.Kind)),
		WithData(gn.Payload),
		WithMetadata("group_gift_id", strconv.FormatInt(gn.CampaignID, 10)),
	)
}
