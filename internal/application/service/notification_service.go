package service

import (
	"context"
	"fmt"

	"github.com/garyjia/deed-approval/internal/application/dispatcher"
	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/event"
)

// NotificationService turns form events into messages for the people involved
type NotificationService interface {
	// Register subscribes the notification handlers on d
	Register(d dispatcher.Dispatcher)
	// HandleEvent notifies the recipient of one event
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	accounts port.AccountDirectory
	notifier port.Notifier
	logger   Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(accounts port.AccountDirectory, notifier port.Notifier, logger Logger) NotificationService {
	return &notificationServiceImpl{
		accounts: accounts,
		notifier: notifier,
		logger:   logger,
	}
}

var notifiedEvents = []event.Type{
	event.TypeFormSubmitted,
	event.TypeFormAssigned,
	event.TypeFormCorrectionRequested,
	event.TypeFormVerified,
	event.TypeFormRejected,
	event.TypeFormFinalized,
	event.TypeFormLocked,
}

// Register subscribes one named handler per notified event type
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range notifiedEvents {
		d.Subscribe(t, "notify:"+t.String(), s.HandleEvent)
	}
}

// HandleEvent looks up the recipient and sends the message. Unknown or
// inactive recipients are skipped without error.
func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	recipientID := evt.GetPayloadString(event.KeySubmitterID)
	if evt.Type == event.TypeFormAssigned {
		recipientID = evt.GetPayloadString(event.KeyAssignedTo)
	}
	if recipientID == "" {
		s.logger.Warn("Event has no recipient", "event_type", evt.Type, "form_id", evt.FormID)
		return nil
	}

	account, err := s.accounts.Lookup(ctx, recipientID)
	if err != nil {
		s.logger.Error("Failed to look up recipient", "error", err, "recipient_id", recipientID)
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if account == nil || !account.Active {
		s.logger.Info("Skipping notification for unknown or inactive account",
			"recipient_id", recipientID, "event_type", evt.Type)
		return nil
	}

	title, body := buildMessage(evt)
	n := port.Notification{
		RecipientID: account.ID,
		LarkOpenID:  account.LarkOpenID,
		Title:       title,
		Body:        body,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Error("Failed to send notification",
			"error", err, "recipient_id", recipientID, "form_id", evt.FormID, "event_type", evt.Type)
		return fmt.Errorf("send notification: %w", err)
	}

	s.logger.Info("Notification sent",
		"recipient_id", recipientID,
		"form_id", evt.FormID,
		"event_type", evt.Type,
	)
	return nil
}

func buildMessage(evt *event.Event) (string, string) {
	title := evt.GetPayloadString(event.KeyTitle)
	if title == "" {
		title = evt.FormID
	}
	notes := evt.GetPayloadString(event.KeyNotes)
	stage := evt.GetPayloadString(event.KeyStage)

	var body string
	switch evt.Type {
	case event.TypeFormSubmitted:
		body = fmt.Sprintf("Your form %q has been submitted and is waiting for review.", title)
	case event.TypeFormAssigned:
		body = fmt.Sprintf("Form %q has been assigned to you.", title)
	case event.TypeFormCorrectionRequested:
		body = fmt.Sprintf("%s has requested corrections to your form %q: %s", stage, title, notes)
	case event.TypeFormVerified:
		body = fmt.Sprintf("Your form %q was approved at %s.", title, stage)
	case event.TypeFormRejected:
		body = fmt.Sprintf("Your form %q was rejected at %s: %s", title, stage, notes)
	case event.TypeFormFinalized:
		body = fmt.Sprintf("A final decision was recorded for your form %q: %s.", title, evt.GetPayloadString(event.KeyDecision))
	case event.TypeFormLocked:
		body = fmt.Sprintf("Your form %q is complete and locked. The final report is available.", title)
	default:
		body = fmt.Sprintf("Form %q was updated.", title)
	}

	return "Form update: " + title, body
}
