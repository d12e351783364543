package port

import (
	"context"

	"github.com/garyjia/deed-approval/internal/domain/entity"
)

// AccountDirectory resolves account ids to accounts. Lookup returns (nil, nil) for unknown ids.
type AccountDirectory interface {
	Lookup(ctx context.Context, id string) (*entity.Account, error)
}

// Notification is a message for one account
type Notification struct {
	RecipientID string
	LarkOpenID  string
	Title       string
	Body        string
}

// Notifier delivers notifications. Failures never block a workflow transition.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ReportRenderer turns a ReportArtifact into a downloadable document
type ReportRenderer interface {
	Render(ctx context.Context, report *entity.ReportArtifact) ([]byte, error)
	ContentType() string
	Extension() string
}
