// Package notifications delivers out-of-band messages about access events.
// Delivery is best effort: decision outcomes never depend on it.
package notifications

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vngrid/caseguard/internal/models"
	"github.com/vngrid/caseguard/pkg/logger"
	"github.com/vngrid/caseguard/pkg/mail"
)

// Notifier informs users about the lifecycle of their access requests.
type Notifier interface {
	// RequestHandled tells the requester their access request was decided.
	RequestHandled(ctx context.Context, request *models.AccessRequest, requester *models.User) error
}

// NewNoop returns a Notifier that silently discards every notification.
func NewNoop() Notifier {
	return noopNotifier{}
}

type noopNotifier struct{}

func (noopNotifier) RequestHandled(context.Context, *models.AccessRequest, *models.User) error {
	return nil
}

type mailNotifier struct {
	mailer mail.Mailer
	log    *zap.Logger
}

// NewMailNotifier returns a Notifier delivering plain-text emails through the
// given mailer. A disabled mailer is tolerated and logged at debug level.
func NewMailNotifier(mailer mail.Mailer) (Notifier, error) {
	if mailer == nil {
		return nil, errors.New("notifications: mailer is required")
	}
	return &mailNotifier{
		mailer: mailer,
		log:    logger.WithModule("notifications"),
	}, nil
}

func (n *mailNotifier) RequestHandled(ctx context.Context, request *models.AccessRequest, requester *models.User) error {
	if requester.Email == "" {
		n.log.Debug("requester has no email address, skipping notification",
			zap.String("request_id", request.ID),
			zap.String("requester", requester.Username))
		return nil
	}

	var subject, verdict string
	switch request.Result {
	case models.AccessRequestApproved:
		subject = "Access request approved"
		verdict = "approved"
	case models.AccessRequestRejected:
		subject = "Access request rejected"
		verdict = "rejected"
	default:
		return fmt.Errorf("notifications: request %s is unhandled", request.ID)
	}

	body := fmt.Sprintf(
		"Dear %s,\n\nYour access request for %s has been %s.",
		requester.FullName(), request.ObjectURL, verdict,
	)
	if request.HandlerComment != "" {
		body += fmt.Sprintf("\n\nComment from the handler:\n%s", request.HandlerComment)
	}
	if request.Result == models.AccessRequestApproved && request.EndDate != nil {
		body += fmt.Sprintf("\n\nYour access expires on %s.", request.EndDate.Format("2006-01-02"))
	}
	body += "\n"

	err := n.mailer.Send(ctx, mail.Message{
		To:      []string{requester.Email},
		Subject: subject,
		Body:    body,
	})
	if errors.Is(err, mail.ErrSMTPDisabled) {
		n.log.Debug("smtp disabled, dropping notification",
			zap.String("request_id", request.ID))
		return nil
	}
	return err
}
