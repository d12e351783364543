package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/deed-approval/internal/application/port"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

const (
	receiveIDTypeOpenID = "open_id"
	msgTypeText         = "text"
)

type createMessageFunc func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error)

// Messenger implements port.Notifier by sending Lark text messages
type Messenger struct {
	create createMessageFunc
	logger *zap.Logger
}

// NewMessenger creates a new Lark message sender
func NewMessenger(sdk *SDKClient, logger *zap.Logger) *Messenger {
	client := sdk.GetClient()
	return &Messenger{
		create: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
			return client.Im.Message.Create(ctx, req)
		},
		logger: logger,
	}
}

// Notify sends the notification to the recipient's Lark open id.
// Recipients without one are skipped.
func (m *Messenger) Notify(ctx context.Context, n port.Notification) error {
	if n.LarkOpenID == "" {
		m.logger.Debug("Recipient has no Lark account, skipping",
			zap.String("recipient_id", n.RecipientID))
		return nil
	}

	content, err := textContent(n)
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDTypeOpenID).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(n.LarkOpenID).
			MsgType(msgTypeText).
			Content(content).
			Build()).
		Build()

	resp, err := m.create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("recipient_id", n.RecipientID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("recipient_id", n.RecipientID))
	return nil
}

// textContent builds the JSON content of a Lark text message
func textContent(n port.Notification) (string, error) {
	text := n.Body
	if n.Title != "" {
		text = n.Title + "\n" + n.Body
	}
	data, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal message content: %w", err)
	}
	return string(data), nil
}

// LogNotifier implements port.Notifier by logging, for deployments without Lark
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification
func (l *LogNotifier) Notify(ctx context.Context, n port.Notification) error {
	l.logger.Info("Notification",
		zap.String("recipient_id", n.RecipientID),
		zap.String("title", n.Title),
		zap.String("body", n.Body))
	return nil
}
