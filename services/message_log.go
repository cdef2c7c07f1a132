package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/kendall-kelly/patriotgo-chat-api/kvstore"
	"github.com/kendall-kelly/patriotgo-chat-api/models"
	"github.com/kendall-kelly/patriotgo-chat-api/utils"
	"go.uber.org/zap"
)

// messageIDAttempts bounds retries when a generated message key is taken
const messageIDAttempts = 3

// ListMessagesOptions selects a page of a conversation's log
type ListMessagesOptions struct {
	Limit int
	// After, when set, keeps only messages with a timestamp strictly greater
	After *int64
	// AfterID, when set, keeps only messages sorted after this message id
	AfterID string
}

// MessageLog owns messages. Each conversation's log is an append-only
// partition sorted by timestamp.
type MessageLog struct {
	store         kvstore.Store
	conversations *ConversationStore
	membership    *MembershipIndex
	clock         Clock
	newSuffix     func() string
	logger        *zap.Logger
}

// NewMessageLog creates a MessageLog. It updates conversations and
// membership rows as part of Append.
func NewMessageLog(store kvstore.Store, conversations *ConversationStore, membership *MembershipIndex, clock Clock, logger *zap.Logger) *MessageLog {
	return &MessageLog{
		store:         store,
		conversations: conversations,
		membership:    membership,
		clock:         clock,
		newSuffix:     messageSuffix,
		logger:        logger.Named("messages"),
	}
}

// messageSuffix breaks ties between messages written in the same millisecond
func messageSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Append stores a message from senderID and fans the new preview out to the
// conversation and every member's inbox. Steps run in order and stop at the
// first failure; completed steps are not rolled back, and the next message
// in the conversation repeats the fan-out.
func (l *MessageLog) Append(ctx context.Context, conversationID, senderID, text string) (*models.Message, error) {
	if conversationID == "" || text == "" {
		return nil, invalidInput("conversationId, text required")
	}

	ok, err := l.membership.HasAccess(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, forbidden("Not a member of this conversation")
	}

	// 1. persist the message
	msg, err := l.persist(ctx, conversationID, senderID, text)
	if err != nil {
		return nil, err
	}
	log := l.logger.With(
		zap.String("conversation_id", conversationID),
		zap.String("message_id", msg.ID),
	)

	// 2 + 3. update the conversation preview and read its members
	preview := utils.TruncatePreview(text, models.PreviewMaxLength)
	conv, err := l.conversations.TouchOnMessage(ctx, conversationID, msg.Timestamp, preview)
	if err != nil {
		log.Error("message stored but conversation update failed", zap.Error(err))
		return nil, err
	}

	// 4. refresh access and inbox rows for every member
	for _, member := range conv.Members {
		if err := l.membership.GrantAccess(ctx, member, conversationID, conv.RideID); err != nil {
			log.Error("message stored but access refresh failed", zap.String("member", member), zap.Error(err))
			return nil, err
		}
		if err := l.membership.RecordActivity(ctx, member, conversationID, msg.Timestamp, preview, conv.RideID); err != nil {
			log.Error("message stored but inbox update failed", zap.String("member", member), zap.Error(err))
			return nil, err
		}
	}

	log.Debug("message appended", zap.Int("members", len(conv.Members)))
	return msg, nil
}

func (l *MessageLog) persist(ctx context.Context, conversationID, senderID, text string) (*models.Message, error) {
	ts := l.clock.NowMillis()

	for attempt := 0; attempt < messageIDAttempts; attempt++ {
		msg := &models.Message{
			ID:             messageSK(ts, l.newSuffix()),
			ConversationID: conversationID,
			Timestamp:      ts,
			SenderID:       senderID,
			Text:           text,
			Kind:           models.MessageKindText,
		}
		item, err := kvstore.NewItem(messagesPK(conversationID), msg.ID, msg)
		if err != nil {
			return nil, backendUnavailable("failed to save message", err)
		}

		err = l.store.Put(ctx, item, kvstore.IfNotExists())
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, kvstore.ErrConditionFailed) {
			return nil, backendUnavailable("failed to save message", err)
		}
	}
	return nil, backendUnavailable("failed to allocate message id", kvstore.ErrConditionFailed)
}

// List returns messages oldest first. The requester must be a member.
func (l *MessageLog) List(ctx context.Context, conversationID, requesterID string, opts ListMessagesOptions) ([]models.Message, error) {
	if conversationID == "" {
		return nil, invalidInput("conversationId required")
	}

	ok, err := l.membership.HasAccess(ctx, requesterID, conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, forbidden("Not a member of this conversation")
	}

	q := kvstore.Query{
		PK:    messagesPK(conversationID),
		Limit: utils.ClampPageSize(opts.Limit),
	}
	if opts.After != nil {
		if *opts.After < 0 {
			return nil, invalidInput("after must not be negative")
		}
		q.From = formatTimestamp(*opts.After + 1)
	}
	if opts.AfterID != "" {
		q.After = opts.AfterID
	}

	page, err := l.store.Query(ctx, q)
	if err != nil {
		return nil, backendUnavailable("failed to list messages", err)
	}

	messages := make([]models.Message, 0, len(page.Items))
	for _, item := range page.Items {
		var msg models.Message
		if err := item.Decode(&msg); err != nil {
			return nil, backendUnavailable("failed to list messages", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
