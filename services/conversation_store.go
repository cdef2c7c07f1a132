package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kendall-kelly/patriotgo-chat-api/kvstore"
	"github.com/kendall-kelly/patriotgo-chat-api/models"
	"github.com/kendall-kelly/patriotgo-chat-api/utils"
	"go.uber.org/zap"
)

// ConversationStore owns conversation records
type ConversationStore struct {
	store  kvstore.Store
	clock  Clock
	newID  func() string
	logger *zap.Logger
}

// NewConversationStore creates a ConversationStore backed by store
func NewConversationStore(store kvstore.Store, clock Clock, logger *zap.Logger) *ConversationStore {
	return &ConversationStore{
		store:  store,
		clock:  clock,
		newID:  uuid.NewString,
		logger: logger.Named("conversations"),
	}
}

// CreateOrGetDirect returns the direct conversation between memberA and
// memberB, creating it on first use. The boolean is true when this call
// created it. An existing conversation is returned unchanged.
func (s *ConversationStore) CreateOrGetDirect(ctx context.Context, memberA, memberB string, rideID *string) (*models.Conversation, bool, error) {
	if err := validateIdentity("memberA", memberA); err != nil {
		return nil, false, err
	}
	if err := validateIdentity("memberB", memberB); err != nil {
		return nil, false, err
	}
	if memberA == memberB {
		return nil, false, invalidInput("a direct conversation needs two different members")
	}

	id := DirectConversationID(memberA, memberB)
	existing, err := s.Get(ctx, id)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := s.clock.NowMillis()
	conv := &models.Conversation{
		ID:                 id,
		Kind:               models.ConversationKindDirect,
		Members:            []string{memberA, memberB},
		RideID:             rideID,
		CreatedAt:          now,
		LastMessageAt:      now,
		LastMessagePreview: "",
	}

	err = s.put(ctx, conv, kvstore.IfNotExists())
	if errors.Is(err, kvstore.ErrConditionFailed) {
		// another request created it between our read and write
		existing, err := s.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("created direct conversation", zap.String("conversation_id", id))
	return conv, true, nil
}

// CreateGroup always creates a new conversation with a random id. Members
// are de-duplicated and at least two are required.
func (s *ConversationStore) CreateGroup(ctx context.Context, members []string, rideID *string) (*models.Conversation, error) {
	members = utils.UniqueMembers(members)
	if len(members) < 2 {
		return nil, invalidInput("members must be an array of 2+ userIds")
	}
	for _, m := range members {
		if err := validateIdentity("member", m); err != nil {
			return nil, err
		}
	}

	now := s.clock.NowMillis()
	conv := &models.Conversation{
		ID:                 groupIDPrefix + s.newID(),
		Kind:               models.ConversationKindGroup,
		Members:            members,
		RideID:             rideID,
		CreatedAt:          now,
		LastMessageAt:      now,
		LastMessagePreview: "",
	}
	if err := s.put(ctx, conv, kvstore.IfNotExists()); err != nil {
		if errors.Is(err, kvstore.ErrConditionFailed) {
			return nil, backendUnavailable("failed to allocate conversation id", err)
		}
		return nil, err
	}

	s.logger.Info("created group conversation",
		zap.String("conversation_id", conv.ID),
		zap.Int("members", len(members)),
	)
	return conv, nil
}

// Get loads a conversation by id
func (s *ConversationStore) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if conversationID == "" {
		return nil, invalidInput("conversationId is required")
	}

	item, err := s.store.Get(ctx, conversationPK(conversationID), conversationSortKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, notFound("conversation not found")
	}
	if err != nil {
		return nil, backendUnavailable("failed to load conversation", err)
	}

	var conv models.Conversation
	if err := item.Decode(&conv); err != nil {
		return nil, backendUnavailable("failed to load conversation", err)
	}
	return &conv, nil
}

// TouchOnMessage records a new message on the conversation: lastMessageAt
// and the preview are replaced unless a newer message was already recorded.
// It returns the updated conversation. A missing conversation is a
// consistency error and is logged before NotFound is returned.
func (s *ConversationStore) TouchOnMessage(ctx context.Context, conversationID string, ts int64, previewText string) (*models.Conversation, error) {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Error("message sent to missing conversation",
				zap.String("conversation_id", conversationID),
				zap.Int64("ts", ts),
			)
		}
		return nil, err
	}

	if ts < conv.LastMessageAt && conv.LastMessagePreview != "" {
		return conv, nil
	}
	conv.LastMessageAt = ts
	conv.LastMessagePreview = utils.TruncatePreview(previewText, models.PreviewMaxLength)

	err = s.put(ctx, conv, kvstore.IfExists())
	if errors.Is(err, kvstore.ErrConditionFailed) {
		s.logger.Error("conversation disappeared during update",
			zap.String("conversation_id", conversationID),
		)
		return nil, notFound("conversation not found")
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ConversationStore) put(ctx context.Context, conv *models.Conversation, opts ...kvstore.PutOption) error {
	item, err := kvstore.NewItem(conversationPK(conv.ID), conversationSortKey, conv)
	if err != nil {
		return backendUnavailable("failed to save conversation", err)
	}
	if err := s.store.Put(ctx, item, opts...); err != nil {
		if errors.Is(err, kvstore.ErrConditionFailed) {
			return err
		}
		return backendUnavailable("failed to save conversation", err)
	}
	return nil
}
