package services

import (
	"context"
	"strings"

	"github.com/kendall-kelly/patriotgo-chat-api/kvstore"
	"github.com/kendall-kelly/patriotgo-chat-api/models"
	"github.com/kendall-kelly/patriotgo-chat-api/utils"
	"go.uber.org/zap"
)

// StartConversationInput is the request to create or reuse a conversation
type StartConversationInput struct {
	CallerID string
	Members  []string
	RideID   *string
	// Group forces a group conversation even for two members
	Group bool
}

// ChatService wires the conversation store, membership index and message
// log together for the request handlers
type ChatService struct {
	Conversations *ConversationStore
	Membership    *MembershipIndex
	Messages      *MessageLog
	store         kvstore.Store
}

// NewChatService builds all chat components on one store
func NewChatService(store kvstore.Store, clock Clock, logger *zap.Logger) *ChatService {
	conversations := NewConversationStore(store, clock, logger)
	membership := NewMembershipIndex(store, logger)
	return &ChatService{
		Conversations: conversations,
		Membership:    membership,
		Messages:      NewMessageLog(store, conversations, membership, clock, logger),
		store:         store,
	}
}

// StartConversation creates or reuses a conversation among the given
// members. Two members without a ride reference share one direct
// conversation; anything else becomes a new group. The boolean reports
// whether a conversation was created.
func (s *ChatService) StartConversation(ctx context.Context, in StartConversationInput) (*models.Conversation, bool, error) {
	members := utils.UniqueMembers(in.Members)
	if len(members) < 2 {
		return nil, false, invalidInput("members must be an array of 2+ userIds")
	}
	rideID := normalizeRideID(in.RideID)

	callerIncluded := false
	for _, m := range members {
		if m == in.CallerID {
			callerIncluded = true
			break
		}
	}
	if !callerIncluded {
		return nil, false, forbidden("You must be one of the conversation members")
	}

	var (
		conv    *models.Conversation
		created bool
		err     error
	)
	if len(members) == 2 && rideID == nil && !in.Group {
		conv, created, err = s.Conversations.CreateOrGetDirect(ctx, members[0], members[1], nil)
	} else {
		conv, err = s.Conversations.CreateGroup(ctx, members, rideID)
		created = err == nil
	}
	if err != nil {
		return nil, false, err
	}

	for _, member := range conv.Members {
		if err := s.Membership.GrantAccess(ctx, member, conv.ID, conv.RideID); err != nil {
			return nil, false, err
		}
		if !created {
			continue
		}
		if err := s.Membership.RecordActivity(ctx, member, conv.ID, conv.CreatedAt, "", conv.RideID); err != nil {
			return nil, false, err
		}
	}
	return conv, created, nil
}

// GetConversation returns the conversation if callerID is a member
func (s *ChatService) GetConversation(ctx context.Context, callerID, conversationID string) (*models.Conversation, error) {
	if conversationID == "" {
		return nil, invalidInput("conversationId required")
	}
	ok, err := s.Membership.HasAccess(ctx, callerID, conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, forbidden("Not a member of this conversation")
	}
	return s.Conversations.Get(ctx, conversationID)
}

// ListConversations returns the caller's inbox, newest first
func (s *ChatService) ListConversations(ctx context.Context, callerID string, limit int) ([]models.OrderRow, error) {
	return s.Membership.ListForUser(ctx, callerID, limit)
}

// SendMessage appends a message from callerID
func (s *ChatService) SendMessage(ctx context.Context, callerID, conversationID, text string) (*models.Message, error) {
	return s.Messages.Append(ctx, conversationID, callerID, text)
}

// ListMessages returns a page of messages for a member
func (s *ChatService) ListMessages(ctx context.Context, callerID, conversationID string, opts ListMessagesOptions) ([]models.Message, error) {
	return s.Messages.List(ctx, conversationID, callerID, opts)
}

// Ping checks the backing store
func (s *ChatService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return backendUnavailable("store is unreachable", err)
	}
	return nil
}

func normalizeRideID(rideID *string) *string {
	if rideID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*rideID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
