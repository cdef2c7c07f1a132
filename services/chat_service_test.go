package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kendall-kelly/patriotgo-chat-api/kvstore"
	"github.com/kendall-kelly/patriotgo-chat-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStartConversation(t *testing.T) {
	ride := "ride-1"
	blank := "   "

	tests := []struct {
		name        string
		input       StartConversationInput
		wantKind    string
		wantErr     error
		wantRide    *string
		wantMembers int
	}{
		{
			name:        "two members become a direct conversation",
			input:       StartConversationInput{CallerID: "rider", Members: []string{"rider", "driver"}},
			wantKind:    models.ConversationKindDirect,
			wantMembers: 2,
		},
		{
			name:        "blank ride reference is ignored",
			input:       StartConversationInput{CallerID: "rider", Members: []string{"rider", "driver"}, RideID: &blank},
			wantKind:    models.ConversationKindDirect,
			wantMembers: 2,
		},
		{
			name:        "ride reference makes a group",
			input:       StartConversationInput{CallerID: "rider", Members: []string{"rider", "driver"}, RideID: &ride},
			wantKind:    models.ConversationKindGroup,
			wantRide:    &ride,
			wantMembers: 2,
		},
		{
			name:        "forced group",
			input:       StartConversationInput{CallerID: "rider", Members: []string{"rider", "driver"}, Group: true},
			wantKind:    models.ConversationKindGroup,
			wantMembers: 2,
		},
		{
			name:        "three members",
			input:       StartConversationInput{CallerID: "rider", Members: []string{"rider", "driver", "rider-2"}},
			wantKind:    models.ConversationKindGroup,
			wantMembers: 3,
		},
		{
			name:    "caller must be a member",
			input:   StartConversationInput{CallerID: "stranger", Members: []string{"rider", "driver"}},
			wantErr: ErrForbidden,
		},
		{
			name:    "too few members",
			input:   StartConversationInput{CallerID: "rider", Members: []string{"rider", "rider"}},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "no members",
			input:   StartConversationInput{CallerID: "rider"},
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, newStepClock(1_700_000_000_000))

			conv, created, err := svc.StartConversation(context.Background(), tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, conv)
				return
			}

			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, tt.wantKind, conv.Kind)
			assert.Len(t, conv.Members, tt.wantMembers)
			if tt.wantRide == nil {
				assert.Nil(t, conv.RideID)
			} else {
				require.NotNil(t, conv.RideID)
				assert.Equal(t, *tt.wantRide, *conv.RideID)
			}
		})
	}
}

func TestStartConversation_IndexesEveryMember(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newStepClock(1_700_000_000_000))

	conv, created, err := svc.StartConversation(ctx, StartConversationInput{
		CallerID: "u1",
		Members:  []string{"u1", "u2", "u3"},
	})
	require.NoError(t, err)
	require.True(t, created)

	for _, member := range conv.Members {
		ok, err := svc.Membership.HasAccess(ctx, member, conv.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		inbox, err := svc.ListConversations(ctx, member, 30)
		require.NoError(t, err)
		require.Len(t, inbox, 1)
		assert.Equal(t, conv.ID, inbox[0].ConversationID)
		assert.Empty(t, inbox[0].LastMessagePreview)
		assert.Equal(t, conv.CreatedAt, inbox[0].LastMessageAt)
	}
}

func TestStartConversation_ExistingDirect(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, newStepClock(1_700_000_000_000))

	first, created, err := svc.StartConversation(ctx, StartConversationInput{CallerID: "rider", Members: []string{"rider", "driver"}})
	require.NoError(t, err)
	require.True(t, created)

	_, err = svc.SendMessage(ctx, "rider", first.ID, "on my way")
	require.NoError(t, err)

	second, created, err := svc.StartConversation(ctx, StartConversationInput{CallerID: "driver", Members: []string{"driver", "rider"}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "on my way", second.LastMessagePreview)

	inbox, err := svc.ListConversations(ctx, "driver", 30)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "on my way", inbox[0].LastMessagePreview, "reopening does not push an empty preview to the top")

	page, err := store.Query(ctx, kvstore.Query{PK: userPK("driver")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		accessSK(first.ID),
		inboxSK(inbox[0].LastMessageAt, first.ID),
		latestSK(first.ID),
	}, itemSortKeys(page), "the creation order row was replaced by the message row")
}

func TestGetConversation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newStepClock(1_700_000_000_000))
	conv := startDirect(t, svc, "rider", "driver")

	got, err := svc.GetConversation(ctx, "driver", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = svc.GetConversation(ctx, "stranger", conv.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.GetConversation(ctx, "rider", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestChatService_Ping(t *testing.T) {
	store := newTestStore(t)
	svc := NewChatService(store, NewSystemClock(), zaptest.NewLogger(t))
	require.NoError(t, svc.Ping(context.Background()))

	require.NoError(t, store.Close())
	err := svc.Ping(context.Background())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, CodeBackendUnavailable, CodeOf(err))
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newStepClock(1_700_000_000_000))

	written, err := svc.Seed(ctx, DemoData)
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	inbox, err := svc.ListConversations(ctx, "student-demo", 30)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, DirectConversationID("student-demo", "driver-2"), inbox[0].ConversationID)
	assert.Equal(t, "On Johnson Center side, wearing a green cap.", inbox[0].LastMessagePreview)

	msgs, err := svc.ListMessages(ctx, "driver-1", DirectConversationID("student-demo", "driver-1"), ListMessagesOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "driver-1", msgs[0].SenderID)
	assert.Equal(t, "student-demo", msgs[1].SenderID)
	assert.Equal(t, "Got it, crossing the street now! See ya in a sec.", msgs[1].Text)
}

func TestChatError(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("listing: %w", backendUnavailable("failed to list messages", cause))

	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, CodeBackendUnavailable, CodeOf(err))
	assert.Contains(t, err.Error(), "connection reset")

	assert.Equal(t, CodeForbidden, CodeOf(forbidden("no")))
	assert.Equal(t, CodeInvalidInput, CodeOf(invalidInput("bad %s", "limit")))
	assert.Equal(t, "bad limit", invalidInput("bad %s", "limit").Error())
	assert.Equal(t, CodeBackendUnavailable, CodeOf(errors.New("plain")))
}
