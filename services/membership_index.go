package services

import (
	"context"
	"errors"
	"strings"

	"github.com/kendall-kelly/patriotgo-chat-api/kvstore"
	"github.com/kendall-kelly/patriotgo-chat-api/models"
	"github.com/kendall-kelly/patriotgo-chat-api/utils"
	"go.uber.org/zap"
)

// inboxScanBatch is the number of order rows read per query while building
// an inbox page
const inboxScanBatch = 100

// MembershipIndex keeps rows per user and conversation in the user's
// partition: an access row that authorizes, one order row that sorts the
// user's inbox newest first, and a pointer naming the current order row.
type MembershipIndex struct {
	store  kvstore.Store
	logger *zap.Logger
}

// NewMembershipIndex creates a MembershipIndex backed by store
func NewMembershipIndex(store kvstore.Store, logger *zap.Logger) *MembershipIndex {
	return &MembershipIndex{
		store:  store,
		logger: logger.Named("membership"),
	}
}

// GrantAccess upserts the access row. Nothing is written when an identical
// row already exists.
func (m *MembershipIndex) GrantAccess(ctx context.Context, userID, conversationID string, rideID *string) error {
	if err := validateIdentity("userId", userID); err != nil {
		return err
	}
	if conversationID == "" {
		return invalidInput("conversationId is required")
	}

	row := models.AccessRow{UserID: userID, ConversationID: conversationID, RideID: rideID}

	existing, err := m.getAccess(ctx, userID, conversationID)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return backendUnavailable("failed to check membership", err)
	}
	if existing != nil && sameAccessRow(*existing, row) {
		return nil
	}

	item, err := kvstore.NewItem(userPK(userID), accessSK(conversationID), row)
	if err != nil {
		return backendUnavailable("failed to save membership", err)
	}
	if err := m.store.Put(ctx, item); err != nil {
		return backendUnavailable("failed to save membership", err)
	}
	return nil
}

// HasAccess reports whether userID holds an access row for the conversation
func (m *MembershipIndex) HasAccess(ctx context.Context, userID, conversationID string) (bool, error) {
	if userID == "" || conversationID == "" {
		return false, nil
	}
	_, err := m.getAccess(ctx, userID, conversationID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, backendUnavailable("failed to check membership", err)
	}
	return true, nil
}

// RecordActivity moves the conversation's order row to ts. The new row is
// written before the pointer and the superseded row is deleted last, so a
// failure part way leaves at most a duplicate that ListForUser skips.
// Activity older than the current row is ignored.
func (m *MembershipIndex) RecordActivity(ctx context.Context, userID, conversationID string, ts int64, previewText string, rideID *string) error {
	if err := validateIdentity("userId", userID); err != nil {
		return err
	}
	if conversationID == "" {
		return invalidInput("conversationId is required")
	}

	current, err := m.getPointer(ctx, userID, conversationID)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return backendUnavailable("failed to update inbox", err)
	}
	if current != nil && current.LastMessageAt > ts {
		return nil
	}

	sk := inboxSK(ts, conversationID)
	row := models.OrderRow{
		UserID:             userID,
		ConversationID:     conversationID,
		RideID:             rideID,
		LastMessagePreview: utils.TruncatePreview(previewText, models.PreviewMaxLength),
		LastMessageAt:      ts,
		SortKey:            sk,
	}
	item, err := kvstore.NewItem(userPK(userID), sk, row)
	if err != nil {
		return backendUnavailable("failed to update inbox", err)
	}
	if err := m.store.Put(ctx, item); err != nil {
		return backendUnavailable("failed to update inbox", err)
	}

	pointer := models.InboxPointer{ConversationID: conversationID, SortKey: sk, LastMessageAt: ts}
	item, err = kvstore.NewItem(userPK(userID), latestSK(conversationID), pointer)
	if err != nil {
		return backendUnavailable("failed to update inbox", err)
	}
	if err := m.store.Put(ctx, item); err != nil {
		return backendUnavailable("failed to update inbox", err)
	}

	if current != nil && current.SortKey != sk {
		if err := m.store.Delete(ctx, userPK(userID), current.SortKey); err != nil {
			m.logger.Warn("failed to prune superseded inbox row",
				zap.String("user_id", userID),
				zap.String("sk", current.SortKey),
				zap.Error(err),
			)
		}
	}
	return nil
}

// ListForUser returns up to limit inbox entries, newest first, one per
// conversation. Access rows and pointers never appear in the result. The
// partition holds about one order row per conversation, so the scan stops
// after roughly limit rows; leftover duplicates from interrupted or
// concurrent refreshes are skipped.
func (m *MembershipIndex) ListForUser(ctx context.Context, userID string, limit int) ([]models.OrderRow, error) {
	if err := validateIdentity("userId", userID); err != nil {
		return nil, err
	}
	limit = utils.ClampPageSize(limit)

	entries := make([]models.OrderRow, 0, limit)
	seen := make(map[string]struct{})
	q := kvstore.Query{
		PK:         userPK(userID),
		Prefix:     inboxSortPrefix,
		Descending: true,
		Limit:      inboxScanBatch,
	}

	for {
		page, err := m.store.Query(ctx, q)
		if err != nil {
			return nil, backendUnavailable("failed to list conversations", err)
		}

		for _, item := range page.Items {
			if strings.HasPrefix(item.SK, accessSortPrefix) {
				continue
			}
			var row models.OrderRow
			if err := item.Decode(&row); err != nil {
				m.logger.Warn("skipping unreadable inbox row",
					zap.String("user_id", userID),
					zap.String("sk", item.SK),
					zap.Error(err),
				)
				continue
			}
			if _, dup := seen[row.ConversationID]; dup {
				continue
			}
			seen[row.ConversationID] = struct{}{}
			row.SortKey = item.SK
			entries = append(entries, row)
			if len(entries) == limit {
				return entries, nil
			}
		}

		if page.LastKey == "" {
			return entries, nil
		}
		q.After = page.LastKey
	}
}

func (m *MembershipIndex) getAccess(ctx context.Context, userID, conversationID string) (*models.AccessRow, error) {
	item, err := m.store.Get(ctx, userPK(userID), accessSK(conversationID))
	if err != nil {
		return nil, err
	}
	var row models.AccessRow
	if err := item.Decode(&row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (m *MembershipIndex) getPointer(ctx context.Context, userID, conversationID string) (*models.InboxPointer, error) {
	item, err := m.store.Get(ctx, userPK(userID), latestSK(conversationID))
	if err != nil {
		return nil, err
	}
	var pointer models.InboxPointer
	if err := item.Decode(&pointer); err != nil {
		return nil, err
	}
	return &pointer, nil
}

func sameAccessRow(a, b models.AccessRow) bool {
	if a.UserID != b.UserID || a.ConversationID != b.ConversationID {
		return false
	}
	if a.RideID == nil || b.RideID == nil {
		return a.RideID == nil && b.RideID == nil
	}
	return *a.RideID == *b.RideID
}
