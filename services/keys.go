package services

import (
	"fmt"
	"sort"
	"strings"
)

// Key layout shared by the conversation store, membership index and message
// log. Timestamps are zero padded to 13 digits so byte order matches numeric
// order until the year 2286.
const (
	conversationPartitionPrefix = "conv#"
	conversationSortKey         = "meta"
	userPartitionPrefix         = "user#"
	messagePartitionPrefix      = "msgs#"
	accessSortPrefix            = "access#"
	inboxSortPrefix             = "inbox#"
	latestSortPrefix            = "latest#"
	directIDPrefix              = "dm#"
	groupIDPrefix               = "conv_"
	keySeparator                = "#"
	timestampWidth              = 13

	// MaxIdentityLength keeps the longest derived key, an inbox row of a
	// direct conversation, within the 255 character key columns
	MaxIdentityLength = 100
)

func conversationPK(conversationID string) string {
	return conversationPartitionPrefix + conversationID
}

func userPK(userID string) string {
	return userPartitionPrefix + userID
}

func messagesPK(conversationID string) string {
	return messagePartitionPrefix + conversationID
}

func accessSK(conversationID string) string {
	return accessSortPrefix + conversationID
}

func inboxSK(ts int64, conversationID string) string {
	return inboxSortPrefix + formatTimestamp(ts) + keySeparator + conversationID
}

func latestSK(conversationID string) string {
	return latestSortPrefix + conversationID
}

func messageSK(ts int64, suffix string) string {
	return formatTimestamp(ts) + keySeparator + suffix
}

func formatTimestamp(ts int64) string {
	return fmt.Sprintf("%0*d", timestampWidth, ts)
}

// DirectConversationID derives the id of the direct conversation between a
// and b. The result does not depend on argument order.
func DirectConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return directIDPrefix + strings.Join(pair, keySeparator)
}

// validateIdentity rejects ids that would make key derivation ambiguous
func validateIdentity(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalidInput("%s is required", field)
	}
	if len(id) > MaxIdentityLength {
		return invalidInput("%s must be at most %d characters", field, MaxIdentityLength)
	}
	if strings.Contains(id, keySeparator) {
		return invalidInput("%s must not contain %q", field, keySeparator)
	}
	return nil
}
