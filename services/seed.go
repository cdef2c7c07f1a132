package services

import (
	"context"
	"fmt"
)

// DemoMessage is one scripted message in the demo data set
type DemoMessage struct {
	SenderID string
	Text     string
}

// DemoConversation is a direct conversation with scripted messages
type DemoConversation struct {
	Members  [2]string
	Messages []DemoMessage
}

// DemoData is the rider/driver exchange used for local development
var DemoData = []DemoConversation{
	{
		Members: [2]string{"student-demo", "driver-1"},
		Messages: []DemoMessage{
			{SenderID: "driver-1", Text: "Yo! I'm parked near the Rappahannock deck entrance. Look for the silver Tesla."},
			{SenderID: "student-demo", Text: "Got it, crossing the street now! See ya in a sec."},
		},
	},
	{
		Members: [2]string{"student-demo", "driver-2"},
		Messages: []DemoMessage{
			{SenderID: "driver-2", Text: "On Johnson Center side, wearing a green cap."},
		},
	},
}

// Seed writes data through the regular service operations so every
// derived row (access, inbox order, preview) is populated. It returns the
// number of messages written.
func (s *ChatService) Seed(ctx context.Context, data []DemoConversation) (int, error) {
	written := 0
	for _, demo := range data {
		conv, _, err := s.StartConversation(ctx, StartConversationInput{
			CallerID: demo.Members[0],
			Members:  demo.Members[:],
		})
		if err != nil {
			return written, fmt.Errorf("failed to start conversation %v: %w", demo.Members, err)
		}
		for _, msg := range demo.Messages {
			if _, err := s.SendMessage(ctx, msg.SenderID, conv.ID, msg.Text); err != nil {
				return written, fmt.Errorf("failed to seed message in %s: %w", conv.ID, err)
			}
			written++
		}
	}
	return written, nil
}
