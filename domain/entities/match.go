package entities

import (
	"fmt"
	"strings"
)

// Participant describes one member of a matched call
type Participant struct {
	UserID        string `json:"user_id"`
	DisplayName   string `json:"display_name"`
	IsCurrentUser bool   `json:"is_current_user"`
}

// MatchRecord holds the validated identifiers and credentials needed to join
// a live multi-party call. It is immutable once constructed.
type MatchRecord struct {
	MatchID      string
	SessionID    string
	RoomID       string
	CallToken    string
	Participants []Participant
	Topics       []string
	Hashtags     []string
}

// NewMatchRecord constructs a match record, validating that every required
// field is present. The error names all missing fields at once.
func NewMatchRecord(matchID, sessionID, roomID, callToken string, participants []Participant, topics, hashtags []string) (MatchRecord, error) {
	var missing []string
	if matchID == "" {
		missing = append(missing, "match_id")
	}
	if sessionID == "" {
		missing = append(missing, "session_id")
	}
	if roomID == "" {
		missing = append(missing, "room_id")
	}
	if callToken == "" {
		missing = append(missing, "call_token")
	}
	if len(missing) > 0 {
		return MatchRecord{}, fmt.Errorf("match record missing required fields: %s", strings.Join(missing, ", "))
	}

	if topics == nil {
		topics = []string{}
	}
	if hashtags == nil {
		hashtags = []string{}
	}
	if participants == nil {
		participants = []Participant{}
	}

	return MatchRecord{
		MatchID:      matchID,
		SessionID:    sessionID,
		RoomID:       roomID,
		CallToken:    callToken,
		Participants: participants,
		Topics:       topics,
		Hashtags:     hashtags,
	}, nil
}

// Validate validates a participant entry
func (p Participant) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if p.DisplayName == "" {
		return fmt.Errorf("display_name is required")
	}
	return nil
}
