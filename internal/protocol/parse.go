package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vortexhq/vortex-voice/domain/entities"
)

// ErrDecode marks a malformed or unparseable inbound message. Such messages
// are discarded by the caller without any state change.
var ErrDecode = errors.New("message decode error")

// Inbound is the tagged union produced by parsing one inbound wire message.
// Only the fields relevant to Kind are populated.
type Inbound struct {
	Kind      Kind
	Timestamp float64

	// Text carries transcript text or a response text delta.
	Text string

	// Audio carries the decoded payload of a response_audio_delta fragment.
	Audio []byte

	// Queue carries a queue_update / queue_position_update payload.
	Queue *QueueUpdate

	// Match carries the unvalidated payload of a match-found-class message.
	Match *MatchPayload

	// Err carries the payload of an error message.
	Err *RemoteError
}

// QueueUpdate is a matchmaking queue position notification, surfaced as-is
type QueueUpdate struct {
	Position          int     `json:"position"`
	EstimatedWaitSecs float64 `json:"estimated_wait"`
}

// RemoteError is an error reported by the backend over either channel
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MatchPayload holds the raw fields of a match-found-class message before
// validation. Use BuildMatchRecord to validate and construct the immutable
// record.
type MatchPayload struct {
	MatchID      string            `json:"match_id"`
	SessionID    string            `json:"session_id"`
	RoomID       string            `json:"room_id"`
	CallToken    string            `json:"call_token"`
	Participants []json.RawMessage `json:"participants"`
	Topics       []string          `json:"topics"`
	Hashtags     []string          `json:"hashtags"`
}

type inboundEnvelope struct {
	Type      Kind    `json:"type"`
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text"`
	Delta     string  `json:"delta"`
	AudioData string  `json:"audio_data"`
	Code      string  `json:"code"`
	Message   string  `json:"message"`
}

// ParseInbound parses one inbound wire message into the tagged union.
// Malformed JSON, a missing type tag, or an undecodable audio payload yield
// an error wrapping ErrDecode. Unknown kinds parse successfully so the caller
// can log and ignore them.
func ParseInbound(data []byte) (*Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrDecode, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type field", ErrDecode)
	}

	msg := &Inbound{Kind: env.Type, Timestamp: env.Timestamp}

	switch env.Type {
	case KindTranscriptPartial, KindTranscriptFinal:
		msg.Text = env.Text

	case KindResponseTextDelta:
		msg.Text = env.Delta

	case KindResponseAudio:
		if env.AudioData == "" {
			return nil, fmt.Errorf("%w: audio fragment missing audio_data", ErrDecode)
		}
		audio, err := base64.StdEncoding.DecodeString(env.AudioData)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid audio_data encoding: %v", ErrDecode, err)
		}
		msg.Audio = audio

	case KindQueueUpdate, KindQueuePositionUpdate:
		var queue QueueUpdate
		if err := json.Unmarshal(data, &queue); err != nil {
			return nil, fmt.Errorf("%w: invalid queue update: %v", ErrDecode, err)
		}
		msg.Queue = &queue

	case KindMatchFound, KindAIMatchFound, KindTimeoutMatchFound:
		var payload MatchPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("%w: invalid match payload: %v", ErrDecode, err)
		}
		msg.Match = &payload

	case KindError:
		msg.Err = &RemoteError{Code: env.Code, Message: env.Message}
	}

	return msg, nil
}

// BuildMatchRecord validates a match payload and constructs the immutable
// match record. Missing required fields yield a validation error naming every
// absent field. Malformed participant entries are skipped individually; absent
// topics and hashtags become empty collections.
func BuildMatchRecord(payload *MatchPayload) (entities.MatchRecord, []string, error) {
	participants := make([]entities.Participant, 0, len(payload.Participants))
	var skipped []string
	for i, raw := range payload.Participants {
		var p entities.Participant
		if err := json.Unmarshal(raw, &p); err != nil {
			skipped = append(skipped, fmt.Sprintf("participant[%d]: %v", i, err))
			continue
		}
		if err := p.Validate(); err != nil {
			skipped = append(skipped, fmt.Sprintf("participant[%d]: %v", i, err))
			continue
		}
		participants = append(participants, p)
	}

	record, err := entities.NewMatchRecord(
		payload.MatchID,
		payload.SessionID,
		payload.RoomID,
		payload.CallToken,
		participants,
		payload.Topics,
		payload.Hashtags,
	)
	if err != nil {
		return entities.MatchRecord{}, skipped, err
	}
	return record, skipped, nil
}
