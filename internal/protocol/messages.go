// Package protocol defines the wire messages exchanged over the conversation
// and matchmaking channels. Payloads are UTF-8 JSON objects carrying a type
// tag and a float-seconds timestamp. Inbound payloads are parsed once at the
// channel boundary into a tagged union with required fields validated at
// parse time.
package protocol

import (
	"encoding/json"
	"time"
)

// Kind defines the type tag of a wire message
type Kind string

// Conversation channel message kinds
const (
	KindAuth              Kind = "auth"
	KindAuthenticated     Kind = "authenticated"
	KindStartSession      Kind = "start_session"
	KindSessionStarted    Kind = "session_started"
	KindUserMessage       Kind = "user_message"
	KindAudioChunk        Kind = "audio_chunk"
	KindTranscriptPartial Kind = "transcript_partial"
	KindTranscriptFinal   Kind = "transcript_final"
	KindSpeechStarted     Kind = "speech_started"
	KindSpeechStopped     Kind = "speech_stopped"
	KindResponseStarted   Kind = "response_started"
	KindResponseTextDelta Kind = "response_text_delta"
	KindResponseAudio     Kind = "response_audio_delta"
	KindResponseDone      Kind = "response_done"
	KindError             Kind = "error"
)

// Matchmaking channel message kinds
const (
	KindWelcome             Kind = "welcome"
	KindQueueUpdate         Kind = "queue_update"
	KindQueuePositionUpdate Kind = "queue_position_update"
	KindMatchFound          Kind = "match_found"
	KindAIMatchFound        Kind = "ai_match_found"
	KindTimeoutMatchFound   Kind = "timeout_match_found"
	KindPing                Kind = "ping"
	KindPong                Kind = "pong"
)

// IsMatchFound reports whether the kind is one of the semantically equivalent
// match-found events.
func (k Kind) IsMatchFound() bool {
	return k == KindMatchFound || k == KindAIMatchFound || k == KindTimeoutMatchFound
}

// Timestamp returns the current time as float seconds, the wire clock format.
func Timestamp() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// AuthMessage authenticates the conversation channel with a bearer credential
type AuthMessage struct {
	Type      Kind    `json:"type"`
	Token     string  `json:"token"`
	Timestamp float64 `json:"timestamp"`
}

// StartSessionMessage opens the AI conversation with matching context
type StartSessionMessage struct {
	Type      Kind     `json:"type"`
	SessionID string   `json:"session_id"`
	Topic     string   `json:"topic,omitempty"`
	Hashtags  []string `json:"hashtags,omitempty"`
	Language  string   `json:"language"`
	Timestamp float64  `json:"timestamp"`
}

// UserMessage triggers an agent turn from typed text
type UserMessage struct {
	Type      Kind    `json:"type"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
}

// AudioChunkMessage carries one outbound chunk of captured audio
type AudioChunkMessage struct {
	Type      Kind    `json:"type"`
	AudioData string  `json:"audio_data"` // base64 PCM16LE mono 24kHz
	Language  string  `json:"language"`
	Sequence  int64   `json:"sequence"`
	Timestamp float64 `json:"timestamp"`
}

// PongMessage acknowledges a matchmaking heartbeat
type PongMessage struct {
	Type      Kind    `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

// NewAuthMessage builds the serialized auth message
func NewAuthMessage(token string) ([]byte, error) {
	return json.Marshal(AuthMessage{Type: KindAuth, Token: token, Timestamp: Timestamp()})
}

// NewStartSessionMessage builds the serialized start-session message
func NewStartSessionMessage(sessionID, topic string, hashtags []string, language string) ([]byte, error) {
	return json.Marshal(StartSessionMessage{
		Type:      KindStartSession,
		SessionID: sessionID,
		Topic:     topic,
		Hashtags:  hashtags,
		Language:  language,
		Timestamp: Timestamp(),
	})
}

// NewUserMessage builds the serialized user turn trigger
func NewUserMessage(text string) ([]byte, error) {
	return json.Marshal(UserMessage{Type: KindUserMessage, Text: text, Timestamp: Timestamp()})
}

// NewAudioChunkMessage builds the serialized outbound audio chunk
func NewAudioChunkMessage(audioData, language string, sequence int64) ([]byte, error) {
	return json.Marshal(AudioChunkMessage{
		Type:      KindAudioChunk,
		AudioData: audioData,
		Language:  language,
		Sequence:  sequence,
		Timestamp: Timestamp(),
	})
}

// NewPongMessage builds the serialized heartbeat acknowledgment
func NewPongMessage() ([]byte, error) {
	return json.Marshal(PongMessage{Type: KindPong, Timestamp: Timestamp()})
}
