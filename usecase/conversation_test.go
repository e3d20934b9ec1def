package usecase

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vortexhq/vortex-voice/adapters/audio"
	"github.com/vortexhq/vortex-voice/domain/entities"
	"github.com/vortexhq/vortex-voice/internal/capture"
	"github.com/vortexhq/vortex-voice/internal/playback"
	"github.com/vortexhq/vortex-voice/internal/protocol"
	"github.com/vortexhq/vortex-voice/internal/wav"
)

type fakeChannel struct {
	mu     sync.Mutex
	sent   [][]byte
	closed int
}

func (f *fakeChannel) Send(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeChannel) sentKinds() []protocol.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]protocol.Kind, 0, len(f.sent))
	for _, raw := range f.sent {
		var env struct {
			Type protocol.Kind `json:"type"`
		}
		json.Unmarshal(raw, &env)
		kinds = append(kinds, env.Type)
	}
	return kinds
}

func (f *fakeChannel) countKind(kind protocol.Kind) int {
	n := 0
	for _, k := range f.sentKinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type recordingEvents struct {
	mu       sync.Mutex
	states   []entities.SessionState
	texts    []string
	speaking []bool
	queue    [][2]float64
	matches  []entities.MatchRecord
	ended    []error
	mmClosed []error
}

func (r *recordingEvents) OnStateChanged(state entities.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingEvents) OnAssistantText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *recordingEvents) OnSessionEnded(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, err)
}

func (r *recordingEvents) OnSpeakingChanged(speaking bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speaking = append(r.speaking, speaking)
}

func (r *recordingEvents) OnQueueUpdate(position int, estimatedWaitSecs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, [2]float64{float64(position), estimatedWaitSecs})
}

func (r *recordingEvents) OnMatchFound(record entities.MatchRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, record)
}

func (r *recordingEvents) OnMatchmakingClosed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mmClosed = append(r.mmClosed, err)
}

type conversationFixture struct {
	service *ConversationService
	channel *fakeChannel
	input   *audio.MockAudioInput
	output  *audio.MockAudioOutput
	events  *recordingEvents
	queue   *playback.Queue
}

// newConversationFixture builds a service in the Connected state with a fake
// transport, as if the dial and transport-open already happened.
func newConversationFixture(t *testing.T) *conversationFixture {
	t.Helper()

	session := entities.NewSession("user-1", "music", []string{"#jazz"}, "bearer-token")
	events := &recordingEvents{}
	output := audio.NewMockAudioOutput()
	queue := playback.NewQueue(output, events.OnSpeakingChanged, zap.NewNop())
	t.Cleanup(queue.Close)

	service := NewConversationService(session, queue, events, "en-US", zap.NewNop())
	input := audio.NewMockAudioInput(entities.TargetFormat)
	service.SetCapture(capture.NewConverter(input, "en-US", service.sendAudio, zap.NewNop()))

	ch := &fakeChannel{}
	service.ch = ch
	session.Transition(entities.SessionStateConnecting)
	session.Transition(entities.SessionStateConnected)

	return &conversationFixture{
		service: service,
		channel: ch,
		input:   input,
		output:  output,
		events:  events,
		queue:   queue,
	}
}

func wire(kind protocol.Kind, fields map[string]interface{}) []byte {
	body := map[string]interface{}{"type": string(kind), "timestamp": 1.0}
	for k, v := range fields {
		body[k] = v
	}
	raw, _ := json.Marshal(body)
	return raw
}

func TestStartSessionSentExactlyOnce(t *testing.T) {
	fx := newConversationFixture(t)

	fx.service.HandleMessage(wire(protocol.KindAuthenticated, nil))
	if fx.service.State() != entities.SessionStateAuthenticated {
		t.Errorf("Expected authenticated state, got %s", fx.service.State())
	}
	if got := fx.channel.countKind(protocol.KindStartSession); got != 1 {
		t.Fatalf("Expected 1 start_session, got %d", got)
	}

	// A repeat authenticated must not re-trigger the start message.
	fx.service.HandleMessage(wire(protocol.KindAuthenticated, nil))
	if got := fx.channel.countKind(protocol.KindStartSession); got != 1 {
		t.Errorf("Expected start_session to stay at 1, got %d", got)
	}
}

func TestSessionStartedStartsCapture(t *testing.T) {
	fx := newConversationFixture(t)

	fx.service.HandleMessage(wire(protocol.KindAuthenticated, nil))
	fx.service.HandleMessage(wire(protocol.KindSessionStarted, nil))

	if fx.service.State() != entities.SessionStateActive {
		t.Errorf("Expected active state, got %s", fx.service.State())
	}
	if !fx.input.Started() {
		t.Error("Expected capture to start with the session")
	}

	fx.input.Push(make([]byte, 480*2))
	if got := fx.channel.countKind(protocol.KindAudioChunk); got != 1 {
		t.Errorf("Expected 1 audio chunk, got %d", got)
	}

	fx.service.SetMuted(true)
	fx.input.Push(make([]byte, 480*2))
	if got := fx.channel.countKind(protocol.KindAudioChunk); got != 1 {
		t.Errorf("Expected mute to stop chunk emission, got %d", got)
	}
}

func TestResponseTextAccumulation(t *testing.T) {
	fx := newConversationFixture(t)

	fx.service.HandleMessage(wire(protocol.KindResponseTextDelta, map[string]interface{}{"delta": "Hi"}))
	fx.service.HandleMessage(wire(protocol.KindResponseTextDelta, map[string]interface{}{"delta": " there"}))

	if got := fx.service.ResponseText(); got != "Hi there" {
		t.Errorf("Expected running text 'Hi there', got %q", got)
	}

	fx.events.mu.Lock()
	texts := append([]string(nil), fx.events.texts...)
	fx.events.mu.Unlock()
	if len(texts) != 2 || texts[0] != "Hi" || texts[1] != "Hi there" {
		t.Errorf("Expected observer snapshots [Hi, Hi there], got %v", texts)
	}

	// A final transcript prepares the buffer for the next AI turn.
	fx.service.HandleMessage(wire(protocol.KindTranscriptFinal, map[string]interface{}{"text": "user said something"}))
	if got := fx.service.ResponseText(); got != "" {
		t.Errorf("Expected cleared buffer, got %q", got)
	}
}

func TestResponseAudioFlow(t *testing.T) {
	fx := newConversationFixture(t)

	frag := func(payload string) []byte {
		return wire(protocol.KindResponseAudio, map[string]interface{}{
			"audio_data": base64.StdEncoding.EncodeToString([]byte(payload)),
		})
	}

	fx.service.HandleMessage(wire(protocol.KindResponseStarted, nil))
	fx.service.HandleMessage(frag("Hi, "))
	fx.service.HandleMessage(frag("Vortex"))
	fx.service.HandleMessage(wire(protocol.KindResponseDone, nil))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(fx.output.Played()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	played := fx.output.Played()
	if len(played) != 1 {
		t.Fatalf("Expected 1 playback unit, got %d", len(played))
	}
	if string(played[0][wav.HeaderSize:]) != "Hi, Vortex" {
		t.Errorf("Expected reassembled payload 'Hi, Vortex', got %q", played[0][wav.HeaderSize:])
	}
}

func TestResponseStartedFlushesQueuedAudio(t *testing.T) {
	fx := newConversationFixture(t)
	release := fx.output.HoldPlayback()
	defer release()

	frag := base64.StdEncoding.EncodeToString([]byte("old response"))
	fx.service.HandleMessage(wire(protocol.KindResponseAudio, map[string]interface{}{"audio_data": frag}))
	fx.service.HandleMessage(wire(protocol.KindResponseDone, nil))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(fx.output.Played()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	fx.service.HandleMessage(wire(protocol.KindResponseStarted, nil))

	if fx.queue.PendingUnits() != 0 {
		t.Error("Expected response_started to clear the queue")
	}
}

func TestBackendErrorDoesNotCloseChannel(t *testing.T) {
	fx := newConversationFixture(t)

	fx.service.HandleMessage(wire(protocol.KindError, map[string]interface{}{
		"code":    "agent_overloaded",
		"message": "try later",
	}))

	if fx.service.State() == entities.SessionStateClosed {
		t.Error("Expected error message not to close the session")
	}
	if fx.channel.closed != 0 {
		t.Error("Expected channel to stay open")
	}
}

func TestUnknownAndUndecodableMessagesIgnored(t *testing.T) {
	fx := newConversationFixture(t)

	fx.service.HandleMessage([]byte(`{broken`))
	fx.service.HandleMessage(wire("mystery_event", nil))

	if fx.service.State() != entities.SessionStateConnected {
		t.Errorf("Expected state unchanged, got %s", fx.service.State())
	}
}

func TestTransportCloseTriggersTeardown(t *testing.T) {
	fx := newConversationFixture(t)

	fx.service.HandleMessage(wire(protocol.KindAuthenticated, nil))
	fx.service.HandleMessage(wire(protocol.KindSessionStarted, nil))

	transportErr := errors.New("connection reset")
	fx.service.HandleClosed(transportErr)

	if fx.service.State() != entities.SessionStateClosed {
		t.Errorf("Expected closed state, got %s", fx.service.State())
	}
	if fx.input.Started() {
		t.Error("Expected capture stopped on teardown")
	}

	fx.events.mu.Lock()
	ended := append([]error(nil), fx.events.ended...)
	fx.events.mu.Unlock()
	if len(ended) != 1 || !errors.Is(ended[0], transportErr) {
		t.Errorf("Expected one session-ended notification with the transport error, got %v", ended)
	}

	// Repeated teardown is a no-op.
	fx.service.HandleClosed(transportErr)
	fx.service.Close()
	fx.events.mu.Lock()
	endedCount := len(fx.events.ended)
	fx.events.mu.Unlock()
	if endedCount != 1 {
		t.Errorf("Expected exactly one session-ended notification, got %d", endedCount)
	}
}

func TestSendUserMessage(t *testing.T) {
	fx := newConversationFixture(t)

	if err := fx.service.SendUserMessage("hello"); err != nil {
		t.Fatalf("Failed to send user message: %v", err)
	}
	if got := fx.channel.countKind(protocol.KindUserMessage); got != 1 {
		t.Errorf("Expected 1 user message, got %d", got)
	}

	disconnected := NewConversationService(
		entities.NewSession("user-2", "", nil, "token"),
		fx.queue, fx.events, "en-US", zap.NewNop(),
	)
	if err := disconnected.SendUserMessage("hello"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestFragmentsBeforeResponseStartedDoNotMerge(t *testing.T) {
	fx := newConversationFixture(t)
	release := fx.output.HoldPlayback()
	defer release()

	// First response plays and a second response's fragments arrive only
	// after its response_started, which flushes everything pending.
	first := base64.StdEncoding.EncodeToString([]byte("first"))
	fx.service.HandleMessage(wire(protocol.KindResponseAudio, map[string]interface{}{"audio_data": first}))
	fx.service.HandleMessage(wire(protocol.KindResponseStarted, nil))

	second := base64.StdEncoding.EncodeToString([]byte("second"))
	fx.service.HandleMessage(wire(protocol.KindResponseAudio, map[string]interface{}{"audio_data": second}))
	fx.service.HandleMessage(wire(protocol.KindResponseDone, nil))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(fx.output.Played()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	played := fx.output.Played()
	if len(played) != 1 {
		t.Fatalf("Expected 1 unit, got %d", len(played))
	}
	if string(played[0][wav.HeaderSize:]) != "second" {
		t.Errorf("Expected only the second response's bytes, got %q", played[0][wav.HeaderSize:])
	}
}

func TestAudioChunkSequenceInPayload(t *testing.T) {
	fx := newConversationFixture(t)
	fx.service.HandleMessage(wire(protocol.KindAuthenticated, nil))
	fx.service.HandleMessage(wire(protocol.KindSessionStarted, nil))

	for i := 0; i < 3; i++ {
		fx.input.Push(make([]byte, 480*2))
	}

	fx.channel.mu.Lock()
	defer fx.channel.mu.Unlock()
	var sequences []int64
	for _, raw := range fx.channel.sent {
		var chunk protocol.AudioChunkMessage
		if err := json.Unmarshal(raw, &chunk); err != nil || chunk.Type != protocol.KindAudioChunk {
			continue
		}
		sequences = append(sequences, chunk.Sequence)
	}
	if fmt.Sprint(sequences) != "[0 1 2]" {
		t.Errorf("Expected sequences [0 1 2], got %v", sequences)
	}
}
