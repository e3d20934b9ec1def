package audio

import (
	"context"
	"sync"

	"github.com/vortexhq/vortex-voice/domain/entities"
	"github.com/vortexhq/vortex-voice/domain/repositories"
)

// MockAudioInput is an in-memory AudioInput for testing. Buffers pushed with
// Push are delivered to the registered callback while started.
type MockAudioInput struct {
	format entities.AudioFormat

	mu       sync.Mutex
	onBuffer func([]byte)
	started  bool
	startErr error
}

var _ repositories.AudioInput = (*MockAudioInput)(nil)

// NewMockAudioInput creates a mock input reporting the given native format
func NewMockAudioInput(format entities.AudioFormat) *MockAudioInput {
	return &MockAudioInput{format: format}
}

// FailStart makes the next Start call return err
func (m *MockAudioInput) FailStart(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// Start registers the buffer callback
func (m *MockAudioInput) Start(onBuffer func(samples []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.onBuffer = onBuffer
	m.started = true
	return nil
}

// Format reports the configured native format
func (m *MockAudioInput) Format() entities.AudioFormat {
	return m.format
}

// Stop halts buffer delivery
func (m *MockAudioInput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

// Close releases the mock
func (m *MockAudioInput) Close() error {
	return m.Stop()
}

// Started reports whether the input is currently delivering buffers
func (m *MockAudioInput) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Push delivers one raw buffer as if captured from hardware
func (m *MockAudioInput) Push(samples []byte) {
	m.mu.Lock()
	onBuffer := m.onBuffer
	started := m.started
	m.mu.Unlock()

	if started && onBuffer != nil {
		onBuffer(samples)
	}
}

// MockAudioOutput is an in-memory AudioOutput for testing. It records every
// unit played and can simulate per-unit failures or playback that lasts until
// cancelled.
type MockAudioOutput struct {
	mu        sync.Mutex
	played    [][]byte
	playErr   error
	holdUntil chan struct{}
	closed    bool
}

var _ repositories.AudioOutput = (*MockAudioOutput)(nil)

// NewMockAudioOutput creates a mock output
func NewMockAudioOutput() *MockAudioOutput {
	return &MockAudioOutput{}
}

// FailPlayback makes every subsequent Play call return err
func (m *MockAudioOutput) FailPlayback(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

// HoldPlayback makes Play block until the returned release function is called
// or the play context is cancelled.
func (m *MockAudioOutput) HoldPlayback() (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	m.holdUntil = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Play records the unit and simulates playback
func (m *MockAudioOutput) Play(ctx context.Context, wavData []byte) error {
	m.mu.Lock()
	m.played = append(m.played, append([]byte(nil), wavData...))
	err := m.playErr
	hold := m.holdUntil
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Played returns a snapshot of every unit handed to Play, in order
func (m *MockAudioOutput) Played() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.played))
	for i, unit := range m.played {
		out[i] = append([]byte(nil), unit...)
	}
	return out
}

// Close releases the mock
func (m *MockAudioOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
