package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/vortexhq/vortex-voice/domain/entities"
	"github.com/vortexhq/vortex-voice/domain/repositories"
)

const (
	captureSampleRate = 48000
	capturePeriodMs   = 20
)

// MalgoInput implements AudioInput on top of the miniaudio bindings. The
// device captures 16-bit mono at the hardware-friendly 48 kHz; downstream
// conversion resamples to the protocol rate.
type MalgoInput struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	format entities.AudioFormat
	logger *zap.Logger

	mu       sync.Mutex
	onBuffer func([]byte)
}

var _ repositories.AudioInput = (*MalgoInput)(nil)

// NewMalgoInput initializes the audio context and capture device
func NewMalgoInput(logger *zap.Logger) (*MalgoInput, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	m := &MalgoInput{
		ctx:    ctx,
		logger: logger,
		format: entities.AudioFormat{
			SampleRate: captureSampleRate,
			Channels:   1,
			Encoding:   entities.EncodingInt16,
		},
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = captureSampleRate
	deviceConfig.PeriodSizeInMilliseconds = capturePeriodMs

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			m.mu.Lock()
			onBuffer := m.onBuffer
			m.mu.Unlock()
			if onBuffer != nil {
				onBuffer(pInputSamples)
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to init capture device: %w", err)
	}
	m.device = device

	return m, nil
}

// Start begins delivering captured buffers to onBuffer
func (m *MalgoInput) Start(onBuffer func(samples []byte)) error {
	m.mu.Lock()
	m.onBuffer = onBuffer
	m.mu.Unlock()

	if err := m.device.Start(); err != nil {
		m.mu.Lock()
		m.onBuffer = nil
		m.mu.Unlock()
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

// Format reports the device capture format
func (m *MalgoInput) Format() entities.AudioFormat {
	return m.format
}

// Stop halts buffer delivery
func (m *MalgoInput) Stop() error {
	m.mu.Lock()
	m.onBuffer = nil
	m.mu.Unlock()

	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

// Close releases the device and audio context
func (m *MalgoInput) Close() error {
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		if err := m.ctx.Uninit(); err != nil {
			m.logger.Warn("Failed to uninit audio context", zap.Error(err))
		}
		m.ctx.Free()
		m.ctx = nil
	}
	return nil
}
