// Package playback reassembles streamed synthesized-speech fragments into
// playable units and serializes their playback.
package playback

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vortexhq/vortex-voice/domain/entities"
	"github.com/vortexhq/vortex-voice/domain/repositories"
	"github.com/vortexhq/vortex-voice/internal/wav"
)

// Queue accumulates fragments for the current response, finalizes them into
// WAV-wrapped playback units, and plays queued units strictly one at a time
// in creation order on a dedicated goroutine. All fragment operations are
// serialized under one lock so fragments never interleave across responses.
type Queue struct {
	output     repositories.AudioOutput
	logger     *zap.Logger
	onSpeaking func(speaking bool)

	mu            sync.Mutex
	cond          *sync.Cond
	accumulator   []byte
	units         [][]byte
	cancelCurrent context.CancelFunc
	speaking      bool
	closed        bool

	speakCh  chan bool
	loopDone chan struct{}
}

// NewQueue creates a playback queue and starts its playback loop. onSpeaking
// is invoked whenever the speaking indicator changes; it may be nil.
func NewQueue(output repositories.AudioOutput, onSpeaking func(bool), logger *zap.Logger) *Queue {
	q := &Queue{
		output:     output,
		logger:     logger,
		onSpeaking: onSpeaking,
		speakCh:    make(chan bool, 16),
		loopDone:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.notifyLoop()
	go q.playLoop()
	return q
}

// notifyLoop delivers speaking-indicator changes in order, outside the lock
func (q *Queue) notifyLoop() {
	for speaking := range q.speakCh {
		if q.onSpeaking != nil {
			q.onSpeaking(speaking)
		}
	}
}

// AddFragment appends raw sample bytes to the current response's accumulator
func (q *Queue) AddFragment(fragment []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.accumulator = append(q.accumulator, fragment...)
}

// Finalize wraps the accumulated samples in the synthesized-speech container
// header, enqueues the result as one playback unit, and clears the
// accumulator for the next response. An empty accumulator produces no unit.
func (q *Queue) Finalize() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.accumulator) == 0 {
		q.accumulator = nil
		return
	}

	unit := wav.Encode(q.accumulator, entities.TargetFormat.SampleRate, entities.TargetFormat.Channels, 16)
	q.accumulator = nil
	q.units = append(q.units, unit)
	q.cond.Signal()
}

// Flush stops any in-progress unit, empties the queue, and clears the
// accumulator. This is what prevents two responses from ever overlapping.
func (q *Queue) Flush() {
	q.mu.Lock()
	q.accumulator = nil
	q.units = nil
	cancel := q.cancelCurrent
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Speaking reports whether a unit is queued or playing
func (q *Queue) Speaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.speaking
}

// PendingUnits reports the number of queued, not-yet-played units
func (q *Queue) PendingUnits() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.units)
}

// Close flushes the queue and stops the playback loop. Safe to call any
// number of times.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.accumulator = nil
	q.units = nil
	cancel := q.cancelCurrent
	q.cond.Signal()
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-q.loopDone
	close(q.speakCh)
}

// playLoop dequeues and plays exactly one unit at a time. A unit that fails
// to play is skipped and the loop advances; when the queue empties the
// speaking indicator is cleared.
func (q *Queue) playLoop() {
	defer close(q.loopDone)

	for {
		q.mu.Lock()
		for len(q.units) == 0 && !q.closed {
			q.setSpeakingLocked(false)
			q.cond.Wait()
		}
		if q.closed {
			q.setSpeakingLocked(false)
			q.mu.Unlock()
			return
		}

		unit := q.units[0]
		q.units = q.units[1:]
		ctx, cancel := context.WithCancel(context.Background())
		q.cancelCurrent = cancel
		q.setSpeakingLocked(true)
		q.mu.Unlock()

		if err := q.output.Play(ctx, unit); err != nil {
			q.logger.Warn("Skipping playback unit",
				zap.Int("size", len(unit)),
				zap.Error(err))
		}

		cancel()
		q.mu.Lock()
		q.cancelCurrent = nil
		q.mu.Unlock()
	}
}

// setSpeakingLocked updates the speaking indicator; callers hold q.mu.
func (q *Queue) setSpeakingLocked(speaking bool) {
	if q.speaking == speaking {
		return
	}
	q.speaking = speaking
	select {
	case q.speakCh <- speaking:
	default:
		// Indicator consumers only care about the latest state.
	}
}
