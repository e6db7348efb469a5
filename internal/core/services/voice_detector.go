package services

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// AudioActivityDetector turns periodic microphone energy samples into a
// debounced speaking flag: instant attack, delayed release. The first
// sample at or above the threshold flips speaking on immediately; speaking
// only flips off after a contiguous silenceTimeout window below the
// threshold, and any loud sample inside that window restarts it.
//
// The detector owns exactly one timer. Sample arrives from the media
// engine's capture goroutine; the change callback is invoked with no
// internal lock held so the receiver may take its own.
type AudioActivityDetector struct {
	threshold      float64
	silenceTimeout time.Duration
	log            *zap.SugaredLogger

	mu           sync.Mutex
	speaking     bool
	silenceTimer *time.Timer
	closed       bool
	onChange     func(speaking bool)
}

func NewAudioActivityDetector(threshold float64, silenceTimeout time.Duration, log *zap.SugaredLogger) *AudioActivityDetector {
	return &AudioActivityDetector{
		threshold:      threshold,
		silenceTimeout: silenceTimeout,
		log:            log,
	}
}

// OnChange registers the speaking-transition callback. Must be set before
// the first Sample.
func (d *AudioActivityDetector) OnChange(fn func(speaking bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// Speaking reports the current debounced state.
func (d *AudioActivityDetector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// Sample feeds one normalized (0.0-1.0) energy measurement.
func (d *AudioActivityDetector) Sample(level float64) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	if level >= d.threshold {
		// loud sample cancels any pending release
		if d.silenceTimer != nil {
			d.silenceTimer.Stop()
			d.silenceTimer = nil
		}
		if d.speaking {
			d.mu.Unlock()
			return
		}
		d.speaking = true
		fn := d.onChange
		d.mu.Unlock()

		d.log.Debugw("speaking started", "level", level)
		if fn != nil {
			fn(true)
		}
		return
	}

	// quiet sample: start the release window once, first sub-threshold
	// sample after speech arms it
	if d.speaking && d.silenceTimer == nil {
		d.silenceTimer = time.AfterFunc(d.silenceTimeout, d.silenceElapsed)
	}
	d.mu.Unlock()
}

func (d *AudioActivityDetector) silenceElapsed() {
	d.mu.Lock()
	if d.closed || !d.speaking {
		d.mu.Unlock()
		return
	}
	d.speaking = false
	d.silenceTimer = nil
	fn := d.onChange
	d.mu.Unlock()

	d.log.Debugw("speaking stopped")
	if fn != nil {
		fn(false)
	}
}

// Close stops the timer and drops all further samples.
func (d *AudioActivityDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.silenceTimer != nil {
		d.silenceTimer.Stop()
		d.silenceTimer = nil
	}
}
