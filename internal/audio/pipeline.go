// Package audio records, enhances and plays back the single temporary
// voice clip a campaign may attach to every message.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"zapfacil/internal/eventbus"
	"zapfacil/pkg/logx"
)

type State int32

const (
	Idle State = iota
	Recording
	Ready
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	ErrNoSamples   = errors.New("no samples captured")
	ErrNoRecording = errors.New("no recorded audio available")
	ErrBusy        = errors.New("audio session busy")
)

// DeviceError wraps a capture/playback hardware failure.
type DeviceError struct{ Err error }

func (e *DeviceError) Error() string { return "audio device: " + e.Err.Error() }
func (e *DeviceError) Unwrap() error { return e.Err }

const tempFilename = "zapfacil_gravacao.wav"

type Config struct {
	SampleRate int
	Channels   int
	// TempPath is the single clip file, overwritten each recording cycle.
	TempPath string
}

// Pipeline is the one audio session an engine instance owns. Transitions:
// Idle -> Recording -> Ready -> Playing -> Ready; Discard resets to Idle
// from anywhere.
type Pipeline struct {
	cfg Config
	dev Device
	bus eventbus.Bus
	log logx.Logger

	mu        sync.Mutex
	state     State
	frames    [][]float32
	recCancel context.CancelFunc
	recDone   chan struct{}
	recErr    error

	// playGen invalidates stale playback goroutines: only the one holding
	// the current generation may transition Playing -> Ready.
	playGen    uint64
	playCancel context.CancelFunc
}

func NewPipeline(cfg Config, dev Device, bus eventbus.Bus, log logx.Logger) *Pipeline {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.TempPath == "" {
		cfg.TempPath = filepath.Join(os.TempDir(), tempFilename)
	}
	return &Pipeline{cfg: cfg, dev: dev, bus: bus, log: log, state: Idle}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ClipPath returns the temp clip path when a processed recording exists.
func (p *Pipeline) ClipPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Ready {
		return ""
	}
	return p.cfg.TempPath
}

// StartRecording clears the frame buffer and spawns the capture loop.
// Calling it while already Recording is a no-op.
func (p *Pipeline) StartRecording(ctx context.Context) error {
	p.mu.Lock()
	if p.state == Recording {
		p.mu.Unlock()
		return nil
	}
	if p.state == Playing {
		p.mu.Unlock()
		return ErrBusy
	}

	recCtx, cancel := context.WithCancel(ctx)
	p.state = Recording
	p.frames = nil
	p.recErr = nil
	p.recCancel = cancel
	done := make(chan struct{})
	p.recDone = done
	p.mu.Unlock()

	p.log.Info("recording started",
		logx.Int("sample_rate", p.cfg.SampleRate), logx.Int("channels", p.cfg.Channels))
	p.publishState(Recording)

	blocks := make(chan []float32, 8)
	go func() {
		for b := range blocks {
			p.mu.Lock()
			if p.state == Recording {
				p.frames = append(p.frames, b)
			}
			p.mu.Unlock()
		}
		close(done)
	}()
	go func() {
		err := p.dev.Record(recCtx, p.cfg.SampleRate, p.cfg.Channels, blocks)
		if err != nil && recCtx.Err() == nil {
			devErr := &DeviceError{Err: err}
			p.log.Error("microphone unavailable", logx.Err(err))
			p.mu.Lock()
			p.state = Idle
			p.recErr = devErr
			p.mu.Unlock()
			p.publishState(Idle)
		}
	}()
	return nil
}

// StopRecording ends capture, enhances the take (noise gate + peak
// normalization) and persists it to the temp WAV. Returns the clip path,
// or "" when nothing was recorded.
func (p *Pipeline) StopRecording() (string, error) {
	p.mu.Lock()
	if p.state != Recording {
		// Covers the device-failure path too: the capture goroutine has
		// already reset to Idle and stored the error.
		err := p.recErr
		p.recErr = nil
		p.mu.Unlock()
		return "", err
	}
	cancel := p.recCancel
	done := p.recDone
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	if p.recErr != nil {
		err := p.recErr
		p.recErr = nil
		p.mu.Unlock()
		return "", err
	}
	frames := p.frames
	p.frames = nil
	if len(frames) == 0 {
		p.state = Idle
		p.mu.Unlock()
		p.log.Warn("no samples captured")
		p.publishState(Idle)
		return "", ErrNoSamples
	}
	p.mu.Unlock()

	p.log.Info("recording finished, enhancing audio")
	samples := normalize(reduceNoise(concat(frames)))

	if err := writeWAV(p.cfg.TempPath, samples, p.cfg.SampleRate, p.cfg.Channels); err != nil {
		p.log.Error("failed to persist recording", logx.Err(err))
		p.mu.Lock()
		p.state = Idle
		p.mu.Unlock()
		p.publishState(Idle)
		return "", err
	}

	p.mu.Lock()
	p.state = Ready
	p.mu.Unlock()
	p.log.Info("recording processed and saved", logx.String("path", p.cfg.TempPath))
	p.publishState(Ready)
	return p.cfg.TempPath, nil
}

// Play streams the recorded clip to the output device on its own
// goroutine, returning to Ready when done.
func (p *Pipeline) Play(ctx context.Context) error {
	if _, err := os.Stat(p.cfg.TempPath); err != nil {
		p.log.Error("no recorded audio to play")
		return ErrNoRecording
	}

	p.mu.Lock()
	if p.state == Recording || p.state == Playing {
		p.mu.Unlock()
		return ErrBusy
	}
	playCtx, cancel := context.WithCancel(ctx)
	p.state = Playing
	p.playCancel = cancel
	p.playGen++
	gen := p.playGen
	p.mu.Unlock()
	p.publishState(Playing)

	go func() {
		defer cancel()
		samples, rate, channels, err := readWAV(p.cfg.TempPath)
		if err == nil {
			err = p.dev.Play(playCtx, rate, channels, samples)
		}
		switch {
		case playCtx.Err() != nil:
			p.log.Info("playback interrupted")
		case err != nil:
			p.log.Error("playback failed", logx.Err(err))
		default:
			p.log.Info("playback finished")
		}

		// Discard may have reset the session while the device was busy;
		// a stale generation must not resurrect the Ready state.
		p.mu.Lock()
		if p.state != Playing || gen != p.playGen {
			p.mu.Unlock()
			return
		}
		p.state = Ready
		p.mu.Unlock()
		p.publishState(Ready)
	}()
	return nil
}

// Discard drops the frame buffer and deletes the temp clip. Idempotent;
// it only fails when the file exists but cannot be removed.
func (p *Pipeline) Discard() error {
	p.mu.Lock()
	if p.state == Recording && p.recCancel != nil {
		cancel := p.recCancel
		done := p.recDone
		p.mu.Unlock()
		cancel()
		<-done
		p.mu.Lock()
	}
	if p.state == Playing && p.playCancel != nil {
		p.playCancel()
	}
	p.frames = nil
	p.state = Idle
	p.recErr = nil
	p.mu.Unlock()
	p.publishState(Idle)

	if _, err := os.Stat(p.cfg.TempPath); err == nil {
		if err := os.Remove(p.cfg.TempPath); err != nil {
			p.log.Error("failed to delete temp recording", logx.Err(err))
			return err
		}
		p.log.Info("temp recording discarded")
	}
	return nil
}

func (p *Pipeline) publishState(s State) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: eventbus.TypeAudioState, Data: s.String()})
}
