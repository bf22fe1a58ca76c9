package audio

import (
	"context"

	"github.com/gordonklaus/portaudio"
)

// Device abstracts the sound hardware so the pipeline can be exercised in
// tests without a microphone.
type Device interface {
	// Record streams capture blocks into blocks until ctx is cancelled or
	// the device fails. The implementation closes blocks before returning.
	Record(ctx context.Context, sampleRate, channels int, blocks chan<- []float32) error
	// Play renders the samples synchronously.
	Play(ctx context.Context, sampleRate, channels int, samples []float32) error
}

const framesPerBuffer = 1024

// PortAudioDevice talks to the default input/output devices through
// portaudio. Initialize/Terminate are paired per call; the bindings
// refcount them internally.
type PortAudioDevice struct{}

func (PortAudioDevice) Record(ctx context.Context, sampleRate, channels int, blocks chan<- []float32) error {
	defer close(blocks)

	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()

	buf := make([]float32, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := stream.Read(); err != nil {
			return err
		}
		block := make([]float32, len(buf))
		copy(block, buf)
		select {
		case blocks <- block:
		case <-ctx.Done():
			return nil
		}
	}
}

func (PortAudioDevice) Play(ctx context.Context, sampleRate, channels int, samples []float32) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()

	buf := make([]float32, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	for off := 0; off < len(samples); off += len(buf) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n := copy(buf, samples[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			return err
		}
	}
	return nil
}
