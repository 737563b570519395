//go:build whisper

package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures the configured input device. A reader goroutine
// pulls blocking reads off the stream into a bounded channel; when Read falls
// behind, new frames are dropped instead of stalling the device. Any stream
// error other than an input overflow ends capture and is returned by Read.
type PortAudioSource struct {
	cfg    SourceConfig
	stream *portaudio.Stream
	buf    []float32
	frames chan Frame
	errc   chan error
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPortAudioSource returns a live microphone/monitor source.
func NewPortAudioSource(cfg SourceConfig) (Source, error) {
	if cfg.FrameSamples <= 0 {
		return nil, fmt.Errorf("frame size must be positive (got %d)", cfg.FrameSamples)
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 100
	}
	return &PortAudioSource{
		cfg:    cfg,
		buf:    make([]float32, cfg.FrameSamples),
		frames: make(chan Frame, cfg.Buffer),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}, nil
}

func (s *PortAudioSource) Open(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	dev, err := selectDevice(s.cfg.DeviceName)
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.cfg.SampleRate),
		FramesPerBuffer: s.cfg.FrameSamples,
	}, &s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start stream: %w", err)
	}
	s.stream = stream
	s.wg.Add(1)
	go s.readLoop()
	return nil
}

func (s *PortAudioSource) readLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		default:
		}
		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				if s.cfg.OnDrop != nil {
					s.cfg.OnDrop()
				}
				continue
			}
			select {
			case <-s.done:
			case s.errc <- fmt.Errorf("stream read: %w", err):
			}
			return
		}
		frame := Frame{Samples: append([]float32(nil), s.buf...), Timestamp: time.Now()}
		select {
		case s.frames <- frame:
		default:
			if s.cfg.OnDrop != nil {
				s.cfg.OnDrop()
			}
		}
	}
}

func (s *PortAudioSource) Read(ctx context.Context, timeout time.Duration) (Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-s.frames:
		return f, nil
	case err := <-s.errc:
		return Frame{}, err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-timer.C:
		return Frame{}, ErrTimeout
	}
}

func (s *PortAudioSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.stream == nil {
			return
		}
		// Stop unblocks a pending stream.Read.
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("stop stream: %w", stopErr)
		}
		s.wg.Wait()
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close stream: %w", closeErr)
		}
		_ = portaudio.Terminate()
	})
	return err
}

// ListDevices enumerates input devices.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()
	out := []Device{}
	for i, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			Index:      i,
			Name:       d.Name,
			Channels:   d.MaxInputChannels,
			SampleRate: d.DefaultSampleRate,
			LatencyMS:  d.DefaultLowInputLatency.Seconds() * 1000,
			Default:    def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}

func selectDevice(preferred string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if preferred != "" {
		for _, d := range devs {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(preferred)) {
				return d, nil
			}
		}
	}
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def, nil
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input devices found")
}
