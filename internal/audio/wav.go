package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ReadWAV decodes a PCM WAV file into mono samples at dstRate.
func ReadWAV(path string, dstRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	depth := int(dec.BitDepth)
	if depth <= 0 {
		depth = 16
	}
	scale := float32(int64(1) << (depth - 1))
	interleaved := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = float32(v) / scale
	}
	mono := Downmix(interleaved, int(dec.NumChans))
	return Resample(mono, int(dec.SampleRate), dstRate), nil
}

// WriteWAV stores samples as a 16-bit mono WAV file.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	pcm := Float32ToInt16(samples)
	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}

// WAVSource replays a WAV file as a stream of frames. Frame timestamps follow
// the stream position rather than the wall clock, so silence in the file is
// measured at its recorded length however fast the file is consumed.
type WAVSource struct {
	path    string
	cfg     SourceConfig
	samples []float32
	pos     int
	start   time.Time
}

// NewWAVSource returns a source reading path.
func NewWAVSource(path string, cfg SourceConfig) *WAVSource {
	return &WAVSource{path: path, cfg: cfg}
}

func (s *WAVSource) Open(_ context.Context) error {
	if s.cfg.FrameSamples <= 0 {
		return fmt.Errorf("frame size must be positive (got %d)", s.cfg.FrameSamples)
	}
	samples, err := ReadWAV(s.path, s.cfg.SampleRate)
	if err != nil {
		return err
	}
	s.samples = samples
	s.pos = 0
	s.start = time.Now()
	return nil
}

func (s *WAVSource) Read(ctx context.Context, _ time.Duration) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.samples) {
		return Frame{}, io.EOF
	}
	end := min(s.pos+s.cfg.FrameSamples, len(s.samples))
	frame := Frame{
		Samples:   s.samples[s.pos:end:end],
		Timestamp: s.start.Add(time.Duration(s.pos) * time.Second / time.Duration(s.cfg.SampleRate)),
	}
	s.pos = end
	return frame, nil
}

func (s *WAVSource) Close() error {
	s.samples = nil
	return nil
}
