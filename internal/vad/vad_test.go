package vad

import (
	"reflect"
	"testing"
)

const rate = 16000

// build concatenates alternating silence/speech runs given in milliseconds,
// starting with silence.
func build(runs ...int) []float32 {
	var out []float32
	for i, ms := range runs {
		n := rate * ms / 1000
		amp := float32(0)
		if i%2 == 1 {
			amp = 0.3
		}
		for j := 0; j < n; j++ {
			if j%2 == 0 {
				out = append(out, amp)
			} else {
				out = append(out, -amp)
			}
		}
	}
	return out
}

func TestEnergyDetectorFindsSpeechRanges(t *testing.T) {
	d := NewEnergyDetector(Config{FrameMS: 20, EnergyThresh: 0.02, MinSpeechMS: 20, MinSilenceMS: 20})
	got, err := d.Detect(build(100, 200, 300, 100), rate)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	want := []Range{{Start: 1600, End: 4800}, {Start: 9600, End: 11200}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges = %v want %v", got, want)
	}
}

func TestEnergyDetectorBridgesShortSilence(t *testing.T) {
	d := NewEnergyDetector(Config{FrameMS: 20, EnergyThresh: 0.02, MinSpeechMS: 20, MinSilenceMS: 100})
	got, _ := d.Detect(build(0, 200, 60, 200), rate)
	want := []Range{{Start: 0, End: 7360}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges = %v want %v", got, want)
	}
}

func TestEnergyDetectorDropsBlips(t *testing.T) {
	d := NewEnergyDetector(Config{FrameMS: 20, EnergyThresh: 0.02, MinSpeechMS: 100, MinSilenceMS: 20})
	got, _ := d.Detect(build(100, 40, 100), rate)
	if len(got) != 0 {
		t.Fatalf("expected blip to be dropped, got %v", got)
	}
}

func TestEnergyDetectorOpenRangeAtWindowEnd(t *testing.T) {
	d := NewEnergyDetector(Config{FrameMS: 20, EnergyThresh: 0.02, MinSpeechMS: 20, MinSilenceMS: 200})
	// trailing silence shorter than min silence still ends the range at the
	// last speech frame.
	got, _ := d.Detect(build(40, 100, 60), rate)
	want := []Range{{Start: 640, End: 2240}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges = %v want %v", got, want)
	}
}

func TestEnergyDetectorIgnoresPartialFrame(t *testing.T) {
	d := NewEnergyDetector(Config{FrameMS: 20, EnergyThresh: 0.02})
	got, _ := d.Detect(make([]float32, 100), rate)
	if len(got) != 0 {
		t.Fatalf("expected nothing, got %v", got)
	}
}

func TestNewRejectsUnknownEngine(t *testing.T) {
	if _, err := New(Config{Engine: "silero"}); err == nil {
		t.Fatalf("expected error")
	}
	if d, err := New(Config{Engine: "energy"}); err != nil || d == nil {
		t.Fatalf("energy: %v", err)
	}
}

func TestRangeLen(t *testing.T) {
	if n := (Range{Start: 160, End: 480}).Len(); n != 320 {
		t.Fatalf("len = %d", n)
	}
	if n := (Range{Start: 5, End: 5}).Len(); n != 0 {
		t.Fatalf("empty range len = %d", n)
	}
}
