// ABOUTME: Tone speech synthesizer for the development backend
// ABOUTME: Renders each word of a reply as a short sine beep
package backend

import (
	"math"
	"strings"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
)

const (
	beepMillis  = 150
	gapMillis   = 50
	fadeMillis  = 5
	baseFreq    = 300.0
	freqStep    = 60.0
	toneVolume  = 0.5
	maxFreqStep = 8
)

// synthesize renders text as interleaved int32 samples in the format's rate and
// channel count. Empty text still yields one beep.
func synthesize(text string, format audio.Format) []int32 {
	words := strings.Fields(text)
	if len(words) == 0 {
		words = []string{""}
	}

	rate := format.SampleRate
	beep := rate * beepMillis / 1000
	gap := rate * gapMillis / 1000
	fade := rate * fadeMillis / 1000

	mono := make([]int32, 0, len(words)*(beep+gap))
	for _, w := range words {
		freq := baseFreq + freqStep*float64(len(w)%maxFreqStep)
		for i := 0; i < beep; i++ {
			t := float64(i) / float64(rate)
			v := math.Sin(2*math.Pi*freq*t) * toneVolume * fadeGain(i, beep, fade)
			mono = append(mono, int32(v*audio.Max24Bit))
		}
		mono = append(mono, make([]int32, gap)...)
	}

	channels := format.Channels
	if channels <= 1 {
		return mono
	}
	out := make([]int32, len(mono)*channels)
	for i, s := range mono {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = s
		}
	}
	return out
}

// fadeGain ramps the first and last fade samples of a beep to avoid clicks
func fadeGain(i, n, fade int) float64 {
	if fade == 0 {
		return 1
	}
	switch {
	case i < fade:
		return float64(i) / float64(fade)
	case i >= n-fade:
		return float64(n-1-i) / float64(fade)
	}
	return 1
}
