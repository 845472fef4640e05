// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Streams chunk by chunk, carrying the last frame so chunk edges stay continuous
package resample

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
	lastFrame  []int32 // final input frame of the previous chunk
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]int32, channels),
	}
}

// Resample converts interleaved input at inputRate to interleaved output at outputRate.
// Incomplete trailing frames in input are ignored.
func (r *Resampler) Resample(input []int32) []int32 {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return nil
	}
	if r.inputRate == r.outputRate {
		out := make([]int32, inputFrames*r.channels)
		copy(out, input)
		return out
	}

	// Frame i of the virtual source is lastFrame for i == 0 when primed
	offset := 0
	if r.primed {
		offset = 1
	}
	srcFrames := inputFrames + offset
	frame := func(i, ch int) int32 {
		if i < offset {
			return r.lastFrame[ch]
		}
		return input[(i-offset)*r.channels+ch]
	}

	out := make([]int32, 0, int(float64(srcFrames)/r.ratio+1)*r.channels)
	for {
		idx := int(r.position)
		if idx+1 >= srcFrames {
			break
		}
		frac := r.position - float64(idx)
		for ch := 0; ch < r.channels; ch++ {
			s1 := float64(frame(idx, ch))
			s2 := float64(frame(idx+1, ch))
			out = append(out, int32(s1*(1.0-frac)+s2*frac))
		}
		r.position += r.ratio
	}

	// Re-base position on the frame that becomes lastFrame
	r.position -= float64(srcFrames - 1)
	for ch := 0; ch < r.channels; ch++ {
		r.lastFrame[ch] = frame(srcFrames-1, ch)
	}
	r.primed = true

	return out
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.primed = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// Ratio returns input frames consumed per output frame
func (r *Resampler) Ratio() float64 {
	return r.ratio
}
