// ABOUTME: Linear resampler for converting audio sample rates
// ABOUTME: Carries the last input frame across chunks so streams stay continuous
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64   // read position in frames, -1 addresses prev
	prev       []float32 // last frame of the previous chunk
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		prev:       make([]float32, channels),
	}
}

func (r *Resampler) frame(input []float32, idx, ch int) float32 {
	if idx < 0 {
		return r.prev[ch]
	}
	return input[idx*r.channels+ch]
}

// Resample converts interleaved input at inputRate into output at
// outputRate and returns the number of samples written. Output must hold
// MaxOutputSamples(len(input)) samples or the tail of the chunk is dropped.
func (r *Resampler) Resample(input []float32, output []float32) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}
	outputFrames := len(output) / r.channels

	outIdx := 0
	for outIdx < outputFrames {
		idx := int(math.Floor(r.position))
		if idx+1 >= inputFrames {
			break
		}
		frac := float32(r.position - float64(idx))

		for ch := 0; ch < r.channels; ch++ {
			a := r.frame(input, idx, ch)
			b := r.frame(input, idx+1, ch)
			output[outIdx*r.channels+ch] = a + (b-a)*frac
		}

		outIdx++
		r.position += r.ratio
	}

	// Rebase onto the next chunk, which starts one frame after our last
	r.position -= float64(inputFrames)
	if r.position < -1 {
		r.position = -1
	}
	copy(r.prev, input[(inputFrames-1)*r.channels:inputFrames*r.channels])

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	clear(r.prev)
}

// Passthrough reports whether input and output rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// MaxOutputSamples is the output capacity that never drops input
func (r *Resampler) MaxOutputSamples(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	return (int(math.Ceil(float64(inputFrames+1)/r.ratio)) + 1) * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}
