package audio

import (
	"encoding/binary"
	"math"
)

// Format describes interleaved little-endian signed 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

func DefaultFormat() Format {
	return Format{SampleRate: 16000, Channels: 1}
}

func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Duration returns how many seconds n bytes of audio cover.
func (f Format) Duration(n int) float64 {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return float64(n) / float64(bps)
}

// ResamplePCM16 converts mono PCM16 bytes between sample rates with linear
// interpolation.
func ResamplePCM16(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}
	samples := bytesToSamples(pcm)

	ratio := float64(toRate) / float64(fromRate)
	out := make([]int16, int(math.Ceil(float64(len(samples))*ratio)))
	for i := range out {
		pos := float64(i) / ratio
		idx := int(pos)
		frac := pos - float64(idx)

		switch {
		case idx+1 < len(samples):
			v := float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac
			out[i] = clamp16(v)
		case idx < len(samples):
			out[i] = samples[idx]
		}
	}
	return samplesToBytes(out)
}

// DownmixPCM16 averages interleaved frames of the given channel count into
// mono. A trailing partial frame is dropped.
func DownmixPCM16(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	samples := bytesToSamples(pcm)
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(samples[i*channels+c])
		}
		out[i] = clamp16(sum / float64(channels))
	}
	return samplesToBytes(out)
}

func bytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func clamp16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(math.Round(v))
}
