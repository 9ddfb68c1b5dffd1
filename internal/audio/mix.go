package audio

import (
	"encoding/binary"
	"fmt"
)

// Resample converts PCM16 samples between rates with linear interpolation.
// Good enough for mixing call legs; this is not a production resampler.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}
	ratio := float64(toRate) / float64(fromRate)
	newLen := int(float64(len(samples)) * ratio)
	out := make([]int16, 0, newLen)
	for i := 0; i < newLen; i++ {
		src := float64(i) / ratio
		idx := int(src)
		if idx >= len(samples)-1 {
			out = append(out, samples[len(samples)-1])
			continue
		}
		frac := src - float64(idx)
		v := float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac
		out = append(out, int16(v))
	}
	return out
}

// MixPCM16 averages two sample streams, padding the shorter one with
// silence and clamping to the int16 range.
func MixPCM16(a, b []int16) []int16 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(a) {
			av = int(a[i])
		}
		if i < len(b) {
			bv = int(b[i])
		}
		mixed := (av + bv) / 2
		if mixed > 32767 {
			mixed = 32767
		}
		if mixed < -32768 {
			mixed = -32768
		}
		out[i] = int16(mixed)
	}
	return out
}

// Mixdown combines two mono WAV recordings (typically the user and agent
// legs of a call) into a single recording at the higher of the two rates.
func Mixdown(pathA, pathB, outPath string) error {
	pcmA, rateA, err := ReadWAVPCM16LEFile(pathA)
	if err != nil {
		return fmt.Errorf("read %s: %w", pathA, err)
	}
	pcmB, rateB, err := ReadWAVPCM16LEFile(pathB)
	if err != nil {
		return fmt.Errorf("read %s: %w", pathB, err)
	}

	target := rateA
	if rateB > target {
		target = rateB
	}

	a := Resample(bytesToSamples(pcmA), rateA, target)
	b := Resample(bytesToSamples(pcmB), rateB, target)
	mixed := MixPCM16(a, b)

	if err := WriteWAVPCM16LEFile(outPath, samplesToBytes(mixed), target); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return nil
}

func bytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i : 2*i+2]))
	}
	return out
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:2*i+2], uint16(s))
	}
	return out
}
