package pcm

import (
	"encoding/binary"
	"math"
)

// Downsample reduces input from inRate to outRate by averaging each output
// window of the input. Windows that contain no input samples repeat the
// previous output sample. If outRate is not below inRate the input is
// returned unchanged.
func Downsample(input []float32, inRate, outRate int) []float32 {
	if outRate <= 0 || inRate <= 0 || outRate >= inRate {
		return input
	}

	ratio := float64(inRate) / float64(outRate)
	out := make([]float32, int(math.Round(float64(len(input))/ratio)))

	offset := 0
	var prev float32
	for i := range out {
		next := int(math.Round(float64(i+1) * ratio))
		if next > len(input) {
			next = len(input)
		}

		var sum float32
		count := 0
		for j := offset; j < next; j++ {
			sum += input[j]
			count++
		}
		if count > 0 {
			prev = sum / float32(count)
		}
		out[i] = prev
		if next > offset {
			offset = next
		}
	}
	return out
}

// FloatToInt16LE converts samples in [-1, 1] to signed 16-bit little-endian
// PCM. Out-of-range samples are clamped.
func FloatToInt16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
