package audio

// WhisperRate is the sample rate whisper-family models are trained on.
const WhisperRate = 16000

// Downmix averages interleaved 16-bit little-endian PCM with the given
// channel count down to mono. Mono input and a trailing partial frame are
// returned unchanged and dropped respectively.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for c := range channels {
			off := i*frameBytes + c*2
			sum += int32(int16(uint16(pcm[off]) | uint16(pcm[off+1])<<8))
		}
		// The mean of int16 values always fits in int16.
		avg := int16(sum / int32(channels))
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// Resample converts 16-bit little-endian mono PCM from srcRate to dstRate
// by linear interpolation. Invalid rates and equal rates return pcm as is.
func Resample(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	n := len(pcm) / 2
	m := int(int64(n) * int64(dstRate) / int64(srcRate))
	out := make([]byte, m*2)
	step := float64(srcRate) / float64(dstRate)

	sample := func(i int) float64 {
		if i >= n {
			i = n - 1
		}
		return float64(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
	}
	for i := range m {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		v := int16(sample(j)*(1-frac) + sample(j+1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
