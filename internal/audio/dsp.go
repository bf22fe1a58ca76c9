package audio

// reduceNoise applies a moving-average gate: windows whose mean magnitude
// stays under the floor are treated as background hiss and muted. This is
// a deliberately simple stand-in for spectral denoising; it removes the
// constant microphone floor without touching speech.
func reduceNoise(samples []float32) []float32 {
	const (
		window = 1024
		floor  = 0.015
	)
	if len(samples) == 0 {
		return samples
	}
	out := make([]float32, len(samples))
	copy(out, samples)

	for start := 0; start < len(out); start += window {
		end := start + window
		if end > len(out) {
			end = len(out)
		}
		var sum float64
		for _, s := range out[start:end] {
			if s < 0 {
				sum -= float64(s)
			} else {
				sum += float64(s)
			}
		}
		if sum/float64(end-start) < floor {
			for i := start; i < end; i++ {
				out[i] = 0
			}
		}
	}
	return out
}

// normalize scales the buffer so its peak hits 1.0. An all-zero buffer is
// returned unchanged (no division by zero on silence).
func normalize(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak <= 0 {
		return samples
	}
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s / peak
	}
	return out
}

func concat(frames [][]float32) []float32 {
	var n int
	for _, f := range frames {
		n += len(f)
	}
	out := make([]float32, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
