//go:build !opus

package zello

// opusCodec is a pass-through stand-in used when libopus isn't available at
// build time (no "opus" build tag). It moves raw PCM unmodified so the
// session state machine and framing are still fully exercisable without a
// libopus dependency installed on the build machine.
type opusCodec struct {
	sampleRate int
}

func newOpusCodec(sampleRate int) (*opusCodec, error) {
	return &opusCodec{sampleRate: sampleRate}, nil
}

func (c *opusCodec) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out, nil
}

func (c *opusCodec) Decode(payload []byte, frameSamples int) ([]int16, error) {
	n := len(payload) / 2
	if n > frameSamples {
		n = frameSamples
	}
	pcm := make([]int16, frameSamples)
	for i := 0; i < n; i++ {
		pcm[i] = int16(payload[i*2]) | int16(payload[i*2+1])<<8
	}
	return pcm, nil
}

func (c *opusCodec) SampleRate() int { return c.sampleRate }

func newCodec(sampleRate int) (audioCodec, error) {
	return newOpusCodec(sampleRate)
}

const opusBuilt = false
