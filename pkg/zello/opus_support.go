//go:build opus

package zello

import (
	opus "gopkg.in/hraban/opus.v2"

	"github.com/openfne/zello-gateway/pkg/gatewayerr"
)

// opusCodec wraps a real libopus encoder/decoder pair for one stream.
type opusCodec struct {
	sampleRate int
	encoder    *opus.Encoder
	decoder    *opus.Decoder
}

func newOpusCodec(sampleRate int) (*opusCodec, error) {
	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, gatewayerr.CodecErr("zello.newOpusCodec.encoder", err)
	}
	dec, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, gatewayerr.CodecErr("zello.newOpusCodec.decoder", err)
	}
	return &opusCodec{sampleRate: sampleRate, encoder: enc, decoder: dec}, nil
}

func (c *opusCodec) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, 1275)
	n, err := c.encoder.Encode(pcm, out)
	if err != nil {
		return nil, gatewayerr.CodecErr("zello.opusCodec.Encode", err)
	}
	return out[:n], nil
}

func (c *opusCodec) Decode(payload []byte, frameSamples int) ([]int16, error) {
	pcm := make([]int16, frameSamples)
	n, err := c.decoder.Decode(payload, pcm)
	if err != nil {
		return nil, gatewayerr.CodecErr("zello.opusCodec.Decode", err)
	}
	return pcm[:n], nil
}

func (c *opusCodec) SampleRate() int { return c.sampleRate }

func newCodec(sampleRate int) (audioCodec, error) {
	return newOpusCodec(sampleRate)
}

const opusBuilt = true
