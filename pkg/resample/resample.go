// Package resample implements the linear-interpolation sample-rate converter
// used to bridge Zello's 16kHz Opus-decoded PCM and the 8kHz PCM voice units
// consumed by the P25/DMR framing layer.
package resample

import "github.com/openfne/zello-gateway/pkg/gatewayerr"

// Sample is a single linear PCM sample, stored at 16-bit signed resolution
// regardless of the rate it was produced at.
type Sample int16

// Util converts PCM between two fixed sample rates using linear interpolation.
// It carries no state between calls; each call operates on a complete buffer.
type Util struct {
	InputRate  int
	OutputRate int
}

// New returns a Util configured for the given input and output rates.
func New(inputRate, outputRate int) *Util {
	return &Util{InputRate: inputRate, OutputRate: outputRate}
}

// Resample converts in (at u.InputRate) to u.OutputRate using linear
// interpolation between neighboring source samples. The output length is
// round(len(in) * OutputRate / InputRate). When InputRate == OutputRate the
// input is returned unmodified (idempotent passthrough).
func (u *Util) Resample(in []Sample) ([]Sample, error) {
	if u.InputRate <= 0 || u.OutputRate <= 0 {
		return nil, gatewayerr.CodecErr("resample", errInvalidRate)
	}
	if u.InputRate == u.OutputRate {
		out := make([]Sample, len(in))
		copy(out, in)
		return out, nil
	}
	if len(in) == 0 {
		return []Sample{}, nil
	}

	ratio := float64(u.OutputRate) / float64(u.InputRate)
	outLen := int(float64(len(in))*ratio + 0.5)
	out := make([]Sample, outLen)

	step := float64(u.InputRate) / float64(u.OutputRate)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * step
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		var s0, s1 float64
		if idx < len(in) {
			s0 = float64(in[idx])
		} else {
			s0 = float64(in[len(in)-1])
		}
		if idx+1 < len(in) {
			s1 = float64(in[idx+1])
		} else {
			s1 = s0
		}

		v := s0 + (s1-s0)*frac
		out[i] = Sample(clampInt16(v))
	}

	return out, nil
}

func clampInt16(v float64) int32 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int32(v)
}

var errInvalidRate = rateError("resample: input and output rates must be positive")

type rateError string

func (e rateError) Error() string { return string(e) }
