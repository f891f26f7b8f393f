// Package vocoder defines the capability-trait interface the gateway uses
// to treat IMBE (P25), AMBE (DMR), and an external USB hardware vocoder
// polymorphically. The actual encode/decode math for IMBE and AMBE is an
// external collaborator (a native MBE vocoder library); this package only
// owns the trait boundary and the in-process routing between codec kinds.
package vocoder

import "github.com/openfne/zello-gateway/pkg/gatewayerr"

// Kind identifies which voice codec a Codec implementation speaks.
type Kind int

const (
	KindIMBE       Kind = iota // P25 full-rate IMBE
	KindAMBE                   // DMR half-rate AMBE
	KindExternalUSB            // hardware vocoder dongle, PCM in/out over USB audio
)

// Codec converts between linear PCM and a vocoder's native codeword
// representation. PCM in and out of a Codec is always 8kHz mono 16-bit
// signed, one 20ms (160-sample) unit per call.
type Codec interface {
	Kind() Kind
	// Encode converts one 160-sample PCM unit into the codec's native
	// codeword bytes.
	Encode(pcm []int16) ([]byte, error)
	// Decode converts one codec-native codeword back into a 160-sample PCM
	// unit.
	Decode(codeword []byte) ([]int16, error)
}

// ErrNotImplemented is returned by codec stubs that depend on an external
// MBE vocoder library not wired into this build.
var ErrNotImplemented = gatewayerr.InternalErr("vocoder", notImplementedErr)

type vocoderError string

func (e vocoderError) Error() string { return string(e) }

const notImplementedErr vocoderError = "vocoder: native codec library not available in this build"

// Registry selects a Codec implementation by Kind.
type Registry struct {
	codecs map[Kind]Codec
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[Kind]Codec)}
}

// Register associates a Codec with its Kind.
func (r *Registry) Register(c Codec) {
	r.codecs[c.Kind()] = c
}

// Get returns the Codec registered for kind, if any.
func (r *Registry) Get(kind Kind) (Codec, bool) {
	c, ok := r.codecs[kind]
	return c, ok
}
