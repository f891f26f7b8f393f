package vocoder

// externalUSBCodec represents a hardware MBE vocoder dongle reachable over
// USB audio. The device itself does the encode/decode; this Codec only
// exists so the registry can route to it by Kind. Wiring an actual USB
// audio device is outside this module's scope.
type externalUSBCodec struct{}

func (externalUSBCodec) Kind() Kind                        { return KindExternalUSB }
func (externalUSBCodec) Encode(pcm []int16) ([]byte, error) { return nil, ErrNotImplemented }
func (externalUSBCodec) Decode(cw []byte) ([]int16, error)  { return nil, ErrNotImplemented }

// NewExternalUSBCodec returns the Codec placeholder for a USB hardware
// vocoder.
func NewExternalUSBCodec() Codec { return externalUSBCodec{} }
