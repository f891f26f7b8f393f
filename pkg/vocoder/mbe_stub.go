package vocoder

// imbeCodec and ambeCodec are the gateway's default Codec implementations.
// The actual IMBE/AMBE vocoder math lives in a native MBE library outside
// this module's scope; these stand in as the wiring point a build that
// links such a library would replace.

type imbeCodec struct{}

func (imbeCodec) Kind() Kind                        { return KindIMBE }
func (imbeCodec) Encode(pcm []int16) ([]byte, error) { return nil, ErrNotImplemented }
func (imbeCodec) Decode(cw []byte) ([]int16, error)  { return nil, ErrNotImplemented }

type ambeCodec struct{}

func (ambeCodec) Kind() Kind                        { return KindAMBE }
func (ambeCodec) Encode(pcm []int16) ([]byte, error) { return nil, ErrNotImplemented }
func (ambeCodec) Decode(cw []byte) ([]int16, error)  { return nil, ErrNotImplemented }

// NewIMBECodec returns the gateway's IMBE Codec.
func NewIMBECodec() Codec { return imbeCodec{} }

// NewAMBECodec returns the gateway's AMBE Codec.
func NewAMBECodec() Codec { return ambeCodec{} }
