// Package codecheader encodes and decodes the 4-byte Opus codec attributes
// header Zello attaches to the "on_stream_start" control message, describing
// the sample rate, channel count, and frame duration of the audio stream
// about to begin.
package codecheader

import (
	"encoding/binary"

	"github.com/openfne/zello-gateway/pkg/gatewayerr"
)

// Size is the fixed wire length of a CodecHeader.
const Size = 4

// Header describes the Opus stream parameters negotiated for a call.
type Header struct {
	SampleRate int  // Hz
	Channels   byte // 1 = mono
	FrameSizeMs byte // frame duration in milliseconds
}

// Default is Zello's standard mono 16kHz, 60ms-frame Opus configuration,
// which encodes to the wire bytes 0x80 0x3E 0x01 0x3C.
var Default = Header{SampleRate: 16000, Channels: 1, FrameSizeMs: 60}

// Encode writes h to its 4-byte wire representation.
func (h Header) Encode() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.SampleRate))
	buf[2] = h.Channels
	buf[3] = h.FrameSizeMs
	return buf
}

// Decode parses a 4-byte CodecHeader from the wire.
func Decode(data []byte) (Header, error) {
	if len(data) != Size {
		return Header{}, gatewayerr.ProtocolErr("codecheader.Decode", errBadLength)
	}
	return Header{
		SampleRate:  int(binary.LittleEndian.Uint16(data[0:2])),
		Channels:    data[2],
		FrameSizeMs: data[3],
	}, nil
}

// FrameSamples returns the number of PCM samples per frame at h's sample
// rate and frame duration.
func (h Header) FrameSamples() int {
	return h.SampleRate * int(h.FrameSizeMs) / 1000
}

type headerError string

func (e headerError) Error() string { return string(e) }

const errBadLength = headerError("codecheader: wire data must be exactly 4 bytes")
