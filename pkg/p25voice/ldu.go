// Package p25voice packs and unpacks P25 LDU1/LDU2 voice super-frames: the
// two logical data unit types that together carry nine IMBE voice codewords
// plus one control block (Link Control for LDU1, Encryption Sync Word for
// LDU2) across a full P25 voice frame, wrapped in the DFSI wire format FNE
// peers exchange.
package p25voice

import (
	"errors"

	"github.com/openfne/zello-gateway/pkg/gatewayerr"
)

// SuperFrameSize is the fixed scratch-buffer size CallBridge accumulates
// IMBE codewords into, one per 20 ms tick, before packing.
const SuperFrameSize = 225

// CodewordSize is the byte length of a single IMBE voice codeword (88 bits,
// byte-packed).
const CodewordSize = 11

// VoiceCount is the number of IMBE codewords packed into one super-frame.
const VoiceCount = 9

// HeaderSize is the DFSI wire payload's leading P25 message header: DUID,
// call addressing, peer ID, and a trailing total-length byte.
const HeaderSize = 24

// VoiceOffset gives the starting byte of voice codeword i (0-8) within the
// 225-byte scratch buffer. CallBridge writes the 20 ms IMBE result here at
// voice_offsets[p25_n mod 9] on every tick.
var VoiceOffset = [VoiceCount]int{10, 26, 55, 80, 105, 130, 155, 180, 204}

// FrameType identifies whether a super-frame is an LDU1 (voice + Link
// Control) or LDU2 (voice + Encryption Sync). The byte value doubles as the
// DFSI payload's header DUID byte.
type FrameType byte

const (
	LDU1 FrameType = 1
	LDU2 FrameType = 2
)

// ldu1Markers/ldu2Markers are the leading frame-type byte of each of the
// nine variable-length DFSI voice frames within the data segment.
var ldu1Markers = [VoiceCount]byte{0x62, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69, 0x6A}
var ldu2Markers = [VoiceCount]byte{0x6B, 0x6C, 0x6D, 0x6E, 0x6F, 0x70, 0x71, 0x72, 0x73}

// voiceContentLen is the length, in bytes, of the control content that
// precedes the 11-byte IMBE payload within each voice frame. Derived from
// the gap between consecutive frame-type marker offsets (0, 22, 36, 53, 70,
// 87, 104, 121, 138 within the data segment, the positions Unpack verifies
// against): frameLen[i] = 1 (marker) + voiceContentLen[i] + CodewordSize.
var voiceContentLen = [VoiceCount]int{10, 2, 5, 5, 5, 5, 5, 5, 2}

// markerOffset[i] is frame i's frame-type marker position within the data
// segment, i.e. relative to the first byte after the 24-byte header.
// Matches spec's documented unpack-verification offsets exactly.
var markerOffset [VoiceCount]int

// dataSegmentLen is the total byte length of the nine voice frames, not
// counting the header.
var dataSegmentLen int

func init() {
	off := 0
	for i := 0; i < VoiceCount; i++ {
		markerOffset[i] = off
		off += 1 + voiceContentLen[i] + CodewordSize
	}
	dataSegmentLen = off
}

// PayloadSize is the fixed total length of a packed LDU1/LDU2 DFSI payload.
const PayloadSize = HeaderSize + 176 // computed below; kept as a named const for callers

func init() {
	if PayloadSize != HeaderSize+dataSegmentLen {
		panic("p25voice: PayloadSize out of sync with dataSegmentLen")
	}
}

// LinkControl carries the P25 LDU1 Link Control word fields that ride in
// voice frame V3 (LCO, MFID, service options); destination/source addresses
// are threaded through Pack/Unpack directly since they also populate the
// DFSI header and the TGID/Source RID voice frames.
type LinkControl struct {
	LCO            byte
	MFID           byte
	ServiceOptions byte
}

// EncryptionSync carries the P25 LDU2 Encryption Sync Word fields: MI
// (spread across voice frames V12-V14), algorithm ID and key ID (V15). The
// gateway only originates/accepts clear (unencrypted) traffic; anything
// else is rejected by CallBridge before decoding.
type EncryptionSync struct {
	Algorithm byte
	KeyID     uint16
	MI        [9]byte
}

// AlgorithmClear is the P25 algorithm ID meaning "no encryption".
const AlgorithmClear byte = 0x80

// IsClear reports whether es describes an unencrypted call.
func (es EncryptionSync) IsClear() bool {
	return es.Algorithm == AlgorithmClear
}

// LDUBuffer is the 225-byte scratch accumulator CallBridge fills with IMBE
// codewords at VoiceOffset[p25_n mod 9] before packing a full LDU1/LDU2.
type LDUBuffer [SuperFrameSize]byte

// PutCodeword stores an 11-byte IMBE codeword at voice slot n (0-8).
func (b *LDUBuffer) PutCodeword(n int, codeword []byte) error {
	if len(codeword) != CodewordSize {
		return gatewayerr.CodecErr("p25voice.PutCodeword", errBadCodeword)
	}
	copy(b[VoiceOffset[n]:VoiceOffset[n]+CodewordSize], codeword)
	return nil
}

// Codeword returns voice slot n (0-8) as an 11-byte slice into b.
func (b *LDUBuffer) Codeword(n int) []byte {
	return b[VoiceOffset[n] : VoiceOffset[n]+CodewordSize]
}

// SuperFrame holds the decoded contents of one unpacked LDU1 or LDU2 DFSI
// payload.
type SuperFrame struct {
	Type   FrameType
	SrcID  uint32
	DstID  uint32
	PeerID uint32
	Voice  LDUBuffer // reassembled scratch buffer, codewords at VoiceOffset
	LC     LinkControl
	ES     EncryptionSync
}

// PackLDU1 renders scratch's nine IMBE codewords, srcID/dstID/peerID, and lc
// into a DFSI payload: a 24-byte P25 message header followed by nine
// variable-length voice frames, each led by a frame-type byte 0x62..0x6A.
func PackLDU1(scratch *LDUBuffer, srcID, dstID, peerID uint32, lc LinkControl) []byte {
	payload := make([]byte, HeaderSize+dataSegmentLen)
	writeHeader(payload, LDU1, srcID, dstID, peerID)
	writeVoiceFrames(payload[HeaderSize:], scratch, ldu1Markers, ldu1FrameContent(srcID, dstID, lc))
	return payload
}

// PackLDU2 renders scratch, srcID/dstID/peerID, and es into a DFSI payload
// using frame types 0x6B..0x73, MI spread across V12-V14, algorithm ID and
// key ID in V15.
func PackLDU2(scratch *LDUBuffer, srcID, dstID, peerID uint32, es EncryptionSync) []byte {
	payload := make([]byte, HeaderSize+dataSegmentLen)
	writeHeader(payload, LDU2, srcID, dstID, peerID)
	writeVoiceFrames(payload[HeaderSize:], scratch, ldu2Markers, ldu2FrameContent(es))
	return payload
}

// Unpack parses a DFSI payload produced by PackLDU1 or PackLDU2, verifying
// each voice frame's frame-type marker at its documented offset and
// dropping (returning errMarkerMismatch) on the first mismatch.
func Unpack(payload []byte) (*SuperFrame, error) {
	if len(payload) != HeaderSize+dataSegmentLen {
		return nil, gatewayerr.ProtocolErr("p25voice.Unpack", errBadSize)
	}

	duid, srcID, dstID, peerID := readHeader(payload)
	sf := &SuperFrame{Type: duid, SrcID: srcID, DstID: dstID, PeerID: peerID}

	var markers [VoiceCount]byte
	switch sf.Type {
	case LDU1:
		markers = ldu1Markers
	case LDU2:
		markers = ldu2Markers
	default:
		return nil, gatewayerr.ProtocolErr("p25voice.Unpack", errUnknownDUID)
	}

	data := payload[HeaderSize:]
	for i := 0; i < VoiceCount; i++ {
		off := markerOffset[i]
		if data[off] != markers[i] {
			return nil, gatewayerr.ProtocolErr("p25voice.Unpack", errMarkerMismatch)
		}
		cwOff := off + 1 + voiceContentLen[i]
		if err := sf.Voice.PutCodeword(i, data[cwOff:cwOff+CodewordSize]); err != nil {
			return nil, err
		}
	}

	switch sf.Type {
	case LDU1:
		sf.LC = readLDU1Content(data)
	case LDU2:
		sf.ES = readLDU2Content(data)
	}

	return sf, nil
}

// IsMarkerMismatch reports whether err is the frame-type marker mismatch
// Unpack returns when a voice frame's leading byte doesn't match the
// expected 0x62..0x6A/0x6B..0x73 sequence at its documented offset; callers
// drop such LDUs silently rather than propagating the error.
func IsMarkerMismatch(err error) bool {
	return errors.Is(err, errMarkerMismatch)
}

func writeHeader(buf []byte, duid FrameType, srcID, dstID, peerID uint32) {
	buf[0] = byte(duid)
	buf[1] = 0
	buf[2] = byte(dstID >> 16)
	buf[3] = byte(dstID >> 8)
	buf[4] = byte(dstID)
	buf[5] = byte(srcID >> 16)
	buf[6] = byte(srcID >> 8)
	buf[7] = byte(srcID)
	buf[8] = byte(peerID >> 24)
	buf[9] = byte(peerID >> 16)
	buf[10] = byte(peerID >> 8)
	buf[11] = byte(peerID)
	// bytes 12-22 reserved
	buf[23] = byte(HeaderSize + dataSegmentLen)
}

func readHeader(buf []byte) (duid FrameType, srcID, dstID, peerID uint32) {
	duid = FrameType(buf[0])
	dstID = uint32(buf[2])<<16 | uint32(buf[3])<<8 | uint32(buf[4])
	srcID = uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7])
	peerID = uint32(buf[8])<<24 | uint32(buf[9])<<16 | uint32(buf[10])<<8 | uint32(buf[11])
	return
}

func writeVoiceFrames(dst []byte, scratch *LDUBuffer, markers [VoiceCount]byte, content [VoiceCount][]byte) {
	for i := 0; i < VoiceCount; i++ {
		off := markerOffset[i]
		dst[off] = markers[i]
		copy(dst[off+1:off+1+voiceContentLen[i]], content[i])
		cwOff := off + 1 + voiceContentLen[i]
		copy(dst[cwOff:cwOff+CodewordSize], scratch.Codeword(i))
	}
}

// ldu1FrameContent builds the nine voice-frame content regions for LDU1:
// V1 9 bytes incl. reserved + RSSI@6 (RSSI telemetry is not modeled, left
// zero), V2 none, V3 LCO/MFID/SvcOpts, V4 TGID (3 bytes BE), V5 Source RID
// (3 bytes BE), V6-V8 RS(24,12,13) parity placeholders (zero), V9 LSD (not
// modeled, left zero).
func ldu1FrameContent(srcID, dstID uint32, lc LinkControl) [VoiceCount][]byte {
	var c [VoiceCount][]byte
	for i := range c {
		c[i] = make([]byte, voiceContentLen[i])
	}
	c[2][2], c[2][3], c[2][4] = lc.LCO, lc.MFID, lc.ServiceOptions
	c[3][2], c[3][3], c[3][4] = byte(dstID>>16), byte(dstID>>8), byte(dstID)
	c[4][2], c[4][3], c[4][4] = byte(srcID>>16), byte(srcID>>8), byte(srcID)
	return c
}

func readLDU1Content(data []byte) LinkControl {
	v3 := frameContent(data, 2)
	return LinkControl{LCO: v3[2], MFID: v3[3], ServiceOptions: v3[4]}
}

// ldu2FrameContent builds the nine voice-frame content regions for LDU2: MI
// spread across V12-V14 (local frames 3-5, 3 bytes each), algorithm ID and
// key ID in V15 (local frame 6), LSD in V18 (not modeled, left zero).
func ldu2FrameContent(es EncryptionSync) [VoiceCount][]byte {
	var c [VoiceCount][]byte
	for i := range c {
		c[i] = make([]byte, voiceContentLen[i])
	}
	copy(c[2][2:5], es.MI[0:3])
	copy(c[3][2:5], es.MI[3:6])
	copy(c[4][2:5], es.MI[6:9])
	c[5][2] = es.Algorithm
	c[5][3] = byte(es.KeyID >> 8)
	c[5][4] = byte(es.KeyID)
	return c
}

func readLDU2Content(data []byte) EncryptionSync {
	var es EncryptionSync
	copy(es.MI[0:3], frameContent(data, 2)[2:5])
	copy(es.MI[3:6], frameContent(data, 3)[2:5])
	copy(es.MI[6:9], frameContent(data, 4)[2:5])
	v15 := frameContent(data, 5)
	es.Algorithm = v15[2]
	es.KeyID = uint16(v15[3])<<8 | uint16(v15[4])
	return es
}

// frameContent returns voice frame i's content region (between its marker
// byte and its IMBE payload) within data, the payload's data segment.
func frameContent(data []byte, i int) []byte {
	off := markerOffset[i] + 1
	return data[off : off+voiceContentLen[i]]
}

type frameError string

func (e frameError) Error() string { return string(e) }

const (
	errBadSize        frameError = "p25voice: DFSI payload has the wrong length"
	errBadCodeword    frameError = "p25voice: each voice codeword must be exactly 11 bytes"
	errUnknownDUID    frameError = "p25voice: unknown super-frame DUID byte"
	errMarkerMismatch frameError = "p25voice: voice frame marker does not match the expected frame-type sequence"
)
