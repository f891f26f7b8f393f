// Package dmrvoice packs and unpacks the DMR voice burst analogue of
// p25voice's LDU super-frame: three half-rate AMBE codewords bit-interleaved
// into a single 33-byte DMR voice payload, the same frame structure the FNE
// DMRD packet carries in its payload field.
package dmrvoice

import "github.com/openfne/zello-gateway/pkg/gatewayerr"

// BurstSize is the wire length of one DMR voice payload (3 AMBE frames).
const BurstSize = 33

// FramesPerBurst is the number of AMBE half-rate codewords interleaved into
// one DMR voice burst.
const FramesPerBurst = 3

// AMBEFrame holds the three parameter groups (A, B, C) of one half-rate
// AMBE codeword: 24, 23, and 25 bits respectively, each right-justified in
// its uint32.
type AMBEFrame struct {
	A uint32 // 24 bits
	B uint32 // 23 bits
	C uint32 // 25 bits
}

// dmrATable maps the 24 AMBE A-parameter bits onto their bit positions in a
// DMR voice burst.
var dmrATable = []uint{
	0, 4, 8, 12, 16, 20, 24, 28, 32, 36, 40, 44,
	48, 52, 56, 60, 64, 68, 1, 5, 9, 13, 17, 21,
}

// dmrBTable maps the 23 AMBE B-parameter bits onto their bit positions.
var dmrBTable = []uint{
	25, 29, 33, 37, 41, 45, 49, 53, 57, 61, 65, 69,
	2, 6, 10, 14, 18, 22, 26, 30, 34, 38, 42,
}

// dmrCTable maps the 25 AMBE C-parameter bits onto their bit positions.
var dmrCTable = []uint{
	46, 50, 54, 58, 62, 66, 70, 3, 7, 11, 15, 19, 23,
	27, 31, 35, 39, 43, 47, 51, 55, 59, 63, 67, 71,
}

var bitMaskTable = []byte{0x80, 0x40, 0x20, 0x10, 0x08, 0x04, 0x02, 0x01}

func readBit(data []byte, pos uint) bool {
	bytePos := pos >> 3
	bitPos := pos & 7
	if int(bytePos) >= len(data) {
		return false
	}
	return (data[bytePos] & bitMaskTable[bitPos]) != 0
}

func writeBit(data []byte, pos uint, value bool) {
	bytePos := pos >> 3
	bitPos := pos & 7
	if int(bytePos) >= len(data) {
		return
	}
	if value {
		data[bytePos] |= bitMaskTable[bitPos]
	} else {
		data[bytePos] &^= bitMaskTable[bitPos]
	}
}

// frameBitOffset returns the bit position of AMBE frame n's (0, 1, or 2)
// copy of a table position, skipping the 48-bit embedded-signalling region
// that sits between frames 1 and 2 (bits 104-159) in a full 33-byte burst.
func frameBitOffset(basePos uint, frame int) uint {
	switch frame {
	case 0:
		return basePos
	case 1:
		pos := basePos + 72
		if pos >= 108 {
			pos += 48
		}
		return pos
	default:
		return basePos + 192
	}
}

// PackBurst renders three AMBE frames into a 33-byte DMR voice burst.
func PackBurst(frames [FramesPerBurst]AMBEFrame) ([]byte, error) {
	burst := make([]byte, BurstSize)

	for f := 0; f < FramesPerBurst; f++ {
		var mask uint32 = 0x800000
		for i := uint(0); i < 24; i++ {
			writeBit(burst, frameBitOffset(dmrATable[i], f), (frames[f].A&mask) != 0)
			mask >>= 1
		}
		mask = 0x400000
		for i := uint(0); i < 23; i++ {
			writeBit(burst, frameBitOffset(dmrBTable[i], f), (frames[f].B&mask) != 0)
			mask >>= 1
		}
		mask = 0x1000000
		for i := uint(0); i < 25; i++ {
			writeBit(burst, frameBitOffset(dmrCTable[i], f), (frames[f].C&mask) != 0)
			mask >>= 1
		}
	}

	return burst, nil
}

// UnpackBurst extracts the three interleaved AMBE frames from a 33-byte DMR
// voice burst.
func UnpackBurst(burst []byte) ([FramesPerBurst]AMBEFrame, error) {
	var frames [FramesPerBurst]AMBEFrame
	if len(burst) != BurstSize {
		return frames, gatewayerr.ProtocolErr("dmrvoice.UnpackBurst", errBadSize)
	}

	for f := 0; f < FramesPerBurst; f++ {
		var mask uint32 = 0x800000
		for i := uint(0); i < 24; i++ {
			if readBit(burst, frameBitOffset(dmrATable[i], f)) {
				frames[f].A |= mask
			}
			mask >>= 1
		}
		mask = 0x400000
		for i := uint(0); i < 23; i++ {
			if readBit(burst, frameBitOffset(dmrBTable[i], f)) {
				frames[f].B |= mask
			}
			mask >>= 1
		}
		mask = 0x1000000
		for i := uint(0); i < 25; i++ {
			if readBit(burst, frameBitOffset(dmrCTable[i], f)) {
				frames[f].C |= mask
			}
			mask >>= 1
		}
	}

	return frames, nil
}

type burstError string

func (e burstError) Error() string { return string(e) }

const errBadSize burstError = "dmrvoice: voice burst must be exactly 33 bytes"
