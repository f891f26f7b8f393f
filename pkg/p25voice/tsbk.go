package p25voice

// TSBK carries one P25 Trunking Signaling Block. The gateway only originates
// and recognizes the one opcode it needs for Zello page passthrough.
type TSBK struct {
	LCO   byte // Link Control Opcode
	DstID uint32
	SrcID uint32
}

// TSBKIOSPCallAlrt is the LCO for an individual call alert (page).
const TSBKIOSPCallAlrt byte = 0x8A

// TSBKSize is the fixed wire length of one TSBK payload as carried in a
// DUIDTSDU P25D packet (12 bytes: LCO + 24-bit dst + 24-bit src + pad).
const TSBKSize = 12

// PackTSBK renders t into its fixed 12-byte wire form.
func PackTSBK(t TSBK) []byte {
	buf := make([]byte, TSBKSize)
	buf[0] = t.LCO
	buf[1] = byte(t.DstID >> 16)
	buf[2] = byte(t.DstID >> 8)
	buf[3] = byte(t.DstID)
	buf[4] = byte(t.SrcID >> 16)
	buf[5] = byte(t.SrcID >> 8)
	buf[6] = byte(t.SrcID)
	return buf
}

// UnpackTSBK parses a TSBK from its wire form. Payloads shorter than
// TSBKSize are zero-extended by the caller's framing layer, not here.
func UnpackTSBK(buf []byte) (TSBK, error) {
	if len(buf) < 7 {
		return TSBK{}, gatewayErrTSBKShort
	}
	return TSBK{
		LCO:   buf[0],
		DstID: uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]),
		SrcID: uint32(buf[4])<<16 | uint32(buf[5])<<8 | uint32(buf[6]),
	}, nil
}

var gatewayErrTSBKShort = frameError("p25voice: TSBK payload shorter than 7 bytes")
