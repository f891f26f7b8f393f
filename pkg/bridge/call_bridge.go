// Package bridge implements CallBridge, the gateway's single audio
// crosspoint between the Zello channel and the DMR1/DMR2/P25 radio legs.
package bridge

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openfne/zello-gateway/pkg/alias"
	"github.com/openfne/zello-gateway/pkg/codecheader"
	"github.com/openfne/zello-gateway/pkg/gatewayerr"
	"github.com/openfne/zello-gateway/pkg/logger"
	"github.com/openfne/zello-gateway/pkg/p25voice"
	"github.com/openfne/zello-gateway/pkg/protocol"
	"github.com/openfne/zello-gateway/pkg/vocoder"
)

// grantTDUPayload is the single payload byte an outbound grant-flagged TDU
// carries, distinguishing it from the plain (empty-payload) terminator
// endTxLocked sends.
const grantTDUPayload = 0x01

// Leg identifies one of the three radio-side call slots CallBridge
// multiplexes onto the single Zello channel.
type Leg int

const (
	LegDMR1  Leg = 0
	LegDMR2  Leg = 1
	LegP25   Leg = 2
	legCount     = 3
)

func (l Leg) String() string {
	switch l {
	case LegDMR1:
		return "dmr1"
	case LegDMR2:
		return "dmr2"
	case LegP25:
		return "p25"
	default:
		return "unknown"
	}
}

// RadioTransport is the subset of fnepeer.Client CallBridge depends on to
// move packets to and from the FNE master.
type RadioTransport interface {
	SendDMRD(packet *protocol.DMRDPacket) error
	SendP25D(packet *protocol.P25DPacket) error
}

// ZelloTransport is the subset of zello.Session CallBridge depends on to
// move audio and text to and from the Zello channel.
type ZelloTransport interface {
	StartStream(ctx context.Context) (uint32, error)
	StopStream() error
	SendAudio(pcm8k []int16) error
	SendText(text string) error
}

// Config controls CallBridge's routing and gain behavior.
type Config struct {
	SourceID              uint32
	DestinationID         uint32
	RepeaterID            uint32
	Timeslot              int
	TxAudioGain           float64
	RxAudioGain           float64
	OverrideSourceFromUDP bool
	GrantDemand           bool
	DropTime              time.Duration
}

func (c *Config) withDefaults() {
	if c.Timeslot == 0 {
		c.Timeslot = 1
	}
	if c.TxAudioGain == 0 {
		c.TxAudioGain = 1.0
	}
	if c.RxAudioGain == 0 {
		c.RxAudioGain = 1.0
	}
	if c.DropTime == 0 {
		c.DropTime = 2 * time.Second
	}
}

// CallSlot holds the de-jitter/assembly state for one inbound radio leg
// while a call from that leg is in progress.
type CallSlot struct {
	leg         Leg
	inCall      bool
	streamID    uint32
	srcID       uint32
	dstID       uint32
	pcmBuf      []int16
	es          p25voice.EncryptionSync
	rejectedEnc bool
}

// txState tracks the single in-progress Zello-to-radio (P25) transmission.
type txState struct {
	inCall      bool
	streamID    uint32
	n           int // voice unit index within the current super frame pair, 0..17
	pcmBuf      []int16
	scratch     p25voice.LDUBuffer
	srcOverride uint32 // explicit source-ID override, persists across calls
}

// CallBridge is the gateway's audio crosspoint: Zello audio in one
// direction becomes a P25 LDU1/LDU2 stream out the radio side, and
// DMR/P25 voice coming from the radio side becomes Zello audio.
type CallBridge struct {
	cfg       Config
	log       *logger.Logger
	transport RadioTransport
	zelloSess ZelloTransport
	p25Codec  vocoder.Codec
	dmrCodec  vocoder.Codec

	dedup   [legCount]*streamDedup
	dropper *dropTimer
	calls   *CallLogger
	aliases *alias.Map

	mu sync.Mutex
	tx txState
	rx [legCount]CallSlot

	// lastRadioSrcID is the most recent source ID observed on any radio
	// leg, consulted (via effectiveSourceIDLocked) when
	// Config.OverrideSourceFromUDP is set. Updated from the egress path,
	// read from the ingress path; atomic keeps it lock-free and avoids
	// coupling the two otherwise-independent directions.
	lastRadioSrcID atomic.Uint32
}

// New builds a CallBridge wired to transport (the FNE peer) and
// zelloSess (the Zello side), encoding P25 voice with p25Codec and DMR
// voice with dmrCodec. aliases may be nil, in which case page text falls
// back to the raw numeric radio ID.
func New(cfg Config, log *logger.Logger, transport RadioTransport, zelloSess ZelloTransport, p25Codec, dmrCodec vocoder.Codec, calls *CallLogger, aliases *alias.Map) *CallBridge {
	cfg.withDefaults()
	cb := &CallBridge{
		cfg:       cfg,
		log:       log,
		transport: transport,
		zelloSess: zelloSess,
		p25Codec:  p25Codec,
		dmrCodec:  dmrCodec,
		calls:     calls,
		aliases:   aliases,
	}
	for i := range cb.dedup {
		cb.dedup[i] = newStreamDedup()
	}
	cb.dropper = newDropTimer(cfg.DropTime, cb.dropTx)
	return cb
}

// Ingress consumes 8kHz PCM from the Zello side and, accumulated to
// 20ms units, encodes and forwards it as a P25 LDU1/LDU2 voice stream.
func (cb *CallBridge) Ingress(pcm8k []int16) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.tx.inCall {
		if isSilent(pcm8k) {
			return nil
		}
		cb.startTxLocked()
	}
	cb.dropper.Refresh()

	cb.tx.pcmBuf = append(cb.tx.pcmBuf, pcm8k...)
	const unit = 160 // 20ms @ 8kHz
	for len(cb.tx.pcmBuf) >= unit {
		frame := applyGain(cb.tx.pcmBuf[:unit], cb.cfg.TxAudioGain)
		cb.tx.pcmBuf = cb.tx.pcmBuf[unit:]

		codeword, err := cb.p25Codec.Encode(frame)
		if err != nil {
			return gatewayerr.CodecErr("bridge.Ingress", err)
		}
		if err := cb.tx.scratch.PutCodeword(cb.tx.n%9, codeword); err != nil {
			return gatewayerr.CodecErr("bridge.Ingress", err)
		}

		if cb.tx.n%9 == 8 {
			if err := cb.flushSuperFrame(cb.tx.n < 9); err != nil {
				return err
			}
		}
		cb.tx.n++
	}
	return nil
}

// startTxLocked begins a new TX call on the first non-silent PCM chunk
// after idle: assigns a random non-zero stream ID, optionally demands a
// channel grant, and starts the drop-timer stopwatch. Callers hold cb.mu.
func (cb *CallBridge) startTxLocked() {
	cb.tx = txState{inCall: true, streamID: nextStreamID(), n: 0, srcOverride: cb.tx.srcOverride}
	if cb.cfg.GrantDemand {
		cb.sendGrantTDU()
	}
}

// sendGrantTDU emits a grant-flagged P25 TDU ahead of voice, requesting the
// radio channel before the LDU1 that follows. Callers hold cb.mu.
func (cb *CallBridge) sendGrantTDU() {
	pkt := &protocol.P25DPacket{
		SourceID:      cb.effectiveSourceIDLocked(),
		DestinationID: cb.cfg.DestinationID,
		RepeaterID:    cb.cfg.RepeaterID,
		DUID:          protocol.DUIDTDU,
		StreamID:      cb.tx.streamID,
		Payload:       []byte{grantTDUPayload},
	}
	if err := cb.transport.SendP25D(pkt); err != nil {
		cb.log.Warn("failed to send grant-demand TDU", logger.Error(err))
	}
}

// isSilent reports whether pcm is entirely zero-valued.
func isSilent(pcm []int16) bool {
	for _, s := range pcm {
		if s != 0 {
			return false
		}
	}
	return true
}

// SetSourceOverride sets an explicit source-ID override applied to all
// outbound traffic (LC, TSBK) in place of the configured source ID, until
// cleared by passing 0. Takes precedence over OverrideSourceFromUDP.
func (cb *CallBridge) SetSourceOverride(id uint32) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.tx.srcOverride = id
}

// effectiveSourceIDLocked resolves the source ID CallBridge uses for
// outbound LC/TSBK fields: an explicit override first, then the most
// recently observed radio-side source ID when OverrideSourceFromUDP is
// set, falling back to the static configured source ID. Callers hold cb.mu.
func (cb *CallBridge) effectiveSourceIDLocked() uint32 {
	if cb.tx.srcOverride != 0 {
		return cb.tx.srcOverride
	}
	if cb.cfg.OverrideSourceFromUDP {
		if id := cb.lastRadioSrcID.Load(); id != 0 {
			return id
		}
	}
	return cb.cfg.SourceID
}

// flushSuperFrame packs the nine accumulated voice codewords into an
// LDU1 (isFirst) or LDU2 super frame and sends it as a P25D packet.
func (cb *CallBridge) flushSuperFrame(isFirst bool) error {
	srcID := cb.effectiveSourceIDLocked()
	var payload []byte
	if isFirst {
		lc := p25voice.LinkControl{LCO: 0x00}
		payload = p25voice.PackLDU1(&cb.tx.scratch, srcID, cb.cfg.DestinationID, cb.cfg.RepeaterID, lc)
	} else {
		es := p25voice.EncryptionSync{Algorithm: p25voice.AlgorithmClear}
		payload = p25voice.PackLDU2(&cb.tx.scratch, srcID, cb.cfg.DestinationID, cb.cfg.RepeaterID, es)
	}

	duid := protocol.DUIDLDU2
	if isFirst {
		duid = protocol.DUIDLDU1
	}
	pkt := &protocol.P25DPacket{
		SourceID:      srcID,
		DestinationID: cb.cfg.DestinationID,
		RepeaterID:    cb.cfg.RepeaterID,
		DUID:          duid,
		StreamID:      cb.tx.streamID,
		Payload:       payload,
	}
	if err := cb.transport.SendP25D(pkt); err != nil {
		return gatewayerr.NetworkErr("bridge.flushSuperFrame", err)
	}
	if cb.calls != nil {
		cb.calls.LogPacket(cb.tx.streamID, srcID, cb.cfg.DestinationID, cb.cfg.RepeaterID, "p25", cb.cfg.Timeslot, false)
	}
	return nil
}

// EndIngress closes out the current TX call, sending a terminator and
// flushing the call log.
func (cb *CallBridge) EndIngress() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.endTxLocked()
}

func (cb *CallBridge) endTxLocked() error {
	if !cb.tx.inCall {
		return nil
	}
	cb.dropper.Stop()
	srcID := cb.effectiveSourceIDLocked()
	pkt := &protocol.P25DPacket{
		SourceID:      srcID,
		DestinationID: cb.cfg.DestinationID,
		RepeaterID:    cb.cfg.RepeaterID,
		DUID:          protocol.DUIDTDU,
		StreamID:      cb.tx.streamID,
	}
	err := cb.transport.SendP25D(pkt)
	if cb.calls != nil {
		cb.calls.LogPacket(cb.tx.streamID, srcID, cb.cfg.DestinationID, cb.cfg.RepeaterID, "p25", cb.cfg.Timeslot, true)
	}
	cb.tx = txState{srcOverride: cb.tx.srcOverride}
	if err != nil {
		return gatewayerr.NetworkErr("bridge.endTx", err)
	}
	return nil
}

func (cb *CallBridge) dropTx() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.log.Warn("tx call dropped: no audio within drop window")
	_ = cb.endTxLocked()
}

// EgressP25 handles one inbound P25D packet from the radio side,
// decoding voice and forwarding it to Zello, or translating a TSBK page
// request into a Zello text alert.
func (cb *CallBridge) EgressP25(pkt *protocol.P25DPacket) error {
	slot := &cb.rx[LegP25]

	switch pkt.DUID {
	case protocol.DUIDTSDU:
		return cb.handlePage(pkt)
	case protocol.DUIDTDU, protocol.DUIDTDULC:
		cb.dedup[LegP25].End(pkt.StreamID)
		if slot.inCall && slot.streamID == pkt.StreamID {
			cb.flushRxTail(slot)
			*slot = CallSlot{}
			if err := cb.zelloSess.StopStream(); err != nil {
				return gatewayerr.NetworkErr("bridge.EgressP25", err)
			}
		}
		return nil
	case protocol.DUIDLDU1, protocol.DUIDLDU2:
		return cb.handleP25Voice(slot, pkt)
	default:
		return nil
	}
}

func (cb *CallBridge) handlePage(pkt *protocol.P25DPacket) error {
	tsbk, err := p25voice.UnpackTSBK(pkt.Payload)
	if err != nil {
		return gatewayerr.ProtocolErr("bridge.handlePage", err)
	}
	if tsbk.LCO != p25voice.TSBKIOSPCallAlrt {
		return nil
	}
	text := "page " + cb.displayName(tsbk.DstID)
	if err := cb.zelloSess.SendText(text); err != nil {
		return gatewayerr.NetworkErr("bridge.handlePage", err)
	}
	return nil
}

func (cb *CallBridge) handleP25Voice(slot *CallSlot, pkt *protocol.P25DPacket) error {
	frame, err := p25voice.Unpack(pkt.Payload)
	if err != nil {
		if p25voice.IsMarkerMismatch(err) {
			// Per-frame-type marker didn't match the expected 0x62..0x6A /
			// 0x6B..0x73 sequence at its documented offset: drop silently.
			return nil
		}
		return err
	}

	if pkt.SourceID != 0 {
		cb.lastRadioSrcID.Store(pkt.SourceID)
	}

	// Algorithm ID rides in LDU2's V15 content (the only frame the DFSI
	// layout actually carries it in); LDU1 never carries encryption sync,
	// so it always passes this check.
	if frame.Type == p25voice.LDU2 && !frame.ES.IsClear() {
		if !slot.rejectedEnc {
			cb.log.Warn("rejecting encrypted P25 call", logger.Any("stream_id", pkt.StreamID))
			slot.rejectedEnc = true
		}
		return nil
	}

	if !slot.inCall || slot.streamID != pkt.StreamID {
		if cb.dedup[LegP25].Seen(pkt.StreamID) && slot.inCall {
			return nil
		}
		*slot = CallSlot{leg: LegP25, inCall: true, streamID: pkt.StreamID, srcID: pkt.SourceID, dstID: pkt.DestinationID}
		if _, err := cb.zelloSess.StartStream(context.Background()); err != nil {
			cb.log.Warn("failed to start zello stream for radio call", logger.Error(err))
		}
	}

	for i := 0; i < p25voice.VoiceCount; i++ {
		pcm, err := cb.p25Codec.Decode(frame.Voice.Codeword(i))
		if err != nil {
			return gatewayerr.CodecErr("bridge.handleP25Voice", err)
		}
		slot.pcmBuf = append(slot.pcmBuf, applyGain(pcm, cb.cfg.RxAudioGain)...)
	}

	chunk := codecheader.Default.FrameSamples() / 2 // 480 samples @ 8kHz per 60ms
	for len(slot.pcmBuf) >= chunk {
		out := slot.pcmBuf[:chunk]
		slot.pcmBuf = slot.pcmBuf[chunk:]
		if err := cb.zelloSess.SendAudio(out); err != nil {
			return gatewayerr.NetworkErr("bridge.handleP25Voice", err)
		}
	}

	if cb.calls != nil {
		cb.calls.LogPacket(pkt.StreamID, pkt.SourceID, pkt.DestinationID, pkt.RepeaterID, "p25", cb.cfg.Timeslot, false)
	}
	return nil
}

func (cb *CallBridge) flushRxTail(slot *CallSlot) {
	if len(slot.pcmBuf) == 0 {
		return
	}
	if err := cb.zelloSess.SendAudio(slot.pcmBuf); err != nil {
		cb.log.Warn("failed to flush trailing rx audio", logger.Error(err))
	}
	if cb.calls != nil {
		cb.calls.LogPacket(slot.streamID, slot.srcID, slot.dstID, cb.cfg.RepeaterID, "p25", cb.cfg.Timeslot, true)
	}
}

// EgressDMR handles one inbound DMRD packet from a DMR1/DMR2 leg,
// decoding AMBE voice and forwarding it to Zello.
func (cb *CallBridge) EgressDMR(leg Leg, pkt *protocol.DMRDPacket) error {
	slot := &cb.rx[leg]

	if pkt.SourceID != 0 {
		cb.lastRadioSrcID.Store(pkt.SourceID)
	}

	if pkt.FrameType == protocol.FrameTypeVoiceTerminator {
		cb.dedup[leg].End(pkt.StreamID)
		if slot.inCall && slot.streamID == pkt.StreamID {
			cb.flushRxTail(slot)
			*slot = CallSlot{}
			if err := cb.zelloSess.StopStream(); err != nil {
				return gatewayerr.NetworkErr("bridge.EgressDMR", err)
			}
		}
		return nil
	}

	if !slot.inCall || slot.streamID != pkt.StreamID {
		if cb.dedup[leg].Seen(pkt.StreamID) && slot.inCall {
			return nil
		}
		*slot = CallSlot{leg: leg, inCall: true, streamID: pkt.StreamID, srcID: pkt.SourceID, dstID: pkt.DestinationID}
		if _, err := cb.zelloSess.StartStream(context.Background()); err != nil {
			cb.log.Warn("failed to start zello stream for radio call", logger.Error(err))
		}
	}

	pcm, err := cb.dmrCodec.Decode(pkt.Payload)
	if err != nil {
		return gatewayerr.CodecErr("bridge.EgressDMR", err)
	}
	slot.pcmBuf = append(slot.pcmBuf, applyGain(pcm, cb.cfg.RxAudioGain)...)

	chunk := codecheader.Default.FrameSamples() / 2
	for len(slot.pcmBuf) >= chunk {
		out := slot.pcmBuf[:chunk]
		slot.pcmBuf = slot.pcmBuf[chunk:]
		if err := cb.zelloSess.SendAudio(out); err != nil {
			return gatewayerr.NetworkErr("bridge.EgressDMR", err)
		}
	}

	if cb.calls != nil {
		cb.calls.LogPacket(pkt.StreamID, pkt.SourceID, pkt.DestinationID, pkt.RepeaterID, leg.String(), pkt.Timeslot, false)
	}
	return nil
}

// HandleRadioCommand translates a "page" command raised by the Zello
// session (a user paging a radio ID) into an outbound TSBK CALL_ALRT. The
// caller passes the configured source ID as src, matching ZelloSession's
// on_alert handler; the outbound SrcId still honors any src_override.
func (cb *CallBridge) HandleRadioCommand(cmd string, src, dst uint32) error {
	if cmd != "page" {
		return nil
	}
	cb.mu.Lock()
	srcID := cb.effectiveSourceIDLocked()
	cb.mu.Unlock()
	if srcID == 0 {
		srcID = src
	}

	tsbk := p25voice.TSBK{LCO: p25voice.TSBKIOSPCallAlrt, SrcID: srcID, DstID: dst}
	pkt := &protocol.P25DPacket{
		SourceID:      srcID,
		DestinationID: dst,
		RepeaterID:    cb.cfg.RepeaterID,
		DUID:          protocol.DUIDTSDU,
		StreamID:      nextStreamID(),
		Payload:       p25voice.PackTSBK(tsbk),
	}
	if err := cb.transport.SendP25D(pkt); err != nil {
		return gatewayerr.NetworkErr("bridge.HandleRadioCommand", err)
	}
	return nil
}

// CleanupStale drops dedup entries and call-log entries that outlived
// their terminator, guarding against a leaked slot.
func (cb *CallBridge) CleanupStale(maxAge time.Duration) {
	for _, d := range cb.dedup {
		d.CleanupOlderThan(maxAge)
	}
	if cb.calls != nil {
		cb.calls.CleanupStale(maxAge)
	}
}

func applyGain(pcm []int16, gain float64) []int16 {
	if gain == 1.0 {
		return pcm
	}
	out := make([]int16, len(pcm))
	for i, s := range pcm {
		v := float64(s) * gain
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// displayName returns the alias for id if one is loaded, otherwise the
// decimal radio ID.
func (cb *CallBridge) displayName(id uint32) string {
	if cb.aliases == nil {
		return formatRadioID(id)
	}
	return cb.aliases.DisplayName(id)
}

func formatRadioID(id uint32) string {
	const digits = "0123456789"
	if id == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = digits[id%10]
		id /= 10
	}
	return string(buf[i:])
}

// nextStreamID assigns a random non-zero stream ID, the same approach the
// DMR-FNE bridge uses for its outbound stream IDs.
func nextStreamID() uint32 {
	id := rand.Uint32()
	for id == 0 {
		id = rand.Uint32()
	}
	return id
}
