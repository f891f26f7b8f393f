package bridge

import (
	"context"
	"os"
	"testing"

	"github.com/openfne/zello-gateway/pkg/alias"
	"github.com/openfne/zello-gateway/pkg/logger"
	"github.com/openfne/zello-gateway/pkg/p25voice"
	"github.com/openfne/zello-gateway/pkg/protocol"
	"github.com/openfne/zello-gateway/pkg/vocoder"
)

type fakeRadioTransport struct {
	dmrd []*protocol.DMRDPacket
	p25d []*protocol.P25DPacket
}

func (f *fakeRadioTransport) SendDMRD(p *protocol.DMRDPacket) error {
	f.dmrd = append(f.dmrd, p)
	return nil
}

func (f *fakeRadioTransport) SendP25D(p *protocol.P25DPacket) error {
	f.p25d = append(f.p25d, p)
	return nil
}

type fakeZelloTransport struct {
	streamID  uint32
	stopped   bool
	audioSent [][]int16
	textSent  []string
}

func (f *fakeZelloTransport) StartStream(ctx context.Context) (uint32, error) {
	f.streamID++
	return f.streamID, nil
}

func (f *fakeZelloTransport) StopStream() error {
	f.stopped = true
	return nil
}

func (f *fakeZelloTransport) SendAudio(pcm8k []int16) error {
	cp := make([]int16, len(pcm8k))
	copy(cp, pcm8k)
	f.audioSent = append(f.audioSent, cp)
	return nil
}

func (f *fakeZelloTransport) SendText(text string) error {
	f.textSent = append(f.textSent, text)
	return nil
}

// stubCodec stands in for a real IMBE/AMBE vocoder in tests: it moves PCM
// to and from a fixed-size codeword without any real vocoder math, enough
// to exercise CallBridge's framing and control-flow in isolation.
type stubCodec struct {
	kind vocoder.Kind
}

func (c stubCodec) Kind() vocoder.Kind { return c.kind }

func (c stubCodec) Encode(pcm []int16) ([]byte, error) {
	return make([]byte, p25voice.CodewordSize), nil
}

func (c stubCodec) Decode(codeword []byte) ([]int16, error) {
	return make([]int16, 160), nil
}

func testCallBridge(t *testing.T) (*CallBridge, *fakeRadioTransport, *fakeZelloTransport) {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	radio := &fakeRadioTransport{}
	zelloTx := &fakeZelloTransport{}

	cb := New(Config{SourceID: 1, DestinationID: 9, RepeaterID: 42}, log, radio, zelloTx,
		stubCodec{kind: vocoder.KindIMBE}, stubCodec{kind: vocoder.KindAMBE}, nil, nil)
	return cb, radio, zelloTx
}

// nonSilentPCM returns n samples of non-zero PCM, since Ingress gates
// call-start on the first non-silent chunk.
func nonSilentPCM(n int) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = 100
	}
	return pcm
}

// testScratch returns an LDUBuffer filled with placeholder codewords, for
// building test DFSI payloads via p25voice.PackLDU1/PackLDU2.
func testScratch() *p25voice.LDUBuffer {
	var b p25voice.LDUBuffer
	for i := 0; i < p25voice.VoiceCount; i++ {
		_ = b.PutCodeword(i, make([]byte, p25voice.CodewordSize))
	}
	return &b
}

func TestIngressIgnoresSilenceWhenIdle(t *testing.T) {
	cb, radio, _ := testCallBridge(t)

	if err := cb.Ingress(make([]int16, 160*9)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(radio.p25d) != 0 {
		t.Fatalf("expected silence to not start a call, got %d packets", len(radio.p25d))
	}
}

func TestIngressFlushesLDU1AfterNineVoiceUnits(t *testing.T) {
	cb, radio, _ := testCallBridge(t)

	if err := cb.Ingress(nonSilentPCM(160 * 9)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(radio.p25d) != 1 {
		t.Fatalf("expected 1 P25D packet after 9 voice units, got %d", len(radio.p25d))
	}
	if radio.p25d[0].DUID != protocol.DUIDLDU1 {
		t.Fatalf("expected first super frame to be LDU1, got %v", radio.p25d[0].DUID)
	}
}

func TestIngressAlternatesLDU1AndLDU2(t *testing.T) {
	cb, radio, _ := testCallBridge(t)

	if err := cb.Ingress(nonSilentPCM(160 * 18)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(radio.p25d) != 2 {
		t.Fatalf("expected 2 P25D packets after 18 voice units, got %d", len(radio.p25d))
	}
	if radio.p25d[0].DUID != protocol.DUIDLDU1 || radio.p25d[1].DUID != protocol.DUIDLDU2 {
		t.Fatalf("expected LDU1 then LDU2, got %v then %v", radio.p25d[0].DUID, radio.p25d[1].DUID)
	}
}

func TestIngressAssignsRandomNonZeroStreamID(t *testing.T) {
	cb, radio, _ := testCallBridge(t)

	if err := cb.Ingress(nonSilentPCM(160 * 9)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cb.EndIngress(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cb.Ingress(nonSilentPCM(160 * 9)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(radio.p25d) < 2 {
		t.Fatalf("expected at least 2 packets, got %d", len(radio.p25d))
	}
	for _, pkt := range radio.p25d {
		if pkt.StreamID == 0 {
			t.Fatal("expected a non-zero stream ID")
		}
	}
	if radio.p25d[0].StreamID == radio.p25d[len(radio.p25d)-1].StreamID {
		t.Fatal("expected successive calls to get different stream IDs")
	}
}

func TestIngressSendsGrantTDUWhenDemanded(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	radio := &fakeRadioTransport{}
	zelloTx := &fakeZelloTransport{}
	cb := New(Config{SourceID: 1, DestinationID: 9, RepeaterID: 42, GrantDemand: true}, log, radio, zelloTx,
		stubCodec{kind: vocoder.KindIMBE}, stubCodec{kind: vocoder.KindAMBE}, nil, nil)

	if err := cb.Ingress(nonSilentPCM(160)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(radio.p25d) == 0 {
		t.Fatal("expected a grant TDU to be sent before voice")
	}
	first := radio.p25d[0]
	if first.DUID != protocol.DUIDTDU || len(first.Payload) == 0 || first.Payload[0] != grantTDUPayload {
		t.Fatalf("expected a grant-flagged TDU first, got %+v", first)
	}
}

func TestEndIngressSendsTerminator(t *testing.T) {
	cb, radio, _ := testCallBridge(t)

	if err := cb.Ingress(nonSilentPCM(160 * 9)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cb.EndIngress(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := radio.p25d[len(radio.p25d)-1]
	if last.DUID != protocol.DUIDTDU {
		t.Fatalf("expected terminator DUID, got %v", last.DUID)
	}
}

func TestSourceOverrideAppliesToOutboundLC(t *testing.T) {
	cb, radio, _ := testCallBridge(t)
	cb.SetSourceOverride(555)

	if err := cb.Ingress(nonSilentPCM(160 * 9)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(radio.p25d) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(radio.p25d))
	}
	if radio.p25d[0].SourceID != 555 {
		t.Fatalf("expected overridden source ID 555, got %d", radio.p25d[0].SourceID)
	}
}

func TestEgressP25StartsZelloStreamOnNewCall(t *testing.T) {
	cb, _, zelloTx := testCallBridge(t)

	payload := p25voice.PackLDU1(testScratch(), 1, 9, 42, p25voice.LinkControl{})

	pkt := &protocol.P25DPacket{DUID: protocol.DUIDLDU1, StreamID: 55, SourceID: 1, DestinationID: 9, Payload: payload}
	if err := cb.EgressP25(pkt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if zelloTx.streamID != 1 {
		t.Fatalf("expected a Zello stream to be started, got streamID %d", zelloTx.streamID)
	}
}

func TestEgressP25StopsZelloStreamOnTerminator(t *testing.T) {
	cb, _, zelloTx := testCallBridge(t)

	payload := p25voice.PackLDU1(testScratch(), 1, 9, 42, p25voice.LinkControl{})
	_ = cb.EgressP25(&protocol.P25DPacket{DUID: protocol.DUIDLDU1, StreamID: 55, SourceID: 1, DestinationID: 9, Payload: payload})

	if err := cb.EgressP25(&protocol.P25DPacket{DUID: protocol.DUIDTDU, StreamID: 55}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !zelloTx.stopped {
		t.Fatal("expected Zello stream to be stopped on terminator")
	}
}

func TestEgressP25RejectsEncryptedCall(t *testing.T) {
	cb, _, zelloTx := testCallBridge(t)

	payload := p25voice.PackLDU2(testScratch(), 1, 9, 42, p25voice.EncryptionSync{Algorithm: 0x01})

	pkt := &protocol.P25DPacket{DUID: protocol.DUIDLDU2, StreamID: 77, SourceID: 1, DestinationID: 9, Payload: payload}
	if err := cb.EgressP25(pkt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if zelloTx.streamID != 0 {
		t.Fatal("expected encrypted call not to start a Zello stream")
	}
}

func TestEgressP25DropsOnMarkerMismatch(t *testing.T) {
	cb, _, zelloTx := testCallBridge(t)

	payload := p25voice.PackLDU1(testScratch(), 1, 9, 42, p25voice.LinkControl{})
	payload[len(payload)-1] ^= 0xFF // corrupt the final voice frame's IMBE, leaving headers intact
	payload[p25voice.HeaderSize] = 0xFF // corrupt the first frame's marker

	pkt := &protocol.P25DPacket{DUID: protocol.DUIDLDU1, StreamID: 55, SourceID: 1, DestinationID: 9, Payload: payload}
	if err := cb.EgressP25(pkt); err != nil {
		t.Fatalf("expected marker mismatch to be dropped silently, got error: %v", err)
	}

	if zelloTx.streamID != 0 {
		t.Fatal("expected a marker-mismatched LDU not to start a Zello stream")
	}
}

func TestEgressP25TranslatesPageToZelloText(t *testing.T) {
	cb, _, zelloTx := testCallBridge(t)

	tsbk := p25voice.TSBK{LCO: p25voice.TSBKIOSPCallAlrt, SrcID: 1, DstID: 3112345}
	pkt := &protocol.P25DPacket{DUID: protocol.DUIDTSDU, Payload: p25voice.PackTSBK(tsbk)}

	if err := cb.EgressP25(pkt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(zelloTx.textSent) != 1 {
		t.Fatalf("expected 1 text message sent, got %d", len(zelloTx.textSent))
	}
}

func TestEgressP25TranslatesPageUsingAlias(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/aliases.yaml"
	if err := os.WriteFile(path, []byte("aliases:\n  - radio_id: 3112345\n    alias: N0CALL\n"), 0o644); err != nil {
		t.Fatalf("unexpected error writing alias file: %v", err)
	}
	aliases, err := alias.Load(path)
	if err != nil {
		t.Fatalf("unexpected error loading aliases: %v", err)
	}

	log := logger.New(logger.Config{Level: "error"})
	radio := &fakeRadioTransport{}
	zelloTx := &fakeZelloTransport{}
	cb := New(Config{SourceID: 1, DestinationID: 9, RepeaterID: 42}, log, radio, zelloTx,
		stubCodec{kind: vocoder.KindIMBE}, stubCodec{kind: vocoder.KindAMBE}, nil, aliases)

	tsbk := p25voice.TSBK{LCO: p25voice.TSBKIOSPCallAlrt, SrcID: 1, DstID: 3112345}
	pkt := &protocol.P25DPacket{DUID: protocol.DUIDTSDU, Payload: p25voice.PackTSBK(tsbk)}

	if err := cb.EgressP25(pkt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(zelloTx.textSent) != 1 || zelloTx.textSent[0] != "page N0CALL" {
		t.Fatalf("expected page text to use the alias, got %v", zelloTx.textSent)
	}
}

func TestHandleRadioCommandSendsPageTSBK(t *testing.T) {
	cb, radio, _ := testCallBridge(t)

	if err := cb.HandleRadioCommand("page", 1, 3112345); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(radio.p25d) != 1 {
		t.Fatalf("expected 1 P25D packet sent, got %d", len(radio.p25d))
	}
	if radio.p25d[0].DUID != protocol.DUIDTSDU {
		t.Fatalf("expected TSDU DUID, got %v", radio.p25d[0].DUID)
	}
}

func TestHandleRadioCommandHonorsSourceOverride(t *testing.T) {
	cb, radio, _ := testCallBridge(t)
	cb.SetSourceOverride(555)

	if err := cb.HandleRadioCommand("page", 1, 3112345); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(radio.p25d) != 1 {
		t.Fatalf("expected 1 P25D packet sent, got %d", len(radio.p25d))
	}
	if radio.p25d[0].SourceID != 555 {
		t.Fatalf("expected overridden source ID 555, got %d", radio.p25d[0].SourceID)
	}
}

func TestHandleRadioCommandIgnoresUnknownCommand(t *testing.T) {
	cb, radio, _ := testCallBridge(t)

	if err := cb.HandleRadioCommand("unknown", 1, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(radio.p25d) != 0 {
		t.Fatal("expected no packets sent for an unrecognized command")
	}
}
