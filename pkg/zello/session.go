// Package zello implements a WebSocket client for Zello's control-and-audio
// protocol: JSON command frames for logon/stream lifecycle/paging, binary
// frames carrying Opus-encoded audio, and the reconnect/re-auth policy that
// keeps a channel session alive across transient network loss.
package zello

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openfne/zello-gateway/pkg/codecheader"
	"github.com/openfne/zello-gateway/pkg/gatewayerr"
	"github.com/openfne/zello-gateway/pkg/jwtsign"
	"github.com/openfne/zello-gateway/pkg/keepalive"
	"github.com/openfne/zello-gateway/pkg/logger"
	"github.com/openfne/zello-gateway/pkg/resample"
)

// State is one of the ZelloSession lifecycle states.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingLogon
	StateAuthenticated
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingLogon:
		return "awaiting_logon"
	case StateAuthenticated:
		return "authenticated"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// audioCodec is satisfied by opusCodec in both the opus and !opus build
// variants (see opus_support.go / opus_stub.go).
type audioCodec interface {
	Encode(pcm []int16) ([]byte, error)
	Decode(payload []byte, frameSamples int) ([]int16, error)
	SampleRate() int
}

// Config holds the fixed parameters of one Zello channel session.
type Config struct {
	URL          string
	Username     string
	Password     string
	Channel      string
	AuthToken    string
	Signer       *jwtsign.Signer
	SourceID     uint32
	PingInterval time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	return c
}

// Callbacks delivers events out of the receive loop to CallBridge.
type Callbacks struct {
	OnPCMReceived  func(samples []int16, from string)
	OnRadioCommand func(cmd string, src, dst uint32)
	OnStreamEnd    func()
}

// Session is a single Zello WebSocket channel connection.
type Session struct {
	cfg Config
	log *logger.Logger
	cb  Callbacks

	up *resample.Util // 8kHz -> 16kHz, for outbound audio

	keepalive *keepalive.Timer

	mu            sync.Mutex
	conn          *websocket.Conn
	state         State
	seq           uint32
	txStreamID    uint32
	lastFrom      string
	refreshToken  string
	stopReconnect bool
	txAccumulator []int16
	encoder       audioCodec

	rx        map[uint32]*rxStream
	writeMu   sync.Mutex
	pendingTx chan uint32 // signaled by receiveLoop when a start_stream ack arrives
}

type rxStream struct {
	decoder     audioCodec
	header      codecheader.Header
	downsampler *resample.Util // header.SampleRate -> 8kHz, rebuilt when header.SampleRate changes
	accumulator []int16
}

// New builds a Session in StateDisconnected. It does not dial.
func New(cfg Config, log *logger.Logger, cb Callbacks) (*Session, error) {
	cfg = cfg.withDefaults()
	enc, err := newCodec(codecheader.Default.SampleRate)
	if err != nil {
		return nil, err
	}
	s := &Session{
		cfg:     cfg,
		log:     log.WithComponent("zello"),
		cb:      cb,
		up:      resample.New(8000, codecheader.Default.SampleRate),
		encoder: enc,
		state:   StateDisconnected,
		seq:     1,
		rx:      make(map[uint32]*rxStream),
	}
	s.keepalive = keepalive.New(cfg.PingInterval, 0, s.sendPing, nil)
	return s, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run dials, authenticates, and serves the session until ctx is canceled or
// reconnect is exhausted. It owns the full lifecycle including reconnects.
func (s *Session) Run(ctx context.Context) error {
	kaCtx, kaCancel := context.WithCancel(ctx)
	defer kaCancel()

	for {
		if err := s.connect(ctx); err != nil {
			s.setState(StateDisconnected)
			if s.reconnect(ctx) {
				continue
			}
			return err
		}
		if err := s.authenticate(ctx); err != nil {
			s.closeConn()
			if s.reconnect(ctx) {
				continue
			}
			return err
		}

		go s.keepalive.Run(kaCtx)

		err := s.receiveLoop(ctx)
		s.closeConn()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.reconnect(ctx) {
			return err
		}
	}
}

// connect opens the WebSocket. On failure the session stays Disconnected.
func (s *Session) connect(ctx context.Context) error {
	s.setState(StateConnecting)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return gatewayerr.NetworkErr("zello.connect", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(StateAwaitingLogon)
	return nil
}

// authenticate sends logon and blocks until on_channel_status or ctx expiry.
func (s *Session) authenticate(ctx context.Context) error {
	s.mu.Lock()
	refresh := s.refreshToken
	s.mu.Unlock()

	msg := map[string]interface{}{
		"command":  "logon",
		"username": s.cfg.Username,
		"password": s.cfg.Password,
		"channel":  s.cfg.Channel,
		"seq":      s.nextSeq(),
	}
	if refresh != "" {
		msg["refresh_token"] = refresh
		msg["auth_token"] = nil
	} else {
		token := s.cfg.AuthToken
		if s.cfg.Signer != nil {
			signed, err := s.cfg.Signer.Sign(s.cfg.Username)
			if err != nil {
				return gatewayerr.AuthErr("zello.authenticate", err)
			}
			token = signed
		}
		msg["auth_token"] = token
	}

	if err := s.writeJSON(msg); err != nil {
		return err
	}

	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()
	done := make(chan error, 1)
	go func() {
		for {
			if s.State() == StateAuthenticated {
				done <- nil
				return
			}
			select {
			case <-ctx.Done():
				done <- ctx.Err()
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
	}()

	select {
	case err := <-done:
		return err
	case <-deadline.C:
		return gatewayerr.AuthErr("zello.authenticate", errAuthTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reconnect implements the bounded, sticky retry policy. It returns true
// when the caller should attempt connect()/authenticate() again.
func (s *Session) reconnect(ctx context.Context) bool {
	s.mu.Lock()
	if s.stopReconnect {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.setState(StateReconnecting)
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.cfg.RetryDelay):
		}
		if err := s.connect(ctx); err == nil {
			if err := s.authenticate(ctx); err == nil {
				s.mu.Lock()
				s.stopReconnect = false
				s.mu.Unlock()
				return true
			}
			s.closeConn()
		}
		s.log.Warn("zello reconnect attempt failed", logger.Int("attempt", attempt))
	}

	s.mu.Lock()
	s.stopReconnect = true
	s.mu.Unlock()
	s.log.Error("zello reconnect exhausted, giving up until explicit reset")
	return false
}

// ResetReconnect clears the sticky stop_reconnect flag set after exhausting
// retries, allowing an operator-triggered restart to try again.
func (s *Session) ResetReconnect() {
	s.mu.Lock()
	s.stopReconnect = false
	s.mu.Unlock()
}

// StartStream requests a new outbound audio stream and returns the
// server-assigned stream_id.
func (s *Session) StartStream(ctx context.Context) (uint32, error) {
	ack := make(chan uint32, 1)
	s.mu.Lock()
	s.pendingTx = ack
	s.mu.Unlock()

	msg := map[string]interface{}{
		"command":         "start_stream",
		"channel":         s.cfg.Channel,
		"seq":             s.nextSeq(),
		"type":            "audio",
		"codec":           "opus",
		"codec_header":    codecheader.Default.Encode(),
		"packet_duration": 60,
	}
	if err := s.writeJSON(msg); err != nil {
		return 0, err
	}

	select {
	case id := <-ack:
		s.mu.Lock()
		s.txStreamID = id
		s.mu.Unlock()
		return id, nil
	case <-time.After(5 * time.Second):
		return 0, gatewayerr.NetworkErr("zello.StartStream", errStreamStartTimeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// StopStream ends the current outbound stream.
func (s *Session) StopStream() error {
	s.mu.Lock()
	id := s.txStreamID
	s.txAccumulator = nil
	s.mu.Unlock()

	return s.writeJSON(map[string]interface{}{
		"command":   "stop_stream",
		"seq":       s.nextSeq(),
		"stream_id": id,
	})
}

// SendAudio accepts 8kHz PCM, upsamples to 16kHz, and emits 60ms Opus frames
// once the accumulator holds enough samples.
func (s *Session) SendAudio(pcm8k []int16) error {
	samples := make([]resample.Sample, len(pcm8k))
	for i, v := range pcm8k {
		samples[i] = resample.Sample(v)
	}
	up, err := s.up.Resample(samples)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, v := range up {
		s.txAccumulator = append(s.txAccumulator, int16(v))
	}
	streamID := s.txStreamID
	s.mu.Unlock()

	const frameSize = 960 // 60ms @ 16kHz
	for {
		s.mu.Lock()
		if len(s.txAccumulator) < frameSize {
			s.mu.Unlock()
			break
		}
		frame := make([]int16, frameSize)
		copy(frame, s.txAccumulator[:frameSize])
		s.txAccumulator = s.txAccumulator[frameSize:]
		s.mu.Unlock()

		encoded, err := s.encoder.Encode(frame)
		if err != nil {
			return err
		}
		payload := make([]byte, 9+len(encoded))
		payload[0] = 0x01
		putUint32BE(payload[1:5], streamID)
		copy(payload[9:], encoded)

		if err := s.writeBinary(payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) sendPing() error {
	return s.writeJSON(map[string]interface{}{
		"command": "send_text_message",
		"channel": s.cfg.Channel,
		"text":    "ping",
		"for":     s.cfg.Username,
		"seq":     s.nextSeq(),
	})
}

// SendText posts a text message to the channel, used to surface a radio
// page as a Zello text alert since Zello has no native CALL_ALRT concept.
func (s *Session) SendText(text string) error {
	return s.writeJSON(map[string]interface{}{
		"command": "send_text_message",
		"channel": s.cfg.Channel,
		"text":    text,
		"seq":     s.nextSeq(),
	})
}

// receiveLoop is the single reader of the WebSocket. It returns when the
// connection closes or ctx is canceled.
func (s *Session) receiveLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return gatewayerr.NetworkErr("zello.receiveLoop", errNoConnection)
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return gatewayerr.NetworkErr("zello.receiveLoop", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleBinary(data)
		case websocket.TextMessage:
			s.handleText(data)
		case websocket.CloseMessage:
			return nil
		}
	}
}

func (s *Session) handleBinary(data []byte) {
	if len(data) < 9 || data[0] != 0x01 {
		return
	}
	streamID := uint32(data[1])<<24 | uint32(data[2])<<16 | uint32(data[3])<<8 | uint32(data[4])
	payload := data[9:]

	s.mu.Lock()
	rx, ok := s.rx[streamID]
	if !ok {
		rx = &rxStream{header: codecheader.Default}
		s.rx[streamID] = rx
	}
	s.mu.Unlock()

	if rx.decoder == nil {
		dec, err := newCodec(rx.header.SampleRate)
		if err != nil {
			s.log.Error("zello decoder init failed", logger.Error(err))
			return
		}
		rx.decoder = dec
	}
	if rx.decoder.SampleRate() != rx.header.SampleRate {
		dec, err := newCodec(rx.header.SampleRate)
		if err != nil {
			s.log.Error("zello decoder rebuild failed", logger.Error(err))
			return
		}
		rx.decoder = dec
	}
	if rx.downsampler == nil || rx.downsampler.InputRate != rx.header.SampleRate {
		rx.downsampler = resample.New(rx.header.SampleRate, 8000)
	}

	pcm, err := rx.decoder.Decode(payload, rx.header.FrameSamples())
	if err != nil {
		s.log.Warn("zello opus decode failed, dropping frame", logger.Error(err))
		return
	}

	samples := make([]resample.Sample, len(pcm))
	for i, v := range pcm {
		samples[i] = resample.Sample(v)
	}
	down, err := rx.downsampler.Resample(samples)
	if err != nil {
		return
	}

	rx.accumulator = append(rx.accumulator, toInt16Slice(down)...)
	const flushSize = 480 // 60ms @ 8kHz
	from := s.currentFrom()
	for len(rx.accumulator) >= flushSize {
		chunk := make([]int16, flushSize)
		copy(chunk, rx.accumulator[:flushSize])
		rx.accumulator = rx.accumulator[flushSize:]
		if s.cb.OnPCMReceived != nil {
			s.cb.OnPCMReceived(chunk, from)
		}
	}
}

func (s *Session) currentFrom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFromLocked()
}

func (s *Session) lastFromLocked() string { return s.lastFrom }

type controlMessage struct {
	Command      string `json:"command"`
	From         string `json:"from"`
	StreamID     *uint32 `json:"stream_id"`
	CodecHeader  string `json:"codec_header"`
	Text         string `json:"text"`
	RefreshToken string `json:"refresh_token"`
	Success      *bool  `json:"success"`
}

func (s *Session) handleText(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Warn("zello malformed control frame", logger.Error(err))
		return
	}

	s.mu.Lock()
	if msg.From != "" {
		s.lastFrom = msg.From
	}
	if msg.RefreshToken != "" {
		s.refreshToken = msg.RefreshToken
	}
	pendingTx := s.pendingTx
	s.mu.Unlock()

	if msg.CodecHeader != "" && msg.StreamID != nil {
		if hdr, err := decodeCodecHeaderBase64(msg.CodecHeader); err == nil {
			s.mu.Lock()
			rx, ok := s.rx[*msg.StreamID]
			if !ok {
				rx = &rxStream{}
				s.rx[*msg.StreamID] = rx
			}
			rx.header = hdr
			s.mu.Unlock()
		}
	}

	switch {
	case msg.Command == "on_alert" && strings.HasPrefix(msg.Text, "page"):
		if dst, err := parsePageDestination(msg.Text); err == nil {
			if s.cb.OnRadioCommand != nil {
				s.cb.OnRadioCommand("page", s.cfg.SourceID, dst)
			}
		}
	case msg.Command == "on_channel_status":
		s.setState(StateAuthenticated)
	case msg.Command == "on_stream_stop" && msg.StreamID != nil:
		if s.cb.OnStreamEnd != nil {
			s.cb.OnStreamEnd()
		}
	case msg.StreamID != nil:
		if pendingTx != nil {
			select {
			case pendingTx <- *msg.StreamID:
				s.mu.Lock()
				s.pendingTx = nil
				s.mu.Unlock()
			default:
			}
		}
	}
}

// parsePageDestination extracts the numeric destination RID from an
// on_alert payload of the form "page<rid>" or "page <rid>".
func parsePageDestination(text string) (uint32, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(text, "page"))
	rest = strings.TrimPrefix(rest, " ")
	n, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 32)
	if err != nil {
		return 0, gatewayerr.ProtocolErr("zello.parsePageDestination", err)
	}
	return uint32(n), nil
}

func decodeCodecHeaderBase64(b64 string) (codecheader.Header, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return codecheader.Header{}, gatewayerr.ProtocolErr("zello.decodeCodecHeader", err)
	}
	return codecheader.Decode(raw)
}

func (s *Session) nextSeq() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq
	s.seq++
	return seq
}

func (s *Session) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return gatewayerr.InternalErr("zello.writeJSON", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return gatewayerr.NetworkErr("zello.writeJSON", errNoConnection)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return gatewayerr.NetworkErr("zello.writeJSON", err)
	}
	return nil
}

func (s *Session) writeBinary(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return gatewayerr.NetworkErr("zello.writeBinary", errNoConnection)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return gatewayerr.NetworkErr("zello.writeBinary", err)
	}
	return nil
}

func (s *Session) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func putUint32BE(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func toInt16Slice(in []resample.Sample) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		out[i] = int16(v)
	}
	return out
}

type sessionError string

func (e sessionError) Error() string { return string(e) }

const (
	errAuthTimeout        = sessionError("zello: timed out waiting for on_channel_status")
	errStreamStartTimeout = sessionError("zello: timed out waiting for start_stream ack")
	errNoConnection       = sessionError("zello: no active connection")
)
