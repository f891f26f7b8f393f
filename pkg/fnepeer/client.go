// Package fnepeer implements the client side of the FNE (Fixed Network
// Equipment) peer login/keepalive protocol and carries both DMRD and P25D
// traffic over it. The FNE master itself — and everything downstream of a
// received frame — is an external collaborator; this package only owns the
// login handshake, keepalive cadence, and framing described by the
// Transport interface below.
package fnepeer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/openfne/zello-gateway/pkg/gatewayerr"
	"github.com/openfne/zello-gateway/pkg/logger"
	"github.com/openfne/zello-gateway/pkg/protocol"
)

// ConnectionState tracks progress through the RPTL/RPTK/RPTC login sequence.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateRPTLSent
	StateAuthenticated
	StateConfigSent
	StateConnected
)

// Config holds the parameters needed to log into an FNE master as a peer.
type Config struct {
	MasterIP    string
	MasterPort  int
	LocalPort   int
	Passphrase  string
	PeerID      uint32
	Callsign    string
	RXFreq      int
	TXFreq      int
	TXPower     int
	ColorCode   int
	Latitude    float64
	Longitude   float64
	Height      int
	Location    string
	Description string
	URL         string
	SoftwareID  string
	PackageID   string
}

// Transport is the boundary between the gateway's call-bridging logic and
// the wire protocol spoken to the FNE master. It exists so CallBridge can be
// tested against a fake without a real UDP peer.
type Transport interface {
	Start(ctx context.Context) error
	SendDMRD(*protocol.DMRDPacket) error
	SendP25D(*protocol.P25DPacket) error
	OnDMRD(func(*protocol.DMRDPacket))
	OnP25D(func(*protocol.P25DPacket))
	State() ConnectionState
}

// Client is the concrete UDP FNE peer implementation of Transport.
type Client struct {
	config     Config
	log        *logger.Logger
	conn       *net.UDPConn
	masterAddr *net.UDPAddr

	state   ConnectionState
	stateMu sync.RWMutex

	salt []byte

	dmrdHandler func(*protocol.DMRDPacket)
	p25dHandler func(*protocol.P25DPacket)
	handlerMu   sync.RWMutex

	lastPing   time.Time
	lastPingMu sync.RWMutex
}

// NewClient builds a Client for the given peer configuration.
func NewClient(cfg Config, log *logger.Logger) *Client {
	return &Client{
		config:   cfg,
		log:      log.WithComponent("fnepeer.client"),
		state:    StateDisconnected,
		lastPing: time.Now(),
	}
}

// Start resolves the master address, opens the local UDP socket, performs
// the login handshake, and then blocks running the receive and keepalive
// loops until ctx is canceled or a network error occurs.
func (c *Client) Start(ctx context.Context) error {
	masterAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", c.config.MasterIP, c.config.MasterPort))
	if err != nil {
		return gatewayerr.NetworkErr("fnepeer.Start.resolve", err)
	}
	c.masterAddr = masterAddr

	localAddr := &net.UDPAddr{IP: net.ParseIP("0.0.0.0"), Port: c.config.LocalPort}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return gatewayerr.NetworkErr("fnepeer.Start.listen", err)
	}
	c.conn = conn
	defer c.conn.Close()

	c.log.Info("fnepeer client started",
		logger.String("master", c.masterAddr.String()),
		logger.String("local", conn.LocalAddr().String()))

	if err := c.authenticate(); err != nil {
		return gatewayerr.AuthErr("fnepeer.Start.authenticate", err)
	}

	errChan := make(chan error, 2)
	go func() { errChan <- c.receiveLoop(ctx) }()
	go func() { errChan <- c.keepaliveLoop(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errChan:
		return gatewayerr.NetworkErr("fnepeer.Start.loop", err)
	}
}

func (c *Client) authenticate() error {
	c.log.Info("sending RPTL", logger.Int("peer_id", int(c.config.PeerID)))

	rptl := &protocol.RPTLPacket{RepeaterID: c.config.PeerID}
	if err := c.sendPacket(rptl.Encode); err != nil {
		return err
	}
	c.setState(StateRPTLSent)

	if err := c.expectRPTACK("RPTL"); err != nil {
		return err
	}
	c.setState(StateAuthenticated)

	c.log.Info("sending RPTK")
	c.salt = make([]byte, protocol.SaltLength)
	for i := range c.salt {
		c.salt[i] = byte(time.Now().UnixNano() % 256)
	}
	h := sha256.New()
	h.Write(c.salt)
	h.Write([]byte(c.config.Passphrase))
	challenge := h.Sum(nil)

	rptk := &protocol.RPTKPacket{RepeaterID: c.config.PeerID, Challenge: challenge}
	if err := c.sendPacket(rptk.Encode); err != nil {
		return err
	}
	if err := c.expectRPTACK("RPTK"); err != nil {
		return err
	}

	c.log.Info("sending RPTC")
	rptc := &protocol.RPTCPacket{
		RepeaterID:  c.config.PeerID,
		Callsign:    c.config.Callsign,
		RXFreq:      fmt.Sprintf("%d", c.config.RXFreq),
		TXFreq:      fmt.Sprintf("%d", c.config.TXFreq),
		TXPower:     fmt.Sprintf("%d", c.config.TXPower),
		ColorCode:   fmt.Sprintf("%d", c.config.ColorCode),
		Latitude:    fmt.Sprintf("%.4f", c.config.Latitude),
		Longitude:   fmt.Sprintf("%.4f", c.config.Longitude),
		Height:      fmt.Sprintf("%d", c.config.Height),
		Location:    c.config.Location,
		Description: c.config.Description,
		URL:         c.config.URL,
		SoftwareID:  c.config.SoftwareID,
		PackageID:   c.config.PackageID,
	}
	if err := c.sendPacket(rptc.Encode); err != nil {
		return err
	}
	c.setState(StateConfigSent)

	if err := c.expectRPTACK("RPTC"); err != nil {
		return err
	}
	c.setState(StateConnected)
	c.conn.SetReadDeadline(time.Time{})

	c.log.Info("fnepeer authentication complete")
	return nil
}

func (c *Client) sendPacket(encode func() ([]byte, error)) error {
	data, err := encode()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	_, err = c.conn.WriteToUDP(data, c.masterAddr)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (c *Client) expectRPTACK(afterWhat string) error {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buffer := make([]byte, 1024)
	n, _, err := c.conn.ReadFromUDP(buffer)
	if err != nil {
		return fmt.Errorf("waiting for RPTACK after %s: %w", afterWhat, err)
	}
	if n < protocol.RPTACKPacketSize || string(buffer[0:6]) != protocol.PacketTypeRPTACK {
		return fmt.Errorf("unexpected response to %s: %s", afterWhat, string(buffer[0:n]))
	}
	return nil
}

func (c *Client) receiveLoop(ctx context.Context) error {
	buffer := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := c.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return err
		}
		c.handlePacket(buffer[:n])
	}
}

func (c *Client) handlePacket(data []byte) {
	if len(data) < 4 {
		return
	}

	switch {
	case len(data) >= protocol.DMRDPacketSize && string(data[0:4]) == protocol.PacketTypeDMRD:
		packet := &protocol.DMRDPacket{}
		if err := packet.Parse(data); err != nil {
			c.log.Error("failed to parse DMRD packet", logger.Error(err))
			return
		}
		c.handlerMu.RLock()
		handler := c.dmrdHandler
		c.handlerMu.RUnlock()
		if handler != nil {
			handler(packet)
		}

	case len(data) >= protocol.P25DHeaderSize && string(data[0:4]) == protocol.PacketTypeP25D:
		packet := &protocol.P25DPacket{}
		if err := packet.Parse(data); err != nil {
			c.log.Error("failed to parse P25D packet", logger.Error(err))
			return
		}
		c.handlerMu.RLock()
		handler := c.p25dHandler
		c.handlerMu.RUnlock()
		if handler != nil {
			handler(packet)
		}

	case len(data) >= protocol.MSTPONGPacketSize && string(data[0:7]) == protocol.PacketTypeMSTPONG:
		c.updateLastPing()

	case len(data) >= protocol.MSTCLPacketSize && string(data[0:5]) == protocol.PacketTypeMSTCL:
		c.log.Warn("master sent MSTCL, closing connection")
		c.setState(StateDisconnected)

	default:
		c.log.Debug("received unknown packet type", logger.String("type", string(data[0:4])))
	}
}

func (c *Client) keepaliveLoop(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if c.State() != StateConnected {
				continue
			}
			ping := &protocol.RPTPINGPacket{RepeaterID: c.config.PeerID}
			if err := c.sendPacket(ping.Encode); err != nil {
				c.log.Error("failed to send RPTPING", logger.Error(err))
			}
		}
	}
}

// SendDMRD sends a DMR analogue voice/data packet to the master.
func (c *Client) SendDMRD(packet *protocol.DMRDPacket) error {
	if c.State() != StateConnected {
		return gatewayerr.NetworkErr("fnepeer.SendDMRD", errNotConnected)
	}
	data, err := packet.Encode()
	if err != nil {
		return gatewayerr.ProtocolErr("fnepeer.SendDMRD", err)
	}
	if _, err := c.conn.WriteToUDP(data, c.masterAddr); err != nil {
		return gatewayerr.NetworkErr("fnepeer.SendDMRD", err)
	}
	return nil
}

// SendP25D sends a P25 voice/control packet to the master.
func (c *Client) SendP25D(packet *protocol.P25DPacket) error {
	if c.State() != StateConnected {
		return gatewayerr.NetworkErr("fnepeer.SendP25D", errNotConnected)
	}
	data, err := packet.Encode()
	if err != nil {
		return gatewayerr.ProtocolErr("fnepeer.SendP25D", err)
	}
	if _, err := c.conn.WriteToUDP(data, c.masterAddr); err != nil {
		return gatewayerr.NetworkErr("fnepeer.SendP25D", err)
	}
	return nil
}

// OnDMRD registers the handler invoked for each received DMRD packet.
func (c *Client) OnDMRD(handler func(*protocol.DMRDPacket)) {
	c.handlerMu.Lock()
	c.dmrdHandler = handler
	c.handlerMu.Unlock()
}

// OnP25D registers the handler invoked for each received P25D packet.
func (c *Client) OnP25D(handler func(*protocol.P25DPacket)) {
	c.handlerMu.Lock()
	c.p25dHandler = handler
	c.handlerMu.Unlock()
}

// GetSalt returns the authentication salt as hex, for tests.
func (c *Client) GetSalt() string {
	if c.salt == nil {
		return ""
	}
	return hex.EncodeToString(c.salt)
}

func (c *Client) setState(state ConnectionState) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Client) updateLastPing() {
	c.lastPingMu.Lock()
	c.lastPing = time.Now()
	c.lastPingMu.Unlock()
}

type clientError string

func (e clientError) Error() string { return string(e) }

const errNotConnected clientError = "fnepeer: not connected to master"

var _ Transport = (*Client)(nil)
