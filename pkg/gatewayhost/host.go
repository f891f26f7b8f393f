// Package gatewayhost wires together the gateway's components — the
// Zello channel session, the FNE peer connection, CallBridge, call
// persistence, metrics, and MQTT publishing — and owns their combined
// startup and shutdown.
package gatewayhost

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/openfne/zello-gateway/pkg/alias"
	"github.com/openfne/zello-gateway/pkg/bridge"
	"github.com/openfne/zello-gateway/pkg/config"
	"github.com/openfne/zello-gateway/pkg/database"
	"github.com/openfne/zello-gateway/pkg/fnepeer"
	"github.com/openfne/zello-gateway/pkg/jwtsign"
	"github.com/openfne/zello-gateway/pkg/logger"
	"github.com/openfne/zello-gateway/pkg/metrics"
	"github.com/openfne/zello-gateway/pkg/mqtt"
	"github.com/openfne/zello-gateway/pkg/protocol"
	"github.com/openfne/zello-gateway/pkg/vocoder"
	"github.com/openfne/zello-gateway/pkg/zello"
)

// cleanupInterval is how often CallBridge's stale dedup/call-log entries
// are swept.
const cleanupInterval = 30 * time.Second

// Host owns every gateway component for the lifetime of one run.
type Host struct {
	cfg config.Config
	log *logger.Logger

	db         *database.DB
	calls      *database.CallRecordRepository
	roster     *database.RosterRepository
	aliases    *alias.Map
	collector  *metrics.Collector
	promServer *metrics.PrometheusServer
	mqttPub    *mqtt.Publisher
	peer       *fnepeer.Client
	zelloSess  *zello.Session
	callLogger *bridge.CallLogger
	callBridge *bridge.CallBridge
}

// New constructs every component from cfg but starts nothing.
func New(cfg config.Config, log *logger.Logger) (*Host, error) {
	h := &Host{cfg: cfg, log: log}

	db, err := database.NewDB(database.Config{Path: cfg.Database.Path}, log)
	if err != nil {
		return nil, fmt.Errorf("gatewayhost: open database: %w", err)
	}
	h.db = db
	h.calls = database.NewCallRecordRepository(db.GetDB())
	h.roster = database.NewRosterRepository(db.GetDB())

	h.aliases = alias.New()
	if cfg.Zello.AliasFile != "" {
		if h.aliases, err = alias.Load(cfg.Zello.AliasFile); err != nil {
			return nil, fmt.Errorf("gatewayhost: load alias file: %w", err)
		}
		h.syncRosterFromAliases()
	}

	h.collector = metrics.NewCollector()
	h.promServer = metrics.NewPrometheusServer(metrics.PrometheusConfig{
		Enabled: cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled,
		Port:    cfg.Metrics.Prometheus.Port,
		Path:    cfg.Metrics.Prometheus.Path,
	}, h.collector, log)

	h.mqttPub = mqtt.New(mqtt.Config{
		Enabled:     cfg.MQTT.Enabled,
		Broker:      cfg.MQTT.Broker,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		QoS:         cfg.MQTT.QoS,
		Retained:    cfg.MQTT.Retained,
	}, log)

	h.callLogger = bridge.NewCallLogger(h.calls, log)

	h.peer = fnepeer.NewClient(fnepeer.Config{
		MasterIP:   cfg.FNEPeer.MasterIP,
		MasterPort: cfg.FNEPeer.MasterPort,
		LocalPort:  cfg.FNEPeer.Port,
		Passphrase: cfg.FNEPeer.Passphrase,
		PeerID:     uint32(cfg.FNEPeer.RadioID),
		Callsign:   cfg.FNEPeer.Callsign,
		ColorCode:  cfg.FNEPeer.ColorCode,
	}, log)

	var signer *jwtsign.Signer
	if cfg.Zello.PemFilePath != "" {
		pemData, readErr := os.ReadFile(cfg.Zello.PemFilePath)
		if readErr != nil {
			return nil, fmt.Errorf("gatewayhost: read zello PEM file: %w", readErr)
		}
		signer, err = jwtsign.NewFromPEM(pemData, cfg.Zello.Issuer, time.Hour)
		if err != nil {
			return nil, fmt.Errorf("gatewayhost: build jwt signer: %w", err)
		}
	}
	// zelloSess falls back to the static zelloAuthToken when signer is
	// nil (no PEM configured).
	h.zelloSess, err = zello.New(zello.Config{
		URL:          cfg.Zello.URL,
		Username:     cfg.Zello.Username,
		Password:     cfg.Zello.Password,
		Channel:      cfg.Zello.Channel,
		AuthToken:    cfg.Zello.AuthToken,
		Signer:       signer,
		SourceID:     cfg.Bridge.SourceID,
		PingInterval: time.Duration(cfg.Zello.PingInterval) * time.Millisecond,
	}, log, zello.Callbacks{
		OnPCMReceived:  h.onZelloAudio,
		OnRadioCommand: h.onZelloRadioCommand,
		OnStreamEnd:    h.onZelloStreamEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("gatewayhost: build zello session: %w", err)
	}

	p25Codec := vocoder.NewIMBECodec()
	dmrCodec := vocoder.NewAMBECodec()

	h.callBridge = bridge.New(bridge.Config{
		SourceID:              cfg.Bridge.SourceID,
		DestinationID:         cfg.Bridge.DestinationID,
		RepeaterID:            cfg.Bridge.RepeaterID,
		Timeslot:              cfg.Bridge.Timeslot,
		TxAudioGain:           cfg.Bridge.TxAudioGain,
		RxAudioGain:           cfg.Bridge.RxAudioGain,
		OverrideSourceFromUDP: cfg.Bridge.OverrideSourceIDFromUDP,
		GrantDemand:           cfg.Bridge.GrantDemand,
		DropTime:              time.Duration(cfg.Bridge.DropTimeMs) * time.Millisecond,
	}, log, h.peer, h.zelloSess, p25Codec, dmrCodec, h.callLogger, h.aliases)

	h.peer.OnDMRD(h.onDMRD)
	h.peer.OnP25D(h.onP25D)

	return h, nil
}

// onZelloAudio feeds Zello-side PCM into CallBridge's TX path.
func (h *Host) onZelloAudio(samples []int16, _ string) {
	if err := h.callBridge.Ingress(samples); err != nil {
		h.log.Error("failed to ingress zello audio", logger.Error(err))
	}
}

// onZelloStreamEnd closes out the current TX call when Zello reports the
// transmission has stopped.
func (h *Host) onZelloStreamEnd() {
	if err := h.callBridge.EndIngress(); err != nil {
		h.log.Error("failed to end zello ingress", logger.Error(err))
	}
}

// onZelloRadioCommand forwards a radio command raised by a Zello text
// alert (e.g. a page request) into CallBridge.
func (h *Host) onZelloRadioCommand(cmd string, src, dst uint32) {
	if err := h.callBridge.HandleRadioCommand(cmd, src, dst); err != nil {
		h.log.Error("failed to handle radio command", logger.String("command", cmd), logger.Error(err))
	}
	if cmd == "page" {
		h.collector.PageSent("zello-to-radio")
		if pubErr := h.mqttPub.PublishPage(mqtt.PageEvent{Direction: "zello_to_radio", SourceID: src, DestID: dst}); pubErr != nil {
			h.log.Warn("failed to publish page event", logger.Error(pubErr))
		}
	}
}

// onDMRD routes one inbound DMRD packet to the DMR1 or DMR2 leg by
// timeslot.
func (h *Host) onDMRD(pkt *protocol.DMRDPacket) {
	leg := bridge.LegDMR1
	if pkt.Timeslot == 2 {
		leg = bridge.LegDMR2
	}
	if err := h.callBridge.EgressDMR(leg, pkt); err != nil {
		h.log.Error("failed to egress dmrd packet", logger.Error(err))
	}
}

// onP25D routes one inbound P25D packet into CallBridge's P25 egress
// path.
func (h *Host) onP25D(pkt *protocol.P25DPacket) {
	if err := h.callBridge.EgressP25(pkt); err != nil {
		h.log.Error("failed to egress p25d packet", logger.Error(err))
	}
}

// CleanupStale periodically sweeps CallBridge's dedup state and stale
// call-log entries.
func (h *Host) CleanupStale() {
	h.callBridge.CleanupStale(cleanupInterval)
}

// syncRosterFromAliases mirrors the loaded alias entries into the
// persisted roster table so the CDR/roster surface stays consistent with
// the in-memory AliasMap.
func (h *Host) syncRosterFromAliases() {
	entries := h.aliases.Entries()
	if len(entries) == 0 {
		return
	}
	roster := make([]database.RosterEntry, 0, len(entries))
	for _, e := range entries {
		roster = append(roster, database.RosterEntry{
			RadioID:  e.RadioID,
			Callsign: e.Callsign,
		})
	}
	if err := h.roster.UpsertBatch(roster, 100); err != nil {
		h.log.Warn("failed to sync roster from alias file", logger.Error(err))
	}
}

// Run starts every enabled component and blocks until ctx is canceled,
// then shuts them down in reverse dependency order.
func (h *Host) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil && runCtx.Err() == nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	start("fnepeer", h.peer.Start)
	start("zello", h.zelloSess.Run)
	start("metrics", h.promServer.Start)
	start("mqtt", h.mqttPub.Start)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				h.CleanupStale()
			}
		}
	}()

	var runErr error
	select {
	case <-runCtx.Done():
	case runErr = <-errCh:
		h.log.Error("component failed, shutting down gateway", logger.Error(runErr))
		cancel()
	}

	wg.Wait()
	if err := h.db.Close(); err != nil {
		h.log.Warn("failed to close database cleanly", logger.Error(err))
	}
	return runErr
}
