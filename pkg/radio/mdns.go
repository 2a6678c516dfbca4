package radio

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/zeroconf/v2"

	"github.com/nearbymesh/nearby/pkg/peerdesc"
)

// ServiceName is the DNS-SD service type used for LAN discovery, fixed for
// every node.
const ServiceName = "_nearby._udp"

const (
	defaultBrowseInterval = 30 * time.Second
	browseTimeout         = 10 * time.Second
	// registerPort satisfies DNS-SD's required port field; actual
	// reachability hints travel in address_data, not this port.
	registerPort = 4001
)

// MDNS is the concrete Radio adapter: it advertises this node's descriptor
// and browses for others over mDNS/DNS-SD TXT records, using a
// register/browse-loop/dedupe structure, but carrying PeerDescriptor
// fields (uuid, document_data, address_data, peer_state) instead of
// libp2p multiaddrs.
type MDNS struct {
	selfUUID       peerdesc.UUID
	browseInterval time.Duration

	mu           sync.Mutex
	server       *zeroconf.Server
	documentData []byte
	addressData  []byte
	peerState    peerdesc.PeerState
	broadcasting bool
	scanning     bool
	delegate     Delegate

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	_ Scanner     = (*MDNS)(nil)
	_ Broadcaster = (*MDNS)(nil)
)

// NewMDNS constructs an adapter advertising as selfUUID. Network activity
// begins only once Start/StartScanning are called; every setter before that
// is otherwise inert. interval governs how often a fresh browse round is
// issued while scanning; a non-positive value falls back to
// defaultBrowseInterval.
func NewMDNS(selfUUID peerdesc.UUID, interval time.Duration) *MDNS {
	if interval <= 0 {
		interval = defaultBrowseInterval
	}
	return &MDNS{selfUUID: selfUUID, browseInterval: interval}
}

// SetDocumentData implements Broadcaster.
func (m *MDNS) SetDocumentData(data []byte) {
	m.mu.Lock()
	m.documentData = append([]byte(nil), data...)
	broadcasting := m.broadcasting
	m.mu.Unlock()
	if broadcasting {
		m.republish()
	}
}

// SetAddressData implements Broadcaster.
func (m *MDNS) SetAddressData(data []byte) {
	m.mu.Lock()
	m.addressData = append([]byte(nil), data...)
	broadcasting := m.broadcasting
	m.mu.Unlock()
	if broadcasting {
		m.republish()
	}
}

// SetPeerState implements Broadcaster.
func (m *MDNS) SetPeerState(state peerdesc.PeerState) {
	m.mu.Lock()
	m.peerState = state
	broadcasting := m.broadcasting
	m.mu.Unlock()
	if broadcasting {
		m.republish()
	}
}

// Start implements Broadcaster: registers the mDNS advertisement with the
// current document/address/peer-state snapshot. Idempotent.
func (m *MDNS) Start() {
	m.mu.Lock()
	if m.broadcasting {
		m.mu.Unlock()
		return
	}
	m.broadcasting = true
	m.mu.Unlock()
	m.republish()
}

// Stop implements Broadcaster: withdraws the advertisement. Idempotent.
func (m *MDNS) Stop() {
	m.mu.Lock()
	m.broadcasting = false
	server := m.server
	m.server = nil
	m.mu.Unlock()
	if server != nil {
		server.Shutdown()
	}
}

// republish tears down any existing registration and re-registers with
// the latest snapshot. Every broadcaster setter routes through this, so a
// capability/address/peer-state change is visible to scanners within one
// mDNS re-announce.
func (m *MDNS) republish() {
	m.mu.Lock()
	txt := encodeTXT(m.selfUUID, m.documentData, m.addressData, m.peerState)
	old := m.server
	m.mu.Unlock()

	if old != nil {
		old.Shutdown()
	}

	server, err := zeroconf.RegisterProxy(
		m.selfUUID.String(),
		ServiceName,
		"local.",
		registerPort,
		m.selfUUID.String(),
		nil,
		txt,
		nil,
	)
	if err != nil {
		slog.Warn("radio: mdns register failed", "err", err)
		return
	}

	m.mu.Lock()
	if !m.broadcasting {
		m.mu.Unlock()
		server.Shutdown()
		return
	}
	m.server = server
	m.mu.Unlock()
}

// SetDelegate implements Scanner.
func (m *MDNS) SetDelegate(d Delegate) {
	m.mu.Lock()
	m.delegate = d
	m.mu.Unlock()
}

// StartScanning implements Scanner: begins the periodic browse loop.
// Idempotent.
func (m *MDNS) StartScanning() {
	m.mu.Lock()
	if m.scanning {
		m.mu.Unlock()
		return
	}
	m.scanning = true
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.browseLoop(ctx)
}

// StopScanning implements Scanner: stops the browse loop and waits for the
// current round to exit. Idempotent.
func (m *MDNS) StopScanning() {
	m.mu.Lock()
	if !m.scanning {
		m.mu.Unlock()
		return
	}
	m.scanning = false
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *MDNS) browseLoop(ctx context.Context) {
	defer m.wg.Done()
	m.runBrowse(ctx)

	ticker := time.NewTicker(m.browseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runBrowse(ctx)
		}
	}
}

// runBrowse executes one bounded browse round. Each round opens a fresh
// multicast query, restarting rather than holding one long-lived Browse,
// to dodge platform mDNS daemon quirks.
func (m *MDNS) runBrowse(ctx context.Context) {
	browseCtx, cancel := context.WithTimeout(ctx, browseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			m.handleEntry(entry)
		}
	}()

	if err := zeroconf.Browse(browseCtx, ServiceName, "local.", entries); err != nil && browseCtx.Err() == nil {
		slog.Debug("radio: mdns browse error", "err", err)
	}
	wg.Wait()
}

func (m *MDNS) handleEntry(entry *zeroconf.ServiceEntry) {
	id, documentData, addressData, state, ok := decodeTXT(entry.Text)
	if !ok || id == m.selfUUID {
		return
	}
	m.mu.Lock()
	d := m.delegate
	m.mu.Unlock()
	if d != nil {
		d(id, addressData, documentData, state)
	}
}

// Close stops both broadcasting and scanning, releasing all resources.
func (m *MDNS) Close() {
	m.Stop()
	m.StopScanning()
}

func encodeTXT(id peerdesc.UUID, documentData, addressData []byte, state peerdesc.PeerState) []string {
	return []string{
		"u=" + id.String(),
		"d=" + base64.StdEncoding.EncodeToString(documentData),
		"a=" + base64.StdEncoding.EncodeToString(addressData),
		fmt.Sprintf("p=%d", state),
	}
}

func decodeTXT(txt []string) (id peerdesc.UUID, documentData, addressData []byte, state peerdesc.PeerState, ok bool) {
	for _, kv := range txt {
		switch {
		case strings.HasPrefix(kv, "u="):
			parsed, err := uuid.Parse(strings.TrimPrefix(kv, "u="))
			if err != nil {
				return peerdesc.UUID{}, nil, nil, 0, false
			}
			id = parsed
			ok = true
		case strings.HasPrefix(kv, "d="):
			documentData, _ = base64.StdEncoding.DecodeString(strings.TrimPrefix(kv, "d="))
		case strings.HasPrefix(kv, "a="):
			addressData, _ = base64.StdEncoding.DecodeString(strings.TrimPrefix(kv, "a="))
		case strings.HasPrefix(kv, "p="):
			if strings.TrimPrefix(kv, "p=") == "1" {
				state = peerdesc.StateSettled
			}
		}
	}
	return id, documentData, addressData, state, ok
}
