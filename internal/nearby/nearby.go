// Package nearby implements the Nearby Service: the
// top-level orchestrator that owns the state machine, the radio control
// surface, and the currently active Document Session, wiring the
// Rendezvous Selector, Identity/Post Domains, Blob Dispatcher, and
// Connection-State Loop into one coherent lifecycle.
//
// The state itself is a single tagged union guarded by one lock: either
// Uninitialized (ready == nil) or Ready (ready != nil, fully wired), in the
// same lock-plus-background-loop shape as the rest of this tree's services.
package nearby

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nearbymesh/nearby/internal/audit"
	"github.com/nearbymesh/nearby/internal/metrics"
	"github.com/nearbymesh/nearby/pkg/blobdispatch"
	"github.com/nearbymesh/nearby/pkg/connstate"
	"github.com/nearbymesh/nearby/pkg/docsession"
	"github.com/nearbymesh/nearby/pkg/docstore"
	"github.com/nearbymesh/nearby/pkg/identifiers"
	"github.com/nearbymesh/nearby/pkg/identitydomain"
	"github.com/nearbymesh/nearby/pkg/model"
	"github.com/nearbymesh/nearby/pkg/peerdesc"
	"github.com/nearbymesh/nearby/pkg/postdomain"
	"github.com/nearbymesh/nearby/pkg/radio"
	"github.com/nearbymesh/nearby/pkg/rendezvous"
)

// debounceWindow coalesces bursts of radio descriptors into a single
// evaluate_peers_for_connection call.
const debounceWindow = 1 * time.Second

// syncPeerLiveness is how recent a sync peer's last-received packet must
// be to count toward active_peer_count.
const syncPeerLiveness = 15 * time.Second

// SettingsStore is the narrow slice of the Settings Service this core
// needs: the remembered active-nearby-document namespace.
type SettingsStore interface {
	CurrentNearbyNamespace() (identifiers.WideId, bool)
	SetCurrentNearbyNamespace(ctx context.Context, ns identifiers.WideId) error
	ShareNearbyPublicBio() bool
}

// IdentityProvider is the narrow slice of the Identity Service this core
// needs: the local author's own profile to publish into the active
// document.
type IdentityProvider interface {
	Author() docstore.Author
	Identity() model.Identity
	Status() model.Status
	Portrait() *model.Portrait
	Bio() *identifiers.WideId
}

// readyState holds everything that exists only once the service has
// initialized. Replaced wholesale on rotation and on
// leave_group; never mutated field-by-field across a lock release.
type readyState struct {
	session  *docsession.Session
	ticket   docstore.Ticket
	identity *identitydomain.Domain
	posts    *postdomain.Domain

	statuses map[docstore.Author]model.Status
	peers    peerdesc.Table

	shouldScan      bool
	shouldBroadcast bool
	foundGroup      bool

	debounce *rate.Limiter
	conn     *connstate.Loop

	ctx    context.Context
	cancel context.CancelFunc
	subWg  sync.WaitGroup
}

// Service is the Nearby Service orchestrator.
type Service struct {
	node        docstore.Node
	scanner     radio.Scanner
	broadcaster radio.Broadcaster
	settings    SettingsStore
	identity    IdentityProvider
	dispatcher  *blobdispatch.Dispatcher
	responder   Responder
	selfUUID    peerdesc.UUID
	metrics     *metrics.Metrics
	audit       *audit.Logger

	mu    sync.Mutex
	ready *readyState
}

// New constructs a Service. It does nothing against node/scanner/
// broadcaster until Initialize is called.
func New(node docstore.Node, scanner radio.Scanner, broadcaster radio.Broadcaster, settings SettingsStore, identity IdentityProvider, dispatcher *blobdispatch.Dispatcher, responder Responder, selfUUID peerdesc.UUID) *Service {
	return &Service{
		node:        node,
		scanner:     scanner,
		broadcaster: broadcaster,
		settings:    settings,
		identity:    identity,
		dispatcher:  dispatcher,
		responder:   responder,
		selfUUID:    selfUUID,
	}
}

// Dispatcher returns the Blob Dispatcher handle, for injection into view
// contexts.
func (s *Service) Dispatcher() *blobdispatch.Dispatcher {
	return s.dispatcher.Clone()
}

// SetMetrics attaches a Metrics instance. Optional: every call site below
// is nil-checked, so a Service built without metrics behaves exactly as
// before. Call before Initialize so the first rotation is counted too.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetAudit attaches an audit Logger. Optional; audit.Logger methods are
// themselves nil-safe, so this never needs a nil check at the call site.
// Call before Initialize so the first rotation is logged too.
func (s *Service) SetAudit(a *audit.Logger) {
	s.audit = a
}

// ActiveDocumentData returns the active document's capability bytes (its
// radio-advertised document_data), or nil if the service is not yet
// Ready.
func (s *Service) ActiveDocumentData() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready == nil {
		return nil
	}
	return s.ready.ticket.Capability
}

// Identities returns a snapshot of the active document's identity list.
func (s *Service) Identities() []model.Identity {
	s.mu.Lock()
	rs := s.ready
	s.mu.Unlock()
	if rs == nil {
		return nil
	}
	return rs.identity.Identities()
}

// Posts returns a snapshot of the active document's post list.
func (s *Service) Posts() []model.Post {
	s.mu.Lock()
	rs := s.ready
	s.mu.Unlock()
	if rs == nil {
		return nil
	}
	return rs.posts.Posts()
}

// ConnState returns the last computed connection state.
func (s *Service) ConnState() connstate.State {
	s.mu.Lock()
	rs := s.ready
	s.mu.Unlock()
	if rs == nil {
		return connstate.State{Kind: connstate.KindOffline}
	}
	return rs.conn.Current()
}

// CreatePost publishes p via the active document's Post Domain.
func (s *Service) CreatePost(ctx context.Context, p model.Post) error {
	s.mu.Lock()
	rs := s.ready
	s.mu.Unlock()
	if rs == nil {
		return fmt.Errorf("nearby: create_post: not ready")
	}
	return rs.posts.CreatePost(ctx, p)
}

// Initialize performs the first transition into Ready: picks the initial document (remembered namespace or
// new), sets both radio flags off, and runs the load sequence. Calling
// Initialize twice is a logic error — use evaluate_peers_for_connection
// or leave_group to rotate an already-Ready service instead.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.ready != nil {
		s.mu.Unlock()
		return fmt.Errorf("nearby: initialize: already ready")
	}
	s.mu.Unlock()

	var prior *identifiers.WideId
	if ns, ok := s.settings.CurrentNearbyNamespace(); ok {
		prior = &ns
	}
	session, err := docsession.Open(ctx, s.node, s.identity.Author(), prior)
	if err != nil {
		return fmt.Errorf("nearby: initialize: %w", err)
	}

	rs := s.newReadyState(session)
	s.scanner.SetDelegate(s.onRadioEvent)

	s.mu.Lock()
	s.ready = rs
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.DocumentRotationsTotal.WithLabelValues("initialize").Inc()
	}
	s.audit.DocumentRotated("initialize", s.identity.Author().String())

	return s.runLoadSequence(ctx, rs)
}

// newReadyState wires a freshly opened/imported session into a readyState
// with its own domains, connection-state loop, and lifetime context, but
// does not yet run the load sequence.
func (s *Service) newReadyState(session *docsession.Session) *readyState {
	rs := &readyState{
		session:  session,
		statuses: make(map[docstore.Author]model.Status),
		peers:    make(peerdesc.Table),
		debounce: rate.NewLimiter(rate.Every(debounceWindow), 1),
	}
	rs.ctx, rs.cancel = context.WithCancel(context.Background())
	rs.identity = identitydomain.New(session, s)
	rs.posts = postdomain.New(session, session, s)
	rs.conn = connstate.NewLoop(func() connstate.Input {
		return s.connInput(rs)
	}, func(prev, next connstate.State) {
		if s.metrics != nil {
			s.metrics.ConnStateTransitionsTotal.WithLabelValues(next.Kind.String()).Inc()
			for _, k := range connStateKinds {
				v := 0.0
				if k == next.Kind {
					v = 1
				}
				s.metrics.ConnStateCurrent.WithLabelValues(k.String()).Set(v)
			}
			s.metrics.ActivePeerCount.Set(float64(next.PeerCount))
		}
		s.audit.ConnStateChanged(next.Kind.String(), next.PeerCount)
		if s.responder != nil {
			s.responder.ConStateUpdated(next)
		}
		if prev.Kind == connstate.KindConnected && next.Kind == connstate.KindReconnecting {
			s.onConnectedToReconnecting(rs)
		}
	})
	return rs
}

// connStateKinds lists every connstate.Kind, for zeroing out the
// per-state nearbyd_connstate_current gauge on each transition.
var connStateKinds = []connstate.Kind{
	connstate.KindOffline,
	connstate.KindSearching,
	connstate.KindConnected,
	connstate.KindReconnecting,
	connstate.KindDisconnected,
	connstate.KindInvalid,
}

// connInput supplies the Connection-State Loop's periodic input: a snapshot read, never a blocking call that could stall the
// ticker for long.
func (s *Service) connInput(rs *readyState) connstate.Input {
	s.mu.Lock()
	in := connstate.Input{
		FoundGroup:      rs.foundGroup,
		ShouldBroadcast: rs.shouldBroadcast,
		ShouldScan:      rs.shouldScan,
	}
	s.mu.Unlock()
	in.ActivePeerCount = s.activePeerCount(rs)
	return in
}

// activePeerCount counts sync peers whose most recent received-packet
// timestamp is within syncPeerLiveness.
func (s *Service) activePeerCount(rs *readyState) int {
	ctx, cancel := context.WithTimeout(rs.ctx, 2*time.Second)
	defer cancel()

	peers, err := rs.session.SyncPeers(ctx)
	if err != nil {
		slog.Debug("nearby: get_sync_peers failed", "err", err)
		return 0
	}
	now := time.Now()
	count := 0
	for _, p := range peers {
		info, err := rs.session.ConnectionInfo(ctx, p)
		if err != nil || !info.Known {
			continue
		}
		if now.Sub(time.Unix(0, info.LastReceived)) <= syncPeerLiveness {
			count++
		}
	}
	return count
}

// onConnectedToReconnecting re-enables broadcasting and kicks the
// replication substrate to retry sync immediately, rather than leaving the
// node to wait out a silent gap until the next periodic recompute or the
// substrate's own retry timer notices the drop.
func (s *Service) onConnectedToReconnecting(rs *readyState) {
	s.broadcaster.Start()
	ctx, cancel := context.WithTimeout(rs.ctx, 5*time.Second)
	defer cancel()
	if err := rs.session.StartSync(ctx); err != nil {
		slog.Debug("nearby: start_sync failed", "err", err)
	}
}

// runLoadSequence runs the idempotent (a)-(i) load sequence,
// safe to call both on first initialize and after every document
// rotation.
func (s *Service) runLoadSequence(ctx context.Context, rs *readyState) error {
	ticket, err := rs.session.ShareTicket(ctx)
	if err != nil {
		return fmt.Errorf("nearby: load sequence: share ticket: %w", err)
	}

	// (a) push capability to radio broadcaster; set_state=Scanning. The
	// substrate's opaque Nodes blob is wrapped in our own one-element
	// address list framing so CollateAddresses can later unpack and
	// recombine it with other peers' advertisements symmetrically.
	s.broadcaster.SetDocumentData(ticket.Capability)
	s.broadcaster.SetAddressData(peerdesc.EncodeAddresses([][]byte{ticket.Nodes}))
	s.broadcaster.SetPeerState(peerdesc.StateScanning)

	s.mu.Lock()
	rs.ticket = ticket
	rs.foundGroup = false // (c)
	s.mu.Unlock()

	// (b) write self-identity/status/portrait/bio.
	if err := rs.session.PutSelf(ctx, s.identity.Identity(), s.identity.Status(), s.identity.Portrait(), s.selfBio()); err != nil {
		slog.Warn("nearby: load sequence: put_self failed", "err", err)
	}

	// (d) have Identity Domain and Post Domain initialize from queries.
	if err := rs.identity.Initialize(ctx); err != nil {
		return fmt.Errorf("nearby: load sequence: identity domain: %w", err)
	}
	if err := rs.posts.Initialize(ctx); err != nil {
		return fmt.Errorf("nearby: load sequence: post domain: %w", err)
	}

	// (e) rebuild statuses map.
	statuses, err := s.loadStatuses(ctx, rs)
	if err != nil {
		slog.Warn("nearby: load sequence: rebuild statuses failed", "err", err)
		statuses = make(map[docstore.Author]model.Status)
	}
	s.mu.Lock()
	rs.statuses = statuses
	s.mu.Unlock()

	// (f) remember active namespace in Settings.
	if err := s.settings.SetCurrentNearbyNamespace(ctx, rs.session.Namespace()); err != nil {
		slog.Warn("nearby: load sequence: persist namespace failed", "err", err)
	}

	// (g) spawn subscription task.
	if err := s.spawnSubscription(rs); err != nil {
		return fmt.Errorf("nearby: load sequence: subscribe: %w", err)
	}

	rs.conn.Start(rs.ctx)

	// (h) emit DocDataUpdated, IdentitiesUpdated, AllMessagesUpdated.
	if s.responder != nil {
		s.responder.DocDataUpdated(ticket)
		s.responder.IdentitiesUpdated(rs.identity.Identities())
		s.responder.StatusesUpdated(statuses)
		s.responder.AllMessagesUpdated(rs.posts.Posts())
	}

	// (i) call check_if_found_group.
	s.checkIfFoundGroup(rs)
	return nil
}

// selfBio resolves the bio collection hash to publish, honoring the
// share-nearby-public-bio settings flag.
func (s *Service) selfBio() *identifiers.WideId {
	if !s.settings.ShareNearbyPublicBio() {
		return nil
	}
	return s.identity.Bio()
}

// loadStatuses reads every `status` row directly, independent of Identity
// Domain's own bookkeeping.
func (s *Service) loadStatuses(ctx context.Context, rs *readyState) (map[docstore.Author]model.Status, error) {
	rows, err := rs.session.Query(ctx, docstore.Query{Key: []byte(docsession.KeyStatus)})
	if err != nil {
		return nil, fmt.Errorf("query status: %w", err)
	}
	out := make(map[docstore.Author]model.Status, len(rows))
	for _, row := range rows {
		data, err := rs.session.ReadBlob(ctx, row.Hash)
		if err != nil {
			slog.Warn("nearby: read status blob failed", "author", row.Author, "err", err)
			continue
		}
		var st model.Status
		if err := model.Unmarshal(data, &st); err != nil {
			slog.Warn("nearby: decode status blob failed", "author", row.Author, "err", err)
			continue
		}
		out[row.Author] = st
	}
	return out, nil
}

// spawnSubscription starts the goroutine that classifies and dispatches
// every insert released by the Document Session's completeness gating.
func (s *Service) spawnSubscription(rs *readyState) error {
	ch, err := rs.session.Subscribe(rs.ctx)
	if err != nil {
		return err
	}
	rs.subWg.Add(1)
	go func() {
		defer rs.subWg.Done()
		for ins := range ch {
			s.dispatchInsert(rs, ins)
		}
	}()
	return nil
}

func (s *Service) dispatchInsert(rs *readyState, ins docsession.InsertEntry) {
	ctx := rs.ctx
	handler, ok := docsession.ClassifyKey(ins.Entry.Key)
	if !ok {
		return // unknown keys are ignored silently
	}
	if s.metrics != nil {
		s.metrics.InsertsClassifiedTotal.WithLabelValues(handler).Inc()
	}

	switch handler {
	case docsession.KeyIdentity, docsession.KeyIDPic:
		if handled, err := rs.identity.InsertEntry(ctx, ins.Entry); err != nil {
			slog.Warn("nearby: identity domain insert failed", "key", string(ins.Entry.Key), "err", err)
		} else if !handled {
			slog.Debug("nearby: identity domain did not handle classified key", "key", string(ins.Entry.Key))
		}
	case docsession.KeyStatus:
		var st model.Status
		data, err := rs.session.ReadBlob(ctx, ins.Entry.Hash)
		if err != nil {
			slog.Warn("nearby: read status blob failed", "err", err)
			return
		}
		if err := model.Unmarshal(data, &st); err != nil {
			slog.Warn("nearby: decode status blob failed", "err", err)
			return
		}
		s.mu.Lock()
		rs.statuses[ins.Entry.Author] = st
		snapshot := make(map[docstore.Author]model.Status, len(rs.statuses))
		for k, v := range rs.statuses {
			snapshot[k] = v
		}
		s.mu.Unlock()
		if s.responder != nil {
			s.responder.StatusesUpdated(snapshot)
		}
	case docsession.MessagesPrefix:
		if handled, err := rs.posts.InsertEntry(ctx, ins.Entry); err != nil {
			slog.Warn("nearby: post domain insert failed", "key", string(ins.Entry.Key), "err", err)
		} else if !handled {
			slog.Debug("nearby: post domain did not handle classified key", "key", string(ins.Entry.Key))
		}
	case docsession.KeyPublicBio, docsession.MessagePayloadsPrefix:
		// Bio/payload collection pointers: resolved on demand by the Blob
		// Dispatcher when a view consumer asks for them, not eagerly here.
	}
}

// checkIfFoundGroup recomputes found_group from the current identity
// count and updates the broadcast peer_state accordingly.
func (s *Service) checkIfFoundGroup(rs *readyState) {
	distinct := rs.identity.DistinctIdentityCount()
	s.audit.IdentitiesUpdated(s.identity.Author().String(), distinct)

	s.mu.Lock()
	was := rs.foundGroup
	rs.foundGroup = distinct > 1
	changed := rs.foundGroup != was
	shouldScan := rs.shouldScan
	foundGroup := rs.foundGroup
	s.mu.Unlock()

	if changed {
		if foundGroup {
			s.broadcaster.SetPeerState(peerdesc.StateSettled)
			if shouldScan {
				s.scanner.StopScanning()
				s.mu.Lock()
				rs.shouldScan = false
				s.mu.Unlock()
			}
		} else {
			s.broadcaster.SetPeerState(peerdesc.StateScanning)
		}
	}
	rs.conn.Recompute()
}

// IdentitiesDidUpdate implements identitydomain.Responder.
func (s *Service) IdentitiesDidUpdate(addedNew bool) {
	s.mu.Lock()
	rs := s.ready
	s.mu.Unlock()
	if rs == nil {
		return
	}
	if addedNew {
		s.checkIfFoundGroup(rs)
	}
	if s.responder != nil {
		s.responder.IdentitiesUpdated(rs.identity.Identities())
	}
}

// PicsDidUpdate implements identitydomain.Responder.
func (s *Service) PicsDidUpdate() {
	if s.responder != nil {
		s.responder.PicsUpdated()
	}
}

// AllPostsUpdated implements postdomain.Responder.
func (s *Service) AllPostsUpdated(posts []model.Post) {
	if s.responder != nil {
		s.responder.AllMessagesUpdated(posts)
	}
}

// OnePostUpdated implements postdomain.Responder.
func (s *Service) OnePostUpdated(newLen int, post model.Post) {
	if s.responder != nil {
		s.responder.OneMessageUpdated(newLen, post)
	}
}

// StartScanning turns on active radio scanning.
func (s *Service) StartScanning() {
	s.mu.Lock()
	rs := s.ready
	if rs == nil {
		s.mu.Unlock()
		return
	}
	rs.shouldScan = true
	s.mu.Unlock()

	s.scanner.StartScanning()
	rs.conn.Recompute()
}

// CancelConnectionAttempt aborts an in-progress rendezvous connection attempt.
func (s *Service) CancelConnectionAttempt() {
	s.mu.Lock()
	rs := s.ready
	if rs == nil {
		s.mu.Unlock()
		return
	}
	rs.shouldScan = false
	s.mu.Unlock()

	s.scanner.StopScanning()
	rs.conn.Recompute()
}

// SetBroadcasting turns the radio broadcast advertisement on or off.
func (s *Service) SetBroadcasting(enabled bool) {
	s.mu.Lock()
	rs := s.ready
	if rs == nil {
		s.mu.Unlock()
		return
	}
	rs.shouldBroadcast = enabled
	s.mu.Unlock()

	if enabled {
		s.broadcaster.Start()
	} else {
		s.broadcaster.Stop()
	}
	rs.conn.Recompute()
}

// onRadioEvent is the radio.Delegate bound once in Initialize.
// The delegate itself only updates the peer table and schedules debounced
// evaluation; it never blocks on I/O.
func (s *Service) onRadioEvent(id peerdesc.UUID, addressData, documentData []byte, state peerdesc.PeerState) {
	if s.metrics != nil {
		s.metrics.MDNSDiscoveredTotal.WithLabelValues("received").Inc()
	}

	s.mu.Lock()
	rs := s.ready
	if rs == nil {
		s.mu.Unlock()
		return
	}
	rs.peers[id] = peerdesc.Descriptor{UUID: id, DocumentData: documentData, AddressData: addressData, State: state}
	alreadyFound := rs.foundGroup
	scheduleEvaluate := !alreadyFound && rs.debounce.Allow()
	s.mu.Unlock()

	if alreadyFound {
		return // already in a found group; ignore
	}
	if scheduleEvaluate {
		time.AfterFunc(debounceWindow, func() {
			s.evaluatePeersForConnection(context.Background())
		})
	}
}

// evaluatePeersForConnection runs the Rendezvous Selector over the current
func (s *Service) evaluatePeersForConnection(ctx context.Context) {
	s.mu.Lock()
	rs := s.ready
	if rs == nil {
		s.mu.Unlock()
		return
	}
	current := rs.ticket.Capability
	peers := rs.peers.Clone()
	s.mu.Unlock()

	target := rendezvous.Select(current, peers)
	if bytesEqual(target, current) {
		if s.metrics != nil {
			s.metrics.RendezvousSwitchTotal.WithLabelValues("no_switch").Inc()
		}
		return // no-op: already converged on the winning document
	}

	addrs, err := rendezvous.CollateAddresses(target, peers, peerdesc.DecodeAddresses)
	if err != nil {
		slog.Warn("nearby: evaluate_peers_for_connection: collate addresses failed", "err", err)
		if s.metrics != nil {
			s.metrics.RendezvousSwitchTotal.WithLabelValues("collate_failed").Inc()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.RendezvousSwitchTotal.WithLabelValues("switch").Inc()
	}
	newTicket := docstore.Ticket{Capability: target, Nodes: peerdesc.EncodeAddresses(addrs)}
	s.rotateTo(ctx, "evaluate_peers", func(ctx context.Context) (*docsession.Session, error) {
		return docsession.Join(ctx, s.node, s.identity.Author(), newTicket)
	})
}

// rotateTo replaces the Ready state with a freshly opened document,
// ceasing to listen on the old document's event stream before open opens
// the new one. reason labels the nearbyd_document_rotations_total counter.
func (s *Service) rotateTo(ctx context.Context, reason string, open func(context.Context) (*docsession.Session, error)) {
	s.mu.Lock()
	old := s.ready
	s.mu.Unlock()

	if old != nil {
		old.cancel()
		old.subWg.Wait()
		old.conn.Close()
	}

	newSession, err := open(ctx)
	if err != nil {
		slog.Warn("nearby: rotate: open new document failed", "err", err)
		return
	}

	if old != nil {
		if err := old.session.Close(); err != nil {
			slog.Warn("nearby: rotate: close old session failed", "err", err)
		}
	}

	if s.metrics != nil {
		s.metrics.DocumentRotationsTotal.WithLabelValues(reason).Inc()
	}
	s.audit.DocumentRotated(reason, s.identity.Author().String())

	rs := s.newReadyState(newSession)
	s.mu.Lock()
	s.ready = rs
	s.mu.Unlock()

	if err := s.runLoadSequence(ctx, rs); err != nil {
		slog.Warn("nearby: rotate: load sequence failed", "err", err)
	}
}

// LeaveGroup tears the node back down to a fresh document: radio off, subscription
// stopped, document replaced with a fresh namespace, load sequence rerun.
func (s *Service) LeaveGroup(ctx context.Context) error {
	s.mu.Lock()
	rs := s.ready
	if rs == nil {
		s.mu.Unlock()
		return fmt.Errorf("nearby: leave_group: not ready")
	}
	s.mu.Unlock()

	s.scanner.StopScanning()
	s.broadcaster.Stop()
	s.mu.Lock()
	rs.shouldScan = false
	rs.shouldBroadcast = false
	s.mu.Unlock()

	s.audit.GroupLeft(s.identity.Author().String())
	s.rotateTo(ctx, "leave_group", func(ctx context.Context) (*docsession.Session, error) {
		return docsession.Open(ctx, s.node, s.identity.Author(), nil)
	})
	return nil
}

// Close tears down the active Ready state and stops the radio.
func (s *Service) Close() error {
	s.scanner.StopScanning()
	s.broadcaster.Stop()

	s.mu.Lock()
	rs := s.ready
	s.ready = nil
	s.mu.Unlock()

	if rs == nil {
		return nil
	}
	rs.cancel()
	rs.subWg.Wait()
	rs.conn.Close()
	return rs.session.Close()
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
