package hopr

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/packet"
	"github.com/hoprnet/hopr-relay/routing"
	"github.com/hoprnet/hopr-relay/session"
	"github.com/hoprnet/hopr-relay/surbbalancer"
)

// sessionKey identifies one session endpoint: the pseudonym the
// initiator chose plus the session id it assigned (spec.md section 6's
// `{pseudonym, session_id}` demultiplexing pair).
type sessionKey struct {
	pseudonym [10]byte
	sessionID uint64
}

// boundSession is one live session plus where its outbound traffic goes:
// an initiator sends along an explicit forward path it selected at
// Connect time; a responder has no such path and instead replies through
// whatever SURB the initiator embedded in its session-start message.
type boundSession struct {
	s    *session.Session
	peer packet.PeerID
	hops []hoprcrypto.OffchainPublicKey
}

// sessionMux demultiplexes inbound session-start/session-data traffic by
// (pseudonym, session id) and is the Connect entry point a caller embeds
// this module through (spec.md section 6: "Node::connect_to(destination,
// target, config) -> Session").
type sessionMux struct {
	node *Node

	mu       sync.Mutex
	sessions map[sessionKey]*boundSession
	byPeer   map[packet.PeerID][]sessionKey
}

func newSessionMux(n *Node) *sessionMux {
	return &sessionMux{
		node:     n,
		sessions: make(map[sessionKey]*boundSession),
		byPeer:   make(map[packet.PeerID][]sessionKey),
	}
}

func randomPseudonym() ([10]byte, error) {
	var p [10]byte
	_, err := rand.Read(p[:])
	return p, err
}

func randomSessionID() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// Connect opens a new session toward destination over a freshly selected
// relayHops-long forward path, sending the session-start control message
// before returning the session ready for Write/Deliveries.
func (m *sessionMux) Connect(destination routing.NodeID, relayHops int, cfg session.Config) (*session.Session, error) {
	snap := m.node.graph.Current()
	edges, err := routing.FindPath(snap, m.node.selfID, destination, relayHops, routing.HoprCost)
	if err != nil {
		return nil, fmt.Errorf("hopr: selecting path to %x: %w", destination, err)
	}

	hops := make([]hoprcrypto.OffchainPublicKey, 0, len(edges))
	for _, e := range edges {
		node, ok := snap.Node(e.To)
		if !ok {
			return nil, fmt.Errorf("hopr: missing node record for hop %x", e.To)
		}
		hops = append(hops, node.PublicKey)
	}

	pseudonym, err := randomPseudonym()
	if err != nil {
		return nil, err
	}
	sessionID, err := randomSessionID()
	if err != nil {
		return nil, err
	}

	start := sessionStartPayload{
		Pseudonym:           pseudonym,
		SessionID:           sessionID,
		InitialWindow:       uint32(cfg.FlowControlWindow),
		ReturnPathsCount:    0,
		KeepaliveIntervalMs: uint32(m.node.cfg.BalancerConfig.RefillInterval.Milliseconds()),
	}
	if err := m.node.sendAlong(hops, prependTag(tagSessionStart, marshalSessionStart(start))); err != nil {
		return nil, fmt.Errorf("hopr: sending session-start to %x: %w", destination, err)
	}

	transmit := func(seg session.Segment) error {
		envelope := sessionDataEnvelope{
			Pseudonym: pseudonym,
			SessionID: sessionID,
			Kind:      sessionDataKindSegment,
			Body:      marshalSegment(seg),
		}
		return m.node.sendAlong(hops, prependTag(tagSessionData, marshalSessionDataEnvelope(envelope)))
	}

	s := session.New(cfg, transmit)
	s.Start()

	key := sessionKey{pseudonym: pseudonym, sessionID: sessionID}
	firstHop := packet.DerivePeerID(hops[0])
	bound := &boundSession{s: s, peer: firstHop, hops: hops}

	m.mu.Lock()
	m.sessions[key] = bound
	m.byPeer[firstHop] = append(m.byPeer[firstHop], key)
	m.mu.Unlock()

	return s, nil
}

func (m *sessionMux) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.sessions {
		b.s.Close()
	}
}

func (m *sessionMux) emitKeepAlive(p surbbalancer.Pseudonym, surbCount int) error {
	m.mu.Lock()
	matches := make([]*boundSession, 0, 1)
	keys := make([]sessionKey, 0, 1)
	for key, b := range m.sessions {
		if key.pseudonym == [10]byte(p) {
			matches = append(matches, b)
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()

	for i, b := range matches {
		envelope := sessionDataEnvelope{
			Pseudonym: keys[i].pseudonym,
			SessionID: keys[i].sessionID,
			Kind:      sessionDataKindAck,
			Body:      marshalAckBitmap(b.s.PendingAck()),
		}
		payload := prependTag(tagSessionData, marshalSessionDataEnvelope(envelope))
		if err := m.node.sendAlong(b.hops, payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *sessionMux) onDeliveryConfirmed(peer packet.PeerID) {
	log.Debugf("hopr: delivery confirmed via %x", peer)
}

// dispatchSessionStart accepts a remote peer's request to open a session
// toward this node, registering a responder session whose replies ride
// back via SURBs the initiator is expected to keep supplying (spec.md
// section 4.F/4.H: a responder never learns a forward path to the
// initiator, only its pseudonym).
func (m *sessionMux) dispatchSessionStart(from packet.PeerID, p sessionStartPayload) {
	key := sessionKey{pseudonym: p.Pseudonym, sessionID: p.SessionID}

	m.mu.Lock()
	if _, exists := m.sessions[key]; exists {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	cfg := m.node.cfg.SessionConfig(session.DefaultConfig(0).MaxSegmentSize)
	transmit := func(seg session.Segment) error {
		envelope := sessionDataEnvelope{
			Pseudonym: p.Pseudonym,
			SessionID: p.SessionID,
			Kind:      sessionDataKindSegment,
			Body:      marshalSegment(seg),
		}
		payload := prependTag(tagSessionData, marshalSessionDataEnvelope(envelope))
		return m.node.replyViaSurb(p.Pseudonym, payload)
	}
	s := session.New(cfg, transmit)
	s.Start()

	bound := &boundSession{s: s, peer: from}

	m.mu.Lock()
	m.sessions[key] = bound
	m.byPeer[from] = append(m.byPeer[from], key)
	m.mu.Unlock()
}

func (m *sessionMux) dispatchSessionData(from packet.PeerID, e sessionDataEnvelope) {
	key := sessionKey{pseudonym: e.Pseudonym, sessionID: e.SessionID}

	m.mu.Lock()
	bound, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		log.Debugf("hopr: session data for unknown session from %x", from)
		return
	}

	switch e.Kind {
	case sessionDataKindSegment:
		seg, err := unmarshalSegment(e.Body)
		if err != nil {
			log.Debugf("hopr: bad segment from %x: %v", from, err)
			return
		}
		bound.s.ReceiveSegment(seg, time.Now())
	case sessionDataKindAck:
		ackBitmap, err := unmarshalAckBitmap(e.Body)
		if err != nil {
			log.Debugf("hopr: bad ack bitmap from %x: %v", from, err)
			return
		}
		bound.s.ReceiveAck(ackBitmap)
	}
}
