package session

import "sync/atomic"

// engineStats counts packets by disposition. Diagnostics only — drops are
// never surfaced to peers.
type engineStats struct {
	sent            atomic.Uint64
	delivered       atomic.Uint64
	handshakes      atomic.Uint64
	authFailures    atomic.Uint64
	replaysRejected atomic.Uint64
	malformed       atomic.Uint64
	unknownPeer     atomic.Uint64
	otherDrops      atomic.Uint64
}

// Stats is a point-in-time snapshot of engine packet counters.
type Stats struct {
	Sent                uint64
	Delivered           uint64
	HandshakesCompleted uint64
	AuthFailures        uint64
	ReplaysRejected     uint64
	Malformed           uint64
	UnknownPeer         uint64
	OtherDrops          uint64
}

// Stats snapshots the engine's packet counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Sent:                e.stats.sent.Load(),
		Delivered:           e.stats.delivered.Load(),
		HandshakesCompleted: e.stats.handshakes.Load(),
		AuthFailures:        e.stats.authFailures.Load(),
		ReplaysRejected:     e.stats.replaysRejected.Load(),
		Malformed:           e.stats.malformed.Load(),
		UnknownPeer:         e.stats.unknownPeer.Load(),
		OtherDrops:          e.stats.otherDrops.Load(),
	}
}
