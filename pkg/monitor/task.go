package monitor

import (
	"time"
)

// run drives one monitor: a first tick after FirstDelay, then one every
// Interval. Ticks run on this goroutine only, so they never overlap; a tick
// that outlasts the interval makes the ticker drop the missed beats.
func (r *Registry) run(h *handle) {
	defer r.wg.Done()

	first := time.NewTimer(r.settings.FirstDelay)
	defer first.Stop()

	select {
	case <-h.ctx.Done():
		return
	case <-first.C:
	}
	r.tick(h)

	ticker := time.NewTicker(r.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			r.tick(h)
		}
	}
}

// tick probes once and notifies only when the status differs from the last
// one seen. The new status is committed before delivery, so a failed delivery
// is not retried. It reports whether a notification was attempted.
func (r *Registry) tick(h *handle) bool {
	status := r.prober.Probe(h.ctx, h.serverAddress, h.playerName)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped || h.ctx.Err() != nil {
		return false
	}
	if status == h.lastKnown {
		r.logger.Debug("Status unchanged",
			"userID", h.userID,
			"status", status,
			"sessionID", h.sessionID)
		return false
	}

	previous := h.lastKnown
	h.lastKnown = status

	r.logger.Debug("Status changed",
		"userID", h.userID,
		"serverAddress", h.serverAddress,
		"from", previous,
		"to", status,
		"sessionID", h.sessionID)

	text := r.settings.Message(h.serverAddress, h.playerName, status)
	if err := r.notifier.Send(h.ctx, h.userID, text); err != nil {
		r.logger.Error("Failed to deliver notification",
			"userID", h.userID,
			"status", status,
			"sessionID", h.sessionID,
			"error", err)
	}
	return true
}
