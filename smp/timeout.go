package smp

import (
	"context"
	"time"
)

// heartbeatInterval bounds how late an expired procedure is noticed.
const heartbeatInterval = time.Second

// Heartbeat fails every procedure whose deadline passed. A link that timed
// out accepts no more SM traffic until it is reconnected.
func (e *Engine) Heartbeat() {
	res := &result{}
	e.mu.Lock()
	now := e.now()
	for h, p := range e.procs {
		if now.Before(p.expires) {
			continue
		}
		p.log.Warnf("procedure timed out in state %v", p.state)
		e.dead[h] = true
		e.fail(res, p, ErrTimeout)
	}
	e.mu.Unlock()
	e.process(res)
}

// Run calls Heartbeat periodically until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			e.Heartbeat()
		}
	}
}
