package domain

import (
	"github.com/firscity/zephyr-xenlib/pkg/dispatch"
	"github.com/firscity/zephyr-xenlib/pkg/ring"
	"github.com/firscity/zephyr-xenlib/pkg/wire"
	"github.com/firscity/zephyr-xenlib/pkg/xserrors"
)

// runWorker is the Running state's message loop. It
// owns ctx for its whole life and is the sole process-local consumer of
// its request ring and producer of its reply ring.
func (m *Manager) runWorker(ctx *Context, done chan struct{}) {
	transport := ring.New(ctx.Ring, func() { m.evtchn.Notify(ctx.LocalEvtchn) })
	framer := wire.NewFramer(transport)

	deps := &dispatch.Deps{
		Tree:         m.tree,
		Watches:      m.watches,
		Pending:      m.pending,
		AbsPathMax:   m.cfg.AbsPathMax,
		RingSize:     transport.RingSize(),
		Wake:         m.Wake,
		IsIntroduced: m.IsIntroduced,
		Log:          m.log,
	}

	for {
		if ctx.Stopping() {
			break
		}

		// Step 1: emit any deferred TRANSACTION_END reply.
		if reqID, txID, pending := ctx.takePendingTxnEnd(); pending {
			framer.WriteReply(wire.Message{
				Header: wire.Header{Type: wire.TRANSACTION_END, ReqID: reqID, TxID: txID},
			})
		}

		// Step 2: drain pending watch events, unless a transaction is active.
		if !ctx.InTransaction() {
			m.drainWatchEvents(ctx, framer)
		}

		// Step 3: block on the wake semaphore if nothing is queued to read.
		if !transport.HasRequestData() {
			<-ctx.wake
			continue
		}

		// Step 4-5: assemble one request.
		msg, ok, err := framer.ReadMessage()
		if err != nil {
			framer.WriteReply(wire.Message{
				Header:  wire.Header{Type: wire.ERROR, ReqID: msg.Header.ReqID, TxID: msg.Header.TxID},
				Payload: nulErrPayload(err),
			})
			continue
		}
		if !ok {
			// Spurious wake: zero bytes on header assembly.
			continue
		}

		// Step 6: dispatch and, unless suppressed, step 7: reply+notify.
		reply, emit := dispatch.Dispatch(m.table, deps, ctx, msg)
		if emit {
			framer.WriteReply(reply)
		}
	}

	m.teardown(ctx)
	close(done)
}

// drainWatchEvents walks the pending queue for events targeted at ctx,
// and for each emits one WATCH_EVENT reply per matching watch the domain
// owns.
func (m *Manager) drainWatchEvents(ctx *Context, framer *wire.Framer) {
	events := m.pending.DrainFor(ctx.DomID())
	for _, ev := range events {
		for _, entry := range m.watches.OwnedMatchingForPath(ctx.DomID(), ev.Path) {
			payload := append([]byte(entry.ReportedPath(ev.Path)), 0)
			payload = append(payload, entry.Token...)
			payload = append(payload, 0)
			m.log.Tracef("watch event drained id=%s path=%s domid=%d", entry.ID, ev.Path, ctx.DomID())
			framer.WriteReply(wire.Message{
				Header:  wire.Header{Type: wire.WATCH_EVENT},
				Payload: payload,
			})
		}
	}
}

// teardown implements the Stopped state: purge watches and pending
// events, free the pool slot, unbind/close the event channel, unmap the
// ring.
func (m *Manager) teardown(ctx *Context) {
	m.watches.PurgeDomain(ctx.DomID())
	m.pending.PurgeDomain(ctx.DomID())
	m.pool.Release(ctx.Slot)
	m.evtchn.Unbind(ctx.LocalEvtchn)
	m.evtchn.Close(ctx.LocalEvtchn)
	m.mapper.Unmap(ctx.Ring)
	m.forget(ctx.DomID())
	m.log.Infof("domain %d stopped", ctx.DomID())
}

func nulErrPayload(err error) []byte {
	return append([]byte(xserrors.Classify(err)), 0)
}
