// Package domain owns the per-connected-domain worker lifecycle: mapping
// and event-channel setup, the message loop, and teardown.
package domain

import (
	"sync"
	"sync/atomic"

	"github.com/firscity/zephyr-xenlib/pkg/ring"
	"github.com/firscity/zephyr-xenlib/pkg/xserrors"
)

// Context is one connected domain's state. It is
// owned by its worker for its whole lifetime; watch and pending-event
// entries only ever reference it by DomID, never hold a pointer, so there
// is nothing to invalidate when it is torn down.
type Context struct {
	domid        uint16
	Ring         *ring.Interface
	RemoteEvtchn uint32
	LocalEvtchn  uint32
	Slot         int

	wake chan struct{} // binary wake semaphore
	stop atomic.Bool

	txnMu           sync.Mutex
	txnCounter      uint64
	currentTxnID    uint64
	pendingTxnEnd   bool
	pendingTxnReqID uint32
	pendingTxnTxID  uint32
}

func newContext(domid uint16, iface *ring.Interface, remoteEvtchn, localEvtchn uint32, slot int) *Context {
	return &Context{
		domid:        domid,
		Ring:         iface,
		RemoteEvtchn: remoteEvtchn,
		LocalEvtchn:  localEvtchn,
		Slot:         slot,
		wake:         make(chan struct{}, 1),
	}
}

// DomID implements dispatch.Domain.
func (c *Context) DomID() uint16 { return c.domid }

// Wake posts the binary wake semaphore, waking the worker if it is
// blocked; a post against an already-signalled semaphore is a no-op.
func (c *Context) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// RequestStop sets the stop flag and posts the semaphore so the worker
// observes it at the top of its next loop iteration.
func (c *Context) RequestStop() {
	c.stop.Store(true)
	c.Wake()
}

// Stopping reports whether RequestStop has been called.
func (c *Context) Stopping() bool {
	return c.stop.Load()
}

// StartTxn implements dispatch.Domain.
func (c *Context) StartTxn() (uint64, error) {
	c.txnMu.Lock()
	defer c.txnMu.Unlock()
	if c.currentTxnID != 0 {
		return 0, xserrors.ErrBusy
	}
	c.txnCounter++
	c.currentTxnID = c.txnCounter
	return c.currentTxnID, nil
}

// MarkTxnEndPending implements dispatch.Domain.
func (c *Context) MarkTxnEndPending(reqID, txID uint32) {
	c.txnMu.Lock()
	defer c.txnMu.Unlock()
	c.currentTxnID = 0
	c.pendingTxnEnd = true
	c.pendingTxnReqID = reqID
	c.pendingTxnTxID = txID
}

// takePendingTxnEnd reports and clears a pending deferred TRANSACTION_END
// reply, for the worker loop's step 1.
func (c *Context) takePendingTxnEnd() (reqID, txID uint32, pending bool) {
	c.txnMu.Lock()
	defer c.txnMu.Unlock()
	if !c.pendingTxnEnd {
		return 0, 0, false
	}
	c.pendingTxnEnd = false
	return c.pendingTxnReqID, c.pendingTxnTxID, true
}

// InTransaction reports whether a transaction is currently active, used
// by the worker loop to decide whether to drain watch events this
// iteration.
func (c *Context) InTransaction() bool {
	c.txnMu.Lock()
	defer c.txnMu.Unlock()
	return c.currentTxnID != 0
}
