package domain

import (
	"fmt"
	"sync"

	"github.com/firscity/zephyr-xenlib/pkg/base"
	"github.com/firscity/zephyr-xenlib/pkg/dispatch"
	"github.com/firscity/zephyr-xenlib/pkg/ring"
	"github.com/firscity/zephyr-xenlib/pkg/store"
	"github.com/firscity/zephyr-xenlib/pkg/watch"
)

// ManagerConfig carries the fixed parameters of a Manager.
type ManagerConfig struct {
	DomMax     int
	AbsPathMax int
}

// Manager runs the per-domain worker lifecycle state machine: Starting,
// Running, Stopping, Stopped.
type Manager struct {
	cfg       ManagerConfig
	tree      *store.Tree
	watches   *watch.Registry
	pending   *watch.PendingQueue
	table     dispatch.Table
	mapper    Mapper
	evtchn    EventChannel
	publisher Publisher
	log       *base.Logger

	pool *Pool

	mu       sync.RWMutex
	contexts map[uint16]*Context
	done     map[uint16]chan struct{}
}

// NewManager builds a domain Manager around the engine's shared tree,
// watch registry and pending queue.
func NewManager(cfg ManagerConfig, tree *store.Tree, watches *watch.Registry, pending *watch.PendingQueue, table dispatch.Table, mapper Mapper, evtchn EventChannel, publisher Publisher, log *base.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		tree:      tree,
		watches:   watches,
		pending:   pending,
		table:     table,
		mapper:    mapper,
		evtchn:    evtchn,
		publisher: publisher,
		log:       log,
		pool:      NewPool(cfg.DomMax),
		contexts:  make(map[uint16]*Context),
		done:      make(map[uint16]chan struct{}),
	}
}

// Wake signals domid's worker, if connected, by posting the same
// semaphore the event channel callback bound in Start posts; the watch
// fan-out uses it when a mutation targets a different domain.
func (m *Manager) Wake(domid uint16) {
	m.mu.RLock()
	ctx, ok := m.contexts[domid]
	m.mu.RUnlock()
	if ok {
		ctx.Wake()
	}
}

// IsIntroduced reports whether domid currently has a running worker.
// Backs the supplemented IS_DOMAIN_INTRODUCED opcode.
func (m *Manager) IsIntroduced(domid uint16) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.contexts[domid]
	return ok
}

// Start maps domid's ring, binds its event channel, publishes the local
// port, and spawns its worker. Failures release partial resources in
// reverse order.
func (m *Manager) Start(domid uint16, remoteDomID uint16, remotePort uint32, pfnOffset uint64) error {
	m.mu.Lock()
	if _, exists := m.contexts[domid]; exists {
		m.mu.Unlock()
		return fmt.Errorf("domain: %d already started", domid)
	}
	m.mu.Unlock()

	iface, err := m.mapper.Map(domid, pfnOffset)
	if err != nil {
		return fmt.Errorf("domain: map domid %d: %w", domid, err)
	}
	iface.ServerFeatures.Store(ring.FeatureReconnection)
	iface.Connection.Store(ring.ConnConnected)

	slot, ok := m.pool.Acquire()
	if !ok {
		m.mapper.Unmap(iface)
		return fmt.Errorf("domain: worker pool exhausted (max %d)", m.cfg.DomMax)
	}

	ctx := newContext(domid, iface, remotePort, 0, slot)

	localPort, err := m.evtchn.Bind(remoteDomID, remotePort, ctx.Wake)
	if err != nil {
		m.pool.Release(slot)
		m.mapper.Unmap(iface)
		return fmt.Errorf("domain: bind event channel for domid %d: %w", domid, err)
	}
	ctx.LocalEvtchn = localPort

	if err := m.publisher.PublishEventChannel(domid, localPort); err != nil {
		m.evtchn.Unbind(localPort)
		m.evtchn.Close(localPort)
		m.pool.Release(slot)
		m.mapper.Unmap(iface)
		return fmt.Errorf("domain: publish event channel for domid %d: %w", domid, err)
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.contexts[domid] = ctx
	m.done[domid] = done
	m.mu.Unlock()

	go m.runWorker(ctx, done)
	m.log.Infof("domain %d started (slot %d, local evtchn %d)", domid, slot, localPort)
	return nil
}

// Stop requests domid's worker to exit and blocks until it has finished
// tearing down.
func (m *Manager) Stop(domid uint16) error {
	m.mu.RLock()
	ctx, ok := m.contexts[domid]
	done := m.done[domid]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("domain: %d not running", domid)
	}
	ctx.RequestStop()
	<-done
	return nil
}

func (m *Manager) forget(domid uint16) {
	m.mu.Lock()
	delete(m.contexts, domid)
	delete(m.done, domid)
	m.mu.Unlock()
}
