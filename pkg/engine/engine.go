// Package engine assembles the tree, watch registry, pending queue and
// domain manager into a single value that hides the process-wide
// singletons behind it, and exposes the in-process library surface used
// by local callers such as the control domain's own tools.
package engine

import (
	"strconv"

	"github.com/firscity/zephyr-xenlib/pkg/base"
	"github.com/firscity/zephyr-xenlib/pkg/dispatch"
	"github.com/firscity/zephyr-xenlib/pkg/domain"
	"github.com/firscity/zephyr-xenlib/pkg/store"
	"github.com/firscity/zephyr-xenlib/pkg/watch"
	"github.com/firscity/zephyr-xenlib/pkg/xserrors"
)

// libraryCallerDomID is the caller-domid convention the original source
// uses for its in-process write/rm helpers: they act as though domain 0
// (the control domain itself) made the request.
const libraryCallerDomID = 0

// Config carries the fixed parameters of an Engine.
type Config struct {
	DomMax     int
	AbsPathMax int
}

// DefaultConfig returns the typical XenStore parameters.
func DefaultConfig() Config {
	return Config{DomMax: 32, AbsPathMax: 3072}
}

// Engine is the process-wide xenstore state: the tree, watch registry,
// pending-event queue, and domain worker manager.
type Engine struct {
	Tree    *store.Tree
	Watches *watch.Registry
	Pending *watch.PendingQueue
	Manager *domain.Manager
	Log     *base.Logger
}

// New builds an Engine wired to the given external collaborators: a
// memory mapper, event channel, and hypercall publisher.
func New(cfg Config, mapper domain.Mapper, evtchn domain.EventChannel, publisher domain.Publisher, log *base.Logger) *Engine {
	tree := store.NewTree(log)
	watches := watch.NewRegistry(log)
	pending := watch.NewPendingQueue()
	table := dispatch.DefaultTable()
	mgr := domain.NewManager(domain.ManagerConfig{DomMax: cfg.DomMax, AbsPathMax: cfg.AbsPathMax},
		tree, watches, pending, table, mapper, evtchn, publisher, log)
	return &Engine{Tree: tree, Watches: watches, Pending: pending, Manager: mgr, Log: log}
}

// Write is the library convenience write: it writes
// path's value and fires any matching watchers, as though domain 0 made
// the request.
func (e *Engine) Write(path string, value []byte) error {
	if err := e.Tree.Write(path, value, true); err != nil {
		return err
	}
	watch.Fire(e.Watches, e.Pending, path, libraryCallerDomID, e.Manager.Wake)
	return nil
}

// Read is the library convenience read: it copies
// path's value into buf, truncating at len(buf), and returns the number
// of bytes copied.
func (e *Engine) Read(path string, buf []byte) (int, error) {
	node, ok := e.Tree.Lookup(path)
	if !ok || !node.HasValue {
		return 0, xserrors.ErrNotFound
	}
	return copy(buf, node.Value), nil
}

// ReadInteger reads path's value and decodes it as a decimal integer.
func (e *Engine) ReadInteger(path string) (int, error) {
	node, ok := e.Tree.Lookup(path)
	if !ok || !node.HasValue {
		return 0, xserrors.ErrNotFound
	}
	v, err := strconv.Atoi(string(node.Value))
	if err != nil {
		return 0, xserrors.ErrInvalid
	}
	return v, nil
}

// Rm is the library convenience remove: it removes
// path's subtree and fires any matching watchers.
func (e *Engine) Rm(path string) error {
	removed, err := e.Tree.Remove(path)
	if err != nil {
		return err
	}
	if removed {
		watch.Fire(e.Watches, e.Pending, path, libraryCallerDomID, e.Manager.Wake)
	}
	return nil
}
