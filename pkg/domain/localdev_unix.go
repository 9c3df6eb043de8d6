//go:build linux

package domain

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/firscity/zephyr-xenlib/pkg/ring"
)

// LocalMapper is the default, non-Xen implementation of Mapper: it backs
// each "mapped" ring with a real anonymous mmap'd region instead of a
// foreign grant page, standing in for the out-of-scope real mapping
// primitive in local/dev builds such as cmd/xenstored.
type LocalMapper struct {
	RingSize uint32

	mu     sync.Mutex
	mapped map[*ring.Interface][]byte
}

// Map mmaps a fresh 2*RingSize anonymous region and builds the ring
// Interface directly on top of it, so the mapping backs every byte the
// ring reads and writes rather than sitting alongside unused.
func (m *LocalMapper) Map(_ uint16, _ uint64) (*ring.Interface, error) {
	size := m.RingSize
	if size == 0 {
		size = ring.DefaultSize
	}
	buf, err := unix.Mmap(-1, 0, int(2*size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("localdev: mmap ring: %w", err)
	}
	iface := ring.NewInterfaceOn(buf, size)

	m.mu.Lock()
	if m.mapped == nil {
		m.mapped = make(map[*ring.Interface][]byte)
	}
	m.mapped[iface] = buf
	m.mu.Unlock()
	return iface, nil
}

// Unmap munmaps the region Map backed iface with.
func (m *LocalMapper) Unmap(iface *ring.Interface) error {
	m.mu.Lock()
	buf, ok := m.mapped[iface]
	delete(m.mapped, iface)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("localdev: unmap: unknown interface")
	}
	return unix.Munmap(buf)
}

// LocalEventChannel is the default, non-Xen implementation of
// EventChannel: it backs "notify" with a real Linux eventfd per bound
// port, and dispatches the bound callback from a small reader goroutine,
// standing in for the out-of-scope hypervisor event-channel primitive.
type LocalEventChannel struct {
	mu    sync.Mutex
	ports map[uint32]*localPort
	next  uint32
}

type localPort struct {
	fd       int
	callback func()
	stop     chan struct{}
}

// NewLocalEventChannel builds an empty local event channel.
func NewLocalEventChannel() *LocalEventChannel {
	return &LocalEventChannel{ports: make(map[uint32]*localPort)}
}

// Bind allocates an eventfd, registers callback to run whenever it is
// signalled, and returns the local port number.
func (c *LocalEventChannel) Bind(_ uint16, _ uint32, callback func()) (uint32, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return 0, fmt.Errorf("localdev: eventfd: %w", err)
	}
	c.mu.Lock()
	c.next++
	port := c.next
	lp := &localPort{fd: fd, callback: callback, stop: make(chan struct{})}
	c.ports[port] = lp
	c.mu.Unlock()

	go lp.run()
	return port, nil
}

func (lp *localPort) run() {
	buf := make([]byte, 8)
	for {
		select {
		case <-lp.stop:
			return
		default:
		}
		n, err := unix.Read(lp.fd, buf)
		if err != nil || n != 8 {
			return
		}
		lp.callback()
	}
}

// Notify signals localPort's eventfd, waking its reader goroutine.
func (c *LocalEventChannel) Notify(localPort uint32) error {
	c.mu.Lock()
	lp, ok := c.ports[localPort]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("localdev: unknown port %d", localPort)
	}
	var one uint64 = 1
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(one >> (8 * i))
	}
	_, err := unix.Write(lp.fd, buf)
	return err
}

// Unbind tells the reader goroutine for localPort to exit. The goroutine
// checks this only between eventfd reads, so it returns once its current
// blocking read completes.
func (c *LocalEventChannel) Unbind(localPort uint32) error {
	c.mu.Lock()
	lp, ok := c.ports[localPort]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	close(lp.stop)
	return nil
}

// Close releases the eventfd for localPort.
func (c *LocalEventChannel) Close(localPort uint32) error {
	c.mu.Lock()
	lp, ok := c.ports[localPort]
	delete(c.ports, localPort)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return unix.Close(lp.fd)
}

// LocalPublisher stores the published local port per domid in memory,
// standing in for the out-of-scope hypercall.
type LocalPublisher struct {
	mu        sync.Mutex
	published map[uint16]uint32
}

// NewLocalPublisher builds an empty publisher.
func NewLocalPublisher() *LocalPublisher {
	return &LocalPublisher{published: make(map[uint16]uint32)}
}

// PublishEventChannel records localPort for domid.
func (p *LocalPublisher) PublishEventChannel(domid uint16, localPort uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[domid] = localPort
	return nil
}

// Published returns the recorded local port for domid, for tests.
func (p *LocalPublisher) Published(domid uint16) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	port, ok := p.published[domid]
	return port, ok
}
