// Package ring implements the lock-free producer/consumer byte ring shared
// with a peer domain over a mapped grant page.
//
// The Interface type models the layout map() would hand back for a foreign
// domain's shared page; map/unmap themselves are external collaborators
// and are not implemented here.
package ring

import (
	"sync/atomic"
)

const (
	// DefaultSize is the typical XenStore ring size.
	DefaultSize = 1024
	// HeaderSize is the size of the fixed message header.
	HeaderSize = 16

	// FeatureReconnection is bit 0 of ServerFeatures.
	FeatureReconnection uint32 = 1 << 0

	// ConnConnected and ConnReconnecting are the Connection status values.
	ConnConnected    uint32 = 0
	ConnReconnecting uint32 = 1
)

// indices is the free-running 32-bit producer/consumer pair for one
// direction of the ring. It is held behind a pointer so a peer view of
// the same Interface (see Peer) can share it.
type indices struct {
	cons atomic.Uint32
	prod atomic.Uint32
}

// Interface is the shared ring page: two byte arrays plus free-running
// 32-bit producer/consumer indices for each direction.
type Interface struct {
	size uint32 // power of two

	req []byte
	rsp []byte

	reqIdx *indices
	rspIdx *indices

	ServerFeatures atomic.Uint32
	Connection     atomic.Uint32
}

// NewInterface allocates an Interface of the given size, which must be a
// power of two. It is the Go-native stand-in for what the out-of-scope
// map() primitive returns.
func NewInterface(size uint32) *Interface {
	if size == 0 || size&(size-1) != 0 {
		panic("ring: size must be a non-zero power of two")
	}
	return &Interface{
		size:   size,
		req:    make([]byte, size),
		rsp:    make([]byte, size),
		reqIdx: &indices{},
		rspIdx: &indices{},
	}
}

// NewInterfaceOn builds an Interface of the given size over caller-supplied
// backing memory rather than allocating its own: buf must be exactly
// 2*size bytes, the first half backing the request channel and the second
// half the reply channel. This is what a real Mapper implementation binds
// to a mapped grant page (or, in local/dev builds, an mmap'd region)
// instead of plain Go-heap memory.
func NewInterfaceOn(buf []byte, size uint32) *Interface {
	if size == 0 || size&(size-1) != 0 {
		panic("ring: size must be a non-zero power of two")
	}
	if uint32(len(buf)) != 2*size {
		panic("ring: backing buffer must be exactly 2*size bytes")
	}
	return &Interface{
		size:   size,
		req:    buf[:size],
		rsp:    buf[size:],
		reqIdx: &indices{},
		rspIdx: &indices{},
	}
}

// Size returns the ring's byte capacity per direction.
func (iface *Interface) Size() uint32 {
	return iface.size
}

// Peer returns an Interface representing the other end of iface's ring:
// its request channel is iface's reply channel and vice versa, sharing
// the same underlying bytes and indices. Binding a Transport to a peer
// view lets a single process drive both ends of a ring -- the real
// client side is out of scope (it runs in another domain), but local
// tests and self-contained harnesses need it to exercise the framer and
// dispatcher without a real guest.
func Peer(iface *Interface) *Interface {
	return &Interface{
		size:   iface.size,
		req:    iface.rsp,
		rsp:    iface.req,
		reqIdx: iface.rspIdx,
		rspIdx: iface.reqIdx,
	}
}

func indicesOK(cons, prod, size uint32) bool {
	return prod-cons <= size
}

// Transport gives one domain worker exclusive read/write access to its own
// ring. It is not safe for concurrent use by more
// than one reader or more than one writer.
type Transport struct {
	iface  *Interface
	notify func()
}

// New builds a Transport over iface, calling notify to signal the peer
// event channel.
func New(iface *Interface, notify func()) *Transport {
	if notify == nil {
		notify = func() {}
	}
	return &Transport{iface: iface, notify: notify}
}

// RingSize returns the capacity of the underlying ring.
func (t *Transport) RingSize() uint32 {
	return t.iface.size
}

// Read copies up to len(buf) bytes from req[cons..prod), advancing cons.
// It returns the number of bytes actually copied, which may be less than
// len(buf) (a single partial read is permitted; the caller loops). If no
// data is available it returns 0 and nudges the peer via notify.
func (t *Transport) Read(buf []byte) int {
	if len(buf) == 0 {
		return 0
	}
	cons := t.iface.reqIdx.cons.Load()
	prod := t.iface.reqIdx.prod.Load() // acquire: pairs with the peer's release store below
	if prod == cons {
		t.notify()
		return 0
	}
	avail := prod - cons
	n := uint32(len(buf))
	if n > avail {
		n = avail
	}
	mask := t.iface.size - 1
	off := cons & mask
	if off+n > t.iface.size {
		first := t.iface.size - off
		copy(buf[:first], t.iface.req[off:])
		copy(buf[first:n], t.iface.req[:n-first])
	} else {
		copy(buf[:n], t.iface.req[off:off+n])
	}
	t.iface.reqIdx.cons.Store(cons + n) // release: bytes were read before cons advanced
	return int(n)
}

// Write copies all of buf into rsp[prod..), advancing prod, looping with
// wrap as space frees up. It self-heals a corrupted reply ring (producer
// ahead of consumer by more than the ring size) by resetting both reply
// indices to zero.
func (t *Transport) Write(buf []byte) {
	written := uint32(0)
	total := uint32(len(buf))
	for written < total {
		cons := t.iface.rspIdx.cons.Load()
		prod := t.iface.rspIdx.prod.Load()
		if !indicesOK(cons, prod, t.iface.size) {
			t.iface.rspIdx.cons.Store(0)
			t.iface.rspIdx.prod.Store(0)
			cons, prod = 0, 0
		}
		free := t.iface.size - (prod - cons)
		if free == 0 {
			continue
		}
		remaining := total - written
		n := free
		if n > remaining {
			n = remaining
		}
		mask := t.iface.size - 1
		off := prod & mask
		if off+n > t.iface.size {
			first := t.iface.size - off
			copy(t.iface.rsp[off:], buf[written:written+first])
			copy(t.iface.rsp[:n-first], buf[written+first:written+n])
		} else {
			copy(t.iface.rsp[off:off+n], buf[written:written+n])
		}
		t.iface.rspIdx.prod.Store(prod + n) // release
		written += n
	}
}

// HasRequestData reports whether any request bytes are currently
// available to read, without consuming them -- used by the worker loop to
// decide whether to block on its wake semaphore.
func (t *Transport) HasRequestData() bool {
	cons := t.iface.reqIdx.cons.Load()
	prod := t.iface.reqIdx.prod.Load()
	return prod != cons
}

// Notify nudges the peer event channel. The framer calls this after each
// logical write (header, then payload).
func (t *Transport) Notify() {
	t.notify()
}

// IndicesOK reports whether prod-cons <= RingSize, exposed for tests that
// exercise the self-healing reset directly.
func (t *Transport) IndicesOK() bool {
	cons := t.iface.rspIdx.cons.Load()
	prod := t.iface.rspIdx.prod.Load()
	return indicesOK(cons, prod, t.iface.size)
}
