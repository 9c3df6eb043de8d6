package domain

import "github.com/firscity/zephyr-xenlib/pkg/ring"

// Mapper is the out-of-scope memory-mapping primitive:
// map/unmap a foreign domain's grant page as a ring.Interface.
type Mapper interface {
	Map(domid uint16, pfnOffset uint64) (*ring.Interface, error)
	Unmap(iface *ring.Interface) error
}

// EventChannel is the out-of-scope event-channel primitive: bind/notify/unbind/close. callback runs outside the
// worker and must be non-blocking.
type EventChannel interface {
	Bind(remoteDomID uint16, remotePort uint32, callback func()) (localPort uint32, err error)
	Notify(localPort uint32) error
	Unbind(localPort uint32) error
	Close(localPort uint32) error
}

// Publisher is the out-of-scope hypercall that publishes the store
// event-channel parameter for a guest.
type Publisher interface {
	PublishEventChannel(domid uint16, localPort uint32) error
}
