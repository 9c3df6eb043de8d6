package wire

import (
	"runtime"

	"github.com/firscity/zephyr-xenlib/pkg/ring"
	"github.com/firscity/zephyr-xenlib/pkg/xserrors"
)

// Framer reassembles messages off a ring.Transport and emits replies back
// across it.
type Framer struct {
	transport *ring.Transport
}

// NewFramer wraps a ring transport with message framing.
func NewFramer(transport *ring.Transport) *Framer {
	return &Framer{transport: transport}
}

// ReadMessage assembles one request off the ring. ok is false when the
// header read returned zero bytes with nothing yet accumulated -- a
// spurious wake (e.g. a watch-event wake from another writer), and the
// caller should simply loop back to the top of the worker loop. err is
// non-nil only for a framing violation (the declared length exceeds what
// the ring could ever hold).
func (f *Framer) ReadMessage() (msg *Message, ok bool, err error) {
	header := make([]byte, HeaderSize)
	n := f.transport.Read(header)
	if n == 0 {
		return nil, false, nil
	}
	for uint32(n) < HeaderSize {
		m := f.transport.Read(header[n:])
		if m == 0 {
			runtime.Gosched()
			continue
		}
		n += m
	}
	hdr := decodeHeader(header)

	maxPayload := f.transport.RingSize() - HeaderSize
	if hdr.Len > maxPayload {
		return &Message{Header: hdr}, true, xserrors.ErrTooBig
	}

	payload := make([]byte, hdr.Len)
	read := uint32(0)
	for read < hdr.Len {
		m := f.transport.Read(payload[read:])
		if m == 0 {
			runtime.Gosched()
			continue
		}
		read += uint32(m)
	}
	return &Message{Header: hdr, Payload: payload}, true, nil
}

// WriteReply emits a reply's header then payload, notifying the peer after
// each.
func (f *Framer) WriteReply(msg Message) {
	msg.Header.Len = uint32(len(msg.Payload))
	f.transport.Write(encodeHeader(msg.Header))
	f.transport.Notify()
	f.transport.Write(msg.Payload)
	f.transport.Notify()
}
