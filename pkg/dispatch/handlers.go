package dispatch

import (
	"bytes"
	"strconv"

	"github.com/firscity/zephyr-xenlib/pkg/store"
	"github.com/firscity/zephyr-xenlib/pkg/watch"
	"github.com/firscity/zephyr-xenlib/pkg/wire"
	"github.com/firscity/zephyr-xenlib/pkg/xserrors"
)

// splitPayload splits a request payload into its NUL-terminated path
// prefix and whatever follows (value, or watch token). A payload shorter
// than the path prefix is EINVAL.
func splitPayload(payload []byte) (path string, rest []byte, err error) {
	idx := bytes.IndexByte(payload, 0)
	if idx < 0 {
		return "", nil, xserrors.ErrInvalid
	}
	return string(payload[:idx]), payload[idx+1:], nil
}

func nulTerminated(s []byte) []byte {
	return append(append([]byte(nil), s...), 0)
}

// ensureNulTerminated normalizes value to end in exactly one NUL byte,
// trimming first so an already-terminated value isn't double-terminated.
func ensureNulTerminated(value []byte) []byte {
	return nulTerminated(bytes.TrimSuffix(value, []byte{0}))
}

func handleControl(_ *Deps, _ Domain, _ *wire.Message) (Result, error) {
	return okReply(), nil
}

func resolvePath(deps *Deps, d Domain, payload []byte) (string, []byte, error) {
	rawPath, rest, err := splitPayload(payload)
	if err != nil {
		return "", nil, err
	}
	path, err := store.ConstructPath(rawPath, d.DomID(), deps.AbsPathMax)
	if err != nil {
		return "", nil, err
	}
	return path, rest, nil
}

func handleDirectory(deps *Deps, d Domain, msg *wire.Message) (Result, error) {
	path, _, err := resolvePath(deps, d, msg.Payload)
	if err != nil {
		return Result{}, err
	}
	node, ok := deps.Tree.Lookup(path)
	if !ok {
		return Result{Payload: []byte{}}, nil
	}
	var payload []byte
	for _, name := range store.DirectoryNames(node) {
		payload = append(payload, nulTerminated([]byte(name))...)
	}
	return Result{Payload: payload}, nil
}

// handleDirectoryPart implements the paginated DIRECTORY_PART opcode.
// Request payload is "path\0" for the first
// chunk, or "path\0<cookie>\0<offset>" to continue a listing from the
// child at index offset; reply payload is "<cookie>\0" followed by as many
// NUL-terminated child names as fit in one ring-sized reply. The cookie is
// the tree's mutation counter when the chunk was built, so a client that
// sees it differ from the first chunk's cookie knows the tree was mutated
// mid-listing and can restart. The cookie sent in a request is not checked.
func handleDirectoryPart(deps *Deps, d Domain, msg *wire.Message) (Result, error) {
	rawPath, rest, err := splitPayload(msg.Payload)
	if err != nil {
		return Result{}, err
	}
	path, err := store.ConstructPath(rawPath, d.DomID(), deps.AbsPathMax)
	if err != nil {
		return Result{}, err
	}

	var offset int
	cookie := deps.Tree.Version()
	if len(rest) > 0 {
		_, more, serr := splitPayload(rest)
		if serr == nil {
			if len(more) > 0 {
				if v, perr := strconv.Atoi(string(more)); perr == nil {
					offset = v
				}
			}
		}
	}

	node, ok := deps.Tree.Lookup(path)
	var names []string
	if ok {
		names = store.DirectoryNames(node)
	}
	if offset > len(names) {
		offset = len(names)
	}

	maxPayload := int(deps.RingSize) - wire.HeaderSize
	payload := nulTerminated([]byte(strconv.FormatUint(cookie, 10)))
	for _, name := range names[offset:] {
		chunk := nulTerminated([]byte(name))
		if len(payload)+len(chunk) > maxPayload {
			break
		}
		payload = append(payload, chunk...)
	}
	return Result{Payload: payload}, nil
}

func handleRead(deps *Deps, d Domain, msg *wire.Message) (Result, error) {
	path, _, err := resolvePath(deps, d, msg.Payload)
	if err != nil {
		return Result{}, err
	}
	node, ok := deps.Tree.Lookup(path)
	if !ok {
		return Result{}, xserrors.ErrNotFound
	}
	if !node.HasValue {
		return Result{Payload: []byte{}}, nil
	}
	return Result{Payload: bytes.TrimSuffix(node.Value, []byte{0})}, nil
}

func handleGetPerms(_ *Deps, _ Domain, _ *wire.Message) (Result, error) {
	return Result{}, xserrors.ErrNoSys
}

func handleSetPerms(_ *Deps, _ Domain, _ *wire.Message) (Result, error) {
	return okReply(), nil
}

func handleWatch(deps *Deps, d Domain, msg *wire.Message) (Result, error) {
	rawPath, token, err := splitPayload(msg.Payload)
	if err != nil {
		return Result{}, err
	}
	relative := len(rawPath) == 0 || rawPath[0] != '/'
	path, err := store.ConstructPath(rawPath, d.DomID(), deps.AbsPathMax)
	if err != nil {
		return Result{}, err
	}
	// Token may itself be NUL-terminated by the sender; trim a trailing
	// NUL so registry identity compares the bare token bytes.
	token = bytes.TrimSuffix(token, []byte{0})

	deps.Watches.Register(path, token, d.DomID(), relative)

	if _, exists := deps.Tree.Lookup(path); exists {
		deps.Pending.Enqueue(watch.PendingEvent{Path: path, TargetDomID: d.DomID()})
		if deps.Wake != nil {
			deps.Wake(d.DomID())
		}
	}
	return okReply(), nil
}

func handleUnwatch(deps *Deps, d Domain, msg *wire.Message) (Result, error) {
	rawPath, token, err := splitPayload(msg.Payload)
	if err != nil {
		return Result{}, err
	}
	path, err := store.ConstructPath(rawPath, d.DomID(), deps.AbsPathMax)
	if err != nil {
		return Result{}, err
	}
	token = bytes.TrimSuffix(token, []byte{0})
	deps.Watches.Unregister(path, token, d.DomID())
	return Result{Payload: []byte{}}, nil
}

func handleTransactionStart(_ *Deps, d Domain, _ *wire.Message) (Result, error) {
	id, err := d.StartTxn()
	if err != nil {
		return Result{}, err
	}
	return Result{Payload: nulTerminated([]byte(strconv.FormatUint(id, 10)))}, nil
}

func handleTransactionEnd(_ *Deps, d Domain, msg *wire.Message) (Result, error) {
	d.MarkTxnEndPending(msg.Header.ReqID, msg.Header.TxID)
	return Result{Suppress: true}, nil
}

func handleGetDomainPath(_ *Deps, d Domain, msg *wire.Message) (Result, error) {
	payload := msg.Payload
	if idx := bytes.IndexByte(payload, 0); idx >= 0 {
		payload = payload[:idx]
	}
	domidStr := string(payload)
	if domidStr == "" {
		// An empty payload defaults to the requesting connection's own
		// domid rather than failing EINVAL.
		domidStr = strconv.FormatUint(uint64(d.DomID()), 10)
	}
	return Result{Payload: nulTerminated([]byte("/local/domain/" + domidStr))}, nil
}

func handleWrite(deps *Deps, d Domain, msg *wire.Message) (Result, error) {
	path, value, err := resolvePath(deps, d, msg.Payload)
	if err != nil {
		return Result{}, err
	}
	if err := deps.Tree.Write(path, ensureNulTerminated(value), true); err != nil {
		return Result{}, err
	}
	watch.Fire(deps.Watches, deps.Pending, path, d.DomID(), deps.Wake)
	return okReply(), nil
}

func handleMkdir(deps *Deps, d Domain, msg *wire.Message) (Result, error) {
	path, _, err := resolvePath(deps, d, msg.Payload)
	if err != nil {
		return Result{}, err
	}
	if err := deps.Tree.Write(path, nil, false); err != nil {
		return Result{}, err
	}
	watch.Fire(deps.Watches, deps.Pending, path, d.DomID(), deps.Wake)
	return okReply(), nil
}

// handleRm implements RM's known quirk: a successful remove replies with
// an empty payload and fires watchers; a remove of an absent path emits
// NO reply at all. This reproduces handle_rm in the original source
// rather than "fixing" it.
func handleRm(deps *Deps, d Domain, msg *wire.Message) (Result, error) {
	path, _, err := resolvePath(deps, d, msg.Payload)
	if err != nil {
		return Result{}, err
	}
	removed, err := deps.Tree.Remove(path)
	if err != nil {
		return Result{}, err
	}
	if !removed {
		return Result{Suppress: true}, nil
	}
	watch.Fire(deps.Watches, deps.Pending, path, d.DomID(), deps.Wake)
	return Result{Payload: []byte{}}, nil
}

func handleResetWatches(deps *Deps, _ Domain, _ *wire.Message) (Result, error) {
	deps.Watches.ResetAll()
	return okReply(), nil
}

// handleIsDomainIntroduced answers the supplemented IS_DOMAIN_INTRODUCED
// opcode: "T" or "F" depending on whether the
// requested domid currently has a running worker.
func handleIsDomainIntroduced(deps *Deps, _ Domain, msg *wire.Message) (Result, error) {
	payload := msg.Payload
	if idx := bytes.IndexByte(payload, 0); idx >= 0 {
		payload = payload[:idx]
	}
	domid, err := strconv.ParseUint(string(payload), 10, 16)
	if err != nil {
		return Result{}, xserrors.ErrInvalid
	}
	introduced := deps.IsIntroduced != nil && deps.IsIntroduced(uint16(domid))
	if introduced {
		return Result{Payload: []byte("T\x00")}, nil
	}
	return Result{Payload: []byte("F\x00")}, nil
}
