package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/firscity/zephyr-xenlib/pkg/base"
	"github.com/firscity/zephyr-xenlib/pkg/store"
	"github.com/firscity/zephyr-xenlib/pkg/watch"
	"github.com/firscity/zephyr-xenlib/pkg/wire"
	"github.com/firscity/zephyr-xenlib/pkg/xserrors"
)

type fakeDomain struct {
	domID      uint16
	txnID      uint64
	txnErr     error
	endedReqID uint32
	endedTxID  uint32
	endCalled  bool
}

func (d *fakeDomain) DomID() uint16 { return d.domID }

func (d *fakeDomain) StartTxn() (uint64, error) {
	if d.txnErr != nil {
		return 0, d.txnErr
	}
	d.txnID = 42
	return d.txnID, nil
}

func (d *fakeDomain) MarkTxnEndPending(reqID, txID uint32) {
	d.endCalled = true
	d.endedReqID = reqID
	d.endedTxID = txID
}

func newTestDeps() (*Deps, *store.Tree, *watch.Registry, *watch.PendingQueue) {
	log := base.NewLogger(nil)
	tree := store.NewTree(log)
	watches := watch.NewRegistry(log)
	pending := watch.NewPendingQueue()
	var woken []uint16
	deps := &Deps{
		Tree:       tree,
		Watches:    watches,
		Pending:    pending,
		AbsPathMax: 3072,
		RingSize:   1024,
		Wake:       func(domID uint16) { woken = append(woken, domID) },
		Log:        log,
	}
	return deps, tree, watches, pending
}

func msgWithPayload(op wire.Opcode, payload string) *wire.Message {
	return &wire.Message{Header: wire.Header{Type: op, ReqID: 1, TxID: 0}, Payload: []byte(payload)}
}

func TestHandleWriteThenRead(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	d := &fakeDomain{domID: 1}

	_, err := handleWrite(deps, d, msgWithPayload(wire.WRITE, "/foo\x00hello"))
	require.NoError(t, err)

	result, err := handleRead(deps, d, msgWithPayload(wire.READ, "/foo\x00"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), result.Payload)
}

func TestHandleWriteNormalizesAlreadyNulTerminatedValue(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	d := &fakeDomain{domID: 1}

	// The payload's value half is itself already NUL-terminated ("bar\x00"),
	// a valid wire payload. The stored value must end in exactly one NUL,
	// never two, and READ must still reply with no trailing NUL.
	_, err := handleWrite(deps, d, msgWithPayload(wire.WRITE, "/foo\x00bar\x00"))
	require.NoError(t, err)

	result, err := handleRead(deps, d, msgWithPayload(wire.READ, "/foo\x00"))
	require.NoError(t, err)
	require.Equal(t, []byte("bar"), result.Payload)
}

func TestHandleReadMissingPathIsEnoent(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	d := &fakeDomain{domID: 1}
	_, err := handleRead(deps, d, msgWithPayload(wire.READ, "/nope\x00"))
	require.ErrorIs(t, err, xserrors.ErrNotFound)
}

func TestHandleMkdirIsIdempotentAndPreservesNoValue(t *testing.T) {
	deps, tree, _, _ := newTestDeps()
	d := &fakeDomain{domID: 1}
	_, err := handleMkdir(deps, d, msgWithPayload(wire.MKDIR, "/a\x00"))
	require.NoError(t, err)
	_, err = handleMkdir(deps, d, msgWithPayload(wire.MKDIR, "/a\x00"))
	require.NoError(t, err)

	result, err := handleDirectory(deps, d, msgWithPayload(wire.DIRECTORY, "/\x00"))
	require.NoError(t, err)
	require.Contains(t, string(result.Payload), "a\x00")

	node, ok := tree.Lookup("/a")
	require.True(t, ok)
	require.False(t, node.HasValue)
}

func TestHandleRmSuppressesReplyWhenAbsent(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	d := &fakeDomain{domID: 1}
	result, err := handleRm(deps, d, msgWithPayload(wire.RM, "/nope\x00"))
	require.NoError(t, err)
	require.True(t, result.Suppress)
}

func TestHandleRmFiresWatchersWhenPresent(t *testing.T) {
	deps, _, watches, pending := newTestDeps()
	d := &fakeDomain{domID: 1}
	watches.Register("/local/domain/1/a", []byte("tok"), 2, false)

	_, err := handleWrite(deps, d, msgWithPayload(wire.WRITE, "a\x00v"))
	require.NoError(t, err)
	pending.DrainFor(2) // consume the write's own fire

	result, err := handleRm(deps, d, msgWithPayload(wire.RM, "a\x00"))
	require.NoError(t, err)
	require.False(t, result.Suppress)
	require.Equal(t, 1, pending.Len())
}

func TestHandleWatchEnqueuesSyntheticEventIfPathAlreadyExists(t *testing.T) {
	deps, _, _, pending := newTestDeps()
	d := &fakeDomain{domID: 1}
	_, err := handleWrite(deps, d, msgWithPayload(wire.WRITE, "/a\x00v"))
	require.NoError(t, err)
	pending.DrainFor(1)

	_, err = handleWatch(deps, d, msgWithPayload(wire.WATCH, "/a\x00token"))
	require.NoError(t, err)
	require.Equal(t, 1, pending.Len())
}

func TestHandleWatchRelativeFlagFromLeadingSlash(t *testing.T) {
	deps, _, watches, _ := newTestDeps()
	d := &fakeDomain{domID: 7}
	_, err := handleWatch(deps, d, msgWithPayload(wire.WATCH, "rel\x00token"))
	require.NoError(t, err)

	matches := watches.MatchingForPath("/local/domain/7/rel")
	require.Len(t, matches, 1)
	require.True(t, matches[0].Relative)
}

func TestHandleTransactionStartAndEnd(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	d := &fakeDomain{domID: 1}

	result, err := handleTransactionStart(deps, d, msgWithPayload(wire.TRANSACTION_START, ""))
	require.NoError(t, err)
	require.Equal(t, []byte("42\x00"), result.Payload)

	msg := &wire.Message{Header: wire.Header{Type: wire.TRANSACTION_END, ReqID: 9, TxID: 42}}
	result, err = handleTransactionEnd(deps, d, msg)
	require.NoError(t, err)
	require.True(t, result.Suppress)
	require.True(t, d.endCalled)
	require.Equal(t, uint32(9), d.endedReqID)
}

func TestHandleTransactionStartPropagatesBusy(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	d := &fakeDomain{domID: 1, txnErr: xserrors.ErrBusy}
	_, err := handleTransactionStart(deps, d, msgWithPayload(wire.TRANSACTION_START, ""))
	require.ErrorIs(t, err, xserrors.ErrBusy)
}

func TestHandleGetDomainPathDefaultsToCaller(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	d := &fakeDomain{domID: 5}
	result, err := handleGetDomainPath(deps, d, msgWithPayload(wire.GET_DOMAIN_PATH, ""))
	require.NoError(t, err)
	require.Equal(t, []byte("/local/domain/5\x00"), result.Payload)
}

func TestHandleGetDomainPathExplicitDomID(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	d := &fakeDomain{domID: 5}
	result, err := handleGetDomainPath(deps, d, msgWithPayload(wire.GET_DOMAIN_PATH, "9"))
	require.NoError(t, err)
	require.Equal(t, []byte("/local/domain/9\x00"), result.Payload)
}

func TestHandleIsDomainIntroduced(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	deps.IsIntroduced = func(domID uint16) bool { return domID == 3 }
	d := &fakeDomain{domID: 1}

	result, err := handleIsDomainIntroduced(deps, d, msgWithPayload(wire.IS_DOMAIN_INTRODUCED, "3"))
	require.NoError(t, err)
	require.Equal(t, []byte("T\x00"), result.Payload)

	result, err = handleIsDomainIntroduced(deps, d, msgWithPayload(wire.IS_DOMAIN_INTRODUCED, "4"))
	require.NoError(t, err)
	require.Equal(t, []byte("F\x00"), result.Payload)
}

func TestDispatchUnknownOpcodeIsEnosys(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	d := &fakeDomain{domID: 1}
	table := DefaultTable()
	msg := &wire.Message{Header: wire.Header{Type: wire.RESUME, ReqID: 1}}
	reply, emit := Dispatch(table, deps, d, msg)
	require.True(t, emit)
	require.Equal(t, wire.ERROR, reply.Header.Type)
	require.Equal(t, []byte("ENOSYS\x00"), reply.Payload)
}

func TestDispatchSuccessReplyMirrorsRequestIDs(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	d := &fakeDomain{domID: 1}
	table := DefaultTable()
	msg := &wire.Message{Header: wire.Header{Type: wire.WRITE, ReqID: 77, TxID: 1}, Payload: []byte("/a\x00v")}
	reply, emit := Dispatch(table, deps, d, msg)
	require.True(t, emit)
	require.Equal(t, wire.WRITE, reply.Header.Type)
	require.Equal(t, uint32(77), reply.Header.ReqID)
	require.Equal(t, uint32(1), reply.Header.TxID)
	require.Equal(t, []byte("OK\x00"), reply.Payload)
}

func TestDispatchHandlerErrorBecomesErrorReply(t *testing.T) {
	deps, _, _, _ := newTestDeps()
	d := &fakeDomain{domID: 1}
	table := DefaultTable()
	msg := &wire.Message{Header: wire.Header{Type: wire.READ, ReqID: 3}, Payload: []byte("/nope\x00")}
	reply, emit := Dispatch(table, deps, d, msg)
	require.True(t, emit)
	require.Equal(t, wire.ERROR, reply.Header.Type)
	require.Equal(t, uint32(3), reply.Header.ReqID)
	require.Equal(t, []byte("ENOENT\x00"), reply.Payload)
}
