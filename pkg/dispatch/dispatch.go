// Package dispatch maps XenStore opcodes to handlers that mutate the tree
// and/or watch state and produce a reply.
package dispatch

import (
	"github.com/firscity/zephyr-xenlib/pkg/base"
	"github.com/firscity/zephyr-xenlib/pkg/store"
	"github.com/firscity/zephyr-xenlib/pkg/watch"
	"github.com/firscity/zephyr-xenlib/pkg/wire"
	"github.com/firscity/zephyr-xenlib/pkg/xserrors"
)

// Domain is the subset of a connected domain's state a handler needs.
// domain.Context implements this; kept as an interface here so this
// package never imports domain (domain imports dispatch, not vice versa).
type Domain interface {
	// DomID returns the domain this request arrived on.
	DomID() uint16
	// StartTxn begins a transaction, or returns xserrors.ErrBusy if one
	// is already active.
	StartTxn() (id uint64, err error)
	// MarkTxnEndPending records that an empty TRANSACTION_END reply is
	// owed on the worker's next loop iteration, and clears the active
	// transaction.
	MarkTxnEndPending(reqID, txID uint32)
}

// Deps bundles the shared engine state every handler may touch.
type Deps struct {
	Tree       *store.Tree
	Watches    *watch.Registry
	Pending    *watch.PendingQueue
	AbsPathMax int
	RingSize   uint32
	Wake       func(domID uint16)
	// IsIntroduced backs the supplemented IS_DOMAIN_INTRODUCED opcode;
	// nil is treated as "nothing ever introduced".
	IsIntroduced func(domID uint16) bool
	Log          *base.Logger
}

// Result is what a handler produces. Suppress means no reply is emitted
// at all for this request -- used by the RM-absent quirk and by
// TRANSACTION_END's deferral.
type Result struct {
	Payload  []byte
	Suppress bool
}

// Handler consumes one decoded message and produces a Result, or an error
// to be reported as an ERROR reply.
type Handler func(deps *Deps, d Domain, msg *wire.Message) (Result, error)

// Table maps opcodes to handlers. Opcodes absent from the table respond
// with ENOSYS.
type Table map[wire.Opcode]Handler

// DefaultTable returns the opcode table for the handlers implemented by
// this package.
func DefaultTable() Table {
	return Table{
		wire.CONTROL:              handleControl,
		wire.DIRECTORY:            handleDirectory,
		wire.DIRECTORY_PART:       handleDirectoryPart,
		wire.READ:                 handleRead,
		wire.GET_PERMS:            handleGetPerms,
		wire.SET_PERMS:            handleSetPerms,
		wire.WATCH:                handleWatch,
		wire.UNWATCH:              handleUnwatch,
		wire.TRANSACTION_START:    handleTransactionStart,
		wire.TRANSACTION_END:      handleTransactionEnd,
		wire.GET_DOMAIN_PATH:      handleGetDomainPath,
		wire.WRITE:                handleWrite,
		wire.MKDIR:                handleMkdir,
		wire.RM:                   handleRm,
		wire.RESET_WATCHES:        handleResetWatches,
		wire.IS_DOMAIN_INTRODUCED: handleIsDomainIntroduced,
	}
}

// Dispatch invokes the handler for msg.Header.Type and turns its outcome
// into a ready-to-send reply message. Unknown opcodes and handler errors
// both produce ERROR replies; the reply's Type matches the request's
// unless the handler failed. emit is false only for the RM-absent and
// TRANSACTION_END-deferral quirks, in which case
// the caller must not write any reply for this request.
func Dispatch(table Table, deps *Deps, d Domain, msg *wire.Message) (reply wire.Message, emit bool) {
	handler, ok := table[msg.Header.Type]
	if !ok {
		return errorReply(msg, xserrors.ErrNoSys), true
	}
	result, err := handler(deps, d, msg)
	if err != nil {
		return errorReply(msg, err), true
	}
	if result.Suppress {
		return wire.Message{}, false
	}
	return wire.Message{
		Header: wire.Header{
			Type:  msg.Header.Type,
			ReqID: msg.Header.ReqID,
			TxID:  msg.Header.TxID,
			Len:   uint32(len(result.Payload)),
		},
		Payload: result.Payload,
	}, true
}

func errorReply(msg *wire.Message, err error) wire.Message {
	code := xserrors.Classify(err)
	payload := append([]byte(code), 0)
	return wire.Message{
		Header: wire.Header{
			Type:  wire.ERROR,
			ReqID: msg.Header.ReqID,
			TxID:  msg.Header.TxID,
			Len:   uint32(len(payload)),
		},
		Payload: payload,
	}
}

func okReply() Result {
	return Result{Payload: []byte("OK\x00")}
}
