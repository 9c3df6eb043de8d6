// Package wire implements the XenStore message header, opcode table, and
// the framer that reassembles a header+payload message from a ring
// transport.
package wire

import (
	"encoding/binary"
)

// Opcode identifies a XenStore message type, numbered per the wire
// protocol.
type Opcode uint32

// Opcode constants, in wire order.
const (
	CONTROL Opcode = iota
	DIRECTORY
	READ
	GET_PERMS
	WATCH
	UNWATCH
	TRANSACTION_START
	TRANSACTION_END
	INTRODUCE
	RELEASE
	GET_DOMAIN_PATH
	WRITE
	MKDIR
	RM
	SET_PERMS
	WATCH_EVENT
	ERROR
	IS_DOMAIN_INTRODUCED
	RESUME
	SET_TARGET
	RESTRICT
	RESET_WATCHES
	DIRECTORY_PART
)

var opcodeNames = map[Opcode]string{
	CONTROL:               "CONTROL",
	DIRECTORY:             "DIRECTORY",
	READ:                  "READ",
	GET_PERMS:             "GET_PERMS",
	WATCH:                 "WATCH",
	UNWATCH:               "UNWATCH",
	TRANSACTION_START:     "TRANSACTION_START",
	TRANSACTION_END:       "TRANSACTION_END",
	INTRODUCE:             "INTRODUCE",
	RELEASE:               "RELEASE",
	GET_DOMAIN_PATH:       "GET_DOMAIN_PATH",
	WRITE:                 "WRITE",
	MKDIR:                 "MKDIR",
	RM:                    "RM",
	SET_PERMS:             "SET_PERMS",
	WATCH_EVENT:           "WATCH_EVENT",
	ERROR:                 "ERROR",
	IS_DOMAIN_INTRODUCED:  "IS_DOMAIN_INTRODUCED",
	RESUME:                "RESUME",
	SET_TARGET:            "SET_TARGET",
	RESTRICT:              "RESTRICT",
	RESET_WATCHES:         "RESET_WATCHES",
	DIRECTORY_PART:        "DIRECTORY_PART",
}

// String renders the opcode's mnemonic name for logging.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// Header is the fixed 16-byte message header.
type Header struct {
	Type  Opcode
	ReqID uint32
	TxID  uint32
	Len   uint32
}

// Message is a fully assembled header plus its payload.
type Message struct {
	Header  Header
	Payload []byte
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Type))
	binary.LittleEndian.PutUint32(buf[4:8], h.ReqID)
	binary.LittleEndian.PutUint32(buf[8:12], h.TxID)
	binary.LittleEndian.PutUint32(buf[12:16], h.Len)
	return buf
}

func decodeHeader(buf []byte) Header {
	return Header{
		Type:  Opcode(binary.LittleEndian.Uint32(buf[0:4])),
		ReqID: binary.LittleEndian.Uint32(buf[4:8]),
		TxID:  binary.LittleEndian.Uint32(buf[8:12]),
		Len:   binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// HeaderSize is the wire size of Header, exported for ring-capacity math.
const HeaderSize = 16
