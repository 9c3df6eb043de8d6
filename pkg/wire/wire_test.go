package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestOpcodeString(t *testing.T) {
	require.Equal(t, "WRITE", WRITE.String())
	require.Equal(t, "UNKNOWN", Opcode(9999).String())
}

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{Type: WATCH, ReqID: 7, TxID: 3, Len: 42}
	buf := encodeHeader(h)
	require.Len(t, buf, HeaderSize)
	got := decodeHeader(buf)
	if diff := cmp.Diff(h, got); diff != "" {
		t.Fatalf("header round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestOpcodeNumberingMatchesWireOrder(t *testing.T) {
	require.Equal(t, Opcode(0), CONTROL)
	require.Equal(t, Opcode(4), WATCH)
	require.Equal(t, Opcode(5), UNWATCH)
	require.Equal(t, Opcode(15), WATCH_EVENT)
	require.Equal(t, Opcode(16), ERROR)
	require.Equal(t, Opcode(22), DIRECTORY_PART)
}
