package rpc

import (
	"encoding/binary"
)

const (
	// MajorVersion is the protocol major version sent in the preamble.
	MajorVersion byte = 1
	// MinorVersion is the protocol minor version sent in the preamble.
	MinorVersion byte = 0

	preambleLen = 16
)

var (
	// The connection preamble without the version.
	preambleBytes = []byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x07,
		'c', 'a', 'l', 'c', 'r', 'p', 'c',
	}
)

// Frame flags. The high bit marks stream frames; the rest qualify the frame
// within its kind.
const (
	// FlagStreamMsg signifies a stream message frame.
	FlagStreamMsg byte = 0b1000_0000

	// FlagStream signifies a request that opens a stream.
	FlagStream byte = 0b0100_0000
	// FlagTimeout signifies a request that carries a deadline.
	FlagTimeout byte = 0b0000_0010
	// FlagCancel signifies a cancelation of a prior request with the same ID.
	FlagCancel byte = 0b0000_0001

	// MsgFlagClose marks the terminal frame of a stream.
	MsgFlagClose byte = 0b0000_0001
	// MsgFlagDone half-closes the sender's direction: no more messages will
	// follow, but the stream stays open for the reply.
	MsgFlagDone byte = 0b0000_0010
)

func hasStreamMsgFlag(flags byte) bool { return flags&FlagStreamMsg != 0 }
func hasStreamFlag(flags byte) bool    { return flags&FlagStream != 0 }
func hasTimeoutFlag(flags byte) bool   { return flags&FlagTimeout != 0 }
func hasCancelFlag(flags byte) bool    { return flags&FlagCancel != 0 }
func hasCloseFlag(flags byte) bool     { return flags&MsgFlagClose != 0 }
func hasDoneFlag(flags byte) bool      { return flags&MsgFlagDone != 0 }

func preamble() []byte {
	return append(append([]byte(nil), preambleBytes...), MajorVersion, MinorVersion)
}

func append2(buf []byte, u uint16) []byte {
	return binary.LittleEndian.AppendUint16(buf, u)
}

func get2(buf []byte) uint16 {
	return binary.LittleEndian.Uint16(buf)
}

func append8(buf []byte, u uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, u)
}

func place8(buf []byte, u uint64) {
	binary.LittleEndian.PutUint64(buf, u)
}

func get8(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}
