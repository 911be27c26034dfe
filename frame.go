package u2fhid

import (
	"encoding/binary"
	"fmt"
)

// reportSize is the fixed size of a single U2F HID report on the wire.
const reportSize = 64

// initPayloadMax is the largest payload an Init frame can carry:
// 64 - 4 (channel id) - 1 (cmd) - 2 (length) = 57.
const initPayloadMax = 57

// contPayloadMax is the largest payload a Cont frame can carry:
// 64 - 4 (channel id) - 1 (seq) = 59.
const contPayloadMax = 59

// maxSeq is the largest legal continuation sequence number.
const maxSeq = 0x7f

// MaxMessageLen is the largest logical payload the framed transport
// can carry in a single message: one Init frame plus 128 Cont frames.
const MaxMessageLen = initPayloadMax + (maxSeq+1)*contPayloadMax

// Command bytes used on the wire. ERROR is received-only.
const (
	CmdPing  byte = 0x01
	CmdMsg   byte = 0x03
	CmdLock  byte = 0x04
	CmdInit  byte = 0x06
	CmdWink  byte = 0x08
	CmdError byte = 0x3f
)

// BroadcastChannel is the reserved channel id used only for INIT.
const BroadcastChannel uint32 = 0xffffffff

// FrameKind discriminates the two wire shapes a Frame can take.
type FrameKind int

const (
	// FrameKindInit marks a frame whose fifth byte has bit 7 set: a
	// command byte plus a total-payload-length prefix.
	FrameKindInit FrameKind = iota
	// FrameKindCont marks a frame whose fifth byte has bit 7 clear: a
	// continuation sequence number.
	FrameKindCont
)

func (k FrameKind) String() string {
	switch k {
	case FrameKindInit:
		return "init"
	case FrameKindCont:
		return "cont"
	default:
		return "unknown"
	}
}

// Frame is a single 64-byte HID report, modeled as a tagged union of
// an initialization frame and a continuation frame sharing a 4-byte
// big-endian channel id.
type Frame struct {
	ChannelID uint32
	Kind      FrameKind

	// Cmd, DataLen are meaningful only when Kind == FrameKindInit.
	Cmd     byte
	DataLen uint16

	// Seq is meaningful only when Kind == FrameKindCont.
	Seq byte

	// Data holds the payload bytes carried by this frame (not
	// including zero padding out to 64 bytes).
	Data []byte
}

func (f Frame) String() string {
	switch f.Kind {
	case FrameKindInit:
		return fmt.Sprintf("Frame{channel=0x%08x init cmd=0x%02x len=%d data=%x}", f.ChannelID, f.Cmd, f.DataLen, f.Data)
	default:
		return fmt.Sprintf("Frame{channel=0x%08x cont seq=%d data=%x}", f.ChannelID, f.Seq, f.Data)
	}
}

// EncodeFrame serializes a Frame into a fixed 64-byte HID report,
// zero-padded after the payload. It fails with a ProtocolError if the
// frame's payload exceeds its shape's bound (57 bytes for Init, 59 for
// Cont).
func EncodeFrame(f Frame) ([64]byte, error) {
	var buf [64]byte

	binary.BigEndian.PutUint32(buf[0:4], f.ChannelID)

	switch f.Kind {
	case FrameKindInit:
		if len(f.Data) > initPayloadMax {
			return buf, protocolErr(PayloadTooLarge{Len: len(f.Data), Max: initPayloadMax})
		}
		buf[4] = f.Cmd | 0x80
		binary.BigEndian.PutUint16(buf[5:7], f.DataLen)
		copy(buf[7:], f.Data)
	case FrameKindCont:
		if len(f.Data) > contPayloadMax {
			return buf, protocolErr(PayloadTooLarge{Len: len(f.Data), Max: contPayloadMax})
		}
		buf[4] = f.Seq &^ 0x80
		copy(buf[5:], f.Data)
	default:
		return buf, protocolErr(WrongFrameKind{Expected: "init or cont", Got: "invalid"})
	}

	return buf, nil
}

// DecodeFrame parses a fixed 64-byte HID report into a Frame. The high
// bit of the fifth byte discriminates Init (set) from Cont (clear).
// DecodeFrame does not trim trailing zero padding from the payload;
// that is the responsibility of message reassembly, which knows the
// true logical length.
func DecodeFrame(buf [64]byte) Frame {
	channelID := binary.BigEndian.Uint32(buf[0:4])
	tag := buf[4]

	if tag&0x80 != 0 {
		dataLen := binary.BigEndian.Uint16(buf[5:7])
		data := make([]byte, initPayloadMax)
		copy(data, buf[7:])
		return Frame{
			ChannelID: channelID,
			Kind:      FrameKindInit,
			Cmd:       tag &^ 0x80,
			DataLen:   dataLen,
			Data:      data,
		}
	}

	data := make([]byte, contPayloadMax)
	copy(data, buf[5:])
	return Frame{
		ChannelID: channelID,
		Kind:      FrameKindCont,
		Seq:       tag,
		Data:      data,
	}
}
