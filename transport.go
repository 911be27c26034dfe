package u2fhid

import (
	"time"

	"github.com/kryptco/go-u2fhid/internal/log"
)

// DefaultFrameTimeout is the per-frame read timeout used by the
// framed transport unless a Device is constructed with a different
// one. It bounds a single 64-byte report read, not a whole
// request/response exchange.
const DefaultFrameTimeout = 500 * time.Millisecond

// RawDevice is the abstract byte transport the Framed Transport layer
// is built on: a single open HID report pipe, read 64 bytes at a time
// and written as 65-byte buffers (a leading report-id byte followed by
// the 64-byte report). Implementations are not expected to be safe for
// concurrent use.
type RawDevice interface {
	// ReadBytes reads a single report into buf, blocking up to
	// timeout. It returns the number of bytes read; 0 with a nil
	// error means nothing arrived before the timeout elapsed.
	ReadBytes(buf []byte, timeout time.Duration) (int, error)
	// WriteBytes writes buf as a single outgoing report and returns
	// the number of bytes accepted. The framed transport always passes
	// a leading 0x00 report-id byte followed by the 64-byte report.
	WriteBytes(buf []byte) (int, error)
	// Close releases the underlying device handle.
	Close() error
}

// framedTransport fragments logical messages into Init/Cont frames
// over a RawDevice and reassembles them on read. It holds no sequence
// state between calls: callers drive one full message exchange at a
// time.
type framedTransport struct {
	raw          RawDevice
	frameTimeout time.Duration
}

func newFramedTransport(raw RawDevice, frameTimeout time.Duration) *framedTransport {
	if frameTimeout <= 0 {
		frameTimeout = DefaultFrameTimeout
	}
	return &framedTransport{raw: raw, frameTimeout: frameTimeout}
}

// sendMessage fragments payload into one Init frame (up to 57 bytes)
// followed by as many Cont frames (up to 59 bytes each, seq starting
// at 0) as needed, and writes each as a report-id-prefixed 65-byte
// HID write.
func (t *framedTransport) sendMessage(channelID uint32, cmd byte, payload []byte) error {
	if len(payload) > MaxMessageLen {
		return protocolErr(PayloadTooLarge{Len: len(payload), Max: MaxMessageLen})
	}

	sent := 0
	initLen := len(payload)
	if initLen > initPayloadMax {
		initLen = initPayloadMax
	}
	initFrame := Frame{
		ChannelID: channelID,
		Kind:      FrameKindInit,
		Cmd:       cmd,
		DataLen:   uint16(len(payload)),
		Data:      payload[:initLen],
	}
	if err := t.writeFrame(initFrame); err != nil {
		return err
	}
	sent += initLen

	seq := byte(0)
	for sent < len(payload) {
		end := sent + contPayloadMax
		if end > len(payload) {
			end = len(payload)
		}
		contFrame := Frame{
			ChannelID: channelID,
			Kind:      FrameKindCont,
			Seq:       seq,
			Data:      payload[sent:end],
		}
		if err := t.writeFrame(contFrame); err != nil {
			return err
		}
		sent = end
		seq++
	}
	return nil
}

// readMessage reads one Init frame followed by as many Cont frames as
// its DataLen requires, validates cmd and sequencing, and returns the
// reassembled logical payload truncated to its true length.
func (t *framedTransport) readMessage(expectedCmd byte) ([]byte, error) {
	initFrame, err := t.readFrame()
	if err != nil {
		return nil, err
	}
	if initFrame.Kind != FrameKindInit {
		return nil, protocolErr(WrongFrameKind{Expected: "init", Got: initFrame.Kind.String()})
	}
	if initFrame.Cmd != expectedCmd {
		return nil, protocolErr(WrongCommand{Expected: expectedCmd, Got: initFrame.Cmd})
	}

	total := int(initFrame.DataLen)
	data := make([]byte, 0, total)
	take := len(initFrame.Data)
	if take > total {
		take = total
	}
	data = append(data, initFrame.Data[:take]...)

	expectedSeq := byte(0)
	for len(data) < total {
		contFrame, err := t.readFrame()
		if err != nil {
			return nil, err
		}
		if contFrame.Kind != FrameKindCont {
			return nil, protocolErr(WrongFrameKind{Expected: "cont", Got: contFrame.Kind.String()})
		}
		if contFrame.Seq != expectedSeq {
			return nil, protocolErr(SeqMismatch{Expected: expectedSeq, Got: contFrame.Seq})
		}
		remaining := total - len(data)
		chunk := contFrame.Data
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		data = append(data, chunk...)
		expectedSeq++
	}

	return data[:total], nil
}

func (t *framedTransport) writeFrame(f Frame) error {
	buf, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	log.Log.Debugf("sending frame: %s", f)

	out := make([]byte, 0, reportSize+1)
	out = append(out, 0x00) // leading report-id byte
	out = append(out, buf[:]...)

	if _, err := t.raw.WriteBytes(out); err != nil {
		return &HidError{Err: err}
	}
	return nil
}

func (t *framedTransport) readFrame() (Frame, error) {
	buf := make([]byte, reportSize)
	n, err := t.raw.ReadBytes(buf, t.frameTimeout)
	if err != nil {
		return Frame{}, &HidError{Err: err}
	}
	if n == 0 {
		return Frame{}, protocolErr(ShortRead{Got: 0, Expected: reportSize})
	}
	if n != reportSize {
		return Frame{}, protocolErr(ShortRead{Got: n, Expected: reportSize})
	}

	var arr [64]byte
	copy(arr[:], buf)
	f := DecodeFrame(arr)
	log.Log.Debugf("received frame: %s", f)
	return f, nil
}
