package u2fhid

import (
	"encoding/binary"
	"errors"
	"testing"
)

func initResponseFrame(nonce [8]byte, channelID uint32) Frame {
	data := make([]byte, 17)
	copy(data[0:8], nonce[:])
	binary.BigEndian.PutUint32(data[8:12], channelID)
	data[12] = 2          // protocol version
	data[13] = 1          // major
	data[14] = 0          // minor
	data[15] = 0          // build
	data[16] = CapabilityWink | CapabilityLock

	return Frame{
		ChannelID: BroadcastChannel,
		Kind:      FrameKindInit,
		Cmd:       CmdInit,
		DataLen:   uint16(len(data)),
		Data:      data,
	}
}

func TestDeviceInitializeSuccess(t *testing.T) {
	nonce := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	raw := &fakeRawDevice{inbound: [][]byte{report(initResponseFrame(nonce, 0xcafef00d))}}
	dev := NewDevice(raw, DeviceInfo{VendorID: 0x1234, ProductID: 0x5678})

	initialized, info, err := dev.Initialize(nonce)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if initialized.ChannelID() != 0xcafef00d {
		t.Fatalf("channel id = 0x%08x, want 0xcafef00d", initialized.ChannelID())
	}
	if info.Nonce != nonce {
		t.Fatalf("echoed nonce = %x, want %x", info.Nonce, nonce)
	}
	if !info.HasCapability(CapabilityWink) {
		t.Fatal("expected wink capability to be set")
	}
}

func TestDeviceInitializeRejectsNonceMismatch(t *testing.T) {
	sentNonce := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	wrongNonce := [8]byte{9, 9, 9, 9, 9, 9, 9, 9}
	raw := &fakeRawDevice{inbound: [][]byte{report(initResponseFrame(wrongNonce, 0xcafef00d))}}
	dev := NewDevice(raw, DeviceInfo{})

	_, _, err := dev.Initialize(sentNonce)
	if err == nil {
		t.Fatal("expected error for mismatched nonce, got nil")
	}
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProtocolError, got %T", err)
	}
	if _, ok := pe.Cause.(NonceMismatch); !ok {
		t.Fatalf("expected NonceMismatch cause, got %T", pe.Cause)
	}
}

func TestDeviceInitializeRejectsShortResponse(t *testing.T) {
	raw := &fakeRawDevice{inbound: [][]byte{report(Frame{
		ChannelID: BroadcastChannel, Kind: FrameKindInit, Cmd: CmdInit, DataLen: 4, Data: []byte{1, 2, 3, 4},
	})}}
	dev := NewDevice(raw, DeviceInfo{})

	_, _, err := dev.Initialize([8]byte{})
	if err == nil {
		t.Fatal("expected error for short INIT response, got nil")
	}
}

func TestInitializedDeviceWinkAndLock(t *testing.T) {
	nonce := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	raw := &fakeRawDevice{inbound: [][]byte{report(initResponseFrame(nonce, 42))}}
	dev := NewDevice(raw, DeviceInfo{})
	initialized, _, err := dev.Initialize(nonce)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	raw.inbound = append(raw.inbound, report(Frame{ChannelID: 42, Kind: FrameKindInit, Cmd: CmdWink, DataLen: 0}))
	if err := initialized.Wink(); err != nil {
		t.Fatalf("Wink: %v", err)
	}

	raw.inbound = append(raw.inbound, report(Frame{ChannelID: 42, Kind: FrameKindInit, Cmd: CmdLock, DataLen: 0}))
	if err := initialized.Lock(0); err != nil {
		t.Fatalf("Lock: %v", err)
	}
}
