package apdu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	u2fhid "github.com/kryptco/go-u2fhid"
)

func TestEncodeNoData(t *testing.T) {
	got := Encode(InsVersion, 0, 0, nil)
	want := []byte{0x00, InsVersion, 0x00, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = %x, want %x", got, want)
	}
}

func TestEncodeWithData(t *testing.T) {
	data := []byte{0xaa, 0xbb, 0xcc}
	got := Encode(InsRegister, 1, 2, data)

	if got[0] != 0x00 || got[1] != InsRegister || got[2] != 1 || got[3] != 2 || got[4] != 0x00 {
		t.Fatalf("unexpected header: %x", got[:5])
	}
	lc := binary.BigEndian.Uint16(got[5:7])
	if int(lc) != len(data) {
		t.Fatalf("Lc = %d, want %d", lc, len(data))
	}
	if !bytes.Equal(got[7:7+len(data)], data) {
		t.Fatalf("command data = %x, want %x", got[7:7+len(data)], data)
	}
	le := got[len(got)-2:]
	if le[0] != 0x00 || le[1] != 0x00 {
		t.Fatalf("Le = %x, want 0000", le)
	}
}

func statusResponse(payload []byte, sw uint16) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, payload...)
	var swBytes [2]byte
	binary.BigEndian.PutUint16(swBytes[:], sw)
	return append(out, swBytes[:]...)
}

func TestDecodeStatusNoError(t *testing.T) {
	payload := []byte{1, 2, 3}
	got, err := decodeStatus(statusResponse(payload, swNoError))
	if err != nil {
		t.Fatalf("decodeStatus: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %x, want %x", got, payload)
	}
}

func TestDecodeStatusKnownErrors(t *testing.T) {
	cases := []uint16{swWrongData, swConditionsNotSatisfied, swInsNotSupported, swClaNotSupported}
	for _, sw := range cases {
		_, err := decodeStatus(statusResponse(nil, sw))
		if err == nil {
			t.Fatalf("sw=0x%04x: expected error, got nil", sw)
		}
	}
}

func TestDecodeStatusUnknownIsProtocolError(t *testing.T) {
	_, err := decodeStatus(statusResponse(nil, 0x1234))
	if err == nil {
		t.Fatal("expected error for unrecognized status word, got nil")
	}
	var pe *u2fhid.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *u2fhid.ProtocolError, got %T", err)
	}
}

func TestDecodeStatusTooShort(t *testing.T) {
	_, err := decodeStatus([]byte{0x90})
	if err == nil {
		t.Fatal("expected error for truncated response, got nil")
	}
}

func TestRegisterDataRejectsWrongLengths(t *testing.T) {
	if _, err := registerData(make([]byte, 31), make([]byte, 32)); err == nil {
		t.Fatal("expected error for short challenge parameter, got nil")
	}
	if _, err := registerData(make([]byte, 32), make([]byte, 33)); err == nil {
		t.Fatal("expected error for long application parameter, got nil")
	}
}

func TestAuthenticateDataLayout(t *testing.T) {
	challenge := bytes.Repeat([]byte{0x11}, 32)
	app := bytes.Repeat([]byte{0x22}, 32)
	keyHandle := []byte{0x01, 0x02, 0x03}

	data, err := authenticateData(challenge, app, keyHandle)
	if err != nil {
		t.Fatalf("authenticateData: %v", err)
	}
	if !bytes.Equal(data[0:32], challenge) {
		t.Fatal("challenge parameter not at offset 0")
	}
	if !bytes.Equal(data[32:64], app) {
		t.Fatal("application parameter not at offset 32")
	}
	if data[64] != byte(len(keyHandle)) {
		t.Fatalf("key handle length byte = %d, want %d", data[64], len(keyHandle))
	}
	if !bytes.Equal(data[65:], keyHandle) {
		t.Fatal("key handle not appended after its length byte")
	}
}
