// Package apdu wraps U2F authenticator commands in extended-length
// ISO 7816-4 APDUs and issues them over a u2fhid.InitializedDevice's
// MSG command, decoding the trailing status word into either a
// payload or a categorized error.
package apdu

import (
	"encoding/binary"
	"fmt"

	u2fhid "github.com/kryptco/go-u2fhid"
)

func errFixedLen(field string, want, got int) error {
	return fmt.Errorf("%s must be %d bytes, got %d", field, want, got)
}

// Known U2F instruction codes. The vendor range 0x40-0x7f is reserved
// for vendor-defined commands and is not enumerated here.
const (
	InsRegister     byte = 0x01
	InsAuthenticate byte = 0x02
	InsVersion      byte = 0x03
)

// VendorInsMin and VendorInsMax bound the vendor-defined instruction
// range.
const (
	VendorInsMin byte = 0x40
	VendorInsMax byte = 0x7f
)

// Status words this layer recognizes. Anything else is a Protocol
// error.
const (
	swNoError               uint16 = 0x9000
	swWrongData             uint16 = 0x6984
	swConditionsNotSatisfied uint16 = 0x6985
	swInsNotSupported       uint16 = 0x6d00
	swClaNotSupported       uint16 = 0x6e00
)

// Client wraps an initialized Device Session to issue APDU-framed
// commands over its MSG channel.
type Client struct {
	device *u2fhid.InitializedDevice
}

// New wraps dev, which must already be initialized.
func New(dev *u2fhid.InitializedDevice) *Client {
	return &Client{device: dev}
}

// Send encodes (ins, p1, p2, commandData) as an extended-length APDU,
// issues it via MSG, and decodes the response's trailing status word.
// On SW_NO_ERROR the response payload (which may be empty) is
// returned; any other recognized status word yields an *u2fhid.APDUError,
// and an unrecognized one yields a *u2fhid.ProtocolError.
func (c *Client) Send(ins, p1, p2 byte, commandData []byte) ([]byte, error) {
	request := Encode(ins, p1, p2, commandData)

	response, err := c.device.Request(u2fhid.CmdMsg, request)
	if err != nil {
		return nil, err
	}
	return decodeStatus(response)
}

// SendVersion issues the U2F_VERSION command.
func (c *Client) SendVersion() ([]byte, error) {
	return c.Send(InsVersion, 0, 0, nil)
}

// SendRegister issues a U2F_REGISTER command. challengeParam and
// appParam must each be exactly 32 bytes; this only validates and
// assembles wire framing, not the cryptographic meaning of either
// parameter.
func (c *Client) SendRegister(challengeParam, appParam []byte) ([]byte, error) {
	data, err := registerData(challengeParam, appParam)
	if err != nil {
		return nil, err
	}
	return c.Send(InsRegister, 0, 0, data)
}

// SendAuthenticate issues a U2F_AUTHENTICATE command. controlByte is
// carried as P1 (e.g. "check-only" or "enforce-user-presence-and-sign").
// challengeParam and appParam must each be exactly 32 bytes.
func (c *Client) SendAuthenticate(controlByte byte, challengeParam, appParam, keyHandle []byte) ([]byte, error) {
	data, err := authenticateData(challengeParam, appParam, keyHandle)
	if err != nil {
		return nil, err
	}
	return c.Send(InsAuthenticate, controlByte, 0, data)
}

func registerData(challengeParam, appParam []byte) ([]byte, error) {
	if len(challengeParam) != 32 {
		return nil, &u2fhid.IOError{Err: errFixedLen("challenge parameter", 32, len(challengeParam))}
	}
	if len(appParam) != 32 {
		return nil, &u2fhid.IOError{Err: errFixedLen("application parameter", 32, len(appParam))}
	}
	data := make([]byte, 0, 64)
	data = append(data, challengeParam...)
	data = append(data, appParam...)
	return data, nil
}

func authenticateData(challengeParam, appParam, keyHandle []byte) ([]byte, error) {
	if len(challengeParam) != 32 {
		return nil, &u2fhid.IOError{Err: errFixedLen("challenge parameter", 32, len(challengeParam))}
	}
	if len(appParam) != 32 {
		return nil, &u2fhid.IOError{Err: errFixedLen("application parameter", 32, len(appParam))}
	}
	if len(keyHandle) > 255 {
		return nil, &u2fhid.IOError{Err: fmt.Errorf("key handle must be at most 255 bytes, got %d", len(keyHandle))}
	}
	data := make([]byte, 0, 65+len(keyHandle))
	data = append(data, challengeParam...)
	data = append(data, appParam...)
	data = append(data, byte(len(keyHandle)))
	data = append(data, keyHandle...)
	return data, nil
}

// Encode produces the extended-length ISO 7816-4 byte string for
// (ins, p1, p2, commandData), matching the U2F HID RAWMSG expectation:
// CLA=0x00, extended-length prefix 0x00, Lc present only when
// commandData is non-empty, Le always 0x0000 (Ne = 65536).
func Encode(ins, p1, p2 byte, commandData []byte) []byte {
	out := make([]byte, 0, 7+len(commandData)+2)
	out = append(out, 0x00, ins, p1, p2, 0x00)
	if len(commandData) > 0 {
		var lc [2]byte
		binary.BigEndian.PutUint16(lc[:], uint16(len(commandData)))
		out = append(out, lc[:]...)
		out = append(out, commandData...)
	}
	out = append(out, 0x00, 0x00)
	return out
}

func decodeStatus(response []byte) ([]byte, error) {
	if len(response) < 2 {
		return nil, &u2fhid.ProtocolError{Cause: u2fhid.ShortRead{Got: len(response), Expected: 2}}
	}
	n := len(response)
	sw := binary.BigEndian.Uint16(response[n-2:])
	payload := response[:n-2]

	switch sw {
	case swNoError:
		return payload, nil
	case swWrongData:
		return nil, &u2fhid.APDUError{SW: sw, Description: "wrong data", Payload: payload}
	case swConditionsNotSatisfied:
		return nil, &u2fhid.APDUError{SW: sw, Description: "conditions not satisfied", Payload: payload}
	case swInsNotSupported:
		return nil, &u2fhid.APDUError{SW: sw, Description: "ins not supported", Payload: payload}
	case swClaNotSupported:
		return nil, &u2fhid.APDUError{SW: sw, Description: "cla not supported", Payload: payload}
	default:
		return nil, &u2fhid.ProtocolError{Cause: u2fhid.UnknownStatus{SW: sw}}
	}
}
