package u2fhid

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/kryptco/go-u2fhid/internal/log"
)

// Capability flags reported in AuthenticatorInfo.CapFlags.
const (
	CapabilityWink byte = 0x01
	CapabilityLock byte = 0x02
)

// DeviceInfo describes the USB HID identity of a discovered token, as
// reported by the platform's HID enumeration.
type DeviceInfo struct {
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
}

// AuthenticatorInfo is the parsed response to INIT.
type AuthenticatorInfo struct {
	Nonce           [8]byte
	ChannelID       uint32
	ProtocolVersion byte
	VersionMajor    byte
	VersionMinor    byte
	VersionBuild    byte
	CapFlags        byte
}

// HasCapability reports whether the given capability bit is set.
func (a AuthenticatorInfo) HasCapability(flag byte) bool {
	return a.CapFlags&flag != 0
}

// Device is an uninitialized Device Session: it owns a byte transport
// and can only perform Initialize. Per the two-state design, a
// successful Initialize yields a distinct InitializedDevice rather
// than flipping a runtime flag on this value.
type Device struct {
	raw       RawDevice
	transport *framedTransport
	info      DeviceInfo
}

// NewDevice wraps an already-open RawDevice as an uninitialized
// Device Session. Discovery uses this internally; callers driving
// their own transport (e.g. in tests) may call it directly.
func NewDevice(raw RawDevice, info DeviceInfo) *Device {
	return NewDeviceWithTimeout(raw, info, DefaultFrameTimeout)
}

// NewDeviceWithTimeout is like NewDevice but overrides the per-frame
// read timeout.
func NewDeviceWithTimeout(raw RawDevice, info DeviceInfo, frameTimeout time.Duration) *Device {
	return &Device{
		raw:       raw,
		transport: newFramedTransport(raw, frameTimeout),
		info:      info,
	}
}

// Info returns the HID identity this Device was discovered with.
func (d *Device) Info() DeviceInfo { return d.info }

// Close releases the underlying byte transport. It must be called on
// every exit path, initialized or not.
func (d *Device) Close() error { return d.raw.Close() }

// Initialize performs the channel-allocation handshake: it sends the
// 8-byte client nonce over the broadcast channel, parses the
// response, verifies the echoed nonce, and on success returns an
// InitializedDevice bound to the newly allocated channel id.
//
// A mismatched echoed nonce indicates the response belongs to a
// different, concurrently initializing session and is treated as a
// protocol violation rather than silently adopting a stranger's
// channel.
func (d *Device) Initialize(nonce [8]byte) (*InitializedDevice, AuthenticatorInfo, error) {
	var info AuthenticatorInfo

	data, err := d.request(BroadcastChannel, CmdInit, nonce[:])
	if err != nil {
		return nil, info, err
	}
	if len(data) != 17 {
		return nil, info, protocolErr(ShortRead{Got: len(data), Expected: 17})
	}

	copy(info.Nonce[:], data[0:8])
	info.ChannelID = binary.BigEndian.Uint32(data[8:12])
	info.ProtocolVersion = data[12]
	info.VersionMajor = data[13]
	info.VersionMinor = data[14]
	info.VersionBuild = data[15]
	info.CapFlags = data[16]

	if !bytes.Equal(info.Nonce[:], nonce[:]) {
		return nil, info, protocolErr(NonceMismatch{Sent: nonce, Received: info.Nonce})
	}

	log.Log.Noticef("initialized channel 0x%08x (proto=%d v%d.%d.%d caps=0x%02x)",
		info.ChannelID, info.ProtocolVersion, info.VersionMajor, info.VersionMinor, info.VersionBuild, info.CapFlags)

	return &InitializedDevice{Device: d, channelID: info.ChannelID}, info, nil
}

// request is the primitive send-then-read used by Initialize and by
// InitializedDevice's commands: it fragments payload over channelID,
// then reads back a message whose Init frame cmd equals cmd.
func (d *Device) request(channelID uint32, cmd byte, payload []byte) ([]byte, error) {
	if err := d.transport.sendMessage(channelID, cmd, payload); err != nil {
		return nil, err
	}
	return d.transport.readMessage(cmd)
}

// InitializedDevice is a Device Session that has completed the
// channel-allocation handshake. All commands other than Initialize
// are exposed here, using the allocated channel id.
type InitializedDevice struct {
	*Device
	channelID uint32
}

// ChannelID returns the channel id allocated by INIT.
func (d *InitializedDevice) ChannelID() uint32 { return d.channelID }

// Wink sends WINK with an empty payload and discards the response.
// Per spec, the capability flag check before winking is left
// best-effort: callers that care can inspect AuthenticatorInfo
// themselves before calling Wink.
func (d *InitializedDevice) Wink() error {
	_, err := d.request(d.channelID, CmdWink, nil)
	return err
}

// Ping sends data as a PING command; a conformant device echoes it
// back verbatim.
func (d *InitializedDevice) Ping(data []byte) ([]byte, error) {
	return d.request(d.channelID, CmdPing, data)
}

// Lock sends LOCK; lockSeconds is carried as a single byte payload
// (0 releases any existing lock), matching the U2F HID LOCK command.
func (d *InitializedDevice) Lock(lockSeconds byte) error {
	_, err := d.request(d.channelID, CmdLock, []byte{lockSeconds})
	return err
}

// Request is the primitive used by the APDU layer (and by any vendor
// command in the 0x40-0x7f range) to issue an arbitrary command and
// read back its response over the allocated channel.
func (d *InitializedDevice) Request(cmd byte, payload []byte) ([]byte, error) {
	return d.request(d.channelID, cmd, payload)
}
