package u2fhid

import (
	"time"

	"github.com/kryptco/go-u2fhid/internal/log"
)

// FIDOUsagePage and FIDOUsageU2FHID are the HID usage page/usage pair
// that identifies a FIDO U2F HID device, per the USB HID descriptor
// filter in spec §6.
const (
	FIDOUsagePage   uint16 = 0xf1d0
	FIDOUsageU2FHID uint16 = 0x01
)

// HIDDeviceDescriptor is one platform HID enumeration entry, along
// with a way to open it. Managers use this to stay decoupled from any
// one HID binding; hidtransport.go supplies the concrete
// implementation backed by github.com/karalabe/hid.
type HIDDeviceDescriptor struct {
	VendorID     uint16
	ProductID    uint16
	UsagePage    uint16
	Usage        uint16
	Manufacturer string
	Product      string
	Open         func() (RawDevice, error)
}

// HIDEnumerator abstracts the underlying platform HID enumeration
// primitive, treated as an external collaborator per spec §1.
type HIDEnumerator interface {
	Enumerate() ([]HIDDeviceDescriptor, error)
}

// Manager is the factory that produces Device Sessions via discovery.
// It shares no mutable state with the Devices it produces: once
// opened, each Device exclusively owns its own transport handle.
type Manager struct {
	enumerator   HIDEnumerator
	frameTimeout time.Duration
}

// NewManager constructs a Manager backed by the platform's HID
// enumeration (github.com/karalabe/hid).
func NewManager() *Manager {
	return NewManagerWithEnumerator(hidEnumerator{})
}

// NewManagerWithEnumerator constructs a Manager backed by a caller
// supplied HIDEnumerator, primarily for testing discovery's filtering
// and skip-on-open-failure behavior without real hardware.
func NewManagerWithEnumerator(e HIDEnumerator) *Manager {
	return &Manager{enumerator: e, frameTimeout: DefaultFrameTimeout}
}

// WithFrameTimeout returns a Manager that hands out Devices using the
// given per-frame read timeout instead of DefaultFrameTimeout.
func (m *Manager) WithFrameTimeout(timeout time.Duration) *Manager {
	return &Manager{enumerator: m.enumerator, frameTimeout: timeout}
}

// Discover enumerates attached HID devices, filters to the FIDO U2F
// HID usage page/usage, and returns a lazy, forward-only sequence of
// independent, uninitialized Device Sessions. Devices that fail to
// open are skipped with a diagnostic; this is not fatal to discovery.
func (m *Manager) Discover() (*DeviceIterator, error) {
	all, err := m.enumerator.Enumerate()
	if err != nil {
		return nil, &HidError{Err: err}
	}

	var matched []HIDDeviceDescriptor
	for _, d := range all {
		if d.UsagePage == FIDOUsagePage && d.Usage == FIDOUsageU2FHID {
			matched = append(matched, d)
		}
	}

	return &DeviceIterator{descriptors: matched, frameTimeout: m.frameTimeout}, nil
}

// DeviceIterator yields Device Sessions one at a time from a matched
// set of HID descriptors. It is forward-only: once Next returns
// (nil, false), the iterator is exhausted.
type DeviceIterator struct {
	descriptors  []HIDDeviceDescriptor
	idx          int
	frameTimeout time.Duration
}

// Next opens and returns the next matching device, or (nil, false)
// once the sequence is exhausted. Devices that fail to open are
// skipped transparently; call Next again to continue past them.
func (it *DeviceIterator) Next() (*Device, bool) {
	for it.idx < len(it.descriptors) {
		d := it.descriptors[it.idx]
		it.idx++

		raw, err := d.Open()
		if err != nil {
			log.Log.Warningf("skipping U2F device %04x:%04x (%s %s): open failed: %s",
				d.VendorID, d.ProductID, d.Manufacturer, d.Product, err)
			continue
		}

		info := DeviceInfo{
			VendorID:     d.VendorID,
			ProductID:    d.ProductID,
			Manufacturer: d.Manufacturer,
			Product:      d.Product,
		}
		log.Log.Noticef("discovered U2F device %04x:%04x (%s %s)", d.VendorID, d.ProductID, d.Manufacturer, d.Product)
		return NewDeviceWithTimeout(raw, info, it.frameTimeout), true
	}
	return nil, false
}
