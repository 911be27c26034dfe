package u2fhid

import (
	"fmt"
	"time"

	"github.com/karalabe/hid"
)

// hidEnumerator is the production HIDEnumerator, backed by
// github.com/karalabe/hid (cgo bindings over hidapi). This is the Go
// analog of the Rust `hid` crate original_source/ depends on.
type hidEnumerator struct{}

func (hidEnumerator) Enumerate() ([]HIDDeviceDescriptor, error) {
	if !hid.Supported() {
		return nil, fmt.Errorf("hid: platform support not compiled in")
	}

	infos, err := hid.Enumerate(0, 0)
	if err != nil {
		return nil, err
	}

	descriptors := make([]HIDDeviceDescriptor, 0, len(infos))
	for _, info := range infos {
		info := info // capture for the closure below
		descriptors = append(descriptors, HIDDeviceDescriptor{
			VendorID:     info.VendorID,
			ProductID:    info.ProductID,
			UsagePage:    info.UsagePage,
			Usage:        info.Usage,
			Manufacturer: info.Manufacturer,
			Product:      info.Product,
			Open: func() (RawDevice, error) {
				dev, err := info.Open()
				if err != nil {
					return nil, err
				}
				return &HIDRawDevice{dev: dev}, nil
			},
		})
	}
	return descriptors, nil
}

// HIDRawDevice adapts a github.com/karalabe/hid Device to RawDevice.
type HIDRawDevice struct {
	dev *hid.Device
}

type hidReadResult struct {
	n   int
	err error
}

// ReadBytes reads one report from the device, bounded by timeout.
// karalabe/hid's Read blocks indefinitely on the underlying hidapi
// handle with no timeout parameter of its own, so the read runs on a
// helper goroutine and the result is raced against a timer; a read
// that times out is abandoned (its eventual result, if any, is
// discarded) rather than canceled, since hidapi has no cancellation
// primitive.
func (r *HIDRawDevice) ReadBytes(buf []byte, timeout time.Duration) (int, error) {
	ch := make(chan hidReadResult, 1)
	go func() {
		n, err := r.dev.Read(buf)
		ch <- hidReadResult{n: n, err: err}
	}()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(timeout):
		return 0, nil
	}
}

// WriteBytes writes buf as a single outgoing report.
func (r *HIDRawDevice) WriteBytes(buf []byte) (int, error) {
	return r.dev.Write(buf)
}

// Close releases the underlying hidapi handle.
func (r *HIDRawDevice) Close() error {
	return r.dev.Close()
}
