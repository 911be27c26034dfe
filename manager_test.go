package u2fhid

import "testing"

type fakeEnumerator struct {
	descriptors []HIDDeviceDescriptor
	err         error
}

func (f *fakeEnumerator) Enumerate() ([]HIDDeviceDescriptor, error) {
	return f.descriptors, f.err
}

func openOK(t *testing.T) func() (RawDevice, error) {
	return func() (RawDevice, error) { return &fakeRawDevice{}, nil }
}

func TestDiscoverFiltersByUsagePage(t *testing.T) {
	enum := &fakeEnumerator{descriptors: []HIDDeviceDescriptor{
		{VendorID: 1, ProductID: 1, UsagePage: FIDOUsagePage, Usage: FIDOUsageU2FHID, Open: openOK(t)},
		{VendorID: 2, ProductID: 2, UsagePage: 0x0001, Usage: 0x0006, Open: openOK(t)}, // keyboard, not U2F
	}}
	mgr := NewManagerWithEnumerator(enum)

	it, err := mgr.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	dev, ok := it.Next()
	if !ok {
		t.Fatal("expected one matching device")
	}
	if dev.Info().VendorID != 1 {
		t.Fatalf("vendor id = %d, want 1", dev.Info().VendorID)
	}

	if _, ok := it.Next(); ok {
		t.Fatal("expected iterator to be exhausted after the one matching device")
	}
}

func TestDiscoverSkipsDevicesThatFailToOpen(t *testing.T) {
	openErr := func() (RawDevice, error) { return nil, errOpenFailed }
	enum := &fakeEnumerator{descriptors: []HIDDeviceDescriptor{
		{VendorID: 1, UsagePage: FIDOUsagePage, Usage: FIDOUsageU2FHID, Open: openErr},
		{VendorID: 2, UsagePage: FIDOUsagePage, Usage: FIDOUsageU2FHID, Open: openOK(t)},
	}}
	mgr := NewManagerWithEnumerator(enum)

	it, err := mgr.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	dev, ok := it.Next()
	if !ok {
		t.Fatal("expected the second device to be yielded after the first failed to open")
	}
	if dev.Info().VendorID != 2 {
		t.Fatalf("vendor id = %d, want 2 (the opening device)", dev.Info().VendorID)
	}
	if _, ok := it.Next(); ok {
		t.Fatal("expected iterator to be exhausted")
	}
}

var errOpenFailed = fakeOpenError("permission denied")

type fakeOpenError string

func (e fakeOpenError) Error() string { return string(e) }
