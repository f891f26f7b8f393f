package vocoder

import "testing"

func TestRegistryRoutesByKind(t *testing.T) {
	r := NewRegistry()
	r.Register(NewIMBECodec())
	r.Register(NewAMBECodec())
	r.Register(NewExternalUSBCodec())

	for _, kind := range []Kind{KindIMBE, KindAMBE, KindExternalUSB} {
		c, ok := r.Get(kind)
		if !ok {
			t.Fatalf("expected codec registered for kind %v", kind)
		}
		if c.Kind() != kind {
			t.Fatalf("expected Kind() %v, got %v", kind, c.Kind())
		}
	}
}

func TestUnregisteredKindMisses(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get(KindAMBE); ok {
		t.Fatal("expected no codec registered")
	}
}

func TestStubCodecsReportNotImplemented(t *testing.T) {
	for _, c := range []Codec{NewIMBECodec(), NewAMBECodec(), NewExternalUSBCodec()} {
		if _, err := c.Encode(make([]int16, 160)); err != ErrNotImplemented {
			t.Fatalf("expected ErrNotImplemented, got %v", err)
		}
		if _, err := c.Decode([]byte{1, 2, 3}); err != ErrNotImplemented {
			t.Fatalf("expected ErrNotImplemented, got %v", err)
		}
	}
}
