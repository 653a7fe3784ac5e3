package nat

import (
	"errors"
	"net"
	"testing"
)

func fakeInterfaces(names ...string) func() ([]net.Interface, error) {
	return func() ([]net.Interface, error) {
		out := make([]net.Interface, len(names))
		for i, n := range names {
			out[i] = net.Interface{Name: n}
		}
		return out, nil
	}
}

func TestInterfaceExistsFound(t *testing.T) {
	ok, err := interfaceExists(fakeInterfaces("vmnet8", "lo0"), "vmnet8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected vmnet8 to be found")
	}
}

func TestInterfaceExistsNotFound(t *testing.T) {
	ok, err := interfaceExists(fakeInterfaces("lo0"), "vmnet8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected vmnet8 to be absent")
	}
}

func TestInterfaceExistsPropagatesLookupError(t *testing.T) {
	boom := errors.New("boom")
	_, err := interfaceExists(func() ([]net.Interface, error) { return nil, boom }, "vmnet8")
	if err != boom {
		t.Fatalf("got %v, want %v", err, boom)
	}
}
