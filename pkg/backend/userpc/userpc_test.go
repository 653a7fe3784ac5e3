package userpc

import (
	"reflect"
	"testing"

	"github.com/vnetlab/compute/pkg/nio"
)

func TestBuildArgsWithoutLink(t *testing.T) {
	n := &Node{MacID: 7}
	got := n.buildArgs(2001)
	want := []string{"-p", "2001", "-m", "7", "-i", "1", "-F"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgsWithUDPLink(t *testing.T) {
	n := &Node{MacID: 3, nio: nio.NewUDP(10001, "127.0.0.1", 10002)}
	got := n.buildArgs(2001)
	want := []string{"-p", "2001", "-m", "3", "-i", "1", "-F", "-s", "10001", "-c", "10002", "-t", "127.0.0.1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgsIgnoresNonUDPLink(t *testing.T) {
	n := &Node{MacID: 1, nio: nio.NewEthernet("eth0")}
	got := n.buildArgs(2001)
	want := []string{"-p", "2001", "-m", "1", "-i", "1", "-F"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
