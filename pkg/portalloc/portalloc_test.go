package portalloc

import "testing"

func TestReserveTCPThenConflict(t *testing.T) {
	a := New("127.0.0.1")
	rng := Range{Start: 20000, End: 20010}

	port, err := a.ReserveTCP(20005, "proj-a", rng)
	if err != nil {
		t.Fatalf("ReserveTCP: %v", err)
	}
	if port != 20005 {
		t.Fatalf("port = %d, want 20005", port)
	}

	if _, err := a.ReserveTCP(20005, "proj-b", rng); err == nil {
		t.Fatalf("expected PortInUseError reserving an already-held port, got nil")
	}
}

func TestReserveOutOfRangeStillReserves(t *testing.T) {
	a := New("127.0.0.1")
	rng := Range{Start: 20000, End: 20010}

	port, err := a.ReserveTCP(21000, "proj-a", rng)
	if err != nil {
		t.Fatalf("ReserveTCP out of range: %v", err)
	}
	if port != 21000 {
		t.Fatalf("port = %d, want 21000", port)
	}
}

func TestGetFreeTCPScansAscending(t *testing.T) {
	a := New("127.0.0.1")
	rng := Range{Start: 20100, End: 20110}

	if _, err := a.ReserveTCP(20100, "proj-a", rng); err != nil {
		t.Fatalf("setup ReserveTCP: %v", err)
	}

	port, err := a.GetFreeTCP("proj-b", rng)
	if err != nil {
		t.Fatalf("GetFreeTCP: %v", err)
	}
	if port != 20101 {
		t.Fatalf("port = %d, want 20101 (first free port after 20100)", port)
	}
}

func TestGetFreeTCPExhausted(t *testing.T) {
	a := New("127.0.0.1")
	rng := Range{Start: 20200, End: 20202}

	if _, err := a.ReserveTCP(20200, "proj-a", rng); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := a.ReserveTCP(20201, "proj-a", rng); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := a.GetFreeTCP("proj-b", rng); err == nil {
		t.Fatalf("expected NoFreePortError on exhausted range, got nil")
	}
}

func TestReleaseOwnershipEnforced(t *testing.T) {
	a := New("127.0.0.1")
	rng := Range{Start: 20300, End: 20310}

	port, err := a.ReserveTCP(20300, "proj-a", rng)
	if err != nil {
		t.Fatalf("ReserveTCP: %v", err)
	}

	if err := a.ReleaseTCP(port, "proj-b"); err == nil {
		t.Fatalf("expected error releasing a port owned by a different project")
	}
	if err := a.ReleaseTCP(port, "proj-a"); err != nil {
		t.Fatalf("ReleaseTCP by owner: %v", err)
	}
	if err := a.ReleaseTCP(port, "proj-a"); err == nil {
		t.Fatalf("expected error releasing an already-released port")
	}
}

func TestReleaseAllForProject(t *testing.T) {
	a := New("127.0.0.1")
	rng := Range{Start: 20400, End: 20420}

	tcp1, _ := a.ReserveTCP(20400, "proj-a", rng)
	tcp2, _ := a.ReserveTCP(20401, "proj-a", rng)
	udp1, _ := a.ReserveUDP(20402, "proj-a", rng)
	_, _ = a.ReserveTCP(20403, "proj-b", rng)

	a.ReleaseAllForProject("proj-a")

	tcp, udp := a.ReservedForProject("proj-a")
	if len(tcp) != 0 || len(udp) != 0 {
		t.Fatalf("ReservedForProject after ReleaseAllForProject = (%v, %v), want empty", tcp, udp)
	}

	tcpB, _ := a.ReservedForProject("proj-b")
	if len(tcpB) != 1 || tcpB[0] != 20403 {
		t.Fatalf("proj-b reservations disturbed: %v", tcpB)
	}

	_ = tcp1
	_ = tcp2
	_ = udp1
}

func TestEnforceVNCConsole(t *testing.T) {
	if err := EnforceVNCConsole(0); err != nil {
		t.Fatalf("port 0 (unset) should be allowed: %v", err)
	}
	if err := EnforceVNCConsole(5900); err != nil {
		t.Fatalf("port 5900 should be allowed: %v", err)
	}
	if err := EnforceVNCConsole(5899); err == nil {
		t.Fatalf("port 5899 should be rejected as below the VNC console floor")
	}
}

func TestConsoleHostDefault(t *testing.T) {
	a := New("")
	if a.ConsoleHost() != "0.0.0.0" {
		t.Fatalf("ConsoleHost() = %q, want 0.0.0.0 default", a.ConsoleHost())
	}
}
