package listener

import "testing"

func TestBindTCPEphemeralPort(t *testing.T) {
	ln, err := BindTCP("127.0.0.1", 0, 16, 0)
	if err != nil {
		t.Fatalf("BindTCP: %v", err)
	}
	defer ln.Close()
	if ln.Addr() == nil {
		t.Fatal("expected bound address")
	}
}

func TestBindUDPEphemeralPort(t *testing.T) {
	conn, err := BindUDP("127.0.0.1", 0, false)
	if err != nil {
		t.Fatalf("BindUDP: %v", err)
	}
	defer conn.Close()
	if conn.LocalAddr() == nil {
		t.Fatal("expected bound address")
	}
}

func TestExtraFileRoundTrip(t *testing.T) {
	ln, err := BindTCP("127.0.0.1", 0, 16, 0)
	if err != nil {
		t.Fatalf("BindTCP: %v", err)
	}
	defer ln.Close()

	f, err := ExtraFile(ln)
	if err != nil {
		t.Fatalf("ExtraFile: %v", err)
	}
	defer f.Close()

	reconstructed, err := FromFD(f.Fd(), "test-listener")
	if err != nil {
		t.Fatalf("FromFD: %v", err)
	}
	defer reconstructed.Close()
}
