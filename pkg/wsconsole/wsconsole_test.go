package wsconsole

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestPumpBridgesBothDirections(t *testing.T) {
	consoleSide, bridgeSide := net.Pipe()
	defer consoleSide.Close()

	var wsConnCh = make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		wsConnCh <- conn
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	serverWS := <-wsConnCh

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Pump(ctx, bridgeSide, serverWS)

	// console -> browser
	go consoleSide.Write([]byte("hello from console"))
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client ReadMessage: %v", err)
	}
	if string(msg) != "hello from console" {
		t.Fatalf("got %q, want %q", msg, "hello from console")
	}

	// browser -> console
	if err := client.WriteMessage(websocket.TextMessage, []byte("hello from browser")); err != nil {
		t.Fatalf("client WriteMessage: %v", err)
	}
	buf := make([]byte, 64)
	consoleSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := consoleSide.Read(buf)
	if err != nil {
		t.Fatalf("consoleSide.Read: %v", err)
	}
	if string(buf[:n]) != "hello from browser" {
		t.Fatalf("got %q, want %q", buf[:n], "hello from browser")
	}
}
