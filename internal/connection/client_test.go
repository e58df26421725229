package connection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func readUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testClientConfig(server *httptest.Server) ClientConfig {
	return ClientConfig{
		URL:          wsURL(server),
		Token:        "token-1",
		UserAgent:    "matchsync/test",
		PingTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, readUntilClosed)
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}

	select {
	case <-client.Done():
	default:
		t.Error("expected Done to be closed after Close")
	}
}

func TestClient_HandshakeHeaders(t *testing.T) {
	var mu sync.Mutex
	var gotAuth, gotUA string

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readUntilClosed(conn)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "Bearer token-1" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer token-1")
	}
	if gotUA != "matchsync/test" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "matchsync/test")
	}
}

func TestClient_HandshakeUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	err := client.Connect(context.Background())
	if !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("expected ErrCredentialExpired, got %v", err)
	}
}

func TestClient_HandshakeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	err := client.Connect(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrCredentialExpired) {
		t.Errorf("503 must not be treated as credential expiry: %v", err)
	}
}

func TestClient_Send(t *testing.T) {
	received := make(chan []byte, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- msg
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	testMsg := []byte(`{"id":1,"cmd":"join_room","params":{"match_id":"m-1"}}`)
	if err := client.Send(testMsg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(testMsg) {
			t.Errorf("received %q, want %q", got, testMsg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestClient_Messages(t *testing.T) {
	testMessages := []string{
		`{"type":"score_update","ts":"2026-01-01T00:00:01Z","msg":{"event_id":"e1"}}`,
		`{"type":"score_update","ts":"2026-01-01T00:00:02Z","msg":{"event_id":"e1"}}`,
		`{"type":"score_update","ts":"2026-01-01T00:00:03Z","msg":{"event_id":"e1"}}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		readUntilClosed(conn)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	var received []string
	timeout := time.After(time.Second)

	for i := 0; i < len(testMessages); i++ {
		select {
		case msg := <-client.Messages():
			received = append(received, string(msg.Data))
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d of %d", len(received), len(testMessages))
		}
	}

	for i, want := range testMessages {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}
}

func TestClient_CloseClassification(t *testing.T) {
	tests := []struct {
		name  string
		close func(*websocket.Conn)
		want  error
	}{
		{
			name: "server close code",
			close: func(conn *websocket.Conn) {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4000, "kicked"))
			},
			want: ErrServerClosed,
		},
		{
			name: "credential expired code",
			close: func(conn *websocket.Conn) {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(CloseCredentialExpired, "expired"))
			},
			want: ErrCredentialExpired,
		},
		{
			name: "going away",
			close: func(conn *websocket.Conn) {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			},
			want: ErrTransportLost,
		},
		{
			name: "dropped socket",
			close: func(conn *websocket.Conn) {
				conn.UnderlyingConn().Close()
			},
			want: ErrTransportLost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := mockWSServer(t, func(conn *websocket.Conn) {
				tt.close(conn)
				time.Sleep(100 * time.Millisecond)
			})
			defer server.Close()

			client := NewClient(testClientConfig(server), nil)
			if err := client.Connect(context.Background()); err != nil {
				t.Fatalf("Connect failed: %v", err)
			}
			defer client.Close()

			select {
			case err := <-client.Errors():
				if !errors.Is(err, tt.want) {
					t.Errorf("error = %v, want %v", err, tt.want)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timeout waiting for error")
			}
		})
	}
}

func TestClassifyReadError(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{websocket.CloseNormalClosure, ErrServerClosed},
		{websocket.ClosePolicyViolation, ErrServerClosed},
		{websocket.CloseNoStatusReceived, ErrServerClosed},
		{CloseCredentialExpired, ErrCredentialExpired},
		{websocket.CloseGoingAway, ErrTransportLost},
		{websocket.CloseServiceRestart, ErrTransportLost},
		{websocket.CloseTryAgainLater, ErrTransportLost},
		{websocket.CloseAbnormalClosure, ErrTransportLost},
	}

	for _, tt := range tests {
		err := classifyReadError(&websocket.CloseError{Code: tt.code})
		if !errors.Is(err, tt.want) {
			t.Errorf("code %d: got %v, want %v", tt.code, err, tt.want)
		}
	}

	if err := classifyReadError(io.ErrUnexpectedEOF); !errors.Is(err, ErrTransportLost) {
		t.Errorf("plain error: got %v, want ErrTransportLost", err)
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	cfg := ClientConfig{URL: "ws://localhost:12345"}
	client := NewClient(cfg, nil)

	err := client.Send([]byte("test"))
	if err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_ConnectAfterClose(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://localhost:12345"}, nil)
	client.Close()

	if err := client.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, readUntilClosed)
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClient_PingHandler(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		time.Sleep(500 * time.Millisecond)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	time.Sleep(200 * time.Millisecond)

	if !client.IsConnected() {
		t.Error("expected client to be connected after ping")
	}
}

func TestDefaultConfigs(t *testing.T) {
	clientCfg := DefaultClientConfig()
	if clientCfg.PingTimeout != 30*time.Second {
		t.Errorf("PingTimeout = %v, want 30s", clientCfg.PingTimeout)
	}
	if clientCfg.BufferSize != 256 {
		t.Errorf("BufferSize = %d, want 256", clientCfg.BufferSize)
	}

	mgrCfg := DefaultManagerConfig()
	if mgrCfg.ReconnectBaseDelay != time.Second {
		t.Errorf("ReconnectBaseDelay = %v, want 1s", mgrCfg.ReconnectBaseDelay)
	}
	if mgrCfg.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want 5", mgrCfg.MaxReconnectAttempts)
	}
	if mgrCfg.ListenerWarnThreshold != 5 {
		t.Errorf("ListenerWarnThreshold = %d, want 5", mgrCfg.ListenerWarnThreshold)
	}
}
