package http

import (
	"context"
	"encoding/json"
	"net"
	gohttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/brubru/aiengine/pkg/reply"
	"github.com/brubru/aiengine/pkg/transport"
)

func startServer(t *testing.T, srv *Server) (string, context.CancelFunc) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeOn(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return "http://" + ln.Addr().String(), cancel
}

func TestServerStartsAndAcceptsQueries(t *testing.T) {
	srv := NewServer(echoHandler, nil)
	base, _ := startServer(t, srv)

	resp, err := gohttp.Post(base+"/v1/query", "application/json", strings.NewReader(`{"message":"ping"}`))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != gohttp.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusOK)
	}
	var got map[string]any
	json.NewDecoder(resp.Body).Decode(&got)
	if got["result"] != "echo: ping" {
		t.Errorf("result = %v", got["result"])
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	started := make(chan struct{})
	slow := transport.QueryHandlerFunc(func(ctx context.Context, req *transport.Request, w transport.ResponseWriter) error {
		close(started)
		select {
		case <-time.After(200 * time.Millisecond):
			q, err := req.Query()
			if err != nil {
				return err
			}
			r := reply.New(q)
			r.SetReply("done")
			return w.WriteReply(ctx, r)
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	srv := NewServer(slow, nil, WithShutdownTimeout(5*time.Second))
	base, stop := startServer(t, srv)

	statusCh := make(chan int, 1)
	go func() {
		resp, err := gohttp.Post(base+"/v1/query", "application/json", strings.NewReader(`{"message":"slow"}`))
		if err != nil {
			statusCh <- 0
			return
		}
		defer resp.Body.Close()
		statusCh <- resp.StatusCode
	}()

	<-started
	stop()

	if status := <-statusCh; status != gohttp.StatusOK {
		t.Errorf("slow query status = %d, want %d", status, gohttp.StatusOK)
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	srv := NewServer(echoHandler, nil,
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithShutdownTimeout(10*time.Second),
	)

	if srv.config.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", srv.config.Addr, ":9999")
	}
	if srv.config.MaxBodySize != 1024 {
		t.Errorf("max body size = %d, want %d", srv.config.MaxBodySize, 1024)
	}
	if srv.adapter.config.MaxBodySize != 1024 {
		t.Errorf("adapter max body size = %d, want %d", srv.adapter.config.MaxBodySize, 1024)
	}
	if srv.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want %v", srv.config.ShutdownTimeout, 10*time.Second)
	}
}
