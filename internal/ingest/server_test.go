package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ffplayout/ffplayout-sub002/internal/config"
)

func TestNewDisabledReturnsNil(t *testing.T) {
	s, err := New(config.Ingest{Enable: false}, "", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s != nil {
		t.Fatal("New() = non-nil, want nil when ingest disabled")
	}
}

func TestNewEnabledRequiresInputCmd(t *testing.T) {
	_, err := New(config.Ingest{Enable: true}, "", nil)
	if err == nil {
		t.Fatal("New() error = nil, want error for empty input_cmd")
	}
}

// scenario 3: ingest goes live on first byte of connected input.
func TestServerRunPublishesLiveness(t *testing.T) {
	s, err := New(config.Ingest{
		Enable:   true,
		InputCmd: []string{"printf", "hello-ingest"},
	}, "", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case alive := <-s.Alive():
		if !alive {
			t.Fatal("Alive() first signal = false, want true")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for liveness signal")
	}

	<-done
}

// Advanced.Ingest.InputParam tokens land right after the binary, ahead of
// the rest of InputCmd's arguments.
func TestNewSplitsInputParamAfterBinary(t *testing.T) {
	s, err := New(config.Ingest{
		Enable:   true,
		InputCmd: []string{"ffmpeg", "-i", "-"},
	}, "-re -fflags +genpts", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	want := []string{"ffmpeg", "-re", "-fflags", "+genpts", "-i", "-"}
	if len(s.cmd) != len(want) {
		t.Fatalf("cmd = %v, want %v", s.cmd, want)
	}
	for i := range want {
		if s.cmd[i] != want[i] {
			t.Fatalf("cmd = %v, want %v", s.cmd, want)
		}
	}
}

func TestMediaServerClientIsPathReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(mediaServerPath{Name: "live", Ready: true})
	}))
	defer srv.Close()

	c := NewMediaServerClient(srv.URL, "live")
	ready, err := c.IsPathReady(context.Background(), "")
	if err != nil {
		t.Fatalf("IsPathReady() error = %v", err)
	}
	if !ready {
		t.Fatal("IsPathReady() = false, want true")
	}
}

func TestMediaServerClientNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewMediaServerClient(srv.URL, "missing")
	ready, err := c.IsPathReady(context.Background(), "")
	if err != nil {
		t.Fatalf("IsPathReady() error = %v", err)
	}
	if ready {
		t.Fatal("IsPathReady() = true, want false for 404")
	}
}
