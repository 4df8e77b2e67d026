package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestServeIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// Chromem backend keeps the test self-contained on disk.
	os.Setenv("TUTORD_SERVER_PORT", "8084")
	os.Setenv("TUTORD_STORE_BACKEND", "chromem")
	os.Setenv("TUTORD_STORE_CHROMEM_PATH", filepath.Join(t.TempDir(), "vectorstore"))
	defer func() {
		os.Unsetenv("TUTORD_SERVER_PORT")
		os.Unsetenv("TUTORD_STORE_BACKEND")
		os.Unsetenv("TUTORD_STORE_CHROMEM_PATH")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx)
	}()

	time.Sleep(200 * time.Millisecond)

	resp, err := http.Get("http://localhost:8084/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}
