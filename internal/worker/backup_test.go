package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockUploader struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (m *mockUploader) Upload(ctx context.Context, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, filePath)
	return m.err
}

func (m *mockUploader) PresignedURL(ctx context.Context) (string, time.Time, error) {
	return "", time.Time{}, errors.New("not implemented")
}

func (m *mockUploader) uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paths)
}

func TestBackupCoordinator_UploadsOnInterval(t *testing.T) {
	uploader := &mockUploader{}
	coordinator := NewBackupCoordinator(uploader, "/data/sparkshell.db", 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coordinator.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for uploader.uploads() < 2 {
		select {
		case <-deadline:
			t.Fatalf("coordinator uploaded %d times, want >= 2", uploader.uploads())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop after cancel")
	}

	uploader.mu.Lock()
	defer uploader.mu.Unlock()
	for _, p := range uploader.paths {
		if p != "/data/sparkshell.db" {
			t.Errorf("uploaded path = %q, want /data/sparkshell.db", p)
		}
	}
}

func TestBackupCoordinator_ContinuesAfterUploadFailure(t *testing.T) {
	uploader := &mockUploader{err: errors.New("connection refused")}
	coordinator := NewBackupCoordinator(uploader, "/data/sparkshell.db", 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coordinator.Run(ctx)

	deadline := time.After(2 * time.Second)
	for uploader.uploads() < 2 {
		select {
		case <-deadline:
			t.Fatalf("coordinator stopped after failure, uploaded %d times", uploader.uploads())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
