package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"harvest/internal/config"
	"harvest/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyImportCompleted(context.Background(), 3, 1, 0); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "harvest completed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyHarvestCompleted(context.Background(), "sermonaudio", 12, 2)
			},
			expectTitle:   "Harvest - Source Complete",
			expectMessage: "Harvest complete for sermonaudio: 12 downloaded, 2 skipped",
			expectTags:    "harvest,producer,completed",
		},
		{
			name: "import completed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyImportCompleted(context.Background(), 5, 2, 0)
			},
			expectTitle:   "Harvest - Import Complete",
			expectMessage: "Import complete: 5 new, 2 duplicates",
			expectTags:    "harvest,import,completed",
		},
		{
			name: "import completed with errors",
			notify: func(svc notifications.Service) error {
				return svc.NotifyImportCompleted(context.Background(), 5, 2, 1)
			},
			expectTitle:   "Harvest - Import Complete (with errors)",
			expectMessage: "Import complete: 5 new, 2 duplicates, 1 errors",
			expectTags:    "harvest,import,completed",
		},
		{
			name: "error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("embedding backend unreachable"), "indexing")
			},
			expectTitle:    "Harvest - Error",
			expectMessage:  "Error with indexing: embedding backend unreachable",
			expectTags:     "harvest,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Queue = true
			cfg.Notifications.Import = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsCategoryToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for disabled category: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Queue = false
	cfg.Notifications.Import = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	ctx := context.Background()
	if err := svc.NotifyHarvestCompleted(ctx, "sermonaudio", 1, 0); err != nil {
		t.Fatalf("queue category: %v", err)
	}
	if err := svc.NotifyImportCompleted(ctx, 1, 0, 0); err != nil {
		t.Fatalf("import category: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), "test"); err != nil {
		t.Fatalf("errors category: %v", err)
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
