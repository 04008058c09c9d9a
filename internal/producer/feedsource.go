package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"harvest/internal/config"
	"harvest/internal/services"
	"harvest/internal/stagestore"
	"harvest/internal/textutil"
)

const feedTimeout = 60 * time.Second

// feedItem is one entry in a remote JSON feed's index document.
type feedItem struct {
	ID      string   `json:"id"`
	URL     string   `json:"url"`
	Title   string   `json:"title,omitempty"`
	Teacher string   `json:"teacher,omitempty"`
	Type    string   `json:"content_type,omitempty"`
	Topics  []string `json:"topics,omitempty"`
	Series  string   `json:"series,omitempty"`
}

// FeedSource harvests a remote JSON feed: the source's base URL serves an
// index of items, each pointing at a text document.
type FeedSource struct {
	name   string
	cfg    config.Source
	client *http.Client

	items map[string]feedItem
}

// NewFeedSource constructs a feed source from its config section.
func NewFeedSource(name string, cfg config.Source) (*FeedSource, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "producer", "feed", fmt.Sprintf("source %s has no base_url", name), nil)
	}
	return &FeedSource{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: feedTimeout},
		items:  make(map[string]feedItem),
	}, nil
}

func (f *FeedSource) Name() string { return f.name }

// Discover fetches the feed index and converts it into manifest entries.
func (f *FeedSource) Discover(ctx context.Context) ([]stagestore.ManifestEntry, error) {
	body, err := f.get(ctx, f.cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	var items []feedItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "producer", "discover", "feed index is not valid JSON", err)
	}

	entries := make([]stagestore.ManifestEntry, 0, len(items))
	for _, item := range items {
		if item.ID == "" || item.URL == "" {
			continue
		}
		f.items[item.ID] = item
		entries = append(entries, stagestore.ManifestEntry{
			ID:    item.ID,
			URL:   item.URL,
			Title: item.Title,
		})
	}
	return entries, nil
}

// Fetch downloads one item's document as a raw record.
func (f *FeedSource) Fetch(ctx context.Context, entry stagestore.ManifestEntry) (*stagestore.RawRecord, error) {
	body, err := f.get(ctx, entry.URL)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "producer", "fetch", "document is empty", nil)
	}

	item := f.items[entry.ID]
	record := &stagestore.RawRecord{
		Text:        text,
		Filename:    textutil.SanitizeFileName(entry.ID) + ".json",
		SourceName:  f.name,
		Teacher:     item.Teacher,
		ContentType: item.Type,
		URL:         entry.URL,
		Collection:  f.cfg.Collection,
		Topics:      item.Topics,
		Series:      item.Series,
	}
	if record.ContentType == "" {
		record.ContentType = "text"
	}
	return record, nil
}

func (f *FeedSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "producer", "fetch", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, services.Wrap(services.ErrTransient, "producer", "fetch", fmt.Sprintf("%s returned %d", url, resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrExternalTool, "producer", "fetch", fmt.Sprintf("%s returned %d", url, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "producer", "fetch", "read response", err)
	}
	return body, nil
}
