// Package updatecheck polls the release feed and emits an update event
// when a newer version than the running one is published. Lookups are
// cached in the KV store so restarts within the TTL never hit the network.
package updatecheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/winters27/streamnook/internal/core/kv"
	"github.com/winters27/streamnook/internal/core/notify"
	"github.com/winters27/streamnook/internal/engine"
	"golang.org/x/mod/semver"
)

const (
	cacheTTL       = 24 * time.Hour
	cacheNamespace = "update-check"
	cacheKey       = "latest"
	releaseAPIURL  = "https://api.github.com/repos/winters27/streamnook/releases/latest"
)

var releaseHTTPClient = &http.Client{Timeout: 5 * time.Second}

var fetchLatestReleaseJSON = func(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseAPIURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "streamnook-update-checker")

	resp, err := releaseHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request latest release: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Debug().Err(err).Msg("update check: close latest release response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request latest release: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read latest release body: %w", err)
	}

	return body, nil
}

// ReleaseInfo holds cached release data returned by the feed.
type ReleaseInfo struct {
	TagName     string `json:"tag_name"`
	PublishedAt string `json:"published_at"`
}

// Result is returned when a newer version is available.
type Result struct {
	Current string
	Latest  string
}

// Check compares currentVersion to the latest release and returns a non-nil
// Result only when an update is available. Failures degrade to "no update";
// the check is advisory, never load-bearing.
func Check(ctx context.Context, kvStore kv.KV, currentVersion string) (*Result, error) {
	if kvStore == nil || currentVersion == "" || currentVersion == "dev" {
		return nil, nil
	}

	normalizedCurrent, ok := normalizeVersion(currentVersion)
	if !ok {
		log.Debug().Str("version", currentVersion).Msg("update check: invalid current version")
		return nil, nil
	}

	release, err := getLatestRelease(ctx, kvStore)
	if err != nil {
		log.Debug().Err(err).Msg("update check: failed to get latest release")
		return nil, nil
	}

	normalizedLatest, ok := normalizeVersion(release.TagName)
	if !ok {
		log.Debug().Str("tag", release.TagName).Msg("update check: invalid release tag")
		return nil, nil
	}

	if semver.Compare(normalizedCurrent, normalizedLatest) >= 0 {
		return nil, nil
	}

	return &Result{Current: normalizedCurrent, Latest: normalizedLatest}, nil
}

func getLatestRelease(ctx context.Context, kvStore kv.KV) (ReleaseInfo, error) {
	cache := kv.Scoped[ReleaseInfo](kvStore, cacheNamespace)

	if cached, err := cache.Get(ctx, cacheKey); err == nil {
		return cached, nil
	}

	info, err := fetchRelease(ctx)
	if err != nil {
		return ReleaseInfo{}, err
	}

	if err := cache.SetTTL(ctx, cacheKey, info, cacheTTL); err != nil {
		log.Debug().Err(err).Msg("update check: failed to cache release")
	}

	return info, nil
}

func fetchRelease(ctx context.Context) (ReleaseInfo, error) {
	output, err := fetchLatestReleaseJSON(ctx)
	if err != nil {
		return ReleaseInfo{}, fmt.Errorf("fetch latest release: %w", err)
	}

	var info ReleaseInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return ReleaseInfo{}, fmt.Errorf("decode latest release: %w", err)
	}

	if info.TagName == "" {
		return ReleaseInfo{}, fmt.Errorf("decode latest release: missing tag_name")
	}

	return info, nil
}

func normalizeVersion(version string) (string, bool) {
	if semver.IsValid(version) {
		return version, true
	}

	withPrefix := "v" + version
	if semver.IsValid(withPrefix) {
		return withPrefix, true
	}

	return "", false
}

// Source adapts the periodic check into an engine event source. It emits
// at most one update event per discovered version: the event id embeds the
// latest tag, so redeliveries of the same version upsert in the store
// instead of stacking duplicates.
type Source struct {
	kvStore  kv.KV
	version  string
	interval time.Duration
	ch       chan engine.RawEvent

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ engine.Source = (*Source)(nil)

// NewSource starts the background checker. It checks once immediately and
// then every interval.
func NewSource(kvStore kv.KV, currentVersion string, interval time.Duration) *Source {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		kvStore:  kvStore,
		version:  currentVersion,
		interval: interval,
		ch:       make(chan engine.RawEvent, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *Source) ID() string { return "update-check" }

// Events returns the event stream. The channel is closed after Close.
func (s *Source) Events() <-chan engine.RawEvent { return s.ch }

// Close stops the checker and waits for the poll loop to exit.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *Source) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.checkOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkOnce(ctx)
		}
	}
}

func (s *Source) checkOnce(ctx context.Context) {
	result, err := Check(ctx, s.kvStore, s.version)
	if err != nil || result == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"current_version": result.Current,
		"latest_version":  result.Latest,
	})
	if err != nil {
		return
	}

	raw := engine.RawEvent{
		ID:      "update:" + result.Latest,
		Kind:    string(notify.KindUpdate),
		Payload: payload,
	}

	select {
	case s.ch <- raw:
	case <-ctx.Done():
	}
}
