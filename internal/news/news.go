// Package news はトップページに表示するお知らせをRSS/Atomフィードから取得する。
package news

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/sipa/internal/model"
)

const (
	defaultLimit      = 5
	defaultCacheTTL   = 5 * time.Minute
	defaultRetryDelay = time.Minute
	maxBodySize       = 2 << 20
	userAgent         = "sipa/1.0 (+news)"
)

// Sanitizer はフィード本文のHTMLをサニタイズする。
type Sanitizer interface {
	NewsHTML(raw string) string
}

// Config はニュース取得の設定。
type Config struct {
	FeedURL  string
	Limit    int
	CacheTTL time.Duration

	// RetryDelay は取得失敗後、再取得を試みるまでの待ち時間。
	RetryDelay time.Duration
}

// feedState は条件付きGETとフィード検出の状態。
type feedState struct {
	url          string
	etag         string
	lastModified string
}

// fetchResult は1回の取得結果。304の場合itemsはnil。
type fetchResult struct {
	items []model.NewsItem
	state feedState
}

// Service はフィードを取得し、短時間キャッシュする。
// 並行呼び出しに対して安全で、同時に行うフィード取得は1つだけ。
type Service struct {
	cfg       Config
	client    *http.Client
	sanitizer Sanitizer
	now       func() time.Time
	group     singleflight.Group

	mu        sync.Mutex
	state     feedState
	items     []model.NewsItem
	fetchedAt time.Time
	failedAt  time.Time
	lastErr   error
}

// NewService はServiceを生成する。clientには外向き接続を制限したクライアントを渡す。
func NewService(cfg Config, client *http.Client, sanitizer Sanitizer) *Service {
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Service{
		cfg:       cfg,
		client:    client,
		sanitizer: sanitizer,
		now:       time.Now,
		state:     feedState{url: cfg.FeedURL},
	}
}

// Latest は新しい順に最大Limit件のお知らせを返す。
// フィードURLが未設定の場合は空を返す。取得に失敗しても古いキャッシュがあればそれを返す。
// 失敗後RetryDelayの間は再取得せず、直前の結果を返す。
func (s *Service) Latest(ctx context.Context) ([]model.NewsItem, error) {
	if s.cfg.FeedURL == "" {
		return nil, nil
	}

	s.mu.Lock()
	now := s.now()
	items, lastErr := s.items, s.lastErr
	fresh := items != nil && now.Sub(s.fetchedAt) < s.cfg.CacheTTL
	waiting := !s.failedAt.IsZero() && now.Sub(s.failedAt) < s.cfg.RetryDelay
	s.mu.Unlock()

	switch {
	case fresh:
		return items, nil
	case waiting && items != nil:
		return items, nil
	case waiting:
		return nil, lastErr
	}

	// 取得はリクエストのキャンセルに左右されない。上限はクライアントのタイムアウト。
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan("feed", func() (interface{}, error) {
		return s.refresh(fetchCtx)
	})

	select {
	case <-ctx.Done():
		if items != nil {
			return items, nil
		}
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.NewsItem), nil
	}
}

// refresh はフィードを取得してキャッシュを更新し、返すべきお知らせを返す。
func (s *Service) refresh(ctx context.Context) ([]model.NewsItem, error) {
	s.mu.Lock()
	state, cached := s.state, s.items != nil
	s.mu.Unlock()

	res, err := s.fetch(ctx, state, cached)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.failedAt, s.lastErr = s.now(), err
		if s.items != nil {
			slog.Warn("news feed refresh failed, serving cached items",
				slog.String("feed_url", state.url),
				slog.String("error", err.Error()),
			)
			return s.items, nil
		}
		return nil, err
	}

	s.failedAt, s.lastErr = time.Time{}, nil
	s.state = res.state
	if res.items != nil {
		s.items = res.items
	}
	s.fetchedAt = s.now()
	return s.items, nil
}

// fetch はフィードを取得する。
func (s *Service) fetch(ctx context.Context, state feedState, cached bool) (*fetchResult, error) {
	return s.fetchFeed(ctx, state, cached, true)
}

// fetchFeed はstate.urlを取得する。HTMLページが返った場合、discoverが真なら
// headで告知されたフィードに切り替えて1度だけ取り直す。
func (s *Service) fetchFeed(ctx context.Context, state feedState, cached, discover bool) (*fetchResult, error) {
	start := s.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, state.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build news request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.5, */*;q=0.1")
	if cached {
		if state.etag != "" {
			req.Header.Set("If-None-Match", state.etag)
		}
		if state.lastModified != "" {
			req.Header.Set("If-Modified-Since", state.lastModified)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news feed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && cached:
		return &fetchResult{state: state}, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("news feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read news feed: %w", err)
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		link, ok := selectFeed(parseFeedLinks(body, state.url), state.url)
		if !discover || !ok {
			return nil, fmt.Errorf("no news feed found at %s", state.url)
		}
		slog.Info("news feed discovered",
			slog.String("page_url", state.url),
			slog.String("feed_url", link.URL),
		)
		return s.fetchFeed(ctx, feedState{url: link.URL}, false, false)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse news feed: %w", err)
	}

	items := s.convert(feed.Items)
	slog.Info("news feed fetched",
		slog.String("feed_url", state.url),
		slog.Int("items_total", len(feed.Items)),
		slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
	)
	return &fetchResult{
		items: items,
		state: feedState{
			url:          state.url,
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
		},
	}, nil
}

func (s *Service) convert(entries []*gofeed.Item) []model.NewsItem {
	items := make([]model.NewsItem, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		summary := e.Description
		if summary == "" {
			summary = e.Content
		}
		item := model.NewsItem{
			Title:   e.Title,
			Link:    e.Link,
			Summary: s.sanitizer.NewsHTML(summary),
		}
		if e.PublishedParsed != nil {
			item.Published = *e.PublishedParsed
		} else if e.UpdatedParsed != nil {
			item.Published = *e.UpdatedParsed
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})
	if len(items) > s.cfg.Limit {
		items = items[:s.cfg.Limit]
	}
	return items
}
