// Package client implements the conversation view's synchronization logic:
// it merges one-shot paged history with the unbounded live stream while
// keeping the visible scroll position stable for the reader.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"chat-sync-service/internal/models"
)

const (
	// DefaultPageSize is the limit requested per history page.
	DefaultPageSize = 20
	// autoScrollThreshold is how close to the bottom (in layout units) the
	// viewport must be for a live message to pull it down.
	autoScrollThreshold = 120
)

// Page is one slice of a conversation's history. NextCursor is empty once
// history is exhausted.
type Page struct {
	Messages   []models.Message
	NextCursor string
}

// PageFetcher fetches one history page. Implementations must honor ctx
// cancellation.
type PageFetcher interface {
	FetchPage(ctx context.Context, conversationID string, limit int, before string) (Page, error)
}

// Viewport is the scrollable message list geometry in abstract layout units.
// ScrollOffset measures from the top of the content.
type Viewport struct {
	ContentHeight  float64
	ScrollOffset   float64
	ViewportHeight float64
}

func (v Viewport) distanceFromBottom() float64 {
	return v.ContentHeight - v.ScrollOffset - v.ViewportHeight
}

// ViewportDriver lets the controller read the layout after the UI reflows and
// move the scroll position. The embedding view implements it; tests fake it.
type ViewportDriver interface {
	Measure() Viewport
	SetScrollOffset(offset float64)
}

// Controller owns the in-memory ascending message sequence, the backward
// cursor, and the scroll anchor for one conversation view.
type Controller struct {
	conversationID string
	fetcher        PageFetcher
	view           ViewportDriver
	pageSize       int

	mu       sync.Mutex
	messages []models.Message
	cursor   string
	hasMore  bool
	loading  bool

	// Peer presence hooks, injected by the embedding view. Scoped to this
	// controller instance, never process-wide.
	OnPeerTyping     func(senderID, senderName string)
	OnPeerStopTyping func(senderID string)
}

// NewController builds a controller for one conversation view.
func NewController(conversationID string, fetcher PageFetcher, view ViewportDriver) *Controller {
	return &Controller{
		conversationID: conversationID,
		fetcher:        fetcher,
		view:           view,
		pageSize:       DefaultPageSize,
		hasMore:        true,
	}
}

// LoadInitial fetches the newest page, seeds the cursor, and scrolls to the
// bottom.
func (c *Controller) LoadInitial(ctx context.Context) error {
	page, err := c.fetcher.FetchPage(ctx, c.conversationID, c.pageSize, "")
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.messages = append([]models.Message(nil), page.Messages...)
	c.cursor = page.NextCursor
	c.hasMore = page.NextCursor != ""
	c.mu.Unlock()

	vp := c.view.Measure()
	c.view.SetScrollOffset(vp.ContentHeight - vp.ViewportHeight)
	return nil
}

// LoadOlder fetches the next older page and prepends it, preserving the
// scroll anchor: after the reflow the offset becomes
// newContentHeight - prevContentHeight + oldScrollOffset, so the message the
// reader was looking at stays fixed on screen.
//
// Only one fetch may be in flight per conversation; triggers arriving while
// one is pending are dropped, not queued. A cancelled or failed fetch mutates
// neither the sequence nor the cursor.
func (c *Controller) LoadOlder(ctx context.Context) error {
	c.mu.Lock()
	if !c.hasMore || c.loading || c.cursor == "" {
		c.mu.Unlock()
		return nil
	}
	c.loading = true
	before := c.cursor
	c.mu.Unlock()

	prev := c.view.Measure()
	page, err := c.fetcher.FetchPage(ctx, c.conversationID, c.pageSize, before)

	c.mu.Lock()
	c.loading = false
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if len(page.Messages) == 0 {
		// History exhausted: terminal, do not retry.
		c.hasMore = false
		c.mu.Unlock()
		return nil
	}
	c.messages = append(append([]models.Message(nil), page.Messages...), c.messages...)
	c.cursor = page.NextCursor
	c.hasMore = page.NextCursor != ""
	c.mu.Unlock()

	now := c.view.Measure()
	c.view.SetScrollOffset(now.ContentHeight - prev.ContentHeight + prev.ScrollOffset)
	return nil
}

// ApplyLive appends a live message at the tail. It never touches the backward
// cursor. The viewport follows only if it was already near the bottom before
// the insert, so a reader deep in history is not interrupted.
func (c *Controller) ApplyLive(msg models.Message) {
	prev := c.view.Measure()

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	if prev.distanceFromBottom() < autoScrollThreshold {
		now := c.view.Measure()
		c.view.SetScrollOffset(now.ContentHeight - now.ViewportHeight)
	}
}

// Messages returns a copy of the current ascending sequence.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages...)
}

// HasMore reports whether older history remains.
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Cursor returns the current backward cursor.
func (c *Controller) Cursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

func (c *Controller) peerTyping(senderID, senderName string) {
	if c.OnPeerTyping != nil {
		c.OnPeerTyping(senderID, senderName)
	}
}

func (c *Controller) peerStopTyping(senderID string) {
	if c.OnPeerStopTyping != nil {
		c.OnPeerStopTyping(senderID)
	}
}

// HTTPPageFetcher fetches pages from the pagination endpoint.
type HTTPPageFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPageFetcher builds a fetcher against the service base URL.
func NewHTTPPageFetcher(baseURL string, httpClient *http.Client) *HTTPPageFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPPageFetcher{baseURL: baseURL, client: httpClient}
}

// FetchPage performs GET /messages/{conversationId}?limit=..&before=.. with
// caller-side cancellation.
func (f *HTTPPageFetcher) FetchPage(ctx context.Context, conversationID string, limit int, before string) (Page, error) {
	endpoint := fmt.Sprintf("%s/messages/%s", f.baseURL, url.PathEscape(conversationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Page{}, err
	}
	q := req.URL.Query()
	q.Set("limit", fmt.Sprintf("%d", limit))
	if before != "" {
		q.Set("before", before)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	var body models.MessagePage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Page{}, err
	}
	if resp.StatusCode != http.StatusOK || !body.OK {
		return Page{}, fmt.Errorf("history fetch failed: status %d", resp.StatusCode)
	}

	page := Page{Messages: body.Messages}
	if body.NextCursor != nil {
		page.NextCursor = *body.NextCursor
	}
	return page, nil
}
