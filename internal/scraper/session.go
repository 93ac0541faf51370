package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrTimeout is returned when WaitFor gives up.
var ErrTimeout = errors.New("timed out waiting for element")

// Element is a node of the current page.
type Element interface {
	Text() string
	Attr(name string) (string, bool)
	Find(selector string) []Element
	HasClass(class string) bool
}

// Session is a browsing context: one current page at a time.
type Session interface {
	Open(ctx context.Context, rawURL string) error
	URL() string
	WaitFor(ctx context.Context, selector string, timeout time.Duration) ([]Element, error)
	Find(selector string) []Element
	Click(ctx context.Context, el Element) error
	// Stale reports whether el belongs to a page that has since been replaced.
	Stale(el Element) bool
	Close() error
}

// Factory opens a new session.
type Factory func(ctx context.Context) (Session, error)

// WithSession runs fn with a fresh session and closes it on every path.
func WithSession(ctx context.Context, factory Factory, fn func(Session) error) (err error) {
	s, err := factory(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close session: %w", cerr)
		}
	}()
	return fn(s)
}

// HTTPSession fetches pages over HTTP and queries the static DOM. Clicking
// a link loads its href.
type HTTPSession struct {
	client    *http.Client
	userAgent string
	poll      time.Duration

	mu         sync.Mutex
	doc        *goquery.Document
	url        *url.URL
	generation int
	closed     bool
}

// NewHTTPFactory returns a Factory of HTTPSessions sharing one client.
func NewHTTPFactory(client *http.Client) Factory {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return func(context.Context) (Session, error) {
		return &HTTPSession{
			client:    client,
			userAgent: "Mozilla/5.0 (X11; Linux x86_64) pricebot",
			poll:      500 * time.Millisecond,
		}, nil
	}
}

func (s *HTTPSession) Open(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("get %s: status %d: %s", u, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("parse %s: %w", u, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session closed")
	}
	s.doc = doc
	s.url = resp.Request.URL
	s.generation++
	return nil
}

func (s *HTTPSession) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url == nil {
		return ""
	}
	return s.url.String()
}

func (s *HTTPSession) Find(selector string) []Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	return wrap(s.doc.Find(selector), s.generation)
}

// WaitFor returns the matches for selector, reloading the page until they
// appear or timeout passes.
func (s *HTTPSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) ([]Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		if els := s.Find(selector); len(els) > 0 {
			return els, nil
		}
		if time.Now().Add(s.poll).After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, selector)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
		if cur := s.URL(); cur != "" {
			if err := s.Open(ctx, cur); err != nil {
				return nil, err
			}
		}
	}
}

func (s *HTTPSession) Click(ctx context.Context, el Element) error {
	href, ok := el.Attr("href")
	if !ok || href == "" || strings.HasPrefix(href, "#") {
		return fmt.Errorf("element is not a link")
	}
	s.mu.Lock()
	base := s.url
	s.mu.Unlock()
	ref, err := url.Parse(href)
	if err != nil {
		return fmt.Errorf("bad href %q: %w", href, err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return s.Open(ctx, ref.String())
}

func (s *HTTPSession) Stale(el Element) bool {
	e, ok := el.(*element)
	if !ok {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.generation != s.generation
}

func (s *HTTPSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc = nil
	return nil
}

type element struct {
	sel        *goquery.Selection
	generation int
}

func wrap(sel *goquery.Selection, generation int) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, one *goquery.Selection) {
		out = append(out, &element{sel: one, generation: generation})
	})
	return out
}

// Text returns the visible text with whitespace runs collapsed.
func (e *element) Text() string {
	var b strings.Builder
	for _, n := range e.sel.Nodes {
		textContent(n, &b)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func textContent(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript":
			return
		case "br", "p", "div", "li", "tr", "td":
			b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		textContent(c, b)
	}
}

func (e *element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e *element) Find(selector string) []Element {
	return wrap(e.sel.Find(selector), e.generation)
}

func (e *element) HasClass(class string) bool {
	return e.sel.HasClass(class)
}
