package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/JustinTDCT/CineSync/internal/catalog"
	"github.com/JustinTDCT/CineSync/internal/models"
)

// DefaultTimeout bounds every request to an upstream catalog.
const DefaultTimeout = 15 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 32 << 20

var paramRe = regexp.MustCompile(`\{(\w+)\}`)

// Config locates one catalog's endpoints. Paths may carry {param} tokens.
type Config struct {
	Code       string
	BaseURL    string
	ListPath   string
	DetailPath string
	PeoplePath string
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Permanent reports whether retrying the request cannot help.
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// Crawler fetches list pages and detail payloads from one catalog. It does
// not retry; retries happen at the job level.
type Crawler struct {
	cfg        Config
	httpClient *http.Client
}

// NewCrawler returns a crawler for cfg. A nil client gets one with the
// default timeout.
func NewCrawler(cfg Config, client *http.Client) *Crawler {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Crawler{cfg: cfg, httpClient: client}
}

func (c *Crawler) Code() string { return c.cfg.Code }

// Discover fetches one list page. Items are read from "items" or
// "data.items"; entries without an id are dropped.
func (c *Crawler) Discover(ctx context.Context, page int) ([]models.DiscoveredItem, error) {
	u, err := BuildURL(c.cfg.BaseURL, c.cfg.ListPath, map[string]string{"page": strconv.Itoa(page)})
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	root := decodePayload(body)
	raw := list(root["items"])
	if raw == nil {
		raw = list(path(root, "data", "items"))
	}

	items := make([]models.DiscoveredItem, 0, len(raw))
	for _, e := range raw {
		m := obj(e)
		id := firstStr(m["slug"], m["_id"], m["id"])
		if id == "" {
			continue
		}
		item := models.DiscoveredItem{
			ExternalID:  id,
			ExternalURL: catalog.StringPtr(firstStr(m["link"], m["url"])),
			Title:       catalog.StringPtr(firstStr(m["name"], m["title"])),
			Year:        positiveInt(m["year"]),
		}
		if t := models.MovieType(str(m["type"])); t.Valid() {
			item.Type = &t
		}
		items = append(items, item)
	}
	return items, nil
}

// Detail fetches the raw detail payload for one external id.
func (c *Crawler) Detail(ctx context.Context, externalID string) (json.RawMessage, error) {
	u, err := BuildURL(c.cfg.BaseURL, c.cfg.DetailPath, map[string]string{"slug": externalID, "id": externalID})
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("GET %s: response is not JSON", u)
	}
	return json.RawMessage(body), nil
}

func (c *Crawler) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", u, err)
	}
	return body, nil
}

// BuildURL substitutes {param} tokens in p (unknown tokens become empty)
// and resolves the result against base.
func BuildURL(base, p string, params map[string]string) (string, error) {
	replaced := paramRe.ReplaceAllStringFunc(p, func(tok string) string {
		return url.PathEscape(params[tok[1:len(tok)-1]])
	})
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	ref, err := url.Parse(replaced)
	if err != nil {
		return "", fmt.Errorf("parse path %q: %w", replaced, err)
	}
	return b.ResolveReference(ref).String(), nil
}
