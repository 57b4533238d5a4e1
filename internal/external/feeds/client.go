package feeds

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/signalcast/pkg/httputil"
	"github.com/wonny/signalcast/pkg/logger"
)

const maxFeedBytes = 5 << 20

// Item 피드 항목 (HTML 제거된 본문)
type Item struct {
	Source      string
	GUID        string // 피드 내 고유 키 (guid → link → title 해시)
	Title       string
	Link        string
	Summary     string
	PublishedAt *time.Time
}

// Client RSS 2.0 / Atom 피드 수집기
// ⭐ SSOT: 뉴스 피드 HTTP 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
}

// NewClient creates a feed client
func NewClient(httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithModule("feeds"),
	}
}

// Fetch downloads and parses one feed
func (c *Client) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	resp, err := c.httpClient.Get(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body failed: %w", err)
	}

	items, err := Parse(SourceName(feedURL), body)
	if err != nil {
		return nil, fmt.Errorf("parse feed failed: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"feed":  feedURL,
		"count": len(items),
	}).Debug("Fetched feed")
	return items, nil
}

// SourceName derives a stable source label from the feed URL host
func SourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return feedURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// =============================================================================
// Parsing
// =============================================================================

type rssDoc struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			GUID        string `xml:"guid"`
			PubDate     string `xml:"pubDate"`
			Description string `xml:"description"`
		} `xml:"item"`
	} `xml:"channel"`
}

type atomDoc struct {
	Entries []struct {
		Title string `xml:"title"`
		ID    string `xml:"id"`
		Links []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Published string `xml:"published"`
		Updated   string `xml:"updated"`
		Summary   string `xml:"summary"`
		Content   string `xml:"content"`
	} `xml:"entry"`
}

// Parse decodes an RSS 2.0 or Atom document
func Parse(source string, body []byte) ([]Item, error) {
	var probe struct {
		XMLName xml.Name
	}
	if err := decode(body, &probe); err != nil {
		return nil, err
	}

	switch probe.XMLName.Local {
	case "rss":
		var doc rssDoc
		if err := decode(body, &doc); err != nil {
			return nil, err
		}
		items := make([]Item, 0, len(doc.Channel.Items))
		for _, it := range doc.Channel.Items {
			items = append(items, newItem(source, it.GUID, it.Title, strings.TrimSpace(it.Link), it.Description, it.PubDate))
		}
		return items, nil

	case "feed":
		var doc atomDoc
		if err := decode(body, &doc); err != nil {
			return nil, err
		}
		items := make([]Item, 0, len(doc.Entries))
		for _, e := range doc.Entries {
			link := ""
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			summary := e.Summary
			if summary == "" {
				summary = e.Content
			}
			published := e.Published
			if published == "" {
				published = e.Updated
			}
			items = append(items, newItem(source, e.ID, e.Title, link, summary, published))
		}
		return items, nil
	}

	return nil, fmt.Errorf("unsupported feed root <%s>", probe.XMLName.Local)
}

func decode(body []byte, v any) error {
	d := xml.NewDecoder(bytes.NewReader(body))
	d.Strict = false
	// 선언된 charset 과 무관하게 바이트 그대로 읽음
	d.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	return d.Decode(v)
}

func newItem(source, guid, title, link, summary, published string) Item {
	it := Item{
		Source:  source,
		Title:   StripHTML(title),
		Link:    link,
		Summary: StripHTML(summary),
	}

	it.GUID = strings.TrimSpace(guid)
	if it.GUID == "" {
		it.GUID = link
	}
	if it.GUID == "" {
		sum := sha1.Sum([]byte(it.Title))
		it.GUID = "sha1:" + hex.EncodeToString(sum[:])
	}

	if t, ok := parseTime(published); ok {
		it.PublishedAt = &t
	}
	return it
}

var timeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// StripHTML returns the visible text of an HTML fragment with whitespace collapsed
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
