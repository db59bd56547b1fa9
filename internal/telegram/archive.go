package telegram

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/ingest"
)

// ArchiveSource scrapes a public channel archive RSS feed. It is the
// fallback ingestion path for channels the bot cannot join: items carry no
// numeric update id, so the publish timestamp orders the stream and a
// content hash is the dedup key.
type ArchiveSource struct {
	HTTP *http.Client
	URL  string
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

var tagRe = regexp.MustCompile(`<[^>]+>`)

func (s *ArchiveSource) Fetch(ctx context.Context, offset int64) ([]ingest.Message, error) {
	if s == nil || s.URL == "" {
		return nil, errors.New("archive source not configured")
	}
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("archive fetch: %w", ingest.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: "archive fetch failed"}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse archive feed: %w", err)
	}

	msgs := make([]ingest.Message, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		text := stripMarkup(item.Description)
		if text == "" {
			text = stripMarkup(item.Title)
		}
		if text == "" {
			continue
		}
		at, ok := parsePubDate(item.PubDate)
		if !ok {
			continue
		}
		id := at.Unix()
		if id < offset {
			continue
		}
		msgs = append(msgs, ingest.Message{
			UpdateID: id,
			DedupID:  "rss:" + contentHash(item.PubDate+"|"+text),
			Text:     text,
			At:       at,
		})
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].UpdateID < msgs[j].UpdateID })
	return msgs, nil
}

func stripMarkup(raw string) string {
	text := strings.ReplaceAll(raw, "<br/>", "\n")
	text = strings.ReplaceAll(text, "<br />", "\n")
	text = strings.ReplaceAll(text, "<br>", "\n")
	text = tagRe.ReplaceAllString(text, "")
	return strings.TrimSpace(html.UnescapeString(text))
}

func parsePubDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func contentHash(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}
