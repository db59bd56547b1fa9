package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/ingest"
)

func TestBotSourceFetch(t *testing.T) {
	var gotPath, gotOffset string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotOffset = r.URL.Query().Get("offset")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":11,"channel_post":{"message_id":501,"date":1756400000,"text":"💷 EURUSD-OTC"}},
			{"update_id":12,"message":{"message_id":502,"date":1756400060,"caption":"✅ WIN"}},
			{"update_id":13,"message":{"message_id":503,"date":1756400120}}
		]}`))
	}))
	defer server.Close()

	src := &BotSource{Client: NewClient(server.Client(), server.URL, "test-token")}
	msgs, err := src.Fetch(context.Background(), 11)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/bottest-token/getUpdates" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotOffset != "11" {
		t.Fatalf("offset=%q", gotOffset)
	}
	// The empty third update carries no text and is dropped.
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].UpdateID != 11 || msgs[0].DedupID != "msg:501" || msgs[0].Text != "💷 EURUSD-OTC" {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if msgs[1].Text != "✅ WIN" {
		t.Fatalf("caption not used as text: %+v", msgs[1])
	}
	if msgs[0].At.Unix() != 1756400000 {
		t.Fatalf("At=%v", msgs[0].At)
	}
}

func TestBotSourceMapsConflictAndRateLimit(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusConflict, ingest.ErrConflict},
		{http.StatusTooManyRequests, ingest.ErrRateLimited},
	}
	for _, tc := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"ok":false,"description":"nope"}`))
		}))
		src := &BotSource{Client: NewClient(server.Client(), server.URL, "test-token")}
		_, err := src.Fetch(context.Background(), 0)
		server.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: err=%v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestBotSourceSurfacesHardErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	src := &BotSource{Client: NewClient(server.Client(), server.URL, "test-token")}
	_, err := src.Fetch(context.Background(), 0)
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, ingest.ErrConflict) || errors.Is(err, ingest.ErrRateLimited) {
		t.Fatalf("5xx must not map to a benign skip: %v", err)
	}
}

func TestArchiveSourceFetch(t *testing.T) {
	feed := `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item><title>post</title><description>💷 GBPJPY&lt;br/&gt;💎 M5&lt;br/&gt;🔽 put</description><pubDate>Fri, 28 Aug 2026 16:10:00 +0000</pubDate></item>
<item><title>old</title><description>✅ WIN</description><pubDate>Fri, 28 Aug 2026 10:00:00 +0000</pubDate></item>
<item><title></title><description></description><pubDate>Fri, 28 Aug 2026 16:20:00 +0000</pubDate></item>
</channel></rss>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(feed))
	}))
	defer server.Close()

	cutoff, _ := parsePubDate("Fri, 28 Aug 2026 12:00:00 +0000")
	src := &ArchiveSource{HTTP: server.Client(), URL: server.URL}
	msgs, err := src.Fetch(context.Background(), cutoff.Unix())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// One item predates the offset, one is empty.
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Text != "💷 GBPJPY\n💎 M5\n🔽 put" {
		t.Fatalf("text=%q", msgs[0].Text)
	}
	if msgs[0].DedupID[:4] != "rss:" {
		t.Fatalf("dedup id=%q", msgs[0].DedupID)
	}
}

func TestArchiveSourceRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	src := &ArchiveSource{HTTP: server.Client(), URL: server.URL}
	_, err := src.Fetch(context.Background(), 0)
	if !errors.Is(err, ingest.ErrRateLimited) {
		t.Fatalf("err=%v, want rate-limit sentinel", err)
	}
}

func TestStripMarkup(t *testing.T) {
	got := stripMarkup(`<b>💷 EURUSD</b><br/>💎 M1<br />🔼 call &amp; go`)
	want := "💷 EURUSD\n💎 M1\n🔼 call & go"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
