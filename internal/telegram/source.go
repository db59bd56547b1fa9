package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/ingest"
)

// BotSource adapts the bot getUpdates API to the ingestion Source. A 409
// from Telegram means another consumer is polling the same bot token; that
// and 429 rate limiting map to the benign-skip sentinels.
type BotSource struct {
	Client      *Client
	BatchLimit  int
	PollTimeout int
}

func (s *BotSource) Fetch(ctx context.Context, offset int64) ([]ingest.Message, error) {
	if s == nil || s.Client == nil {
		return nil, errors.New("bot source not configured")
	}
	limit := s.BatchLimit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	updates, err := s.Client.GetUpdates(ctx, offset, limit, s.PollTimeout)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Status {
			case http.StatusConflict:
				return nil, fmt.Errorf("getUpdates: %w", ingest.ErrConflict)
			case http.StatusTooManyRequests:
				return nil, fmt.Errorf("getUpdates: %w", ingest.ErrRateLimited)
			}
		}
		return nil, err
	}

	msgs := make([]ingest.Message, 0, len(updates))
	for _, u := range updates {
		msg, text := u.Body()
		if msg == nil || text == "" {
			continue
		}
		var at time.Time
		if msg.Date > 0 {
			at = time.Unix(msg.Date, 0).UTC()
		}
		msgs = append(msgs, ingest.Message{
			UpdateID: u.UpdateID,
			DedupID:  "msg:" + strconv.FormatInt(msg.MessageID, 10),
			Text:     text,
			At:       at,
		})
	}
	return msgs, nil
}
