package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client is a minimal Telegram bot API client covering the getUpdates pull
// surface this service needs.
type Client struct {
	host       string
	token      string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host, token string) *Client {
	if host == "" {
		host = "https://api.telegram.org"
	}
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		token:      token,
		httpClient: httpClient,
	}
}

// Update is one getUpdates item. Channel messages arrive as channel_post;
// direct bot chats as message.
type Update struct {
	UpdateID    int64            `json:"update_id"`
	Message     *IncomingMessage `json:"message"`
	ChannelPost *IncomingMessage `json:"channel_post"`
}

type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
}

// Text or caption, whichever the post carries.
func (u Update) Body() (*IncomingMessage, string) {
	msg := u.Message
	if msg == nil {
		msg = u.ChannelPost
	}
	if msg == nil {
		return nil, ""
	}
	if msg.Text != "" {
		return msg, msg.Text
	}
	return msg, msg.Caption
}

type getUpdatesResponse struct {
	OK          bool     `json:"ok"`
	Result      []Update `json:"result"`
	Description string   `json:"description"`
}

// GetUpdates pulls updates starting at offset. timeout is the server-side
// long-poll timeout in seconds; 0 means a short poll.
func (c *Client) GetUpdates(ctx context.Context, offset int64, limit, timeout int) ([]Update, error) {
	if c.token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(offset, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if timeout > 0 {
		query.Set("timeout", strconv.Itoa(timeout))
	}
	body, err := c.doRequest(ctx, "/getUpdates", query)
	if err != nil {
		return nil, err
	}
	var parsed getUpdatesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode getUpdates response: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("getUpdates rejected: %s", parsed.Description)
	}
	return parsed.Result, nil
}

func (c *Client) doRequest(ctx context.Context, method string, query url.Values) ([]byte, error) {
	fullURL := c.host + "/bot" + url.PathEscape(c.token) + method
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
