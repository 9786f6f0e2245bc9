package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chatsync/internal/model"
	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
)

// Client is the HTTP/JSON implementation of Source. Idempotent reads
// are retried with exponential backoff on transient failures; mutations
// are issued once and rely on their idempotency key for safe caller
// retries.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given API base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// get retries transient failures with exponential backoff. Rejections
// and not-found are permanent.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	op := func() error {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		if err != nil && !IsUnavailable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(op, b)
}

func (c *Client) ListChats(ctx context.Context, page, pageSize int) (*ChatPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	var out ChatPage
	if err := c.get(ctx, "/chats", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetChatDetail(ctx context.Context, chatID int64, page, pageSize int) (*ChatDetail, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	var out ChatDetail
	if err := c.get(ctx, "/chats/"+strconv.FormatInt(chatID, 10), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MessagesSince(ctx context.Context, chatID int64, since int64) ([]model.Message, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	var out struct {
		Messages []model.Message `json:"messages"`
	}
	if err := c.get(ctx, "/chats/"+strconv.FormatInt(chatID, 10)+"/messages/since", q, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, draft Draft) (*model.Message, error) {
	if draft.ClientRef == "" {
		draft.ClientRef = uuid.NewString()
	}
	var out struct {
		Message model.Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/chats/"+strconv.FormatInt(chatID, 10)+"/messages", nil, draft, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

func (c *Client) EditMessage(ctx context.Context, chatID, messageID int64, content string) (*model.Message, error) {
	body := map[string]string{"content": content}
	var out struct {
		Message model.Message `json:"message"`
	}
	path := "/chats/" + strconv.FormatInt(chatID, 10) + "/messages/" + strconv.FormatInt(messageID, 10)
	if err := c.do(ctx, http.MethodPut, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	path := "/chats/" + strconv.FormatInt(chatID, 10) + "/messages/" + strconv.FormatInt(messageID, 10)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) MarkMessagesRead(ctx context.Context, chatID int64, messageIDs []int64) error {
	body := map[string]any{"message_ids": messageIDs}
	if len(messageIDs) == 0 {
		body = map[string]any{"all": true}
	}
	path := "/chats/" + strconv.FormatInt(chatID, 10) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}
