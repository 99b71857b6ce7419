package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTP talks to the rooms API served by `ghostlink relay`.
type HTTP struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTP{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type apiError struct {
	Error string `json:"error"`
}

func (h *HTTP) roomURL(code string) string {
	return h.baseURL + "/rooms/" + url.PathEscape(NormalizeCode(code))
}

func (h *HTTP) do(ctx context.Context, method, target string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	return resp, nil
}

func (h *HTTP) Get(ctx context.Context, code string) (*Room, error) {
	resp, err := h.do(ctx, http.MethodGet, h.roomURL(code), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrRoomNotFound
	default:
		return nil, unexpectedStatus(resp)
	}

	var room Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

func (h *HTTP) Create(ctx context.Context, room *Room) error {
	resp, err := h.do(ctx, http.MethodPost, h.baseURL+"/rooms", room)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusConflict:
		return ErrRoomExists
	default:
		return unexpectedStatus(resp)
	}
}

func (h *HTTP) Delete(ctx context.Context, code string) error {
	resp, err := h.do(ctx, http.MethodDelete, h.roomURL(code), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return unexpectedStatus(resp)
	}
}

func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

func unexpectedStatus(resp *http.Response) error {
	var body apiError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	if body.Error != "" {
		return fmt.Errorf("directory api: %s (%d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("directory api: unexpected status %d", resp.StatusCode)
}
