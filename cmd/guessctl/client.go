// cmd/guessctl/client.go
//
// HTTP + websocket client for the guessroom server.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"github.com/robalobadob/guessroom/internal/game"
	"github.com/robalobadob/guessroom/internal/poll"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d)", e.Code, e.Status)
}

// Client talks to one guessroom server.
type Client struct {
	base string
	http *resty.Client
}

// NewClient creates a client for the server at base (e.g. http://localhost:5175).
func NewClient(base string) *Client {
	base = strings.TrimRight(base, "/")
	return &Client{
		base: base,
		http: resty.New().
			SetBaseURL(base).
			SetTimeout(15 * time.Second).
			SetHeader("Content-Type", "application/json").
			SetError(&APIError{}),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr, _ := resp.Error().(*APIError)
		if apiErr == nil || apiErr.Code == "" {
			apiErr = &APIError{Code: http.StatusText(resp.StatusCode()), Message: resp.String()}
		}
		apiErr.Status = resp.StatusCode()
		return apiErr
	}
	return nil
}

func roomPath(room, op string) string {
	return "/rooms/" + url.PathEscape(room) + "/" + op
}

// Join adds nick to room.
func (c *Client) Join(ctx context.Context, room, nick string) (string, error) {
	var out struct {
		Stream string `json:"stream"`
	}
	err := c.do(ctx, http.MethodPost, roomPath(room, "join"), map[string]string{"nickname": nick}, &out)
	return out.Stream, err
}

// Leave removes nick from room.
func (c *Client) Leave(ctx context.Context, room, nick string) error {
	return c.do(ctx, http.MethodPost, roomPath(room, "leave"), map[string]string{"nickname": nick}, nil)
}

// Start asks room to start its first round once.
func (c *Client) Start(ctx context.Context, room string) (bool, error) {
	var out struct {
		Started bool `json:"started"`
	}
	err := c.do(ctx, http.MethodPost, roomPath(room, "start"), nil, &out)
	return out.Started, err
}

// WaitStart polls Start until the room has enough members.
func (c *Client) WaitStart(ctx context.Context, room string, opts ...poll.Option) error {
	return poll.Until(ctx, func(ctx context.Context) (bool, error) {
		return c.Start(ctx, room)
	}, opts...)
}

// Say posts text as author.
func (c *Client) Say(ctx context.Context, room, author, text string) error {
	return c.do(ctx, http.MethodPost, roomPath(room, "messages"), map[string]string{"author": author, "text": text}, nil)
}

// Members lists room members.
func (c *Client) Members(ctx context.Context, room string) ([]game.Member, error) {
	var out []game.Member
	err := c.do(ctx, http.MethodGet, roomPath(room, "members"), nil, &out)
	return out, err
}

// History returns up to limit recent messages (0 = server default).
func (c *Client) History(ctx context.Context, room string, limit int) ([]game.ChatMessage, error) {
	path := roomPath(room, "history")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []game.ChatMessage
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Points returns a player's score.
func (c *Client) Points(ctx context.Context, player string) (int, error) {
	var out struct {
		Points int `json:"points"`
	}
	err := c.do(ctx, http.MethodGet, "/players/"+url.PathEscape(player)+"/points", nil, &out)
	return out.Points, err
}

// Watch streams room events to fn until ctx ends or the server closes the stream.
func (c *Client) Watch(ctx context.Context, room string, fn func(game.ChatMessage)) error {
	u, err := url.Parse(c.base + roomPath(room, "stream"))
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("watch %s: %s: %w", room, resp.Status, err)
		}
		return fmt.Errorf("watch %s: %w", room, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var msg game.ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return errors.Join(errors.New("malformed stream frame"), err)
		}
		fn(msg)
	}
}
