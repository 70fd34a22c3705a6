// Package api is the HTTP collaborator for room-scoped history: channel
// backlog, server member list and the room directory. The server half lives
// in adapters/http and shares the response shapes declared here.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

var (
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrNotFound     = errors.New("api: not found")
	ErrRequest      = errors.New("api: request failed")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type MessagesResponse struct {
	ChannelID domain.ChannelID `json:"channelId"`
	Messages  []domain.Message `json:"messages"`
}

type MembersResponse struct {
	ServerID domain.ServerID  `json:"serverId"`
	Members  []core.MemberDTO `json:"members"`
}

type RoomsResponse struct {
	Rooms []core.RoomInfo `json:"rooms"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

type Client struct {
	http   *resty.Client
	tokens core.TokenProvider
}

func New(cfg Config, tokens core.TokenProvider) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200*time.Millisecond).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &Client{http: rc, tokens: tokens}
}

// ChannelMessages fetches the newest limit messages of a channel, oldest first.
func (c *Client) ChannelMessages(ctx context.Context, id domain.ChannelID, limit int) ([]domain.Message, error) {
	var out MessagesResponse
	req := c.request(ctx).
		SetPathParam("id", string(id)).
		SetResult(&out)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	if err := c.do(req, "/api/channels/{id}/messages"); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) ServerMembers(ctx context.Context, id domain.ServerID) ([]core.MemberDTO, error) {
	var out MembersResponse
	req := c.request(ctx).
		SetPathParam("id", string(id)).
		SetResult(&out)
	if err := c.do(req, "/api/servers/{id}/members"); err != nil {
		return nil, err
	}
	return out.Members, nil
}

func (c *Client) Rooms(ctx context.Context) ([]core.RoomInfo, error) {
	var out RoomsResponse
	if err := c.do(c.request(ctx).SetResult(&out), "/api/rooms"); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().
		SetContext(ctx).
		SetError(&ErrorResponse{})
	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.SetAuthToken(token)
		}
	}
	return req
}

func (c *Client) do(req *resty.Request, path string) error {
	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if !resp.IsError() {
		return nil
	}

	msg := resp.Status()
	if e, ok := resp.Error().(*ErrorResponse); ok && e.Error != "" {
		msg = e.Error
	}
	log.Warn().Str("module", "api").Str("path", resp.Request.URL).Int("status", resp.StatusCode()).Str("error", msg).Msg("request failed")

	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return fmt.Errorf("GET %s: %w", path, ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("GET %s: %w: %s", path, ErrNotFound, msg)
	default:
		return fmt.Errorf("GET %s: %w: %s", path, ErrRequest, msg)
	}
}
