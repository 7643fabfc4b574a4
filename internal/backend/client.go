package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/pkg/errs"
	"github.com/cwrk-planet/spaces/pkg/httputil"
)

type Options struct {
	BaseURL string // http://host:port
	Token   string // bearer access token
	Timeout time.Duration
	HTTP    *http.Client
}

// Client talks to the space-service REST API on behalf of one user.
type Client struct {
	base    string
	token   string
	timeout time.Duration
	http    *http.Client
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: backend client: empty base url", errs.ErrInvalidInput)
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: backend client: %v", errs.ErrInvalidInput, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		timeout: opts.Timeout,
		http:    opts.HTTP,
	}, nil
}

func (c *Client) FetchSpace(ctx context.Context, id string) (*domain.Space, error) {
	var sp domain.Space
	if err := c.do(ctx, http.MethodGet, spacePath(id), nil, &sp); err != nil {
		return nil, err
	}
	return &sp, nil
}

func (c *Client) UpdateSpace(ctx context.Context, id string, patch domain.Patch) error {
	return c.do(ctx, http.MethodPatch, spacePath(id), patch, nil)
}

func (c *Client) JoinSpace(ctx context.Context, id string, user domain.User, asSpeaker bool) error {
	return c.do(ctx, http.MethodPost, spacePath(id, "join"), map[string]any{
		"displayName": user.DisplayName,
		"asSpeaker":   asSpeaker,
	}, nil)
}

func (c *Client) LeaveSpace(ctx context.Context, id, userID string) error {
	return c.do(ctx, http.MethodPost, spacePath(id, "leave"), map[string]string{"userId": userID}, nil)
}

func (c *Client) RequestToSpeak(ctx context.Context, id, _ string) error {
	return c.do(ctx, http.MethodPost, spacePath(id, "speak"), nil, nil)
}

func (c *Client) ApproveJoinRequest(ctx context.Context, id, userID string, asSpeaker bool) error {
	return c.do(ctx, http.MethodPost, spacePath(id, "join-requests", userID, "approve"),
		map[string]bool{"asSpeaker": asSpeaker}, nil)
}

func (c *Client) RejectJoinRequest(ctx context.Context, id, userID string) error {
	return c.do(ctx, http.MethodPost, spacePath(id, "join-requests", userID, "reject"), nil, nil)
}

// ApproveRequest approves a speak request; the server always grants a
// speaker seat.
func (c *Client) ApproveRequest(ctx context.Context, id, userID string, _ bool) error {
	return c.do(ctx, http.MethodPost, spacePath(id, "speak-requests", userID, "approve"), nil, nil)
}

func (c *Client) RejectRequest(ctx context.Context, id, userID string) error {
	return c.do(ctx, http.MethodPost, spacePath(id, "speak-requests", userID, "reject"), nil, nil)
}

func (c *Client) MuteParticipant(ctx context.Context, id, userID string, muted bool) error {
	return c.do(ctx, http.MethodPost, spacePath(id, "participants", userID, "mute"),
		map[string]bool{"muted": muted}, nil)
}

func (c *Client) BanParticipant(ctx context.Context, id, userID string) error {
	return c.do(ctx, http.MethodPost, spacePath(id, "participants", userID, "ban"), nil, nil)
}

func (c *Client) EndSpace(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, spacePath(id, "end"), nil, nil)
}

// do sends one request. Status errors keep their errs sentinel through
// httputil.StatusError; transport failures wrap errs.ErrUpstream.
func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
		}
	}
	req, err := http.NewRequestWithContext(rpcCtx, method, c.base+path, &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rid, ok := httputil.FromContext(ctx)
	if !ok || rid == "" {
		rid = uuid.NewString()
	}
	req.Header.Set(httputil.HeaderRequestID, rid)
	otel.GetTextMapPropagator().Inject(rpcCtx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", errs.ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	return httputil.Decode(resp, dst)
}

func spacePath(id string, rest ...string) string {
	parts := []string{"/spaces", url.PathEscape(id)}
	for _, r := range rest {
		parts = append(parts, url.PathEscape(r))
	}
	return strings.Join(parts, "/")
}
