// Package emby provisions and revokes media-server accounts through the
// Emby REST API.
package emby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/bots/nyamedia/metrics"
	"github.com/nyamedia/nyabot/core/logger"
)

const service = "emby"

// Options configures the client.
type Options struct {
	BaseURL        string
	Token          string
	TemplateUserID string
	Timeout        time.Duration
}

// Client talks to one Emby server.
type Client struct {
	http     *resty.Client
	template string
}

type createUserRequest struct {
	Name            string   `json:"Name"`
	CopyFromUserID  string   `json:"CopyFromUserId"`
	UserCopyOptions []string `json:"UserCopyOptions"`
}

type createUserResponse struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type resetPasswordRequest struct {
	ID            string `json:"Id"`
	ResetPassword bool   `json:"ResetPassword"`
}

// New builds a client. New accounts copy the policy of the template user.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Emby-Token", opts.Token).
		SetTimeout(timeout)
	return &Client{http: c, template: opts.TemplateUserID}
}

// CreateUser creates an account named name and returns its id.
func (c *Client) CreateUser(ctx context.Context, name string) (string, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createUserRequest{
			Name:            name,
			CopyFromUserID:  c.template,
			UserCopyOptions: []string{"UserPolicy"},
		}).
		Post("/Users/New")
	if err := c.check(ctx, "create_user", start, resp, err); err != nil {
		return "", err
	}
	var out createUserResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil || out.ID == "" {
		if err == nil {
			err = errors.New("response carries no user id")
		}
		return "", &domain.ExternalError{Service: service, Code: "EMBY_DECODE", Status: resp.StatusCode(), Err: err}
	}
	logger.Info(ctx, service, "create_user", slog.String("status", "ok"),
		slog.Duration("duration", logger.RoundMS(time.Since(start))))
	return out.ID, nil
}

// ResetPassword clears the password of accountID.
func (c *Client) ResetPassword(ctx context.Context, accountID string) error {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(resetPasswordRequest{ID: accountID, ResetPassword: true}).
		Post("/Users/" + url.PathEscape(accountID) + "/Password")
	return c.check(ctx, "reset_password", start, resp, err)
}

// DeleteUser revokes accountID.
func (c *Client) DeleteUser(ctx context.Context, accountID string) error {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/Users/" + url.PathEscape(accountID))
	return c.check(ctx, "delete_user", start, resp, err)
}

// check maps transport failures and non-2xx responses to domain errors.
// A 4xx with a body is a refusal the user can act on; everything else is an
// outage whose details stay in the log.
func (c *Client) check(ctx context.Context, op string, start time.Time, resp *resty.Response, err error) error {
	metrics.ExternalCalls.WithLabelValues(service).Observe(time.Since(start).Seconds())
	took := slog.Duration("duration", logger.RoundMS(time.Since(start)))
	if err != nil {
		logger.Error(ctx, service, op, slog.String("status", "fail"), took, logger.Err(err))
		return &domain.ExternalError{Service: service, Code: "EMBY_NET", Err: err}
	}
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		if op != "create_user" {
			logger.Info(ctx, service, op, slog.String("status", "ok"), took)
		}
		return nil
	}
	body := strings.TrimSpace(resp.String())
	if code >= 400 && code < 500 && code != http.StatusUnauthorized && code != http.StatusForbidden && body != "" {
		logger.Warn(ctx, service, op, slog.String("status", "rejected"), took,
			slog.Int("http_code", code), slog.String("err", logger.SanitizeLimit(body, 256)))
		return &domain.RejectedError{Service: service, Reason: logger.SanitizeLimit(body, 200)}
	}
	logger.Error(ctx, service, op, slog.String("status", "fail"), took,
		slog.Int("http_code", code), slog.String("err", logger.SanitizeLimit(body, 256)))
	return &domain.ExternalError{Service: service, Code: "EMBY", Status: code, Err: fmt.Errorf("unexpected status %d", code)}
}
