// Package catalog looks media items up in TMDB and BGM.TV.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/bots/nyamedia/metrics"
	"github.com/nyamedia/nyabot/core/logger"
)

const tmdbPosterBase = "https://image.tmdb.org/t/p/w500"

// Options configures both catalog backends.
type Options struct {
	TMDBBaseURL string
	TMDBToken   string
	BGMBaseURL  string
	BGMToken    string
	Language    string
	UserAgent   string
	Timeout     time.Duration
}

// Client fetches metadata from the supported providers.
type Client struct {
	tmdb     *resty.Client
	bgm      *resty.Client
	language string
}

type tmdbItem struct {
	Title      string `json:"title"`
	Name       string `json:"name"`
	Overview   string `json:"overview"`
	PosterPath string `json:"poster_path"`
}

type bgmItem struct {
	Name    string `json:"name"`
	NameCN  string `json:"name_cn"`
	Summary string `json:"summary"`
	Images  *struct {
		Common string `json:"common"`
	} `json:"images"`
}

// New builds a catalog client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lang := opts.Language
	if lang == "" {
		lang = "zh-CN"
	}
	tmdb := resty.New().
		SetBaseURL(strings.TrimRight(opts.TMDBBaseURL, "/")).
		SetAuthToken(opts.TMDBToken).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	bgm := resty.New().
		SetBaseURL(strings.TrimRight(opts.BGMBaseURL, "/")).
		SetAuthToken(opts.BGMToken).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent).
		SetTimeout(timeout)
	return &Client{tmdb: tmdb, bgm: bgm, language: lang}
}

// Fetch returns the metadata of item id of kind from provider.
func (c *Client) Fetch(ctx context.Context, provider domain.Provider, kind domain.Kind, id string) (domain.Metadata, error) {
	start := time.Now()
	var (
		md  domain.Metadata
		err error
	)
	switch provider {
	case domain.ProviderTMDB:
		md, err = c.fetchTMDB(ctx, kind, id)
	case domain.ProviderBGM:
		md, err = c.fetchBGM(ctx, id)
	default:
		return domain.Metadata{}, fmt.Errorf("catalog: unknown provider %q", provider)
	}
	metrics.ExternalCalls.WithLabelValues(strings.ToLower(string(provider))).Observe(time.Since(start).Seconds())
	attrs := []slog.Attr{
		slog.String("source", domain.SourceTag(provider, kind)),
		slog.String("media_id", id),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if err != nil {
		logger.Warn(ctx, "catalog", "fetch", append(attrs, slog.String("status", "fail"), logger.Err(err))...)
		return domain.Metadata{}, err
	}
	logger.Debug(ctx, "catalog", "fetch", append(attrs, slog.String("status", "ok"))...)
	return md, nil
}

func (c *Client) fetchTMDB(ctx context.Context, kind domain.Kind, id string) (domain.Metadata, error) {
	path := "movie"
	if kind == domain.KindTV {
		path = "tv"
	}
	var item tmdbItem
	if err := get(ctx, c.tmdb, "tmdb", "TMDB", "/3/"+path+"/{id}", id, map[string]string{"language": c.language}, &item); err != nil {
		return domain.Metadata{}, err
	}
	md := domain.Metadata{Title: item.Title, Summary: optional(item.Overview)}
	if md.Title == "" {
		md.Title = item.Name
	}
	if item.PosterPath != "" {
		md.Poster = optional(tmdbPosterBase + item.PosterPath)
	}
	return md, nil
}

func (c *Client) fetchBGM(ctx context.Context, id string) (domain.Metadata, error) {
	var item bgmItem
	if err := get(ctx, c.bgm, "bgm", "BGM", "/v0/subjects/{id}", id, nil, &item); err != nil {
		return domain.Metadata{}, err
	}
	md := domain.Metadata{Title: item.NameCN, Summary: optional(item.Summary)}
	if md.Title == "" {
		md.Title = item.Name
	}
	if item.Images != nil {
		md.Poster = optional(item.Images.Common)
	}
	return md, nil
}

func get(ctx context.Context, client *resty.Client, service, tag, path, id string, query map[string]string, out any) error {
	resp, err := client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return &domain.ExternalError{Service: service, Code: tag + "_NET", Err: err}
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &domain.ExternalError{Service: service, Code: tag, Status: resp.StatusCode(),
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode())}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &domain.ExternalError{Service: service, Code: tag + "_DECODE", Status: resp.StatusCode(), Err: err}
	}
	return nil
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// ItemURL is the public page of an item, shown on confirmation cards.
func ItemURL(provider domain.Provider, kind domain.Kind, id string) string {
	if provider == domain.ProviderBGM {
		return "https://bgm.tv/subject/" + id
	}
	if kind == domain.KindTV {
		return "https://www.themoviedb.org/tv/" + id
	}
	return "https://www.themoviedb.org/movie/" + id
}
