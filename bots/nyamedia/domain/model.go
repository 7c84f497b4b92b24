// Package domain holds the entities and error taxonomy shared by the media
// request bot: registrations, media requests and their metadata.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Registration binds a Telegram chat identity to a media-server account.
type Registration struct {
	ChatID    int64     `db:"chat_id" json:"chat_id"`
	Username  string    `db:"username" json:"username"`
	AccountID *string   `db:"account_id" json:"account_id,omitempty"`
	Admin     bool      `db:"is_admin" json:"admin"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Provider is a metadata catalog.
type Provider string

const (
	ProviderTMDB Provider = "TMDB"
	ProviderBGM  Provider = "BGM.TV"
)

// Kind distinguishes movies from series.
type Kind string

const (
	KindMovie Kind = "MOVIE"
	KindTV    Kind = "TV"
)

// Label is the user-facing name of the media kind.
func (k Kind) Label() string {
	if k == KindTV {
		return "电视剧"
	}
	return "电影"
}

// ParseProvider accepts the provider names shown on the buttons.
func ParseProvider(raw string) (Provider, bool) {
	switch Provider(strings.ToUpper(strings.TrimSpace(raw))) {
	case ProviderTMDB:
		return ProviderTMDB, true
	case ProviderBGM:
		return ProviderBGM, true
	}
	return "", false
}

// ParseKind accepts both the stored kind and the user-facing label.
func ParseKind(raw string) (Kind, bool) {
	switch strings.TrimSpace(raw) {
	case "MOVIE", "movie", "电影":
		return KindMovie, true
	case "TV", "tv", "电视剧":
		return KindTV, true
	}
	return "", false
}

// SourceTag is the stored source string, e.g. "TMDB/TV".
func SourceTag(p Provider, k Kind) string {
	return string(p) + "/" + string(k)
}

// ParseSource splits a stored source string into provider and kind.
func ParseSource(tag string) (Provider, Kind, error) {
	left, right, ok := strings.Cut(tag, "/")
	if !ok {
		return "", "", fmt.Errorf("malformed source %q", tag)
	}
	p, okP := ParseProvider(left)
	k, okK := ParseKind(right)
	if !okP || !okK {
		return "", "", fmt.Errorf("unknown source %q", tag)
	}
	return p, k, nil
}

// Metadata is what a catalog returns for an item.
type Metadata struct {
	Title   string  `json:"title"`
	Summary *string `json:"summary,omitempty"`
	Poster  *string `json:"poster,omitempty"`
}

// MediaRequest is a user's request for an item to be added to the library.
type MediaRequest struct {
	ID          int64     `db:"id" json:"id"`
	Source      string    `db:"source" json:"source"`
	MediaID     string    `db:"media_id" json:"media_id"`
	RequestUser int64     `db:"request_user" json:"request_user"`
	Status      Status    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// NewRequest is the input for submitting a request.
type NewRequest struct {
	Provider    Provider
	Kind        Kind
	MediaID     string
	RequestUser int64
	Metadata    *Metadata
}

// Source returns the stored source string of the request.
func (n NewRequest) Source() string { return SourceTag(n.Provider, n.Kind) }

// RequestView is a request joined with its metadata, if any.
type RequestView struct {
	MediaRequest
	Title   *string `db:"title" json:"title,omitempty"`
	Summary *string `db:"summary" json:"summary,omitempty"`
	Poster  *string `db:"poster" json:"poster,omitempty"`
}

// BatchReport summarises a metadata backfill run.
type BatchReport struct {
	TotalProcessed int      `json:"total_processed"`
	Successful     int      `json:"successful"`
	Failed         int      `json:"failed"`
	Errors         []string `json:"errors"`
}
