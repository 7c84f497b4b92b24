// Package notify fans library arrival events out to the configured chats and
// tells requesters when their request changes status.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/bots/nyamedia/metrics"
	"github.com/nyamedia/nyabot/core/logger"
)

// EventLibraryNew is the only media-server event that triggers a notice.
const EventLibraryNew = "library.new"

// Event is a media-server webhook payload.
type Event struct {
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Date        string `json:"Date"`
	Event       string `json:"Event"`
	Item        *Item  `json:"Item"`
}

// Item is the library item an event refers to.
type Item struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	Type           string `json:"Type"`
	IndexNumber    int    `json:"IndexNumber"`
	ProductionYear int    `json:"ProductionYear"`
	SeriesName     string `json:"SeriesName"`
	SeriesID       string `json:"SeriesId"`
	SeasonName     string `json:"SeasonName"`
}

// Outcome tells the webhook caller what happened to an event.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNotified  Outcome = "notified"
)

// Sender delivers one text message.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Queue runs delivery jobs asynchronously with bounded retries.
type Queue interface {
	Enqueue(ctx context.Context, action, endpoint string, run func(ctx context.Context) error) error
}

// Options configures a Dispatcher.
type Options struct {
	Sender   Sender
	Queue    Queue
	Audience []int64
	Seen     *DedupSet
}

// Dispatcher sends arrival and status notices.
type Dispatcher struct {
	sender   Sender
	queue    Queue
	audience []int64
	seen     *DedupSet
}

// New builds a Dispatcher.
func New(opts Options) *Dispatcher {
	seen := opts.Seen
	if seen == nil {
		seen = NewDedupSet()
	}
	return &Dispatcher{
		sender:   opts.Sender,
		queue:    opts.Queue,
		audience: append([]int64(nil), opts.Audience...),
		seen:     seen,
	}
}

// OnLibraryArrival announces a newly added item once per series (or per
// movie) for the lifetime of the process.
func (d *Dispatcher) OnLibraryArrival(ctx context.Context, ev Event) Outcome {
	if ev.Event != EventLibraryNew || ev.Item == nil {
		logger.Debug(ctx, "notify", "arrival", slog.String("outcome", "skip"), slog.String("event_type", ev.Event))
		return OutcomeIgnored
	}
	item := ev.Item
	key := dedupKey(item)
	if key == "" {
		logger.Warn(ctx, "notify", "arrival", slog.String("outcome", "skip"), slog.String("reason", "no_item_id"))
		return OutcomeIgnored
	}
	if !d.seen.Add(key) {
		metrics.Notifications.WithLabelValues("arrival", "duplicate").Inc()
		logger.Debug(ctx, "notify", "arrival", slog.String("outcome", "duplicate"), slog.String("series_id", key))
		return OutcomeDuplicate
	}

	text := ArrivalText(item)
	for _, chatID := range d.audience {
		d.deliver(ctx, "arrival", chatID, text)
	}
	logger.Info(ctx, "notify", "arrival",
		slog.String("outcome", "ok"),
		slog.String("series_id", key),
		slog.Int("audience", len(d.audience)),
	)
	return OutcomeNotified
}

// NotifyStatus queues a notice to the requester of req about its new status.
func (d *Dispatcher) NotifyStatus(ctx context.Context, req domain.MediaRequest, md *domain.Metadata) error {
	if req.RequestUser == 0 {
		return nil
	}
	return d.deliver(ctx, "status", req.RequestUser, StatusText(req, md))
}

func (d *Dispatcher) deliver(ctx context.Context, kind string, chatID int64, text string) error {
	run := func(ctx context.Context) error {
		if err := d.sender.SendText(ctx, chatID, text); err != nil {
			metrics.Notifications.WithLabelValues(kind, "fail").Inc()
			return &domain.DeliveryError{ChatID: chatID, Err: err}
		}
		metrics.Notifications.WithLabelValues(kind, "ok").Inc()
		return nil
	}
	if err := d.queue.Enqueue(ctx, "notify."+kind, "sendMessage", run); err != nil {
		metrics.Notifications.WithLabelValues(kind, "fail").Inc()
		logger.Error(ctx, "notify", kind+".enqueue",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			logger.Err(err),
		)
		return &domain.DeliveryError{ChatID: chatID, Err: err}
	}
	return nil
}

func dedupKey(item *Item) string {
	if item.SeriesID != "" {
		return item.SeriesID
	}
	return item.ID
}

func isMovie(item *Item) bool {
	return strings.EqualFold(item.Type, "Movie") || (item.SeriesID == "" && item.SeriesName == "")
}

// ArrivalText renders the arrival notice for item.
func ArrivalText(item *Item) string {
	if isMovie(item) {
		return fmt.Sprintf("新电影入库: %s%s", item.Name, year(item.ProductionYear))
	}
	return fmt.Sprintf("新剧集入库: %s%s\n%s - 第%d集 - %s",
		item.SeriesName, year(item.ProductionYear), item.SeasonName, item.IndexNumber, item.Name)
}

// StatusText renders the notice sent to a requester.
func StatusText(req domain.MediaRequest, md *domain.Metadata) string {
	name := req.Source + " " + req.MediaID
	if md != nil && md.Title != "" {
		name = md.Title
	}
	return fmt.Sprintf("您请求的媒体「%s」状态已更新: %s", name, req.Status.Label())
}

func year(y int) string {
	if y <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%d)", y)
}
