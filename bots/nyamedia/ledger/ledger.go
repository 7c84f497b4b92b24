// Package ledger implements the media request lifecycle: submission with
// duplicate detection, admin adjudication and metadata backfill.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/bots/nyamedia/metrics"
	"github.com/nyamedia/nyabot/core/logger"
)

// RequestStore persists media requests.
type RequestStore interface {
	Get(ctx context.Context, id int64) (domain.MediaRequest, error)
	FindBySource(ctx context.Context, source, mediaID string) (domain.MediaRequest, error)
	Insert(ctx context.Context, n domain.NewRequest) (domain.MediaRequest, error)
	Transition(ctx context.Context, id int64, from, to domain.Status) (domain.MediaRequest, error)
	ListPending(ctx context.Context) ([]domain.RequestView, error)
	ListArchived(ctx context.Context) ([]domain.RequestView, error)
	ListAll(ctx context.Context) ([]domain.RequestView, error)
	ListMissingMetadata(ctx context.Context) ([]domain.MediaRequest, error)
}

// MediaStore persists request metadata.
type MediaStore interface {
	Upsert(ctx context.Context, requestID int64, md domain.Metadata) error
	Get(ctx context.Context, requestID int64) (domain.Metadata, error)
}

// Fetcher looks metadata up in a catalog.
type Fetcher interface {
	Fetch(ctx context.Context, provider domain.Provider, kind domain.Kind, id string) (domain.Metadata, error)
}

// StatusNotifier tells a requester about a status change.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, req domain.MediaRequest, md *domain.Metadata) error
}

// Options configures a Service.
type Options struct {
	Requests RequestStore
	Media    MediaStore
	Fetcher  Fetcher
	Notifier StatusNotifier
	// BatchInterval is the minimum gap between catalog calls during a backfill.
	BatchInterval time.Duration
}

// Service is the request ledger.
type Service struct {
	requests RequestStore
	media    MediaStore
	fetcher  Fetcher
	notifier StatusNotifier
	interval time.Duration
}

// New builds a Service.
func New(opts Options) *Service {
	interval := opts.BatchInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Service{
		requests: opts.Requests,
		media:    opts.Media,
		fetcher:  opts.Fetcher,
		notifier: opts.Notifier,
		interval: interval,
	}
}

// Submit records a new request. Metadata, when given, is stored best-effort:
// a failed write is logged and the request still counts as submitted.
func (s *Service) Submit(ctx context.Context, n domain.NewRequest) (domain.MediaRequest, error) {
	source := n.Source()
	attrs := []slog.Attr{slog.String("source", source), slog.String("media_id", n.MediaID)}

	if _, err := s.requests.FindBySource(ctx, source, n.MediaID); err == nil {
		metrics.Requests.WithLabelValues("duplicate").Inc()
		logger.Info(ctx, "ledger", "submit", append(attrs, slog.String("outcome", "duplicate"))...)
		return domain.MediaRequest{}, domain.ErrDuplicateRequest
	} else if !errors.Is(err, domain.ErrNotFound) {
		metrics.Requests.WithLabelValues("fail").Inc()
		return domain.MediaRequest{}, err
	}

	req, err := s.requests.Insert(ctx, n)
	if err != nil {
		outcome := "fail"
		if errors.Is(err, domain.ErrDuplicateRequest) {
			outcome = "duplicate"
		}
		metrics.Requests.WithLabelValues(outcome).Inc()
		logger.Info(ctx, "ledger", "submit", append(attrs, slog.String("outcome", outcome))...)
		return domain.MediaRequest{}, err
	}
	metrics.Requests.WithLabelValues("ok").Inc()
	logger.Info(ctx, "ledger", "submit", append(attrs, slog.String("outcome", "ok"), slog.Int64("request_id", req.ID))...)

	if n.Metadata != nil {
		if err := s.media.Upsert(ctx, req.ID, *n.Metadata); err != nil {
			logger.Warn(ctx, "ledger", "submit.metadata",
				slog.String("status", "fail"),
				slog.Int64("request_id", req.ID),
				logger.Err(err),
			)
		}
	}
	return req, nil
}

// Adjudicate moves a submitted request into a terminal status and tells the
// requester. A failed notice is logged and does not undo the change.
func (s *Service) Adjudicate(ctx context.Context, id int64, to domain.Status) (domain.MediaRequest, error) {
	attrs := []slog.Attr{slog.Int64("request_id", id), slog.String("status_to", to.String())}
	if !domain.StatusSubmitted.CanTransition(to) {
		metrics.Adjudications.WithLabelValues(to.String(), "rejected").Inc()
		logger.Info(ctx, "ledger", "adjudicate", append(attrs, slog.String("outcome", "rejected"))...)
		return domain.MediaRequest{}, domain.ErrInvalidTransition
	}

	req, err := s.requests.Transition(ctx, id, domain.StatusSubmitted, to)
	if err != nil {
		outcome := "fail"
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidTransition) {
			outcome = "rejected"
		}
		metrics.Adjudications.WithLabelValues(to.String(), outcome).Inc()
		logger.Info(ctx, "ledger", "adjudicate", append(attrs, slog.String("outcome", outcome), logger.Err(err))...)
		return domain.MediaRequest{}, err
	}
	metrics.Adjudications.WithLabelValues(to.String(), "ok").Inc()
	logger.Info(ctx, "ledger", "adjudicate", append(attrs,
		slog.String("outcome", "ok"),
		slog.String("status_from", domain.StatusSubmitted.String()),
	)...)

	if s.notifier != nil {
		var md *domain.Metadata
		if got, err := s.media.Get(ctx, id); err == nil {
			md = &got
		}
		if err := s.notifier.NotifyStatus(ctx, req, md); err != nil {
			logger.Warn(ctx, "ledger", "adjudicate.notify",
				slog.String("status", "fail"),
				slog.Int64("request_id", id),
				logger.Err(err),
			)
		}
	}
	return req, nil
}

// ListPending returns submitted requests.
func (s *Service) ListPending(ctx context.Context) ([]domain.RequestView, error) {
	return s.requests.ListPending(ctx)
}

// ListArchived returns archived requests with metadata.
func (s *Service) ListArchived(ctx context.Context) ([]domain.RequestView, error) {
	return s.requests.ListArchived(ctx)
}

// ListAll returns every request.
func (s *Service) ListAll(ctx context.Context) ([]domain.RequestView, error) {
	return s.requests.ListAll(ctx)
}

// BatchFetchMissingMetadata fills in metadata for every request that has
// none, pacing catalog calls. Failures are collected and the run goes on.
// Running it again only touches what is still missing.
func (s *Service) BatchFetchMissingMetadata(ctx context.Context) (domain.BatchReport, error) {
	start := time.Now()
	report := domain.BatchReport{Errors: []string{}}
	missing, err := s.requests.ListMissingMetadata(ctx)
	if err != nil {
		return report, err
	}

	limiter := rate.NewLimiter(rate.Every(s.interval), 1)
	for _, req := range missing {
		if err := limiter.Wait(ctx); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("request %d: %v", req.ID, err))
			report.Failed += len(missing) - report.TotalProcessed
			report.TotalProcessed = len(missing)
			break
		}
		report.TotalProcessed++
		if err := s.fillMetadata(ctx, req); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("request %d (%s %s): %v", req.ID, req.Source, req.MediaID, err))
			continue
		}
		report.Successful++
	}

	status := "ok"
	if report.Failed > 0 {
		status = "fail"
	}
	logger.Info(ctx, "ledger", "metadata.batch",
		slog.String("status", status),
		slog.Int("count", report.TotalProcessed),
		slog.Int("successful", report.Successful),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return report, nil
}

func (s *Service) fillMetadata(ctx context.Context, req domain.MediaRequest) error {
	provider, kind, err := domain.ParseSource(req.Source)
	if err != nil {
		return err
	}
	md, err := s.fetcher.Fetch(ctx, provider, kind, req.MediaID)
	if err != nil {
		return err
	}
	return s.media.Upsert(ctx, req.ID, md)
}
