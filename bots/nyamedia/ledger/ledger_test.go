package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/bots/nyamedia/store"
	"github.com/nyamedia/nyabot/core/database"
	"github.com/nyamedia/nyabot/migrations"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeFetcher) Fetch(_ context.Context, _ domain.Provider, _ domain.Kind, id string) (domain.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.fail[id] {
		return domain.Metadata{}, &domain.ExternalError{Service: "tmdb", Code: "TMDB", Status: 404, Err: errors.New("not found")}
	}
	return domain.Metadata{Title: "title-" + id}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	got  []domain.MediaRequest
	md   []*domain.Metadata
	fail error
}

func (f *fakeNotifier) NotifyStatus(_ context.Context, req domain.MediaRequest, md *domain.Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	f.md = append(f.md, md)
	return f.fail
}

func newService(t *testing.T, fetcher Fetcher, notifier StatusNotifier) (*Service, *store.Store) {
	t.Helper()
	ctx := context.Background()
	cfg := database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "ledger.db")}
	db, err := database.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrations{FS: migrations.FS}.Up(ctx, db, cfg))
	st := store.New(db)
	return New(Options{
		Requests:      st.Requests,
		Media:         st.Media,
		Fetcher:       fetcher,
		Notifier:      notifier,
		BatchInterval: time.Millisecond,
	}), st
}

func tv(id string, user int64) domain.NewRequest {
	return domain.NewRequest{Provider: domain.ProviderTMDB, Kind: domain.KindTV, MediaID: id, RequestUser: user}
}

func TestSubmitAndDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, &fakeFetcher{}, nil)

	n := tv("1399", 1)
	n.Metadata = &domain.Metadata{Title: "权力的游戏"}
	req, err := svc.Submit(ctx, n)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSubmitted, req.Status)

	md, err := st.Media.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, "权力的游戏", md.Title)

	_, err = svc.Submit(ctx, tv("1399", 2))
	require.ErrorIs(t, err, domain.ErrDuplicateRequest)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestAdjudicate(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{}
	svc, st := newService(t, &fakeFetcher{}, notifier)

	req, err := svc.Submit(ctx, tv("1", 42))
	require.NoError(t, err)
	require.NoError(t, st.Media.Upsert(ctx, req.ID, domain.Metadata{Title: "T"}))

	_, err = svc.Adjudicate(ctx, req.ID, domain.StatusSubmitted)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	updated, err := svc.Adjudicate(ctx, req.ID, domain.StatusArchived)
	require.NoError(t, err)
	require.Equal(t, domain.StatusArchived, updated.Status)
	require.Len(t, notifier.got, 1)
	require.EqualValues(t, 42, notifier.got[0].RequestUser)
	require.Equal(t, "T", notifier.md[0].Title)

	_, err = svc.Adjudicate(ctx, req.ID, domain.StatusCancelled)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.Adjudicate(ctx, 404, domain.StatusArchived)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Len(t, notifier.got, 1)
}

func TestAdjudicateNotifyFailureKeepsStatus(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, &fakeFetcher{}, &fakeNotifier{fail: errors.New("blocked by user")})

	req, err := svc.Submit(ctx, tv("2", 42))
	require.NoError(t, err)
	_, err = svc.Adjudicate(ctx, req.ID, domain.StatusInvalid)
	require.NoError(t, err)

	got, err := st.Requests.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInvalid, got.Status)
}

func TestConcurrentAdjudicationOneWins(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, &fakeFetcher{}, &fakeNotifier{})
	req, err := svc.Submit(ctx, tv("3", 1))
	require.NoError(t, err)

	targets := []domain.Status{domain.StatusArchived, domain.StatusCancelled, domain.StatusInvalid, domain.StatusArchived}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to domain.Status) {
			defer wg.Done()
			_, errs[i] = svc.Adjudicate(ctx, req.ID, to)
		}(i, to)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, domain.ErrInvalidTransition)
	}
	require.Equal(t, 1, wins)
}

func TestBatchFetchMissingMetadata(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{fail: map[string]bool{"bad": true}}
	svc, _ := newService(t, fetcher, nil)

	for _, id := range []string{"a", "bad", "c"} {
		_, err := svc.Submit(ctx, tv(id, 1))
		require.NoError(t, err)
	}
	withMD := tv("d", 1)
	withMD.Metadata = &domain.Metadata{Title: "has"}
	_, err := svc.Submit(ctx, withMD)
	require.NoError(t, err)

	report, err := svc.BatchFetchMissingMetadata(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, report.TotalProcessed)
	require.Equal(t, 2, report.Successful)
	require.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	require.Contains(t, report.Errors[0], "bad")
	require.Equal(t, []string{"a", "bad", "c"}, fetcher.calls)

	// only the failed one is retried
	report, err = svc.BatchFetchMissingMetadata(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalProcessed)
	require.Equal(t, 0, report.Successful)
}

func TestBatchStopsOnCancel(t *testing.T) {
	svc, _ := newService(t, &fakeFetcher{}, nil)
	svc.interval = time.Hour
	ctx := context.Background()
	for _, id := range []string{"x", "y", "z"} {
		_, err := svc.Submit(ctx, tv(id, 1))
		require.NoError(t, err)
	}

	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	report, err := svc.BatchFetchMissingMetadata(cctx)
	require.NoError(t, err)
	require.Equal(t, 3, report.TotalProcessed)
	require.Equal(t, 1, report.Successful)
	require.Equal(t, 2, report.Failed)
}
