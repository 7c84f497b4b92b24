package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/bots/nyamedia/notify"
)

type fakeLedger struct {
	pending     []domain.RequestView
	adjudicated []domain.Status
	adjErr      error
	report      domain.BatchReport
}

func (f *fakeLedger) ListPending(context.Context) ([]domain.RequestView, error) {
	return f.pending, nil
}

func (f *fakeLedger) ListArchived(context.Context) ([]domain.RequestView, error) {
	return nil, &domain.PersistenceError{Op: "requests.list_archived", Err: context.DeadlineExceeded}
}

func (f *fakeLedger) Adjudicate(_ context.Context, id int64, to domain.Status) (domain.MediaRequest, error) {
	if f.adjErr != nil {
		return domain.MediaRequest{}, f.adjErr
	}
	f.adjudicated = append(f.adjudicated, to)
	return domain.MediaRequest{ID: id, Status: to}, nil
}

func (f *fakeLedger) BatchFetchMissingMetadata(context.Context) (domain.BatchReport, error) {
	return f.report, nil
}

type fakeDirectory map[int64]domain.Registration

func (f fakeDirectory) Get(_ context.Context, chatID int64) (domain.Registration, error) {
	reg, ok := f[chatID]
	if !ok {
		return domain.Registration{}, domain.ErrNotFound
	}
	return reg, nil
}

type fakeArrivals struct {
	events []notify.Event
}

func (f *fakeArrivals) OnLibraryArrival(_ context.Context, ev notify.Event) notify.Outcome {
	f.events = append(f.events, ev)
	if ev.Item == nil {
		return notify.OutcomeIgnored
	}
	return notify.OutcomeNotified
}

type harness struct {
	srv      *Server
	ledger   *fakeLedger
	arrivals *fakeArrivals
}

func newHarness(token string) *harness {
	h := &harness{ledger: &fakeLedger{}, arrivals: &fakeArrivals{}}
	h.srv = New(Options{
		AdminToken: token,
		Ledger:     h.ledger,
		Directory:  fakeDirectory{7: {ChatID: 7, Username: "alice", Admin: true}},
		Arrivals:   h.arrivals,
	})
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestStatusUpdateAcceptsNameOrNumber(t *testing.T) {
	h := newHarness("")

	rec := h.do(t, http.MethodPost, "/api/requests/status", `{"request_id":3,"new_status":"archived"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[statusResult](t, rec)
	require.True(t, res.Success)

	rec = h.do(t, http.MethodPost, "/api/requests/status", `{"request_id":3,"new_status":2}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []domain.Status{domain.StatusArchived, domain.StatusCancelled}, h.ledger.adjudicated)
}

func TestStatusUpdateErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		body string
		want int
	}{
		{name: "bad body", body: `{"request_id":3}`, want: http.StatusBadRequest},
		{name: "unknown status", body: `{"request_id":3,"new_status":"lost"}`, want: http.StatusBadRequest},
		{name: "not found", err: domain.ErrNotFound, body: `{"request_id":3,"new_status":1}`, want: http.StatusNotFound},
		{name: "terminal", err: domain.ErrInvalidTransition, body: `{"request_id":3,"new_status":1}`, want: http.StatusConflict},
		{name: "db", err: &domain.PersistenceError{Op: "requests.transition", Err: context.Canceled}, body: `{"request_id":3,"new_status":1}`, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness("")
			h.ledger.adjErr = tc.err
			rec := h.do(t, http.MethodPost, "/api/requests/status", tc.body, nil)
			require.Equal(t, tc.want, rec.Code)
			require.False(t, decode[statusResult](t, rec).Success)
		})
	}
}

func TestListsAndReport(t *testing.T) {
	h := newHarness("")
	title := "Frieren"
	h.ledger.pending = []domain.RequestView{{MediaRequest: domain.MediaRequest{ID: 1, Source: "TMDB/TV", MediaID: "209867"}, Title: &title}}
	h.ledger.report = domain.BatchReport{TotalProcessed: 2, Successful: 1, Failed: 1, Errors: []string{"request 2: TMDB"}}

	rec := h.do(t, http.MethodGet, "/api/requests/pending", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"submitted"`)
	require.Contains(t, rec.Body.String(), `"title":"Frieren"`)

	rec = h.do(t, http.MethodGet, "/api/requests/archived", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/requests/fetch-metadata", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, h.ledger.report, decode[domain.BatchReport](t, rec))
}

func TestRegistrationLookup(t *testing.T) {
	h := newHarness("")

	found := decode[registrationView](t, h.do(t, http.MethodGet, "/api/registrations/7", "", nil))
	require.True(t, found.Registered)
	require.Equal(t, "alice", *found.DatabaseUsername)
	require.True(t, found.Admin)

	missing := h.do(t, http.MethodGet, "/api/registrations/8", "", nil)
	require.Equal(t, http.StatusOK, missing.Code)
	require.JSONEq(t, `{"registered":false,"database_username":null,"admin":false}`, missing.Body.String())
}

func TestAdminTokenGuardsAPIOnly(t *testing.T) {
	h := newHarness("s3cret")

	require.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/requests/pending", "", nil).Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/requests/pending", "",
		map[string]string{"Authorization": "Bearer s3cret"}).Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", "", nil).Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/webhook", `{"Event":"playback.start"}`, nil).Code)
}

func TestWebhookJSONAndMultipart(t *testing.T) {
	h := newHarness("")
	payload := `{"Title":"t","Event":"library.new","Item":{"Id":"11","Name":"Ep","SeriesId":"99","SeriesName":"Show","SeasonName":"S1","IndexNumber":3,"ProductionYear":2024}}`

	rec := h.do(t, http.MethodPost, "/webhook", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, notify.OutcomeNotified, decode[webhookAck](t, rec).Outcome)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("data", payload))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/webhook", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, h.arrivals.events, 2)
	require.Equal(t, "99", h.arrivals.events[1].Item.SeriesID)

	require.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/webhook", "{", nil).Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHarness("")

	rec := h.do(t, http.MethodGet, "/healthz", "", map[string]string{requestIDHeader: "abc"})
	require.Equal(t, "abc", rec.Header().Get(requestIDHeader))

	rec = h.do(t, http.MethodGet, "/healthz", "", nil)
	require.Len(t, rec.Header().Get(requestIDHeader), 36)
}
