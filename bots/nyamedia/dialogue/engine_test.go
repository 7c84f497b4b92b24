package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
)

type sentMsg struct {
	chatID int64
	msg    Message
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []sentMsg
	deleted []int
	docs    []Document
}

func (f *fakeMessenger) Send(_ context.Context, chatID int64, m Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentMsg{chatID, m})
	return 1000 + f.nextID, nil
}

func (f *fakeMessenger) Delete(_ context.Context, _ int64, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMessenger) SendDocument(_ context.Context, _ int64, d Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, d)
	return nil
}

func (f *fakeMessenger) last() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return Message{}
	}
	return f.sent[len(f.sent)-1].msg
}

type fakeAccounts struct {
	mu        sync.Mutex
	createErr error
	deleteErr error
	resetErr  error
	created   []string
	deleted   []string
	reset     []string
}

func (f *fakeAccounts) CreateUser(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, name)
	return "42", nil
}

func (f *fakeAccounts) ResetPassword(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset = append(f.reset, id)
	return f.resetErr
}

func (f *fakeAccounts) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeDirectory struct {
	mu        sync.Mutex
	regs      map[int64]domain.Registration
	createErr error
}

func (f *fakeDirectory) Get(_ context.Context, chatID int64) (domain.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[chatID]
	if !ok {
		return domain.Registration{}, domain.ErrNotFound
	}
	return reg, nil
}

func (f *fakeDirectory) Create(_ context.Context, reg domain.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.regs[reg.ChatID]; ok {
		return domain.ErrAlreadyRegistered
	}
	f.regs[reg.ChatID] = reg
	return nil
}

func (f *fakeDirectory) Delete(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.regs[chatID]; !ok {
		return domain.ErrNotFound
	}
	delete(f.regs, chatID)
	return nil
}

type fakeCatalog struct {
	err error
}

func (f *fakeCatalog) Fetch(_ context.Context, _ domain.Provider, _ domain.Kind, id string) (domain.Metadata, error) {
	if f.err != nil {
		return domain.Metadata{}, f.err
	}
	summary := "summary of " + id
	return domain.Metadata{Title: "示例剧集", Summary: &summary}, nil
}

type fakeLedger struct {
	mu   sync.Mutex
	reqs []domain.NewRequest
}

func (f *fakeLedger) Submit(_ context.Context, n domain.NewRequest) (domain.MediaRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reqs {
		if r.Source() == n.Source() && r.MediaID == n.MediaID {
			return domain.MediaRequest{}, domain.ErrDuplicateRequest
		}
	}
	f.reqs = append(f.reqs, n)
	return domain.MediaRequest{ID: int64(len(f.reqs)), Source: n.Source(), MediaID: n.MediaID, Status: domain.StatusSubmitted}, nil
}

func (f *fakeLedger) ListAll(_ context.Context) ([]domain.RequestView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RequestView, 0, len(f.reqs))
	for i, r := range f.reqs {
		out = append(out, domain.RequestView{MediaRequest: domain.MediaRequest{
			ID: int64(i + 1), Source: r.Source(), MediaID: r.MediaID, RequestUser: r.RequestUser,
		}})
	}
	return out, nil
}

type harness struct {
	engine   *Engine
	msg      *fakeMessenger
	accounts *fakeAccounts
	dir      *fakeDirectory
	catalog  *fakeCatalog
	ledger   *fakeLedger
	timers   []func()
	delays   []time.Duration
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		msg:      &fakeMessenger{},
		accounts: &fakeAccounts{},
		dir:      &fakeDirectory{regs: map[int64]domain.Registration{}},
		catalog:  &fakeCatalog{},
		ledger:   &fakeLedger{},
	}
	opts := Options{
		Messenger: h.msg,
		Accounts:  h.accounts,
		Directory: h.dir,
		Catalog:   h.catalog,
		Ledger:    h.ledger,
		Admins:    []int64{900},
		AfterFunc: func(d time.Duration, f func()) {
			h.delays = append(h.delays, d)
			h.timers = append(h.timers, f)
		},
		NewRef: func() string { return "abcd1234" },
	}
	for _, m := range mutate {
		m(&opts)
	}
	h.engine = New(opts)
	return h
}

func (h *harness) do(chatID int64, in Intent) {
	h.engine.Handle(context.Background(), Update{ChatID: chatID, UserID: chatID, MessageID: 7, Private: chatID > 0, Intent: in})
}

func (h *harness) fireTimers() {
	for _, f := range h.timers {
		f()
	}
	h.timers = nil
}

func TestRegistrationSucceeds(t *testing.T) {
	h := newHarness(t)
	h.do(1, Command{Name: "register"})
	require.Equal(t, AwaitingUsername, h.engine.StateOf(1).Kind)
	require.Equal(t, msgAskUsername, h.msg.last().Text)

	h.do(1, Text{Text: "bob"})
	require.Equal(t, Start, h.engine.StateOf(1).Kind)
	require.Equal(t, msgRegistered, h.msg.last().Text)

	reg, err := h.dir.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "bob", reg.Username)
	require.Equal(t, "42", *reg.AccountID)

	h.do(1, Command{Name: "register"})
	require.Equal(t, msgAlreadyRegistered, h.msg.last().Text)
	require.Equal(t, Start, h.engine.StateOf(1).Kind)
}

func TestRegistrationRejectsSlashUsername(t *testing.T) {
	h := newHarness(t)
	h.do(1, Command{Name: "register"})
	h.do(1, Text{Text: "/bob"})
	require.Equal(t, AwaitingUsername, h.engine.StateOf(1).Kind)
	require.Equal(t, msgUsernameSlash, h.msg.last().Text)
	require.Empty(t, h.accounts.created)
}

func TestRegistrationProviderRejection(t *testing.T) {
	h := newHarness(t)
	h.accounts.createErr = &domain.RejectedError{Service: "emby", Reason: "user already exists"}
	h.do(1, Command{Name: "register"})
	h.do(1, Text{Text: "bob"})

	require.Equal(t, Start, h.engine.StateOf(1).Kind)
	text := h.msg.last().Text
	require.Contains(t, text, "注册失败。")
	require.Contains(t, text, "user already exists")
	require.Contains(t, text, "/register")
}

func TestRegistrationOutageShowsTagAndRef(t *testing.T) {
	h := newHarness(t)
	h.accounts.createErr = &domain.ExternalError{Service: "emby", Code: "EMBY", Status: 500, Err: errors.New("secret body")}
	h.do(1, Command{Name: "register"})
	h.do(1, Text{Text: "bob"})

	text := h.msg.last().Text
	require.Contains(t, text, "[EMBY#abcd1234]")
	require.NotContains(t, text, "secret body")
	require.Equal(t, Start, h.engine.StateOf(1).Kind)
}

func TestRegistrationPersistFailureRevokesAccount(t *testing.T) {
	h := newHarness(t)
	h.dir.createErr = &domain.PersistenceError{Op: "registrations.create", Err: errors.New("disk full")}
	h.do(1, Command{Name: "register"})
	h.do(1, Text{Text: "bob"})

	require.Equal(t, []string{"42"}, h.accounts.deleted)
	require.Contains(t, h.msg.last().Text, "[DB#abcd1234]")
}

func TestRequestFlowAndDuplicateConfirm(t *testing.T) {
	h := newHarness(t)
	h.do(1, Command{Name: "request"})
	require.Equal(t, AwaitingCatalogSource, h.engine.StateOf(1).Kind)
	require.Len(t, h.msg.last().Buttons[0], 2)

	h.do(1, Choice{Key: KeySource, Payload: "TMDB"})
	st := h.engine.StateOf(1)
	require.Equal(t, AwaitingMediaType, st.Kind)
	require.Equal(t, domain.ProviderTMDB, st.Provider)

	h.do(1, Choice{Key: KeyMediaType, Payload: "TV"})
	require.Equal(t, AwaitingMediaID, h.engine.StateOf(1).Kind)
	require.Equal(t, "请输入您要从 TMDB 请求的 电视剧 ID: ", h.msg.last().Text)

	h.do(1, Text{Text: "12a45"})
	require.Equal(t, AwaitingMediaID, h.engine.StateOf(1).Kind)
	require.Equal(t, msgMediaIDDigits, h.msg.last().Text)

	h.do(1, Text{Text: "12345"})
	st = h.engine.StateOf(1)
	require.Equal(t, AwaitingConfirmation, st.Kind)
	card := h.msg.last()
	require.Contains(t, card.Text, "示例剧集")
	require.Contains(t, card.Text, "https://www.themoviedb.org/tv/12345")
	confirm := card.Buttons[0][0]
	require.Equal(t, KeyConfirm, confirm.Key)
	require.Equal(t, "TMDB|TV|12345", confirm.Payload)

	h.do(1, Choice{Key: confirm.Key, Payload: confirm.Payload})
	require.Equal(t, Start, h.engine.StateOf(1).Kind)
	require.Equal(t, msgRequestSubmitted, h.msg.last().Text)
	require.Len(t, h.ledger.reqs, 1)
	require.Equal(t, "TMDB/TV", h.ledger.reqs[0].Source())
	require.Equal(t, "示例剧集", h.ledger.reqs[0].Metadata.Title)

	// pressing the same card again
	h.do(1, Choice{Key: confirm.Key, Payload: confirm.Payload})
	require.Equal(t, msgDuplicateRequest, h.msg.last().Text)
	require.Len(t, h.ledger.reqs, 1)
	require.Equal(t, Start, h.engine.StateOf(1).Kind)
}

func TestRequestFetchFailureReturnsToStart(t *testing.T) {
	h := newHarness(t)
	h.catalog.err = &domain.ExternalError{Service: "tmdb", Code: "TMDB_NET", Err: context.DeadlineExceeded}
	h.do(1, Command{Name: "request"})
	h.do(1, Choice{Key: KeySource, Payload: "TMDB"})
	h.do(1, Choice{Key: KeyMediaType, Payload: "MOVIE"})
	h.do(1, Text{Text: "603"})

	require.Equal(t, Start, h.engine.StateOf(1).Kind)
	require.Contains(t, h.msg.last().Text, "[TMDB_NET#abcd1234]")

	h.catalog.err = &domain.ExternalError{Service: "tmdb", Code: "TMDB", Status: 404, Err: errors.New("404")}
	h.do(1, Command{Name: "request"})
	h.do(1, Choice{Key: KeySource, Payload: "TMDB"})
	h.do(1, Choice{Key: KeyMediaType, Payload: "MOVIE"})
	h.do(1, Text{Text: "999"})
	require.Contains(t, h.msg.last().Text, msgMediaNotFound)
}

func TestStaleAndMisplacedInputs(t *testing.T) {
	h := newHarness(t)
	h.do(1, Choice{Key: KeySource, Payload: "TMDB"})
	require.Equal(t, msgStaleButton, h.msg.last().Text)
	require.Equal(t, Start, h.engine.StateOf(1).Kind)

	h.do(1, Command{Name: "request"})
	h.do(1, Text{Text: "TMDB"})
	require.Equal(t, msgUseButtons, h.msg.last().Text)
	require.Equal(t, AwaitingCatalogSource, h.engine.StateOf(1).Kind)

	h.do(1, Choice{Key: KeySource, Payload: "IMDB"})
	require.Equal(t, msgInvalidSource, h.msg.last().Text)
	require.Equal(t, AwaitingCatalogSource, h.engine.StateOf(1).Kind)

	h.do(1, Choice{Key: KeyCancel})
	require.Equal(t, msgCancelled, h.msg.last().Text)
	require.Equal(t, Start, h.engine.StateOf(1).Kind)
}

func TestCommandReplacesFlow(t *testing.T) {
	h := newHarness(t)
	h.do(1, Command{Name: "request"})
	h.do(1, Choice{Key: KeySource, Payload: "BGM.TV"})
	h.do(1, Command{Name: "help"})
	require.Equal(t, Start, h.engine.StateOf(1).Kind)
	require.Equal(t, msgHelp, h.msg.last().Text)

	h.do(1, Command{Name: "register"})
	require.Equal(t, AwaitingUsername, h.engine.StateOf(1).Kind)
	h.do(1, Command{Name: "cancel"})
	require.Equal(t, Start, h.engine.StateOf(1).Kind)
}

func TestUnknownCommandInPrivate(t *testing.T) {
	h := newHarness(t)
	h.do(1, Command{Name: "foo"})
	require.Equal(t, msgUnknownCommand, h.msg.last().Text)

	sent := len(h.msg.sent)
	h.do(-100, Text{Text: "hello group"})
	require.Len(t, h.msg.sent, sent)
}

func registered(h *harness, chatID int64, admin bool) {
	id := "acc-1"
	h.dir.regs[chatID] = domain.Registration{ChatID: chatID, Username: "bob", AccountID: &id, Admin: admin}
}

func TestDeletionRevokesThenDeletes(t *testing.T) {
	h := newHarness(t)
	registered(h, 1, false)

	h.do(1, Command{Name: "deleteuser"})
	require.Equal(t, AwaitingDeleteConfirmation, h.engine.StateOf(1).Kind)
	h.do(1, Text{Text: "confirm"})

	require.Equal(t, []string{"acc-1"}, h.accounts.deleted)
	_, err := h.dir.Get(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, msgDeleted, h.msg.last().Text)
}

func TestDeletionKeepsRegistrationWhenRevokeFails(t *testing.T) {
	h := newHarness(t)
	registered(h, 1, false)
	h.accounts.deleteErr = &domain.ExternalError{Service: "emby", Code: "EMBY_NET", Err: errors.New("refused")}

	h.do(1, Command{Name: "deleteuser"})
	h.do(1, Text{Text: "CONFIRM"})

	_, err := h.dir.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Contains(t, h.msg.last().Text, "[EMBY_NET#abcd1234]")
	require.Equal(t, Start, h.engine.StateOf(1).Kind)
}

func TestDeletionOtherInputCancels(t *testing.T) {
	h := newHarness(t)
	registered(h, 1, false)
	h.do(1, Command{Name: "deleteuser"})
	h.do(1, Text{Text: "yes"})
	require.Equal(t, msgCancelled, h.msg.last().Text)
	require.Empty(t, h.accounts.deleted)

	h.do(2, Command{Name: "deleteuser"})
	require.Equal(t, msgNotRegistered, h.msg.last().Text)
}

func TestResetPassword(t *testing.T) {
	h := newHarness(t)
	h.do(1, Command{Name: "resetpassword"})
	require.Equal(t, msgNotRegistered, h.msg.last().Text)

	registered(h, 1, false)
	h.do(1, Command{Name: "resetpassword"})
	require.Equal(t, []string{"acc-1"}, h.accounts.reset)
	require.Equal(t, msgPasswordReset, h.msg.last().Text)
}

func TestPrivateOnlyInGroupIsTransient(t *testing.T) {
	h := newHarness(t)
	h.do(-100, Command{Name: "register"})

	require.Equal(t, msgPrivateOnly, h.msg.last().Text)
	require.Equal(t, Start, h.engine.StateOf(-100).Kind)
	require.Equal(t, []time.Duration{5 * time.Second}, h.delays)
	require.Empty(t, h.msg.deleted)

	h.fireTimers()
	require.ElementsMatch(t, []int{7, 1001}, h.msg.deleted)
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t)
	h.do(1, Command{Name: "chatid"})
	require.Equal(t, msgNoPermission, h.msg.last().Text)

	h.do(900, Command{Name: "chatid"})
	require.Equal(t, "Chat ID: 900", h.msg.last().Text)

	registered(h, 5, true)
	_, err := h.ledger.Submit(context.Background(), domain.NewRequest{Provider: domain.ProviderBGM, Kind: domain.KindTV, MediaID: "1", RequestUser: 3})
	require.NoError(t, err)
	h.do(5, Command{Name: "requestlist"})
	require.Len(t, h.msg.docs, 1)
	csv := string(h.msg.docs[0].Data)
	require.True(t, strings.HasPrefix(csv, "id,source,media_id,request_user,status,title,created_at,updated_at\n"))
	require.Contains(t, csv, "1,BGM.TV/TV,1,3,submitted,")
}

func TestDisabledUserRefused(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.DisabledUsers = []int64{1}
		o.Now = func() time.Time { return time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC) }
	})
	h.do(1, Command{Name: "register"})
	require.Equal(t, msgNoPermission, h.msg.last().Text)
	require.Equal(t, Start, h.engine.StateOf(1).Kind)

	// 22:00 UTC is 17:00 in the hotel's zone
	h.engine.Handle(context.Background(), Update{ChatID: -100, UserID: 1, MessageID: 9, Intent: Command{Name: "checkin"}})
	require.Equal(t, msgCheckinFull, h.msg.last().Text)
}

func TestSubmitKeepsPerChatOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, chat := range []int64{1, 2, 3} {
		h.engine.Submit(ctx, Update{ChatID: chat, UserID: chat, Private: true, Intent: Command{Name: "register"}})
		h.engine.Submit(ctx, Update{ChatID: chat, UserID: chat, Private: true, Intent: Text{Text: "user"}})
	}
	h.engine.Wait()

	for _, chat := range []int64{1, 2, 3} {
		_, err := h.dir.Get(ctx, chat)
		require.NoError(t, err)
		require.Equal(t, Start, h.engine.StateOf(chat).Kind)
	}
}

func TestHelpInGroupIsTransient(t *testing.T) {
	h := newHarness(t)
	h.do(-100, Command{Name: "help"})

	require.Equal(t, msgSeeGroupIntro, h.msg.last().Text)
	require.Equal(t, []time.Duration{5 * time.Second}, h.delays)
	h.fireTimers()
	require.ElementsMatch(t, []int{7, 1001}, h.msg.deleted)

	h.do(1, Command{Name: "help"})
	require.Equal(t, msgHelp, h.msg.last().Text)
}

func TestConfirmIgnoredWhileAwaitingInput(t *testing.T) {
	h := newHarness(t)
	h.do(1, Command{Name: "request"})
	h.do(1, Choice{Key: KeySource, Payload: "TMDB"})
	h.do(1, Choice{Key: KeyMediaType, Payload: "TV"})
	require.Equal(t, AwaitingMediaID, h.engine.StateOf(1).Kind)

	h.do(1, Choice{Key: KeyConfirm, Payload: "TMDB|TV|12345"})
	require.Equal(t, msgStaleButton, h.msg.last().Text)
	require.Equal(t, AwaitingMediaID, h.engine.StateOf(1).Kind)
	require.Empty(t, h.ledger.reqs)

	h.do(2, Command{Name: "register"})
	h.do(2, Choice{Key: KeyConfirm, Payload: "TMDB|TV|12345"})
	require.Equal(t, AwaitingUsername, h.engine.StateOf(2).Kind)
	require.Empty(t, h.ledger.reqs)
}

type explodingDirectory struct {
	*fakeDirectory
	chatID int64
}

func (d explodingDirectory) Get(ctx context.Context, chatID int64) (domain.Registration, error) {
	if chatID == d.chatID {
		panic("directory exploded")
	}
	return d.fakeDirectory.Get(ctx, chatID)
}

func TestSubmitRecoversFromPanickingStep(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Directory = explodingDirectory{fakeDirectory: o.Directory.(*fakeDirectory), chatID: 1}
	})
	h.engine.states.Set(1, State{Kind: AwaitingMediaID})

	ctx := context.Background()
	h.engine.Submit(ctx, Update{ChatID: 1, UserID: 1, Private: true, Intent: Command{Name: "register"}})
	h.engine.Submit(ctx, Update{ChatID: 1, UserID: 1, Private: true, Intent: Command{Name: "help"}})
	h.engine.Submit(ctx, Update{ChatID: 2, UserID: 2, Private: true, Intent: Command{Name: "register"}})
	h.engine.Wait()

	var chat1 []string
	for _, s := range h.msg.sent {
		if s.chatID == 1 {
			chat1 = append(chat1, s.msg.Text)
		}
	}
	require.Len(t, chat1, 2)
	require.Contains(t, chat1[0], "[PANIC#abcd1234]")
	require.Equal(t, msgHelp, chat1[1])
	require.Equal(t, Start, h.engine.StateOf(1).Kind)
	require.Equal(t, AwaitingUsername, h.engine.StateOf(2).Kind)
}
