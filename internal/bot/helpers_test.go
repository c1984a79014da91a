package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/awnumar/memguard"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deadline-bot/internal/portal"
	"deadline-bot/internal/repository"
	"deadline-bot/internal/service"
)

type fakeAPI struct {
	mu       sync.Mutex
	nextID   int
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopOnce sync.Once
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.stopOnce.Do(func() { close(f.updates) })
}

func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeAPI) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	msgs := f.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func (f *fakeAPI) edits() []tgbotapi.EditMessageTextConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.EditMessageTextConfig
	for _, c := range f.requests {
		if edit, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, edit)
		}
	}
	return out
}

func (f *fakeAPI) callbackAnswers() []tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, c := range f.requests {
		if answer, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, answer)
		}
	}
	return out
}

func (f *fakeAPI) markupEdits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.requests {
		if _, ok := c.(tgbotapi.EditMessageReplyMarkupConfig); ok {
			n++
		}
	}
	return n
}

type stubFetcher struct {
	result *portal.Result
	err    error
}

func (f *stubFetcher) Fetch(context.Context, portal.Credentials) (*portal.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type plainCipher struct{}

func (plainCipher) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (plainCipher) Decrypt(s string) (string, error) {
	v, ok := strings.CutPrefix(s, "enc:")
	if !ok {
		return "", errors.New("bad ciphertext")
	}
	return v, nil
}

type fixture struct {
	bot       *Bot
	api       *fakeAPI
	users     *repository.UserRepository
	deadlines *service.DeadlineService
	syncSvc   *service.SyncService
	fetcher   *stubFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB(fmt.Sprintf("file:bot_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := zap.NewNop()
	users := repository.NewUserRepository(db)
	deadlineRepo := repository.NewDeadlineRepository(db)
	api := newFakeAPI()
	messenger := NewMessenger(api, 0, log)
	fetcher := &stubFetcher{result: &portal.Result{}}

	deadlines := service.NewDeadlineService(users, deadlineRepo, time.UTC, log)
	syncSvc := service.NewSyncService(users, deadlineRepo, service.NewReconciler(deadlineRepo, log),
		fetcher, plainCipher{}, messenger, 0, time.UTC, log)

	b := New(api, messenger, users, deadlines, syncSvc, syncSvc, Options{PortalBaseURL: "https://pro.guap.ru"}, log)
	return &fixture{bot: b, api: api, users: users, deadlines: deadlines, syncSvc: syncSvc, fetcher: fetcher}
}

func (f *fixture) register(t *testing.T, userID int64) {
	t.Helper()
	pw := memguard.NewBufferFromBytes([]byte("secret"))
	defer pw.Destroy()
	_, err := f.syncSvc.Register(context.Background(), userID, "student", "login", pw)
	require.NoError(t, err)
}

func (f *fixture) addCustom(t *testing.T, userID int64, course string, inDays int) uint {
	t.Helper()
	due := time.Now().UTC().AddDate(0, 0, inDays)
	d, err := f.deadlines.AddCustom(context.Background(), userID, course, "task", due)
	require.NoError(t, err)
	return d.ID
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "student"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: userID, UserName: "student"},
		Message: &tgbotapi.Message{
			MessageID: 77,
			Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		},
		Data: data,
	}}
}
