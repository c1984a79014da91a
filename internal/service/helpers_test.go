package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"deadline-bot/internal/portal"
	"deadline-bot/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type sentMessage struct {
	ChatID int64
	Text   string
}

type recordingSender struct {
	mu      sync.Mutex
	failFor map[int64]bool
	sent    []sentMessage
}

func (s *recordingSender) Send(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[chatID] {
		return errors.New("forbidden: bot was blocked by the user")
	}
	s.sent = append(s.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type stubFetcher struct {
	mu     sync.Mutex
	result *portal.Result
	err    error
	calls  int
	logins []string
}

func (f *stubFetcher) Fetch(_ context.Context, creds portal.Credentials) (*portal.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.logins = append(f.logins, creds.Login+":"+creds.Password.String())
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// plainCipher marks values instead of encrypting them.
type plainCipher struct{}

func (plainCipher) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (plainCipher) Decrypt(s string) (string, error) {
	v, ok := strings.CutPrefix(s, "enc:")
	if !ok {
		return "", errors.New("bad ciphertext")
	}
	return v, nil
}
