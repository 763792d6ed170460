package comments

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/threadline/internal/ids"
	"github.com/MarcoPoloResearchLab/threadline/internal/notifications"
	"github.com/MarcoPoloResearchLab/threadline/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testEpoch = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(value time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = value
}

func (c *testClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

type mapCountCache struct {
	mu     sync.Mutex
	values map[string][]byte
	// onFill runs after a count entry is stored, outside the lock.
	onFill func()
}

func newMapCountCache() *mapCountCache {
	return &mapCountCache{values: make(map[string][]byte)}
}

func (c *mapCountCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	return value, ok, nil
}

func (c *mapCountCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	c.values[key] = value
	hook := c.onFill
	c.mu.Unlock()
	if hook != nil && strings.HasPrefix(key, "comments:count:") {
		hook()
	}
	return nil
}

func (c *mapCountCache) Add(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = value
	return true, nil
}

func (c *mapCountCache) countEntries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := 0
	for key := range c.values {
		if strings.HasPrefix(key, "comments:count:") {
			entries++
		}
	}
	return entries
}

type failingNotifier struct {
	calls int
}

func (n *failingNotifier) NotifyReply(context.Context, notifications.Reply) (notifications.Notification, error) {
	n.calls++
	return notifications.Notification{}, errors.New("ledger unavailable")
}

type testFixture struct {
	db      *gorm.DB
	clock   *testClock
	service *Service
	ledger  *notifications.Ledger
	cache   *mapCountCache
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "comments.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &Comment{}, &notifications.Notification{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	clock := &testClock{now: testEpoch}
	ledger, err := notifications.NewLedger(notifications.LedgerConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: ids.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	cache := newMapCountCache()
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: ids.NewUUIDProvider(),
		Notifier:   ledger,
		CountCache: cache,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return &testFixture{db: db, clock: clock, service: service, ledger: ledger, cache: cache}
}

func (f *testFixture) mustUser(t *testing.T, id, name string) users.User {
	t.Helper()
	user := users.User{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: "hash-" + id,
		Name:         name,
		CreatedAt:    testEpoch,
		UpdatedAt:    testEpoch,
	}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func (f *testFixture) mustCreate(t *testing.T, request CreateRequest) Item {
	t.Helper()
	item, err := f.service.Create(context.Background(), request)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return item
}

func (f *testFixture) commentCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&Comment{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}
