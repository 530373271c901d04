package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/foxzi/newsflash/internal/models"
	"github.com/foxzi/newsflash/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memStore is an in-memory SubscriberStore
type memStore struct {
	mu      sync.Mutex
	subs    map[string]*models.Subscriber
	nextID  int
	failGet error
	failNew error
	failRec error
	records [][]models.SendRecord
}

func newMemStore() *memStore {
	return &memStore{subs: make(map[string]*models.Subscriber)}
}

func (m *memStore) add(addr string, active bool, at time.Time) *models.Subscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s := &models.Subscriber{
		ID:           fmt.Sprintf("sub-%03d", m.nextID),
		Email:        addr,
		Active:       active,
		Token:        "token-" + addr,
		SubscribedAt: at,
	}
	m.subs[addr] = s
	return s
}

func (m *memStore) GetByEmail(ctx context.Context, addr string) (*models.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	if s, ok := m.subs[addr]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (m *memStore) GetByToken(ctx context.Context, token string) (*models.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.Token == token {
			c := *s
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) Create(ctx context.Context, sub *models.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNew != nil {
		return m.failNew
	}
	if _, ok := m.subs[sub.Email]; ok {
		return repository.ErrConflict
	}
	m.nextID++
	sub.ID = fmt.Sprintf("sub-%03d", m.nextID)
	c := *sub
	m.subs[sub.Email] = &c
	return nil
}

func (m *memStore) find(id string) *models.Subscriber {
	for _, s := range m.subs {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (m *memStore) Reactivate(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.find(id)
	if s == nil {
		return repository.ErrNotFound
	}
	s.Active = true
	s.SubscribedAt = at
	return nil
}

func (m *memStore) Deactivate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.find(id)
	if s == nil {
		return repository.ErrNotFound
	}
	s.Active = false
	return nil
}

func (m *memStore) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subscriber
	for _, s := range m.subs {
		if s.Active {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubscribedAt.Equal(out[j].SubscribedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubscribedAt.Before(out[j].SubscribedAt)
	})
	return out, nil
}

func (m *memStore) RecordSends(ctx context.Context, records []models.SendRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRec != nil {
		return 0, m.failRec
	}
	m.records = append(m.records, records)
	n := 0
	for _, r := range records {
		if s, ok := m.subs[r.Email]; ok {
			at := r.SentAt
			s.LastSentAt = &at
			s.SentCount++
			n++
		}
	}
	return n, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *memStore) get(addr string) models.Subscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.subs[addr]
}

// memLog is an in-memory DeliveryLog that enforces pending -> terminal
type memLog struct {
	mu         sync.Mutex
	entries    []*models.DeliveryLogEntry
	failCreate error
}

func (l *memLog) Create(ctx context.Context, entry *models.DeliveryLogEntry) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCreate != nil {
		return "", l.failCreate
	}
	if entry.Status != models.DeliveryPending {
		return "", repository.ErrInvalidTransition
	}
	c := *entry
	c.ID = fmt.Sprintf("log-%03d", len(l.entries)+1)
	l.entries = append(l.entries, &c)
	return c.ID, nil
}

func (l *memLog) Complete(ctx context.Context, id string, status models.DeliveryStatus, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.ID != id {
			continue
		}
		if !e.Status.CanTransition(status) {
			return repository.ErrInvalidTransition
		}
		e.Status = status
		e.Error = detail
		return nil
	}
	return repository.ErrNotFound
}

func (l *memLog) all() []models.DeliveryLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.DeliveryLogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return out
}

// fakeMailer records sends and fails for addresses in fail
type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	fail map[string]error
	all  error
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.all != nil {
		return f.all
	}
	if err, ok := f.fail[to]; ok {
		return err
	}
	f.sent = append(f.sent, to)
	return nil
}

func (f *fakeMailer) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// countingObserver tallies observer callbacks
type countingObserver struct {
	deliveries map[string]int
	subscribes map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{deliveries: map[string]int{}, subscribes: map[string]int{}}
}

func (o *countingObserver) DeliveryCompleted(category models.Category, status models.DeliveryStatus) {
	o.deliveries[string(category)+"/"+string(status)]++
}

func (o *countingObserver) SubscribeCompleted(outcome string) {
	o.subscribes[outcome]++
}

var errBoom = errors.New("boom")
