package memory

import (
	"context"
	"fmt"
	"strconv"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// DataProvider implements domain.DataProvider over a map keyed by market
// object code and timestamp.
type DataProvider struct {
	mu     sync.RWMutex
	points map[string]map[int64]fixed.Int
}

var _ domain.DataProvider = (*DataProvider)(nil)

func NewDataProvider() *DataProvider {
	return &DataProvider{points: make(map[string]map[int64]fixed.Int)}
}

func (d *DataProvider) GetDataPoint(_ context.Context, code string, ts time.Time) (fixed.Int, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.points[code][ts.Unix()]
	return v, ok, nil
}

func (d *DataProvider) SetDataPoint(_ context.Context, code string, ts time.Time, value fixed.Int) error {
	if code == "" {
		return fmt.Errorf("memory: set data point: empty market object code")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.points[code] == nil {
		d.points[code] = make(map[int64]fixed.Int)
	}
	d.points[code][ts.Unix()] = value
	return nil
}

func (d *DataProvider) History(_ context.Context, code string, from, to time.Time) ([]domain.DataPoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	lo, hi := from.Unix(), to.Unix()
	out := make([]domain.DataPoint, 0)
	for sec, v := range d.points[code] {
		if sec >= lo && sec <= hi {
			out = append(out, domain.DataPoint{Timestamp: time.Unix(sec, 0).UTC(), Value: v})
		}
	}
	slices.SortFunc(out, func(a, b domain.DataPoint) int { return a.Timestamp.Compare(b.Timestamp) })
	return out, nil
}

// LockManager implements domain.LockManager within one process.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]uint64
	until map[string]time.Time
	seq   uint64
}

var _ domain.LockManager = (*LockManager)(nil)

func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]uint64), until: make(map[string]time.Time)}
}

// Acquire takes key for ttl. An expired lock is taken over; its stale
// unlock function then does nothing.
func (l *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if _, ok := l.held[key]; ok && now.Before(l.until[key]) {
		return nil, domain.ErrLockHeld
	}
	l.seq++
	token := l.seq
	l.held[key] = token
	l.until[key] = now.Add(ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == token {
				delete(l.held, key)
				delete(l.until, key)
			}
		})
	}, nil
}

// SignalBus implements domain.SignalBus. Subscribers that fall behind
// miss messages; streams keep everything.
type SignalBus struct {
	mu      sync.Mutex
	subs    map[string][]chan []byte
	streams map[string][]domain.StreamMessage
}

var _ domain.SignalBus = (*SignalBus)(nil)

func NewSignalBus() *SignalBus {
	return &SignalBus{
		subs:    make(map[string][]chan []byte),
		streams: make(map[string][]domain.StreamMessage),
	}
}

func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that is closed when ctx is done.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// StreamAppend assigns ids of the form "<seq>-0".
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := strconv.Itoa(len(b.streams[stream])+1) + "-0"
	b.streams[stream] = append(b.streams[stream], domain.StreamMessage{ID: id, Payload: payload})
	return nil
}

// StreamRead returns up to count messages after lastID. An empty lastID or
// "0" reads from the start.
func (b *SignalBus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	after := 0
	if lastID != "" && lastID != "0" {
		n, err := strconv.Atoi(strings.TrimSuffix(lastID, "-0"))
		if err != nil {
			return nil, fmt.Errorf("memory: stream read: bad id %q", lastID)
		}
		after = n
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.streams[stream]
	if after >= len(msgs) {
		return nil, nil
	}
	msgs = msgs[after:]
	if count > 0 && count < len(msgs) {
		msgs = msgs[:count]
	}
	out := make([]domain.StreamMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

var _ domain.AuditStore = (*AuditStore)(nil)

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	return page(out, opts), nil
}
