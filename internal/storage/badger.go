package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

const userKeyPrefix = "user/"

// BadgerConfig configures a BadgerUserStore.
type BadgerConfig struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir      string
	InMemory bool

	// EncryptionKey enables at-rest encryption when it is 16, 24 or 32
	// bytes long.
	EncryptionKey []byte

	GCInterval  time.Duration
	GCThreshold float64
	SyncWrites  bool
}

// DefaultBadgerConfig returns the configuration used for dir.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:         dir,
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		SyncWrites:  true,
	}
}

// BadgerUserStore implements UserStore on Badger v3. Each user is a JSON
// document stored under "user/<name>".
type BadgerUserStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger
	now    func() time.Time

	gcRuns      atomic.Uint64
	metricsOnce sync.Once

	closed    atomic.Bool
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// OpenBadgerUserStore opens or creates a store.
func OpenBadgerUserStore(cfg BadgerConfig, logger *slog.Logger) (*BadgerUserStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "userstore")

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	if len(cfg.EncryptionKey) > 0 {
		switch len(cfg.EncryptionKey) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("badger: encryption key must be 16, 24 or 32 bytes, got %d", len(cfg.EncryptionKey))
		}
		opts = opts.WithEncryptionKey(cfg.EncryptionKey).WithIndexCacheSize(16 << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerUserStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.InMemory || cfg.GCInterval <= 0 {
		close(s.doneCh)
	} else {
		go s.gcLoop()
	}

	logger.Info("user store opened", "dir", cfg.Dir, "in_memory", cfg.InMemory, "encrypted", len(cfg.EncryptionKey) > 0)
	return s, nil
}

func userKey(name string) []byte {
	return []byte(userKeyPrefix + name)
}

// Get implements UserStore.
func (s *BadgerUserStore) Get(_ context.Context, name string) (*User, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var u User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &u)
		})
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Put implements UserStore.
func (s *BadgerUserStore) Put(_ context.Context, u *User) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := u.Validate(); err != nil {
		return err
	}
	rec := u.Clone()
	rec.UpdatedAt = s.now().UTC()

	return s.db.Update(func(txn *badger.Txn) error {
		key := userKey(rec.Name)
		item, err := txn.Get(key)
		switch {
		case err == nil:
			var prev User
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &prev) }); err != nil {
				return err
			}
			rec.CreatedAt = prev.CreatedAt
		case errors.Is(err, badger.ErrKeyNotFound):
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = rec.UpdatedAt
			}
		default:
			return err
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Delete implements UserStore.
func (s *BadgerUserStore) Delete(_ context.Context, name string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := userKey(name)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// List implements UserStore.
func (s *BadgerUserStore) List(_ context.Context) ([]*User, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var users []*User
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var u User
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &u) }); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			users = append(users, &u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortUsers(users)
	return users, nil
}

// GC runs value log garbage collection until Badger reports nothing left
// to rewrite. It returns the number of rewrites performed.
func (s *BadgerUserStore) GC() (int, error) {
	if s.cfg.InMemory {
		return 0, nil
	}
	runs := 0
	for {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return runs, fmt.Errorf("gc: %w", err)
		}
		runs++
	}
	s.gcRuns.Add(uint64(runs))
	return runs, nil
}

// RegisterMetrics exposes database size and GC activity on reg. Repeated
// calls and a nil reg are ignored.
func (s *BadgerUserStore) RegisterMetrics(reg prometheus.Registerer, namespace string) error {
	if reg == nil {
		return nil
	}
	var err error
	s.metricsOnce.Do(func() {
		size := func(lsm bool) func() float64 {
			return func() float64 {
				l, v := s.db.Size()
				if lsm {
					return float64(l)
				}
				return float64(v)
			}
		}
		collectors := []prometheus.Collector{
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "userstore",
				Name:      "lsm_size_bytes",
				Help:      "Badger LSM tree size in bytes.",
			}, size(true)),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "userstore",
				Name:      "value_log_size_bytes",
				Help:      "Badger value log size in bytes.",
			}, size(false)),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "userstore",
				Name:      "gc_rewrites_total",
				Help:      "Value log files rewritten by garbage collection.",
			}, func() float64 { return float64(s.gcRuns.Load()) }),
		}
		for _, c := range collectors {
			if err = reg.Register(c); err != nil {
				return
			}
		}
	})
	return err
}

// Close stops the GC loop and closes the database.
func (s *BadgerUserStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopCh)
		<-s.doneCh
		if cerr := s.db.Close(); cerr != nil {
			err = fmt.Errorf("close db: %w", cerr)
		}
		s.logger.Info("user store closed")
	})
	return err
}

func (s *BadgerUserStore) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if runs, err := s.GC(); err != nil {
				s.logger.Error("user store gc failed", "error", err)
			} else if runs > 0 {
				s.logger.Debug("user store gc completed", "rewrites", runs)
			}
		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface. Badger's
// informational chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
