package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const lockTimeout = 5 * time.Second

// TokenStore persists the positional token list: entry i belongs to account i.
type TokenStore struct {
	path string
	lock *flock.Flock
	log  *zap.Logger
	mu   sync.Mutex
}

func NewTokenStore(path, lockPath string) *TokenStore {
	if lockPath == "" {
		lockPath = path + ".lock"
	}
	return &TokenStore{path: filepath.Clean(path), lock: flock.New(lockPath), log: zap.NewNop()}
}

// WithLogger sets the logger that reports unreadable token files.
func (s *TokenStore) WithLogger(log *zap.Logger) *TokenStore {
	if log != nil {
		s.log = log
	}
	return s
}

func (s *TokenStore) Path() string { return s.path }

// Load returns exactly n tokens. A missing, unreadable, empty or malformed
// file reads as n empty entries; surplus entries are dropped. Only a
// cancelled context is an error.
func (s *TokenStore) Load(ctx context.Context, n int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	out := make([]string, n)

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("token store unreadable, every account will log in", zap.String("path", s.path), zap.Error(err))
		}
		return out, nil
	}
	var stored []*string
	if err := json.Unmarshal(buf, &stored); err != nil {
		s.log.Warn("token store malformed, every account will log in", zap.String("path", s.path), zap.Error(err))
		return out, nil
	}
	for i := 0; i < n && i < len(stored); i++ {
		if stored[i] != nil {
			out[i] = *stored[i]
		}
	}
	return out, nil
}

// Save rewrites the whole token list under the cross-process lock.
func (s *TokenStore) Save(ctx context.Context, tokens []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tokens == nil {
		tokens = []string{}
	}
	payload, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.lock.Path()), storeDirMode); err != nil {
		return fmt.Errorf("create token lock directory: %w", err)
	}
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock token store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock token store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := writeAtomic(s.path, payload, secretFileMod); err != nil {
		return fmt.Errorf("save token store: %w", err)
	}
	return nil
}
