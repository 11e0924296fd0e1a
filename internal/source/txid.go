package source

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// base62 alphabet used to rotate the anti-replay transaction id
const txChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// TokenStore persists the rotating transaction id across runs.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
}

// FileTokenStore persists the token in a small JSON document.
type FileTokenStore struct {
	Path string
}

type tokenDoc struct {
	TransactionID string `json:"transaction_id"`
}

// Load reads the persisted token; a missing file yields "".
func (s *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token state: %w", err)
	}
	var doc tokenDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse token state: %w", err)
	}
	return doc.TransactionID, nil
}

// Save rewrites the token document.
func (s *FileTokenStore) Save(token string) error {
	data, err := json.Marshal(tokenDoc{TransactionID: token})
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o644)
}

// MemoryTokenStore keeps the token in memory, for tests.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// Load returns the stored token.
func (s *MemoryTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// Save replaces the stored token.
func (s *MemoryTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// TransactionID rotates the per-request anti-replay header value: a
// deterministic base62 increment with carry, persisted through the injected
// store so the sequence survives restarts.
type TransactionID struct {
	store   TokenStore
	mu      sync.Mutex
	current string
}

// NewTransactionID builds the rotator, preferring persisted state over the
// configured seed.
func NewTransactionID(store TokenStore, seed string) (*TransactionID, error) {
	current := seed
	if store != nil {
		persisted, err := store.Load()
		if err != nil {
			return nil, err
		}
		if persisted != "" {
			current = persisted
		}
	}
	return &TransactionID{store: store, current: current}, nil
}

// Next returns the current token and advances the sequence, persisting the
// new value for the next run.
func (t *TransactionID) Next() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.current
	t.current = incrementToken(t.current)
	if t.store != nil {
		if err := t.store.Save(t.current); err != nil {
			return "", fmt.Errorf("failed to persist token state: %w", err)
		}
	}
	return current, nil
}

// Current returns the token that the next call to Next will hand out.
func (t *TransactionID) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// incrementToken advances the last base62 character, carrying into earlier
// positions on overflow. Non-alphanumeric characters are skipped.
func incrementToken(token string) string {
	if token == "" {
		return token
	}

	chars := []byte(token)
	for i := len(chars) - 1; i >= 0; i-- {
		idx := strings.IndexByte(txChars, chars[i])
		if idx < 0 {
			continue
		}
		if idx < len(txChars)-1 {
			chars[i] = txChars[idx+1]
			return string(chars)
		}
		// Overflow, carry to previous position
		chars[i] = txChars[0]
	}
	return string(chars)
}
