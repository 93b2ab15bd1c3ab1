package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "miunlock/pkg/logx"
)

// legacyFile is the pre-JSON credentials format: one token per line.
const legacyFile = "token.txt"

// ErrNotFound means neither the credentials file nor the legacy file exists.
var ErrNotFound = errors.New("no credentials found")

// Pair holds the two account credentials the race alternates over. Both come
// from the same account but from two separate browser sessions, so the
// service sees two independent logins.
type Pair struct {
	Firefox string `json:"firefox"`
	Chrome  string `json:"chrome"`
}

// Credentials returns the pair in worker assignment order.
func (p Pair) Credentials() []string { return []string{p.Firefox, p.Chrome} }

// Primary returns the credential used for one-off status checks.
func (p Pair) Primary() string { return p.Firefox }

// Valid reports whether a token plausibly is a full cookie value rather than
// a truncated paste.
func Valid(token string) bool {
	return len(strings.TrimSpace(token)) >= 20
}

// Store reads, caches and writes the credentials file, and fans out reloads
// to subscribers while the process waits for the boundary.
type Store struct {
	path string
	log  logx.Logger

	mu  sync.RWMutex
	cur Pair
	set bool

	// subsMu guards the subscriber list and ensures we never send on a
	// channel being closed concurrently in Unsubscribe.
	subsMu sync.Mutex
	subs   []chan Pair
}

func NewStore(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, log: log}
}

// Parse reads the credentials without committing them. The JSON file wins; a
// path ending in .txt, or a legacy token.txt next to a missing JSON file, is
// read as the two-line legacy format.
func (s *Store) Parse() (Pair, error) {
	if strings.EqualFold(filepath.Ext(s.path), ".txt") {
		return parseLegacy(s.path)
	}
	if _, err := os.Stat(s.path); err == nil {
		return parseJSON(s.path)
	}
	legacy := filepath.Join(filepath.Dir(s.path), legacyFile)
	if _, err := os.Stat(legacy); err == nil {
		return parseLegacy(legacy)
	}
	return Pair{}, fmt.Errorf("%w: create %s with {\"firefox\": \"<new_bbs_serviceToken>\", \"chrome\": \"<popRunToken>\"}", ErrNotFound, s.path)
}

func parseJSON(path string) (Pair, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pair{}, fmt.Errorf("read %s: %w", path, err)
	}
	var p Pair
	if err := json.Unmarshal(b, &p); err != nil {
		return Pair{}, fmt.Errorf("parse %s: %w", path, err)
	}
	p.Firefox = strings.TrimSpace(p.Firefox)
	p.Chrome = strings.TrimSpace(p.Chrome)
	if !Valid(p.Firefox) || !Valid(p.Chrome) {
		return Pair{}, fmt.Errorf("credentials in %s look invalid: paste the full cookie values, not the cookie names", path)
	}
	return p, nil
}

func parseLegacy(path string) (Pair, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Pair{}, fmt.Errorf("%w: %s does not exist", ErrNotFound, path)
		}
		return Pair{}, fmt.Errorf("read %s: %w", path, err)
	}
	var lines []string
	for _, l := range strings.Split(string(b), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return Pair{}, fmt.Errorf("%s must have 2 lines (Firefox token, Chrome token)", path)
	}
	return Pair{Firefox: lines[0], Chrome: lines[1]}, nil
}

// Commit replaces the cached pair.
func (s *Store) Commit(p Pair) {
	s.mu.Lock()
	s.cur = p
	s.set = true
	s.mu.Unlock()
}

// Load parses and commits in one step.
func (s *Store) Load() (Pair, error) {
	p, err := s.Parse()
	if err != nil {
		return Pair{}, err
	}
	s.Commit(p)
	return p, nil
}

// Get returns the last committed pair.
func (s *Store) Get() (Pair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur, s.set
}

// Save writes the pair as JSON with owner-only permissions. The write is
// atomic: a rename replaces the old file so a concurrent reader never sees a
// partial document.
func (s *Store) Save(p Pair) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	s.Commit(p)
	return nil
}

// Subscribe returns a channel receiving every committed reload. Pass the
// channel back to Unsubscribe when done.
func (s *Store) Subscribe(buffer int) chan Pair {
	ch := make(chan Pair, buffer)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *Store) Unsubscribe(ch chan Pair) {
	if ch == nil {
		return
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for i, cur := range s.subs {
		if cur == ch {
			last := len(s.subs) - 1
			s.subs[i] = s.subs[last]
			s.subs[last] = nil
			s.subs = s.subs[:last]
			close(ch)
			return
		}
	}
}

func (s *Store) publish(p Pair) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- p:
		default:
			// Slow subscriber: drop the oldest queued pair, then push the
			// newest. Only the latest credentials matter.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
}

// reload re-reads the file after a change event. Parse failures keep the old
// pair: a half-written file must never evict working credentials.
func (s *Store) reload() {
	p, err := s.Parse()
	if err != nil {
		s.log.Warn("credentials reload failed, keeping previous", logx.String("path", s.path), logx.Err(err))
		return
	}
	if old, ok := s.Get(); ok && old == p {
		s.log.Debug("credentials unchanged, skipping publish", logx.String("path", s.path))
		return
	}
	s.Commit(p)
	s.publish(p)
	s.log.Info("credentials reloaded", logx.String("path", s.path))
}
