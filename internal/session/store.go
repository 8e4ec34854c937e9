package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store manages identity and conversation persistence under ~/.inquest.
type Store struct {
	// BaseDir is the root for all persisted data.
	BaseDir string
}

// Record is one transcript entry in a conversation log.
type Record struct {
	// Role is "user" or "agent".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// UserID is the identity the message was sent under.
	UserID string `json:"user_id"`
	// HasError marks agent turns that ended in an error.
	HasError bool `json:"has_error,omitempty"`
	// ExtraData carries citations and reasoning payloads.
	ExtraData map[string]any `json:"extra_data,omitempty"`
	// CreatedAt is a unix timestamp in seconds.
	CreatedAt int64 `json:"created_at"`
}

// NewStore constructs a Store using the default base directory.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return &Store{BaseDir: filepath.Join(home, ".inquest")}, nil
}

// identityPath is where the anonymous user id persists across conversations.
func (s *Store) identityPath() string {
	return filepath.Join(s.BaseDir, "identity")
}

// SessionPath returns the JSONL transcript path for a session.
func (s *Store) SessionPath(sessionID string) string {
	return filepath.Join(s.BaseDir, "sessions", sessionID+".jsonl")
}

// LoadIdentity returns the persisted anonymous user id, if any.
func (s *Store) LoadIdentity() (string, error) {
	raw, err := os.ReadFile(s.identityPath())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// SaveIdentity persists the anonymous user id for this profile.
// It survives conversation resets.
func (s *Store) SaveIdentity(userID string) error {
	if userID == "" {
		return errors.New("user id required")
	}
	if err := os.MkdirAll(s.BaseDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(s.identityPath(), []byte(userID), 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

// AppendRecord writes a transcript entry for the session.
func (s *Store) AppendRecord(sessionID string, record Record) error {
	if sessionID == "" {
		return errors.New("session id required")
	}
	path := s.SessionPath(sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer file.Close()

	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal transcript record: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write transcript record: %w", err)
	}
	return nil
}

// LoadRecords reads all transcript entries for a session.
// Malformed lines are skipped so partial writes do not poison a transcript.
func (s *Store) LoadRecords(sessionID string) ([]Record, error) {
	file, err := os.Open(s.SessionPath(sessionID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	// Large agent responses need more than the default scanner buffer.
	const maxRecordSize = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return records, nil
}

// SessionOwner returns the user id the session's transcript belongs to.
func (s *Store) SessionOwner(sessionID string) (string, error) {
	records, err := s.LoadRecords(sessionID)
	if err != nil {
		return "", err
	}
	for _, record := range records {
		if record.UserID != "" {
			return record.UserID, nil
		}
	}
	return "", errors.New("session has no owner record")
}

// RemoveSession deletes a session transcript.
func (s *Store) RemoveSession(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id required")
	}
	err := os.Remove(s.SessionPath(sessionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// SaveLastSession stores the most recent session id for this profile.
func (s *Store) SaveLastSession(sessionID string) error {
	path := filepath.Join(s.BaseDir, "last_session")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(sessionID), 0o600); err != nil {
		return fmt.Errorf("write last session: %w", err)
	}
	return nil
}

// LoadLastSession returns the most recent session id for this profile.
func (s *Store) LoadLastSession() (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.BaseDir, "last_session"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// ListSessions returns recent session ids sorted by modification time desc.
func (s *Store) ListSessions(limit int) ([]string, error) {
	dir := filepath.Join(s.BaseDir, "sessions")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	type entry struct {
		Name string
		Time time.Time
	}

	var list []entry
	for _, item := range entries {
		if item.IsDir() {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(item.Name(), filepath.Ext(item.Name()))
		list = append(list, entry{Name: name, Time: info.ModTime()})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Time.After(list[j].Time)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	result := make([]string, 0, len(list))
	for _, item := range list {
		result = append(result, item.Name)
	}
	return result, nil
}
