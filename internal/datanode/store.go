// Package datanode implements the data-node role: a durable file-backed
// replica of users and chatroom ownership, a per-chatroom append-only
// message log, and the 2PC participant protocol over that state.
package datanode

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/metrics"
	"go.uber.org/zap"
)

// Store holds the in-memory users/chatrooms maps and the durable file tree
// backing them, per spec §3/§6. File writes are serialized through a
// single write mutex; chatrooms.txt's delete path is the only truncating
// rewrite, every other write appends.
type Store struct {
	dir string

	usersMu sync.RWMutex
	users   map[string]string // username -> password

	roomsMu sync.RWMutex
	rooms   map[string]string // chatroom -> owner_username

	writeMu sync.Mutex
}

// NewStore opens (creating if necessary) the durable file tree rooted at
// dir and loads its current contents into memory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "chatlogs"), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &Store{
		dir:   dir,
		users: make(map[string]string),
		rooms: make(map[string]string),
	}

	if err := s.loadUsers(); err != nil {
		return nil, err
	}
	if err := s.loadChatrooms(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) usersPath() string     { return filepath.Join(s.dir, "users.txt") }
func (s *Store) chatroomsPath() string { return filepath.Join(s.dir, "chatrooms.txt") }
func (s *Store) chatlogPath(chatroom string) string {
	return filepath.Join(s.dir, "chatlogs", chatroom+".txt")
}

func (s *Store) loadUsers() error {
	f, err := os.OpenFile(s.usersPath(), os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open users.txt: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		username, password, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		s.users[username] = password
	}
	return scanner.Err()
}

func (s *Store) loadChatrooms() error {
	f, err := os.OpenFile(s.chatroomsPath(), os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open chatrooms.txt: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		chatroom, owner, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		s.rooms[chatroom] = owner
	}
	return scanner.Err()
}

// KnownChatrooms returns every chatroom name currently held on disk, used
// to replay placements to the coordinator on registration.
func (s *Store) KnownChatrooms() []string {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	return names
}

// UserExists reports whether username has a record.
func (s *Store) UserExists(username string) bool {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	_, ok := s.users[username]
	return ok
}

// VerifyUser reports whether (username, password) matches an existing record.
func (s *Store) VerifyUser(username, password string) bool {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	pw, ok := s.users[username]
	return ok && pw == password
}

// ChatroomExists reports whether chatroom has an ownership record.
func (s *Store) ChatroomExists(chatroom string) bool {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	_, ok := s.rooms[chatroom]
	return ok
}

// VerifyOwnership reports whether username owns chatroom.
func (s *Store) VerifyOwnership(chatroom, username string) bool {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	owner, ok := s.rooms[chatroom]
	return ok && owner == username
}

// ApplyCreateUser idempotently creates a user record, appending to users.txt.
func (s *Store) ApplyCreateUser(ctx context.Context, username, password string) error {
	s.usersMu.Lock()
	if _, exists := s.users[username]; exists {
		s.usersMu.Unlock()
		return nil
	}
	s.users[username] = password
	s.usersMu.Unlock()

	return s.appendLine(ctx, s.usersPath(), fmt.Sprintf("%s:%s", username, password))
}

// ApplyCreateChatroom idempotently creates a chatroom ownership record and
// its empty chat log.
func (s *Store) ApplyCreateChatroom(ctx context.Context, chatroom, owner string) error {
	s.roomsMu.Lock()
	if _, exists := s.rooms[chatroom]; exists {
		s.roomsMu.Unlock()
		return nil
	}
	s.rooms[chatroom] = owner
	s.roomsMu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	if err := s.appendLineLocked(s.chatroomsPath(), fmt.Sprintf("%s:%s", chatroom, owner)); err != nil {
		return err
	}
	f, err := os.OpenFile(s.chatlogPath(chatroom), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create chat log for %q: %w", chatroom, err)
	}
	f.Close()
	metrics.FileAppendDuration.WithLabelValues("chatrooms.txt").Observe(time.Since(start).Seconds())
	return nil
}

// ApplyDeleteChatroom idempotently removes a chatroom's ownership record
// (truncating rewrite of chatrooms.txt) and its chat log file.
func (s *Store) ApplyDeleteChatroom(ctx context.Context, chatroom string) error {
	s.roomsMu.Lock()
	if _, exists := s.rooms[chatroom]; !exists {
		s.roomsMu.Unlock()
		return nil
	}
	delete(s.rooms, chatroom)
	snapshot := make(map[string]string, len(s.rooms))
	for k, v := range s.rooms {
		snapshot[k] = v
	}
	s.roomsMu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.rewriteChatroomsLocked(snapshot); err != nil {
		return err
	}
	if err := os.Remove(s.chatlogPath(chatroom)); err != nil && !os.IsNotExist(err) {
		logging.Warn(ctx, "failed to remove chat log file", zap.String("chatroom", chatroom), zap.Error(err))
	}
	return nil
}

// ApplyLogMessage appends a pre-formatted line to a chatroom's log. This op
// never checks existence — messages for a deleted chatroom are discarded
// silently if the file is gone, matching the spec's stated ordering gap.
func (s *Store) ApplyLogMessage(ctx context.Context, chatroom, line string) error {
	start := time.Now()
	defer func() {
		metrics.FileAppendDuration.WithLabelValues("chatlog").Observe(time.Since(start).Seconds())
	}()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	f, err := os.OpenFile(s.chatlogPath(chatroom), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Warn(ctx, "log message for vanished chatroom discarded", zap.String("chatroom", chatroom))
			return nil
		}
		return fmt.Errorf("open chat log for %q: %w", chatroom, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append chat log for %q: %w", chatroom, err)
	}
	return nil
}

func (s *Store) appendLine(ctx context.Context, path, line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	err := s.appendLineLocked(path, line)
	metrics.FileAppendDuration.WithLabelValues(filepath.Base(path)).Observe(time.Since(start).Seconds())
	return err
}

func (s *Store) appendLineLocked(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return nil
}

// rewriteChatroomsLocked truncates and rewrites chatrooms.txt from a
// snapshot of the surviving map, in map iteration order, per spec §6.
// Caller must hold writeMu.
func (s *Store) rewriteChatroomsLocked(surviving map[string]string) error {
	f, err := os.OpenFile(s.chatroomsPath(), os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("truncate chatrooms.txt: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for chatroom, owner := range surviving {
		if _, err := fmt.Fprintf(w, "%s:%s\n", chatroom, owner); err != nil {
			return fmt.Errorf("rewrite chatrooms.txt: %w", err)
		}
	}
	return w.Flush()
}
