package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/agriview/console-gateway/internal/domain"
)

const (
	tokenFileName = "credential.token"
	userFileName  = "credential.user.json"
)

// FileStore keeps the credential pair as two files under a profile
// directory. One profile holds at most one logical session.
type FileStore struct {
	dir string
	log *zap.Logger
}

// NewFileStore creates a file-backed store rooted at dir. The directory is
// created on first write, not here.
func NewFileStore(dir string, log *zap.Logger) *FileStore {
	return &FileStore{dir: dir, log: log}
}

func (s *FileStore) tokenPath() string { return filepath.Join(s.dir, tokenFileName) }
func (s *FileStore) userPath() string  { return filepath.Join(s.dir, userFileName) }

// SetCredential writes both keys. Missing arguments fail soft with the prior
// state untouched. A storage failure after the first write clears both keys
// so the token/user invariant survives.
func (s *FileStore) SetCredential(token string, user *domain.CachedUser) bool {
	if token == "" || user == nil {
		return false
	}
	data, err := json.Marshal(user)
	if err != nil {
		s.log.Warn("credential store: user record not serializable", zap.Error(err))
		return false
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.log.Warn("credential store: profile dir unavailable", zap.Error(err))
		return false
	}
	if err := writeFileAtomic(s.tokenPath(), []byte(token)); err != nil {
		s.log.Warn("credential store: token write failed", zap.Error(err))
		return false
	}
	if err := writeFileAtomic(s.userPath(), data); err != nil {
		s.log.Warn("credential store: user write failed, clearing", zap.Error(err))
		s.Clear()
		return false
	}
	return true
}

// Token returns the stored bearer token. Read errors degrade to absent.
func (s *FileStore) Token() (string, bool) {
	data, err := os.ReadFile(s.tokenPath())
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

// User returns the stored user record. Undecodable state degrades to absent.
func (s *FileStore) User() (*domain.CachedUser, bool) {
	data, err := os.ReadFile(s.userPath())
	if err != nil {
		return nil, false
	}
	var user domain.CachedUser
	if err := json.Unmarshal(data, &user); err != nil {
		s.log.Warn("credential store: cached user undecodable", zap.Error(err))
		return nil, false
	}
	return &user, true
}

// Clear removes both keys. Idempotent.
func (s *FileStore) Clear() {
	if err := os.Remove(s.tokenPath()); err != nil && !os.IsNotExist(err) {
		s.log.Warn("credential store: token remove failed", zap.Error(err))
	}
	if err := os.Remove(s.userPath()); err != nil && !os.IsNotExist(err) {
		s.log.Warn("credential store: user remove failed", zap.Error(err))
	}
}

// IsExpired reports expiry of the stored token, fail-closed.
func (s *FileStore) IsExpired() bool {
	token, ok := s.Token()
	if !ok {
		return true
	}
	return tokenExpired(token)
}

// writeFileAtomic writes via a temp file and rename so readers never observe
// a torn value.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
