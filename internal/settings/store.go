package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/samber/lo"
)

// Store reads and writes the settings document. Every mutation is a
// read-modify-write under both an in-process mutex and an advisory file lock,
// so concurrent requests and other processes never lose each other's updates.
type Store struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// NewStore creates a store for the settings file at path.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// ChannelPatch holds optional updates for a channel entry.
type ChannelPatch struct {
	Identifier *string `json:"identifier,omitempty"`
	Name       *string `json:"name,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
}

// ArchiveSettingsPatch holds optional updates for archive options.
type ArchiveSettingsPatch struct {
	MessagesPerChannel *int    `json:"messages_per_channel,omitempty"`
	DaysBack           *int    `json:"days_back,omitempty"`
	OutputDirectory    *string `json:"output_directory,omitempty"`
	DownloadMedia      *bool   `json:"download_media,omitempty"`
	MaxFileSizeMB      *int    `json:"max_file_size_mb,omitempty"`
}

// Load returns the current settings. A missing file yields the defaults.
func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lockFile(); err != nil {
		return nil, err
	}
	defer s.unlockFile()

	return s.read()
}

// Save replaces the whole document.
func (s *Store) Save(st *Settings) error {
	return s.update(func(cur *Settings) error {
		*cur = *st
		return nil
	})
}

// Channels returns all configured channels in file order.
func (s *Store) Channels() ([]Channel, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	return st.Channels, nil
}

// EnabledChannels returns only channels with the enabled flag set.
func (s *Store) EnabledChannels() ([]Channel, error) {
	channels, err := s.Channels()
	if err != nil {
		return nil, err
	}
	return lo.Filter(channels, func(c Channel, _ int) bool {
		return c.Enabled
	}), nil
}

// AddChannel validates and appends a channel entry.
func (s *Store) AddChannel(ch Channel) (Channel, error) {
	ch.Identifier = strings.TrimSpace(ch.Identifier)
	ch.Name = strings.TrimSpace(ch.Name)

	if ch.Identifier == "" || ch.Name == "" {
		return Channel{}, ErrRequired
	}
	if !ValidIdentifier(ch.Identifier) {
		return Channel{}, ErrInvalidIdentifier
	}

	err := s.update(func(st *Settings) error {
		if conflicts(st.Channels, -1, ch) {
			return ErrDuplicate
		}
		st.Channels = append(st.Channels, ch)
		return nil
	})
	if err != nil {
		return Channel{}, err
	}
	return ch, nil
}

// UpdateChannel applies a patch to the channel at index.
func (s *Store) UpdateChannel(index int, patch ChannelPatch) (Channel, error) {
	var updated Channel

	err := s.update(func(st *Settings) error {
		if index < 0 || index >= len(st.Channels) {
			return ErrNotFound
		}

		ch := st.Channels[index]
		if patch.Identifier != nil {
			ch.Identifier = strings.TrimSpace(*patch.Identifier)
			if !ValidIdentifier(ch.Identifier) {
				return ErrInvalidIdentifier
			}
		}
		if patch.Name != nil {
			ch.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Enabled != nil {
			ch.Enabled = *patch.Enabled
		}
		if ch.Identifier == "" || ch.Name == "" {
			return ErrRequired
		}
		if conflicts(st.Channels, index, ch) {
			return ErrDuplicate
		}

		st.Channels[index] = ch
		updated = ch
		return nil
	})
	if err != nil {
		return Channel{}, err
	}
	return updated, nil
}

// DeleteChannel removes the channel at index. Later entries shift down by one.
func (s *Store) DeleteChannel(index int) (Channel, error) {
	var deleted Channel

	err := s.update(func(st *Settings) error {
		if index < 0 || index >= len(st.Channels) {
			return ErrNotFound
		}
		deleted = st.Channels[index]
		st.Channels = append(st.Channels[:index], st.Channels[index+1:]...)
		return nil
	})
	if err != nil {
		return Channel{}, err
	}
	return deleted, nil
}

// ArchiveSettings returns the archive options.
func (s *Store) ArchiveSettings() (ArchiveSettings, error) {
	st, err := s.Load()
	if err != nil {
		return ArchiveSettings{}, err
	}
	return st.ArchiveSettings, nil
}

// UpdateArchiveSettings applies a patch to the archive options.
func (s *Store) UpdateArchiveSettings(patch ArchiveSettingsPatch) (ArchiveSettings, error) {
	var updated ArchiveSettings

	err := s.update(func(st *Settings) error {
		as := st.ArchiveSettings
		if patch.MessagesPerChannel != nil {
			as.MessagesPerChannel = *patch.MessagesPerChannel
		}
		if patch.DaysBack != nil {
			as.DaysBack = *patch.DaysBack
		}
		if patch.OutputDirectory != nil {
			as.OutputDirectory = strings.TrimSpace(*patch.OutputDirectory)
		}
		if patch.DownloadMedia != nil {
			as.DownloadMedia = *patch.DownloadMedia
		}
		if patch.MaxFileSizeMB != nil {
			as.MaxFileSizeMB = *patch.MaxFileSizeMB
		}
		if as.MessagesPerChannel < 0 || as.DaysBack < 0 || as.MaxFileSizeMB < 0 {
			return ErrInvalidSettings
		}

		st.ArchiveSettings = as
		updated = as
		return nil
	})
	if err != nil {
		return ArchiveSettings{}, err
	}
	return updated, nil
}

// update runs fn over the current document and writes the result back.
// Nothing is written when fn returns an error.
func (s *Store) update(fn func(*Settings) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lockFile(); err != nil {
		return err
	}
	defer s.unlockFile()

	st, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return s.write(st)
}

func (s *Store) read() (*Settings, error) {
	st := Defaults()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	if st.Channels == nil {
		st.Channels = []Channel{}
	}
	return st, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *Store) write(st *Settings) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func (s *Store) lockFile() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock settings: %w", err)
	}
	return nil
}

func (s *Store) unlockFile() {
	_ = s.lock.Unlock()
}

// conflicts reports whether ch collides with any entry other than the one at
// skip by identifier or name.
func conflicts(channels []Channel, skip int, ch Channel) bool {
	for i, c := range channels {
		if i == skip {
			continue
		}
		if c.Identifier == ch.Identifier || c.Name == ch.Name {
			return true
		}
	}
	return false
}
