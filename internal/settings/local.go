package settings

import (
	"log"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/aimessenger/aimessenger/internal/event"
)

// Dir returns the config directory (~/.config/aimessenger)
// Creates it if it doesn't exist
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	configDir := filepath.Join(homeDir, ".config", "aimessenger")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return configDir, nil
}

// EnableLocalMirror keeps a TOML copy of the settings at path: existing
// values are loaded now, every Update rewrites the file, and external edits
// to the file are picked up through a watcher. Useful for headless setups
// where the settings UI is not running.
func (s *Store) EnableLocalMirror(path string) error {
	if loaded, err := loadLocal(path); err == nil {
		s.mu.Lock()
		s.current = loaded
		s.mu.Unlock()
		log.Printf("[Settings] Loaded local mirror: %s", path)
	} else if !os.IsNotExist(err) {
		return err
	}

	watcher, err := newFileWatcher(path, func() {
		loaded, err := loadLocal(path)
		if err != nil {
			log.Printf("[Settings] Failed to reload local mirror: %v", err)
			return
		}
		s.mu.Lock()
		changed := loaded != s.current
		s.current = loaded
		s.mu.Unlock()
		if changed && s.bus != nil {
			s.bus.Publish(event.New(event.TypeSettingsUpdated, loaded))
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.path = path
	s.watcher = watcher
	s.mu.Unlock()

	log.Printf("[Settings] Watching file: %s", path)
	return nil
}

// Close stops the local mirror watcher, if any.
func (s *Store) Close() {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if watcher != nil {
		watcher.stop()
	}
}

func loadLocal(path string) (APISettings, error) {
	out := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if err := toml.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

func saveLocal(path string, s APISettings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
