package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Profiles are named copies of the settings file living next to the main
// config under profiles/<name>.json.

const profilesDir = "profiles"

func (c *Config) profilePath(name string) string {
	return filepath.Join(filepath.Dir(c.path), profilesDir, name+".json")
}

// CurrentProfile returns the name of the last loaded or saved profile.
func (c *Config) CurrentProfile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// SaveProfile stores the current settings under the given profile name.
func (c *Config) SaveProfile(name string) error {
	if err := validProfileName(name); err != nil {
		return err
	}
	c.mu.RLock()
	s := c.s
	c.mu.RUnlock()
	if err := writeSettings(c.profilePath(name), s); err != nil {
		return err
	}
	c.mu.Lock()
	c.profile = name
	c.mu.Unlock()
	return nil
}

// LoadProfile replaces the current settings with the named profile's,
// repairing values the same way Load does.
func (c *Config) LoadProfile(name string) error {
	if err := validProfileName(name); err != nil {
		return err
	}
	data, err := os.ReadFile(c.profilePath(name))
	if err != nil {
		return errors.Wrapf(err, "config: profile %q", name)
	}
	s := defaults
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrapf(err, "config: profile %q", name)
	}
	c.mu.Lock()
	c.s = Repair(s)
	c.profile = name
	c.mu.Unlock()
	c.version.Add(1)
	return nil
}

// DeleteProfile removes a stored profile. Deleting the active profile keeps
// the in-memory settings untouched.
func (c *Config) DeleteProfile(name string) error {
	if err := validProfileName(name); err != nil {
		return err
	}
	if err := os.Remove(c.profilePath(name)); err != nil {
		return errors.Wrapf(err, "config: profile %q", name)
	}
	return nil
}

// ListProfiles returns the stored profile names, sorted.
func (c *Config) ListProfiles() ([]string, error) {
	dir := filepath.Join(filepath.Dir(c.path), profilesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "config: list profiles")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func validProfileName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\.`) {
		return errors.Errorf("config: invalid profile name %q", name)
	}
	return nil
}
