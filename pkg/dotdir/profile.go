package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	profileFile = "profile.json"
)

// Profile is the CLI's persisted selection: the sender whose memories the
// memories and window commands operate on when no --number is given.
type Profile struct {
	// Number is the sender's phone number in E.164 form.
	Number string `json:"number"`

	// Timezone overrides the timezone derived from Number.
	Timezone string `json:"timezone,omitempty"`
}

// LoadProfile loads the profile from a target .mnemo/profile.json.
// Returns nil, nil if no profile has been saved.
func (m *Manager) LoadProfile(overrideDir string) (*Profile, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, profileFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	profile := &Profile{}
	if err := json.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}

	return profile, nil
}

// SaveProfile persists the profile to a target .mnemo/profile.json.
func (m *Manager) SaveProfile(profile *Profile, overrideDir string) error {
	if profile == nil {
		return errors.New("cannot save nil profile")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, profileFile), data, 0o600); err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}

	return nil
}

// ClearProfile removes the profile file. Returns nil if it doesn't exist.
func (m *Manager) ClearProfile(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, profileFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing profile: %w", err)
	}

	return nil
}
