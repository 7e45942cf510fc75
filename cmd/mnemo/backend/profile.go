package backend

import (
	"errors"

	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

// ErrNoNumber is returned when neither --number nor a saved profile names
// a sender.
var ErrNoNumber = errors.New(`no number given: pass --number or run "mnemo use <number>"`)

// ResolveProfile picks the sender a command operates on: the given number,
// else the saved profile. A non-empty tz overrides the profile's timezone.
func ResolveProfile(configDir, number, tz string) (*dotdir.Profile, error) {
	if number != "" {
		return &dotdir.Profile{Number: number, Timezone: tz}, nil
	}

	profile, err := dotdir.NewManager().LoadProfile(configDir)
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.Number == "" {
		return nil, ErrNoNumber
	}
	if tz != "" {
		profile.Timezone = tz
	}
	return profile, nil
}
