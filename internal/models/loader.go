package models

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadProfiles reads a profile document from disk. Both a bare list and a
// {"profiles": [...]} wrapper are accepted, matching what the CRUD layer
// exports.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var list []Profile
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapper struct {
		Profiles []Profile `json:"profiles"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	return wrapper.Profiles, nil
}
