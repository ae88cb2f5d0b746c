package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DoctorEntry is one doctor of the roster file.
type DoctorEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Specialty   string `yaml:"specialty"`
	WorkStart   string `yaml:"work_start"`
	WorkEnd     string `yaml:"work_end"`
	SlotMinutes int    `yaml:"slot_minutes"`
}

// Roster lists the doctors whose hours differ from the clinic defaults.
type Roster struct {
	Doctors []DoctorEntry `yaml:"doctors"`
}

// LoadRoster reads a roster yaml. An empty path yields an empty roster.
func LoadRoster(path string) (*Roster, error) {
	if path == "" {
		return &Roster{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}

	return ParseRoster(data)
}

// ParseRoster decodes roster yaml, expanding ${ENV_VAR} placeholders first.
func ParseRoster(data []byte) (*Roster, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	return &r, nil
}

// Marshal encodes the roster as yaml.
func (r *Roster) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}
