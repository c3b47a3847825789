package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"brigadebot/internal/entities"

	"gopkg.in/yaml.v3"
)

// DefaultTeams is used when no catalogue file is deployed.
var DefaultTeams = []entities.Team{
	{ID: 1, Name: "Brigade 1"},
	{ID: 2, Name: "Brigade 2"},
	{ID: 3, Name: "Brigade 3"},
	{ID: 4, Name: "Brigade 4"},
	{ID: 5, Name: "Brigade 5"},
}

type teamCatalog struct {
	Teams []entities.Team `yaml:"teams"`
}

// LoadTeamCatalog reads a YAML file of the form
//
//	teams:
//	  - id: 1
//	    name: North
//
// A missing file yields DefaultTeams.
func LoadTeamCatalog(path string) ([]entities.Team, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultTeams, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read team catalogue: %w", err)
	}
	return ParseTeamCatalog(data)
}

func ParseTeamCatalog(data []byte) ([]entities.Team, error) {
	var cat teamCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse team catalogue: %w", err)
	}

	seen := make(map[int64]bool, len(cat.Teams))
	for _, t := range cat.Teams {
		if t.ID <= 0 {
			return nil, fmt.Errorf("team %q: %w", t.Name, ErrTeamIDRequired)
		}
		if t.Name == "" {
			return nil, fmt.Errorf("team %d has no name", t.ID)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("team %d listed twice", t.ID)
		}
		seen[t.ID] = true
	}
	return cat.Teams, nil
}
