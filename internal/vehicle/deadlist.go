package vehicle

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeadList marks vehicles that are retired or written off. Dead vehicles
// stay in aggregates and reports but are flagged and left out of the live
// risk ranking.
type DeadList struct {
	dead map[string]bool
}

// LoadDeadList reads a YAML file mapping vehicle identifiers to booleans:
//
//	EL-052: true
//	el_107: true
//	EL-031: false
//
// Keys are canonicalized on load. An empty path yields an empty list.
func LoadDeadList(path string) (*DeadList, error) {
	dl := &DeadList{dead: map[string]bool{}}
	if path == "" {
		return dl, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dead-vehicle list %s: %w", path, err)
	}
	var raw map[string]bool
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing dead-vehicle list %s: %w", path, err)
	}
	for id, v := range raw {
		dl.dead[Canonicalize(id)] = v
	}
	return dl, nil
}

// IsDead reports whether the vehicle (any spelling) is marked dead.
func (dl *DeadList) IsDead(id string) bool {
	if dl == nil {
		return false
	}
	return dl.dead[Canonicalize(id)]
}
