package entities

import "strconv"

// Team is a field brigade. ID is assigned by the operator, never generated.
type Team struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
