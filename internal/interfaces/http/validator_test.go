package http

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Brigade", SanitizeString(" Bri\x00gade \n"))
	assert.Equal(t, "ok", SanitizeString("o\xffk"))
}

func TestValidTeamName(t *testing.T) {
	assert.True(t, ValidTeamName("Бригада 1"))
	assert.False(t, ValidTeamName("   "))
	assert.True(t, ValidTeamName(strings.Repeat("я", MaxTeamNameLength)))
	assert.False(t, ValidTeamName(strings.Repeat("я", MaxTeamNameLength+1)))
}
