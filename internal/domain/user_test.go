package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayNameFallsBackToID(t *testing.T) {
	assert.Equal(t, "Ada", UserProfile{ID: "u1", Name: "Ada"}.DisplayName())
	assert.Equal(t, "u1", UserProfile{ID: "u1"}.DisplayName())
}
