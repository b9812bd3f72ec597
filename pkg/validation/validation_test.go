package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRoomID(t *testing.T) {
	assert.NoError(t, ValidateRoomID("room-1"))
	assert.NoError(t, ValidateRoomID("Room_42"))

	assert.Error(t, ValidateRoomID(""))
	assert.Error(t, ValidateRoomID("   "))
	assert.Error(t, ValidateRoomID("room 1"))
	assert.Error(t, ValidateRoomID("room/../etc"))
	assert.Error(t, ValidateRoomID(strings.Repeat("a", 101)))
}

func TestValidateUserID(t *testing.T) {
	assert.NoError(t, ValidateUserID("u-1"))

	assert.Error(t, ValidateUserID(""))
	assert.Error(t, ValidateUserID("user!"))
	assert.Error(t, ValidateUserID(strings.Repeat("a", 101)))
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("Alice"))
	assert.NoError(t, ValidateUsername("Alice Smith"))

	assert.Error(t, ValidateUsername(""))
	assert.Error(t, ValidateUsername(strings.Repeat("a", 51)))
}
