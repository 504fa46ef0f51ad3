package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	manager := NewTokenManager("test-secret-key", 15*time.Minute)
	userID := uuid.New()

	token, err := manager.Generate(userID, models.RoleEmployer)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	parsedID, role, err := manager.ParseAccess(token)
	assert.NoError(t, err)
	assert.Equal(t, userID, parsedID)
	assert.Equal(t, models.RoleEmployer, role)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	manager := NewTokenManager("secret-one", 15*time.Minute)
	other := NewTokenManager("secret-two", 15*time.Minute)

	token, err := manager.Generate(uuid.New(), models.RoleContractor)
	assert.NoError(t, err)

	parsedID, _, _ := other.ParseAccess(token)
	assert.Equal(t, uuid.Nil, parsedID)
}

func TestTokenManager_Expired(t *testing.T) {
	manager := NewTokenManager("test-secret-key", -time.Minute)

	token, err := manager.Generate(uuid.New(), models.RoleEmployer)
	assert.NoError(t, err)

	parsedID, _, _ := manager.ParseAccess(token)
	assert.Equal(t, uuid.Nil, parsedID)
}

func TestTokenManager_Garbage(t *testing.T) {
	manager := NewTokenManager("test-secret-key", 15*time.Minute)

	parsedID, _, _ := manager.ParseAccess("not-a-token")
	assert.Equal(t, uuid.Nil, parsedID)
}
