package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestToken_IsValid(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	assert.True(t, (&Token{}).IsValid(now))
	assert.True(t, (&Token{ExpiresAt: &future, NumUses: 3, UsesCount: 2}).IsValid(now))
	assert.False(t, (&Token{ExpiresAt: &past}).IsValid(now))
	assert.False(t, (&Token{NumUses: 3, UsesCount: 3}).IsValid(now))
	assert.False(t, (&Token{Revoked: true}).IsValid(now))
}

func TestTokenInfo_Principal(t *testing.T) {
	info := &TokenInfo{ID: uuid.New(), Accessor: "acc", Policies: []string{"default"}}
	p := info.Principal()
	assert.False(t, p.IsAdmin())
	assert.Equal(t, AuthMethodVaultToken, p.AuthMethod)

	info.Policies = []string{"default", RootPolicy}
	assert.True(t, info.Principal().IsAdmin())
}
