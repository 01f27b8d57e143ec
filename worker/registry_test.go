package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/models"
)

func TestValidateAccount(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.MailboxAccount)
		ok     bool
	}{
		{"complete account", func(a *models.MailboxAccount) {}, true},
		{"bad email", func(a *models.MailboxAccount) { a.FromEmail = "not-an-email" }, false},
		{"missing host", func(a *models.MailboxAccount) { a.IMAPHost = "" }, false},
		{"zero port", func(a *models.MailboxAccount) { a.IMAPPort = 0 }, false},
		{"port out of range", func(a *models.MailboxAccount) { a.IMAPPort = 70000 }, false},
		{"missing username", func(a *models.MailboxAccount) { a.IMAPUsername = "" }, false},
		{"missing password", func(a *models.MailboxAccount) { a.IMAPPassword = "" }, false},
		{"no SMTP is fine", func(a *models.MailboxAccount) { a.SMTPHost = ""; a.SMTPPassword = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := testAccount()
			tt.mutate(account)
			err := ValidateAccount(account)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRegistryAddRemoveGet(t *testing.T) {
	registry := NewRegistry(nil)

	account := testAccount()
	require.NoError(t, registry.Add(account))

	got, ok := registry.Get(account.ID)
	require.True(t, ok)
	assert.Equal(t, account.FromEmail, got.FromEmail)
	assert.Len(t, registry.List(), 1)

	registry.Remove(account.ID)
	_, ok = registry.Get(account.ID)
	assert.False(t, ok)
	assert.Empty(t, registry.List())
}

func TestRegistryLoadReplacesContents(t *testing.T) {
	source := &fakeAccountSource{}
	registry := NewRegistryFromSource(source)

	valid := testAccount()
	broken := testAccount()
	broken.ID = 9
	broken.FromEmail = "not-an-email"

	source.set(valid, broken)
	require.NoError(t, registry.Load())

	// The malformed account is excluded, not fatal
	require.Len(t, registry.List(), 1)
	_, ok := registry.Get(valid.ID)
	assert.True(t, ok)

	// A later load drops accounts no longer enabled at the source
	source.set()
	require.NoError(t, registry.Load())
	assert.Empty(t, registry.List())
}

func TestRegistryRejectsIncompleteAccounts(t *testing.T) {
	registry := NewRegistry(nil)

	account := testAccount()
	account.IMAPPassword = ""
	assert.Error(t, registry.Add(account))
	assert.Empty(t, registry.List())
}
