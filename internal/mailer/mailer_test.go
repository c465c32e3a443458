package mailer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/printpress/notifications/internal/db"
)

func strPtr(s string) *string { return &s }

func testDefaults() Defaults {
	return Defaults{
		Provider:            ProviderMailgun,
		FromName:            "PrintPress",
		FromAddress:         "no-reply@printpress.local",
		PostmarkServerToken: "global-pm-token",
		MailgunDomain:       "mg.printpress.local",
		MailgunAPIKey:       "global-mg-key",
	}
}

func TestSelectorTenantPostmarkWins(t *testing.T) {
	s := NewSelector(testDefaults(), zap.NewNop())

	settings := &db.CompanySettings{
		CompanyID:              uuid.New(),
		UseCustomEmailProvider: true,
		CustomPostmarkToken:    strPtr("tenant-pm-token"),
		CustomMailgunDomain:    strPtr("mg.tenant.test"),
		CustomMailgunAPIKey:    strPtr("tenant-mg-key"),
	}

	provider, err := s.ForSettings(settings)
	require.NoError(t, err)
	assert.Equal(t, ProviderPostmark, provider.Name())
	assert.Equal(t, "tenant-pm-token", provider.(*Postmark).token)
}

func TestSelectorTenantMailgunWhenOnlyMailgunConfigured(t *testing.T) {
	defaults := testDefaults()
	defaults.Provider = ProviderPostmark // global default is the other provider
	s := NewSelector(defaults, zap.NewNop())

	settings := &db.CompanySettings{
		CompanyID:              uuid.New(),
		UseCustomEmailProvider: true,
		CustomMailgunDomain:    strPtr("mg.tenant.test"),
		CustomMailgunAPIKey:    strPtr("tenant-mg-key"),
	}

	provider, err := s.ForSettings(settings)
	require.NoError(t, err)
	assert.Equal(t, ProviderMailgun, provider.Name())
	assert.Equal(t, "mg.tenant.test", provider.(*Mailgun).domain)
}

func TestSelectorIgnoresTenantCredsWithoutOptIn(t *testing.T) {
	s := NewSelector(testDefaults(), zap.NewNop())

	settings := &db.CompanySettings{
		CompanyID:              uuid.New(),
		UseCustomEmailProvider: false,
		CustomPostmarkToken:    strPtr("tenant-pm-token"),
	}

	provider, err := s.ForSettings(settings)
	require.NoError(t, err)
	assert.Equal(t, ProviderMailgun, provider.Name())
	assert.Equal(t, "global-mg-key", provider.(*Mailgun).apiKey)
}

func TestSelectorGlobalDefaultForNilSettings(t *testing.T) {
	s := NewSelector(testDefaults(), zap.NewNop())

	provider, err := s.ForSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderMailgun, provider.Name())
}

func TestSelectorMissingGlobalCredentials(t *testing.T) {
	tests := []struct {
		name     string
		defaults Defaults
	}{
		{"postmark_without_token", Defaults{Provider: ProviderPostmark}},
		{"mailgun_without_creds", Defaults{Provider: ProviderMailgun}},
		{"unknown_provider", Defaults{Provider: "sendmail"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(tt.defaults, zap.NewNop())
			_, err := s.ForSettings(nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotConfigured)
		})
	}
}

func TestFromLine(t *testing.T) {
	s := NewSelector(testDefaults(), zap.NewNop())

	tests := []struct {
		name     string
		settings *db.CompanySettings
		want     string
	}{
		{
			name:     "nil_settings_uses_global",
			settings: nil,
			want:     "PrintPress <no-reply@printpress.local>",
		},
		{
			name: "tenant_address_and_name",
			settings: &db.CompanySettings{
				EmailFromName:    strPtr("Acme Print"),
				EmailFromAddress: strPtr("orders@acme.test"),
			},
			want: "Acme Print <orders@acme.test>",
		},
		{
			name: "tenant_address_without_name_keeps_default_name",
			settings: &db.CompanySettings{
				EmailFromAddress: strPtr("orders@acme.test"),
			},
			want: "PrintPress <orders@acme.test>",
		},
		{
			name: "tenant_name_without_address_ignored",
			settings: &db.CompanySettings{
				EmailFromName: strPtr("Acme Print"),
			},
			want: "PrintPress <no-reply@printpress.local>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.FromLine(tt.settings))
		})
	}
}

func TestReplyTo(t *testing.T) {
	defaults := testDefaults()
	defaults.ReplyTo = "support@printpress.local"
	s := NewSelector(defaults, zap.NewNop())

	msgLevel := &Message{ReplyTo: strPtr("direct@acme.test")}
	assert.Equal(t, "direct@acme.test", *s.ReplyTo(nil, msgLevel))

	tenant := &db.CompanySettings{EmailReplyTo: strPtr("replies@acme.test")}
	assert.Equal(t, "replies@acme.test", *s.ReplyTo(tenant, &Message{}))

	assert.Equal(t, "support@printpress.local", *s.ReplyTo(nil, &Message{}))

	bare := NewSelector(testDefaults(), zap.NewNop())
	assert.Nil(t, bare.ReplyTo(nil, &Message{}))
}
