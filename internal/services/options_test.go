package services

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wazmeow/internal/app/config"
	"wazmeow/internal/domain"
)

func TestBackoffDelay(t *testing.T) {
	base, ceiling := 2*time.Second, 30*time.Second

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	var got []time.Duration
	for n := 1; n <= len(want); n++ {
		got = append(got, backoffDelay(base, ceiling, n))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("backoff (-want +got):\n%s", diff)
	}

	for n := 2; n < 100; n++ {
		assert.GreaterOrEqual(t, backoffDelay(base, ceiling, n), backoffDelay(base, ceiling, n-1))
	}
	assert.Equal(t, base, backoffDelay(base, ceiling, 0))
	assert.Equal(t, ceiling, backoffDelay(base, ceiling, 200))
}

func TestMerge_OverrideWins(t *testing.T) {
	base := SessionOptions{
		MaxRetries:     5,
		RetryBaseDelay: time.Second,
		Reconnect:      Bool(true),
		ClientPlatform: "chrome",
		QR:             QROptions{Output: domain.QROutputTerminal, Width: 256},
		QRSet:          true,
	}

	merged := base.Merge(SessionOptions{
		MaxRetries: 2,
		Reconnect:  Bool(false),
		QR:         QROptions{Output: domain.QROutputNone},
		QRSet:      true,
	})

	assert.Equal(t, 2, merged.MaxRetries)
	assert.Equal(t, time.Second, merged.RetryBaseDelay)
	assert.False(t, merged.reconnectEnabled())
	assert.Equal(t, "chrome", merged.ClientPlatform)
	assert.Equal(t, domain.QROutputNone, merged.QR.Output)
	assert.Equal(t, 256, merged.QR.Width)

	// The base is not aliased by the override.
	assert.True(t, *base.Reconnect)
}

func TestMerge_ZeroOverrideKeepsBase(t *testing.T) {
	base := SessionOptions{MaxRetries: 5, AutoStart: Bool(false), QR: QROptions{Output: domain.QROutputImage}, QRSet: true}
	assert.Equal(t, base, base.Merge(SessionOptions{}))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.WhatsAppConfig{
		MaxRetries:     4,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  time.Minute,
		ResetDelay:     5 * time.Second,
		ConnectTimeout: 20 * time.Second,
		Reconnect:      true,
		AutoStart:      false,
		ClientName:     "WazMeow",
		ClientPlatform: "firefox",
		QR:             config.QRConfig{Output: "terminal,image", Width: 300, Margin: 2},
	}

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, opts.MaxRetries)
	assert.True(t, opts.reconnectEnabled())
	assert.False(t, opts.autoStart())
	assert.Equal(t, "WazMeow", opts.ClientDisplayName)
	assert.True(t, opts.QR.Output.Has(domain.QROutputTerminal|domain.QROutputImage))
	assert.False(t, opts.QR.Output.Has(domain.QROutputRaw))

	cfg.QR.Output = "hologram"
	_, err = OptionsFromConfig(cfg)
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestWithDefaults(t *testing.T) {
	opts := SessionOptions{MaxRetries: -1, RetryBaseDelay: 5 * time.Second, RetryMaxDelay: time.Second}.withDefaults()
	assert.Equal(t, 0, opts.MaxRetries)
	assert.Equal(t, 5*time.Second, opts.RetryMaxDelay)
	assert.Equal(t, 3*time.Second, opts.ResetDelay)
	assert.True(t, opts.reconnectEnabled())
	assert.True(t, opts.autoStart())
}
