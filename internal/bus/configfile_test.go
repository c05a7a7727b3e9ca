package bus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_OverlaysDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
maxRetained: 50
rateLimit: 5
rateLimitWindow: 250ms
allowGlobalWildcard: false
`))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.MaxRetained)
	assert.Equal(t, 5, cfg.RateLimit)
	assert.Equal(t, "250ms", cfg.RateLimitWindow.String())
	assert.False(t, cfg.AllowGlobalWildcard)

	def := DefaultConfig()
	assert.Equal(t, def.MaxMessageSize, cfg.MaxMessageSize, "absent keys keep defaults")
	assert.Equal(t, def.CleanupInterval, cfg.CleanupInterval)
}

func TestParseConfig_EmptyDocumentIsDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfig_Rejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "maxRetaned: 10\n", "parsing config"},
		{"bad duration", "cleanupInterval: soon\n", "parsing cleanupInterval"},
		{"invalid after overlay", "rateLimit: -1\n", "invalid config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxRetained: 7\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxRetained)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
