package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSecret_String(t *testing.T) {
	tests := []struct {
		in   Secret
		want string
	}{
		{"", ""},
		{"abc", "****"},
		{"abcd", "****"},
		{"postgres://u:p@db/ghostline", "po****ne"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.String())
	}
}

func TestSecret_JSONMasksValue(t *testing.T) {
	cfg := APIConfig{Token: "super-secret-token"}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret-token")
	assert.Contains(t, string(data), `"token":"su****en"`)
}

func TestSecret_YAMLRoundTrip(t *testing.T) {
	var cfg XrayConfig
	require.NoError(t, yaml.Unmarshal([]byte("private_key: 0123456789\n"), &cfg))
	assert.Equal(t, "0123456789", cfg.PrivateKey.Value())

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "private_key: 01****89")
}

func TestExecutorConfig_IsRemote(t *testing.T) {
	assert.True(t, ExecutorConfig{Mode: ExecutorModeRemote}.IsRemote())
	assert.False(t, ExecutorConfig{Mode: ExecutorModeLocal}.IsRemote())
}
