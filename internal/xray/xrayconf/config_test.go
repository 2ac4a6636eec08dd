package xrayconf

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/executor"
)

const sampleConfig = `{
  // managed by ghostline
  "log": {"loglevel": "warning", "access": "/var/log/xray/access.log"},
  "inbounds": [
    {
      "tag": "vless-in",
      "port": 443,
      "protocol": "vless",
      "settings": {
        "clients": [
          {"id": "user-1", "email": "user-1", "flow": "xtls-rprx-vision", "level": 0}
        ],
        "decryption": "none"
      },
      "streamSettings": {
        "network": "tcp",
        "security": "reality",
        "realitySettings": {
          "dest": "www.microsoft.com:443",
          "serverNames": ["www.microsoft.com", "microsoft.com"],
          "privateKey": "old-private",
          "shortIds": ["0123abcd", ""]
        }
      }
    },
    {"tag": "api", "port": 10085, "protocol": "dokodemo-door"},
  ],
  "outbounds": [{"protocol": "freedom"}],
  "routing": {"rules": []}
}`

func TestParse_ReadsFirstInbound(t *testing.T) {
	cfg, err := Parse("config.json", []byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "vless", cfg.Protocol)
	assert.Equal(t, "vless-in", cfg.Tag)
	assert.Equal(t, 443, cfg.Port)
	assert.Equal(t, "reality", cfg.Stream.Security)
	assert.Equal(t, "www.microsoft.com", cfg.Stream.FirstServerName())
	assert.Equal(t, "0123abcd", cfg.Stream.FirstShortID())
	assert.Equal(t, []string{"user-1"}, cfg.ClientIDs())

	entry, ok := cfg.FindClient("user-1")
	require.True(t, ok)
	assert.Equal(t, "xtls-rprx-vision", entry.Flow)
	_, ok = cfg.FindClient("user-2")
	assert.False(t, ok)
}

func TestEncode_PreservesUnknownSections(t *testing.T) {
	cfg, err := Parse("config.json", []byte(sampleConfig))
	require.NoError(t, err)

	cfg.SetClients(append(cfg.Clients(), NewClientEntry("user-2", "xtls-rprx-vision")))
	out, err := cfg.Encode()
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &generic))
	assert.Contains(t, generic, "outbounds")
	assert.Contains(t, generic, "routing")
	assert.Contains(t, generic, "log")

	inbounds := generic["inbounds"].([]interface{})
	require.Len(t, inbounds, 2)
	assert.Equal(t, "dokodemo-door", inbounds[1].(map[string]interface{})["protocol"])

	first := inbounds[0].(map[string]interface{})
	settings := first["settings"].(map[string]interface{})
	assert.Equal(t, "none", settings["decryption"])
	clients := settings["clients"].([]interface{})
	require.Len(t, clients, 2)
	assert.Equal(t, float64(0), clients[0].(map[string]interface{})["level"], "extra client fields survive")
	assert.Equal(t, map[string]interface{}{"id": "user-2", "email": "user-2", "flow": "xtls-rprx-vision"}, clients[1])

	// key order of the top level and of the inbound is kept
	s := string(out)
	assert.Less(t, strings.Index(s, `"log"`), strings.Index(s, `"inbounds"`))
	assert.Less(t, strings.Index(s, `"inbounds"`), strings.Index(s, `"outbounds"`))
	assert.Less(t, strings.Index(s, `"tag": "vless-in"`), strings.Index(s, `"protocol": "vless"`))
	assert.True(t, strings.HasSuffix(s, "}\n"))
	assert.Contains(t, s, "\n  \"inbounds\": [\n    {\n      \"tag\"")
}

func TestEncode_KeepsOtherSectionsByteForByte(t *testing.T) {
	cfg, err := Parse("config.json", []byte(sampleConfig))
	require.NoError(t, err)

	cfg.SetClients([]ClientEntry{NewClientEntry("user-9", "")})
	out, err := cfg.Encode()
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `"clients": [{"id":"user-9","email":"user-9"}]`)
	assert.Contains(t, s, "\"clients\": [{\"id\":\"user-9\",\"email\":\"user-9\"}],\n        \"decryption\": \"none\"")
	assert.Contains(t, s, "\"realitySettings\": {\n          \"dest\": \"www.microsoft.com:443\",")
	assert.Contains(t, s, `{"tag": "api", "port": 10085, "protocol": "dokodemo-door"}`)
	assert.Contains(t, s, "\"outbounds\": [{\"protocol\": \"freedom\"}],\n  \"routing\": {\"rules\": []}")
	assert.NotContains(t, s, "managed by ghostline", "comments are stripped")
}

func TestEncode_UntouchedDocument(t *testing.T) {
	plain := "{\n  \"inbounds\": [\n    {\"protocol\": \"vless\", \"settings\": {\"clients\": [\n      {\"id\": \"a\", \"level\": 0}\n    ]}}\n  ]\n}\n"
	cfg, err := Parse("config.json", []byte(plain))
	require.NoError(t, err)

	out, err := cfg.Encode()
	require.NoError(t, err)
	assert.Equal(t, plain, string(out))

	cfg.SetClients(cfg.Clients())
	out, err = cfg.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"clients": [{"id":"a","level":0,"email":""}]`)
}

func TestEncode_IsStable(t *testing.T) {
	cfg, err := Parse("config.json", []byte(sampleConfig))
	require.NoError(t, err)
	first, err := cfg.Encode()
	require.NoError(t, err)

	again, err := Parse("config.json", first)
	require.NoError(t, err)
	second, err := again.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestEncode_EmptyClients(t *testing.T) {
	cfg, err := Parse("config.json", []byte(`{"inbounds":[{"protocol":"vless"}]}`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Clients())

	cfg.SetClients(nil)
	out, err := cfg.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"clients":[]`)
}

func TestParse_Corrupt(t *testing.T) {
	tests := map[string]string{
		"not json":        `{"inbounds": [`,
		"no inbounds":     `{"outbounds": []}`,
		"empty inbounds":  `{"inbounds": []}`,
		"inbound not obj": `{"inbounds": ["x"]}`,
		"clients not arr": `{"inbounds": [{"settings": {"clients": {}}}]}`,
		"client not obj":  `{"inbounds": [{"settings": {"clients": ["x"]}}]}`,
		"id not string":   `{"inbounds": [{"settings": {"clients": [{"id": 7}]}}]}`,
		"inbounds object": `{"inbounds": {"protocol": "vless"}}`,
		"reality not obj": `{"inbounds": [{"streamSettings": {"realitySettings": []}}]}`,
		"top level array": `[]`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("/etc/xray/config.json", []byte(data))
			var corrupt *coreerrors.ConfigCorruptError
			require.ErrorAs(t, err, &corrupt)
			assert.Equal(t, "/etc/xray/config.json", corrupt.Path)
		})
	}
}

func TestApplyRealityKeys(t *testing.T) {
	cfg, err := Parse("config.json", []byte(sampleConfig))
	require.NoError(t, err)

	changed, err := cfg.ApplyRealityKeys("new-private", "feedbeef")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "feedbeef", cfg.Stream.FirstShortID())

	out, err := cfg.Encode()
	require.NoError(t, err)
	reparsed, err := Parse("config.json", out)
	require.NoError(t, err)
	assert.Equal(t, "new-private", reparsed.Stream.Reality.PrivateKey)
	assert.Equal(t, []string{"feedbeef", "0123abcd", ""}, reparsed.Stream.Reality.ShortIDs)
	assert.Contains(t, string(out), `"dest": "www.microsoft.com:443"`)

	changed, err = reparsed.ApplyRealityKeys("new-private", "feedbeef")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStore_ReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	store := NewStore(executor.NewLocal(executor.LocalOptions{}, nil), path, corelog.NewTestLogger(t))
	cfg, err := store.Read(context.Background())
	require.NoError(t, err)

	cfg.SetClients(nil)
	require.NoError(t, store.Write(context.Background(), cfg))

	again, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.ClientIDs())
	assert.Equal(t, path, store.Path())
}

func TestStore_ReadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	logger := corelog.NewTestLogger(t)
	store := NewStore(executor.NewLocal(executor.LocalOptions{}, nil), path, logger)
	_, err := store.Read(context.Background())
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeConfigCorrupt))
	assert.True(t, logger.Contains("proxy config is corrupt"))
}
