package testutils

import (
	"fmt"
	"strings"
)

// 样例代理配置使用的常量
const (
	ConfigPath     = "/usr/local/etc/xray/config.json"
	LogsPath       = "/var/log/xray/access.log"
	RestartCommand = "docker restart ghostline_xray"
	Flow           = "xtls-rprx-vision"
	PublicKey      = "Z84J2IelR9ch3k8VtlVhhs5ycBUlXA7wHBWcBrjqnAw"
	ShortID        = "6ba85179e30d4fc2"
	ServerName     = "www.microsoft.com"
)

// XrayConfig 返回一个 VLESS + REALITY 配置，clients 为已存在的用户 ID
func XrayConfig(clients ...string) []byte {
	entries := make([]string, 0, len(clients))
	for _, id := range clients {
		entries = append(entries, fmt.Sprintf(`          {"id": %q, "email": %q, "flow": %q}`, id, id, Flow))
	}
	return []byte(fmt.Sprintf(`{
  "log": {"loglevel": "warning", "access": %q},
  "inbounds": [
    {
      "listen": "0.0.0.0",
      "port": 443,
      "protocol": "vless",
      "tag": "vless-reality",
      "settings": {
        "clients": [
%s
        ],
        "decryption": "none"
      },
      "streamSettings": {
        "network": "tcp",
        "security": "reality",
        "realitySettings": {
          "dest": "www.microsoft.com:443",
          "serverNames": [%q],
          "privateKey": "cNtMTUpkxNnRcYXu3kU9K5KGfm6_gSZ8rC2zqnCUJ2E",
          "shortIds": [%q]
        }
      }
    }
  ],
  "outbounds": [{"protocol": "freedom", "tag": "direct"}]
}
`, LogsPath, strings.Join(entries, ",\n"), ServerName, ShortID))
}

// AccessLine 构造一行访问日志
func AccessLine(ts, src, userID string) string {
	return fmt.Sprintf("%s from %s accepted tcp:www.google.com:443 [vless-reality >> direct] email: %s", ts, src, userID)
}
