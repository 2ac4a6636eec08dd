package models

import "time"

// VpnAccount 订阅者的 VPN 账户，保存连接参数和封禁标记
type VpnAccount struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	Server       string    `json:"server"`
	Port         int       `json:"port"`
	PublicKey    string    `json:"public_key"`
	SNI          string    `json:"sni"`
	Flow         string    `json:"flow"`
	DevicesLimit int       `json:"devices_limit"`
	IsBlocked    bool      `json:"is_blocked"`
	CreatedAt    time.Time `json:"created_at"`
}

// Clone 返回副本
func (a *VpnAccount) Clone() *VpnAccount {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
