package schema

import "time"

// Database types
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
)

// DatabaseConfig contains the relational store settings
type DatabaseConfig struct {
	Type            string        `yaml:"type" json:"type"`
	DSN             Secret        `yaml:"dsn" json:"dsn"`
	MaxConns        int32         `yaml:"max_conns" json:"max_conns"`
	MinConns        int32         `yaml:"min_conns" json:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" json:"max_conn_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate" json:"auto_migrate"`
}

// Broker types
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// BrokerConfig contains event broker settings
type BrokerConfig struct {
	Type          string      `yaml:"type" json:"type"`
	ChannelPrefix string      `yaml:"channel_prefix" json:"channel_prefix"`
	Redis         RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password Secret `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}
