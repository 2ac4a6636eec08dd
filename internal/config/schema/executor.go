package schema

import "time"

// Executor modes
const (
	ExecutorModeLocal  = "local"
	ExecutorModeRemote = "remote"
)

// ExecutorConfig selects where proxy commands and file operations run
type ExecutorConfig struct {
	Mode           string        `yaml:"mode" json:"mode"`
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout"`
	Remote         RemoteConfig  `yaml:"remote" json:"remote"`
}

// RemoteConfig contains the SSH target used in remote mode
type RemoteConfig struct {
	Host          string        `yaml:"host" json:"host"`
	Port          int           `yaml:"port" json:"port"`
	User          string        `yaml:"user" json:"user"`
	KeyPath       string        `yaml:"key_path" json:"key_path"`
	KeyPassphrase Secret        `yaml:"key_passphrase" json:"key_passphrase"`
	KnownHosts    string        `yaml:"known_hosts" json:"known_hosts"`
	UseSudo       bool          `yaml:"use_sudo" json:"use_sudo"`
	DialTimeout   time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
}

// IsRemote reports whether commands are dispatched over SSH
func (c ExecutorConfig) IsRemote() bool {
	return c.Mode == ExecutorModeRemote
}
