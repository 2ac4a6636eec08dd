package schema

// XrayConfig describes the managed proxy instance
type XrayConfig struct {
	ConfigPath     string `yaml:"config_path" json:"config_path"`
	LogsPath       string `yaml:"logs_path" json:"logs_path"`
	RestartCommand string `yaml:"restart_command" json:"restart_command"`

	Flow       string `yaml:"flow" json:"flow"`
	PublicKey  string `yaml:"public_key" json:"public_key"`
	PrivateKey Secret `yaml:"private_key" json:"private_key"`
	ShortID    string `yaml:"short_id" json:"short_id"`
	InjectKeys bool   `yaml:"inject_keys" json:"inject_keys"`

	ListenAddress string `yaml:"listen_address" json:"listen_address"`
	LinkTag       string `yaml:"link_tag" json:"link_tag"`
	LinkPort      int    `yaml:"link_port" json:"link_port"`
	SNI           string `yaml:"sni" json:"sni"`

	DefaultDevicesLimit int `yaml:"default_devices_limit" json:"default_devices_limit"`
}
