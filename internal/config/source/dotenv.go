package source

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"ghostline-core/internal/config/schema"
	corelog "ghostline-core/internal/core/log"
)

// DotEnvSource loads .env files into the process environment so the EnvSource
// picks them up. Keys without the prefix (XRAY_FLOW, XRAY_PUBLIC_KEY, ...) are
// also exported under PREFIX_ for compatibility with existing deployments.
type DotEnvSource struct {
	dirs   []string
	appEnv string
	prefix string
}

// NewDotEnvSource creates a new DotEnvSource
func NewDotEnvSource(prefix string, dirs []string, appEnv string) *DotEnvSource {
	return &DotEnvSource{
		dirs:   dirs,
		appEnv: appEnv,
		prefix: prefix,
	}
}

// Name returns the source name
func (s *DotEnvSource) Name() string {
	return "dotenv"
}

// Priority returns the source priority
func (s *DotEnvSource) Priority() int {
	return PriorityDotEnv
}

// LoadInto exports .env entries into the environment; cfg itself is filled by EnvSource
func (s *DotEnvSource) LoadInto(cfg *schema.Root) error {
	appEnv := s.appEnv
	if appEnv == "" {
		appEnv = cfg.App.Env
	}

	files := []string{".env", ".env.local"}
	if appEnv != "" {
		files = append(files, ".env."+appEnv, ".env."+appEnv+".local")
	}

	for _, dir := range s.dirs {
		for _, file := range files {
			path := filepath.Join(dir, file)
			if err := s.loadEnvFile(path); err != nil {
				corelog.Default().Debugf("failed to load %s: %v", path, err)
			}
		}
	}
	return nil
}

func (s *DotEnvSource) loadEnvFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}
		s.setIfUnset(key, value)
		if s.prefix != "" && !strings.HasPrefix(key, s.prefix+"_") {
			s.setIfUnset(s.prefix+"_"+key, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	corelog.Default().Debugf("loaded env file: %s", path)
	return nil
}

// setIfUnset keeps real environment variables authoritative over .env files
func (s *DotEnvSource) setIfUnset(key, value string) {
	if _, exists := os.LookupEnv(key); exists {
		return
	}
	if err := os.Setenv(key, value); err != nil {
		corelog.Default().Warnf("failed to set env var %s: %v", key, err)
	}
}

// parseEnvLine parses KEY=VALUE, optionally prefixed with "export " and quoted
func parseEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return "", "", false
	}

	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, true
}

// FindDotEnvDirs returns the directories searched for .env files
func FindDotEnvDirs(configFile string) []string {
	var dirs []string
	if configFile != "" {
		if dir := filepath.Dir(configFile); dir != "" && dir != "." {
			dirs = append(dirs, dir)
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	return dirs
}
