// Package version 提供构建版本信息
package version

import (
	"runtime/debug"
	"strings"
)

var (
	// Version 版本号，构建时通过 -ldflags 注入
	Version = "dev"

	// BuildTime 构建时间，通过 -ldflags 注入
	BuildTime = ""

	// GitCommit Git 提交哈希，通过 -ldflags 注入
	GitCommit = ""
)

// readBuildInfo 可在测试中替换
var readBuildInfo = debug.ReadBuildInfo

// Info 版本信息
type Info struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// Get 汇总版本信息
// ldflags 未注入时回退到 go build 写入的 vcs 信息
func Get() Info {
	info := Info{
		Version:   strings.TrimPrefix(Version, "v"),
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = strings.TrimPrefix(bi.Main.Version, "v")
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// GetVersion 获取完整版本信息
func GetVersion() string {
	info := Get()
	v := "v" + info.Version
	if info.BuildTime != "" {
		v += " (built " + info.BuildTime + ")"
	}
	if info.GitCommit != "" {
		commit := info.GitCommit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		v += " commit " + commit
		if info.Modified {
			v += "-dirty"
		}
	}
	return v
}

// GetShortVersion 获取简短版本号
func GetShortVersion() string {
	return "v" + Get().Version
}
