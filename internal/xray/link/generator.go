// Package link 生成客户端连接链接
package link

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"ghostline-core/internal/config/schema"
	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/xray/xrayconf"
)

// DefaultPort 链接中的端口
const DefaultPort = 443

// Params 构造链接所需的全部参数
type Params struct {
	Protocol  string
	UserID    string
	Host      string
	Port      int
	Security  string
	Flow      string
	PublicKey string
	ShortID   string
	SNI       string
	Tag       string
}

// Build 按固定参数顺序格式化链接；任一必需参数为空时返回 IncompleteLinkParamsError
func Build(p Params) (string, error) {
	required := []struct{ name, value string }{
		{"protocol", p.Protocol},
		{"user_id", p.UserID},
		{"host", p.Host},
		{"security", p.Security},
		{"flow", p.Flow},
		{"pbk", p.PublicKey},
		{"sid", p.ShortID},
		{"sni", p.SNI},
		{"tag", p.Tag},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return "", &coreerrors.IncompleteLinkParamsError{Missing: missing}
	}

	port := p.Port
	if port <= 0 {
		port = DefaultPort
	}

	query := strings.Join([]string{
		"security=" + p.Security,
		"flow=" + p.Flow,
		"pbk=" + p.PublicKey,
		"sid=" + p.ShortID,
		"sni=" + p.SNI,
		"encryption=none",
		"type=tcp",
	}, "&")

	var b strings.Builder
	b.WriteString(p.Protocol)
	b.WriteString("://")
	b.WriteString(p.UserID)
	b.WriteString("@")
	b.WriteString(p.Host)
	b.WriteString(":")
	b.WriteString(strconv.Itoa(port))
	b.WriteString("?")
	b.WriteString(query)
	b.WriteString("#")
	b.WriteString(escapeTag(p.Tag))
	return b.String(), nil
}

// escapeTag 空格编码为 %20 而不是 +
func escapeTag(tag string) string {
	return strings.ReplaceAll(url.QueryEscape(tag), "+", "%20")
}

// Options 来自部署环境的链接参数
type Options struct {
	Host      string
	Port      int
	Flow      string
	PublicKey string
	Tag       string
}

// OptionsFromConfig 按部署拓扑选择主机：远程模式用 SSH 主机，本地模式用 listen_address
func OptionsFromConfig(cfg *schema.Root) Options {
	host := cfg.Xray.ListenAddress
	if cfg.Executor.IsRemote() {
		host = cfg.Executor.Remote.Host
	}
	return Options{
		Host:      host,
		Port:      cfg.Xray.LinkPort,
		Flow:      cfg.Xray.Flow,
		PublicKey: cfg.Xray.PublicKey,
		Tag:       cfg.Xray.LinkTag,
	}
}

// Generator 从当前代理配置生成链接
type Generator struct {
	store  *xrayconf.Store
	opts   Options
	logger corelog.Logger
	group  singleflight.Group
}

// NewGenerator 创建链接生成器
func NewGenerator(store *xrayconf.Store, opts Options, logger corelog.Logger) *Generator {
	if logger == nil {
		logger = corelog.Default()
	}
	return &Generator{
		store:  store,
		opts:   opts,
		logger: logger.WithField(corelog.FieldComponent, "link"),
	}
}

// Generate 生成用户的连接链接；同一用户的并发请求共享一次配置读取
//
// 共享读取不随发起者的 ctx 取消，超时由后端负责。
func (g *Generator) Generate(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", &coreerrors.IncompleteLinkParamsError{Missing: []string{"user_id"}}
	}

	readCtx := context.WithoutCancel(ctx)
	v, err, _ := g.group.Do(userID, func() (interface{}, error) {
		cfg, err := g.store.Read(readCtx)
		if err != nil {
			return "", err
		}
		return Build(Params{
			Protocol:  cfg.Protocol,
			UserID:    userID,
			Host:      g.opts.Host,
			Port:      g.opts.Port,
			Security:  cfg.Stream.Security,
			Flow:      g.opts.Flow,
			PublicKey: g.opts.PublicKey,
			ShortID:   cfg.Stream.FirstShortID(),
			SNI:       cfg.Stream.FirstServerName(),
			Tag:       g.opts.Tag,
		})
	})
	if err != nil {
		var incomplete *coreerrors.IncompleteLinkParamsError
		if coreerrors.As(err, &incomplete) {
			g.logger.WithField(corelog.FieldUserID, userID).Errorf("cannot build link, missing: %s", strings.Join(incomplete.Missing, ", "))
		}
		return "", err
	}
	link := v.(string)
	g.logger.WithField(corelog.FieldUserID, userID).Debugf("link generated")
	return link, nil
}
