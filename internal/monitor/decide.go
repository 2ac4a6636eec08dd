package monitor

// Action 对单个用户采取的动作
type Action int

const (
	ActionNone Action = iota
	ActionBan
	ActionUnban
)

func (a Action) String() string {
	switch a {
	case ActionBan:
		return "ban"
	case ActionUnban:
		return "unban"
	default:
		return "none"
	}
}

// Decide 根据设备数决定动作
//
// 超过上限且未封禁 → 封禁；已封禁且未超过上限 → 解封；其余不动。
func Decide(ipCount, devicesLimit int, blocked bool) Action {
	overLimit := ipCount > devicesLimit
	switch {
	case blocked && !overLimit:
		return ActionUnban
	case !blocked && overLimit:
		return ActionBan
	default:
		return ActionNone
	}
}

// Decision 一个用户在本轮的判定结果
type Decision struct {
	UserID  string   `json:"user_id"`
	IPs     []string `json:"ips"`
	Limit   int      `json:"limit"`
	Blocked bool     `json:"blocked"`
	Action  Action   `json:"action"`
	Applied bool     `json:"applied"`
	Error   string   `json:"error,omitempty"`
}

// MarshalText 报告中以名称输出动作
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
