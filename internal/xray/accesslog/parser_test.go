package accesslog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	p := NewRegexParser(time.UTC)

	tests := []struct {
		name string
		line string
		ok   bool
		ip   string
		port int
		user string
	}{
		{
			name: "ipv4 with fraction",
			line: "2024/05/01 10:00:00.123456 from 1.1.1.1:51234 accepted tcp:142.250.74.46:443 [vless-reality >> direct] email: abc",
			ok:   true, ip: "1.1.1.1", port: 51234, user: "abc",
		},
		{
			name: "network prefix and domain destination",
			line: "2024/05/01 10:00:01 from tcp:2.2.2.2:40000 accepted tcp:www.google.com:443 [vless-reality >> direct] email: abc",
			ok:   true, ip: "2.2.2.2", port: 40000, user: "abc",
		},
		{
			name: "bracketed ipv6",
			line: "2024/05/01 10:00:02 from udp:[2001:db8::1]:5353 accepted udp:8.8.8.8:53 [in] email: user-2",
			ok:   true, ip: "2001:db8::1", port: 5353, user: "user-2",
		},
		{name: "rejected", line: "2024/05/01 10:00:03 from 1.1.1.1:1 rejected  proxy/vless/encoding: invalid user", ok: false},
		{name: "missing email", line: "2024/05/01 10:00:04 from 1.1.1.1:1 accepted tcp:1.1.1.1:443 [in]", ok: false},
		{name: "garbage", line: "not a log line", ok: false},
		{name: "empty", line: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := p.ParseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.ip, rec.SourceIP)
			assert.Equal(t, tt.port, rec.SourcePort)
			assert.Equal(t, tt.user, rec.UserID)
		})
	}
}

func TestParseLine_Fields(t *testing.T) {
	loc := time.FixedZone("MSK", 3*3600)
	p := NewRegexParser(loc)

	rec, ok := p.ParseLine("2024/05/01 10:00:00.5 from 1.1.1.1:51234 accepted tcp:example.com:443 [vless-reality >> direct] email: abc\r")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 500000000, loc), rec.Time)
	assert.Equal(t, "tcp", rec.Network)
	assert.Equal(t, "example.com:443", rec.Destination)
	assert.Equal(t, "vless-reality >> direct", rec.InboundTag)
}

func TestParse_SkipsNonMatching(t *testing.T) {
	data := strings.Join([]string{
		"2024/05/01 10:00:00 from 1.1.1.1:1000 accepted tcp:a:443 [in] email: abc",
		"random noise",
		"2024/05/01 10:00:01 from 2.2.2.2:1000 accepted tcp:a:443 [in] email: abc",
		"2024/05/01 10:00:02 from 1.1.1.1:1001 accepted tcp:a:443 [in] email: abc",
		"2024/05/01 10:00:03 from 3.3.3.3:1000 accepted tcp:a:443 [in] email: xyz",
		"",
	}, "\n")

	records := NewRegexParser(nil).Parse([]byte(data))
	require.Len(t, records, 4)

	groups := GroupIPs(records)
	assert.Equal(t, []string{"1.1.1.1", "2.2.2.2"}, groups["abc"])
	assert.Equal(t, []string{"3.3.3.3"}, groups["xyz"])
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, NewRegexParser(nil).Parse(nil))
	assert.Empty(t, GroupIPs(nil))
}
