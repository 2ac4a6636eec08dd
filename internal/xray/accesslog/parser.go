// Package accesslog parses the proxy access log
package accesslog

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Record is one accepted connection
type Record struct {
	Time        time.Time
	SourceIP    string
	SourcePort  int
	Network     string // tcp / udp
	Destination string
	InboundTag  string
	UserID      string // the "email" field, which carries the user id
}

// Parser turns raw log bytes into records. Lines that do not match are skipped.
type Parser interface {
	Parse(data []byte) []Record
}

// timeLayout is the proxy's timestamp format; fractional seconds are optional
const timeLayout = "2006/01/02 15:04:05.999999999"

// linePattern matches
//
//	2024/05/01 10:00:00.123456 from tcp:1.2.3.4:51234 accepted tcp:example.com:443 [in >> direct] email: user
//
// The source may carry a tcp:/udp: prefix and may be a bracketed IPv6 address.
var linePattern = regexp.MustCompile(
	`^(\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)?)` +
		` from (?:(?:tcp|udp):)?(\[[0-9A-Fa-f:.]+\]|[\d.]+):(\d+)` +
		` accepted (tcp|udp):(\S+)` +
		` \[([^\]]+)\]` +
		` email: (\S+)\s*$`)

// RegexParser is the default Parser
type RegexParser struct {
	loc *time.Location
}

// NewRegexParser creates a parser; timestamps are interpreted in loc (UTC when nil)
func NewRegexParser(loc *time.Location) *RegexParser {
	if loc == nil {
		loc = time.UTC
	}
	return &RegexParser{loc: loc}
}

func (p *RegexParser) Parse(data []byte) []Record {
	var records []Record
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if rec, ok := p.ParseLine(sc.Text()); ok {
			records = append(records, rec)
		}
	}
	return records
}

// ParseLine parses a single line
func (p *RegexParser) ParseLine(line string) (Record, bool) {
	m := linePattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if m == nil {
		return Record{}, false
	}
	return recordFromMatch(m, p.loc)
}

func recordFromMatch(m []string, loc *time.Location) (Record, bool) {
	ts, err := time.ParseInLocation(timeLayout, m[1], loc)
	if err != nil {
		return Record{}, false
	}
	port, err := strconv.Atoi(m[3])
	if err != nil || port > 65535 {
		return Record{}, false
	}
	return Record{
		Time:        ts,
		SourceIP:    strings.Trim(m[2], "[]"),
		SourcePort:  port,
		Network:     m[4],
		Destination: m[5],
		InboundTag:  m[6],
		UserID:      m[7],
	}, true
}

// GroupIPs returns each user's distinct source IPs in first-seen order
func GroupIPs(records []Record) map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, r := range records {
		if seen[r.UserID] == nil {
			seen[r.UserID] = make(map[string]bool)
		}
		if seen[r.UserID][r.SourceIP] {
			continue
		}
		seen[r.UserID][r.SourceIP] = true
		out[r.UserID] = append(out[r.UserID], r.SourceIP)
	}
	return out
}
