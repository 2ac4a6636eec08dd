// Package xrayconf reads and writes the proxy's JSON configuration.
//
// Only the first inbound's client list and its reality keys are written back.
// Writes patch those paths in the original document, so every other section
// keeps its bytes, key order and formatting.
package xrayconf

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
	"github.com/tidwall/sjson"

	coreerrors "ghostline-core/internal/core/errors"
)

const (
	inboundPath = "inbounds.0"
	clientsPath = "inbounds.0.settings.clients"
	realityPath = "inbounds.0.streamSettings.realitySettings"
)

// ClientEntry is one element of inbounds[0].settings.clients
type ClientEntry struct {
	ID    string
	Email string
	Flow  string
	// raw is the entry as read, so fields written by other tools (level, alterId, ...) survive
	raw string
}

// NewClientEntry builds the entry the synchronizer writes for a user
func NewClientEntry(userID, flow string) ClientEntry {
	return ClientEntry{ID: userID, Email: userID, Flow: flow}
}

func (c ClientEntry) MarshalJSON() ([]byte, error) {
	out := []byte("{}")
	if c.raw != "" {
		out = []byte(c.raw)
	}
	var err error
	if out, err = sjson.SetBytes(out, "id", c.ID); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "email", c.Email); err != nil {
		return nil, err
	}
	if c.Flow != "" || gjson.GetBytes(out, "flow").Exists() {
		if out, err = sjson.SetBytes(out, "flow", c.Flow); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseClient(r gjson.Result) (ClientEntry, error) {
	if !r.IsObject() {
		return ClientEntry{}, fmt.Errorf("expected object, got %s", r.Raw)
	}
	e := ClientEntry{raw: r.Raw}
	var err error
	if e.ID, err = stringField(r, "id"); err != nil {
		return ClientEntry{}, err
	}
	if e.Email, err = stringField(r, "email"); err != nil {
		return ClientEntry{}, err
	}
	if e.Flow, err = stringField(r, "flow"); err != nil {
		return ClientEntry{}, err
	}
	return e, nil
}

// RealitySettings is the subset of streamSettings.realitySettings used for links
type RealitySettings struct {
	ServerNames []string
	ShortIDs    []string
	PrivateKey  string
}

// StreamSettings is a read-only view of inbounds[0].streamSettings
type StreamSettings struct {
	Network  string
	Security string
	Reality  RealitySettings
}

// FirstServerName returns serverNames[0] or ""
func (s StreamSettings) FirstServerName() string {
	if len(s.Reality.ServerNames) == 0 {
		return ""
	}
	return s.Reality.ServerNames[0]
}

// FirstShortID returns shortIds[0] or ""
func (s StreamSettings) FirstShortID() string {
	if len(s.Reality.ShortIDs) == 0 {
		return ""
	}
	return s.Reality.ShortIDs[0]
}

// ProxyConfig is a parsed proxy configuration
type ProxyConfig struct {
	data []byte

	Protocol string
	Tag      string
	Port     int
	Stream   StreamSettings

	clients []ClientEntry
	// replaced is set by SetClients; until then Encode leaves the client list bytes alone
	replaced bool
}

// Parse decodes proxy configuration bytes. Comments and trailing commas are
// accepted. Any structural problem is reported as ConfigCorruptError.
func Parse(path string, data []byte) (*ProxyConfig, error) {
	corrupt := func(err error) error {
		return &coreerrors.ConfigCorruptError{Path: path, Cause: err}
	}

	if !gjson.ValidBytes(data) {
		data = jsonc.ToJSON(data)
		if !gjson.ValidBytes(data) {
			return nil, corrupt(errors.New("invalid JSON"))
		}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, corrupt(errors.New("top level is not an object"))
	}

	inbounds := root.Get("inbounds")
	if inbounds.Exists() && !inbounds.IsArray() {
		return nil, corrupt(fmt.Errorf("inbounds: expected array, got %s", inbounds.Raw))
	}
	inbound := root.Get(inboundPath)
	if !inbound.Exists() {
		return nil, corrupt(coreerrors.ErrNoInbound)
	}
	if !inbound.IsObject() {
		return nil, corrupt(fmt.Errorf("inbounds[0]: expected object, got %s", inbound.Raw))
	}

	c := &ProxyConfig{data: data}
	var err error
	if c.Protocol, err = stringField(inbound, "protocol"); err != nil {
		return nil, corrupt(fmt.Errorf("inbounds[0].%w", err))
	}
	c.Tag = inbound.Get("tag").String()
	c.Port = int(inbound.Get("port").Int())

	if err := c.parseStream(inbound.Get("streamSettings")); err != nil {
		return nil, corrupt(fmt.Errorf("inbounds[0].streamSettings: %w", err))
	}

	settings := inbound.Get("settings")
	if !isObjectOrNull(settings) {
		return nil, corrupt(fmt.Errorf("inbounds[0].settings: expected object, got %s", settings.Raw))
	}
	clients := settings.Get("clients")
	if !clients.IsArray() && clients.Type != gjson.Null {
		return nil, corrupt(fmt.Errorf("inbounds[0].settings.clients: expected array, got %s", clients.Raw))
	}
	for i, r := range clients.Array() {
		e, err := parseClient(r)
		if err != nil {
			return nil, corrupt(fmt.Errorf("inbounds[0].settings.clients[%d]: %w", i, err))
		}
		c.clients = append(c.clients, e)
	}

	return c, nil
}

func (c *ProxyConfig) parseStream(stream gjson.Result) error {
	if !isObjectOrNull(stream) {
		return fmt.Errorf("expected object, got %s", stream.Raw)
	}
	var err error
	if c.Stream.Network, err = stringField(stream, "network"); err != nil {
		return err
	}
	if c.Stream.Security, err = stringField(stream, "security"); err != nil {
		return err
	}

	reality := stream.Get("realitySettings")
	if !isObjectOrNull(reality) {
		return fmt.Errorf("realitySettings: expected object, got %s", reality.Raw)
	}
	if c.Stream.Reality.PrivateKey, err = stringField(reality, "privateKey"); err != nil {
		return fmt.Errorf("realitySettings.%w", err)
	}
	if c.Stream.Reality.ServerNames, err = stringList(reality, "serverNames"); err != nil {
		return fmt.Errorf("realitySettings.%w", err)
	}
	if c.Stream.Reality.ShortIDs, err = stringList(reality, "shortIds"); err != nil {
		return fmt.Errorf("realitySettings.%w", err)
	}
	return nil
}

// Encode returns the original document, with the client list written back
// if it was replaced, ending in a newline
func (c *ProxyConfig) Encode() ([]byte, error) {
	if !c.replaced {
		return withNewline(c.data), nil
	}
	clients := c.clients
	if clients == nil {
		clients = []ClientEntry{}
	}
	raw, err := json.Marshal(clients)
	if err != nil {
		return nil, err
	}
	out, err := sjson.SetRawBytes(c.data, clientsPath, raw)
	if err != nil {
		return nil, err
	}
	return withNewline(out), nil
}

func withNewline(data []byte) []byte {
	out := make([]byte, len(data), len(data)+1)
	copy(out, data)
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out
}

// Clients returns a copy of the client list
func (c *ProxyConfig) Clients() []ClientEntry {
	out := make([]ClientEntry, len(c.clients))
	copy(out, c.clients)
	return out
}

// SetClients replaces the client list
func (c *ProxyConfig) SetClients(clients []ClientEntry) {
	c.clients = append([]ClientEntry(nil), clients...)
	c.replaced = true
}

// FindClient returns the entry whose id equals userID
func (c *ProxyConfig) FindClient(userID string) (ClientEntry, bool) {
	for _, e := range c.clients {
		if e.ID == userID {
			return e, true
		}
	}
	return ClientEntry{}, false
}

// ClientIDs returns the ids in config order
func (c *ProxyConfig) ClientIDs() []string {
	ids := make([]string, 0, len(c.clients))
	for _, e := range c.clients {
		ids = append(ids, e.ID)
	}
	return ids
}

// ApplyRealityKeys writes privateKey and shortIds[0] into
// inbounds[0].streamSettings.realitySettings. It reports whether anything changed.
func (c *ProxyConfig) ApplyRealityKeys(privateKey, shortID string) (bool, error) {
	data := c.data
	reality := c.Stream.Reality
	changed := false
	var err error

	if privateKey != "" && reality.PrivateKey != privateKey {
		if data, err = sjson.SetBytes(data, realityPath+".privateKey", privateKey); err != nil {
			return false, err
		}
		reality.PrivateKey = privateKey
		changed = true
	}
	if shortID != "" && (len(reality.ShortIDs) == 0 || reality.ShortIDs[0] != shortID) {
		shortIDs := append([]string{shortID}, removeString(reality.ShortIDs, shortID)...)
		if data, err = sjson.SetBytes(data, realityPath+".shortIds", shortIDs); err != nil {
			return false, err
		}
		reality.ShortIDs = shortIDs
		changed = true
	}
	if !changed {
		return false, nil
	}

	c.data = data
	c.Stream.Reality = reality
	return true, nil
}

func isObjectOrNull(r gjson.Result) bool {
	return r.IsObject() || r.Type == gjson.Null
}

// stringField reads a string member; absent or null reads as ""
func stringField(r gjson.Result, key string) (string, error) {
	v := r.Get(key)
	switch v.Type {
	case gjson.Null:
		return "", nil
	case gjson.String:
		return v.Str, nil
	}
	return "", fmt.Errorf("%s: expected string, got %s", key, v.Raw)
}

func stringList(r gjson.Result, key string) ([]string, error) {
	v := r.Get(key)
	if v.Type == gjson.Null {
		return nil, nil
	}
	if !v.IsArray() {
		return nil, fmt.Errorf("%s: expected array, got %s", key, v.Raw)
	}
	var out []string
	for i, item := range v.Array() {
		if item.Type != gjson.String {
			return nil, fmt.Errorf("%s[%d]: expected string, got %s", key, i, item.Raw)
		}
		out = append(out, item.Str)
	}
	return out, nil
}

func removeString(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
