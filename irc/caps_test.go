package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWantCapabilitiesRequestsSupportedOnes(t *testing.T) {
	order := []string{"away-notify", "server-time", "unsupported-cap"}
	advertised := map[string]string{
		"away-notify":     "",
		"server-time":     "",
		"unsupported-cap": "",
	}
	want := wantCapabilities(order, advertised, false)
	assert.Contains(t, want, "away-notify")
	assert.Contains(t, want, "server-time")
	assert.NotContains(t, want, "unsupported-cap")
}

func TestWantCapabilitiesPreservesAdvertisedOrder(t *testing.T) {
	order := []string{"server-time", "message-tags", "batch"}
	advertised := map[string]string{"server-time": "", "message-tags": "", "batch": ""}
	want := wantCapabilities(order, advertised, false)
	assert.Equal(t, []string{"server-time", "message-tags", "batch"}, want,
		"CAP REQ must request capabilities in the order the server advertised them")
}

func TestWantCapabilitiesConditionalExtendedJoin(t *testing.T) {
	without := wantCapabilities([]string{"extended-join"}, map[string]string{"extended-join": ""}, false)
	assert.NotContains(t, without, "extended-join")

	order := []string{"account-notify", "extended-join"}
	advertised := map[string]string{"account-notify": "", "extended-join": ""}
	with := wantCapabilities(order, advertised, false)
	assert.Contains(t, with, "extended-join")
	assert.Contains(t, with, "account-notify")
}

func TestWantCapabilitiesConditionalEchoMessage(t *testing.T) {
	without := wantCapabilities([]string{"echo-message"}, map[string]string{"echo-message": ""}, false)
	assert.NotContains(t, without, "echo-message")

	order := []string{"labeled-response", "echo-message"}
	advertised := map[string]string{"labeled-response": "", "echo-message": ""}
	with := wantCapabilities(order, advertised, false)
	assert.Contains(t, with, "echo-message")
	assert.Contains(t, with, "labeled-response")
}

func TestWantCapabilitiesSASLOnlyWhenAuthConfigured(t *testing.T) {
	order := []string{"sasl"}
	advertised := map[string]string{"sasl": "PLAIN,EXTERNAL"}

	without := wantCapabilities(order, advertised, false)
	assert.NotContains(t, without, "sasl")

	with := wantCapabilities(order, advertised, true)
	assert.Contains(t, with, "sasl")
}

func TestAppendUniqueNoDuplicates(t *testing.T) {
	list := appendUnique([]string{"a", "b"}, "a")
	assert.Equal(t, []string{"a", "b"}, list)

	list = appendUnique(list, "c")
	assert.Equal(t, []string{"a", "b", "c"}, list)
}

func TestRememberCapPreservesFirstSeenOrder(t *testing.T) {
	c, _ := newTestClient(ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}, nil)
	c.rememberCap("server-time", "")
	c.rememberCap("message-tags", "")
	c.rememberCap("server-time", "updated-value")

	assert.Equal(t, []string{"server-time", "message-tags"}, c.capOrder)
	assert.Equal(t, "updated-value", c.availableCaps["server-time"])
}

func TestForgetCapRemovesFromOrderAndEnabled(t *testing.T) {
	c, _ := newTestClient(ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}, nil)
	c.rememberCap("server-time", "")
	c.rememberCap("batch", "")
	c.enabledCaps["batch"] = struct{}{}

	c.forgetCap("batch")

	assert.Equal(t, []string{"server-time"}, c.capOrder)
	_, stillAvailable := c.availableCaps["batch"]
	assert.False(t, stillAvailable)
	_, stillEnabled := c.enabledCaps["batch"]
	assert.False(t, stillEnabled)
}
