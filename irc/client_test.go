package irc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(cfg ServerConfig, auth SASLClient) (*Client, chan Message) {
	out := make(chan Message, 256)
	c := NewClient(out, cfg, auth, ClientOptions{SourceURL: "https://example.test", VersionString: "test"})
	return c, out
}

func drain(out chan Message) []Message {
	var msgs []Message
	for {
		select {
		case m := <-out:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func TestConnectSendsRegistrationInOrder(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice", Password: "serverpass"}
	c, out := newTestClient(cfg, nil)

	err := c.Connect()
	require.NoError(t, err)

	msgs := drain(out)
	require.Len(t, msgs, 4)
	assert.Equal(t, "CAP", msgs[0].Command)
	assert.Equal(t, "PASS", msgs[1].Command)
	assert.Equal(t, "NICK", msgs[2].Command)
	assert.Equal(t, "USER", msgs[3].Command)
	assert.Equal(t, StepList, c.step)
}

func TestConnectWithoutPasswordSkipsPASS(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}
	c, out := newTestClient(cfg, nil)

	require.NoError(t, c.Connect())
	msgs := drain(out)
	require.Len(t, msgs, 3)
	assert.Equal(t, "CAP", msgs[0].Command)
	assert.Equal(t, "NICK", msgs[1].Command)
	assert.Equal(t, "USER", msgs[2].Command)
}

func TestCapNegotiationWithoutSASLEndsImmediately(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}
	c, out := newTestClient(cfg, nil)
	require.NoError(t, c.Connect())
	drain(out)

	_, err := c.receive(time.Now(), NewMessage("CAP", "*", "LS", "some-unsupported-capability"))
	require.NoError(t, err)

	msgs := drain(out)
	require.Len(t, msgs, 1)
	assert.Equal(t, "CAP", msgs[0].Command)
	assert.Equal(t, "END", msgs[0].Params[0])
	assert.Equal(t, StepEnd, c.step)
}

func TestSASLPlainHandshakeFlow(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}
	auth := &SASLPlain{Username: "bob", Password: "hunter2"}
	c, out := newTestClient(cfg, auth)
	require.NoError(t, c.Connect())
	drain(out)

	_, err := c.receive(time.Now(), NewMessage("CAP", "*", "LS", "sasl=PLAIN"))
	require.NoError(t, err)
	msgs := drain(out)
	require.Len(t, msgs, 1)
	assert.Equal(t, "CAP", msgs[0].Command)
	assert.Equal(t, "REQ", msgs[0].Params[0])

	_, err = c.receive(time.Now(), NewMessage("CAP", "*", "ACK", "sasl"))
	require.NoError(t, err)
	msgs = drain(out)
	require.Len(t, msgs, 1)
	assert.Equal(t, "AUTHENTICATE", msgs[0].Command)
	assert.Equal(t, "PLAIN", msgs[0].Params[0])
	assert.Equal(t, StepSasl, c.step)

	_, err = c.receive(time.Now(), NewMessage("AUTHENTICATE", "+"))
	require.NoError(t, err)
	msgs = drain(out)
	require.Len(t, msgs, 2)
	assert.Equal(t, "AUTHENTICATE", msgs[0].Command)
	assert.Equal(t, "Ym9iAGJvYgBodW50ZXIy", msgs[0].Params[0])
	assert.Equal(t, "CAP", msgs[1].Command)
	assert.Equal(t, "END", msgs[1].Params[0])
	assert.Equal(t, StepEnd, c.step)
}

func TestAltNickExhaustionStopsAdvancing(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice", AltNicks: []string{"alice_", "alice__"}}
	c, out := newTestClient(cfg, nil)
	require.NoError(t, c.Connect())
	drain(out)

	_, err := c.receive(time.Now(), NewMessage(errNicknameinuse, "*", "alice", "nickname in use"))
	require.NoError(t, err)
	msgs := drain(out)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"NICK", "alice_"}, append([]string{msgs[0].Command}, msgs[0].Params...))

	_, err = c.receive(time.Now(), NewMessage(errNicknameinuse, "*", "alice_", "nickname in use"))
	require.NoError(t, err)
	msgs = drain(out)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice__", msgs[0].Params[0])

	_, err = c.receive(time.Now(), NewMessage(errNicknameinuse, "*", "alice__", "nickname in use"))
	require.NoError(t, err)
	msgs = drain(out)
	assert.Len(t, msgs, 0, "alt nicks exhausted, no further NICK sent")
}

func TestNickCollisionIgnoredAfterRegistration(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice", AltNicks: []string{"alice_"}}
	c, out := newTestClient(cfg, nil)
	require.NoError(t, c.Connect())
	drain(out)

	_, err := c.receive(time.Now(), NewMessage(rplWelcome, "alice", "welcome"))
	require.NoError(t, err)
	drain(out)
	assert.True(t, c.resolvedNick)

	_, err = c.receive(time.Now(), NewMessage(errNicknameinuse, "*", "alice", "nickname in use"))
	require.NoError(t, err)
	msgs := drain(out)
	assert.Len(t, msgs, 0, "nick collision after registration is not ours to resolve")
}

func TestJoinGroupsByByteBudget(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}
	c, out := newTestClient(cfg, nil)

	var channels []string
	for i := 0; i < 80; i++ {
		channels = append(channels, "#channel-number")
	}
	c.Join(channels)

	msgs := drain(out)
	assert.Greater(t, len(msgs), 1)
	for _, m := range msgs {
		assert.LessOrEqual(t, len(m.String()), maxLineLen)
	}
}

func TestSendQueryReroutesWithoutLabeledResponse(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}
	c, out := newTestClient(cfg, nil)

	c.SendQuery(time.Now(), "buffer-alice", NewMessage("WHOIS", "alice"))
	msgs := drain(out)
	require.Len(t, msgs, 1)
	assert.Equal(t, "WHOIS", msgs[0].Command)
	assert.True(t, c.rerouteActive)
	assert.Equal(t, "buffer-alice", c.rerouteCtx.Upstream)

	events, err := c.receive(time.Now(), NewMessage(rplEndofwhois, "myself", "alice", "End of WHOIS"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	wt, ok := events[0].(WithTarget)
	require.True(t, ok)
	assert.Equal(t, "buffer-alice", wt.Target)
	assert.False(t, c.rerouteActive, "reroute ends at RPL_ENDOFWHOIS")
}

func TestSendQueryUsesLabelWhenLabeledResponseEnabled(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}
	c, out := newTestClient(cfg, nil)
	c.enabledCaps["labeled-response"] = struct{}{}

	now := time.Now()
	c.SendQuery(now, "buffer-bob", NewMessage("WHOIS", "bob"))
	msgs := drain(out)
	require.Len(t, msgs, 1)
	label, ok := msgs[0].Tags["label"]
	require.True(t, ok)

	reply := NewMessage(rplEndofwhois, "myself", "bob", "End of WHOIS").WithTag("label", label)
	events, err := c.receive(now, reply)
	require.NoError(t, err)
	require.Len(t, events, 1)
	wt, ok := events[0].(WithTarget)
	require.True(t, ok)
	assert.Equal(t, "buffer-bob", wt.Target)
}

func TestSendTagsLabelAndSuppressesOwnEcho(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}
	c, out := newTestClient(cfg, nil)
	c.nick, c.nickCf = "alice", "alice"
	c.enabledCaps["labeled-response"] = struct{}{}
	c.enabledCaps["echo-message"] = struct{}{}

	now := time.Now()
	c.Send(now, "#chan", NewMessage("PRIVMSG", "#chan", "hi all"))
	msgs := drain(out)
	require.Len(t, msgs, 1)
	label, ok := msgs[0].Tags["label"]
	require.True(t, ok, "Send must tag the outbound message so its echo can be recognized")

	echo := NewMessage("PRIVMSG", "#chan", "hi all").WithTag("label", label)
	echo.Prefix = &Prefix{Name: "alice"}
	events, err := c.receive(now, echo)
	require.NoError(t, err)
	assert.Nil(t, events, "the echo of our own Send must be suppressed")
}

func TestSendWithoutLabeledResponseStillDelivers(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}
	c, out := newTestClient(cfg, nil)

	c.Send(time.Now(), "#chan", NewMessage("PRIVMSG", "#chan", "hi all"))
	msgs := drain(out)
	require.Len(t, msgs, 1)
	_, hasLabel := msgs[0].Tags["label"]
	assert.False(t, hasLabel, "no label is attached when labeled-response isn't negotiated")
}

func TestJoinAndPartUpdateChannelState(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}
	c, out := newTestClient(cfg, nil)
	c.nick = "alice"
	c.nickCf = "alice"
	c.resolvedNick = true

	selfJoin := Message{Prefix: &Prefix{Name: "alice"}, Command: "JOIN", Params: []string{"#chan"}}
	events, err := c.receive(time.Now(), selfJoin)
	require.NoError(t, err)
	require.Len(t, events, 1)
	joined, ok := events[0].(JoinedChannel)
	require.True(t, ok)
	assert.Equal(t, "#chan", joined.Name)
	assert.Contains(t, c.Channels(), "#chan")

	otherJoin := Message{Prefix: &Prefix{Name: "bob", User: "b", Host: "h"}, Command: "JOIN", Params: []string{"#chan"}}
	_, err = c.receive(time.Now(), otherJoin)
	require.NoError(t, err)
	ch := c.channels[c.casemap("#chan")]
	require.NotNil(t, ch)
	assert.Len(t, ch.Members, 1)

	part := Message{Prefix: &Prefix{Name: "bob"}, Command: "PART", Params: []string{"#chan"}}
	_, err = c.receive(time.Now(), part)
	require.NoError(t, err)
	assert.Len(t, ch.Members, 0)
	_, stillKnown := c.users[c.casemap("bob")]
	assert.False(t, stillKnown, "user with no shared channels is forgotten")
}

func TestNickChangeRoundTripRestoresChanmap(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}
	c, _ := newTestClient(cfg, nil)

	bob := &User{Name: &Prefix{Name: "bob"}}
	c.users["bob"] = bob
	ch := &Channel{Name: "#chan", Members: map[*User]string{bob: "o"}}
	c.channels["#chan"] = ch

	_, err := c.receive(time.Now(), Message{Prefix: &Prefix{Name: "bob"}, Command: "NICK", Params: []string{"bobby"}})
	require.NoError(t, err)
	assert.Equal(t, ch.Members[bob], "o")
	_, hasOld := c.users["bob"]
	assert.False(t, hasOld)
	assert.Same(t, bob, c.users["bobby"])

	_, err = c.receive(time.Now(), Message{Prefix: &Prefix{Name: "bobby"}, Command: "NICK", Params: []string{"bob"}})
	require.NoError(t, err)
	assert.Same(t, bob, c.users["bob"])
	assert.Equal(t, ch.Members[bob], "o", "access level untouched by nick round trip")
}

func TestQuitSnapshotsChannelsBeforeMutation(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice"}
	c, _ := newTestClient(cfg, nil)

	bob := &User{Name: &Prefix{Name: "bob"}}
	c.users["bob"] = bob
	c.channels["#a"] = &Channel{Name: "#a", Members: map[*User]string{bob: ""}}
	c.channels["#b"] = &Channel{Name: "#b", Members: map[*User]string{bob: ""}}

	events, err := c.receive(time.Now(), Message{Prefix: &Prefix{Name: "bob"}, Command: "QUIT", Params: []string{"bye"}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	broadcast, ok := events[0].(Broadcast)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"#a", "#b"}, broadcast.Channels)
}

func TestTickPollsStaleChannel(t *testing.T) {
	cfg := ServerConfig{Nickname: "alice", Username: "alice", Realname: "Alice", WhoPollEnabled: true, WhoPollInterval: 5, WhoRetryInterval: 5}
	c, out := newTestClient(cfg, nil)
	now := time.Unix(1700000000, 0)
	c.channels["#chan"] = &Channel{Name: "#chan", Members: map[*User]string{}, Who: WhoStatus{Kind: WhoDone, When: now}}

	c.tick(now.Add(4 * time.Second))
	assert.Len(t, drain(out), 0, "not yet due")

	c.tick(now.Add(6 * time.Second))
	msgs := drain(out)
	require.Len(t, msgs, 1)
	assert.Equal(t, "WHO", msgs[0].Command)
}
