package irc

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"git.sr.ht/~chat/ircore"
	"git.sr.ht/~chat/ircore/internal/pacing"
)

// ServerConfig is the per-server configuration loaded by the root package;
// the Client reads it directly.
type ServerConfig = ircore.ServerConfig

// PasswordNick is the root package's "IDENTIFY <password> <nick>" word order.
const PasswordNick = ircore.PasswordNick

// whoPollToken is the fixed WHOX token this client stamps onto every
// self-initiated WHO poll, so replies can be told apart from a WHO issued by
// a UI-driven WHOIS-like query.
const whoPollToken = "999"

// ClientOptions carries the identity/diagnostics knobs that aren't part of a
// server's ServerConfig (itself limited to the fields spec'd in §6): the
// strings a CTCP SOURCE/VERSION query answers with, and the logger and pacing
// rate used for unsolicited outbound traffic.
type ClientOptions struct {
	SourceURL     string
	VersionString string

	Logger *zap.Logger

	PaceEventsPerSecond float64
	PaceBurst           int
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.VersionString == "" {
		o.VersionString = "ircore"
	}
	if o.PaceEventsPerSecond <= 0 {
		o.PaceEventsPerSecond = 1
	}
	if o.PaceBurst <= 0 {
		o.PaceBurst = 5
	}
	return o
}

// Client is the per-server protocol state machine. It is not safe for
// concurrent use: every method must be called from the single goroutine that
// owns this connection.
type Client struct {
	out chan<- Message
	cfg ServerConfig
	opt ClientOptions

	log  *zap.Logger
	pace *pacing.Limiter

	auth SASLClient

	step          RegistrationStep
	resolvedNick  bool
	nick          string
	nickCf        string
	altNickIndex  int
	username      string
	realname      string
	account       string
	host          string

	availableCaps map[string]string
	capOrder      []string // availableCaps' keys, in first-advertised order.
	enabledCaps   map[string]struct{}

	isupport ISupport

	channels map[string]*Channel
	users    map[string]*User

	corr correlator

	rerouteActive bool
	rerouteCtx    Context

	registrationRequiredChannels []string

	blackout HighlightBlackout
}

// NewClient returns a fresh Client for one server connection. out is the
// non-blocking outbound sink; sends past connect() use a best-effort
// try-send and are logged and swallowed on failure.
func NewClient(out chan<- Message, cfg ServerConfig, auth SASLClient, opt ClientOptions) *Client {
	opt = opt.withDefaults()
	return &Client{
		out:           out,
		cfg:           cfg,
		opt:           opt,
		log:           opt.Logger,
		pace:          pacing.New(opt.PaceEventsPerSecond, opt.PaceBurst),
		auth:          auth,
		username:      cfg.Username,
		realname:      cfg.Realname,
		availableCaps: map[string]string{},
		enabledCaps:   map[string]struct{}{},
		isupport:      NewISupport(),
		channels:      map[string]*Channel{},
		users:         map[string]*User{},
		corr:          newCorrelator(),
		blackout:      NewHighlightBlackout(time.Now()),
	}
}

// Receive processes one inbound decoded message and returns the Events it
// produces. now is the caller's monotonic clock, used for label generation
// and WHO-tracking timestamps.
func (c *Client) Receive(now time.Time, msg Message) ([]Event, error) {
	return c.receive(now, msg)
}

// casemap applies the server's current casemapping, defaulting to RFC1459
// until CASEMAPPING is advertised.
func (c *Client) casemap(s string) string {
	return c.isupport.Casemap(s)
}

// Nick returns the nickname currently in use, resolved or not.
func (c *Client) Nick() string {
	return c.nick
}

// IsMe reports whether nick (as received on the wire) names this client.
func (c *Client) IsMe(nick string) bool {
	return c.nickCf != "" && c.casemap(nick) == c.nickCf
}

// Channels returns the names of the channels this client currently believes
// itself joined to.
func (c *Client) Channels() []string {
	names := make([]string, 0, len(c.channels))
	for _, ch := range c.channels {
		names = append(names, ch.Name)
	}
	return names
}

// trySend attempts to push msg to the outbound sink without blocking.
// Failures on unsolicited writes are logged and swallowed, per spec §5;
// failures during connect() are returned to the caller instead.
func (c *Client) trySend(msg Message) bool {
	select {
	case c.out <- msg:
		return true
	default:
		c.log.Warn("dropped outbound message: sink full", zap.String("command", msg.Command))
		return false
	}
}

// send attaches a label (if labeled-response is enabled) and tries to send
// msg, registering its Context for reply correlation.
func (c *Client) send(now time.Time, msg Message, ctx Context) {
	if _, ok := c.enabledCaps["labeled-response"]; ok {
		label := c.corr.nextLabel(now)
		msg = msg.WithTag("label", label)
		c.corr.registerLabel(label, ctx)
	}
	c.trySend(msg)
}

// Connect begins registration: CAP LS 302, optional PASS, NICK, USER, in
// that order. A send failure here propagates, per spec §5 ("failures during
// the initial connect handshake propagate").
func (c *Client) Connect() error {
	required := []Message{NewMessage("CAP", "LS", "302")}
	if c.cfg.Password != "" {
		required = append(required, NewMessage("PASS", c.cfg.Password))
	}
	required = append(required,
		NewMessage("NICK", c.cfg.Nickname),
		NewMessage("USER", c.username, "0", "*", c.realname),
	)

	for _, msg := range required {
		select {
		case c.out <- msg:
		default:
			return fmt.Errorf("irc: connect: outbound sink unavailable sending %s", msg.Command)
		}
	}

	c.step = StepList
	return nil
}

// Join requests to join channels, grouping the request via the shaper and
// the configured channel keys.
func (c *Client) Join(channels []string) {
	for _, msg := range groupJoins(channels, c.cfg.ChannelKeys) {
		c.trySend(msg)
	}
}

// Send issues an ordinary outbound chat message (PRIVMSG/NOTICE) to target.
// When labeled-response is enabled the message is tagged with a label bound
// to a buffer Context, so the echo of our own send can be recognized and
// suppressed by handleMessage instead of surfacing twice. Without
// labeled-response no Context is recorded and the echo surfaces as usual.
func (c *Client) Send(now time.Time, target string, msg Message) {
	c.send(now, msg, Context{Kind: ContextBuffer, Upstream: target})
}

// SendQuery issues a command that correlates its replies back to upstream
// (a UI buffer identifier): WHOIS/WHOWAS/WHO, or MODE on a non-channel
// target. When labeled-response is enabled the command is tagged with a
// fresh label; otherwise it starts response rerouting (spec §4.2.3).
func (c *Client) SendQuery(now time.Time, upstream string, msg Message) {
	kind := ContextBuffer
	if msg.Command == "WHOIS" {
		kind = ContextWhois
	}
	ctx := Context{Kind: kind, Upstream: upstream}

	if _, labeled := c.enabledCaps["labeled-response"]; labeled {
		c.send(now, msg, ctx)
		return
	}

	target := ""
	if len(msg.Params) > 0 {
		target = msg.Params[0]
	}
	if startsReroute(msg.Command, target, c.isupport.IsChannel) {
		c.rerouteActive = true
		c.rerouteCtx = ctx
	}
	c.trySend(msg)
}

// Quit sends a best-effort QUIT with the given reason.
func (c *Client) Quit(reason string) {
	c.trySend(NewMessage("QUIT", reason))
}

// MarkRead sends an outbound MARKREAD for target, if draft/read-marker was
// negotiated.
func (c *Client) MarkRead(target, marker string) {
	if _, ok := c.enabledCaps["draft/read-marker"]; !ok {
		return
	}
	c.trySend(NewMessage("MARKREAD", target, fmt.Sprintf("timestamp=%s", marker)))
}

// Tick advances time-driven state: the highlight blackout, and WHO
// poll/retry for every joined channel, per spec §4.2.6.
func (c *Client) Tick(now time.Time) {
	c.tick(now)
}

func (c *Client) tick(now time.Time) {
	c.blackout.Tick(now)

	if !c.cfg.WhoPollEnabled {
		return
	}
	_, awayNotify := c.enabledCaps["away-notify"]
	if awayNotify {
		return
	}

	for _, ch := range c.channels {
		switch ch.Who.Kind {
		case WhoDone:
			if now.Sub(ch.Who.When) >= time.Duration(c.cfg.WhoPollInterval)*time.Second {
				c.sendWho(now, ch)
			}
		case WhoRequested:
			if now.Sub(ch.Who.When) >= time.Duration(c.cfg.WhoRetryInterval)*time.Second {
				c.sendWho(now, ch)
			}
		}
	}
}

// sendWho issues a WHO (WHOX form when advertised) for ch and marks it
// Requested.
func (c *Client) sendWho(now time.Time, ch *Channel) {
	if !c.pace.Allow() {
		return
	}

	_, accountNotify := c.enabledCaps["account-notify"]

	if c.isupport.WhoxEnabled {
		fields := "tcnf"
		if accountNotify {
			fields = "tcnfa"
		}
		c.trySend(NewMessage("WHO", ch.Name, fields+","+whoPollToken))
		ch.Who = WhoStatus{Kind: WhoRequested, When: now, Token: whoPollToken, HasToken: true}
	} else {
		c.trySend(NewMessage("WHO", ch.Name))
		ch.Who = WhoStatus{Kind: WhoRequested, When: now}
	}
}

// cleanUser removes u from the user table once it no longer belongs to any
// channel.
func (c *Client) cleanUser(u *User) {
	for _, ch := range c.channels {
		if _, ok := ch.Members[u]; ok {
			return
		}
	}
	delete(c.users, c.casemap(u.Name.Name))
}

// ensureUser returns the shared User for nick, creating it if unseen.
func (c *Client) ensureUser(prefix *Prefix) *User {
	nickCf := c.casemap(prefix.Name)
	if u, ok := c.users[nickCf]; ok {
		return u
	}
	u := &User{Name: prefix.Copy()}
	c.users[nickCf] = u
	return u
}

// channelsSharedWith returns the names of channels both this client and nick
// currently occupy, used for INVITE's Broadcast.Shared field.
func (c *Client) channelsSharedWith(nick string) []string {
	nickCf := c.casemap(nick)
	u, ok := c.users[nickCf]
	if !ok {
		return nil
	}
	var shared []string
	for _, ch := range c.channels {
		if _, ok := ch.Members[u]; ok {
			shared = append(shared, ch.Name)
		}
	}
	return shared
}

// flushRegistrationRequiredChannels joins every channel queued behind
// ERR_NOCHANMODES/ERR_NEEDREGGEDNICK or a pending SASL/ACCOUNT resolution.
func (c *Client) flushRegistrationRequiredChannels() {
	if len(c.registrationRequiredChannels) == 0 {
		return
	}
	c.Join(c.registrationRequiredChannels)
	c.registrationRequiredChannels = nil
}
