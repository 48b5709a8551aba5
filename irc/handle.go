package irc

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// receive is the single entry point for an inbound decoded message. It
// dispatches to handleOne and folds the result into the open batch named by
// the message's batch tag, if any. Labels are resolved per message (by
// defaultEvent and handleMessage); a Context recorded on an open batch by
// handleBatchCommand is kept with the batch but is not applied to the
// messages inside it.
func (c *Client) receive(now time.Time, msg Message) ([]Event, error) {
	label, _ := msg.Tags["label"]
	batchTag, hasBatch := msg.Tags["batch"]

	if msg.Command == "BATCH" {
		return c.handleBatchCommand(now, msg, label)
	}

	if hasBatch {
		evs, err := c.handleOne(now, msg, label)
		var direct []Event
		for _, ev := range evs {
			if !c.corr.appendToBatch(batchTag, ev) {
				direct = append(direct, ev)
			}
		}
		return direct, err
	}

	return c.handleOne(now, msg, label)
}

func (c *Client) handleBatchCommand(now time.Time, msg Message, label string) ([]Event, error) {
	if len(msg.Params) < 1 || len(msg.Params[0]) < 2 {
		return nil, fmt.Errorf("irc: BATCH: %w", ErrMalformedCommand)
	}

	ref := msg.Params[0][1:]

	if msg.Params[0][0] == '+' {
		parent, _ := msg.Tags["batch"]
		ctx := c.corr.resolveContext(parent, label, nil)
		c.corr.openBatch(ref, parent, ctx)
		return nil, nil
	}

	events, isRoot := c.corr.closeBatch(ref)
	if !isRoot {
		return nil, nil
	}
	return events, nil
}

// handleOne dispatches a single (non-BATCH) message to its handler and
// returns the Events it produces.
func (c *Client) handleOne(now time.Time, msg Message, label string) ([]Event, error) {
	if !msg.IsValid() {
		return nil, fmt.Errorf("irc: %s: %w", msg.Command, ErrMalformedCommand)
	}

	switch msg.Command {
	case "PING":
		c.trySend(NewMessage("PONG", msg.Params[0]))
		return nil, nil
	case "ERROR":
		return nil, nil
	case "CAP":
		return c.handleCAP(now, msg)
	case "AUTHENTICATE":
		return c.handleAuthenticate(msg)
	case "NICK":
		return c.handleNick(msg)
	case "JOIN":
		return c.handleJoin(now, msg)
	case "PART":
		return c.handlePart(msg)
	case "KICK":
		return c.handleKick(msg)
	case "QUIT":
		return c.handleQuit(msg)
	case "TOPIC":
		return c.handleTopicCmd(msg)
	case "MODE":
		return c.handleMode(now, msg)
	case "AWAY":
		return c.handleAway(msg)
	case "ACCOUNT":
		return c.handleAccount(msg)
	case "CHGHOST":
		return c.handleChghost(msg)
	case "INVITE":
		return c.handleInvite(msg)
	case "PRIVMSG", "NOTICE":
		return c.handleMessage(now, msg, label)
	case "TAGMSG":
		return nil, nil
	case "MARKREAD":
		return c.handleMarkreadCmd(msg)
	case rplWelcome:
		return c.handleWelcome(msg)
	case rplIsupport:
		c.handleIsupport(msg)
		return nil, nil
	case rplNamreply:
		c.handleNamreply(msg)
		return nil, nil
	case rplEndofnames:
		return c.handleEndofnames(msg)
	case rplTopic:
		c.handleRplTopic(msg)
		return c.defaultEvent(msg, label), nil
	case rplTopicwhotime:
		return c.handleRplTopicwhotime(msg)
	case rplNotopic:
		c.handleRplNotopic(msg)
		return c.defaultEvent(msg, label), nil
	case rplWhoreply:
		return c.handleWhoreply(now, msg, label), nil
	case rplWhospcrpl:
		return c.handleWhospcrpl(now, msg, label), nil
	case rplEndofwho:
		c.endWho(now, msg.Params[1])
		return c.endReroute(msg, label), nil
	case rplUnaway, rplNowaway:
		return c.handleSelfAway(msg)
	case rplLoggedin, rplLoggedout:
		return c.handleLoggedInOut(msg)
	case rplMonline:
		return c.splitMonitorEvent(msg, MonitoredOnline), nil
	case rplMoffline:
		return c.splitMonitorEvent(msg, MonitoredOffline), nil
	case rplMonlist, rplEndofmonlist:
		return nil, nil
	case errNicknameinuse, errErroneusnickname:
		return c.handleNickCollision(msg)
	case errNochanmodes:
		return c.handleNochanmodes(msg)
	case rplEndofwhois, rplEndofwhowas, errNosuchnick, errNosuchserver,
		errNonicknamegiven, errWasnosuchnick, errNeedmoreparams,
		errUsersdontmatch, rplUmodeis, errUmodeunknownflag:
		return c.endReroute(msg, label), nil
	default:
		return c.defaultEvent(msg, label), nil
	}
}

// defaultEvent implements the final fallthrough: a reroute or label Context
// in effect produces WithTarget, otherwise Single.
func (c *Client) defaultEvent(msg Message, label string) []Event {
	if ctx, ok := c.corr.takeLabel(label); label != "" && ok {
		return []Event{WithTarget{Message: msg, SelfNick: c.nick, Target: ctx.Upstream}}
	}
	if c.rerouteActive {
		return []Event{WithTarget{Message: msg, SelfNick: c.nick, Target: c.rerouteCtx.Upstream}}
	}
	return []Event{Single{Message: msg, SelfNick: c.nick}}
}

// endReroute emits the final rerouted reply (if any) and then clears the
// reroute state, per spec §4.2.3's numeric list.
func (c *Client) endReroute(msg Message, label string) []Event {
	evs := c.defaultEvent(msg, label)
	c.rerouteActive = false
	return evs
}

// --- registration & capability negotiation (§4.2.1) ---

func (c *Client) handleCAP(now time.Time, msg Message) ([]Event, error) {
	if len(msg.Params) < 3 {
		return nil, fmt.Errorf("irc: CAP: %w", ErrMalformedCommand)
	}

	switch msg.Params[1] {
	case "LS":
		return nil, c.handleCapLS(msg)
	case "ACK":
		return nil, c.handleCapACK(msg)
	case "NAK":
		if c.step < StepSasl {
			c.step = StepEnd
			c.trySend(NewMessage("CAP", "END"))
		}
		return nil, nil
	case "NEW":
		c.requestCaps(ParseCaps(msg.Params[2]))
		return nil, nil
	case "DEL":
		for _, cap := range ParseCaps(msg.Params[2]) {
			c.forgetCap(cap.Name)
		}
		return nil, nil
	}
	return nil, nil
}

func (c *Client) handleCapLS(msg Message) error {
	willContinue := len(msg.Params) >= 4 && msg.Params[2] == "*"
	ls := msg.Params[len(msg.Params)-1]

	for _, cap := range ParseCaps(ls) {
		c.rememberCap(cap.Name, cap.Value)
	}
	if willContinue {
		return nil
	}

	c.step = StepReq
	reqs := wantCapabilities(c.capOrder, c.availableCaps, c.auth != nil)
	if len(reqs) == 0 {
		c.step = StepEnd
		c.trySend(NewMessage("CAP", "END"))
		return nil
	}
	for _, m := range groupCapabilityRequests(reqs) {
		c.trySend(m)
	}
	return nil
}

func (c *Client) requestCaps(newCaps []Cap) {
	for _, cap := range newCaps {
		c.rememberCap(cap.Name, cap.Value)
	}
	reqs := wantCapabilities(c.capOrder, c.availableCaps, c.auth != nil)
	var fresh []string
	for _, name := range reqs {
		if _, already := c.enabledCaps[name]; !already {
			fresh = append(fresh, name)
		}
	}
	for _, m := range groupCapabilityRequests(fresh) {
		c.trySend(m)
	}
}

func (c *Client) handleCapACK(msg Message) error {
	if len(msg.Params) < 3 {
		return fmt.Errorf("irc: CAP ACK: %w", ErrMalformedCommand)
	}
	for _, cap := range ParseCaps(msg.Params[2]) {
		if cap.Enable {
			c.enabledCaps[cap.Name] = struct{}{}
		} else {
			delete(c.enabledCaps, cap.Name)
		}
	}
	c.log.Info("capabilities acknowledged", zap.String("caps", msg.Params[2]))

	if c.step >= StepSasl {
		return nil
	}

	if _, ok := c.enabledCaps["sasl"]; ok && c.auth != nil {
		c.step = StepSasl
		mech := c.auth.Handshake()
		c.log.Info("sasl handshake starting", zap.String("mechanism", mech))
		c.trySend(NewMessage("AUTHENTICATE", mech))
		return nil
	}

	c.step = StepEnd
	c.trySend(NewMessage("CAP", "END"))
	return nil
}

func (c *Client) handleAuthenticate(msg Message) ([]Event, error) {
	if c.auth == nil {
		return nil, nil
	}
	if len(msg.Params) < 1 {
		return nil, fmt.Errorf("irc: AUTHENTICATE: %w", ErrMalformedCommand)
	}
	if msg.Params[0] != "+" {
		return nil, nil
	}

	res, err := c.auth.Respond("+")
	if err != nil {
		c.log.Warn("sasl authentication aborted", zap.Error(err))
		c.trySend(NewMessage("AUTHENTICATE", "*"))
		c.step = StepEnd
		c.trySend(NewMessage("CAP", "END"))
		return nil, nil
	}
	c.log.Info("sasl response sent")
	c.trySend(NewMessage("AUTHENTICATE", res))
	c.step = StepEnd
	c.trySend(NewMessage("CAP", "END"))
	return nil, nil
}

func (c *Client) handleWelcome(msg Message) ([]Event, error) {
	if len(msg.Params) < 1 {
		return nil, fmt.Errorf("irc: %s: %w", rplWelcome, ErrMalformedCommand)
	}

	c.nick = msg.Params[0]
	c.nickCf = c.casemap(c.nick)
	c.resolvedNick = true
	c.users[c.nickCf] = &User{Name: &Prefix{Name: c.nick, User: c.username}}

	if c.cfg.NickPassword != "" {
		if c.cfg.ShouldGhost && c.nick != c.cfg.Nickname {
			for _, seq := range c.cfg.GhostSequence {
				c.trySend(NewMessage("PRIVMSG", "NickServ", fmt.Sprintf("%s %s %s", seq, c.cfg.Nickname, c.cfg.NickPassword)))
			}
		}
		c.trySend(NewMessage("PRIVMSG", "NickServ", "IDENTIFY "+c.identifyArgs()))
	}

	if c.cfg.Umodes != "" {
		c.trySend(NewMessage("MODE", c.nick, c.cfg.Umodes))
	}

	for _, line := range c.cfg.OnConnect {
		if m, err := ParseMessage(line); err == nil {
			c.trySend(m)
		}
	}

	c.Join(c.cfg.Channels)

	return []Event{}, nil
}

// identifyArgs builds the NickServ IDENTIFY argument string: the nick is
// dropped entirely when we already ended up with the desired nick, whatever
// the configured syntax; otherwise NickIdentifySyntax picks the word order,
// NickPassword ("<nick> <password>") being the default.
func (c *Client) identifyArgs() string {
	if c.nick == c.cfg.Nickname {
		return c.cfg.NickPassword
	}
	switch c.cfg.NickIdentifySyntax {
	case PasswordNick:
		return c.cfg.NickPassword + " " + c.cfg.Nickname
	default:
		return c.cfg.Nickname + " " + c.cfg.NickPassword
	}
}

func (c *Client) handleNickCollision(msg Message) ([]Event, error) {
	if c.resolvedNick {
		return nil, nil
	}
	if len(msg.Params) < 2 {
		return nil, fmt.Errorf("irc: %s: %w", msg.Command, ErrMalformedCommand)
	}
	if c.altNickIndex >= len(c.cfg.AltNicks) {
		return nil, nil
	}
	next := c.cfg.AltNicks[c.altNickIndex]
	c.altNickIndex++
	c.trySend(NewMessage("NICK", next))
	return nil, nil
}

func (c *Client) handleLoggedInOut(msg Message) ([]Event, error) {
	if len(msg.Params) < 2 {
		return nil, fmt.Errorf("irc: %s: %w", msg.Command, ErrMalformedCommand)
	}

	c.flushRegistrationRequiredChannels()

	if _, ok := c.enabledCaps["account-notify"]; !ok {
		account := "*"
		if msg.Command == rplLoggedin && len(msg.Params) >= 3 {
			account = msg.Params[2]
		}
		if u, ok := c.users[c.nickCf]; ok {
			u.Account = account
		}
	}
	return nil, nil
}

func (c *Client) handleNochanmodes(msg Message) ([]Event, error) {
	if len(msg.Params) < 2 {
		return nil, fmt.Errorf("irc: %s: %w", errNochanmodes, ErrMalformedCommand)
	}
	channel := msg.Params[1]
	channelCf := c.casemap(channel)
	if _, joined := c.channels[channelCf]; joined {
		return nil, nil
	}
	for _, want := range c.cfg.Channels {
		if c.casemap(want) == channelCf {
			c.registrationRequiredChannels = appendUnique(c.registrationRequiredChannels, channel)
			break
		}
	}
	return nil, nil
}

// --- ISUPPORT (§4.2.7) ---

func (c *Client) handleIsupport(msg Message) {
	tokens := msg.Params[1 : len(msg.Params)-1]
	for _, tok := range tokens {
		before := c.isupport.MonitorLimit
		kind := strings.ToUpper(strings.TrimPrefix(strings.SplitN(tok, "=", 2)[0], "-"))
		c.isupport.Apply(tok)
		c.log.Debug("isupport token applied", zap.String("token", tok))
		if kind == string(ISupportMonitor) && c.isupport.MonitorLimit != before && len(c.cfg.Monitor) > 0 {
			for _, m := range groupMonitors(c.cfg.Monitor, c.isupport.MonitorLimit) {
				c.trySend(m)
			}
		}
	}
}

// --- channel/user state (§4.2.4) ---

func (c *Client) handleJoin(now time.Time, msg Message) ([]Event, error) {
	if msg.Prefix == nil || len(msg.Params) < 1 {
		return nil, fmt.Errorf("irc: JOIN: %w", ErrMalformedCommand)
	}
	channel := msg.Params[0]
	channelCf := c.casemap(channel)

	if c.IsMe(msg.Prefix.Name) {
		ch := &Channel{Name: channel, Members: map[*User]string{}}
		c.channels[channelCf] = ch
		if c.cfg.WhoPollEnabled {
			c.sendWho(now, ch)
		}
		return []Event{JoinedChannel{Name: channel}}, nil
	}

	ch, ok := c.channels[channelCf]
	if !ok {
		return nil, nil
	}
	u := c.ensureUser(msg.Prefix)
	if _, extendedJoin := c.enabledCaps["extended-join"]; extendedJoin && len(msg.Params) >= 2 {
		u.Account = msg.Params[1]
	}
	ch.Members[u] = ""
	return []Event{Single{Message: msg, SelfNick: c.nick}}, nil
}

func (c *Client) handlePart(msg Message) ([]Event, error) {
	if msg.Prefix == nil || len(msg.Params) < 1 {
		return nil, fmt.Errorf("irc: PART: %w", ErrMalformedCommand)
	}
	return c.leaveChannel(msg.Prefix, msg.Params[0], msg)
}

func (c *Client) handleKick(msg Message) ([]Event, error) {
	if msg.Prefix == nil || len(msg.Params) < 2 {
		return nil, fmt.Errorf("irc: KICK: %w", ErrMalformedCommand)
	}
	kicked := ParsePrefix(msg.Params[1])
	return c.leaveChannel(kicked, msg.Params[0], msg)
}

func (c *Client) leaveChannel(who *Prefix, channel string, msg Message) ([]Event, error) {
	channelCf := c.casemap(channel)
	ch, ok := c.channels[channelCf]
	if !ok {
		return nil, nil
	}

	if c.IsMe(who.Name) {
		delete(c.channels, channelCf)
		for u := range ch.Members {
			c.cleanUser(u)
		}
		return []Event{Single{Message: msg, SelfNick: c.nick}}, nil
	}

	nickCf := c.casemap(who.Name)
	u, ok := c.users[nickCf]
	if !ok {
		return nil, nil
	}
	delete(ch.Members, u)
	c.cleanUser(u)
	return []Event{Single{Message: msg, SelfNick: c.nick}}, nil
}

func (c *Client) handleQuit(msg Message) ([]Event, error) {
	if msg.Prefix == nil {
		return nil, fmt.Errorf("irc: QUIT: %w", ErrMalformedCommand)
	}
	nickCf := c.casemap(msg.Prefix.Name)
	u, ok := c.users[nickCf]
	if !ok {
		return nil, nil
	}

	var channels []string
	for _, ch := range c.channels {
		if _, ok := ch.Members[u]; ok {
			channels = append(channels, ch.Name)
			delete(ch.Members, u)
		}
	}
	c.cleanUser(u)

	return []Event{Broadcast{Kind: BroadcastQuit, User: msg.Prefix, Channels: channels}}, nil
}

func (c *Client) handleNick(msg Message) ([]Event, error) {
	if msg.Prefix == nil || len(msg.Params) < 1 {
		return nil, fmt.Errorf("irc: NICK: %w", ErrMalformedCommand)
	}
	nickCf := c.casemap(msg.Prefix.Name)
	newNick := msg.Params[0]
	newNickCf := c.casemap(newNick)

	u, ok := c.users[nickCf]
	if !ok {
		return nil, nil
	}
	u.Name.Name = newNick
	delete(c.users, nickCf)
	c.users[newNickCf] = u

	wasMe := c.IsMe(msg.Prefix.Name)
	if wasMe {
		c.nick = newNick
		c.nickCf = newNickCf
	}

	return []Event{Broadcast{
		Kind:       BroadcastNickname,
		FormerNick: msg.Prefix.Name,
		NewNick:    newNick,
	}}, nil
}

func (c *Client) handleChghost(msg Message) ([]Event, error) {
	if msg.Prefix == nil || len(msg.Params) < 2 {
		return nil, fmt.Errorf("irc: CHGHOST: %w", ErrMalformedCommand)
	}
	nickCf := c.casemap(msg.Prefix.Name)
	u, ok := c.users[nickCf]
	if !ok {
		return nil, nil
	}
	u.Name.User = msg.Params[0]
	u.Name.Host = msg.Params[1]

	return []Event{Broadcast{
		Kind:    BroadcastChangeHost,
		User:    msg.Prefix,
		NewUser: msg.Params[0],
		NewHost: msg.Params[1],
	}}, nil
}

func (c *Client) handleAccount(msg Message) ([]Event, error) {
	if msg.Prefix == nil || len(msg.Params) < 1 {
		return nil, fmt.Errorf("irc: ACCOUNT: %w", ErrMalformedCommand)
	}
	nickCf := c.casemap(msg.Prefix.Name)
	u, ok := c.users[nickCf]
	if !ok {
		return nil, nil
	}
	u.Account = msg.Params[0]

	if c.IsMe(msg.Prefix.Name) && msg.Params[0] != "*" {
		c.flushRegistrationRequiredChannels()
	}
	return nil, nil
}

func (c *Client) handleAway(msg Message) ([]Event, error) {
	if msg.Prefix == nil {
		return nil, fmt.Errorf("irc: AWAY: %w", ErrMalformedCommand)
	}
	nickCf := c.casemap(msg.Prefix.Name)
	u, ok := c.users[nickCf]
	if !ok {
		return nil, nil
	}
	u.Away = len(msg.Params) > 0 && msg.Params[0] != ""
	return nil, nil
}

func (c *Client) handleSelfAway(msg Message) ([]Event, error) {
	if u, ok := c.users[c.nickCf]; ok {
		u.Away = msg.Command == rplNowaway
	}
	return []Event{Single{Message: msg, SelfNick: c.nick}}, nil
}

func (c *Client) handleMode(now time.Time, msg Message) ([]Event, error) {
	if len(msg.Params) < 1 {
		return nil, fmt.Errorf("irc: MODE: %w", ErrMalformedCommand)
	}
	target, modes, args := splitModeArgs(msg.Params)
	targetCf := c.casemap(target)

	if c.IsMe(target) {
		if selfModeGainedRegistered(modes) {
			c.flushRegistrationRequiredChannels()
		}
		return []Event{Single{Message: msg, SelfNick: c.nick}}, nil
	}

	ch, ok := c.channels[targetCf]
	if !ok {
		return c.defaultEvent(msg, ""), nil
	}

	isPrefixMode := func(letter byte) bool {
		_, ok := c.isupport.IsPrefixMode(string(letter))
		return ok
	}
	changes := parseModeString(modes, args, isPrefixMode)
	for _, change := range changes {
		if !change.HasArg || !isPrefixMode(change.Letter) {
			continue
		}
		nickCf := c.casemap(change.Arg)
		u, ok := c.users[nickCf]
		if !ok {
			continue
		}
		access := ch.Members[u]
		if change.Add {
			if !strings.ContainsRune(access, rune(change.Letter)) {
				access += string(change.Letter)
			}
		} else {
			access = strings.ReplaceAll(access, string(change.Letter), "")
		}
		ch.Members[u] = access
	}

	return []Event{Single{Message: msg, SelfNick: c.nick}}, nil
}

func (c *Client) handleTopicCmd(msg Message) ([]Event, error) {
	if msg.Prefix == nil || len(msg.Params) < 2 {
		return nil, fmt.Errorf("irc: TOPIC: %w", ErrMalformedCommand)
	}
	channelCf := c.casemap(msg.Params[0])
	ch, ok := c.channels[channelCf]
	if !ok {
		return nil, nil
	}
	ch.Topic = Topic{Text: msg.Params[1], Who: msg.Prefix.Copy(), Time: msg.TimeOrNow()}
	return []Event{Single{Message: msg, SelfNick: c.nick}}, nil
}

func (c *Client) handleRplTopic(msg Message) {
	if len(msg.Params) < 3 {
		return
	}
	channelCf := c.casemap(msg.Params[1])
	if ch, ok := c.channels[channelCf]; ok {
		ch.Topic.Text = msg.Params[2]
	}
}

func (c *Client) handleRplNotopic(msg Message) {
	if len(msg.Params) < 2 {
		return
	}
	channelCf := c.casemap(msg.Params[1])
	if ch, ok := c.channels[channelCf]; ok {
		ch.Topic = Topic{}
	}
}

func (c *Client) handleRplTopicwhotime(msg Message) ([]Event, error) {
	if len(msg.Params) < 4 {
		return nil, fmt.Errorf("irc: %s: %w", rplTopicwhotime, ErrMalformedCommand)
	}
	t, err := strconv.ParseInt(msg.Params[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("irc: %s: %w", rplTopicwhotime, ErrMalformedCommand)
	}
	channelCf := c.casemap(msg.Params[1])
	if ch, ok := c.channels[channelCf]; ok {
		ch.Topic.Who = ParsePrefix(msg.Params[2])
		ch.Topic.Time = time.Unix(t, 0)
	}
	return []Event{Single{Message: msg, SelfNick: c.nick}}, nil
}

func (c *Client) handleNamreply(msg Message) {
	if len(msg.Params) < 4 {
		return
	}
	channelCf := c.casemap(msg.Params[2])
	ch, ok := c.channels[channelCf]
	if !ok {
		return
	}
	for _, name := range ParseNameReply(msg.Params[3], c.isupport.prefixSymbols) {
		u := c.ensureUser(name.Name)
		ch.Members[u] = c.accessFromSymbols(name.PowerLevel)
	}
}

func (c *Client) accessFromSymbols(symbols string) string {
	var sb strings.Builder
	for i := 0; i < len(symbols); i++ {
		sb.WriteString(c.isupport.AccessLevel(symbols[i]))
	}
	return sb.String()
}

func (c *Client) handleEndofnames(msg Message) ([]Event, error) {
	if len(msg.Params) < 2 {
		return nil, fmt.Errorf("irc: %s: %w", rplEndofnames, ErrMalformedCommand)
	}
	channelCf := c.casemap(msg.Params[1])
	ch, ok := c.channels[channelCf]
	if !ok {
		return nil, nil
	}
	if ch.namesInit {
		return []Event{Single{Message: msg, SelfNick: c.nick}}, nil
	}
	ch.namesInit = true
	return nil, nil
}

// handleWhoreply applies a RPL_WHOREPLY line's flags/account to the user
// table, then reports it as an Event unless it's answering this client's own
// background poll (spec §4.2.4: a self-initiated WHO in flight must not
// surface its member lines as history).
func (c *Client) handleWhoreply(now time.Time, msg Message, label string) []Event {
	if len(msg.Params) < 8 {
		return nil
	}
	c.applyWhoFlags(msg.Params[5], msg.Params[6], "", false)
	if c.isSelfInitiatedWho(msg.Params[1]) {
		return nil
	}
	return c.defaultEvent(msg, label)
}

func (c *Client) handleWhospcrpl(now time.Time, msg Message, label string) []Event {
	// WHOX reply fields follow the order requested: here "tcnfa" / "tcnf",
	// i.e. token, channel, nick, flags and, for "tcnfa", account.
	if len(msg.Params) < 5 {
		return nil
	}
	token := msg.Params[1]
	channel := msg.Params[2]
	nick := msg.Params[3]
	flags := msg.Params[4]
	account := ""
	if len(msg.Params) >= 6 {
		account = msg.Params[5]
	}
	c.applyWhoFlags(nick, flags, account, token == whoPollToken && account != "")
	if c.isSelfInitiatedWho(channel) {
		return nil
	}
	return c.defaultEvent(msg, label)
}

// isSelfInitiatedWho reports whether channel currently has a background WHO
// poll in flight, started by tick/sendWho rather than a SendQuery-driven
// lookup: SendQuery never touches Channel.Who, so Requested/Receiving can
// only mean this client issued the query itself. The first reply line of such
// a poll moves the channel's WhoStatus from Requested to Receiving.
func (c *Client) isSelfInitiatedWho(channel string) bool {
	ch, ok := c.channels[c.casemap(channel)]
	if !ok {
		return false
	}
	if ch.Who.Kind == WhoRequested {
		ch.Who = WhoStatus{Kind: WhoReceiving, Token: ch.Who.Token, HasToken: ch.Who.HasToken}
	}
	return ch.Who.Kind == WhoReceiving
}

func (c *Client) applyWhoFlags(nick, flags, account string, hasAccount bool) {
	nickCf := c.casemap(nick)
	u, ok := c.users[nickCf]
	if !ok {
		return
	}
	if flags != "" {
		u.Away = flags[0] == 'G'
	}
	if hasAccount {
		u.Account = account
	}
}

func (c *Client) endWho(now time.Time, channel string) {
	channelCf := c.casemap(channel)
	if ch, ok := c.channels[channelCf]; ok {
		ch.Who = WhoStatus{Kind: WhoDone, When: now}
	}
}

func (c *Client) handleInvite(msg Message) ([]Event, error) {
	if msg.Prefix == nil || len(msg.Params) < 2 {
		return nil, fmt.Errorf("irc: INVITE: %w", ErrMalformedCommand)
	}
	invitee, channel := msg.Params[0], msg.Params[1]
	return []Event{Broadcast{
		Kind:    BroadcastInvite,
		Inviter: msg.Prefix.Name,
		Invitee: invitee,
		Channel: channel,
		Shared:  c.channelsSharedWith(invitee),
	}}, nil
}

func (c *Client) handleMarkreadCmd(msg Message) ([]Event, error) {
	if len(msg.Params) < 2 {
		return nil, fmt.Errorf("irc: MARKREAD: %w", ErrMalformedCommand)
	}
	marker := strings.TrimPrefix(msg.Params[1], "timestamp=")
	return []Event{UpdateReadMarker{Target: msg.Params[0], Marker: marker}}, nil
}

func (c *Client) splitMonitorEvent(msg Message, kind NotificationKind) []Event {
	if len(msg.Params) < 2 {
		return nil
	}
	return []Event{Notification{Kind: kind, Message: msg, SelfNick: c.nick, Enabled: true}}
}

// --- highlights, DMs, CTCP, DCC (§4.2.5) ---

func (c *Client) handleMessage(now time.Time, msg Message, label string) ([]Event, error) {
	if msg.Prefix == nil || len(msg.Params) < 2 {
		return nil, fmt.Errorf("irc: %s: %w", msg.Command, ErrMalformedCommand)
	}
	target, body := msg.Params[0], msg.Params[1]
	self := c.IsMe(msg.Prefix.Name)

	if !self {
		if q, ok := parseCTCP(body); ok {
			if q.Command == "DCC" {
				req, err := parseDCCQuery(q.Params)
				if err != nil {
					return nil, err
				}
				return []Event{FileTransferRequest{Nick: msg.Prefix.Name, Request: req, Reply: c.trySend}}, nil
			}

			if q.Command != "ACTION" {
				if msg.Command == "PRIVMSG" {
					if reply, ok := ctcpReply(q, c.opt.SourceURL, c.opt.VersionString); ok {
						c.trySend(NewMessage("NOTICE", msg.Prefix.Name, reply))
					}
				}
				return nil, nil
			}
		}
	}

	if !self && containsNickWordBoundary(body, c.nick, c.casemap) {
		return []Event{Notification{
			Kind:     Highlight,
			Message:  msg,
			SelfNick: c.nick,
			Enabled:  c.blackout.Allow(),
		}}, nil
	}

	if self {
		// Echo of our own send: suppress only when it was sent through Send and
		// carries a Context we're still tracking, not every self-echo.
		if _, ok := c.corr.takeLabel(label); ok {
			return nil, nil
		}
	}

	if c.casemap(target) == c.nickCf {
		return []Event{Notification{Kind: DirectMessage, Message: msg, SelfNick: c.nick}}, nil
	}

	return []Event{Single{Message: msg, SelfNick: c.nick}}, nil
}

// containsNickWordBoundary reports whether body mentions nick as a
// standalone word rather than as part of a longer word. handleMessage
// consults it only for messages sent by other users.
func containsNickWordBoundary(body, nick string, casemap func(string) string) bool {
	if nick == "" {
		return false
	}
	nickCf := casemap(nick)
	bodyCf := casemap(body)
	start := 0
	for {
		i := strings.Index(bodyCf[start:], nickCf)
		if i < 0 {
			return false
		}
		pos := start + i
		before := byte(' ')
		if pos > 0 {
			before = bodyCf[pos-1]
		}
		after := byte(' ')
		if pos+len(nickCf) < len(bodyCf) {
			after = bodyCf[pos+len(nickCf)]
		}
		if !isWordByte(before) && !isWordByte(after) {
			return true
		}
		start = pos + len(nickCf)
		if start >= len(bodyCf) {
			return false
		}
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// saslPlainParam is kept for documentation/testing purposes: it mirrors what
// SASLPlain.Respond computes, so tests can assert against it without
// depending on SASLPlain's internals.
func saslPlainParam(user, pass string) string {
	payload := user + "\x00" + user + "\x00" + pass
	return base64.StdEncoding.EncodeToString([]byte(payload))
}
