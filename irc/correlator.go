package irc

import (
	"strconv"
	"time"
)

// ContextKind distinguishes the two shapes of outbound request this client
// correlates responses back to.
type ContextKind int

const (
	ContextBuffer ContextKind = iota
	ContextWhois
)

// Context identifies the UI buffer (or WHOIS query) that originated an
// outbound, labeled command, so replies can be routed back to it.
type Context struct {
	Kind     ContextKind
	Upstream string
}

// batch is an in-flight IRCv3 BATCH: its own Context if opened under a
// labeled command, plus every Event produced while it was open.
type batch struct {
	ctx      *Context
	parent   string // reference of the enclosing batch, "" if top-level.
	events   []Event
}

// correlator owns the label table and the open-batch forest for one Client.
// Labels are consumed at most once; batches form a forest where a nested
// batch's events drain into its parent on close, and only the root batch's
// close returns accumulated events to the caller.
type correlator struct {
	labels   map[string]Context
	labelSeq int64
	batches  map[string]*batch
}

func newCorrelator() correlator {
	return correlator{
		labels:  map[string]Context{},
		batches: map[string]*batch{},
	}
}

// nextLabel returns a label unique for the lifetime of this correlator.
// Nanosecond wall time is unique enough for a single-threaded originator; a
// monotonically increasing sequence number is mixed in as a tiebreaker in
// case the clock doesn't advance between two sends.
func (c *correlator) nextLabel(now time.Time) string {
	c.labelSeq++
	return strconv.FormatInt(now.UnixNano(), 36) + "-" + strconv.FormatInt(c.labelSeq, 36)
}

// registerLabel stores the Context for a label just attached to an outbound
// command.
func (c *correlator) registerLabel(label string, ctx Context) {
	c.labels[label] = ctx
}

// takeLabel pops and returns the Context for label, if any is outstanding.
func (c *correlator) takeLabel(label string) (Context, bool) {
	ctx, ok := c.labels[label]
	if ok {
		delete(c.labels, label)
	}
	return ctx, ok
}

// resolveContext implements the three-step lookup from spec §4.2.2: a
// Context already injected by an enclosing batch wins; otherwise a matching
// label is consumed; otherwise an open batch's own Context (if any) applies.
func (c *correlator) resolveContext(batchID string, label string, injected *Context) (ctx *Context) {
	if injected != nil {
		return injected
	}
	if label != "" {
		if got, ok := c.takeLabel(label); ok {
			return &got
		}
	}
	if batchID != "" {
		if b, ok := c.batches[batchID]; ok && b.ctx != nil {
			return b.ctx
		}
	}
	return nil
}

// openBatch records the start of a BATCH, inheriting ctx from the command
// that opened it (resolved the same way as any other reply).
func (c *correlator) openBatch(ref string, parent string, ctx *Context) {
	c.batches[ref] = &batch{ctx: ctx, parent: parent}
}

// appendToBatch stores ev under the open batch ref, if any; it reports
// whether ref names an open batch (the caller must suppress direct emission
// in that case).
func (c *correlator) appendToBatch(ref string, ev Event) bool {
	b, ok := c.batches[ref]
	if !ok {
		return false
	}
	b.events = append(b.events, ev)
	return true
}

// closeBatch closes ref. If ref was nested under another open batch, its
// events drain into the parent and closeBatch returns (nil, false). If ref
// was a root batch, its accumulated events are returned for the caller to
// emit as the result of receive.
func (c *correlator) closeBatch(ref string) ([]Event, bool) {
	b, ok := c.batches[ref]
	if !ok {
		return nil, false
	}
	delete(c.batches, ref)

	if b.parent != "" {
		if parent, ok := c.batches[b.parent]; ok {
			parent.events = append(parent.events, b.events...)
			return nil, false
		}
	}

	return b.events, true
}

// rerouteEndNumerics are the replies that terminate response rerouting
// started by WHO/WHOIS/WHOWAS or a non-channel MODE, per spec §4.2.3.
var rerouteEndNumerics = map[string]struct{}{
	rplEndofwho:         {},
	rplEndofwhois:       {},
	rplEndofwhowas:      {},
	errNosuchnick:       {},
	errNosuchserver:     {},
	errNonicknamegiven:  {},
	errWasnosuchnick:    {},
	errNeedmoreparams:   {},
	errUsersdontmatch:   {},
	rplUmodeis:          {},
	errUmodeunknownflag: {},
}

// startsReroute reports whether an outbound command begins response
// rerouting: WHO, WHOIS, WHOWAS, and MODE on a non-channel target.
func startsReroute(cmd string, target string, isChannel func(string) bool) bool {
	switch cmd {
	case "WHO", "WHOIS", "WHOWAS":
		return true
	case "MODE":
		return target != "" && !isChannel(target)
	}
	return false
}
