package irc

// SupportedCapabilities is the set of capabilities this client requests
// whenever the server advertises them. Everything advertised is recorded in
// availableCaps; names outside this set are requested only under the
// conditional rules in wantCapabilities (extended-join, echo-message and the
// sasl capabilities).
var SupportedCapabilities = map[string]struct{}{
	"invite-notify":      {},
	"userhost-in-names":  {},
	"away-notify":        {},
	"message-tags":       {},
	"server-time":        {},
	"chghost":            {},
	"extended-monitor":   {},
	"account-notify":     {},
	"batch":              {},
	"labeled-response":   {},
	"multi-prefix":       {},
	"draft/read-marker":  {},
}

func isSaslCap(name string) bool {
	return len(name) >= 4 && name[:4] == "sasl"
}

// wantCapabilities decides, from the set of currently-advertised capability
// names, which ones this client wants to CAP REQ. The policy is identical
// whether triggered by the end of CAP LS or by a CAP NEW: request a
// capability when it's in SupportedCapabilities, plus a handful of
// conditional asks that depend on another capability also being available.
// order lists every advertised name in the order the server first mentioned
// it (see Client.capOrder), so the resulting CAP REQ line is deterministic
// and matches the order the server advertised, not Go's map iteration order.
func wantCapabilities(order []string, advertised map[string]string, haveSASL bool) []string {
	has := func(name string) bool {
		_, ok := advertised[name]
		return ok
	}

	var want []string
	for _, name := range order {
		if _, ok := SupportedCapabilities[name]; ok {
			want = append(want, name)
		}
	}

	if has("account-notify") && has("extended-join") {
		want = appendUnique(want, "extended-join")
	}
	if has("labeled-response") && has("echo-message") {
		want = appendUnique(want, "echo-message")
	}
	if haveSASL {
		for _, name := range order {
			if isSaslCap(name) {
				want = appendUnique(want, name)
			}
		}
	}

	return want
}

func appendUnique(list []string, item string) []string {
	for _, e := range list {
		if e == item {
			return list
		}
	}
	return append(list, item)
}

// rememberCap records name as advertised, preserving the order it was first
// seen in so wantCapabilities can build a deterministic CAP REQ line.
func (c *Client) rememberCap(name, value string) {
	if _, seen := c.availableCaps[name]; !seen {
		c.capOrder = append(c.capOrder, name)
	}
	c.availableCaps[name] = value
}

// forgetCap drops name from both the advertised set and its order, for CAP
// DEL.
func (c *Client) forgetCap(name string) {
	delete(c.availableCaps, name)
	delete(c.enabledCaps, name)
	for i, e := range c.capOrder {
		if e == name {
			c.capOrder = append(c.capOrder[:i], c.capOrder[i+1:]...)
			break
		}
	}
}
