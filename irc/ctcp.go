package irc

import "strings"

const ctcpDelim = "\x01"

// ctcpQuery is a parsed CTCP request carried inside a PRIVMSG/NOTICE body.
type ctcpQuery struct {
	Command string
	Params  string
}

// parseCTCP extracts a CTCP query from a message body delimited by \x01, as
// sent by PRIVMSG/NOTICE. It reports ok=false for a plain-text body.
func parseCTCP(body string) (q ctcpQuery, ok bool) {
	if !strings.HasPrefix(body, ctcpDelim) {
		return q, false
	}
	body = strings.TrimPrefix(body, ctcpDelim)
	body = strings.TrimSuffix(body, ctcpDelim)

	cmd, rest := body, ""
	if i := strings.IndexByte(body, ' '); i >= 0 {
		cmd, rest = body[:i], body[i+1:]
	}

	return ctcpQuery{Command: strings.ToUpper(cmd), Params: rest}, true
}

func formatCTCP(command, params string) string {
	if params == "" {
		return ctcpDelim + command + ctcpDelim
	}
	return ctcpDelim + command + " " + params + ctcpDelim
}

// ctcpClientinfo is the literal list of CTCP commands this client answers,
// as reported in response to a CLIENTINFO query.
const ctcpClientinfo = "ACTION CLIENTINFO DCC PING SOURCE VERSION"

// ctcpReply builds the PRIVMSG/NOTICE CTCP reply for a recognized query, or
// ok=false if the query isn't one this client answers (ACTION, DCC, and
// anything unknown are ignored per spec §4.2.5).
func ctcpReply(q ctcpQuery, sourceURL, versionString string) (body string, ok bool) {
	switch q.Command {
	case "PING":
		return formatCTCP("PING", q.Params), true
	case "CLIENTINFO":
		return formatCTCP("CLIENTINFO", ctcpClientinfo), true
	case "SOURCE":
		return formatCTCP("SOURCE", sourceURL), true
	case "VERSION":
		return formatCTCP("VERSION", versionString), true
	default:
		return "", false
	}
}
