package irc

// Event is the result of handling one inbound message (or one batch close).
// The taxonomy is intentionally flat: most state changes surface as Single
// or WithTarget carrying the raw message plus enough context for a UI to
// render it, and only the handful of cases that need structured data of
// their own get a dedicated variant.
type Event interface{}

// NotificationKind distinguishes the reasons a Notification was raised.
type NotificationKind int

const (
	DirectMessage NotificationKind = iota
	Highlight
	MonitoredOnline
	MonitoredOffline
)

// BroadcastKind distinguishes the reasons a Broadcast was raised.
type BroadcastKind int

const (
	BroadcastQuit BroadcastKind = iota
	BroadcastNickname
	BroadcastInvite
	BroadcastChangeHost
)

// Single is the default event: an inbound message that doesn't need
// rerouting or special handling, tagged with the nick we're known as.
type Single struct {
	Message  Message
	SelfNick string
}

// WithTarget is a reply produced while a WHO/WHOIS/WHOWAS/non-channel-MODE
// response is being rerouted, addressed back to the buffer that originated
// the request.
type WithTarget struct {
	Message  Message
	SelfNick string
	Target   string
}

// Broadcast is an event that fans out to every buffer relevant to it rather
// than to one target buffer. Only the fields relevant to Kind are populated.
type Broadcast struct {
	Kind BroadcastKind

	// BroadcastQuit
	User     *Prefix
	Channels []string

	// BroadcastNickname
	FormerNick string
	NewNick    string

	// BroadcastInvite
	Inviter string
	Invitee string
	Channel string
	Shared  []string

	// BroadcastChangeHost
	NewUser string
	NewHost string
}

// Notification is a message that warrants drawing the user's attention: a
// highlight, a direct message, or a MONITOR online/offline transition.
type Notification struct {
	Kind     NotificationKind
	Message  Message
	SelfNick string
	Enabled  bool // for Highlight: false while the highlight blackout is active.
}

// FileTransferRequest is an inbound CTCP DCC SEND, lifted out of the message
// body for the caller to act on. Reply is a handle onto this connection's
// outbound sink (Client.trySend), so the file-transfer collaborator can
// answer the offer (e.g. with a CTCP error NOTICE) without needing its own
// reference to the Client.
type FileTransferRequest struct {
	Nick    string
	Request DCCSendRequest
	Reply   func(Message) bool
}

// UpdateReadMarker is the result of an inbound MARKREAD.
type UpdateReadMarker struct {
	Target string
	Marker string
}

// JoinedChannel reports that this client has just self-joined a channel.
type JoinedChannel struct {
	Name string
}
