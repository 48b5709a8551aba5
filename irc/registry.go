package irc

import (
	"time"

	"go.uber.org/zap"
)

// ClientState is the per-server connection lifecycle the registry tracks.
type ClientState int

const (
	Disconnected ClientState = iota
	Ready
)

// Status is the externally-visible connection status of one server.
type Status int

const (
	Unavailable Status = iota
	StatusDisconnected
	Connected
)

type entry struct {
	state  ClientState
	client *Client
}

// Registry maps server identity to its ClientState, fanning out tick and
// exit, and dispatching receive to the owning Client. Looking up an absent
// server is never an error: views return zero values, and receive returns no
// events.
type Registry struct {
	servers map[string]*entry
	log     *zap.Logger
}

// NewRegistry returns an empty registry. Logging defaults to a no-op logger;
// call SetLogger to observe connection lifecycle transitions.
func NewRegistry() *Registry {
	return &Registry{servers: map[string]*entry{}, log: zap.NewNop()}
}

// SetLogger installs logger for connection lifecycle events (Debug for
// server add/remove, Info for a server becoming Ready). A nil logger is
// treated as a no-op.
func (r *Registry) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r.log = logger
}

// Disconnected marks server as disconnected, clearing any live Client.
func (r *Registry) Disconnected(server string) {
	r.servers[server] = &entry{state: Disconnected}
	r.log.Debug("server disconnected", zap.String("server", server))
}

// SetReady installs client as the live state for server.
func (r *Registry) SetReady(server string, client *Client) {
	r.servers[server] = &entry{state: Ready, client: client}
	r.log.Info("server ready", zap.String("server", server))
}

// Remove drops server entirely.
func (r *Registry) Remove(server string) {
	delete(r.servers, server)
	r.log.Debug("server removed", zap.String("server", server))
}

// Client returns the live Client for server, if any.
func (r *Registry) Client(server string) (*Client, bool) {
	e, ok := r.servers[server]
	if !ok || e.state != Ready {
		return nil, false
	}
	return e.client, true
}

// Status reports the registry's view of server's connection status.
func (r *Registry) Status(server string) Status {
	e, ok := r.servers[server]
	if !ok {
		return Unavailable
	}
	if e.state == Ready {
		return Connected
	}
	return StatusDisconnected
}

// Tick fans out a tick to every ready client.
func (r *Registry) Tick(now time.Time) {
	for _, e := range r.servers {
		if e.state == Ready && e.client != nil {
			e.client.tick(now)
		}
	}
}

// Exit sends a best-effort QUIT to every currently-ready server and returns
// their names.
func (r *Registry) Exit(reason string) []string {
	var left []string
	for name, e := range r.servers {
		if e.state == Ready && e.client != nil {
			e.client.Quit(reason)
			left = append(left, name)
		}
	}
	return left
}

// Receive dispatches an inbound message to server's Client. An absent or
// disconnected server yields an empty result, not an error.
func (r *Registry) Receive(server string, now time.Time, msg Message) ([]Event, error) {
	client, ok := r.Client(server)
	if !ok {
		return nil, nil
	}
	return client.receive(now, msg)
}

// Channels returns the channel names server's client believes itself joined
// to, or nil if the server is absent/disconnected.
func (r *Registry) Channels(server string) []string {
	client, ok := r.Client(server)
	if !ok {
		return nil
	}
	return client.Channels()
}

// Users returns the members of channel on server, sorted by nickname, or nil
// if the server or channel is unknown.
func (r *Registry) Users(server, channel string) []*User {
	client, ok := r.Client(server)
	if !ok {
		return nil
	}
	ch, ok := client.channels[client.casemap(channel)]
	if !ok {
		return nil
	}
	return sortedMembers(client.casemap, ch.Members)
}

// Topic returns the current topic of channel on server.
func (r *Registry) Topic(server, channel string) (Topic, bool) {
	client, ok := r.Client(server)
	if !ok {
		return Topic{}, false
	}
	ch, ok := client.channels[client.casemap(channel)]
	if !ok {
		return Topic{}, false
	}
	return ch.Topic, true
}

// ISupport returns the ISUPPORT table for server.
func (r *Registry) ISupport(server string) (ISupport, bool) {
	client, ok := r.Client(server)
	if !ok {
		return ISupport{}, false
	}
	return client.isupport, true
}

// Chantypes returns the known channel-type prefixes for server, or "" if
// unknown.
func (r *Registry) Chantypes(server string) string {
	client, ok := r.Client(server)
	if !ok {
		return ""
	}
	return client.isupport.Chantypes
}

// Statusmsg returns the STATUSMSG prefixes for server, or "" if unknown.
func (r *Registry) Statusmsg(server string) string {
	client, ok := r.Client(server)
	if !ok {
		return ""
	}
	return client.isupport.Statusmsg
}

// SortedChannels returns server's channel names sorted by the chantype-aware
// comparator (spec §4.2.8's sync()).
func (r *Registry) SortedChannels(server string) []string {
	client, ok := r.Client(server)
	if !ok {
		return nil
	}
	names := client.Channels()
	chantypes := client.isupport.Chantypes
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && compareChannelNames(chantypes, names[j], names[j-1]); j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}
