// Package channel implements named chat channels and keeps their member
// sets consistent with the channel lists of the sessions in them.
package channel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/packet"
	"github.com/cory-johannsen/bancho/internal/storage/kv"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrChannelExists   = errors.New("channel already exists")
	ErrForbidden       = errors.New("missing privileges for channel")
)

// Definition describes a channel.
type Definition struct {
	Name  string
	Topic string
	// AutoJoin channels are joined at login by sessions matching Privileges.
	AutoJoin bool
	// Privileges is the mask a session must share a bit with. PrivNone
	// channels are open to anyone but never joined automatically.
	Privileges ruleset.Privileges
	// Display is the name clients see, when it differs from Name.
	Display string
	// Internal channels cannot be joined by request and are not announced.
	Internal bool
}

// Shown returns the name clients know the channel by.
func (d Definition) Shown() string {
	if d.Display != "" {
		return d.Display
	}
	return d.Name
}

// Offered reports whether sessions with priv join the channel at login.
func (d Definition) Offered(priv ruleset.Privileges) bool {
	return d.AutoJoin && d.Privileges != ruleset.PrivNone && priv.Any(d.Privileges)
}

// Accessible reports whether sessions with priv may join or read it.
func (d Definition) Accessible(priv ruleset.Privileges) bool {
	return d.Privileges == ruleset.PrivNone || priv.Any(d.Privileges)
}

// Info is a snapshot of a channel.
type Info struct {
	Definition
	// Members holds member session tokens in sorted order.
	Members []string
}

// Count returns the number of members.
func (i Info) Count() int {
	return len(i.Members)
}

type channel struct {
	def     Definition
	members map[string]struct{}
}

func (c *channel) info() Info {
	members := make([]string, 0, len(c.members))
	for tok := range c.members {
		members = append(members, tok)
	}
	sort.Strings(members)
	return Info{Definition: c.def, Members: members}
}

// Registry holds every channel. Membership changes update the session
// store in the same critical section, so a token is in a channel's member
// set exactly when the channel is in that session's channel list.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*channel
	order    []string

	sessions *session.Store
	mirror   kv.Store
	logger   *zap.Logger
}

// NewRegistry creates an empty Registry.
//
// Precondition: sessions and logger must be non-nil; mirror may be nil.
func NewRegistry(sessions *session.Store, mirror kv.Store, logger *zap.Logger) *Registry {
	return &Registry{
		channels: make(map[string]*channel),
		sessions: sessions,
		mirror:   mirror,
		logger:   logger,
	}
}

// Create adds a channel with no members.
//
// Postcondition: Returns ErrChannelExists if the name is taken.
func (r *Registry) Create(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("channel name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrChannelExists, def.Name)
	}
	c := &channel{def: def, members: make(map[string]struct{})}
	r.channels[def.Name] = c
	r.order = append(r.order, def.Name)
	r.writeMirror(c)
	return nil
}

// Remove deletes a channel, parting every member first.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	for tok := range c.members {
		r.partSession(c, tok)
	}
	delete(r.channels, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	r.deleteMirror(name)
	return nil
}

// GetByName returns a snapshot of the channel.
func (r *Registry) GetByName(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[name]
	if !ok {
		return Info{}, false
	}
	return c.info(), true
}

// All returns every channel in creation order.
func (r *Registry) All() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.channels[name].info())
	}
	return out
}

// ListAutoJoin returns the channels offered at login to sessions with priv.
func (r *Registry) ListAutoJoin(priv ruleset.Privileges) []Info {
	var out []Info
	for _, info := range r.All() {
		if !info.Internal && info.Offered(priv) {
			out = append(out, info)
		}
	}
	return out
}

// Members returns the member tokens of a channel.
func (r *Registry) Members(name string) ([]string, error) {
	info, ok := r.GetByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	return info.Members, nil
}

// AddMember adds token to the channel's member set only. Adding a present
// token is a no-op that reports false. Most callers want Join.
func (r *Registry) AddMember(name, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	if _, ok := c.members[token]; ok {
		return false, nil
	}
	c.members[token] = struct{}{}
	r.writeMirror(c)
	return true, nil
}

// RemoveMember removes token from the channel's member set only. Removing
// an absent token is a no-op that reports false. Most callers want Part.
func (r *Registry) RemoveMember(name, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	if _, ok := c.members[token]; !ok {
		return false, nil
	}
	delete(c.members, token)
	r.writeMirror(c)
	return true, nil
}

// Join adds the session to a channel it has the privileges for and queues
// the channel's info and join confirmation for it. Joining a channel already
// joined reports false. Internal channels cannot be joined this way.
func (r *Registry) Join(token, name string) (bool, error) {
	return r.join(token, name, true)
}

// Admit joins the session to any channel, internal ones included, without
// checking privileges.
func (r *Registry) Admit(token, name string) (bool, error) {
	return r.join(token, name, false)
}

func (r *Registry) join(token, name string, checked bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	if _, ok := c.members[token]; ok {
		return false, nil
	}

	_, err := r.sessions.Update(token, func(s *session.Session) error {
		if checked && (c.def.Internal || !c.def.Accessible(s.Privileges)) {
			return fmt.Errorf("%w: %s", ErrForbidden, name)
		}
		if !s.InChannel(name) {
			s.Channels = append(s.Channels, name)
		}
		count := len(c.members) + 1
		s.Queue = append(s.Queue, packet.ChannelInfo(c.def.Shown(), c.def.Topic, count)...)
		s.Queue = append(s.Queue, packet.ChannelInfoEnd()...)
		s.Queue = append(s.Queue, packet.ChannelJoinSuccess(c.def.Shown())...)
		return nil
	})
	if err != nil {
		return false, err
	}
	c.members[token] = struct{}{}
	r.writeMirror(c)
	r.announce(c)
	return true, nil
}

// Part removes the session from a channel and queues a kick for it.
// Parting a channel not joined reports false.
func (r *Registry) Part(token, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	if _, ok := c.members[token]; !ok {
		return false, nil
	}
	if err := r.partSession(c, token); err != nil {
		return false, err
	}
	r.writeMirror(c)
	r.announce(c)
	return true, nil
}

// PartAll removes the token from every channel it is in, whether or not a
// session still backs it.
func (r *Registry) PartAll(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.order {
		c := r.channels[name]
		if _, ok := c.members[token]; !ok {
			continue
		}
		_ = r.partSession(c, token)
		r.writeMirror(c)
		r.announce(c)
	}
}

// partSession must be called with r.mu held. The member is dropped even
// when its session is gone.
func (r *Registry) partSession(c *channel, token string) error {
	delete(c.members, token)
	_, err := r.sessions.Update(token, func(s *session.Session) error {
		s.Channels = slices.DeleteFunc(s.Channels, func(n string) bool { return n == c.def.Name })
		s.Queue = append(s.Queue, packet.ChannelKick(c.def.Shown())...)
		return nil
	})
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil
	}
	return err
}

// announce sends the channel's member count to every session that may see
// it. Must be called with r.mu held.
func (r *Registry) announce(c *channel) {
	if c.def.Internal {
		return
	}
	data := packet.ChannelInfo(c.def.Shown(), c.def.Topic, len(c.members))
	r.sessions.BroadcastWhere(data, func(s *session.Session) bool {
		return c.def.Accessible(s.Privileges)
	})
}

// Broadcast queues data for every member except the excluded tokens.
func (r *Registry) Broadcast(name string, data []byte, exclude ...string) error {
	members, err := r.Members(name)
	if err != nil {
		return err
	}
	for _, tok := range members {
		if slices.Contains(exclude, tok) {
			continue
		}
		if err := r.sessions.Enqueue(tok, data); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			return err
		}
	}
	return nil
}

type mirrorModel struct {
	Name       string   `json:"name"`
	Topic      string   `json:"topic"`
	AutoJoin   bool     `json:"auto_join"`
	Privileges uint32   `json:"privileges"`
	Display    string   `json:"display,omitempty"`
	Internal   bool     `json:"internal"`
	Members    []string `json:"members"`
}

func (r *Registry) writeMirror(c *channel) {
	if r.mirror == nil {
		return
	}
	info := c.info()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := kv.PutJSON(ctx, r.mirror, kv.ChannelPrefix+c.def.Name, mirrorModel{
		Name:       info.Name,
		Topic:      info.Topic,
		AutoJoin:   info.AutoJoin,
		Privileges: uint32(info.Privileges),
		Display:    info.Display,
		Internal:   info.Internal,
		Members:    info.Members,
	})
	if err != nil {
		r.logger.Warn("mirroring channel", zap.String("channel", c.def.Name), zap.Error(err))
	}
}

func (r *Registry) deleteMirror(name string) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.mirror.Delete(ctx, kv.ChannelPrefix+name); err != nil {
		r.logger.Warn("removing mirrored channel", zap.String("channel", name), zap.Error(err))
	}
}
