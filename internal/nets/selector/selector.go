// Package selector implements C10: a named choice among a fixed list of
// inner nets, delegating every capability to whichever is currently
// selected, with runtime reselection persisted as a per-config override.
package selector

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"

	"relay/internal/model"
	"relay/internal/relayerr"
)

// Opt is the selector net's declarative config.
type Opt struct {
	Selected string   `json:"selected"`
	List     []string `json:"list"`
}

// Net delegates tcp_connect/tcp_bind/udp_bind/lookup_host to whichever
// inner net `selected` currently names; Select swaps it atomically.
type Net struct {
	list     []string
	get      func(id string) (model.Net, error)
	selected atomic.Pointer[string]
}

var _ model.Net = (*Net)(nil)

// New constructs a selector net; fails if opt.list is empty (§4.10).
func New(opt json.RawMessage, get func(id string) (model.Net, error)) (*Net, error) {
	var parsed Opt
	if err := json.Unmarshal(opt, &parsed); err != nil {
		return nil, relayerr.BadRequest("selector: invalid opt: " + err.Error())
	}
	if len(parsed.List) == 0 {
		return nil, relayerr.BadRequest("selector: list must not be empty")
	}
	chosen := parsed.Selected
	if chosen == "" || !contains(parsed.List, chosen) {
		chosen = parsed.List[0]
	}
	n := &Net{list: parsed.List, get: get}
	n.selected.Store(&chosen)
	return n, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// List returns the selector's fixed child-id list.
func (n *Net) List() []string { return n.list }

// Selected returns the currently-chosen child id.
func (n *Net) Selected() string { return *n.selected.Load() }

// Select changes the active child. A chosen id that is not a member of List
// is rejected with BadRequest and the selection is left unchanged.
func (n *Net) Select(chosen string) error {
	if !contains(n.list, chosen) {
		return relayerr.BadRequest("selector: " + chosen + " is not in the configured list")
	}
	n.selected.Store(&chosen)
	return nil
}

func (n *Net) inner() (model.Net, error) {
	return n.get(n.Selected())
}

func (n *Net) TCPConnect(ctx context.Context, addr model.Address) (net.Conn, error) {
	inner, err := n.inner()
	if err != nil {
		return nil, err
	}
	return inner.TCPConnect(ctx, addr)
}

func (n *Net) TCPBind(ctx context.Context, addr model.Address) (net.Listener, error) {
	inner, err := n.inner()
	if err != nil {
		return nil, err
	}
	return inner.TCPBind(ctx, addr)
}

func (n *Net) UDPBind(ctx context.Context, addr model.Address) (net.PacketConn, error) {
	inner, err := n.inner()
	if err != nil {
		return nil, err
	}
	return inner.UDPBind(ctx, addr)
}

func (n *Net) LookupHost(ctx context.Context, host string) ([]net.IP, error) {
	inner, err := n.inner()
	if err != nil {
		return nil, err
	}
	return inner.LookupHost(ctx, host)
}
