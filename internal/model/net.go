package model

import (
	"context"
	"net"
)

// Net is the capability surface every outbound connection provider exposes.
// Terminal nets (OS sockets, protocol clients) and composite nets (selector,
// rule router, DNS overlay) implement the same interface so the running
// graph never distinguishes them.
type Net interface {
	TCPConnect(ctx context.Context, addr Address) (net.Conn, error)
	TCPBind(ctx context.Context, addr Address) (net.Listener, error)
	UDPBind(ctx context.Context, addr Address) (net.PacketConn, error)
	LookupHost(ctx context.Context, host string) ([]net.IP, error)
}

// InboundContext is the per-flow metadata stamped by the inbound decorator:
// the chain of server names a connection passed through plus its source
// and target addresses, carried in the Connection record's ctx field (§3).
type InboundContext struct {
	ServerChain []string  `json:"server_chain"`
	SourceAddr  Address   `json:"source_addr"`
	Target      Address   `json:"target"`
}

// StorageItem is one key's value in a Storage (C1) store.
type StorageItem struct {
	UpdatedAt int64 // unix nanos; monotone per key
	Content   []byte
}

// SelectorOverride is the persisted net-id -> chosen-child-id map for one
// config id (§3, §4.10).
type SelectorOverride map[string]string
