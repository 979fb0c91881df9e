package main

import (
	"context"
	"encoding/json"
	"fmt"

	"relay/internal/geoip"
	"relay/internal/model"
	"relay/internal/nets/blackhole"
	"relay/internal/nets/dns"
	"relay/internal/nets/hysteria2"
	"relay/internal/nets/local"
	"relay/internal/nets/noop"
	"relay/internal/nets/rule"
	"relay/internal/nets/selector"
	"relay/internal/registry"
	"relay/internal/servers/httpconnect"
)

// registerNets wires every leaf and combinator net type into reg, matching
// spec.md §4.* one type per section. geoDB may be nil, in which case
// building a rule net that has a geoip matcher fails with NotEnabled.
func registerNets(reg *registry.Registry, geoDB *geoip.DB) error {
	if err := reg.RegisterNet("local", "local", nil, nil, func(opt json.RawMessage, _ registry.Getter) (model.Net, error) {
		return local.New(opt)
	}); err != nil {
		return fmt.Errorf("register local: %w", err)
	}

	if err := reg.RegisterNet("noop", "noop", nil, nil, func(json.RawMessage, registry.Getter) (model.Net, error) {
		return noop.New(), nil
	}); err != nil {
		return fmt.Errorf("register noop: %w", err)
	}

	if err := reg.RegisterNet("blackhole", "blackhole", nil, nil, func(json.RawMessage, registry.Getter) (model.Net, error) {
		return blackhole.New(), nil
	}); err != nil {
		return fmt.Errorf("register blackhole: %w", err)
	}

	if err := reg.RegisterNet("dns", "dns", nil, nil, func(opt json.RawMessage, _ registry.Getter) (model.Net, error) {
		return dns.New(opt)
	}); err != nil {
		return fmt.Errorf("register dns: %w", err)
	}

	if err := reg.RegisterNet("hysteria2", "hysteria2", nil, nil, func(opt json.RawMessage, _ registry.Getter) (model.Net, error) {
		return hysteria2.New(opt)
	}); err != nil {
		return fmt.Errorf("register hysteria2: %w", err)
	}

	if err := reg.RegisterNet("rule", "rule", nil, nil, func(opt json.RawMessage, get registry.Getter) (model.Net, error) {
		var geo rule.GeoLookup
		if geoDB != nil {
			geo = geoDB
		}
		return rule.New(opt, get, geo)
	}); err != nil {
		return fmt.Errorf("register rule: %w", err)
	}

	if err := reg.RegisterNet("select", "select", nil, []string{"list"}, func(opt json.RawMessage, get registry.Getter) (model.Net, error) {
		return selector.New(opt, get)
	}); err != nil {
		return fmt.Errorf("register select: %w", err)
	}

	return nil
}

// registerServers wires every server type into reg.
func registerServers(reg *registry.ServerRegistry) error {
	if err := reg.RegisterServer("http_connect", httpconnect.SchemaJSON(), func(ctx context.Context, opt json.RawMessage, listenNet, outboundNet model.Net) (registry.ServerHandle, error) {
		return httpconnect.New(ctx, opt, listenNet, outboundNet)
	}); err != nil {
		return fmt.Errorf("register http_connect: %w", err)
	}
	return nil
}
