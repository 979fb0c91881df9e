package httpconnect

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"relay/internal/model"
)

// resolvedTarget is the outcome of ResolveTarget: where to dial, and (for
// non-CONNECT requests) the request-line text to forward upstream.
type resolvedTarget struct {
	addr       model.Address
	outboundURI string
}

// resolveConnectTarget parses a CONNECT request's authority-form target,
// which always carries an explicit port (§4.11 step 3).
func resolveConnectTarget(target string) (resolvedTarget, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return resolvedTarget{}, fmt.Errorf("httpconnect: bad CONNECT authority %q: %w", target, err)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return resolvedTarget{}, err
	}
	return resolvedTarget{addr: addrFor(host, port)}, nil
}

// resolveForwardTarget derives host:port for a non-CONNECT request from the
// request URI's authority if present, else from the Host header, defaulting
// to port 80; it also produces the absolute-form request line to forward
// when the original URI was origin-form (§4.11 step 3-4).
func resolveForwardTarget(target string, headers []headerField) (resolvedTarget, error) {
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host := u.Hostname()
		port := uint16(80)
		if p := u.Port(); p != "" {
			parsed, perr := parsePort(p)
			if perr != nil {
				return resolvedTarget{}, perr
			}
			port = parsed
		}
		if host == "" {
			return resolvedTarget{}, fmt.Errorf("httpconnect: empty host in absolute URI %q", target)
		}
		return resolvedTarget{addr: addrFor(host, port), outboundURI: target}, nil
	}

	hostHeader, ok := headerGet(headers, "Host")
	if !ok || strings.TrimSpace(hostHeader) == "" {
		return resolvedTarget{}, fmt.Errorf("httpconnect: missing Host header and no absolute URI")
	}
	host, portStr, err := net.SplitHostPort(hostHeader)
	if err != nil {
		host, portStr = hostHeader, "80"
	}
	port, err := parsePort(portStr)
	if err != nil {
		return resolvedTarget{}, err
	}
	return resolvedTarget{
		addr:        addrFor(host, port),
		outboundURI: "http://" + hostHeader + target,
	}, nil
}

func addrFor(host string, port uint16) model.Address {
	if ip := net.ParseIP(host); ip != nil {
		return model.SocketAddr(ip, port)
	}
	return model.DomainAddr(host, port)
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("httpconnect: bad port %q: %w", s, err)
	}
	return uint16(n), nil
}
