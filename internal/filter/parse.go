package filter

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"firestige.xyz/pktt/internal/core"
)

// direction selects which address or port of a packet a term looks at.
type direction int

const (
	either direction = iota
	src
	dst
)

type hostTerm struct {
	dir  direction
	addr netip.Addr
}

type portTerm struct {
	dir  direction
	port uint16
}

// query is a parsed filter: every term must hold.
type query struct {
	family int   // 0 (any), 4 or 6
	proto  uint8 // 0 (any), core.ProtocolTCP or core.ProtocolUDP
	hosts  []hostTerm
	ports  []portTerm
}

func (q *query) empty() bool {
	return q.family == 0 && q.proto == 0 && len(q.hosts) == 0 && len(q.ports) == 0
}

// parse reads a conjunction of tcpdump style primitives:
//
//	ip | ip6 | tcp | udp
//	[src|dst] host ADDR | src ADDR | dst ADDR
//	[src|dst] port N
//
// joined by whitespace, "and" or "&&".
func parse(expr string) (*query, error) {
	var toks []string
	for _, t := range strings.Fields(strings.ToLower(expr)) {
		if t != "and" && t != "&&" {
			toks = append(toks, t)
		}
	}

	q := &query{}
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		next := func() (string, error) {
			if i+1 >= len(toks) {
				return "", fmt.Errorf("%w: %q needs an argument", core.ErrFilterSyntax, tok)
			}
			i++
			return toks[i], nil
		}

		switch tok {
		case "ip", "ip4":
			if err := q.setFamily(4); err != nil {
				return nil, err
			}
		case "ip6":
			if err := q.setFamily(6); err != nil {
				return nil, err
			}
		case "tcp", "udp":
			proto := core.ProtocolTCP
			if tok == "udp" {
				proto = core.ProtocolUDP
			}
			if q.proto != 0 && q.proto != proto {
				return nil, fmt.Errorf("%w: tcp and udp never both hold", core.ErrFilterSyntax)
			}
			q.proto = proto
		case "host", "src", "dst", "port":
			dir := either
			if tok == "src" {
				dir = src
			} else if tok == "dst" {
				dir = dst
			}
			kind := tok
			if dir != either {
				// "src host X" and "src port N" name the kind explicitly;
				// a bare "src X" means host.
				kind = "host"
				if i+1 < len(toks) && (toks[i+1] == "host" || toks[i+1] == "port") {
					i++
					kind = toks[i]
				}
			}
			arg, err := next()
			if err != nil {
				return nil, err
			}
			if kind == "port" {
				port, err := strconv.ParseUint(arg, 10, 16)
				if err != nil {
					return nil, fmt.Errorf("%w: bad port %q", core.ErrFilterSyntax, arg)
				}
				q.ports = append(q.ports, portTerm{dir: dir, port: uint16(port)})
				continue
			}
			addr, err := netip.ParseAddr(arg)
			if err != nil {
				return nil, fmt.Errorf("%w: bad address %q", core.ErrFilterSyntax, arg)
			}
			addr = addr.Unmap()
			family := 4
			if addr.Is6() {
				family = 6
			}
			if err := q.setFamily(family); err != nil {
				return nil, err
			}
			q.hosts = append(q.hosts, hostTerm{dir: dir, addr: addr})
		default:
			return nil, fmt.Errorf("%w: unknown primitive %q", core.ErrFilterSyntax, tok)
		}
	}
	return q, nil
}

func (q *query) setFamily(f int) error {
	if q.family != 0 && q.family != f {
		return fmt.Errorf("%w: mixes IPv4 and IPv6", core.ErrFilterSyntax)
	}
	q.family = f
	return nil
}
