package bridge

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_cardshare._tcp"
	Domain      = "local."
)

// Advertise registers a bridge listening on port. Call Shutdown on the
// result to withdraw it.
func Advertise(instance string, port int) (*zeroconf.Server, error) {
	txtRecords := []string{
		"path=" + Path,
		"transport=1",
	}
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, txtRecords, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return server, nil
}

// Peer is a bridge found on the local network.
type Peer struct {
	Instance string
	URL      string
}

// Discover browses for bridges until ctx is done.
func Discover(ctx context.Context) ([]Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []Peer)
	go func() {
		var peers []Peer
		for e := range entries {
			if p, ok := PeerFromEntry(e); ok {
				peers = append(peers, p)
			}
		}
		done <- peers
	}()

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse mDNS: %w", err)
	}
	<-ctx.Done()
	return <-done, nil
}

// PeerFromEntry builds the websocket URL of a resolved service.
func PeerFromEntry(e *zeroconf.ServiceEntry) (Peer, bool) {
	var ip net.IP
	switch {
	case len(e.AddrIPv4) > 0:
		ip = e.AddrIPv4[0]
	case len(e.AddrIPv6) > 0:
		ip = e.AddrIPv6[0]
	default:
		return Peer{}, false
	}

	path := Path
	for _, txt := range e.Text {
		if v, ok := strings.CutPrefix(txt, "path="); ok && v != "" {
			path = v
		}
	}

	host := net.JoinHostPort(ip.String(), strconv.Itoa(e.Port))
	return Peer{Instance: e.Instance, URL: "ws://" + host + path}, true
}
