package render

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// ErrServerUnresolved means the crawler cannot find its own front end.
var ErrServerUnresolved = errors.New("server address is unresolved")

// ServerAddress is where the crawler connects to reach the site front end.
type ServerAddress struct {
	Host string
	Port int
}

// ServerResolver locates the local front end for the given transport.
type ServerResolver interface {
	Resolve(ctx context.Context, secure bool) (ServerAddress, error)
}

// Ports holds the front-end listen port per scheme.
type Ports struct {
	HTTP  int
	HTTPS int
}

func (p Ports) forScheme(secure bool) int {
	if secure {
		if p.HTTPS > 0 {
			return p.HTTPS
		}
		return 443
	}
	if p.HTTP > 0 {
		return p.HTTP
	}
	return 80
}

// StaticResolver always resolves to a configured host.
type StaticResolver struct {
	Host  string
	Ports Ports
}

// Resolve returns the configured host, or ErrServerUnresolved when blank.
func (r StaticResolver) Resolve(_ context.Context, secure bool) (ServerAddress, error) {
	host := strings.TrimSpace(r.Host)
	if host == "" {
		return ServerAddress{}, ErrServerUnresolved
	}
	return ServerAddress{Host: host, Port: r.Ports.forScheme(secure)}, nil
}

// HostnameResolver resolves the machine's own hostname, the way a portal
// finds its server address when nothing is configured.
type HostnameResolver struct {
	Ports    Ports
	Hostname func() (string, error)
	Lookup   func(ctx context.Context, host string) ([]string, error)
}

// NewHostnameResolver returns a resolver backed by os.Hostname and DNS.
func NewHostnameResolver(ports Ports) HostnameResolver {
	return HostnameResolver{
		Ports:    ports,
		Hostname: os.Hostname,
		Lookup:   net.DefaultResolver.LookupHost,
	}
}

// Resolve looks up the local hostname; any failure is ErrServerUnresolved.
func (r HostnameResolver) Resolve(ctx context.Context, secure bool) (ServerAddress, error) {
	if r.Hostname == nil || r.Lookup == nil {
		return ServerAddress{}, ErrServerUnresolved
	}
	hostname, err := r.Hostname()
	if err != nil || strings.TrimSpace(hostname) == "" {
		return ServerAddress{}, errors.Join(ErrServerUnresolved, err)
	}
	addrs, err := r.Lookup(ctx, hostname)
	if err != nil || len(addrs) == 0 {
		return ServerAddress{}, errors.Join(ErrServerUnresolved, err)
	}
	return ServerAddress{Host: hostname, Port: r.Ports.forScheme(secure)}, nil
}
