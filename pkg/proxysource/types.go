package proxysource

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Proxy struct {
	Host     string
	Port     int
	Type     string
	Country  string
	LastSeen time.Time
}

func (p Proxy) Address() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// URL renders the proxy as scheme://host:port. https proxies are reached
// over plain http CONNECT.
func (p Proxy) URL() *url.URL {
	scheme := p.Type
	switch scheme {
	case "socks4", "socks5":
	default:
		scheme = "http"
	}
	return &url.URL{Scheme: scheme, Host: p.Address()}
}

// Source loads proxies from one origin.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]Proxy, error)
}

type SourceConfig struct {
	Timeout    time.Duration
	UserAgent  string
	Sources    []string
	List       []string
	File       string
	URLs       []string
	GeonodeURL string
}

// ParseLine accepts "protocol://host:port" or bare "host:port" (typed as
// defaultType). Blank lines and # comments yield ok=false.
func ParseLine(line, defaultType string) (Proxy, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Proxy{}, false
	}

	proxyType := defaultType
	hostPort := line
	if parts := strings.SplitN(line, "://", 2); len(parts) == 2 {
		proxyType = strings.ToLower(parts[0])
		hostPort = parts[1]
	}

	hostPortParts := strings.Split(hostPort, ":")
	if len(hostPortParts) != 2 || hostPortParts[0] == "" {
		return Proxy{}, false
	}

	port, err := strconv.Atoi(strings.TrimRight(hostPortParts[1], "/"))
	if err != nil || port <= 0 || port > 65535 {
		return Proxy{}, false
	}

	switch proxyType {
	case "http", "https", "socks4", "socks5":
	default:
		return Proxy{}, false
	}

	return Proxy{
		Host:     hostPortParts[0],
		Port:     port,
		Type:     proxyType,
		LastSeen: time.Now(),
	}, true
}
