package proxysource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fbposts/internal/logger"
)

const DefaultGeonodeURL = "https://proxylist.geonode.com/api/proxy-list?limit=500&protocols=http,https,socks5"

// GeonodeSource loads proxies from the Geonode proxy-list JSON API.
type GeonodeSource struct {
	client    *http.Client
	userAgent string
	apiURL    string
	logger    *logger.Logger
}

type geonodeResponse struct {
	Data []geonodeProxy `json:"data"`
}

type geonodeProxy struct {
	IP        string   `json:"ip"`
	Port      string   `json:"port"`
	Protocols []string `json:"protocols"`
	Country   string   `json:"country"`
}

func NewGeonodeSource(config SourceConfig) *GeonodeSource {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	apiURL := config.GeonodeURL
	if apiURL == "" {
		apiURL = DefaultGeonodeURL
	}
	return &GeonodeSource{
		client:    &http.Client{Timeout: timeout},
		userAgent: config.UserAgent,
		apiURL:    apiURL,
		logger:    logger.New("geonode"),
	}
}

func (g *GeonodeSource) Name() string {
	return "geonode"
}

// Load returns one proxy per advertised protocol of each entry.
func (g *GeonodeSource) Load(ctx context.Context) ([]Proxy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var body geonodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	var proxies []Proxy
	httpCount := 0
	socksCount := 0
	now := time.Now()

	for _, entry := range body.Data {
		port, err := strconv.Atoi(entry.Port)
		if err != nil || port <= 0 || port > 65535 || entry.IP == "" {
			continue
		}

		for _, protocol := range entry.Protocols {
			protocol = strings.ToLower(protocol)
			switch protocol {
			case "http", "https":
				httpCount++
			case "socks4", "socks5":
				socksCount++
			default:
				continue
			}

			proxies = append(proxies, Proxy{
				Host:     entry.IP,
				Port:     port,
				Type:     protocol,
				Country:  entry.Country,
				LastSeen: now,
			})
		}
	}

	g.logger.InfoBg("Geonode collected: %d HTTP/HTTPS, %d SOCKS from %d entries", httpCount, socksCount, len(body.Data))
	return proxies, nil
}
