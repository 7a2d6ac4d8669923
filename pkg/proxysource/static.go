package proxysource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"fbposts/internal/logger"
)

// StaticSource serves proxies listed directly in configuration.
type StaticSource struct {
	lines []string
}

func NewStaticSource(lines []string) *StaticSource {
	return &StaticSource{lines: lines}
}

func (s *StaticSource) Name() string {
	return "static"
}

func (s *StaticSource) Load(ctx context.Context) ([]Proxy, error) {
	var proxies []Proxy
	for _, line := range s.lines {
		if proxy, ok := ParseLine(line, "http"); ok {
			proxies = append(proxies, proxy)
		}
	}
	return proxies, nil
}

// FileSource reads one proxy per line from a local file.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Load(ctx context.Context) ([]Proxy, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer file.Close()

	return parseProxies(file, "http")
}

// URLSource downloads plain-text proxy lists.
type URLSource struct {
	client    *http.Client
	userAgent string
	urls      []string
	logger    *logger.Logger
}

func NewURLSource(urls []string, config SourceConfig) *URLSource {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &URLSource{
		client:    &http.Client{Timeout: timeout},
		userAgent: config.UserAgent,
		urls:      urls,
		logger:    logger.New("proxyurl"),
	}
}

func (u *URLSource) Name() string {
	return "url"
}

func (u *URLSource) Load(ctx context.Context) ([]Proxy, error) {
	var allProxies []Proxy
	for _, listURL := range u.urls {
		proxies, err := u.loadURL(ctx, listURL)
		if err != nil {
			u.logger.WarnBg("Proxy list %s failed: %v", listURL, err)
			continue
		}
		allProxies = append(allProxies, proxies...)
	}
	return allProxies, nil
}

func (u *URLSource) loadURL(ctx context.Context, listURL string) ([]Proxy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	if u.userAgent != "" {
		req.Header.Set("User-Agent", u.userAgent)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return parseProxies(resp.Body, "http")
}

func parseProxies(reader io.Reader, defaultType string) ([]Proxy, error) {
	var proxies []Proxy
	scanner := bufio.NewScanner(reader)

	for scanner.Scan() {
		if proxy, ok := ParseLine(scanner.Text(), defaultType); ok {
			proxies = append(proxies, proxy)
		}
	}

	return proxies, scanner.Err()
}
