package proxysource

import (
	"context"

	"fbposts/internal/logger"
)

type MultiSource struct {
	sources []Source
	logger  *logger.Logger
}

func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{
		sources: sources,
		logger:  logger.New("proxysrc"),
	}
}

// NewMultiSourceWithConfig builds the sources named in config.Sources.
func NewMultiSourceWithConfig(config SourceConfig) *MultiSource {
	var sources []Source

	for _, name := range config.Sources {
		switch name {
		case "static":
			sources = append(sources, NewStaticSource(config.List))
		case "file":
			if config.File != "" {
				sources = append(sources, NewFileSource(config.File))
			}
		case "url":
			if len(config.URLs) > 0 {
				sources = append(sources, NewURLSource(config.URLs, config))
			}
		case "geonode":
			sources = append(sources, NewGeonodeSource(config))
		}
	}

	return NewMultiSource(sources...)
}

// Add appends a source that cannot be built from SourceConfig.
func (m *MultiSource) Add(source Source) {
	m.sources = append(m.sources, source)
}

// LoadAll merges every source, keeping the first proxy seen per address.
func (m *MultiSource) LoadAll(ctx context.Context) ([]Proxy, error) {
	var allProxies []Proxy
	seen := make(map[string]bool)
	totalUnique := 0

	for _, source := range m.sources {
		proxies, err := source.Load(ctx)
		if err != nil {
			m.logger.WarnBg("Source %s failed: %v", source.Name(), err)
			continue
		}

		uniqueCount := 0
		for _, proxy := range proxies {
			key := proxy.Address()
			if !seen[key] {
				seen[key] = true
				allProxies = append(allProxies, proxy)
				uniqueCount++
			}
		}

		m.logger.InfoBg("Source %s: %d total, %d unique", source.Name(), len(proxies), uniqueCount)
		totalUnique += uniqueCount
	}

	m.logger.InfoBg("Total unique proxies loaded: %d", totalUnique)
	return allProxies, nil
}
