package proxysource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line     string
		ok       bool
		wantType string
		wantAddr string
	}{
		{"socks5://10.0.0.1:1080", true, "socks5", "10.0.0.1:1080"},
		{"10.0.0.2:8080", true, "http", "10.0.0.2:8080"},
		{"HTTPS://proxy.local:443", true, "https", "proxy.local:443"},
		{"# comment", false, "", ""},
		{"", false, "", ""},
		{"10.0.0.3", false, "", ""},
		{"10.0.0.3:notaport", false, "", ""},
		{"ftp://10.0.0.4:21", false, "", ""},
		{"10.0.0.5:70000", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			proxy, ok := ParseLine(tt.line, "http")
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.wantType, proxy.Type)
				assert.Equal(t, tt.wantAddr, proxy.Address())
			}
		})
	}
}

func TestProxyURL(t *testing.T) {
	assert.Equal(t, "http://1.2.3.4:80", Proxy{Host: "1.2.3.4", Port: 80, Type: "https"}.URL().String())
	assert.Equal(t, "socks5://1.2.3.4:1080", Proxy{Host: "1.2.3.4", Port: 1080, Type: "socks5"}.URL().String())
}

func TestMultiSourceDeduplicatesByAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxies.txt")
	require.NoError(t, os.WriteFile(path, []byte("# list\n10.0.0.1:8080\n10.0.0.9:3128\n"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "socks5://10.0.0.9:3128")
		fmt.Fprintln(w, "socks5://10.0.0.7:1080")
	}))
	defer srv.Close()

	multi := NewMultiSourceWithConfig(SourceConfig{
		Sources: []string{"static", "file", "url"},
		List:    []string{"http://10.0.0.1:8080"},
		File:    path,
		URLs:    []string{srv.URL, srv.URL + "/missing"},
	})

	proxies, err := multi.LoadAll(context.Background())
	require.NoError(t, err)

	var addrs []string
	for _, p := range proxies {
		addrs = append(addrs, p.Address())
	}
	assert.Equal(t, []string{"10.0.0.1:8080", "10.0.0.9:3128", "10.0.0.7:1080"}, addrs)
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.txt")).Load(context.Background())
	assert.Error(t, err)
}

func TestGeonodeSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, `{"data":[
			{"ip":"10.0.0.1","port":"8080","protocols":["http","socks5"],"country":"DE"},
			{"ip":"10.0.0.2","port":"bad","protocols":["http"]},
			{"ip":"10.0.0.3","port":"3128","protocols":["ftp"]}
		],"total":3}`)
	}))
	defer srv.Close()

	multi := NewMultiSourceWithConfig(SourceConfig{Sources: []string{"geonode"}, GeonodeURL: srv.URL})
	proxies, err := multi.LoadAll(context.Background())
	require.NoError(t, err)

	// Same address under two protocols: the first one wins.
	require.Len(t, proxies, 1)
	assert.Equal(t, "http", proxies[0].Type)
	assert.Equal(t, "DE", proxies[0].Country)

	direct, err := NewGeonodeSource(SourceConfig{GeonodeURL: srv.URL}).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, direct, 2)
}

func TestGeonodeSourceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewGeonodeSource(SourceConfig{GeonodeURL: srv.URL}).Load(context.Background())
	assert.EqualError(t, err, "HTTP 429")
}
