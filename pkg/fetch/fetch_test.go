package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbposts/pkg/pool"
	"fbposts/pkg/post"
	"fbposts/pkg/proxysource"
)

func directIdentity() pool.Identity {
	return pool.Identity{UserAgent: "test-agent/1.0"}
}

func TestResolveURL(t *testing.T) {
	f := NewHTTPFetcher(HTTPConfig{BaseURL: "https://mbasic.example.com/"})

	tests := []struct {
		name string
		ref  Ref
		want string
	}{
		{"page name", Ref{Target: "acme"}, "https://mbasic.example.com/acme"},
		{"absolute target", Ref{Target: "https://www.example.com/acme/posts/1"}, "https://www.example.com/acme/posts/1"},
		{"token cursor", Ref{Target: "acme", Cursor: "AbC=="}, "https://mbasic.example.com/acme?cursor=AbC%3D%3D"},
		{"rooted cursor", Ref{Target: "acme", Cursor: "/acme?sectionLoadingID=2"}, "https://mbasic.example.com/acme?sectionLoadingID=2"},
		{"absolute cursor", Ref{Target: "acme", Cursor: "https://mbasic.example.com/x?y=1"}, "https://mbasic.example.com/x?y=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.ResolveURL(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := f.ResolveURL(Ref{Target: "  "})
	assert.Error(t, err)
}

func TestFetchSuccessSendsIdentityUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>ok</body></html>")
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPConfig{BaseURL: srv.URL})
	payload, err := f.Fetch(context.Background(), Ref{Target: "acme"}, directIdentity())
	require.NoError(t, err)

	assert.Equal(t, "test-agent/1.0", gotUA)
	assert.Equal(t, http.StatusOK, payload.StatusCode)
	assert.Equal(t, "text/html", payload.ContentType)
	assert.Contains(t, string(payload.Body), "ok")
}

func TestFetchClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		class     Class
		transient bool
	}{
		{http.StatusTooManyRequests, ClassRateLimited, true},
		{http.StatusForbidden, ClassBlocked, true},
		{http.StatusServiceUnavailable, ClassServerError, true},
		{http.StatusNotFound, ClassNotFound, false},
		{http.StatusGone, ClassDeactivated, false},
		{http.StatusBadRequest, ClassMalformedRequest, false},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			f := NewHTTPFetcher(HTTPConfig{BaseURL: srv.URL})
			_, err := f.Fetch(context.Background(), Ref{Target: "acme"}, directIdentity())
			require.Error(t, err)

			var te *TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.class, te.Class)
			assert.Equal(t, tt.status, te.StatusCode)
			assert.Equal(t, tt.transient, ClassOf(err).Transient())
			assert.Equal(t, post.KindTransport, post.KindOf(err))
		})
	}
}

func TestFetchLoginRedirectIsBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/acme" {
			http.Redirect(w, r, "/login.php?next=acme", http.StatusFound)
			return
		}
		fmt.Fprint(w, "login form")
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPConfig{BaseURL: srv.URL})
	_, err := f.Fetch(context.Background(), Ref{Target: "acme"}, directIdentity())
	require.Error(t, err)
	assert.Equal(t, ClassBlocked, ClassOf(err))
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := f.Fetch(context.Background(), Ref{Target: "acme"}, directIdentity())
	require.Error(t, err)
	assert.Equal(t, ClassTimeout, ClassOf(err))
}

func TestFetchRoutesThroughHTTPProxy(t *testing.T) {
	var proxiedHost string
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxiedHost = r.URL.Host
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer proxySrv.Close()

	u, err := url.Parse(proxySrv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	id := pool.Identity{
		Proxy:     &proxysource.Proxy{Host: u.Hostname(), Port: port, Type: "http"},
		UserAgent: "ua",
	}

	f := NewHTTPFetcher(HTTPConfig{BaseURL: "http://facebook.invalid"})
	_, err = f.Fetch(context.Background(), Ref{Target: "acme"}, id)
	require.NoError(t, err)
	assert.Equal(t, "facebook.invalid", proxiedHost)
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "0123456789")
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPConfig{BaseURL: srv.URL, MaxBodyBytes: 4})
	_, err := f.Fetch(context.Background(), Ref{Target: "acme"}, directIdentity())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
	assert.Equal(t, ClassMalformedRequest, ClassOf(err))
	assert.False(t, ClassOf(err).Transient())

	exact := NewHTTPFetcher(HTTPConfig{BaseURL: srv.URL, MaxBodyBytes: 10})
	payload, err := exact.Fetch(context.Background(), Ref{Target: "acme"}, directIdentity())
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(payload.Body))
}

func TestClassOfRawErrors(t *testing.T) {
	assert.Equal(t, ClassTimeout, ClassOf(context.DeadlineExceeded))
	assert.Equal(t, ClassConnectionReset, ClassOf(errors.New("read tcp: connection reset by peer")))
	assert.Equal(t, ClassUnknown, ClassOf(errors.New("weird")))
	assert.Equal(t, ClassNotFound, ClassOf(fmt.Errorf("wrapped: %w", NewError(ClassNotFound, nil))))
	assert.True(t, ClassUnknown.Transient())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestNetworkErrorHelpers(t *testing.T) {
	assert.True(t, IsTimeout(fmt.Errorf("dial: %w", timeoutErr{})))
	assert.False(t, IsTimeout(errors.New("i/o timeout")))
	assert.False(t, IsTimeout(nil))

	assert.True(t, IsConnectionError(errors.New("dial tcp 10.0.0.1:80: connect: connection refused")))
	assert.True(t, IsConnectionError(errors.New("connect: no route to host")))
	assert.True(t, IsConnectionError(errors.New("connect: network is unreachable")))
	assert.False(t, IsConnectionError(errors.New("HTTP 502")))
	assert.False(t, IsConnectionError(nil))
}

func TestNewTransportSOCKS(t *testing.T) {
	transport, err := NewTransport(&proxysource.Proxy{Host: "127.0.0.1", Port: 1080, Type: "socks5"})
	require.NoError(t, err)
	assert.Nil(t, transport.Proxy)
	assert.NotNil(t, transport.DialContext)
}
