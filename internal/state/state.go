// Package state builds the process-wide, read-mostly configuration
// snapshot every other component is threaded through explicitly: cache
// directory, HTTP endpoints, per-repository trust settings, and the
// capabilities (clock, HTTP client) tests substitute with fakes.
package state

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Clock abstracts wall-clock time so tests can inject a fixed instant.
type Clock interface {
	Now() time.Time
}

// systemClock is the production Clock, backed by time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RepoConfig is one configured upstream repository.
type RepoConfig struct {
	Name      string
	URL       string
	PublicKey []byte
	AuthKey   string

	// NoVerifySignature and NoVerifyOrigin disable the corresponding
	// §4B checks. Production configuration never sets these; they
	// exist for test fixtures and explicitly unsafe opt-in.
	NoVerifySignature bool
	NoVerifyOrigin    bool
}

// State is an immutable configuration snapshot, built once at startup
// by New and safe for concurrent read access from every goroutine.
type State struct {
	CacheDir        string
	APIBaseURL      string
	Mirror          string
	Repos           map[string]RepoConfig
	HTTPConcurrency int
	Offline         bool
	UnsafeHTTPS     bool
	DiffCommand     string
	Clock           Clock
	HTTPClient      *http.Client
}

// Option customizes a State built by New, primarily for tests.
type Option func(*State)

// WithClock overrides the clock, e.g. with a fixed instant in tests.
func WithClock(c Clock) Option {
	return func(s *State) { s.Clock = c }
}

// WithHTTPClient overrides the HTTP client used for every repository
// request.
func WithHTTPClient(c *http.Client) Option {
	return func(s *State) { s.HTTPClient = c }
}

// WithRepo adds or replaces a repository configuration.
func WithRepo(cfg RepoConfig) Option {
	return func(s *State) { s.Repos[cfg.Name] = cfg }
}

const (
	envHome             = "HEX_HOME"
	envAPIURL           = "HEX_API_URL"
	envMirror           = "HEX_MIRROR"
	envOffline          = "HEX_OFFLINE"
	envUnsafeHTTPS      = "HEX_UNSAFE_HTTPS"
	envUnsafeRegistry   = "HEX_UNSAFE_REGISTRY"
	envHTTPConcurrency  = "HEX_HTTP_CONCURRENCY"
	envHTTPProxy        = "HTTP_PROXY"
	envHTTPSProxy       = "HTTPS_PROXY"
	defaultAPIBaseURL   = "https://hex.pm"
	defaultConcurrency  = 8
)

// New builds a State from the process environment, then applies opts.
// Production code calls this once at startup; everything downstream
// receives the resulting *State by value or pointer rather than
// re-reading the environment.
func New(opts ...Option) (*State, error) {
	home := os.Getenv(envHome)
	if home == "" {
		configHome, err := os.UserCacheDir()
		if err != nil {
			configHome = os.TempDir()
		}
		home = filepath.Join(configHome, "hex")
	}

	apiURL := os.Getenv(envAPIURL)
	if apiURL == "" {
		apiURL = defaultAPIBaseURL
	}

	concurrency := defaultConcurrency
	if raw := os.Getenv(envHTTPConcurrency); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			concurrency = n
		}
	}

	unsafeRegistry := parseBoolEnv(envUnsafeRegistry)

	s := &State{
		CacheDir:        home,
		APIBaseURL:      apiURL,
		Mirror:          os.Getenv(envMirror),
		Repos:           defaultRepos(apiURL, unsafeRegistry),
		HTTPConcurrency: concurrency,
		Offline:         parseBoolEnv(envOffline),
		UnsafeHTTPS:     parseBoolEnv(envUnsafeHTTPS),
		Clock:           systemClock{},
		HTTPClient:      httpClientWithProxy(),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func defaultRepos(apiURL string, unsafe bool) map[string]RepoConfig {
	return map[string]RepoConfig{
		"hexpm": {
			Name:              "hexpm",
			URL:               apiURL,
			NoVerifySignature: unsafe,
			NoVerifyOrigin:    unsafe,
		},
	}
}

func parseBoolEnv(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	return v == "1" || v == "true" || v == "yes"
}

// httpClientWithProxy returns a client honoring HTTP_PROXY/HTTPS_PROXY
// via http.ProxyFromEnvironment, the transport's default behavior; it is
// constructed explicitly here so State owns the client's lifetime and
// timeout rather than relying on http.DefaultClient.
func httpClientWithProxy() *http.Client {
	return &http.Client{
		Timeout:   60 * time.Second,
		Transport: http.DefaultTransport,
	}
}

// Repo looks up a configured repository by name.
func (s *State) Repo(name string) (RepoConfig, bool) {
	cfg, ok := s.Repos[name]
	return cfg, ok
}
