package config

const (
	defaultBind                = "127.0.0.1:5050"
	defaultStoragePath         = "~/.local/share/nomadcast/storage"
	defaultSubscriptionsPath   = "~/.config/nomadcast/subscriptions.yaml"
	defaultEpisodesPerShow     = 5
	defaultRSSPollSeconds      = 900
	defaultJitterSeconds       = 60
	defaultRetryBackoffSeconds = 300
	defaultMaxBackoffSeconds   = 3600
	defaultMaxAttempts         = 6
	defaultFetchTimeoutSeconds = 120
	defaultFetchConcurrency    = 2
	defaultTickSeconds         = 1
	defaultLogLevel            = "info"
	defaultLogFormat           = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind: defaultBind,
		},
		Storage: Storage{
			Path: defaultStoragePath,
		},
		Cache: Cache{
			EpisodesPerShow: defaultEpisodesPerShow,
		},
		Refresh: Refresh{
			RSSPollSeconds:      defaultRSSPollSeconds,
			JitterSeconds:       defaultJitterSeconds,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			MaxBackoffSeconds:   defaultMaxBackoffSeconds,
			MaxAttempts:         defaultMaxAttempts,
			FetchTimeoutSeconds: defaultFetchTimeoutSeconds,
			FetchConcurrency:    defaultFetchConcurrency,
			TickSeconds:         defaultTickSeconds,
		},
		Subscriptions: Subscriptions{
			Path:  defaultSubscriptionsPath,
			Watch: true,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
