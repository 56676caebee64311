package munch

import "time"

// Config represents the main config
type Config struct {
	DB struct {
		Type string // "mongo", "bolt" or "sqlite"
		Path string // bolt/sqlite file path
		URI  string // mongo connection string
		Name string // mongo database name

		Pool struct {
			Min uint64
			Max uint64
		}

		Timeout struct {
			Connect time.Duration
			Server  time.Duration
			Socket  time.Duration
		}
	}

	HTTP struct {
		Addr string
	}

	RateLimit struct {
		Store     string // "memory" or "redis"
		Subscribe RateLimit
		Verify    RateLimit
		Sweep     struct {
			Cron struct {
				Spec string
			}
		}
	}

	Verifier struct {
		DNS struct {
			Timeout time.Duration
		}
	}

	Redis struct {
		URL string
	}

	Sentry struct {
		DSN string
	}
}
