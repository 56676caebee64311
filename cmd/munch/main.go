package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/themunch/munch"
	"github.com/themunch/munch/bolt"
	"github.com/themunch/munch/http"
	"github.com/themunch/munch/mongo"
	"github.com/themunch/munch/ratelimit"
	"github.com/themunch/munch/sqlite"
	"github.com/themunch/munch/verifier"
)

func main() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}

	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("db.type", "mongo")
	viper.SetDefault("db.name", "munch")
	viper.SetDefault("ratelimit.store", "memory")
	viper.SetDefault("ratelimit.subscribe.requests", 5)
	viper.SetDefault("ratelimit.subscribe.window", time.Minute)
	viper.SetDefault("ratelimit.verify.requests", 10)
	viper.SetDefault("ratelimit.verify.window", time.Minute)
	viper.SetDefault("ratelimit.sweep.cron.spec", "*/5 * * * *")
	viper.SetDefault("verifier.dns.timeout", 2500*time.Millisecond)

	var config *munch.Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatal(err)
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn: config.Sentry.DSN,
	}); err != nil {
		log.Fatalf("sentry.Init: %v", err)
	}
	defer sentry.Flush(2 * time.Second)

	a := newApp(config)

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		_ = a.Close()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := a.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	config      *munch.Config
	db          munch.Database
	redisClient *redis.Client
	sweeper     *cron.Cron
	httpServer  *http.Server
}

func newApp(config *munch.Config) *app {
	httpServer, err := http.NewServer(config)
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
	return &app{
		config:     config,
		httpServer: httpServer,
	}
}

func (a *app) Run(ctx context.Context) error {
	subscribers, err := a.openStore()
	if err != nil {
		return err
	}

	limiter, err := a.newRateLimiter()
	if err != nil {
		return err
	}

	a.httpServer.Addr = a.config.HTTP.Addr
	a.httpServer.SubscriberService = subscribers
	a.httpServer.VerifierService = verifier.NewService(a.config.Verifier.DNS.Timeout)
	a.httpServer.RateLimitService = limiter

	return a.httpServer.Open()
}

func (a *app) openStore() (munch.SubscriberService, error) {
	switch a.config.DB.Type {
	case "bolt":
		db := bolt.NewDB(a.config.DB.Path)
		if err := db.Open(); err != nil {
			return nil, err
		}
		a.db = db
		return bolt.NewSubscriberService(db), nil

	case "sqlite":
		db := sqlite.NewDB(a.config.DB.Path)
		if err := db.Open(); err != nil {
			return nil, err
		}
		a.db = db
		return sqlite.NewSubscriberService(db), nil

	default:
		db := mongo.NewDB(a.config)
		if err := db.Open(); err != nil {
			return nil, err
		}
		a.db = db
		return mongo.NewSubscriberService(db), nil
	}
}

func (a *app) newRateLimiter() (munch.RateLimitService, error) {
	if a.config.RateLimit.Store == "redis" {
		opt, err := redis.ParseURL(a.config.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.redisClient = redis.NewClient(opt)
		return ratelimit.NewRedis(a.redisClient), nil
	}

	limiter := ratelimit.NewMemory()

	a.sweeper = cron.New()
	if _, err := a.sweeper.AddFunc(a.config.RateLimit.Sweep.Cron.Spec, func() {
		limiter.Sweep()
	}); err != nil {
		return nil, err
	}
	a.sweeper.Start()

	return limiter, nil
}

func (a *app) Close() error {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Close(); err != nil {
			return err
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return err
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			return err
		}
	}

	return nil
}
