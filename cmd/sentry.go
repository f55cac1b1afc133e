package cmd

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-unlocks/config"
)

// initSentry returns a flush func; it is a no-op when SENTRY_DSN is empty.
func initSentry(cfg *config.Config) func() {
	if cfg.Sentry.DSN == "" {
		return func() {}
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: cfg.App.Env,
		ServerName:  cfg.App.ServiceName,
	}); err != nil {
		logrus.WithError(err).Error("Sentry init failed")
		return func() {}
	}

	return func() {
		sentry.Flush(2 * time.Second)
	}
}
