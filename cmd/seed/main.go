package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"guesswho/internal/app"
	"guesswho/internal/config"
)

func main() {
	force := flag.Bool("force", false, "upsert the catalog even when roles already exist")
	flag.Parse()

	cfg := config.Load()
	cfg.ConfigureLogging()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open store")
	}
	defer store.Close(context.Background())

	n, err := app.SeedRoles(ctx, store, *force)
	if err != nil {
		logrus.WithError(err).Fatal("failed to seed roles")
	}
	if n == 0 {
		logrus.Info("role catalog already present, nothing to do (use -force to upsert)")
		return
	}
	logrus.WithField("roles", n).Info("role catalog seeded")
}
