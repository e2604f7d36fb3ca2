// calcserver serves the Calculator and Stats services on a single port.
// Configuration comes from CALCRPC_* env vars, an optional .env, or
// calcrpc.yaml; SIGINT/SIGTERM drain in-flight calls for the configured
// grace period before forcing the remaining connections closed.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"calcrpc/calc"
	"calcrpc/config"
	"calcrpc/logger"
	"calcrpc/rpc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.WithError(err).Fatal("configure logger")
	}

	srv := rpc.NewServer(cfg.Addr)
	srv.Logger = log
	srv.PoolSize = cfg.PoolSize
	srv.MaxConns = cfg.MaxConns
	srv.MaxBodyLen = cfg.MaxBodyLen
	srv.ConnectTimeout = cfg.ConnectTimeout
	srv.Use(rpc.Logging(log))
	calc.Register(srv, &calc.Arithmetic{Pace: cfg.StreamPace}, &calc.Stats{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.WithFields(logrus.Fields{
		"addr": cfg.Addr,
		"pool": cfg.PoolSize,
	}).Info("server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, rpc.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.GracePeriod)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("forced shutdown after grace period")
		} else {
			log.Info("server closed")
		}
	}
}
