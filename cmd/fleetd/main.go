package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	fconf "github.com/opst/knitfleet/pkg/configs/fleetd"
	"github.com/opst/knitfleet/pkg/domain/knitfleet"
	"github.com/opst/knitfleet/pkg/metrics"
	"github.com/opst/knitfleet/pkg/utils/filewatch"
)

func main() {
	pconfig := flag.String(
		"config", os.Getenv("KNITFLEET_CONFIG"), "path to config file",
	)
	loglevel := flag.String("loglevel", "warn", "log level. debug|info|warn|error|off")

	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	conf, err := fconf.LoadFleetdConfig(*pconfig)
	if err != nil {
		panic(err)
	}

	// exit when the config file is modified, to be restarted with new one.
	{
		ctx_, ccan, err := filewatch.UntilModified(ctx, *pconfig)
		if err != nil {
			panic(err)
		}
		defer ccan()
		ctx = ctx_
	}

	metrics.Register()

	server := NewEcho(*loglevel)

	kf, err := knitfleet.New(ctx, conf, server.Logger)
	if err != nil {
		panic(err)
	}
	BuildServer(server, kf)

	{
		ctx_, ccan := kf.Schema().Context(ctx)
		defer ccan()
		ctx = ctx_
	}

	for _, r := range server.Routes() {
		server.Logger.Debugf("- mount handler: %s %s", strings.ToUpper(r.Method), r.Path)
	}

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		if err := server.Start(fmt.Sprintf(":%d", conf.Port())); err != nil && err != http.ErrServerClosed {
			ch <- err
		}
	}()

	exit := 0
	select {
	case <-ctx.Done():
		if err := ctx.Err(); err != nil {
			server.Logger.Infof("context has been done: %s, cause: %s", err, context.Cause(ctx))
			exit = 1
		}
	case err := <-ch:
		if err != nil {
			server.Logger.Error("server stops with error:", err)
			exit = 1
		}
	}

	{
		server.Logger.Info("shutting down...")
		qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer qcancel()

		if err := server.Shutdown(qctx); err != nil {
			server.Logger.Errorf("Shutdown with error. %+v", err)
			exit = 1
		}
		kf.Close()
		os.Exit(exit)
	}
}
