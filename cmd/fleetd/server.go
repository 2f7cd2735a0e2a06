package main

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opst/knitfleet/cmd/fleetd/handlers"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/lifecycle"
	"github.com/opst/knitfleet/pkg/metrics"
	"github.com/opst/knitfleet/pkg/reconciler"
	"github.com/opst/knitfleet/pkg/utils/echoutil"
)

var API_ROOT = "/api"

func api(subpath string) string {
	if !strings.HasSuffix(subpath, "/") {
		subpath += "/"
	}
	return fmt.Sprintf("%s/%s", API_ROOT, subpath)
}

type Services interface {
	Orchestrator(kind domain.Kind) lifecycle.Orchestrator
	Reconciler() reconciler.Reconciler
}

// NewEcho creates echo server with logging and error handling, without routes.
func NewEcho(loglevel string) *echo.Echo {
	e := echo.New()
	echoutil.SetLevel(e, loglevel)

	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}

	e.Pre(middleware.AddTrailingSlash())

	// logging for server-side latency.
	e.Use(echoutil.LogHandlerFunc)

	return e
}

// BuildServer mounts handlers of services onto e.
func BuildServer(e *echo.Echo, services Services) *echo.Echo {
	for path, kind := range handlers.KindOfPath {
		orchestrator := services.Orchestrator(kind)
		if orchestrator == nil {
			continue
		}
		e.POST(api(path), handlers.CreateComponentHandler(orchestrator))
		e.GET(api(path), handlers.ListComponentsHandler(orchestrator))
		e.GET(api(path+"/:id"), handlers.GetComponentHandler(orchestrator, "id"))
		e.PUT(api(path+"/:id"), handlers.UpdateComponentHandler(orchestrator, "id"))
		e.DELETE(api(path+"/:id"), handlers.DeleteComponentHandler(orchestrator, "id"))
	}

	e.POST(api("instances/:id/sync"), handlers.SyncInstanceHandler(services.Reconciler(), "id"))

	e.GET("/metrics/", echo.WrapHandler(metrics.Handler()))

	return e
}
