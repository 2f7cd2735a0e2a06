package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	binderr "github.com/opst/knitfleet/pkg/api-types-binding/errors"
	bindinst "github.com/opst/knitfleet/pkg/api-types-binding/instances"
	"github.com/opst/knitfleet/pkg/reconciler"
)

// SyncInstanceHandler deploys all enabled components of the instance.
//
// Failures of components are in the response body. Only a missing instance is an error.
func SyncInstanceHandler(r reconciler.Reconciler, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		instanceId := c.Param(param)
		result, err := r.Sync(c.Request().Context(), instanceId)
		if err != nil {
			return binderr.FromDomainError(err)
		}
		return c.JSON(http.StatusOK, bindinst.ComposeSyncResult(instanceId, result))
	}
}
