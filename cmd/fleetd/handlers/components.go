package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	apicomp "github.com/opst/knitfleet-api-types/components"
	bindcomp "github.com/opst/knitfleet/pkg/api-types-binding/components"
	binderr "github.com/opst/knitfleet/pkg/api-types-binding/errors"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/lifecycle"
	"github.com/opst/knitfleet/pkg/utils"
)

func decodeJSON[T any](c echo.Context) (*T, error) {
	req := c.Request()
	ctyp := strings.ToLower(req.Header.Get("content-type"))
	if mediatype, _, _ := strings.Cut(ctyp, ";"); strings.TrimSpace(mediatype) != "application/json" {
		return nil, binderr.BadRequest(
			"unexpected content type. it should be application/json", nil,
		)
	}

	v := new(T)
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return nil, binderr.BadRequest("can not understand the requested json", err)
	}
	return v, nil
}

// CreateComponentHandler registers a new component and deploys it.
//
// It responds 201 with the component created.
func CreateComponentHandler(orchestrator lifecycle.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := decodeJSON[apicomp.CreateRequest](c)
		if err != nil {
			return err
		}

		req, err := bindcomp.ParseCreateRequest(orchestrator.Kind(), *body)
		if err != nil {
			return binderr.FromDomainError(err)
		}

		created, err := orchestrator.Create(c.Request().Context(), req)
		if err != nil {
			return binderr.FromDomainError(err)
		}
		return c.JSON(http.StatusCreated, bindcomp.ComposeDetail(created))
	}
}

func ListComponentsHandler(orchestrator lifecycle.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		found, err := orchestrator.List(c.Request().Context())
		if err != nil {
			return binderr.FromDomainError(err)
		}
		return c.JSON(http.StatusOK, utils.Map(found, bindcomp.ComposeDetail))
	}
}

func GetComponentHandler(orchestrator lifecycle.Orchestrator, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		found, err := orchestrator.Get(c.Request().Context(), c.Param(param))
		if err != nil {
			return binderr.FromDomainError(err)
		}
		return c.JSON(http.StatusOK, bindcomp.ComposeDetail(found))
	}
}

func UpdateComponentHandler(orchestrator lifecycle.Orchestrator, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := decodeJSON[apicomp.UpdateRequest](c)
		if err != nil {
			return err
		}

		req, err := bindcomp.ParseUpdateRequest(orchestrator.Kind(), *body)
		if err != nil {
			return binderr.FromDomainError(err)
		}

		updated, err := orchestrator.Update(c.Request().Context(), c.Param(param), req)
		if err != nil {
			return binderr.FromDomainError(err)
		}
		return c.JSON(http.StatusOK, bindcomp.ComposeDetail(updated))
	}
}

// DeleteComponentHandler removes the component.
//
// Cleanup failures on clusters are reported in the response body with status 200.
func DeleteComponentHandler(orchestrator lifecycle.Orchestrator, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		result, err := orchestrator.Delete(c.Request().Context(), c.Param(param))
		if err != nil {
			return binderr.FromDomainError(err)
		}
		return c.JSON(http.StatusOK, bindcomp.ComposeDeleteResult(result))
	}
}

// KindOfPath maps a path segment to the kind of components served there.
var KindOfPath = map[string]domain.Kind{
	"webapps": domain.KindService,
	"workers": domain.KindWorker,
	"crons":   domain.KindJob,
}
