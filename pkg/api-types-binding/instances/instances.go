package instances

import (
	"github.com/opst/knitfleet-api-types/instances"
	"github.com/opst/knitfleet/pkg/reconciler"
	"github.com/opst/knitfleet/pkg/utils"
)

func ComposeSyncResult(instanceId string, r reconciler.SyncResult) instances.SyncResult {
	return instances.SyncResult{
		InstanceId:       instanceId,
		TotalComponents:  r.Total,
		SyncedComponents: r.Synced,
		Errors: utils.Map(r.Errors, func(e reconciler.ComponentError) instances.SyncError {
			return instances.SyncError{
				ComponentId: e.Component.Id,
				Component:   e.Component.Name,
				Error:       e.Err.Error(),
			}
		}),
	}
}
