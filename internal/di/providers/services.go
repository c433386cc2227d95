package providers

import (
	"github.com/samber/do/v2"

	"github.com/tickitapp/tickit-sync/internal/service"
)

// ProvideSyncService provides the sync coordinator. Accepted changes are
// announced to connected event streams.
func ProvideSyncService(i do.Injector) (*service.SyncService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*LoggerHandle](i)

	return service.NewSyncService(storeHandle.Store, log.Component("sync"),
		service.WithNotifier(sseHandle.Manager),
	), nil
}
