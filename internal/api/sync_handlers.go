package api

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tickitapp/tickit-sync/internal/domain"
	domainerrors "github.com/tickitapp/tickit-sync/internal/errors"
	"github.com/tickitapp/tickit-sync/internal/service"
	"github.com/tickitapp/tickit-sync/internal/sse"
)

// maxSyncBodyBytes bounds a single batch upload.
const maxSyncBodyBytes = 32 << 20

func (s *Server) registerSyncRoutes() {
	registry := s.api.OpenAPI().Components.Schemas
	requestSchema := registry.Schema(reflect.TypeOf(syncRequestBody{}), true, "SyncRequest")

	huma.Register(s.api, huma.Operation{
		OperationID: "sync",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync",
		Summary:     "Sync changes",
		Description: "Merges the device's local changes and returns every change newer than last_sync, " +
			"plus the ids rejected as conflicts. Send the returned server_time as last_sync next time.",
		Tags:         []string{"Sync"},
		Security:     []map[string][]string{{"bearer": {}}},
		MaxBodyBytes: maxSyncBodyBytes,
		// The schema is documentation only. handleSync validates the batch
		// so every rejection is a 400 MALFORMED_RECORD with field details.
		SkipValidateBody: true,
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {Schema: requestSchema},
			},
		},
	}, s.handleSync)

	// SSE is served by chi directly; huma has no streaming response type.
	if s.sseManager != nil {
		handler := sse.NewHandler(s.sseManager, func(r *http.Request) string {
			return TokenName(r.Context())
		}, s.logger)
		s.router.With(s.requireBearer).Get("/api/v1/sync/events", handler.ServeHTTP)
	}
}

// === DTOs ===

// changeList is domain.Changes with an OpenAPI schema for the tagged union.
type changeList domain.Changes

// Schema implements huma.SchemaProvider.
func (changeList) Schema(huma.Registry) *huma.Schema {
	kinds := []any{
		string(domain.KindList),
		string(domain.KindTag),
		string(domain.KindTaskTag),
		string(domain.KindTask),
		string(domain.KindDeleted),
	}
	return &huma.Schema{
		Type: huma.TypeArray,
		Items: &huma.Schema{
			Type:        huma.TypeObject,
			Description: "A list, tag, task_tag, task or deleted record, discriminated by type.",
			Required:    []string{"type"},
			Properties: map[string]*huma.Schema{
				"type": {Type: huma.TypeString, Enum: kinds},
			},
			AdditionalProperties: true,
		},
	}
}

// MarshalJSON implements json.Marshaler.
func (c changeList) MarshalJSON() ([]byte, error) {
	return domain.Changes(c).MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *changeList) UnmarshalJSON(data []byte) error {
	return (*domain.Changes)(c).UnmarshalJSON(data)
}

// syncRequestBody documents the request; decoding goes through service.SyncRequest.
type syncRequestBody struct {
	DeviceID string     `json:"device_id" doc:"Stable identifier of the calling device"`
	LastSync *time.Time `json:"last_sync" required:"false" nullable:"true" doc:"server_time from the previous sync; null requests a full snapshot"`
	Changes  changeList `json:"changes" doc:"Local changes made since the last sync"`
}

// SyncInput is the raw request body. It is decoded by hand so that the
// batch is checked by the sync service and reported as MALFORMED_RECORD.
type SyncInput struct {
	RawBody []byte
}

// SyncResponse is the sync result on the wire.
type SyncResponse struct {
	ServerTime time.Time  `json:"server_time" doc:"Watermark to send as last_sync on the next call"`
	Changes    changeList `json:"changes" doc:"Changes newer than last_sync, lists first, deletions last"`
	Conflicts  []string   `json:"conflicts" doc:"Ids of incoming records rejected because the server copy was newer"`
}

// SyncOutput wraps the sync response for Huma.
type SyncOutput struct {
	Body SyncResponse
}

func (s *Server) handleSync(ctx context.Context, input *SyncInput) (*SyncOutput, error) {
	var req service.SyncRequest
	if err := json.Unmarshal(input.RawBody, &req); err != nil {
		return nil, toAPIError(domainerrors.MalformedRecordf("invalid sync request: %v", err))
	}

	result, err := s.sync.Sync(ctx, req)
	if err != nil {
		if domainerrors.CodeOf(err) != domainerrors.CodeMalformedRecord {
			s.logger.Error("sync failed",
				"token", TokenName(ctx),
				"device_id", req.DeviceID,
				"error", err)
		}
		return nil, toAPIError(err)
	}

	conflicts := result.Conflicts
	if conflicts == nil {
		conflicts = []string{}
	}

	return &SyncOutput{
		Body: SyncResponse{
			ServerTime: result.ServerTime,
			Changes:    changeList(result.Changes),
			Conflicts:  conflicts,
		},
	}, nil
}
