package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"kilnline/internal/domain"
	"kilnline/internal/engine"
	"kilnline/internal/prefs"
	"kilnline/internal/repo"
	"kilnline/internal/tentative"
)

// ActorHeader names the workstation or person recorded on every write.
const ActorHeader = "X-Actor"

// Config for the HTTP API handler.
type Config struct {
	Engine *engine.Engine
	// Repo backs the import, settings and event endpoints.
	Repo     repo.Repo
	Prefs    *prefs.Manager
	BasePath string
	Log      *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"item 42: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the kilnline API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("server: engine is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Log))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
				r = r.WithContext(repo.WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Handle("/metrics", promhttp.HandlerFor(cfg.Engine.Metrics.Registry, promhttp.HandlerOpts{}))

	hcfg := huma.DefaultConfig("Kilnline API", "0.3.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerSnapshot(group, cfg.Engine)
	registerFilters(group, cfg.Engine)
	registerItemWrites(group, cfg.Engine)
	registerOrderWrites(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	if cfg.Repo.DB != nil {
		registerImport(group, cfg.Engine, cfg.Repo)
		registerSettings(group, cfg.Repo)
		registerEvents(group, cfg.Repo)
	}
	if cfg.Prefs != nil {
		registerPrefs(group, cfg.Prefs)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, tentative.ErrRolledBack) {
		return newAPIError(http.StatusServiceUnavailable, "write_rolled_back", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "belongs to order"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "must") || strings.Contains(lowered, "period") ||
		strings.Contains(lowered, "without id"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Kilnline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// registerSnapshot exposes the raw records; the Go SDK reads them to run an
// engine against this server.
func registerSnapshot(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List every order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []domain.Order `json:"items"`
		} `json:"body"`
	}, error) {
		if err := e.Load(ctx); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.Order `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = nonNilSlice(e.Orders())
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List every order item",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []domain.OrderItem `json:"items"`
		} `json:"body"`
	}, error) {
		if err := e.Load(ctx); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.OrderItem `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = nonNilSlice(e.Items())
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}",
		Summary:     "Resolve one item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID int64 `path:"item_id"`
	}) (*struct {
		Body engine.ItemView `json:"body"`
	}, error) {
		v, err := e.ResolveItem(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ItemView `json:"body"`
		}{Body: v}, nil
	})
}

func registerFilters(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "filter-items",
		Method:      http.MethodGet,
		Path:        "/filter/items",
		Summary:     "Filter items",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *filterQuery) (*struct {
		Body itemList `json:"body"`
	}, error) {
		c, err := input.criteria()
		if err != nil {
			return nil, handleError(err)
		}
		matches, err := e.FilterItems(ctx, c)
		if err != nil {
			return nil, handleError(err)
		}
		resp := itemList{Items: make([]engine.ItemView, 0, len(matches)), Count: len(matches)}
		for _, m := range matches {
			resp.Items = append(resp.Items, e.View(m))
		}
		return &struct {
			Body itemList `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "filter-orders",
		Method:      http.MethodGet,
		Path:        "/filter/orders",
		Summary:     "Filter orders by their items",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *filterQuery) (*struct {
		Body orderMatchList `json:"body"`
	}, error) {
		c, err := input.criteria()
		if err != nil {
			return nil, handleError(err)
		}
		orders, err := e.FilterOrders(ctx, c)
		if err != nil {
			return nil, handleError(err)
		}
		resp := orderMatchList{Items: make([]OrderMatchResponse, 0, len(orders)), Count: len(orders)}
		for _, om := range orders {
			views := make([]engine.ItemView, 0, len(om.Items))
			for _, m := range om.Items {
				views = append(views, e.View(m))
			}
			resp.Items = append(resp.Items, OrderMatchResponse{Order: om.Order, Items: views})
		}
		return &struct {
			Body orderMatchList `json:"body"`
		}{Body: resp}, nil
	})
}

type itemResponse struct {
	Body domain.OrderItem `json:"body"`
}

type orderResponse struct {
	Body domain.Order `json:"body"`
}

func registerItemWrites(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-item-stage",
		Method:      http.MethodPut,
		Path:        "/items/{item_id}/stages/{stage}",
		Summary:     "Check or uncheck a stage on an item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ItemID int64  `path:"item_id"`
		Stage  string `path:"stage"`
		Body   StageRequest
	}) (*itemResponse, error) {
		it, err := e.SetItemStage(ctx, input.ItemID, input.Stage, input.Body.Complete)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemResponse{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-item-archived",
		Method:      http.MethodPut,
		Path:        "/items/{item_id}/archived",
		Summary:     "Archive or restore an item",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ItemID int64 `path:"item_id"`
		Body   ArchiveRequest
	}) (*itemResponse, error) {
		it, err := e.SetItemArchived(ctx, input.ItemID, input.Body.Archived)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemResponse{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-item-specifications",
		Method:      http.MethodPatch,
		Path:        "/items/{item_id}/specifications",
		Summary:     "Merge keys into an item's specifications",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ItemID int64 `path:"item_id"`
		Body   SpecificationsRequest
	}) (*itemResponse, error) {
		it, err := e.PatchItemSpecifications(ctx, input.ItemID, input.Body.Patch)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemResponse{Body: it}, nil
	})
}

func registerOrderWrites(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-order-stage",
		Method:      http.MethodPut,
		Path:        "/orders/{order_id}/stages/{stage}",
		Summary:     "Check or uncheck a stage on an order",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		OrderID int64  `path:"order_id"`
		Stage   string `path:"stage"`
		Body    StageRequest
	}) (*orderResponse, error) {
		o, err := e.SetOrderStage(ctx, input.OrderID, input.Stage, input.Body.Complete)
		if err != nil {
			return nil, handleError(err)
		}
		return &orderResponse{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-order-notes",
		Method:      http.MethodPut,
		Path:        "/orders/{order_id}/notes",
		Summary:     "Replace an order's notes",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		OrderID int64 `path:"order_id"`
		Body    NotesRequest
	}) (*orderResponse, error) {
		o, err := e.SetOrderNotes(ctx, input.OrderID, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &orderResponse{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-order-archived",
		Method:      http.MethodPut,
		Path:        "/orders/{order_id}/archived",
		Summary:     "Archive or restore an order",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		OrderID int64 `path:"order_id"`
		Body    ArchiveRequest
	}) (*orderResponse, error) {
		o, err := e.SetOrderArchived(ctx, input.OrderID, input.Body.Archived)
		if err != nil {
			return nil, handleError(err)
		}
		return &orderResponse{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-box",
		Method:      http.MethodPost,
		Path:        "/orders/{order_id}/box",
		Summary:     "Pack items of an order into one box",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OrderID int64 `path:"order_id"`
		Body    BoxRequest
	}) (*struct {
		Body struct {
			Items []domain.OrderItem `json:"items"`
		} `json:"body"`
	}, error) {
		items, err := e.AssignBox(ctx, input.OrderID, input.Body.Items, input.Body.Size)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.OrderItem `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		return out, nil
	})
}

func registerReports(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "waiting",
		Method:      http.MethodGet,
		Path:        "/reports/waiting",
		Summary:     "Open orders by working days waited",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []engine.WaitingRow `json:"items"`
		} `json:"body"`
	}, error) {
		rows, err := e.Waiting(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []engine.WaitingRow `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = rows
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "box-usage",
		Method:      http.MethodGet,
		Path:        "/reports/boxes",
		Summary:     "Boxes needed per size for the filtered items",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *filterQuery) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		c, err := input.criteria()
		if err != nil {
			return nil, handleError(err)
		}
		matches, err := e.FilterItems(ctx, c)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]domain.OrderItem, 0, len(matches))
		for _, m := range matches {
			items = append(items, m.Item)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: engine.BoxUsage(items)}, nil
	})
}

func registerImport(api huma.API, e *engine.Engine, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "import",
		Method:      http.MethodPost,
		Path:        "/import",
		Summary:     "Import an order export",
		Description: "Accepts {\"orders\": [...], \"items\": [...]}; order ids may be numbers or numeric strings.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"application/json"`
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		var payload struct {
			Orders []domain.Order     `json:"orders"`
			Items  []domain.OrderItem `json:"items"`
		}
		if err := json.Unmarshal(input.RawBody, &payload); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid import payload", map[string]any{"error": err.Error()})
		}
		res, err := r.Import(ctx, payload.Orders, payload.Items)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.Load(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Orders: res.Orders, Items: res.Items, Orphans: res.Orphans}}, nil
	})
}

func registerSettings(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "get-setting",
		Method:      http.MethodGet,
		Path:        "/settings",
		Summary:     "Read a stored setting",
	}, func(ctx context.Context, input *struct {
		Key string `query:"key" required:"true"`
	}) (*struct {
		Body SettingResponse `json:"body"`
	}, error) {
		v, ok, err := r.GetSetting(ctx, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SettingResponse `json:"body"`
		}{Body: SettingResponse{Key: input.Key, Value: v, Found: ok}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-setting",
		Method:      http.MethodPut,
		Path:        "/settings",
		Summary:     "Store a setting",
	}, func(ctx context.Context, input *struct {
		Body SettingRequest
	}) (*struct {
		Body SettingResponse `json:"body"`
	}, error) {
		if err := r.PutSetting(ctx, input.Body.Key, input.Body.Value); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SettingResponse `json:"body"`
		}{Body: SettingResponse{Key: input.Body.Key, Value: input.Body.Value, Found: true}}, nil
	})
}

func registerPrefs(api huma.API, m *prefs.Manager) {
	huma.Register(api, huma.Operation{
		OperationID: "get-preferences",
		Method:      http.MethodGet,
		Path:        "/prefs",
		Summary:     "Current preferences",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PreferencesBody `json:"body"`
	}, error) {
		return &struct {
			Body PreferencesBody `json:"body"`
		}{Body: preferencesBody(m.Get())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-preferences",
		Method:      http.MethodPut,
		Path:        "/prefs",
		Summary:     "Replace preferences",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body PreferencesBody
	}) (*struct {
		Body PreferencesBody `json:"body"`
	}, error) {
		next, err := input.Body.preferences()
		if err != nil {
			return nil, handleError(err)
		}
		saved, err := m.Update(ctx, func(p *prefs.Preferences) { *p = next })
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PreferencesBody `json:"body"`
		}{Body: preferencesBody(saved)}, nil
	})
}

func registerEvents(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"order,item,setting,import"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor" doc:"Timestamp returned as next_cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		items, err := r.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     input.Cursor,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = items[limit-1].TS
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
