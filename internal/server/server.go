package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"intervene/internal/domain"
	"intervene/internal/engine"
	"intervene/internal/export"
	"intervene/internal/plan"
	"intervene/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *log.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"dependency_rejected"`
	Message string         `json:"message" example:"dependency would create a circular dependency: C -> A -> B -> C"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from_intervention_id\":\"C\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the intervention planning API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(requestLogger(cfg.Logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Intervene API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerBundles(group, cfg.Engine)
	registerInterventions(group, cfg.Engine)
	registerDependencies(group, cfg.Engine)
	registerAnalysis(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	if cfg.Auth.EnableDevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
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
	msg := err.Error()
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case engine.IsRejected(err):
		return newAPIError(http.StatusConflict, "dependency_rejected", msg, nil)
	case errors.Is(err, engine.ErrAlreadyExists):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case errors.Is(err, plan.ErrCycle):
		return newAPIError(http.StatusUnprocessableEntity, "cycle_detected", msg, nil)
	case errors.Is(err, engine.ErrInvalid), errors.Is(err, plan.ErrInvalidDependencyType):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
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
			applyAuthSecurity(oas, basePath)
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
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
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
    <title>Intervene API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
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

type bundlePath struct {
	BundleID string `path:"bundle_id"`
}

type bundleBody struct {
	Body domain.Bundle `json:"body"`
}

func registerBundles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-bundle",
		Method:        http.MethodPost,
		Path:          "/bundles",
		Summary:       "Create bundle",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateBundleRequest `json:"body"`
	}) (*bundleBody, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.CreateBundle(ctx, engine.BundleCreateOptions{
			ID:            input.Body.ID,
			Name:          input.Body.Name,
			Description:   input.Body.Description,
			TimelineWeeks: input.Body.TimelineWeeks,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &bundleBody{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-bundles",
		Method:      http.MethodGet,
		Path:        "/bundles",
		Summary:     "List bundles",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []BundleSummaryResponse `json:"body"`
	}, error) {
		items, err := e.ListBundles(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]BundleSummaryResponse, 0, len(items))
		for _, b := range items {
			out = append(out, bundleSummary(b))
		}
		return &struct {
			Body []BundleSummaryResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-bundle",
		Method:      http.MethodGet,
		Path:        "/bundles/{bundle_id}",
		Summary:     "Get bundle with interventions and dependencies",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *bundlePath) (*bundleBody, error) {
		b, err := e.GetBundle(ctx, input.BundleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &bundleBody{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-bundle",
		Method:      http.MethodPatch,
		Path:        "/bundles/{bundle_id}",
		Summary:     "Update bundle",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BundleID string              `path:"bundle_id"`
		Body     UpdateBundleRequest `json:"body"`
	}) (*bundleBody, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.UpdateBundle(ctx, engine.BundleUpdateOptions{
			ID:            input.BundleID,
			Name:          input.Body.Name,
			Description:   input.Body.Description,
			TimelineWeeks: input.Body.TimelineWeeks,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &bundleBody{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-bundle",
		Method:        http.MethodDelete,
		Path:          "/bundles/{bundle_id}",
		Summary:       "Delete bundle",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *bundlePath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteBundle(ctx, input.BundleID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "import-bundle",
		Method:        http.MethodPost,
		Path:          "/bundles/import",
		Summary:       "Import a bundle or a JSON export",
		Description:   "Dependencies are stored as given. Run validation afterwards to detect cycles.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		RawBody []byte
	}) (*bundleBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := export.DecodeBundle(input.RawBody)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		b, err := e.ImportBundle(ctx, in, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &bundleBody{Body: b}, nil
	})
}

type interventionPath struct {
	BundleID       string `path:"bundle_id"`
	InterventionID string `path:"intervention_id"`
}

type interventionBody struct {
	Body domain.Intervention `json:"body"`
}

func registerInterventions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-interventions",
		Method:      http.MethodGet,
		Path:        "/bundles/{bundle_id}/interventions",
		Summary:     "List interventions in bundle order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *bundlePath) (*struct {
		Body []domain.Intervention `json:"body"`
	}, error) {
		items, err := e.ListInterventions(ctx, input.BundleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Intervention `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-intervention",
		Method:        http.MethodPost,
		Path:          "/bundles/{bundle_id}/interventions",
		Summary:       "Add intervention",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		BundleID string                    `path:"bundle_id"`
		Body     CreateInterventionRequest `json:"body"`
	}) (*interventionBody, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		iv, err := e.AddIntervention(ctx, engine.InterventionCreateOptions{
			BundleID:   input.BundleID,
			ID:         input.Body.ID,
			Name:       input.Body.Name,
			Zone:       domain.Zone(input.Body.Zone),
			Complexity: domain.Complexity(input.Body.Complexity),
			MicroTasks: microTasks(input.Body.MicroTasks),
			Resources:  input.Body.Resources,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &interventionBody{Body: iv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-intervention",
		Method:      http.MethodPatch,
		Path:        "/bundles/{bundle_id}/interventions/{intervention_id}",
		Summary:     "Update intervention",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BundleID       string                    `path:"bundle_id"`
		InterventionID string                    `path:"intervention_id"`
		Body           UpdateInterventionRequest `json:"body"`
	}) (*interventionBody, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.InterventionUpdateOptions{
			BundleID:  input.BundleID,
			ID:        input.InterventionID,
			Name:      input.Body.Name,
			Resources: input.Body.Resources,
			Position:  input.Body.Position,
			ActorID:   actorID,
		}
		if input.Body.Zone != nil {
			z := domain.Zone(*input.Body.Zone)
			opts.Zone = &z
		}
		if input.Body.Complexity != nil {
			c := domain.Complexity(*input.Body.Complexity)
			opts.Complexity = &c
		}
		if input.Body.MicroTasks != nil {
			tasks := microTasks(*input.Body.MicroTasks)
			opts.MicroTasks = &tasks
		}
		iv, err := e.UpdateIntervention(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &interventionBody{Body: iv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-intervention",
		Method:      http.MethodDelete,
		Path:        "/bundles/{bundle_id}/interventions/{intervention_id}",
		Summary:     "Remove intervention and its dependencies",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *interventionPath) (*struct {
		Body InterventionRemovedResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		dropped, err := e.RemoveIntervention(ctx, input.BundleID, input.InterventionID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InterventionRemovedResponse `json:"body"`
		}{Body: InterventionRemovedResponse{ID: input.InterventionID, DroppedDependencies: dropped}}, nil
	})
}

type edgePath struct {
	BundleID string `path:"bundle_id"`
	From     string `path:"from"`
	To       string `path:"to"`
}

func registerDependencies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-dependencies",
		Method:      http.MethodGet,
		Path:        "/bundles/{bundle_id}/dependencies",
		Summary:     "List dependencies in list order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BundleID string `path:"bundle_id"`
		To       string `query:"to" doc:"Only edges pointing at this intervention"`
	}) (*struct {
		Body []domain.DependencyEdge `json:"body"`
	}, error) {
		edges, err := e.ListDependencies(ctx, input.BundleID, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.DependencyEdge `json:"body"`
		}{Body: edges}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-dependency",
		Method:        http.MethodPost,
		Path:          "/bundles/{bundle_id}/dependencies",
		Summary:       "Add dependency",
		Description:   "Rejected with 409 dependency_rejected when the edge is a self loop or would close a cycle.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		BundleID string               `path:"bundle_id"`
		Body     AddDependencyRequest `json:"body"`
	}) (*struct {
		Body domain.DependencyEdge `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		edge, err := e.AddDependency(ctx, engine.DependencyAddOptions{
			BundleID: input.BundleID,
			Edge: domain.DependencyEdge{
				Type:               domain.DependencyType(input.Body.Type),
				FromInterventionID: input.Body.FromInterventionID,
				ToInterventionID:   input.Body.ToInterventionID,
				CriticalPath:       input.Body.CriticalPath,
				Description:        input.Body.Description,
			},
			ActorID: actorID,
		})
		if engine.IsRejected(err) {
			return nil, newAPIError(http.StatusConflict, "dependency_rejected", err.Error(), map[string]any{
				"from_intervention_id": edge.FromInterventionID,
				"to_intervention_id":   edge.ToInterventionID,
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DependencyEdge `json:"body"`
		}{Body: edge}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-dependency",
		Method:      http.MethodDelete,
		Path:        "/bundles/{bundle_id}/dependencies/{from}/{to}",
		Summary:     "Remove every dependency from -> to",
		Description: "Removing a pair that does not exist succeeds with count 0.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *edgePath) (*struct {
		Body DependencyCountResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.RemoveDependency(ctx, input.BundleID, input.From, input.To, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DependencyCountResponse `json:"body"`
		}{Body: DependencyCountResponse{FromInterventionID: input.From, ToInterventionID: input.To, Count: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-dependency",
		Method:      http.MethodPatch,
		Path:        "/bundles/{bundle_id}/dependencies/{from}/{to}",
		Summary:     "Update every dependency from -> to",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BundleID string                  `path:"bundle_id"`
		From     string                  `path:"from"`
		To       string                  `path:"to"`
		Body     UpdateDependencyRequest `json:"body"`
	}) (*struct {
		Body DependencyCountResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		patch := plan.EdgePatch{CriticalPath: input.Body.CriticalPath, Description: input.Body.Description}
		if input.Body.Type != nil {
			t := domain.DependencyType(*input.Body.Type)
			patch.Type = &t
		}
		n, err := e.UpdateDependency(ctx, engine.DependencyUpdateOptions{
			BundleID: input.BundleID,
			From:     input.From,
			To:       input.To,
			Patch:    patch,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DependencyCountResponse `json:"body"`
		}{Body: DependencyCountResponse{FromInterventionID: input.From, ToInterventionID: input.To, Count: n}}, nil
	})
}

func registerAnalysis(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-bundle",
		Method:      http.MethodGet,
		Path:        "/bundles/{bundle_id}/validation",
		Summary:     "Check for cycles and resource conflicts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *bundlePath) (*struct {
		Body ValidationResponse `json:"body"`
	}, error) {
		report, err := e.ValidateBundle(ctx, input.BundleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidationResponse `json:"body"`
		}{Body: ValidationResponse{BundleID: input.BundleID, Report: report}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bundle-timeline",
		Method:      http.MethodGet,
		Path:        "/bundles/{bundle_id}/timeline",
		Summary:     "Compute the implementation timeline",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		BundleID string `path:"bundle_id"`
		Weeks    int    `query:"weeks" minimum:"0" doc:"Planning window; defaults to the bundle's"`
	}) (*struct {
		Body TimelineResponse `json:"body"`
	}, error) {
		tl, err := e.ScheduleBundle(ctx, input.BundleID, input.Weeks)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimelineResponse `json:"body"`
		}{Body: TimelineResponse{BundleID: input.BundleID, Timeline: tl}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-bundle",
		Method:      http.MethodGet,
		Path:        "/bundles/{bundle_id}/export",
		Summary:     "Export bundle with timeline and validation",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BundleID string `path:"bundle_id"`
		Format   string `query:"format" enum:"json,csv,text,dot,svg" default:"json"`
	}) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		f, err := export.ParseFormat(input.Format)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"format": input.Format})
		}
		_, data, err := e.ExportBundle(ctx, input.BundleID, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        f.ContentType(),
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", export.FileName(input.BundleID, f)),
			Body:               data,
		}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/bundles/{bundle_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BundleID   string `path:"bundle_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"bundle,intervention,dependency"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, limit+1, cursorID, repo.EventFilter{
			BundleID:   input.BundleID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
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

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Roles, 12*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
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
