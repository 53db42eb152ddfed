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

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"harbor/internal/domain"
	"harbor/internal/engine"
	"harbor/internal/qa"
	"harbor/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Logger   *zap.Logger
}

const defaultActor = "api"

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"building -> published: invalid status transition"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type bodyBytesKey struct{}
type actorKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Harbor API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
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
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			actor := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
			if actor == "" {
				actor = defaultActor
			}
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, bodyBytes)
			ctx = context.WithValue(ctx, actorKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Harbor API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerDatasets(group, cfg.Engine)
	registerProfiles(group, cfg.Engine)
	registerQA(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
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
	msg := err.Error()
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, engine.ErrInvalidTransition):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case errors.Is(err, repo.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case errors.Is(err, engine.ErrStatsIncomplete):
		return newAPIError(http.StatusBadRequest, "stats_incomplete", msg, nil)
	case errors.Is(err, engine.ErrAutoFailed):
		return newAPIError(http.StatusUnprocessableEntity, "auto_failed", msg, nil)
	case errors.Is(err, engine.ErrInvalidInput):
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
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func actorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return defaultActor
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
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
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
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

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Harbor API Docs</title>
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

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Dataset counts by status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		counts, err := e.StatusCounts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{DatasetCounts: counts, Profiles: profileResponses(e)}}, nil
	})
}

type datasetPath struct {
	ID string `path:"id"`
}

type datasetBody struct {
	Body domain.DatasetBuild `json:"body"`
}

func registerDatasets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-dataset",
		Method:        http.MethodPost,
		Path:          "/datasets",
		Summary:       "Register a dataset build",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateDatasetRequest `json:"body"`
	}) (*datasetBody, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		d, err := e.CreateDataset(ctx, engine.DatasetCreateOptions{
			ID:          deref(input.Body.ID),
			Name:        input.Body.Name,
			DatasetType: input.Body.DatasetType,
			Version:     input.Body.Version,
			Stats:       input.Body.Stats,
			ActorID:     actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &datasetBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-datasets",
		Method:      http.MethodGet,
		Path:        "/datasets",
		Summary:     "List dataset builds",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status" enum:"building,ready_for_certification,certified,published"`
		DatasetType string `query:"dataset_type"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.DatasetBuild `json:"body"`
	}, error) {
		items, err := e.ListDatasets(ctx, repo.DatasetFilters{
			Status:      input.Status,
			DatasetType: input.DatasetType,
			Limit:       normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.DatasetBuild{}
		}
		return &struct {
			Body []domain.DatasetBuild `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-dataset",
		Method:      http.MethodGet,
		Path:        "/datasets/{id}",
		Summary:     "Get a dataset build",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *datasetPath) (*datasetBody, error) {
		d, err := e.GetDataset(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &datasetBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-dataset-ready",
		Method:      http.MethodPost,
		Path:        "/datasets/{id}/ready",
		Summary:     "Mark assembly complete",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *datasetPath) (*datasetBody, error) {
		d, err := e.MarkReady(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &datasetBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-dataset-stats",
		Method:      http.MethodPut,
		Path:        "/datasets/{id}/stats",
		Summary:     "Replace the stats snapshot",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body domain.StatsInput `json:"body"`
	}) (*datasetBody, error) {
		d, err := e.RecordStats(ctx, input.ID, input.Body, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &datasetBody{Body: d}, nil
	})

	// Rejections are a normal 200 result; only faults map to error statuses.
	huma.Register(api, huma.Operation{
		OperationID: "certify-dataset",
		Method:      http.MethodPost,
		Path:        "/datasets/{id}/certify",
		Summary:     "Certify a dataset build",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *datasetPath) (*struct {
		Body domain.CertificationResult `json:"body"`
	}, error) {
		res, err := e.Certify(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CertificationResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "publish-dataset",
		Method:      http.MethodPost,
		Path:        "/datasets/{id}/publish",
		Summary:     "Publish a certified build",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *datasetPath) (*datasetBody, error) {
		d, err := e.Publish(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &datasetBody{Body: d}, nil
	})
}

func registerProfiles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-profiles",
		Method:      http.MethodGet,
		Path:        "/profiles",
		Summary:     "Active certification profiles",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProfileResponse `json:"body"`
	}, error) {
		return &struct {
			Body []ProfileResponse `json:"body"`
		}{Body: profileResponses(e)}, nil
	})
}

func registerQA(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "qa-score",
		Method:      http.MethodPost,
		Path:        "/qa/score",
		Summary:     "Compute composite QA scores",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body QAScoreRequest `json:"body"`
	}) (*struct {
		Body qa.Summary `json:"body"`
	}, error) {
		summary, err := qa.Score(input.Body.Checks, input.Body.HumanScore)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body qa.Summary `json:"body"`
		}{Body: summary}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-qa-review",
		Method:        http.MethodPost,
		Path:          "/qa/reviews",
		Summary:       "Record a human QA review",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body QAReviewRequest `json:"body"`
	}) (*struct {
		Body domain.QAReview `json:"body"`
	}, error) {
		reviewer := input.Body.ReviewerID
		if reviewer == "" {
			reviewer = actorFromContext(ctx)
		}
		r, err := e.SubmitQAReview(ctx, engine.QAReviewOptions{
			UploadID:   input.Body.UploadID,
			ReviewerID: reviewer,
			Checks:     input.Body.Checks,
			HumanScore: input.Body.HumanScore,
			Action:     input.Body.Action,
			Notes:      input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.QAReview `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-qa-reviews",
		Method:      http.MethodGet,
		Path:        "/qa/reviews",
		Summary:     "List QA reviews",
	}, func(ctx context.Context, input *struct {
		UploadID string `query:"upload_id"`
	}) (*struct {
		Body []domain.QAReview `json:"body"`
	}, error) {
		items, err := e.ListQAReviews(ctx, input.UploadID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.QAReview{}
		}
		return &struct {
			Body []domain.QAReview `json:"body"`
		}{Body: items}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"dataset,qa_review"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := e.ListEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Before:     before,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
