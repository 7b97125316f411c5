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
	"github.com/rs/zerolog"

	"scopeline/internal/domain"
	"scopeline/internal/engine"
	"scopeline/internal/export"
	"scopeline/internal/phase"
	"scopeline/internal/repo"
	"scopeline/internal/template"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Log      zerolog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"transition_blocked"`
	Message string         `json:"message" example:"transition blocked: fill in 3 more required fields"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Scopeline API.
func New(cfg Config) (http.Handler, error) {
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
	router.Use(requestLogger(cfg.Log))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Scopeline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerEngagements(group, cfg.Engine)
	registerMeeting(group, cfg.Engine)
	registerServices(group, cfg.Engine)
	registerRequirements(group, cfg.Engine)
	registerPhase(group, cfg.Engine)
	registerFlags(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerExport(group, cfg.Engine)
	registerTemplates(group, cfg.Engine.Store)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
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
	if errors.Is(err, engine.ErrTransitionBlocked) {
		return newAPIError(http.StatusUnprocessableEntity, "transition_blocked", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "frozen"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "unknown") ||
		strings.Contains(lowered, "invalid") ||
		strings.Contains(lowered, "duplicate") ||
		strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "not in the purchased set"):
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
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Scopeline API Docs</title>
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

type engagementPath struct {
	EngagementID string `path:"engagement_id"`
}

func registerEngagements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-engagement",
		Method:        http.MethodPost,
		Path:          "/engagements",
		Summary:       "Create engagement",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateEngagementRequest `json:"body"`
	}) (*struct {
		Body EngagementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.ClientName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "client_name is required", nil)
		}
		eng, err := e.CreateEngagement(ctx, input.Body.ID, input.Body.ClientName, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EngagementResponse `json:"body"`
		}{Body: engagementResponse(eng)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-engagements",
		Method:      http.MethodGet,
		Path:        "/engagements",
		Summary:     "List engagements",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []EngagementResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListEngagements(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EngagementResponse, 0, len(items))
		for _, item := range items {
			out = append(out, engagementResponse(item))
		}
		return &struct {
			Body []EngagementResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-engagement",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}",
		Summary:     "Get engagement",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *engagementPath) (*struct {
		Body EngagementResponse `json:"body"`
	}, error) {
		eng, err := e.Repo.GetEngagement(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EngagementResponse `json:"body"`
		}{Body: engagementResponse(eng)}, nil
	})
}

func registerMeeting(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "import-meeting",
		Method:      http.MethodPut,
		Path:        "/engagements/{engagement_id}/meeting",
		Summary:     "Import discovery meeting record",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EngagementID string         `path:"engagement_id"`
		Body         MeetingRequest `json:"body"`
	}) (*struct {
		Body MeetingResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m := meetingFromRequest(input.Body)
		if err := e.ImportMeeting(ctx, input.EngagementID, m, actorID); err != nil {
			return nil, handleError(err)
		}
		stored, err := e.Repo.GetMeetingRecord(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MeetingResponse `json:"body"`
		}{Body: meetingResponse(stored)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-meeting",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/meeting",
		Summary:     "Get discovery meeting record",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *engagementPath) (*struct {
		Body MeetingResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetEngagement(ctx, input.EngagementID); err != nil {
			return nil, handleError(err)
		}
		m, err := e.Repo.GetMeetingRecord(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MeetingResponse `json:"body"`
		}{Body: meetingResponse(m)}, nil
	})
}

func registerServices(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-services",
		Method:      http.MethodPut,
		Path:        "/engagements/{engagement_id}/services",
		Summary:     "Set purchased services",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EngagementID string             `path:"engagement_id"`
		Body         SetServicesRequest `json:"body"`
	}) (*struct {
		Body EngagementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		eng, err := e.SetPurchasedServices(ctx, input.EngagementID, input.Body.Services, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EngagementResponse `json:"body"`
		}{Body: engagementResponse(eng)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "begin-service",
		Method:      http.MethodPost,
		Path:        "/engagements/{engagement_id}/services/{service_id}/begin",
		Summary:     "Begin requirements collection for a service",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
		ServiceID    string `path:"service_id"`
	}) (*struct {
		Body AnswerSetResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		set, err := e.BeginService(ctx, input.EngagementID, input.ServiceID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnswerSetResponse `json:"body"`
		}{Body: answerSetResponse(set, e.Store.Get(input.ServiceID))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-answers",
		Method:      http.MethodPatch,
		Path:        "/engagements/{engagement_id}/services/{service_id}/answers",
		Summary:     "Record answers for a service",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EngagementID string               `path:"engagement_id"`
		ServiceID    string               `path:"service_id"`
		Body         RecordAnswersRequest `json:"body"`
	}) (*struct {
		Body AnswerSetResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		set, err := e.RecordAnswers(ctx, input.EngagementID, input.ServiceID, input.Body.Values, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnswerSetResponse `json:"body"`
		}{Body: answerSetResponse(set, e.Store.Get(input.ServiceID))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-answers",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/services/{service_id}/answers",
		Summary:     "Get collected answers for a service",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
		ServiceID    string `path:"service_id"`
	}) (*struct {
		Body AnswerSetResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetEngagement(ctx, input.EngagementID); err != nil {
			return nil, handleError(err)
		}
		set, err := e.Repo.GetAnswerSet(ctx, input.EngagementID, input.ServiceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnswerSetResponse `json:"body"`
		}{Body: answerSetResponse(set, e.Store.Get(input.ServiceID))}, nil
	})
}

func registerRequirements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-plan",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/plan",
		Summary:     "Collection plan for the purchased services",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *engagementPath) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		plan, err := e.Plan(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: planResponse(plan)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-unification",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/unification",
		Summary:     "Shared vs service-specific field partition",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *engagementPath) (*struct {
		Body UnificationResponse `json:"body"`
	}, error) {
		part, err := e.Unification(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnificationResponse `json:"body"`
		}{Body: unificationResponse(part)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/status",
		Summary:     "Completion status and reachable phases",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *engagementPath) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		eng, err := e.Repo.GetEngagement(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		status, err := e.Completion(ctx, eng.ID)
		if err != nil {
			return nil, handleError(err)
		}
		in, err := e.GateInputs(ctx, eng)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: statusResponse(eng, status, phase.Next(eng.Phase, in))}, nil
	})
}

func registerPhase(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "advance-phase",
		Method:      http.MethodPost,
		Path:        "/engagements/{engagement_id}/phase",
		Summary:     "Request a phase transition",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		EngagementID string       `path:"engagement_id"`
		Body         PhaseRequest `json:"body"`
	}) (*struct {
		Body EngagementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		eng, err := e.AdvancePhase(ctx, input.EngagementID, domain.Phase(input.Body.Target), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EngagementResponse `json:"body"`
		}{Body: engagementResponse(eng)}, nil
	})
}

func registerFlags(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-flag",
		Method:      http.MethodPut,
		Path:        "/engagements/{engagement_id}/flags/{name}",
		Summary:     "Set a business flag",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EngagementID string      `path:"engagement_id"`
		Name         string      `path:"name"`
		Body         FlagRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetFlag(ctx, input.EngagementID, input.Name, input.Body.Value, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
		Type         string `query:"type"`
		Limit        int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetEngagement(ctx, input.EngagementID); err != nil {
			return nil, handleError(err)
		}
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.EngagementID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerExport(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "export-summary",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/export",
		Summary:     "Export requirements summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *engagementPath) (*struct {
		Body export.Summary `json:"body"`
	}, error) {
		eng, err := e.Repo.GetEngagement(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		answers, err := e.Repo.AnswerValuesByService(ctx, eng.ID)
		if err != nil {
			return nil, handleError(err)
		}
		s := export.BuildSummary(eng, e.Config, e.Store, answers)
		return &struct {
			Body export.Summary `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-document",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/export/document",
		Summary:     "Export requirements document (markdown)",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *engagementPath) (*struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}, error) {
		eng, err := e.Repo.GetEngagement(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		answers, err := e.Repo.AnswerValuesByService(ctx, eng.ID)
		if err != nil {
			return nil, handleError(err)
		}
		s := export.BuildSummary(eng, e.Config, e.Store, answers)
		doc := export.Markdown(s, e.Store, time.Now().UTC().Format(time.RFC3339))
		return &struct {
			ContentType string `header:"Content-Type"`
			Body        []byte
		}{ContentType: "text/markdown; charset=utf-8", Body: []byte(doc)}, nil
	})
}

func registerTemplates(api huma.API, store *template.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List service templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TemplateSummaryResponse `json:"body"`
	}, error) {
		out := []TemplateSummaryResponse{}
		for _, id := range store.ServiceIDs() {
			tpl := store.Get(id)
			out = append(out, TemplateSummaryResponse{
				ServiceID:     id,
				Title:         tpl.Title,
				Fields:        tpl.FieldCount(),
				RequiredCount: tpl.RequiredCount(),
			})
		}
		return &struct {
			Body []TemplateSummaryResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{service_id}",
		Summary:     "Get a service template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ServiceID string `path:"service_id"`
	}) (*struct {
		Body template.Template `json:"body"`
	}, error) {
		tpl := store.Get(input.ServiceID)
		if tpl == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", fmt.Sprintf("no template for service %s", input.ServiceID), nil)
		}
		return &struct {
			Body template.Template `json:"body"`
		}{Body: *tpl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "lint-templates",
		Method:      http.MethodGet,
		Path:        "/templates/lint",
		Summary:     "Lint all loaded templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []LintIssueResponse `json:"body"`
	}, error) {
		out := []LintIssueResponse{}
		for _, issue := range store.LintAll() {
			out = append(out, LintIssueResponse{
				ServiceID: issue.ServiceID,
				SectionID: issue.SectionID,
				FieldID:   issue.FieldID,
				Message:   issue.Message,
			})
		}
		return &struct {
			Body []LintIssueResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok || principal.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{ActorID: principal.ActorID, Source: principal.Source}}, nil
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
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
