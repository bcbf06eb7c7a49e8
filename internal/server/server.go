package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/engine"
	"techcomm/internal/engine/auth"
	"techcomm/internal/profile"
	"techcomm/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Engine         engine.Engine
	Profiles       profile.Service
	Names          *profile.NameCache
	BasePath       string
	Auth           AuthConfig
	AllowedOrigins []string
	// Gatherer serves /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"event is Pending, expected Approved"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"kind\":\"InvalidTransition\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the TechComm API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Names == nil {
		return nil, fmt.Errorf("name cache required")
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("TechComm API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	registerDocs(router, basePath)
	registerHealth(group)
	registerRequests(group, cfg.Engine)
	registerModeration(group, cfg.Engine)
	registerParticipation(group, cfg.Engine)
	registerVoting(group, cfg.Engine)
	registerXP(group, cfg.Engine)
	registerQueries(group, cfg.Engine)
	registerProfiles(group, cfg.Engine, cfg.Profiles, cfg.Names)
	registerOpenAPI(router, api, basePath)

	if len(cfg.AllowedOrigins) == 0 {
		return router, nil
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Actor-Id", "X-Actor-Name"},
		AllowCredentials: true,
	})
	return c.Handler(router), nil
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

// handleError maps classified engine errors onto the envelope. NotFound and
// Forbidden share one status and message so a hidden event reads like a missing
// one.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	kind := apperr.KindOf(err)
	details := map[string]any{"kind": string(kind)}
	switch kind {
	case apperr.KindValidation:
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), details)
	case apperr.KindConstraint:
		return newAPIError(http.StatusUnprocessableEntity, "constraint_violated", err.Error(), details)
	case apperr.KindForbidden, apperr.KindNotFound:
		return newAPIError(http.StatusNotFound, "not_found", apperr.UserMessage(err), nil)
	case apperr.KindInvalidTransition:
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), details)
	case apperr.KindAlreadyInProgress:
		return newAPIError(http.StatusConflict, "already_in_progress", err.Error(), details)
	case apperr.KindStorageUnavailable, apperr.KindNotInitialized:
		return newAPIError(http.StatusServiceUnavailable, "unavailable", apperr.UserMessage(err), details)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
	case http.StatusForbidden:
		return "forbidden"
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

// publicRoutes answer anonymous callers and carry no security requirement.
var publicRoutes = []string{"health", "events/public", "events/{id}", "names"}

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
	public := map[string]bool{}
	for _, p := range publicRoutes {
		public[path.Join("/", basePath, p)] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] && op == item.Get {
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
    <title>TechComm API Docs</title>
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

type eventPath struct {
	ID string `path:"id"`
}

type eventOutput struct {
	Body domain.Event `json:"body"`
}

type eventsOutput struct {
	Body []domain.Event `json:"body"`
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
}

// registerMutation registers an authenticated operation answering with the
// updated event.
func registerMutation[I any](api huma.API, op huma.Operation, fn func(ctx context.Context, actor auth.Actor, in *I) (domain.Event, error)) {
	if op.Errors == nil {
		op.Errors = mutationErrors
	}
	huma.Register(api, op, func(ctx context.Context, in *I) (*eventOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ev, err := fn(ctx, actor, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &eventOutput{Body: ev}, nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	registerMutation(api, huma.Operation{
		OperationID:   "request-event",
		Method:        http.MethodPost,
		Path:          "/events",
		Summary:       "Request a new event",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, actor auth.Actor, in *struct {
		Body EventRequestBody `json:"body"`
	}) (domain.Event, error) {
		if len(bodyBytes(ctx)) == 0 {
			return domain.Event{}, apperr.Validation("requestEvent", "body required")
		}
		return e.RequestEvent(ctx, actor, in.Body.request())
	})

	registerMutation(api, huma.Operation{
		OperationID: "edit-request",
		Method:      http.MethodPut,
		Path:        "/events/{id}",
		Summary:     "Edit a pending event request",
	}, func(ctx context.Context, actor auth.Actor, in *struct {
		ID   string           `path:"id"`
		Body EventRequestBody `json:"body"`
	}) (domain.Event, error) {
		return e.EditRequest(ctx, actor, in.ID, in.Body.request())
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-request",
		Method:        http.MethodDelete,
		Path:          "/events/{id}",
		Summary:       "Withdraw a pending event request",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, in *eventPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteRequest(ctx, actor, in.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerModeration(api huma.API, e engine.Engine) {
	registerMutation(api, huma.Operation{
		OperationID: "approve-event",
		Method:      http.MethodPost,
		Path:        "/events/{id}/approve",
		Summary:     "Approve a pending request",
	}, func(ctx context.Context, actor auth.Actor, in *eventPath) (domain.Event, error) {
		return e.Approve(ctx, actor, in.ID)
	})

	registerMutation(api, huma.Operation{
		OperationID: "reject-event",
		Method:      http.MethodPost,
		Path:        "/events/{id}/reject",
		Summary:     "Reject a pending request",
	}, func(ctx context.Context, actor auth.Actor, in *struct {
		ID   string        `path:"id"`
		Body RejectRequest `json:"body"`
	}) (domain.Event, error) {
		return e.Reject(ctx, actor, in.ID, in.Body.Reason)
	})

	registerMutation(api, huma.Operation{
		OperationID: "close-event",
		Method:      http.MethodPost,
		Path:        "/events/{id}/close",
		Summary:     "Close an approved event",
	}, func(ctx context.Context, actor auth.Actor, in *eventPath) (domain.Event, error) {
		return e.Close(ctx, actor, in.ID)
	})
}

func registerParticipation(api huma.API, e engine.Engine) {
	registerMutation(api, huma.Operation{
		OperationID: "join-event",
		Method:      http.MethodPost,
		Path:        "/events/{id}/join",
		Summary:     "Join an event",
	}, func(ctx context.Context, actor auth.Actor, in *eventPath) (domain.Event, error) {
		return e.Join(ctx, actor, in.ID)
	})

	registerMutation(api, huma.Operation{
		OperationID: "join-phase",
		Method:      http.MethodPost,
		Path:        "/events/{id}/phases/{phase_id}/join",
		Summary:     "Join one phase of a multi-phase event",
	}, func(ctx context.Context, actor auth.Actor, in *struct {
		ID      string `path:"id"`
		PhaseID string `path:"phase_id"`
	}) (domain.Event, error) {
		return e.JoinPhase(ctx, actor, in.ID, in.PhaseID)
	})

	registerMutation(api, huma.Operation{
		OperationID: "leave-event",
		Method:      http.MethodPost,
		Path:        "/events/{id}/leave",
		Summary:     "Leave an event",
	}, func(ctx context.Context, actor auth.Actor, in *eventPath) (domain.Event, error) {
		return e.Leave(ctx, actor, in.ID)
	})

	registerMutation(api, huma.Operation{
		OperationID: "auto-teams",
		Method:      http.MethodPost,
		Path:        "/events/{id}/teams/auto",
		Summary:     "Partition students into teams",
	}, func(ctx context.Context, actor auth.Actor, in *struct {
		ID   string           `path:"id"`
		Body AutoTeamsRequest `json:"body"`
	}) (domain.Event, error) {
		return e.AutoGenerateTeams(ctx, actor, in.ID, in.Body.StudentIDs, in.Body.Min, in.Body.Max)
	})

	registerMutation(api, huma.Operation{
		OperationID: "set-teams",
		Method:      http.MethodPut,
		Path:        "/events/{id}/teams",
		Summary:     "Replace the team roster",
	}, func(ctx context.Context, actor auth.Actor, in *struct {
		ID   string          `path:"id"`
		Body SetTeamsRequest `json:"body"`
	}) (domain.Event, error) {
		return e.SetTeams(ctx, actor, in.ID, mapTeams(in.Body.Teams))
	})

	registerMutation(api, huma.Operation{
		OperationID: "submit-project",
		Method:      http.MethodPost,
		Path:        "/events/{id}/submissions",
		Summary:     "Submit or replace a project",
	}, func(ctx context.Context, actor auth.Actor, in *struct {
		ID   string            `path:"id"`
		Body SubmissionRequest `json:"body"`
	}) (domain.Event, error) {
		return e.SubmitProject(ctx, actor, in.ID, engine.SubmissionInput{
			ProjectName: in.Body.ProjectName,
			Link:        in.Body.Link,
			Description: in.Body.Description,
			PhaseID:     in.Body.PhaseID,
		})
	})

	registerMutation(api, huma.Operation{
		OperationID: "rate-organizers",
		Method:      http.MethodPost,
		Path:        "/events/{id}/ratings",
		Summary:     "Rate the organizers of an event",
	}, func(ctx context.Context, actor auth.Actor, in *struct {
		ID   string        `path:"id"`
		Body RatingRequest `json:"body"`
	}) (domain.Event, error) {
		return e.RateOrganizers(ctx, actor, in.ID, in.Body.Score, in.Body.Feedback)
	})
}

func registerVoting(api huma.API, e engine.Engine) {
	registerMutation(api, huma.Operation{
		OperationID: "open-voting",
		Method:      http.MethodPost,
		Path:        "/events/{id}/voting/open",
		Summary:     "Open voting",
	}, func(ctx context.Context, actor auth.Actor, in *eventPath) (domain.Event, error) {
		return e.OpenVoting(ctx, actor, in.ID)
	})

	registerMutation(api, huma.Operation{
		OperationID: "close-voting",
		Method:      http.MethodPost,
		Path:        "/events/{id}/voting/close",
		Summary:     "Close voting and tally winners",
	}, func(ctx context.Context, actor auth.Actor, in *eventPath) (domain.Event, error) {
		return e.CloseVoting(ctx, actor, in.ID)
	})

	registerMutation(api, huma.Operation{
		OperationID: "criteria-vote",
		Method:      http.MethodPost,
		Path:        "/events/{id}/votes/criteria",
		Summary:     "Vote a team per criterion",
	}, func(ctx context.Context, actor auth.Actor, in *struct {
		ID   string              `path:"id"`
		Body CriteriaVoteRequest `json:"body"`
	}) (domain.Event, error) {
		return e.SubmitCriteriaVote(ctx, actor, in.ID, in.Body.Votes, in.Body.BestPerformer)
	})

	registerMutation(api, huma.Operation{
		OperationID: "winner-vote",
		Method:      http.MethodPost,
		Path:        "/events/{id}/votes/winner",
		Summary:     "Vote a participant per criterion",
	}, func(ctx context.Context, actor auth.Actor, in *struct {
		ID   string            `path:"id"`
		Body WinnerVoteRequest `json:"body"`
	}) (domain.Event, error) {
		return e.SubmitWinnerVote(ctx, actor, in.ID, in.Body.Votes)
	})

	registerMutation(api, huma.Operation{
		OperationID: "select-winners",
		Method:      http.MethodPost,
		Path:        "/events/{id}/winners",
		Summary:     "Select winners manually",
	}, func(ctx context.Context, actor auth.Actor, in *struct {
		ID   string                 `path:"id"`
		Body WinnerSelectionRequest `json:"body"`
	}) (domain.Event, error) {
		return e.SubmitManualWinnerSelection(ctx, actor, in.ID, engine.WinnerSelection{
			Winners: in.Body.Winners,
			Phases:  in.Body.Phases,
		})
	})
}

func registerXP(api huma.API, e engine.Engine) {
	registerMutation(api, huma.Operation{
		OperationID: "award-xp",
		Method:      http.MethodPost,
		Path:        "/events/{id}/xp",
		Summary:     "Award XP for a closed event",
	}, func(ctx context.Context, actor auth.Actor, in *eventPath) (domain.Event, error) {
		return e.AwardXP(ctx, actor, in.ID)
	})
}

func registerQueries(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events (moderators)",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		Status      string `query:"status"`
		Format      string `query:"format"`
		RequestedBy string `query:"requested_by"`
	}) (*eventsOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Auth.RequireModerator("listEvents", actor); err != nil {
			return nil, handleError(err)
		}
		var filters []store.Filter
		if in.Status != "" {
			filters = append(filters, store.Equals("status", in.Status))
		}
		if in.Format != "" {
			filters = append(filters, store.Equals("details.format", in.Format))
		}
		if in.RequestedBy != "" {
			filters = append(filters, store.Equals("requestedBy", in.RequestedBy))
		}
		items, err := e.ListEvents(ctx, filters...)
		if err != nil {
			return nil, handleError(err)
		}
		return &eventsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "public-events",
		Method:      http.MethodGet,
		Path:        "/events/public",
		Summary:     "Approved and closed events",
	}, func(ctx context.Context, _ *struct{}) (*eventsOutput, error) {
		items, err := e.PublicEvents(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &eventsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/events/{id}",
		Summary:     "Get one event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *eventPath) (*eventOutput, error) {
		ev, err := e.EventForViewer(ctx, in.ID, viewerFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &eventOutput{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-requests",
		Method:      http.MethodGet,
		Path:        "/me/requests",
		Summary:     "Events requested by the caller, newest first",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*eventsOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.MyRequests(ctx, actor.UID)
		if err != nil {
			return nil, handleError(err)
		}
		return &eventsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-pending",
		Method:      http.MethodGet,
		Path:        "/me/pending",
		Summary:     "Whether the caller has a pending request",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PendingResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		pending, err := e.HasPendingRequest(ctx, actor.UID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PendingResponse `json:"body"`
		}{Body: PendingResponse{Pending: pending}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "student-events",
		Method:      http.MethodGet,
		Path:        "/students/{uid}/events",
		Summary:     "Events a student took part in",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, in *struct {
		UID string `path:"uid"`
	}) (*eventsOutput, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.StudentEvents(ctx, in.UID)
		if err != nil {
			return nil, handleError(err)
		}
		return &eventsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "student-xp",
		Method:      http.MethodGet,
		Path:        "/students/{uid}/xp",
		Summary:     "XP earned by a student",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, in *struct {
		UID string `path:"uid"`
	}) (*struct {
		Body domain.XPData `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		xp, err := e.StudentXP(ctx, in.UID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.XPData `json:"body"`
		}{Body: xp}, nil
	})
}

func registerProfiles(api huma.API, e engine.Engine, profiles profile.Service, names *profile.NameCache) {
	type studentOutput struct {
		Body domain.Student `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "sign-in",
		Method:      http.MethodPost,
		Path:        "/me/profile",
		Summary:     "Create the caller's profile on first sign-in",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, in *struct {
		Body SignInRequest `json:"body"`
	}) (*studentOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		email := in.Body.Email
		if p, ok := principalFromContext(ctx); ok && email == "" {
			email = p.Email
		}
		s, err := profiles.EnsureProfile(ctx, actor, email)
		if err != nil {
			return nil, handleError(err)
		}
		return &studentOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-student",
		Method:      http.MethodGet,
		Path:        "/students/{uid}",
		Summary:     "Get a student profile",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, in *struct {
		UID string `path:"uid"`
	}) (*studentOutput, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		s, err := e.Store.Students().GetByID(ctx, in.UID)
		if err != nil {
			return nil, handleError(err)
		}
		return &studentOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-student",
		Method:      http.MethodPatch,
		Path:        "/students/{uid}",
		Summary:     "Update the caller's own profile",
		Errors:      mutationErrors,
	}, func(ctx context.Context, in *struct {
		UID  string               `path:"uid"`
		Body ProfileUpdateRequest `json:"body"`
	}) (*studentOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := profiles.UpdateProfile(ctx, actor, in.UID, in.Body.update())
		if err != nil {
			return nil, handleError(err)
		}
		return &studentOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "names",
		Method:      http.MethodGet,
		Path:        "/names",
		Summary:     "Resolve display names for user ids",
	}, func(ctx context.Context, in *struct {
		IDs []string `query:"ids"`
	}) (*struct {
		Body NamesResponse `json:"body"`
	}, error) {
		// A failed fetch still answers with placeholders for unresolved ids.
		got, _ := names.FetchNamesBatch(ctx, in.IDs)
		out := make(map[string]string, len(in.IDs))
		for _, id := range in.IDs {
			if id == "" {
				continue
			}
			if n, ok := got[id]; ok {
				out[id] = n
				continue
			}
			out[id] = profile.Placeholder(id)
		}
		return &struct {
			Body NamesResponse `json:"body"`
		}{Body: NamesResponse{Names: out}}, nil
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
