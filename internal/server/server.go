package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hearth/internal/auth"
	"hearth/internal/domain"
	"hearth/internal/engine"
	"hearth/internal/repo"
)

// PresenceSource reports which usernames are online in a household.
type PresenceSource interface {
	OnlineUsernames(householdID string) []string
}

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Auth     auth.Service
	BasePath string
	Hub      http.Handler
	Presence PresenceSource
	Registry *prometheus.Registry
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_error"`
	Message string         `json:"message" example:"title is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope shared with the socket surface.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Hearth API.
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
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Hearth API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAuth(group, cfg.Auth)
	registerTasks(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerPreferences(group, cfg.Engine)
	registerPresence(group, cfg.Presence)
	registerLog(group, cfg.Engine)

	if cfg.Hub != nil {
		router.Handle("/ws", cfg.Hub)
	}
	if cfg.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

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
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_error", err.Error(), map[string]any{"field": ve.Field})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return newAPIError(http.StatusUnauthorized, "authentication_error", "invalid credentials", nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "validation_error", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "storage_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "authorization_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "storage_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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

func registerAuth(api huma.API, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register user",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if input.Body.Username == "" || input.Body.Password == "" || input.Body.HouseholdName == "" {
			return nil, newAPIError(http.StatusBadRequest, "validation_error", "username, password, and household_name are required", nil)
		}
		u, err := svc.Register(ctx, input.Body.Username, input.Body.Password, input.Body.HouseholdName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Login",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		if input.Body.Username == "" || input.Body.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "validation_error", "username and password are required", nil)
		}
		token, u, err := svc.Login(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, Username: u.Username, HouseholdID: u.HouseholdID}}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List visible tasks",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		ident, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		views, err := e.ListTaskViews(ctx, ident.HouseholdID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(views)}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List household members",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		ident, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.Repo.ListUsers(ctx, ident.HouseholdID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(users)}, nil
	})
}

func registerPreferences(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-preferences",
		Method:      http.MethodGet,
		Path:        "/preferences",
		Summary:     "Chore preferences for the authenticated user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Preferences `json:"body"`
	}, error) {
		ident, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetPreferences(ctx, ident.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Preferences `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-preferences",
		Method:      http.MethodPut,
		Path:        "/preferences",
		Summary:     "Save chore preferences",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body domain.Preferences `json:"body"`
	}) (*struct {
		Body domain.Preferences `json:"body"`
	}, error) {
		ident, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		now := time.Now
		if e.Now != nil {
			now = e.Now
		}
		updatedAt := now().UTC().Format(time.RFC3339)
		if err := e.Repo.SavePreferences(ctx, ident.Username, input.Body, updatedAt); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Preferences `json:"body"`
		}{Body: input.Body}, nil
	})
}

func registerPresence(api huma.API, source PresenceSource) {
	huma.Register(api, huma.Operation{
		OperationID: "presence",
		Method:      http.MethodGet,
		Path:        "/presence",
		Summary:     "Online household members",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PresenceResponse `json:"body"`
	}, error) {
		ident, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		online := []string{}
		if source != nil {
			online = source.OnlineUsernames(ident.HouseholdID)
		}
		return &struct {
			Body PresenceResponse `json:"body"`
		}{Body: PresenceResponse{HouseholdID: ident.HouseholdID, Online: online}}, nil
	})
}

func registerLog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "tail-log",
		Method:      http.MethodGet,
		Path:        "/log",
		Summary:     "Recent household actions",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []ActionResponse `json:"body"`
	}, error) {
		ident, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		actions, err := e.Repo.LatestActions(ctx, ident.HouseholdID, limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ActionResponse, 0, len(actions))
		for _, a := range actions {
			out = append(out, actionResponse(a))
		}
		return &struct {
			Body []ActionResponse `json:"body"`
		}{Body: out}, nil
	})
}
