package httpx

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/optilab/optilab-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Solve     *service.SolveService
	Results   *service.ResultService
	Models    *service.ModelService
	DataFiles *service.DataFileService
	Catalog   *service.SolverCatalogService
	Viz       *service.VisualizationService
	// Auth is optional; nil leaves every route anonymous.
	Auth         *service.AuthService
	CookieDomain string
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string
	Logger      *slog.Logger // Logger for auth and HTTP errors (optional)
}

// NewRouter creates and configures the API router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	guard := routeGuard{Auth: services.Auth}

	registerSolverRoutes(mux, &SolverHandlers{Svc: services.Solve, Catalog: services.Catalog}, guard)
	registerResultRoutes(mux, &ResultHandlers{Svc: services.Results}, guard)
	registerModelRoutes(mux, &ModelHandlers{Svc: services.Models}, guard)
	registerDataFileRoutes(mux, &DataFileHandlers{Svc: services.DataFiles}, guard)
	registerVizRoutes(mux, &VizHandlers{Svc: services.Viz}, guard)
	registerJobRoutes(mux, &JobHandlers{Svc: services.Solve}, guard)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	if services.Auth != nil {
		authHandlers := &AuthHandlers{
			Svc:          services.Auth,
			CookieDomain: services.CookieDomain,
			Logger:       services.Logger,
		}
		registerAuthRoutes(mux, authHandlers)
	}

	// The browser frontend is served from its own origin, so every response
	// carries CORS headers. Credentials stay on because sessions ride cookies.
	return cors.New(cors.Options{
		AllowedOrigins:   services.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(mux)
}

// routeGuard wraps handlers with session and role checks. When auth is
// disabled both wrappers are no-ops, matching the anonymous classroom setup.
type routeGuard struct {
	Auth *service.AuthService
}

func (g routeGuard) session() func(http.Handler) http.Handler {
	if g.Auth == nil {
		return func(h http.Handler) http.Handler { return h }
	}
	return RequireSession(g.Auth)
}

func (g routeGuard) instructor() func(http.Handler) http.Handler {
	if g.Auth == nil {
		return func(h http.Handler) http.Handler { return h }
	}
	return RequireInstructor(g.Auth)
}

func registerSolverRoutes(mux *http.ServeMux, h *SolverHandlers, guard routeGuard) {
	wrap := guard.session()
	mux.Handle("POST /api/solver/run", wrap(http.HandlerFunc(h.Run)))
	mux.Handle("GET /api/solver/status/{jobID}", wrap(http.HandlerFunc(h.Status)))
	mux.Handle("POST /api/solver/cancel/{jobID}", wrap(http.HandlerFunc(h.Cancel)))
	mux.Handle("GET /api/solver/solvers", wrap(http.HandlerFunc(h.Solvers)))
}

func registerResultRoutes(mux *http.ServeMux, h *ResultHandlers, guard routeGuard) {
	wrap := guard.session()
	mux.Handle("GET /api/solver/results", wrap(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/solver/results/{resultID}", wrap(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/solver/results/{resultID}/query", wrap(http.HandlerFunc(h.Query)))
	// Deleting shared run history is an instructor action.
	mux.Handle("DELETE /api/solver/results/{resultID}", guard.instructor()(http.HandlerFunc(h.Delete)))
}

func registerModelRoutes(mux *http.ServeMux, h *ModelHandlers, guard routeGuard) {
	wrap := guard.session()
	registerCRUD(mux, crudRoutes{
		Base:             "/api/models",
		Create:           h.Create,
		List:             h.List,
		GetByID:          h.GetByID,
		Update:           h.Update,
		Delete:           h.Delete,
		Middleware:       wrap,
		DeleteMiddleware: guard.instructor(),
	})
	mux.Handle("POST /api/models/{id}/validate", wrap(http.HandlerFunc(h.Validate)))
	mux.Handle("GET /api/models/{id}/info", wrap(http.HandlerFunc(h.Info)))
}

func registerDataFileRoutes(mux *http.ServeMux, h *DataFileHandlers, guard routeGuard) {
	wrap := guard.session()
	mux.Handle("GET /api/models/{id}/data-files", wrap(http.HandlerFunc(h.ListByModel)))
	mux.Handle("POST /api/models/{id}/data-files", wrap(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/data-files/{id}", wrap(http.HandlerFunc(h.GetByID)))
	mux.Handle("PUT /api/data-files/{id}", wrap(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/data-files/{id}", guard.instructor()(http.HandlerFunc(h.Delete)))
}

func registerVizRoutes(mux *http.ServeMux, h *VizHandlers, guard routeGuard) {
	wrap := guard.session()
	mux.Handle("GET /api/visualization/network/{resultID}", wrap(http.HandlerFunc(h.Network)))
	mux.Handle("GET /api/visualization/sensitivity/{resultID}", wrap(http.HandlerFunc(h.Sensitivity)))
	mux.Handle("GET /api/visualization/comparison", wrap(http.HandlerFunc(h.Comparison)))
	mux.Handle("GET /api/visualization/variables/{resultID}", wrap(http.HandlerFunc(h.Variables)))
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers, guard routeGuard) {
	// Stats backs the shared dashboard; the raw queue is instructor-only.
	mux.Handle("GET /api/jobs/stats", guard.session()(http.HandlerFunc(h.Stats)))
	mux.Handle("GET /api/jobs", guard.instructor()(http.HandlerFunc(h.List)))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET /api/auth/login", h.Login)
	mux.HandleFunc("GET /api/auth/callback", h.Callback)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/auth/me", h.Me)
}

// registerCRUD registers standard CRUD routes for a resource base path, applying mw if non-nil.
type crudRoutes struct {
	Base       string
	Create     http.HandlerFunc
	List       http.HandlerFunc
	GetByID    http.HandlerFunc
	Update     http.HandlerFunc
	Delete     http.HandlerFunc
	Middleware func(http.Handler) http.Handler
	// DeleteMiddleware, when set, replaces Middleware on the delete route so
	// destructive access can be held to a stricter role.
	DeleteMiddleware func(http.Handler) http.Handler
}

func registerCRUD(mux *http.ServeMux, cfg crudRoutes) {
	if cfg.Base == "" {
		panic("registerCRUD: Base must not be empty") //nolint:forbidigo // Fail fast during server setup.
	}
	if cfg.Create == nil ||
		cfg.List == nil ||
		cfg.GetByID == nil ||
		cfg.Update == nil ||
		cfg.Delete == nil {
		panic("registerCRUD: nil handler for base " + cfg.Base) //nolint:forbidigo // Fail fast during server setup.
	}

	wrap := func(h http.HandlerFunc) http.Handler {
		if cfg.Middleware != nil {
			return cfg.Middleware(h)
		}
		return h
	}
	deleteWrap := func(h http.HandlerFunc) http.Handler {
		if cfg.DeleteMiddleware != nil {
			return cfg.DeleteMiddleware(h)
		}
		return wrap(h)
	}

	mux.Handle("POST "+cfg.Base, wrap(cfg.Create))
	mux.Handle("GET "+cfg.Base, wrap(cfg.List))
	mux.Handle("GET "+cfg.Base+"/{id}", wrap(cfg.GetByID))
	mux.Handle("PUT "+cfg.Base+"/{id}", wrap(cfg.Update))
	mux.Handle("DELETE "+cfg.Base+"/{id}", deleteWrap(cfg.Delete))
}
