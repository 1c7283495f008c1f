// Package router exposes the service over HTTP using chi.
package router

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
	"github.com/patric-chuzhbe/yourplaces/internal/auth"
	"github.com/patric-chuzhbe/yourplaces/internal/gzippedhttp"
	"github.com/patric-chuzhbe/yourplaces/internal/logger"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

type placesService interface {
	GetPlaceByID(ctx context.Context, placeID string) (*models.Place, error)

	GetPlacesByUserID(ctx context.Context, userID string) ([]*models.Place, error)

	CreatePlace(
		ctx context.Context,
		request models.CreatePlaceRequest,
		imagePath string,
		creatorID string,
	) (*models.Place, error)

	UpdatePlace(
		ctx context.Context,
		placeID string,
		request models.UpdatePlaceRequest,
		callerID string,
	) (*models.Place, error)

	DeletePlace(ctx context.Context, placeID string, callerID string) error

	ReconcileUserPlaces(ctx context.Context, userID string) (*models.User, error)
}

type usersService interface {
	GetUsers(ctx context.Context) ([]*models.User, error)

	Signup(ctx context.Context, request models.SignupRequest, imagePath string) (*models.AuthResponse, error)

	Login(ctx context.Context, request models.LoginRequest) (*models.AuthResponse, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type service interface {
	placesService
	usersService
	pinger
}

type imageStore interface {
	Save(src io.Reader) (string, error)

	Release(path string) error

	Dir() string

	URLPrefix() string

	MaxSize() int64
}

type tokenVerifier interface {
	VerifyToken(tokenString string) (auth.Identity, error)
}

const invalidInputsMessage = "Invalid inputs passed, please check your data."

type Router struct {
	service  service
	files    imageStore
	guard    *auth.Guard
	validate *validator.Validate
}

func New(
	svc service,
	files imageStore,
	verifier tokenVerifier,
) *Router {
	return &Router{
		service:  svc,
		files:    files,
		guard:    auth.NewGuard(verifier, writeError),
		validate: validator.New(),
	}
}

// Handler builds the HTTP handler with all routes and middleware.
func (r *Router) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(
		middleware.Recoverer,
		logger.WithLoggingHTTPMiddleware,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodPatch,
				http.MethodDelete,
				http.MethodOptions,
			},
			AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization"},
		}),
		gzippedhttp.UngzipRequest,
		gzippedhttp.GzipResponse,
	)

	router.Get(`/ping`, r.GetPing)

	router.Route(`/api/places`, func(router chi.Router) {
		router.Get(`/{pid}`, r.GetApiplacesByID)
		router.Get(`/user/{uid}`, r.GetApiplacesuserByUID)

		router.Group(func(router chi.Router) {
			router.Use(r.guard.Authenticate)
			router.Post(`/`, r.PostApiplaces)
			router.Patch(`/{pid}`, r.PatchApiplacesByID)
			router.Delete(`/{pid}`, r.DeleteApiplacesByID)
		})
	})

	router.Route(`/api/users`, func(router chi.Router) {
		router.Get(`/`, r.GetApiusers)
		router.Post(`/signup`, r.PostApiuserssignup)
		router.Post(`/login`, r.PostApiuserslogin)
		router.With(r.guard.Authenticate).Post(`/reconcile`, r.PostApiusersreconcile)
	})

	prefix := "/" + strings.Trim(r.files.URLPrefix(), "/") + "/"
	router.Handle(prefix+"*", http.StripPrefix(prefix, noDirectoryListing(http.FileServer(http.Dir(r.files.Dir())))))

	router.NotFound(func(response http.ResponseWriter, request *http.Request) {
		writeError(response, request, apperr.NotFound("Could not find this route."))
	})
	router.MethodNotAllowed(func(response http.ResponseWriter, request *http.Request) {
		writeJSON(response, http.StatusMethodNotAllowed, models.MessageResponse{Message: "Method not allowed."})
	})

	return router
}

// GetPing reports whether the entity store is reachable.
func (r *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := r.service.Ping(request.Context()); err != nil {
		writeError(response, request, apperr.Persistence("Database is unreachable.", err))
		return
	}

	response.WriteHeader(http.StatusOK)
}

func noDirectoryListing(h http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if request.URL.Path == "" || strings.HasSuffix(request.URL.Path, "/") {
			writeError(response, request, apperr.NotFound("Could not find this route."))
			return
		}
		h.ServeHTTP(response, request)
	})
}
