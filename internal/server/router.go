package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yudi-prasetyo/psychchat-backend/internal/appointments"
	"github.com/yudi-prasetyo/psychchat-backend/internal/auth"
	"github.com/yudi-prasetyo/psychchat-backend/internal/identity"
	"github.com/yudi-prasetyo/psychchat-backend/internal/metrics"
	"github.com/yudi-prasetyo/psychchat-backend/internal/psychologists"
	"github.com/yudi-prasetyo/psychchat-backend/internal/users"
	"go.uber.org/zap"
)

const (
	callerIDContextKey = "psychchat_caller_id"
	roleContextKey     = "psychchat_role"

	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingRoleResolver     = errors.New("role resolver dependency required")
	errMissingAccounts         = errors.New("account registrar dependency required")
	errMissingIdentityProvider = errors.New("identity provider dependency required")
	errMissingDirectory        = errors.New("psychologist directory dependency required")
	errMissingAppointmentBook  = errors.New("appointment book dependency required")
)

// SessionValidator extracts and verifies the identity token carried by a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.IdentityClaims, error)
	CookieName() string
}

// RoleResolver maps a caller id to its assigned role.
type RoleResolver interface {
	ResolveRole(ctx context.Context, callerID string) (auth.Role, error)
}

// AccountRegistrar runs the two-phase registration.
type AccountRegistrar interface {
	Register(ctx context.Context, registration users.Registration, extra ...users.RecordWriter) (users.Registered, error)
}

// IdentityProvider is the part of the provider the HTTP layer calls directly.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
	SendPasswordReset(ctx context.Context, email string) error
}

// PsychologistDirectory manages psychologist profiles.
type PsychologistDirectory interface {
	Register(ctx context.Context, email, password string) (users.Registered, error)
	List(ctx context.Context) ([]psychologists.Profile, error)
	Get(ctx context.Context, userID string) (psychologists.Profile, error)
	Update(ctx context.Context, userID string, update psychologists.ProfileUpdate) (psychologists.Profile, error)
}

// AppointmentBook books and reads appointments.
type AppointmentBook interface {
	Create(ctx context.Context, booking appointments.Booking) (appointments.Appointment, error)
	Get(ctx context.Context, id string) (appointments.Appointment, error)
	ListByUser(ctx context.Context, userID string) ([]appointments.Appointment, error)
	ListByPsychologist(ctx context.Context, psychologistID string) ([]appointments.Appointment, error)
}

type Dependencies struct {
	Sessions      SessionValidator
	Roles         RoleResolver
	Accounts      AccountRegistrar
	Identity      IdentityProvider
	Psychologists PsychologistDirectory
	Appointments  AppointmentBook
	Realtime      *RealtimeDispatcher
	Metrics       metrics.Recorder
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Logger         *zap.Logger

	BasePath               string
	AllowedOrigins         []string
	CookieSecure           bool
	AllowAdminRegistration bool
	HeartbeatInterval      time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Roles == nil {
		return nil, errMissingRoleResolver
	}
	if deps.Accounts == nil {
		return nil, errMissingAccounts
	}
	if deps.Identity == nil {
		return nil, errMissingIdentityProvider
	}
	if deps.Psychologists == nil {
		return nil, errMissingDirectory
	}
	if deps.Appointments == nil {
		return nil, errMissingAppointmentBook
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	dispatcher := deps.Realtime
	if dispatcher == nil {
		dispatcher = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	registerValidationTagNames()

	router := gin.New()
	router.Use(recoveryMiddleware(logger))
	router.Use(requestLogger(logger, recorder))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:          deps.Sessions,
		roles:             deps.Roles,
		accounts:          deps.Accounts,
		identity:          deps.Identity,
		directory:         deps.Psychologists,
		book:              deps.Appointments,
		realtime:          dispatcher,
		metrics:           recorder,
		logger:            logger,
		cookieSecure:      deps.CookieSecure,
		allowAdmin:        deps.AllowAdminRegistration,
		heartbeatInterval: heartbeat,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody("Not found"))
	})

	api := router.Group(strings.TrimRight(strings.TrimSpace(deps.BasePath), "/"))

	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", handler.handleRegister)
	authRoutes.POST("/login", handler.handleLogin)
	authRoutes.POST("/logout", handler.handleLogout)
	authRoutes.POST("/reset-password", handler.handleResetPassword)

	psychologistRoutes := api.Group("/psychologists")
	psychologistRoutes.POST("/register", handler.handleRegisterPsychologist)
	psychologistRoutes.GET("", handler.handleListPsychologists)
	psychologistRoutes.GET("/:userId", handler.handleGetPsychologist)
	psychologistRoutes.PUT("/:userId",
		handler.authenticate,
		handler.requireRole(auth.RolePsychologist, auth.RoleAdmin),
		handler.requireSelf(pathTarget("userId")),
		handler.handleUpdatePsychologist,
	)
	psychologistRoutes.GET("/:userId/appointments",
		handler.authenticate,
		handler.requireRole(auth.RolePsychologist, auth.RoleAdmin),
		handler.requireSelf(pathTarget("userId")),
		handler.handleListPsychologistAppointments,
	)

	appointmentRoutes := api.Group("/appointments")
	appointmentRoutes.POST("",
		handler.authenticate,
		handler.requireSelf(bodyUserIDTarget),
		handler.handleCreateAppointment,
	)
	appointmentRoutes.GET("/:id",
		handler.authenticate,
		handler.handleGetAppointment,
	)

	api.GET("/users/:userId/appointments",
		handler.authenticate,
		handler.requireRole(auth.RoleUser, auth.RoleAdmin),
		handler.requireSelf(pathTarget("userId")),
		handler.handleListUserAppointments,
	)

	realtimeRoutes := api.Group("/realtime")
	realtimeRoutes.GET("/stream", handler.handleRealtimeStream)
	realtimeRoutes.POST("/messages", handler.handleRealtimePublish)

	return router, nil
}

type httpHandler struct {
	sessions          SessionValidator
	roles             RoleResolver
	accounts          AccountRegistrar
	identity          IdentityProvider
	directory         PsychologistDirectory
	book              AppointmentBook
	realtime          *RealtimeDispatcher
	metrics           metrics.Recorder
	logger            *zap.Logger
	cookieSecure      bool
	allowAdmin        bool
	heartbeatInterval time.Duration
}
