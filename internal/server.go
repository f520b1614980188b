package internal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/2beens/gymtrack/internal/auth"
	"github.com/2beens/gymtrack/internal/config"
	"github.com/2beens/gymtrack/internal/db"
	"github.com/2beens/gymtrack/internal/exercises"
	"github.com/2beens/gymtrack/internal/images"
	gymtrackmcp "github.com/2beens/gymtrack/internal/mcp"
	"github.com/2beens/gymtrack/internal/middleware"
	"github.com/2beens/gymtrack/internal/misc"
	"github.com/2beens/gymtrack/internal/records"
	"github.com/2beens/gymtrack/internal/sessions"
	"github.com/2beens/gymtrack/internal/splits"
	"github.com/2beens/gymtrack/internal/stats"
	"github.com/2beens/gymtrack/internal/telemetry/metrics"
	metricsmiddleware "github.com/2beens/gymtrack/internal/telemetry/metrics/middleware"
	"github.com/2beens/gymtrack/internal/telemetry/tracing"
)

// size of the in-memory exercise history cache used for PR detection
const historyCacheSizeMegabytes = 32

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	iosAppSecret      string // used with the gymtrack ios app
	mcpSecret         string // used by MCP clients hitting /mcp
	versionInfo       string

	config        *config.Config
	dbPool        *pgxpool.Pool
	imagesStore   *images.Store
	quotesManager *misc.QuotesManager

	// sessionsController holds the active workout in memory, so it has to be
	// a singleton shared between the router and the rest timer heartbeat
	sessionsRepo       *sessions.Repo
	sessionsController *sessions.Controller

	redisClient  *redis.Client
	loginChecker auth.Checker
	authService  *auth.Service

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	IOSAppSecret            string
	MCPSecret               string
	VersionInfo             string
	AdminUsername           string
	AdminPasswordHash       string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		AppName:        "gymtrack-api",
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": "gymtrack_db"},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("backend", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0) // set to 1 when serving starts

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	authService := auth.NewAuthService(&auth.Admin{
		Username:     params.AdminUsername,
		PasswordHash: params.AdminPasswordHash,
	}, auth.DefaultTTL, rdb)
	go func() {
		for range time.Tick(time.Hour * 8) {
			authService.ScanAndClean(ctx)
		}
	}()

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "main-backend", rdb)
	if err != nil {
		return nil, err
	}

	imagesStore, err := images.NewStore(params.Config.ExerciseImagesRootPath)
	if err != nil {
		return nil, fmt.Errorf("new images store: %w", err)
	}

	sessionsRepo := sessions.NewRepo(dbPool)

	s := &Server{
		config:       params.Config,
		dbPool:       dbPool,
		iosAppSecret: params.IOSAppSecret,
		mcpSecret:    params.MCPSecret,
		versionInfo:  params.VersionInfo,
		imagesStore:  imagesStore,

		sessionsRepo: sessionsRepo,
		sessionsController: sessions.NewController(
			sessionsRepo,
			records.NewHistoryStore(historyCacheSizeMegabytes),
			metricsManager,
		),

		redisClient:  rdb,
		authService:  authService,
		loginChecker: auth.NewLoginChecker(auth.DefaultTTL, rdb),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}

	quotesCsvFile, err := os.Open(params.Config.QuotesCsvPath)
	if err != nil {
		return nil, fmt.Errorf("open quotes file: %w", err)
	}
	defer func() {
		if err := quotesCsvFile.Close(); err != nil {
			log.Warnf("close quotes csv file: %s", err)
		}
	}()

	s.quotesManager, err = misc.NewQuoteManager(csv.NewReader(quotesCsvFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create quote manager: %s", err)
	}

	return s, nil
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	splitsRepo := splits.NewRepo(s.dbPool)
	splitsHandler := splits.NewHandler(splitsRepo)
	r.HandleFunc("/splits", splitsHandler.HandleListSplits).Methods("GET", "OPTIONS").Name("list-splits")
	r.HandleFunc("/splits", splitsHandler.HandleAddSplit).Methods("POST", "OPTIONS").Name("new-split")
	// fixed paths before the {id} catch-alls
	r.HandleFunc("/splits/active", splitsHandler.HandleActiveSplit).Methods("GET", "OPTIONS").Name("active-split")
	r.HandleFunc("/splits/exercise-usage/{exerciseId}", splitsHandler.HandleExerciseUsage).Methods("GET", "OPTIONS")
	r.HandleFunc("/splits/{id}", splitsHandler.HandleGetSplit).Methods("GET", "OPTIONS").Name("get-split")
	r.HandleFunc("/splits/{id}", splitsHandler.HandleDeleteSplit).Methods("DELETE", "OPTIONS").Name("remove-split")
	r.HandleFunc("/splits/{id}/activate", splitsHandler.HandleActivate).Methods("PUT", "OPTIONS").Name("activate-split")
	r.HandleFunc("/splits/{id}/days", splitsHandler.HandleAddDay).Methods("POST", "OPTIONS").Name("new-day")
	r.HandleFunc("/days/{id}", splitsHandler.HandleGetDay).Methods("GET", "OPTIONS").Name("get-day")
	r.HandleFunc("/days/{id}", splitsHandler.HandleUpdateDay).Methods("PUT", "OPTIONS").Name("update-day")
	r.HandleFunc("/days/{id}", splitsHandler.HandleDeleteDay).Methods("DELETE", "OPTIONS").Name("remove-day")
	r.HandleFunc("/days/{id}/exercises", splitsHandler.HandleAddPlannedExercise).Methods("POST", "OPTIONS").Name("new-planned-exercise")
	r.HandleFunc("/days/exercises/{id}", splitsHandler.HandleUpdatePlannedExercise).Methods("PUT", "OPTIONS").Name("update-planned-exercise")
	r.HandleFunc("/days/exercises/{id}", splitsHandler.HandleDeletePlannedExercise).Methods("DELETE", "OPTIONS").Name("remove-planned-exercise")

	exercisesRepo := exercises.NewRepo(s.dbPool)
	exercisesHandler := exercises.NewHandler(s.imagesStore, exercisesRepo)
	r.HandleFunc("/exercises", exercisesHandler.HandleListAll).Methods("GET", "OPTIONS").Name("list-exercises")
	r.HandleFunc("/exercises", exercisesHandler.HandleAdd).Methods("POST", "OPTIONS").Name("new-exercise")
	r.HandleFunc("/exercises/list/page/{page}/size/{size}", exercisesHandler.HandleListPage).Methods("GET", "OPTIONS").Name("list-exercises-page")
	r.HandleFunc("/exercises/image/{id}", exercisesHandler.HandleGetImage).Methods("GET", "OPTIONS").Name("get-exercise-image")
	r.HandleFunc("/exercises/image/{id}", exercisesHandler.HandleDeleteImage).Methods("DELETE", "OPTIONS").Name("remove-exercise-image")
	r.HandleFunc("/exercises/{id}", exercisesHandler.HandleGet).Methods("GET", "OPTIONS").Name("get-exercise")
	r.HandleFunc("/exercises/{id}", exercisesHandler.HandleUpdate).Methods("PUT", "OPTIONS").Name("update-exercise")
	r.HandleFunc("/exercises/{id}", exercisesHandler.HandleDelete).Methods("DELETE", "OPTIONS").Name("remove-exercise")
	r.HandleFunc("/exercises/{id}/image", exercisesHandler.HandleUploadImage).Methods("POST", "OPTIONS").Name("upload-exercise-image")

	sessionsHandler := sessions.NewHandler(s.sessionsController, splitsRepo, s.sessionsRepo)
	r.HandleFunc("/sessions/start", sessionsHandler.HandleStart).Methods("POST", "OPTIONS").Name("start-session")
	r.HandleFunc("/sessions/current", sessionsHandler.HandleCurrent).Methods("GET", "OPTIONS").Name("current-session")
	r.HandleFunc("/sessions/sets", sessionsHandler.HandleLogSet).Methods("POST", "OPTIONS").Name("log-set")
	r.HandleFunc("/sessions/sets/duplicate-last", sessionsHandler.HandleDuplicateLastSet).Methods("POST", "OPTIONS").Name("duplicate-last-set")
	r.HandleFunc("/sessions/sets/{number}", sessionsHandler.HandleEditSet).Methods("PUT", "OPTIONS").Name("edit-set")
	r.HandleFunc("/sessions/sets/{number}", sessionsHandler.HandleDeleteSet).Methods("DELETE", "OPTIONS").Name("remove-set")
	r.HandleFunc("/sessions/next", sessionsHandler.HandleNextExercise).Methods("POST", "OPTIONS").Name("next-exercise")
	r.HandleFunc("/sessions/previous", sessionsHandler.HandlePreviousExercise).Methods("POST", "OPTIONS").Name("previous-exercise")
	r.HandleFunc("/sessions/goto/{index}", sessionsHandler.HandleGoToExercise).Methods("POST", "OPTIONS").Name("goto-exercise")
	r.HandleFunc("/sessions/complete", sessionsHandler.HandleComplete).Methods("POST", "OPTIONS").Name("complete-session")
	r.HandleFunc("/sessions/abandon", sessionsHandler.HandleAbandon).Methods("POST", "OPTIONS").Name("abandon-session")
	r.HandleFunc("/sessions/timer", sessionsHandler.HandleTimer).Methods("GET", "OPTIONS").Name("rest-timer")
	r.HandleFunc("/sessions/timer/pause", sessionsHandler.HandleTimerPause).Methods("POST", "OPTIONS").Name("rest-timer-pause")
	r.HandleFunc("/sessions/timer/resume", sessionsHandler.HandleTimerResume).Methods("POST", "OPTIONS").Name("rest-timer-resume")
	r.HandleFunc("/sessions/timer/add", sessionsHandler.HandleTimerAdd).Methods("POST", "OPTIONS").Name("rest-timer-add")
	r.HandleFunc("/sessions/timer/skip", sessionsHandler.HandleTimerSkip).Methods("POST", "OPTIONS").Name("rest-timer-skip")
	r.HandleFunc("/sessions/list/page/{page}/size/{size}", sessionsHandler.HandleListPage).Methods("GET", "OPTIONS").Name("list-sessions-page")
	// keep last, catches the remaining /sessions/* paths
	r.HandleFunc("/sessions/{id}", sessionsHandler.HandleGet).Methods("GET", "OPTIONS").Name("get-session")

	statsHandler := stats.NewHandler(stats.NewAnalyzer(s.sessionsRepo))
	r.HandleFunc("/stats/streak", statsHandler.HandleStreak).Methods("GET", "OPTIONS").Name("stats-streak")
	r.HandleFunc("/stats/volume", statsHandler.HandleVolume).Methods("GET", "OPTIONS").Name("stats-volume")
	r.HandleFunc("/stats/exercise/{id}/progress", statsHandler.HandleExerciseProgress).Methods("GET", "OPTIONS").Name("stats-exercise-progress")
	r.HandleFunc("/stats/exercise/{id}/records", statsHandler.HandleExerciseRecords).Methods("GET", "OPTIONS").Name("stats-exercise-records")

	// the same MCP server that cmd/gymtrack_mcp runs over stdio, here mounted
	// over streamable HTTP (guarded by the X-MCP-Secret header, see middleware)
	mcpServer := gymtrackmcp.NewServer(s.dbPool, s.sessionsRepo)
	mcpHTTPHandler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return mcpServer
	}, nil)
	r.PathPrefix("/mcp").Handler(otelhttp.NewHandler(mcpHTTPHandler, "mcp")).Name("mcp")

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	miscHandler := misc.NewHandler(s.quotesManager, s.versionInfo, s.authService)
	miscHandler.SetupRoutes(r, reqRateLimiter, s.metricsManager, s.config.LoginRateLimitAllowedPerMin)

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(
		s.iosAppSecret,
		s.mcpSecret,
		s.loginChecker,
	)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", metricsmiddleware.
		New(s.promRegistry, nil).
		WrapHandler("/metrics", promhttp.HandlerFor(
			s.promRegistry,
			promhttp.HandlerOpts{}),
		))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)

	// rest timer heartbeat, stops together with the server ctx
	s.sessionsController.RunTimerTicks(ctx)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
