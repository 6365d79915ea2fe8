package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/2beens/healthpulse/internal/cache"
	"github.com/2beens/healthpulse/internal/config"
	"github.com/2beens/healthpulse/internal/db"
	"github.com/2beens/healthpulse/internal/middleware"
	"github.com/2beens/healthpulse/internal/telemetry/metrics"
	"github.com/2beens/healthpulse/internal/telemetry/tracing"
	"github.com/2beens/healthpulse/internal/workouts"
	"github.com/2beens/healthpulse/pkg"
)

const (
	serviceName     = "healthpulse-backend"
	maxRequestBytes = 64 * 1024
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	dbPool      *pgxpool.Pool
	redisClient *redis.Client

	workoutsService *workouts.Service

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	PostgresUser            string
	PostgresPassword        string
	RedisPassword           string
	HoneycombTracingEnabled bool
	VersionInfo             string
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:      cfg,
		versionInfo: params.VersionInfo,
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	s.otelShutdown, err = tracing.HoneycombSetup(params.HoneycombTracingEnabled, serviceName)
	if err != nil {
		return nil, err
	}

	var promCollectors []prometheus.Collector
	var store workouts.Store
	switch cfg.Storage {
	case config.StoragePostgres:
		s.dbPool, err = db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost:         cfg.PostgresHost,
			DBPort:         cfg.PostgresPort,
			DBName:         cfg.PostgresDBName,
			DBUser:         params.PostgresUser,
			DBPassword:     params.PostgresPassword,
			TracingEnabled: params.HoneycombTracingEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("new db pool: %w", err)
		}
		if err := s.dbPool.Ping(ctx); err != nil {
			log.Warnf("failed to ping db: %s", err)
		}
		if err := db.Migrate(ctx, s.dbPool); err != nil {
			return nil, fmt.Errorf("migrate db: %w", err)
		}

		promCollectors = append(promCollectors, pgxpoolprometheus.NewCollector(
			s.dbPool,
			map[string]string{"db_name": cfg.PostgresDBName},
		))
		store = workouts.NewPsqlRepo(s.dbPool)
	default:
		log.Warnln("using in-memory storage, all data is lost on restart")
		store = workouts.NewMemRepo()
	}

	s.promRegistry = metrics.SetupPrometheus(promCollectors...)
	s.metricsManager = metrics.NewManager("backend", "main", s.promRegistry)

	if cfg.RedisRequired() {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: params.RedisPassword,
			DB:       0, // use default DB
		})
		if params.HoneycombTracingEnabled {
			s.redisClient.AddHook(redisotel.NewTracingHook())
		}

		rdbStatus := s.redisClient.Ping(ctx)
		if err := rdbStatus.Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		} else {
			log.Debugf("redis ping: %s", rdbStatus.Val())
		}
	}

	var profileCache cache.Cache
	switch cfg.Cache {
	case config.CacheRedis:
		profileCache = cache.NewRedisCache(s.redisClient)
	case config.CacheLocal:
		profileCache = cache.NewLocalCache(cfg.LocalCacheSizeBytes)
	default:
		profileCache = cache.NoopCache{}
	}
	log.Debugf("using [%s] storage and [%s] profile cache", cfg.Storage, cfg.Cache)

	s.workoutsService = workouts.NewService(workouts.ServiceParams{
		Store:          store,
		Cache:          profileCache,
		CacheTTL:       cfg.CacheTTL,
		MetricsManager: s.metricsManager,
		Location:       loc,
	})

	return s, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS").Name("health")

	workoutsHandler := workouts.NewHandler(s.workoutsService)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/activities", workoutsHandler.HandleListActivities).Methods("GET", "OPTIONS").Name("list-activities")
	api.HandleFunc("/user/goals/{username}/{activity}", workoutsHandler.HandleGetGoal).Methods("GET", "OPTIONS").Name("get-goal")
	api.HandleFunc("/user/workouts/{username}", workoutsHandler.HandleListEntries).Methods("GET", "OPTIONS").Name("list-entries")
	api.HandleFunc("/user/profile/{username}", workoutsHandler.HandleGetProfile).Methods("GET", "OPTIONS").Name("get-profile")
	api.HandleFunc("/user/stats/{username}/{activity}", workoutsHandler.HandleGetStats).Methods("GET", "OPTIONS").Name("get-stats")
	api.HandleFunc("/user/dashboard/{username}/{activity}", workoutsHandler.HandleDashboard).Methods("GET", "OPTIONS").Name("dashboard")

	writes := api.Methods("POST", "OPTIONS").Subrouter()
	writes.HandleFunc("/user/goals/{username}", workoutsHandler.HandleUpsertGoal).Name("upsert-goal")
	writes.HandleFunc("/user/entries/{username}", workoutsHandler.HandleAddEntry).Name("add-entry")
	if s.redisClient != nil && s.config.WriteRateLimitAllowedPerMin > 0 {
		writes.Use(middleware.RateLimit(
			redis_rate.NewLimiter(s.redisClient),
			s.metricsManager,
			"writes",
			s.config.WriteRateLimitAllowedPerMin,
		))
	}

	// all the rest - unhandled paths
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteJSONError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.AllowedOrigins))
	r.Use(middleware.LimitAndDrainRequest(maxRequestBytes))

	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Storage: s.config.Storage,
		Version: s.versionInfo,
	}

	if s.dbPool != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.dbPool.Ping(ctx); err != nil {
			log.Errorf("health check, ping db: %s", err)
			resp.Status = "db unavailable"
			pkg.WriteJSON(w, resp, http.StatusServiceUnavailable)
			return
		}
	}

	pkg.WriteJSON(w, resp, http.StatusOK)
}

func (s *Server) Serve(host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      otelhttp.NewHandler(router, serviceName),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
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
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	// stop taking requests first, the storage is closed after
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown http server: %s", err)
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown metrics http server: %s", err)
		}
		log.Warnln("metrics server shut down")
	}

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
