package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"queryset_registry/internal/broker"
	"queryset_registry/internal/config"
	"queryset_registry/internal/database"
	"queryset_registry/internal/handlers"
	"queryset_registry/internal/middlewares"
	"queryset_registry/internal/repositories"
	"queryset_registry/internal/routes"
	"queryset_registry/internal/services"
)

// Server owns the HTTP server and every connection opened for it.
type Server struct {
	*http.Server
	closers []func()
}

// Close releases the store, broker and cache connections.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func NewServer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	s := &Server{}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, store.Close)

	authority, err := s.openAuthority(ctx, cfg, log)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Dependency injection
	consistencyService := services.NewConsistencyService(store, authority, cfg.Authority.Concurrency, log)
	querysetService := services.NewQuerysetService(store, authority, consistencyService, cfg.ValidateOnRead, log)

	router := NewRouter(cfg, log, querysetService)

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(cfg *config.Config, log *zap.Logger, querysetService *services.QuerysetService) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.RequestLogger(log))
	router.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	querysetHandler := handlers.NewQuerysetHandler(querysetService, routes.APIPrefix+"/querysets")
	tableHandler := handlers.NewTableHandler(querysetService)
	routes.RegisterRoutes(router, querysetHandler, tableHandler)

	return router
}

func corsConfig(origins []string) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, middlewares.RequestIDHeader)
	corsCfg.ExposeHeaders = []string{middlewares.RequestIDHeader}

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	return corsCfg
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repositories.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		db, err := database.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		store, err := newSQLiteStore(db)
		if err != nil {
			return nil, err
		}
		log.Info("using sqlite metadata store", zap.String("path", cfg.Store.SQLitePath))
		return store, nil

	default:
		if err := database.EnsureDatabaseExists(ctx, cfg.Store, log); err != nil {
			return nil, err
		}
		pool, err := database.Connect(ctx, cfg.Store, log)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx, pool, log); err != nil {
			pool.Close()
			return nil, err
		}
		return repositories.NewPostgresStore(pool), nil
	}
}

// newSQLiteStore migrates db into a store and closes db if that fails.
func newSQLiteStore(db *gorm.DB) (*repositories.SQLiteStore, error) {
	store, err := repositories.NewSQLiteStore(db)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, err
	}
	return store, nil
}

func (s *Server) openAuthority(ctx context.Context, cfg *config.Config, log *zap.Logger) (broker.Authority, error) {
	var authority broker.Authority

	switch cfg.Broker.Mode {
	case config.BrokerModeCatalog:
		pool, err := database.ConnectBroker(ctx, cfg.Broker.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to broker database: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		authority = broker.NewCatalogAuthority(repositories.NewSchemaRepository(pool, cfg.Broker.Schema))
		log.Info("using broker catalog authority", zap.String("schema", cfg.Broker.Schema))

	default:
		client := &http.Client{Timeout: cfg.Authority.Timeout}
		authority = broker.NewHTTPAuthority(cfg.Broker.URL, client)
		log.Info("using broker http authority", zap.String("url", cfg.Broker.URL))
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		s.closers = append(s.closers, func() { rdb.Close() })

		authority = broker.NewCachedAuthority(authority, repositories.NewRedisRepository(rdb), cfg.Authority.CacheTTL, log)
		log.Info("broker existence cache enabled", zap.Duration("ttl", cfg.Authority.CacheTTL))
	}

	return broker.Guard(authority, cfg.Authority.Timeout), nil
}
