package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/avvvet/balance-services/configs"
	svcconfig "github.com/avvvet/balance-services/internal/balancesvc/config"
	"github.com/avvvet/balance-services/internal/balancesvc/broker"
	pgdb "github.com/avvvet/balance-services/internal/balancesvc/db"
	handlers "github.com/avvvet/balance-services/internal/balancesvc/handlers"
	"github.com/avvvet/balance-services/internal/balancesvc/service"
	"github.com/avvvet/balance-services/internal/balancesvc/store"
	mongodb "github.com/avvvet/balance-services/internal/db"
	nats "github.com/avvvet/balance-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "balance"

var instanceId string

func init() {
	config.Logging(SERVICE_NAME + "_service")
	config.LoadEnv(SERVICE_NAME)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
}

func main() {
	cfg, err := svcconfig.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	backend, err := store.ParseBackend(cfg.Backend)
	if err != nil {
		log.Fatalf("Invalid BALANCE_BACKEND: %v", err)
	}

	table, closeTable := openTable(backend, cfg)
	defer closeTable()

	balanceService := service.NewBalanceService(table, cfg.StartBalance, cfg.CacheWarnSize)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 60*time.Second)
	err = balanceService.Initialize(initCtx)
	cancelInit()
	if err != nil {
		log.Fatalf("Failed to load balances: %v", err)
	}
	log.Infof("start balance is %s", cfg.StartBalance.StringFixed(2))

	// Connect to NATS
	n, err := nats.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+"_service_"+instanceId)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	broker := broker.NewBroker(n.Conn, balanceService, cfg.ReplySubject)

	// the cache is authoritative for this process only, so exactly one
	// instance serves a balance table; openTable enforces that on postgres
	sub, err := broker.Subscribe(cfg.Subject)
	if err != nil {
		log.Fatalf("Error: unable to subscribe to %s: %v", cfg.Subject, err)
	}

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(balanceService)
	h.InitAuth(cfg.JWTSecret)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := sub.Drain(); err != nil {
		log.Warnf("unable to drain subscription: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}

// openTable connects the configured backend and makes sure its schema exists.
func openTable(backend store.Backend, cfg svcconfig.Config) (store.BalanceTable, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch backend {
	case store.BackendMongo:
		db, err := mongodb.ConnectToDB(cfg.MongoURI)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		log.Printf("mongo connection established successfully")

		log.Warn("mongo backend does not guard against a second instance, run exactly one")
		table := store.NewMongoBalanceStore(db)
		if err := table.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare balance collection: %v", err)
		}
		return table, func() { mongodb.Disconnect(db) }

	case store.BackendMemory:
		log.Warn("balances are kept in memory only and are lost on restart")
		return store.NewMemoryBalanceStore(), func() {}

	default:
		dbpool, err := pgdb.Connect(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		log.Printf("pg connection established successfully")

		table := store.NewPostgresBalanceStore(dbpool)
		if err := table.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare balance table: %v", err)
		}
		release, err := table.AcquireOwner(ctx)
		if err != nil {
			log.Fatalf("Refusing to start: %v", err)
		}
		return table, func() {
			release()
			dbpool.Close()
		}
	}
}
