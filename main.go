package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"docsync-server/collab"
	"docsync-server/handlers/api/files"
	"docsync-server/handlers/api/rooms"
	"docsync-server/handlers/api/users"
	"docsync-server/handlers/websocket"
	"docsync-server/metrics"
	authmw "docsync-server/middleware"
	"docsync-server/relay"
	"docsync-server/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type config struct {
	origins    websocket.OriginPolicy
	outboxSize int
	jwtSecret  []byte
}

func loadConfig() config {
	cfg := config{
		outboxSize: collab.DefaultOutboxSize,
		jwtSecret:  []byte(os.Getenv("JWT_SECRET")),
	}

	var origins []string
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}
	cfg.origins = websocket.NewOriginPolicy(origins)

	if v := os.Getenv("OUTBOX_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			logrus.WithField("value", v).Warn("Ignoring invalid OUTBOX_SIZE")
		} else {
			cfg.outboxSize = n
		}
	}

	if len(cfg.jwtSecret) == 0 {
		logrus.Warn("JWT_SECRET not set, REST writes are unauthenticated")
	}
	return cfg
}

func setupRouter(store stores.Store, hub *collab.Hub, m *metrics.Metrics, cfg config) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(m.Middleware)

	corsOptions := cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return cfg.origins.Allow(origin)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	r.Use(cors.Handler(corsOptions))

	requireAuth := authmw.AuthJWT(cfg.jwtSecret)

	r.Get("/files", files.HandleList(store))
	r.Get("/files/{ownerId}", files.HandleListByOwner(store))
	r.Get("/file/{id}", files.HandleGet(store))
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/files", files.HandleCreate(store, hub.Notifier))
		r.Put("/file/{id}", files.HandleUpdate(store))
		r.Delete("/file/{id}", files.HandleDelete(store, hub.Notifier))
	})

	r.Get("/users", users.HandleList(store))
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/users", users.HandleCreate(store))
		r.Post("/users/sync", users.HandleSync(store))
	})

	r.Get("/api/rooms", rooms.HandleList(hub.Rooms, store))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/ws", websocket.HandleRaw(hub.Gateway, cfg.origins, cfg.outboxSize))

	return r
}

func startRelay(ctx context.Context, hub *collab.Hub) *relay.Relay {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		logrus.Info("REDIS_ADDR not set, running as a single instance")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	rl := relay.New(rdb, os.Getenv("REDIS_CHANNEL"), hub.Broadcaster, hub.Notifier)
	if err := rl.Start(ctx); err != nil {
		logrus.WithError(err).WithField("addr", addr).Fatal("Failed to start relay")
	}
	hub.SetMirror(rl)
	return rl
}

func waitForShutdown(ioo *socketio.Server, server *http.Server, hub *collab.Hub, rl *relay.Relay) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signalC
	logrus.WithField("signal", s.String()).Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ioo.Close(nil)
	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown")
	}
	hub.Gateway.Close()
	if rl != nil {
		if err := rl.Close(); err != nil {
			logrus.WithError(err).Warn("Relay shutdown")
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", ":3002", "Set the server listen address")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := loadConfig()
	store := stores.GetStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := collab.NewHub()
	hub.SetObserver(m)
	hub.Gateway.SetActivity(store)

	rl := startRelay(context.Background(), hub)

	r := setupRouter(store, hub, m, cfg)
	ioo := websocket.SetupSocketIO(hub.Gateway, cfg.origins, cfg.outboxSize)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	server := &http.Server{Addr: *listenAddr, Handler: r}
	logrus.WithField("addr", *listenAddr).Info("starting server")
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(ioo, server, hub, rl)
}
