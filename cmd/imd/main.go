package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/drmas001/imd-v2.8/internal/adapters/his"
	"github.com/drmas001/imd-v2.8/internal/appointment"
	"github.com/drmas001/imd-v2.8/internal/audit"
	"github.com/drmas001/imd-v2.8/internal/consultation"
	"github.com/drmas001/imd-v2.8/internal/notes"
	"github.com/drmas001/imd-v2.8/internal/notification"
	"github.com/drmas001/imd-v2.8/internal/report"
	"github.com/drmas001/imd-v2.8/internal/roster"
	"github.com/drmas001/imd-v2.8/internal/shared/auth"
	"github.com/drmas001/imd-v2.8/internal/shared/config"
	"github.com/drmas001/imd-v2.8/internal/shared/database"
	"github.com/drmas001/imd-v2.8/internal/shared/events"
	"github.com/drmas001/imd-v2.8/internal/shared/metrics"
	secmiddleware "github.com/drmas001/imd-v2.8/internal/shared/middleware"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
	"github.com/drmas001/imd-v2.8/internal/staff"
	wardapi "github.com/drmas001/imd-v2.8/internal/ward/api"
	"github.com/drmas001/imd-v2.8/internal/ward/infrastructure"
)

// App holds all application dependencies
type App struct {
	Config   *config.Config
	DB       *database.DB
	Bus      events.EventBus
	Notifier *notification.Service
	Importer *his.Importer
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}
	devMode := cfg.Server.Env != "production"

	// Initialize database (optional - skip if not available)
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Printf("Warning: Database not available: %v\n", err)
		fmt.Println("Running in limited mode without database...")
	} else {
		app.DB = db
		defer db.Close()

		// Run migrations
		if err := database.Migrate(ctx, db.Pool); err != nil {
			fmt.Printf("Warning: Migration failed: %v\n", err)
		}
	}

	// Event bus: EventStoreDB when reachable, in-process otherwise
	bus, err := events.NewBus(ctx, cfg.EventStore)
	if err != nil {
		fmt.Printf("Warning: EventStoreDB not available: %v\n", err)
		fmt.Println("Falling back to in-process event bus...")
		app.Bus = events.NewMemoryBus()
	} else {
		app.Bus = bus
		fmt.Println("EventStoreDB event bus initialized")
	}
	defer app.Bus.Close()

	// Follow-up reminder notifier. Reminders live in memory and only
	// need the bus, so it runs even without a database.
	notifier := notification.NewService(
		notification.NewLogProvider("sms"),
		notification.NewLogProvider("email"),
		cfg.Notifier,
	)
	if err := notifier.Start(ctx); err != nil {
		fmt.Printf("Warning: Notifier failed to start: %v\n", err)
	} else {
		app.Notifier = notifier
		defer notifier.Stop()

		notifySubscriber := notification.NewSubscriber(notifier, app.Bus)
		if err := notifySubscriber.Start(ctx); err != nil {
			fmt.Printf("Warning: Notifier subscriber failed to start: %v\n", err)
		}
	}

	var wardRepo *infrastructure.PostgresRepository
	if app.DB != nil {
		wardRepo = infrastructure.NewPostgresRepository(app.DB.Pool)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.InputSanitizer)
	r.Use(metrics.Middleware)

	corsCfg := secmiddleware.DefaultCORSConfig()
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.Server.CORSAllowedOrigins
	}
	r.Use(secmiddleware.CORS(corsCfg))

	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := secmiddleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		r.Use(limiter.Middleware)
	}

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		} else {
			r.Use(devUserMiddleware)
		}

		if app.DB != nil {
			// Patients and admissions, with the note feed mounted per
			// patient
			notesRepo := notes.NewRepository(app.DB.Pool)
			notesHandler := notes.NewHandler(notesRepo, app.Bus)

			wardHandler := wardapi.NewHandler(wardRepo, app.Bus)
			r.Mount("/patients", wardHandler.PatientRoutes(notesHandler.Routes()))
			r.Mount("/admissions", wardHandler.AdmissionRoutes())

			// Consultations
			consultRepo := consultation.NewRepository(app.DB.Pool)
			consultHandler := consultation.NewHandler(consultRepo, app.Bus)
			r.Mount("/consultations", consultHandler.Routes())

			// Staff directory
			staffRepo := staff.NewRepository(app.DB.Pool)
			staffHandler := staff.NewHandler(staffRepo)
			r.Mount("/staff", staffHandler.Routes())

			// Appointments
			apptRepo := appointment.NewRepository(app.DB.Pool)
			apptHandler := appointment.NewHandler(apptRepo, app.Bus)
			r.Mount("/appointments", apptHandler.Routes())

			// Active roster over admissions and consultations
			rosterService := roster.NewService(wardRepo, consultRepo)
			rosterWorkflow := roster.NewWorkflow(rosterService, wardRepo, consultRepo, app.Bus)
			rosterHandler := roster.NewHandler(rosterService, rosterWorkflow)
			r.Mount("/roster", rosterHandler.Routes())

			rosterSubscriber := roster.NewSubscriber(rosterService, app.Bus)
			if err := rosterSubscriber.Start(ctx); err != nil {
				fmt.Printf("Warning: Roster subscriber failed to start: %v\n", err)
			}
			if err := rosterService.Refresh(ctx, "startup"); err != nil {
				fmt.Printf("Warning: Initial roster refresh failed: %v\n", err)
			}

			// Reports
			reportHandler := report.NewHandler(wardRepo, consultRepo, apptRepo)
			r.Mount("/reports", reportHandler.Routes())

			// Audit trail
			auditRepo := audit.NewRepository(app.DB.Pool)
			if err := auditRepo.Initialize(ctx); err != nil {
				fmt.Printf("Warning: Audit initialization failed: %v\n", err)
			} else {
				auditHandler := audit.NewHandler(auditRepo, devMode)
				r.Mount("/audit", auditHandler.Routes())

				auditSubscriber := audit.NewSubscriber(auditRepo, app.Bus)
				if err := auditSubscriber.Start(ctx); err != nil {
					fmt.Printf("Warning: Audit subscriber failed to start: %v\n", err)
				} else {
					fmt.Println("Audit subscriber started")
				}
			}
		}
	})

	// HIS importer (optional, needs the ward repository)
	if cfg.HIS.Enabled && wardRepo != nil {
		importer := his.NewImporter(his.NewMSSQLSource(cfg.HIS), wardRepo, app.Bus, cfg.HIS)
		if err := importer.Start(ctx); err != nil {
			fmt.Printf("Warning: HIS importer failed to start: %v\n", err)
		} else {
			app.Importer = importer
			defer importer.Stop(ctx)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	eventStore := "in-process"
	if bus != nil {
		eventStore = fmt.Sprintf("%s:%d", cfg.EventStore.Host, cfg.EventStore.Port)
	}

	fmt.Println("============================================")
	fmt.Println("IMD Ward Platform v2.8")
	fmt.Println("============================================")
	fmt.Printf("Environment:  %s\n", cfg.Server.Env)
	fmt.Printf("Server:       http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:          http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:       http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Event store:  %s\n", eventStore)
	fmt.Printf("HIS import:   %t\n", cfg.HIS.Enabled)
	fmt.Printf("Reminders:    sms=%t email=%t\n", cfg.Notifier.SMSEnabled, cfg.Notifier.EmailEnabled)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

// devUserMiddleware injects a fixed staff identity when a request
// carries no token. Production deployments run the JWT middleware
// instead.
func devUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUser(r.Context()) == nil {
			user := &auth.User{
				ID:         types.NewDeterministicID("staff", "dev-user"),
				Name:       "Dev Doctor",
				Department: "Internal Medicine",
				Roles:      []string{"doctor", "admin"},
			}
			r = r.WithContext(auth.WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "IMD Ward Platform",
		"version": "2.8.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if err := app.Bus.Health(); err != nil {
			checks["event_bus"] = "not ready: " + err.Error()
		} else {
			checks["event_bus"] = "ready"
		}

		if app.Notifier != nil {
			if err := app.Notifier.Health(); err != nil {
				checks["notifier"] = "not ready: " + err.Error()
			} else {
				checks["notifier"] = "ready"
			}
		} else {
			checks["notifier"] = "not configured"
		}

		if app.Importer != nil {
			if err := app.Importer.Health(r.Context()); err != nil {
				checks["his_import"] = "not ready: " + err.Error()
			} else {
				checks["his_import"] = "ready"
			}
		} else {
			checks["his_import"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
