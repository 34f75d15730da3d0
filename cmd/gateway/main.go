package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/bcrypt"

	api "github.com/classlite/classlite-lms/internal/api/http"
	"github.com/classlite/classlite-lms/internal/attempt"
	auth "github.com/classlite/classlite-lms/internal/auth/middleware"
	"github.com/classlite/classlite-lms/internal/config"
	"github.com/classlite/classlite-lms/internal/db"
	"github.com/classlite/classlite-lms/internal/grading"
	"github.com/classlite/classlite-lms/internal/quiz"
	"github.com/classlite/classlite-lms/internal/rbac"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	if err := seedAdmin(ctx, dbh, cfg); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	catalog := quiz.NewSQLCatalog(dbh)
	store := attempt.NewSQLStore(dbh)
	grader := grading.NewDefaultGrader()
	svc := attempt.NewService(catalog, store, grader,
		attempt.WithPassingThreshold(cfg.PassingThresholdPct))

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, cfg.Mode == config.ModeOffline))

		// Instructor: publish quizzes
		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", api.UploadQuizHandler(catalog))

		// Student/Instructor: browse the catalog
		pr.With(rbac.Require("quiz:list")).
			Get("/quizzes", api.ListQuizzesHandler(catalog))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", api.GetQuizHandler(catalog))

		// Student attempt flow
		pr.With(rbac.Require("attempt:start")).
			Post("/quizzes/{quizID}/attempt", api.StartAttemptHandler(svc))
		pr.With(rbac.Require("attempt:save")).
			Put("/quizzes/{quizID}/attempt/answers", api.SaveAnswersHandler(svc))
		pr.With(rbac.Require("attempt:submit")).
			Post("/quizzes/{quizID}/attempt/submit", api.SubmitAttemptHandler(svc))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/quizzes/{quizID}/attempt", api.GetAttemptHandler(svc))
		pr.With(rbac.RequireAny("result:view-own", "result:view-all")).
			Get("/quizzes/{quizID}/result", api.GetResultHandler(svc))

		// Dashboards
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(svc))

		// Roster (instructor/admin)
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

// seedAdmin makes sure a usable admin account exists on first boot. The hash
// comes from ADMIN_PASS_HASH; when unset, a dev-only "admin" password is
// hashed at startup.
func seedAdmin(ctx context.Context, dbh *sql.DB, cfg config.Config) error {
	hash := cfg.AdminPassHash
	if hash == "" {
		b, err := bcrypt.GenerateFromPassword([]byte("admin"), 12)
		if err != nil {
			return err
		}
		hash = string(b)
	}
	_, err := dbh.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at)
		 VALUES ($1,$2,$3,'admin',$4)
		 ON CONFLICT (id) DO NOTHING`,
		cfg.AdminUser, cfg.AdminUser, hash, time.Now().Unix())
	return err
}
