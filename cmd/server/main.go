package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dorm-residency/internal/config"
	"github.com/iliyamo/dorm-residency/internal/database"
	"github.com/iliyamo/dorm-residency/internal/handler"
	"github.com/iliyamo/dorm-residency/internal/middleware"
	"github.com/iliyamo/dorm-residency/internal/payment"
	"github.com/iliyamo/dorm-residency/internal/queue"
	"github.com/iliyamo/dorm-residency/internal/repository"
	"github.com/iliyamo/dorm-residency/internal/router"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs the rate limiter and the browse response cache.  Both
	// middleware fail open, so a missing Redis only disables them.
	rdb := config.NewRedisClient()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	students := repository.NewStudentRepo(db)
	buildings := repository.NewBuildingRepo(db)
	rooms := repository.NewRoomRepo(db)
	registrations := repository.NewRegistrationRepo(db)
	invoices := repository.NewInvoiceRepo(db)
	sessions := repository.NewPaymentSessionRepo(db)

	payments := payment.NewManager(sessions, invoices, registrations,
		time.Duration(cfg.PaymentTTLMin)*time.Minute)

	authH := handler.NewAuthHandler(cfg, users, tokens, students)
	publicH := handler.NewPublicHandler(buildings, rooms)
	studentH := handler.NewStudentHandler(cfg, students, buildings, registrations)
	staffH := handler.NewStaffHandler(cfg, registrations, students, rooms, invoices)
	paymentH := handler.NewPaymentHandler(payments, students, invoices)

	e := echo.New()
	if rdb != nil {
		e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	}

	router.RegisterRoutes(e)
	router.RegisterPublic(e, publicH, rdb)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterStudent(e, studentH, paymentH, cfg.JWTSecret)
	router.RegisterStaff(e, staffH, cfg.JWTSecret)

	// Notification consumer: drains the broker queues into the
	// notification log.  Runs for the lifetime of the process.
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("queue: consumer stopped: %v", err)
		}
	}()

	// Periodic payment-session sweep.  Lazy expiry in Verify stays
	// authoritative; the sweep only keeps the table tidy.
	if cfg.SweepEveryMin > 0 {
		go payment.RunSweeper(context.Background(), sessions,
			time.Duration(cfg.SweepEveryMin)*time.Minute, log.Printf)
	}

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, semester=%s)", addr, cfg.Env, cfg.Semester)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
