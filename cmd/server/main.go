package main

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/lifeflow/blood-donation-service/internal/config"
	"github.com/lifeflow/blood-donation-service/internal/database"
	"github.com/lifeflow/blood-donation-service/internal/handler"
	"github.com/lifeflow/blood-donation-service/internal/middleware"
	"github.com/lifeflow/blood-donation-service/internal/queue"
	"github.com/lifeflow/blood-donation-service/internal/repository"
	"github.com/lifeflow/blood-donation-service/internal/router"
)

func main() {
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	hospitals := repository.NewHospitalRepo(db)
	donations := repository.NewDonationRepo(db)
	stock := repository.NewStockRepo(db)
	requests := repository.NewRequestRepo(db)
	transfers := repository.NewTransferRepo(db)

	authH := handler.NewAuthHandler(cfg, users, tokens)
	donorH := handler.NewDonorDonationHandler(users, hospitals, donations)
	staffH := handler.NewHospitalDonationHandler(users, hospitals, donations, stock)
	profileH := handler.NewHospitalProfileHandler(users, hospitals)
	adminH := handler.NewAdminHospitalHandler(users, hospitals, donations)
	stockH := handler.NewStockHandler(hospitals, stock)
	requestH := handler.NewRequestHandler(hospitals, requests, stock)
	transferH := handler.NewTransferHandler(hospitals, requests, transfers, stock)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	// Render every HTTPError with the same {"error": ...} shape the handlers
	// use for their explicit responses.
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := "internal error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if s, ok := he.Message.(string); ok {
				msg = s
			}
		}
		_ = c.JSON(code, echo.Map{"error": msg})
	}

	router.RegisterRoutes(e, profileH, config.LoadCacheConfig(), rdb)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterDonor(e, donorH, cfg.JWTSecret)
	router.RegisterPatient(e, requestH, cfg.JWTSecret)
	router.RegisterHospitalProfile(e, profileH, cfg.JWTSecret)
	router.RegisterHospitalOps(e, staffH, stockH, requestH, transferH, hospitals, cfg.JWTSecret)
	router.RegisterAdmin(e, adminH, cfg.JWTSecret)

	go func() {
		if err := queue.StartDonationConsumer(); err != nil {
			log.Printf("donation consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
