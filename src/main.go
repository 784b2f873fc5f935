package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"regexp"
	"strconv"

	"cpass/src/boot"
	"cpass/src/db"
	"cpass/src/engine"
	"cpass/src/lib"
	"cpass/src/middlewares"
	"cpass/src/stores"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	_ "github.com/joho/godotenv/autoload"
)

const (
	apiPrefix string = "/api/v1"
)

var (
	ticketStore engine.TicketStore
	scanLedger  engine.ScanLedger
	eng         *engine.Engine
	coordinator *engine.Coordinator
)

var currencyValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	cur, ok := fl.Field().Interface().(string)
	if !ok || len(cur) != 3 {
		return false
	}
	for _, r := range cur {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func statusForEngineError(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest),
		errors.Is(err, engine.ErrChargeReferenceMissing),
		errors.Is(err, engine.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, engine.ErrRefundFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// initCore builds the engine graph on top of the shared db handle. Tests swap
// the handle through db.NewDB and call this again.
func initCore() {
	d := db.GetDb()
	ticketStore = stores.NewTicketStore(d)
	scanLedger = stores.NewScanLedger(d)
	eng = engine.New(
		ticketStore,
		scanLedger,
		&lib.StripeGateway{},
		lib.GetWalletPassClient(),
		&lib.KafkaScanFeed{ClientID: "cpass-api"},
	)
	coordinator = engine.NewCoordinator(eng, lib.NewRedisLocker())
}

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.Use(middlewares.SecureHeaders)
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})
	return router
}

func maintenanceModeMiddleware(g *gin.Engine) *gin.Engine {
	g.Use(func(ctx *gin.Context) {
		mm := os.Getenv("MAINTENANCE_MODE")
		atoi, err := strconv.ParseBool(mm)
		if err == nil && atoi {
			err := errors.New("server is under maintenance")
			log.Println(err.Error())
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, err.Error())
			return
		}
	})
	return g
}

func apiv1Group(g *gin.Engine) *gin.RouterGroup {
	apiv1 := g.Group(apiPrefix)
	return apiv1
}

func initLogger() {
	cwd, _ := os.Getwd()
	serverLogs := path.Join(cwd, "logs", "server.log")
	apiLogs := path.Join(cwd, "logs", "api.log")
	gin.ForceConsoleColor()

	f, _ := os.Create(apiLogs)
	gin.DefaultWriter = io.MultiWriter(f, os.Stdout)
	log.SetOutput(&lumberjack.Logger{
		Filename:   serverLogs,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

func main() {
	apiEnv := os.Getenv("API_ENV")
	if apiEnv == "local" {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			panic(err)
		}
	}
	initLogger()

	boot.InitDb()
	initCore()
	boot.InitScheduler(func() {
		coordinator.Sweep(context.Background())
	})
	go boot.InitBroker()

	router := setupRouter()

	appHost := os.Getenv("APP_HOST")
	if apiEnv == "local" {
		router.Use(cors.Default())
	} else {
		cc := cors.DefaultConfig()
		cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "PATCH", "PUT", "DELETE", "HEAD")
		cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization", "x-secret")
		cc.AllowOriginFunc = func(origin string) bool {
			match, _ := regexp.MatchString(appHost, origin)
			if match {
				return true
			}
			match, _ = regexp.MatchString("app:gate", origin)
			return match
		}
		cc.AllowCredentials = true
		cc.AllowAllOrigins = false
		router.Use(cors.New(cc))
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("currency", currencyValidatorFunc)
	}

	router = maintenanceModeMiddleware(router)

	stripeWebhookRoute(router)

	authorized := router.Group(apiPrefix)
	authorized.Use(middlewares.AuthMiddleware)
	{
		authorized = ticketHandlers(authorized)
		authorized = scanHandlers(authorized)
	}

	if os.Getenv("TLS_ENABLE") == "true" {
		cwd, _ := os.Getwd()
		certpath := path.Join(cwd, "certificates", "localhost.pem")
		keypath := path.Join(cwd, "certificates", "localhost-key.pem")
		if err := router.RunTLS(":9090", certpath, keypath); err != nil {
			log.Fatalf("Failed to start server: %s", err)
		}
	}
	if err := router.Run(":9090"); err != nil {
		log.Fatalf("Failed to start server: %s", err)
	}
}
