package main

import (
	"context"
	"flag"
	"log/syslog"
	"os"
	"os/signal"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"
	logrusys "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/tidwall/buntdb"
	"github.com/uptrace/bun"
	_ "github.com/uptrace/bun/driver/pgdriver"
	"github.com/zipcard/zipcard/persistent"
	"github.com/zipcard/zipcard/pgdb"
	"github.com/zipcard/zipcard/resolver"
	"github.com/zipcard/zipcard/transport/rest"
)

const defaultFallbackImage = "/img/placeholder.png"

func listenAndServe(
	ctx context.Context,
	bdb *buntdb.DB,
	db *bun.DB,
	publicOrigin string,
	debug bool,
) func() error {
	userStore := &persistent.UserStore{DB: db}
	profileStore := &persistent.ProfileStore{DB: db}
	imageStore := &persistent.ImageStore{DB: db}
	sessionStore := &persistent.SessionStore{Buntdb: bdb}

	requestAuthorizer := rest.RequestAuthorizer(sessionStore, userStore)

	authController := rest.AuthController{
		SessionStore: sessionStore,
		UserStore:    userStore,
	}
	imageController := rest.ImageController{Store: imageStore}
	profileController := rest.ProfileController{
		Store: profileStore,
		Resolver: &resolver.Resolver{
			Images:      imageStore,
			FallbackURL: publicOrigin + defaultFallbackImage,
		},
		PublicOrigin: publicOrigin,
	}

	server := fiber.New()
	server.Use(rest.LogHandler())

	api := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		BodyLimit:    rest.UploadBodyLimit,
		ErrorHandler: rest.ErrorHandler,
	})

	allowOrigins := publicOrigin
	if debug {
		allowOrigins += ", http://localhost:3000"
	}
	api.Use(cors.New(cors.Config{AllowOrigins: allowOrigins}))

	authController.InstallTo(requestAuthorizer, api)
	imageController.InstallTo(requestAuthorizer, api)
	profileController.InstallTo(requestAuthorizer, api)
	server.Mount("/api/", api)

	// public card pages live on the outer server so /u/<username> works
	// without auth, exactly as printed on the share QR
	profileController.InstallPublicTo(server)

	server.Static("/", "./www/", fiber.Static{
		Browse: false,
		Index:  "index.html",
	})

	server.Use(rest.NotFoundHandler)

	var addr string
	if debug {
		addr = "127.0.0.1:2137"
	} else {
		addr = ":2137"
	}
	go server.Listen(addr)

	return func() error {
		profileController.CloseEditors()
		return server.Shutdown()
	}
}

func setupLogger(verbose bool) {
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: time.Stamp,
		FullTimestamp:   true,
	})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	syslogHook, err := logrusys.NewSyslogHook("", "", syslog.LOG_USER, "zipcard_backend")
	if err != nil {
		logrus.WithError(err).Fatalln("Could not create syslog hook.")
		return
	}
	logrus.AddHook(syslogHook)
}

func createSchema(ctx context.Context, db *bun.DB) {
	models := []interface{}{
		(*persistent.User)(nil),
		(*persistent.Profile)(nil),
		(*persistent.Image)(nil),
	}
	for _, model := range models {
		_, err := db.NewCreateTable().
			IfNotExists().
			Model(model).
			Exec(ctx)
		if err != nil {
			logrus.WithError(err).Fatalln("Could not create table.")
		}
	}
}

func awaitInterruption() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c
}

func main() {
	flag.Parse()
	debug := os.Getenv("DEBUG") == "true"
	setupLogger(debug)
	logrus.Infoln("Starting backend.")

	pgDsn := os.Getenv("POSTGRES_DSN")
	if pgDsn == "" {
		logrus.Fatalln("Environment variable POSTGRES_DSN is not set!")
	}
	publicOrigin := os.Getenv("PUBLIC_ORIGIN")
	if publicOrigin == "" {
		logrus.Fatalln("Environment variable PUBLIC_ORIGIN is not set!")
	}

	bdb, err := buntdb.Open("kv.db")
	if err != nil {
		logrus.WithError(err).Fatalln("Could not open buntdb.")
	}
	defer bdb.Close()

	logrus.Infoln("Opening database.")
	ctx := context.Background()
	db := pgdb.Open(ctx, pgDsn)
	defer db.DB.Close()
	defer db.Close()

	createSchema(ctx, db)

	logrus.Infoln("Starting listening... To shut down use ^C")
	shutdown := listenAndServe(ctx, bdb, db, publicOrigin, debug)

	awaitInterruption()

	logrus.Infoln("Shutting down...")
	err = shutdown()
	if err != nil {
		logrus.WithError(err).Warningln("Fiber shutdown failed.")
	}
	logrus.Exit(0)
}
