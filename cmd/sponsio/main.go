package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/sponsio/sponsio/internal/config"
	"github.com/sponsio/sponsio/internal/http_api"
	"github.com/sponsio/sponsio/internal/notificator"
	"github.com/sponsio/sponsio/internal/payment"
	"github.com/sponsio/sponsio/internal/repository"
	"github.com/sponsio/sponsio/internal/sponsio"
	"github.com/sponsio/sponsio/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "sponsio",
		Usage: "Sponsio is a stake settlement engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "payment-gateway-url", Aliases: []string{"g"}, Usage: "Payment gateway URL"},
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "HTTP API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
			&cli.StringFlag{Name: "instance-id", Aliases: []string{"i"}, Usage: "Instance identifier for the sweep lease"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("payment-gateway-url") {
		cfg.PaymentGatewayURL = c.String("payment-gateway-url")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("instance-id") {
		cfg.InstanceID = c.String("instance-id")
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Initialize payment gateway client
	gateway := payment.NewHTTPGateway(cfg.PaymentGatewayURL, log)

	// Initialize notification channels; both are optional
	var telegramNotif *notificator.TelegramNotificator
	if cfg.TelegramBotToken != "" {
		telegramNotif, err = notificator.NewTelegramNotificator(log, cfg.TelegramBotToken)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram notificator: %v", err)
		}
	}
	var emailNotif *notificator.EmailNotificator
	if cfg.SMTPHost != "" {
		emailNotif = notificator.NewEmailNotificator(log, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender)
	}
	notifier := notificator.NewNotificator(log, nil, telegramNotif, emailNotif)

	// Create Sponsio instance
	sponsioApp := sponsio.NewSponsio(db, gateway, notifier, log, cfg)

	apiServer := http_api.NewHTTPServer(sponsioApp, cfg.APIPort, log)

	go apiServer.Start()
	// Start the background deadline sweep
	sponsioApp.Start()

	// Block until asked to stop
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sponsioApp.Shutdown()
	if err := apiServer.Shutdown(); err != nil {
		log.Error("Failed to shut down API server", "error", err)
	}

	return nil
}
