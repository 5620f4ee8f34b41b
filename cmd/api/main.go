package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"medibook/cmd/internal/auth"
	"medibook/cmd/internal/config"
	"medibook/cmd/internal/domain/entity"
	"medibook/cmd/internal/domain/gormdb"
	gormrepo "medibook/cmd/internal/domain/gormdb/repository"
	"medibook/cmd/internal/domain/mongodb"
	mongorepo "medibook/cmd/internal/domain/mongodb/repository"
	cognitoclient "medibook/cmd/internal/integration/aws/cognito"
	"medibook/cmd/internal/routes"
	"medibook/cmd/internal/service"
	"medibook/cmd/internal/utils/validators"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medibook",
		Short: "Clinic appointment booking API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(setRoleCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.close()
			log.Infof("schema of %s database is up to date", cfg.DBDriver)
			return nil
		},
	}
}

func setRoleCmd() *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role of an account, e.g. to create the first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.close()

			accounts := service.NewAccountService(st.accounts, validators.New(), nil, nil)
			acct, apierr := accounts.AssignRole(cmd.Context(), email, entity.Role(role))
			if apierr != nil {
				return apierr
			}
			log.Infof("%s is now %s", acct.Email, acct.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the account")
	cmd.Flags().StringVar(&role, "role", string(entity.RoleAdmin), "admin, staff or patient")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log.SetLevel(logLevel(cfg.LogLevel))
	return cfg, nil
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	idp, err := identityProvider(ctx, cfg)
	if err != nil {
		return err
	}

	var slots *service.SlotPolicy
	if cfg.StrictSlots {
		slots = &service.SlotPolicy{
			Location:  cfg.Location(),
			Step:      time.Duration(cfg.SlotMinutes) * time.Minute,
			OpenHour:  cfg.OpenHour,
			CloseHour: cfg.CloseHour,
			Horizon:   time.Duration(cfg.BookingHorizonDays) * 24 * time.Hour,
		}
	}

	validate := validators.New()
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)

	// Getting services
	apptService := service.NewAppointmentService(st.appointments, st.notes, st.accounts, validate, slots)
	accountService := service.NewAccountService(st.accounts, validate, idp, issuer)

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.LogLevel))
	routes.Register(e, apptService, accountService, issuer, routes.Options{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RequestTimeout: cfg.RequestTimeout,
		Location:       cfg.Location(),
	})

	go func() {
		addr := ":" + cfg.Port
		log.Infof("starting server on %s (db=%s, idp=%s, strict slots=%t)", addr, cfg.DBDriver, cfg.IdentityProvider, cfg.StrictSlots)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// stores are the repositories of whichever backend DB_DRIVER selects.
type stores struct {
	appointments service.AppointmentRepository
	notes        service.NoteRepository
	accounts     service.AccountRepository
	close        func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.DBDriver == config.DriverMongo {
		db, err := mongodb.Init(ctx, mongodb.Options{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
		if err != nil {
			return nil, err
		}
		return &stores{
			appointments: mongorepo.NewAppointmentRepository(db),
			notes:        mongorepo.NewNoteRepository(db),
			accounts:     mongorepo.NewAccountRepository(db),
			close: func() {
				if err := mongodb.Close(context.Background(), db); err != nil {
					log.Errorf("failed to disconnect from mongo: %v", err)
				}
			},
		}, nil
	}

	db, err := gormdb.Init(gormdb.Options{Driver: cfg.DBDriver, DSN: cfg.DatabaseURL, Debug: cfg.DBDebug})
	if err != nil {
		return nil, err
	}
	return &stores{
		appointments: gormrepo.NewAppointmentRepository(db),
		notes:        gormrepo.NewNoteRepository(db),
		accounts:     gormrepo.NewAccountRepository(db),
		close: func() {
			if err := gormdb.Close(db); err != nil {
				log.Errorf("failed to close database: %v", err)
			}
		},
	}, nil
}

func identityProvider(ctx context.Context, cfg *config.Config) (service.IdentityProvider, error) {
	if cfg.IdentityProvider != config.ProviderCognito {
		return auth.NewLocalProvider(), nil
	}
	return cognitoclient.InitCognitoClient(ctx, cognitoclient.Options{
		ClientID:     cfg.CognitoClientID,
		ClientSecret: cfg.CognitoClientSecret,
		UserPoolID:   cfg.CognitoUserPoolID,
	})
}

func logLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}
