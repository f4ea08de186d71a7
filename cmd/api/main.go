// Command api wires the Japanese payroll engine's services together: the
// tenant, employee, attendance, rate book, overtime/insurance/tax, payroll
// state machine, year-end workflow, accounting and export packages, backed
// by a single pgxpool connection pool. It deliberately carries no HTTP
// transport: routing, authentication and session handling are out of
// scope, so this binary's job ends at constructing a ready-to-use service
// graph and logging that it did so.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/kyuyo-systems/payroll-engine/internal/accounting"
	"github.com/kyuyo-systems/payroll-engine/internal/attendance"
	"github.com/kyuyo-systems/payroll-engine/internal/config"
	"github.com/kyuyo-systems/payroll-engine/internal/cryptutil"
	"github.com/kyuyo-systems/payroll-engine/internal/database"
	"github.com/kyuyo-systems/payroll-engine/internal/employee"
	"github.com/kyuyo-systems/payroll-engine/internal/export"
	"github.com/kyuyo-systems/payroll-engine/internal/insurance"
	"github.com/kyuyo-systems/payroll-engine/internal/payroll"
	"github.com/kyuyo-systems/payroll-engine/internal/ratebook"
	"github.com/kyuyo-systems/payroll-engine/internal/tax"
	"github.com/kyuyo-systems/payroll-engine/internal/tenant"
	"github.com/kyuyo-systems/payroll-engine/internal/yearend"
)

// services holds every wired service graph entrypoints needed for the
// operations spec.md names: employee/company onboarding, attendance
// recording, payroll calculation and state transitions, year-end
// reconciliation and the three export formats.
type services struct {
	pool *database.Pool

	Companies    *tenant.Service
	Employees    employee.Repository
	Attendance   attendance.Repository
	RateBook     *ratebook.Book
	Insurance    *insurance.Engine
	Tax          *tax.Engine
	Calculator   *payroll.Calculator
	StateMachine *payroll.StateMachine
	PayrollRepo  payroll.Repository
	YearEnd      *yearend.Workflow
	Accounting   *accounting.Service
	Export       *export.ExportRouter
}

func wire(ctx context.Context, cfg config.Config) (*services, error) {
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	var accountBox *cryptutil.Box
	if cfg.EncryptionKey != "" {
		accountBox, err = cryptutil.NewBox(cfg.EncryptionKey, "bank_account_number")
		if err != nil {
			pool.Close()
			return nil, err
		}
	} else {
		log.Warn().Msg("encryption_key not set, bank account numbers will be stored in plaintext")
	}

	fallbackRate, err := decimal.NewFromString(cfg.IncomeTaxFallbackRateOtsuHei)
	if err != nil {
		pool.Close()
		return nil, err
	}

	tenantRepo := tenant.NewPostgresRepository(pool.Pool)
	tenantService := tenant.NewService(tenantRepo)

	employeeRepo := employee.NewPostgresRepository(pool.Pool, accountBox)
	attendanceRepo := attendance.NewPostgresRepository(pool.Pool)

	rateBookRepo := ratebook.NewPostgresRepository(pool.Pool)
	rateBook := ratebook.New(rateBookRepo)

	insuranceEngine := insurance.New(rateBook)
	taxEngine := tax.New(rateBook, fallbackRate)

	calculator := payroll.NewCalculator(
		employeeRepo, insuranceEngine, taxEngine,
		cfg.MonthlyPrescribedHoursDefault, cfg.CommuteNonTaxableLimitDefault, cfg.StatutoryWorkDaysDefault,
	)
	payrollRepo := payroll.NewPostgresRepository(pool.Pool)
	stateMachine := payroll.NewStateMachine(payrollRepo)

	yearEndRepo := yearend.NewPostgresRepository(pool.Pool)
	yearEndWorkflow := yearend.NewWorkflow(yearEndRepo, employeeRepo)

	accountingRepo := accounting.NewPostgresRepository(pool.Pool)
	accountingService := accounting.NewService(accountingRepo)

	exportRouter := export.NewExportRouter(payrollRepo, accountingService, employeeRepo, tenantService, attendanceRepo, yearEndWorkflow)

	return &services{
		pool:         pool,
		Companies:    tenantService,
		Employees:    employeeRepo,
		Attendance:   attendanceRepo,
		RateBook:     rateBook,
		Insurance:    insuranceEngine,
		Tax:          taxEngine,
		Calculator:   calculator,
		StateMachine: stateMachine,
		PayrollRepo:  payrollRepo,
		YearEnd:      yearEndWorkflow,
		Accounting:   accountingService,
		Export:       exportRouter,
	}, nil
}

func (s *services) Close() {
	s.pool.Close()
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Warn().Str("level", logLevel).Msg("invalid LOG_LEVEL, defaulting to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx := context.Background()
	svc, err := wire(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire services")
	}
	defer svc.Close()

	log.Info().
		Str("tenant_schema_prefix", cfg.TenantSchemaPrefix).
		Str("default_prefecture", cfg.DefaultPrefecture).
		Str("export_timezone", cfg.ExportTimezone).
		Msg("payroll engine services ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutting down")
}
