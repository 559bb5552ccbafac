package cli

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"signsense-quiz-service/internal/config"
	"signsense-quiz-service/internal/domain"
	"signsense-quiz-service/internal/infra/file"
	pgloader "signsense-quiz-service/internal/infra/postgres"
	pgmigrations "signsense-quiz-service/internal/infra/postgres/migrations"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// NewMigrateCmd applies database migrations and optionally seeds question banks.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "upsert every questions_<subject>.json from questions.dir into Postgres")
	return cmd
}

func runMigrations(ctx context.Context, configPath string, seed bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
		return err
	}
	if seed {
		return seedQuestionBanks(ctx, cfg, logger)
	}
	return nil
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", zap.String("group", group.String()))
	return nil
}

// seedQuestionBanks copies the JSON question files into question_banks.
func seedQuestionBanks(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	paths, err := filepath.Glob(filepath.Join(cfg.Questions.Dir, "questions_*.json"))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no question files in %s", cfg.Questions.Dir)
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	files := file.NewQuestionLoader(cfg.Questions.Dir)
	banks := pgloader.NewQuestionLoader(pool)
	for _, path := range paths {
		subject := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "questions_"), ".json")
		questions, err := files.LoadQuestions(ctx, subject)
		if err != nil {
			return err
		}
		if _, err := domain.NewQuestionBank(subject, questions); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := banks.SaveQuestions(ctx, subject, questions); err != nil {
			return err
		}
		logger.Info("question bank seeded", zap.String("subject", subject), zap.Int("questions", len(questions)))
	}
	return nil
}
