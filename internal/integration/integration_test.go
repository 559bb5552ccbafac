package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"signsense-quiz-service/internal/app"
	"signsense-quiz-service/internal/domain"
	mongostore "signsense-quiz-service/internal/infra/mongo"
	pgloader "signsense-quiz-service/internal/infra/postgres"
	pgmigrations "signsense-quiz-service/internal/infra/postgres/migrations"
	infraredis "signsense-quiz-service/internal/infra/redis"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestRoomOnRedisWithPostgresQuestions(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	pool := migrateAndSeed(t, ctx, pgURL)
	defer pool.Close()

	client := redisClientFromURL(t, redisURL)
	defer client.Close()

	questions := infraredis.NewQuestionCache(client, pgloader.NewQuestionLoader(pool), 5*time.Minute, nil)
	rooms := app.NewRoomService(infraredis.NewRoomStore(client, time.Hour), questions, nil)
	playRoom(t, ctx, rooms)

	n, err := client.Exists(ctx, "questions:math").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, n, "question bank should be cached in redis")
}

func TestRoomOnMongo(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	mongoURI, cleanup := startMongo(t, ctx)
	defer cleanup()

	store, err := mongostore.Connect(ctx, mongoURI, "signsense_test")
	require.NoError(t, err)
	defer store.Close(ctx)

	questions := staticQuestions(t)
	rooms := app.NewRoomService(store, questions, nil)
	playRoom(t, ctx, rooms)
}

// playRoom runs a host and several concurrent players through a whole room.
func playRoom(t *testing.T, ctx context.Context, rooms *app.RoomService) {
	t.Helper()
	room, err := rooms.CreateRoom(ctx, "math")
	require.NoError(t, err)

	players := []string{"ana", "ben", "cy", "dee", "eli", "fay"}
	for _, name := range players {
		require.NoError(t, rooms.JoinRoom(ctx, room.Code, name))
	}
	require.NoError(t, rooms.HostStart(ctx, room.Code))
	require.ErrorIs(t, rooms.HostStart(ctx, room.Code), domain.ErrInvalidTransition)

	answers := []string{"4", "56"}
	for index, correct := range answers {
		var wg sync.WaitGroup
		errs := make(chan error, len(players))
		for i, name := range players {
			chosen := correct
			if i%2 == 1 {
				chosen = "wrong"
			}
			wg.Add(1)
			go func(name, chosen string) {
				defer wg.Done()
				_, err := rooms.SubmitIndexedAnswer(ctx, room.Code, name, index, chosen)
				errs <- err
			}(name, chosen)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		require.NoError(t, rooms.HostAdvance(ctx, room.Code))
	}

	_, err = rooms.SubmitIndexedAnswer(ctx, room.Code, "ana", 0, "4")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = rooms.SubmitIndexedAnswer(ctx, room.Code, "ghost", 2, "144")
	require.ErrorIs(t, err, domain.ErrPlayerNotFound)

	require.NoError(t, rooms.HostEnd(ctx, room.Code))
	final, err := rooms.ReadRoom(ctx, room.Code)
	require.NoError(t, err)
	require.Equal(t, domain.RoomFinished, final.State)
	require.Equal(t, 2, final.QuestionIndex)
	require.Len(t, final.Players, len(players))
	for i, name := range players {
		want := 900
		if i%2 == 1 {
			want = 0
		}
		require.Equal(t, want, final.Players[name].Score, name)
	}
	require.Equal(t, "ana", final.Scoreboard()[0].Name)

	require.NoError(t, rooms.EndSession(ctx, room.Code))
	_, err = rooms.ReadRoom(ctx, room.Code)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container := startContainer(t, ctx, req)
	host, port := endpoint(t, ctx, container, "5432/tcp")
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port)
	return dsn, func() { _ = container.Terminate(ctx) }
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container := startContainer(t, ctx, req)
	host, port := endpoint(t, ctx, container, "6379/tcp")
	return fmt.Sprintf("redis://%s:%s", host, port), func() { _ = container.Terminate(ctx) }
}

func startMongo(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
	}
	container := startContainer(t, ctx, req)
	host, port := endpoint(t, ctx, container, "27017/tcp")
	return fmt.Sprintf("mongodb://%s:%s", host, port), func() { _ = container.Terminate(ctx) }
}

func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest) tc.Container {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	return container
}

func endpoint(t *testing.T, ctx context.Context, container tc.Container, port nat.Port) (string, string) {
	t.Helper()
	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)
	return host, mapped.Port()
}

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)

	pool, err := pgxpool.Connect(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, pgloader.NewQuestionLoader(pool).SaveQuestions(ctx, "math", sampleQuestions()))
	return pool
}

func staticQuestions(t *testing.T) app.QuestionRepository {
	t.Helper()
	bank, err := domain.NewQuestionBank("math", sampleQuestions())
	require.NoError(t, err)
	return fixedBank{bank: bank}
}

type fixedBank struct{ bank *domain.QuestionBank }

func (f fixedBank) GetBank(_ context.Context, subject string) (*domain.QuestionBank, error) {
	if subject != f.bank.Subject() {
		return nil, fmt.Errorf("%w: no bank for %q", domain.ErrConfiguration, subject)
	}
	return f.bank, nil
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "h1", Text: "What is 12 x 12?", Options: []string{"124", "144"}, CorrectAnswer: "144", Difficulty: domain.Hard},
		{ID: "m1", Text: "What is 7 x 8?", Options: []string{"54", "56", "58"}, CorrectAnswer: "56", Difficulty: domain.Medium},
		{ID: "e1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4", Difficulty: domain.Easy},
	}
}

func redisClientFromURL(t *testing.T, url string) *goredis.Client {
	t.Helper()
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	return goredis.NewClient(opts)
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
