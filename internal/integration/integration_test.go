package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"examprep-service/internal/app"
	"examprep-service/internal/domain"
	"examprep-service/internal/events"
	"examprep-service/internal/infra/postgres"
	pgmigrations "examprep-service/internal/infra/postgres/migrations"
	infraredis "examprep-service/internal/infra/redis"
	"examprep-service/internal/logger"
	"examprep-service/internal/stats"
	"examprep-service/internal/store"
	"examprep-service/internal/taxonomy"
	"examprep-service/internal/versioning"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/sync/errgroup"
)

type harness struct {
	db        *bun.DB
	authoring *postgres.Authoring
	publisher *versioning.Publisher
	service   *app.AttemptService
	events    *events.Recorder
	resolver  *taxonomy.Resolver
}

func TestSubmitAnswersEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)
	h := newHarness(t, ctx)

	first, err := h.publisher.Publish(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	second, err := h.publisher.Publish(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if second.SequenceNumber != first.SequenceNumber+1 {
		t.Fatalf("expected sequence %d, got %d", first.SequenceNumber+1, second.SequenceNumber)
	}
	for i, q := range second.SnapshotDocument.Questions {
		if q.QuestionVersionID != first.SnapshotDocument.Questions[i].QuestionVersionID {
			t.Fatalf("unchanged question %s got a new version", q.Question.QuestionID)
		}
	}

	attempt, err := h.service.StartAttempt(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if attempt.QuizVersionID != second.QuizVersionID {
		t.Fatalf("expected binding to latest version %s, got %s", second.QuizVersionID, attempt.QuizVersionID)
	}

	answers := map[string]string{"q1": "a", "q2": "b", "q3": "b"}
	g, gctx := errgroup.WithContext(ctx)
	for qid, opt := range answers {
		qid, opt := qid, opt
		g.Go(func() error {
			_, err := h.service.SubmitAnswer(gctx, attempt.ID, qid, pick(opt))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent submit: %v", err)
	}

	rows, err := h.service.UserStats(ctx, "u1")
	if err != nil {
		t.Fatalf("user stats: %v", err)
	}
	byNode := make(map[string]domain.UserTaxonomyStats, len(rows))
	for _, r := range rows {
		byNode[r.TaxonomyID] = r
	}
	expect := map[string][2]int{"S": {3, 2}, "C": {3, 2}, "T1": {2, 2}, "T2": {1, 0}}
	for node, want := range expect {
		got, ok := byNode[node]
		if !ok {
			t.Fatalf("missing stats row for %s", node)
		}
		if got.QuestionsAttempted != want[0] || got.QuestionsCorrect != want[1] {
			t.Fatalf("%s: expected attempted=%d correct=%d, got %+v", node, want[0], want[1], got)
		}
	}
	if avg := byNode["C"].AverageScorePercent; avg < 66.6 || avg > 66.7 {
		t.Fatalf("expected C average 66.67, got %v", avg)
	}

	if _, err := h.service.SubmitAnswer(ctx, attempt.ID, "q2", pick("a")); !errors.Is(err, domain.ErrQuestionAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}
	if _, err := h.service.SubmitAnswer(ctx, attempt.ID, "q2", pick("b")); err != nil {
		t.Fatalf("identical resubmit: %v", err)
	}

	summary, err := h.service.FinishAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if summary.Attempt.Score != 2 || summary.Attempt.MaxScore != 3 || summary.Attempt.Status != domain.AttemptSubmitted {
		t.Fatalf("unexpected summary %+v", summary.Attempt)
	}
	if got := h.events.Count(events.AnswerGraded); got != 3 {
		t.Fatalf("expected 3 graded events, got %d", got)
	}
}

func TestEditAfterStartKeepsBinding(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)
	h := newHarness(t, ctx)

	v1, err := h.publisher.Publish(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	attempt, err := h.service.StartAttempt(ctx, "u2", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	edited := selectQuestion("q1", "b", "T1")
	if err := h.authoring.UpsertQuestion(ctx, edited); err != nil {
		t.Fatalf("edit question: %v", err)
	}
	v2, err := h.publisher.Publish(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if v2.SnapshotDocument.Questions[0].QuestionVersionID == v1.SnapshotDocument.Questions[0].QuestionVersionID {
		t.Fatalf("edited question should get a new version")
	}
	if v2.SnapshotDocument.Questions[1].QuestionVersionID != v1.SnapshotDocument.Questions[1].QuestionVersionID {
		t.Fatalf("untouched question should keep its version")
	}

	res, err := h.service.SubmitAnswer(ctx, attempt.ID, "q1", pick("a"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 1 {
		t.Fatalf("attempt bound to v1 should grade against the old key, got score %v", res.Score)
	}

	if _, err := h.db.ExecContext(ctx, `UPDATE question_versions SET snapshot = '{}'::jsonb WHERE id = ?`, v1.SnapshotDocument.Questions[0].QuestionVersionID); err == nil {
		t.Fatalf("expected question version update to be rejected")
	}
	if _, err := h.db.ExecContext(ctx, `UPDATE quiz_attempts SET quiz_version_id = ? WHERE id = ?`, v2.QuizVersionID, attempt.ID); err == nil {
		t.Fatalf("expected attempt rebinding to be rejected")
	}
}

func TestMoveTaxonomySubtree(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)
	h := newHarness(t, ctx)

	for _, n := range []domain.TaxonomyNode{
		{ID: "S2", NodeType: "subject"},
		{ID: "cs_1", ParentID: "S", NodeType: "chapter"},
		{ID: "é", ParentID: "cs_1", NodeType: "topic"},
		{ID: "t", ParentID: "é", NodeType: "subtopic"},
		{ID: "csX1", ParentID: "S", NodeType: "chapter"},
		{ID: "u", ParentID: "csX1", NodeType: "topic"},
	} {
		if err := h.authoring.UpsertNode(ctx, n); err != nil {
			t.Fatalf("upsert %s: %v", n.ID, err)
		}
	}

	if err := h.authoring.UpsertNode(ctx, domain.TaxonomyNode{ID: "cs_1", ParentID: "S2", NodeType: "chapter"}); err != nil {
		t.Fatalf("move cs_1: %v", err)
	}
	assertAncestors(t, ctx, h.resolver, "t", "t", "é", "cs_1", "S2")
	assertAncestors(t, ctx, h.resolver, "u", "u", "csX1", "S")

	if err := h.authoring.UpsertNode(ctx, domain.TaxonomyNode{ID: "é", ParentID: "S", NodeType: "topic"}); err != nil {
		t.Fatalf("move é: %v", err)
	}
	assertAncestors(t, ctx, h.resolver, "t", "t", "é", "S")

	err := h.authoring.UpsertNode(ctx, domain.TaxonomyNode{ID: "é", ParentID: "t", NodeType: "topic"})
	if !errors.Is(err, domain.ErrTaxonomyCycle) {
		t.Fatalf("expected ErrTaxonomyCycle moving under a descendant, got %v", err)
	}
}

func assertAncestors(t *testing.T, ctx context.Context, r *taxonomy.Resolver, id string, want ...string) {
	t.Helper()
	got, err := r.AncestorsOf(ctx, id)
	if err != nil {
		t.Fatalf("ancestors of %s: %v", id, err)
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("ancestors of %s: expected %v, got %v", id, want, got)
	}
}

func newHarness(t *testing.T, ctx context.Context) *harness {
	t.Helper()
	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := postgres.OpenDB(pgURL, 5*time.Second)
	t.Cleanup(func() { db.Close() })
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	authoring := postgres.NewAuthoring(db)
	seed(t, ctx, authoring)

	pool, err := postgres.ConnectPool(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	log := logger.Nop()
	rec := &events.Recorder{}
	retry := store.RetryPolicy{MaxRetries: 5, Interval: 10 * time.Millisecond}
	st := postgres.NewStore(db)
	cache := infraredis.NewVersionCache(redisClient, postgres.NewVersionLoader(pool), 5*time.Minute, log)
	resolver := taxonomy.NewResolver(postgres.NewTaxonomyReader(pool), 0)
	engine := stats.NewEngine(resolver, log)

	return &harness{
		db:        db,
		authoring: authoring,
		publisher: versioning.NewPublisher(st, rec, log, retry),
		service:   app.NewAttemptService(st, cache, engine, rec, log, retry),
		events:    rec,
		resolver:  resolver,
	}
}

func seed(t *testing.T, ctx context.Context, a *postgres.Authoring) {
	t.Helper()
	nodes := []domain.TaxonomyNode{
		{ID: "S", Name: "Chemistry", NodeType: "subject"},
		{ID: "C", ParentID: "S", Name: "Stoichiometry", NodeType: "chapter"},
		{ID: "T1", ParentID: "C", Name: "Molar mass", NodeType: "topic"},
		{ID: "T2", ParentID: "C", Name: "Limiting reagent", NodeType: "topic"},
	}
	for _, n := range nodes {
		if err := a.UpsertNode(ctx, n); err != nil {
			t.Fatalf("seed node %s: %v", n.ID, err)
		}
	}
	for _, q := range []domain.Question{
		selectQuestion("q1", "a", "T1"),
		selectQuestion("q2", "a", "T2"),
		selectQuestion("q3", "b", "T1"),
	} {
		if err := a.UpsertQuestion(ctx, q); err != nil {
			t.Fatalf("seed question %s: %v", q.ID, err)
		}
	}
	if err := a.UpsertQuiz(ctx, domain.Quiz{ID: "quiz-1", Title: "Stoichiometry", QuestionIDs: []string{"q1", "q2", "q3"}}); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
}

func selectQuestion(id, correct string, tags ...string) domain.Question {
	return domain.Question{
		ID:    id,
		Title: "Question " + id,
		Parts: []domain.Part{{
			ID:   "p1",
			Kind: domain.PartSingleSelect,
			Options: []domain.Option{
				{ID: "a", Label: "A", Correct: correct == "a"},
				{ID: "b", Label: "B", Correct: correct == "b"},
			},
		}},
		TaxonomyIDs: tags,
	}
}

func pick(option string) domain.Answer {
	return domain.Answer{Parts: []domain.PartAnswer{{PartID: "p1", SelectedOptionIDs: []string{option}}}}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "examprep", "POSTGRES_PASSWORD": "examprep", "POSTGRES_DB": "examprep"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://examprep:examprep@%s:%s/examprep?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
