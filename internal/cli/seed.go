package cli

import (
	"context"
	"fmt"
	"os"

	"examprep-service/internal/config"
	"examprep-service/internal/domain"
	"examprep-service/internal/infra/memory"
	"examprep-service/internal/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fixtures is the YAML seed document. Taxonomy nodes must be listed parents first.
type fixtures struct {
	Taxonomy  []domain.TaxonomyNode `yaml:"taxonomy"`
	Questions []domain.Question     `yaml:"questions"`
	Quizzes   []domain.Quiz         `yaml:"quizzes"`
}

// authoringSink receives seeded content; postgres.Authoring and memorySink implement it.
type authoringSink interface {
	UpsertNode(ctx context.Context, n domain.TaxonomyNode) error
	UpsertQuestion(ctx context.Context, q domain.Question) error
	UpsertQuiz(ctx context.Context, q domain.Quiz) error
}

type memorySink struct {
	taxonomy *memory.Taxonomy
	store    *memory.Store
}

func (m *memorySink) UpsertNode(ctx context.Context, n domain.TaxonomyNode) error {
	return m.taxonomy.UpsertNode(ctx, n)
}

func (m *memorySink) UpsertQuestion(_ context.Context, q domain.Question) error {
	m.store.SaveQuestion(q)
	return nil
}

func (m *memorySink) UpsertQuiz(_ context.Context, q domain.Quiz) error {
	m.store.SaveQuiz(q)
	return nil
}

func loadFixtures(path string) (fixtures, error) {
	var f fixtures
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return f, nil
}

func applyFixtures(ctx context.Context, sink authoringSink, f fixtures) error {
	for _, n := range f.Taxonomy {
		if err := sink.UpsertNode(ctx, n); err != nil {
			return fmt.Errorf("seed taxonomy node %s: %w", n.ID, err)
		}
	}
	for _, q := range f.Questions {
		if err := sink.UpsertQuestion(ctx, q); err != nil {
			return fmt.Errorf("seed question %s: %w", q.ID, err)
		}
	}
	for _, q := range f.Quizzes {
		if err := sink.UpsertQuiz(ctx, q); err != nil {
			return fmt.Errorf("seed quiz %s: %w", q.ID, err)
		}
	}
	return nil
}

// seedServices writes fixtures into whichever backend svc is running on and optionally
// publishes every seeded quiz.
func seedServices(ctx context.Context, log *logger.Logger, svc *services, path string, publish bool) error {
	f, err := loadFixtures(path)
	if err != nil {
		return err
	}
	var sink authoringSink = svc.memory
	if svc.authoring != nil {
		sink = svc.authoring
	}
	if err := applyFixtures(ctx, sink, f); err != nil {
		return err
	}
	log.Info("fixtures seeded", "path", path, "nodes", len(f.Taxonomy), "questions", len(f.Questions), "quizzes", len(f.Quizzes))

	if !publish {
		return nil
	}
	for _, q := range f.Quizzes {
		res, err := svc.publisher.Publish(ctx, q.ID)
		if err != nil {
			return err
		}
		log.Info("quiz published", "quiz_id", q.ID, "quiz_version_id", res.QuizVersionID, "sequence", res.SequenceNumber)
	}
	return nil
}

// NewSeedCmd loads taxonomy, questions and quizzes from a YAML fixture file.
func NewSeedCmd(configPath *string) *cobra.Command {
	var (
		path    string
		publish bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load taxonomy, questions and quizzes from a fixture file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), *configPath, func(ctx context.Context, cfg config.Config, log *logger.Logger, svc *services) error {
				if svc.authoring == nil {
					return fmt.Errorf("seed requires postgres; in-memory mode loads fixtures with start --fixtures")
				}
				return seedServices(ctx, log, svc, path, publish)
			})
		},
	}
	cmd.Flags().StringVar(&path, "file", "config/fixtures.yaml", "path to the YAML fixture file")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish every seeded quiz")
	return cmd
}
