package pgvector

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"github.com/yanthraa/chat-memory/internal/config"
	"github.com/yanthraa/chat-memory/internal/model"
	registrymigrate "github.com/yanthraa/chat-memory/internal/registry/migrate"
	registryvector "github.com/yanthraa/chat-memory/internal/registry/vector"
	"github.com/yanthraa/chat-memory/internal/scope"
	"gorm.io/gorm"
)

//go:embed db/pgvector-schema.sql
var pgvectorSchemaTemplate string

// pgvectorMigrator implements migrate.Migrator for the pgvector schema.
type pgvectorMigrator struct{}

func (m *pgvectorMigrator) Name() string { return "pgvector" }
func (m *pgvectorMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorMigrateAtStart || cfg.VectorType != "pgvector" || cfg.DBURL == "" || (cfg.DatastoreType != "" && cfg.DatastoreType != "postgres") {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := openGormDB(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	schema := fmt.Sprintf(pgvectorSchemaTemplate, effectiveEmbeddingDimension(cfg))
	return db.WithContext(ctx).Exec(schema).Error
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "pgvector",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &pgvectorMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("pgvector: missing config in context")
	}
	db, err := openGormDB(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	return &PgvectorStore{db: db}, nil
}

// PgvectorStore implements VectorStore using the pgvector extension. Scope
// filtering joins the live conversation_records rows, so sharing transitions
// take effect without touching this table.
type PgvectorStore struct {
	db *gorm.DB
}

func (s *PgvectorStore) IsEnabled() bool { return true }
func (s *PgvectorStore) Name() string    { return "pgvector" }

func (s *PgvectorStore) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	clause, args := scopeClause(req.Scope)
	if clause == "" {
		return nil, nil
	}

	vec := pgvec.NewVector(req.Embedding)
	query := fmt.Sprintf(`
		SELECT e.record_id, e.chat_id,
		       1 - (e.embedding <=> ?::vector) AS score
		FROM record_embeddings e
		JOIN conversation_records r ON r.id = e.record_id
		WHERE e.chat_id <> ? AND %s
		ORDER BY e.embedding <=> ?::vector
		LIMIT ?`, clause)

	queryArgs := append([]interface{}{vec, req.ExcludeChatID}, args...)
	queryArgs = append(queryArgs, vec, req.Limit)

	rows, err := s.db.WithContext(ctx).Raw(query, queryArgs...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []registryvector.SearchResult
	for rows.Next() {
		var r registryvector.SearchResult
		if err := rows.Scan(&r.RecordID, &r.ChatID, &r.Score); err != nil {
			log.Error("pgvector scan error", "err", err)
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// scopeClause translates a visibility scope into a SQL predicate over the
// joined conversation_records row r. An empty clause means nothing matches.
func scopeClause(s scope.Scope) (string, []interface{}) {
	switch s.Kind {
	case scope.KindAll:
		return "TRUE", nil
	case scope.KindTeamLead:
		return "(r.actor_id = ? OR (r.organization_id = ? AND (r.team_id = ? OR r.sharing_level = ?)))",
			[]interface{}{s.ActorID, s.OrganizationID, s.TeamID, string(model.SharingOrganization)}
	case scope.KindMember:
		return "(r.actor_id = ? OR (r.organization_id = ? AND r.sharing_level = ?))",
			[]interface{}{s.ActorID, s.OrganizationID, string(model.SharingOrganization)}
	default:
		return "", nil
	}
}

func (s *PgvectorStore) Upsert(ctx context.Context, records []registryvector.UpsertRequest) error {
	for _, r := range records {
		vec := pgvec.NewVector(r.Embedding)
		if err := s.db.WithContext(ctx).Exec(`
			INSERT INTO record_embeddings (record_id, chat_id, embedding, model)
			VALUES (?, ?, ?::vector, ?)
			ON CONFLICT (record_id)
			DO UPDATE SET embedding = EXCLUDED.embedding, model = EXCLUDED.model`,
			r.RecordID, r.ChatID, vec, r.ModelName,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

// SetSharingLevel is a no-op: searches filter against the live record rows.
func (s *PgvectorStore) SetSharingLevel(ctx context.Context, recordID uuid.UUID, level model.SharingLevel) error {
	return nil
}

func (s *PgvectorStore) DeleteByRecordID(ctx context.Context, recordID uuid.UUID) error {
	return s.db.WithContext(ctx).Exec(
		"DELETE FROM record_embeddings WHERE record_id = ?",
		recordID,
	).Error
}

func effectiveEmbeddingDimension(cfg *config.Config) int {
	if cfg == nil {
		return 1536
	}
	if cfg.OpenAIDimensions > 0 {
		return cfg.OpenAIDimensions
	}
	switch strings.ToLower(strings.TrimSpace(cfg.EmbedType)) {
	case "local":
		return 384
	default:
		return 1536
	}
}

var _ registryvector.VectorStore = (*PgvectorStore)(nil)
