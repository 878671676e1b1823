package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yanthraa/chat-memory/internal/config"
	"github.com/yanthraa/chat-memory/internal/model"
	registrymigrate "github.com/yanthraa/chat-memory/internal/registry/migrate"
	registrystore "github.com/yanthraa/chat-memory/internal/registry/store"
	"github.com/yanthraa/chat-memory/internal/security"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			if security.DBPoolMaxConnections != nil {
				security.DBPoolMaxConnections.Set(float64(cfg.DBMaxOpenConns))
			}

			// Periodically update the open connections gauge.
			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if security.DBPoolOpenConnections != nil {
							security.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
						}
					}
				}
			}()

			return &PostgresStore{db: db}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg != nil && !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "" && cfg.DatastoreType != "postgres" {
		return nil // skip if not using postgres
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// PostgresStore implements MemoryStore using GORM + PostgreSQL.
type PostgresStore struct {
	db *gorm.DB
}

func (s *PostgresStore) EnsureActor(ctx context.Context, actor model.Actor) (model.Actor, error) {
	if actor.ID == "" {
		return model.Actor{}, &registrystore.ValidationError{Field: "actorId", Message: "must not be empty"}
	}

	var existing model.Actor
	err := s.db.WithContext(ctx).First(&existing, "id = ?", actor.ID).Error
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Actor{}, err
	}
	if actor.OrganizationID == "" {
		return model.Actor{}, &registrystore.ValidationError{Field: "organizationId", Message: "must not be empty"}
	}
	if !actor.Role.Known() {
		actor.Role = model.RoleMember
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org := model.Organization{ID: actor.OrganizationID, Name: actor.OrganizationID}
		if err := tx.Where("id = ?", org.ID).FirstOrCreate(&org).Error; err != nil {
			return err
		}
		if actor.TeamID != "" {
			team := model.Team{ID: actor.TeamID, OrganizationID: actor.OrganizationID, Name: actor.TeamID}
			if err := tx.Where("id = ?", team.ID).FirstOrCreate(&team).Error; err != nil {
				return err
			}
		}
		return tx.Create(&actor).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return model.Actor{}, &registrystore.ConflictError{
				Code:    "duplicate_super_admin",
				Message: "a super_admin already exists",
			}
		}
		return model.Actor{}, err
	}
	return actor, nil
}

func (s *PostgresStore) GetActor(ctx context.Context, actorID string) (model.Actor, error) {
	var actor model.Actor
	err := s.db.WithContext(ctx).First(&actor, "id = ?", actorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Actor{}, &registrystore.NotFoundError{Resource: "actor", ID: actorID}
	}
	return actor, err
}

func (s *PostgresStore) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	var orgs []model.Organization
	err := s.db.WithContext(ctx).Order("created_at").Find(&orgs).Error
	return orgs, err
}

func (s *PostgresStore) ListTeams(ctx context.Context, organizationID string) ([]model.Team, error) {
	var teams []model.Team
	err := s.db.WithContext(ctx).Where("organization_id = ?", organizationID).Order("created_at").Find(&teams).Error
	return teams, err
}

func (s *PostgresStore) ListActors(ctx context.Context, organizationID string) ([]model.Actor, error) {
	var actors []model.Actor
	err := s.db.WithContext(ctx).Where("organization_id = ?", organizationID).Order("created_at").Find(&actors).Error
	return actors, err
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.ChatID == "" {
		return model.Message{}, &registrystore.ValidationError{Field: "chatId", Message: "must not be empty"}
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	// Fetched newest first; return in chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *PostgresStore) CreateConversationRecord(ctx context.Context, rec model.ConversationRecord) (model.ConversationRecord, error) {
	if rec.ChatID == "" {
		return model.ConversationRecord{}, &registrystore.ValidationError{Field: "chatId", Message: "must not be empty"}
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.SharingLevel == "" {
		rec.SharingLevel = model.SharingPrivate
	}
	if !rec.SharingLevel.Valid() {
		return model.ConversationRecord{}, &registrystore.ValidationError{Field: "sharingLevel", Message: "must be private or organization"}
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]interface{}{}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return model.ConversationRecord{}, &registrystore.ConflictError{
				Code:    "duplicate_record",
				Message: fmt.Sprintf("conversation record already exists for chat %s", rec.ChatID),
			}
		}
		return model.ConversationRecord{}, err
	}
	return rec, nil
}

func (s *PostgresStore) GetConversationRecordByChatID(ctx context.Context, chatID string) (model.ConversationRecord, error) {
	var rec model.ConversationRecord
	err := s.db.WithContext(ctx).First(&rec, "chat_id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ConversationRecord{}, &registrystore.NotFoundError{Resource: "conversation record", ID: chatID}
	}
	return rec, err
}

func (s *PostgresStore) GetConversationRecords(ctx context.Context, ids []uuid.UUID) ([]model.ConversationRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var recs []model.ConversationRecord
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&recs).Error
	return recs, err
}

func (s *PostgresStore) ListRecordsForActor(ctx context.Context, actorID string) ([]model.ConversationRecord, error) {
	var recs []model.ConversationRecord
	err := s.db.WithContext(ctx).Where("actor_id = ?", actorID).Order("created_at DESC").Find(&recs).Error
	return recs, err
}

func (s *PostgresStore) SetSharingLevel(ctx context.Context, chatID string, actor model.Actor, level model.SharingLevel) (model.ConversationRecord, error) {
	if !level.Valid() {
		return model.ConversationRecord{}, &registrystore.ValidationError{Field: "sharingLevel", Message: "must be private or organization"}
	}

	rec, err := s.GetConversationRecordByChatID(ctx, chatID)
	if err != nil {
		return model.ConversationRecord{}, err
	}
	if rec.ActorID != actor.ID && actor.Role != model.RoleSuperAdmin {
		return model.ConversationRecord{}, &registrystore.ForbiddenError{}
	}
	if rec.SharingLevel == level {
		return rec, nil
	}

	var sharedAt *time.Time
	if level == model.SharingOrganization {
		now := time.Now()
		sharedAt = &now
	}
	err = s.db.WithContext(ctx).Model(&model.ConversationRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{"sharing_level": level, "shared_at": sharedAt}).Error
	if err != nil {
		return model.ConversationRecord{}, err
	}
	rec.SharingLevel = level
	rec.SharedAt = sharedAt
	return rec, nil
}

func (s *PostgresStore) FindRecordsPendingEmbedding(ctx context.Context, limit int) ([]model.ConversationRecord, error) {
	var recs []model.ConversationRecord
	err := s.db.WithContext(ctx).
		Where("embedded_at IS NULL").
		Order("created_at").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (s *PostgresStore) SetEmbeddedAt(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&model.ConversationRecord{}).
		Where("id IN ?", ids).
		Update("embedded_at", at).Error
}

func (s *PostgresStore) GetProfile(ctx context.Context, actorID string) (model.Profile, error) {
	var p model.Profile
	err := s.db.WithContext(ctx).First(&p, "actor_id = ?", actorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Profile{}, &registrystore.NotFoundError{Resource: "profile", ID: actorID}
	}
	return p, err
}

func (s *PostgresStore) MergeProfileDelta(ctx context.Context, actorID string, delta model.ProfileDelta) (model.Profile, error) {
	if actorID == "" {
		return model.Profile{}, &registrystore.ValidationError{Field: "actorId", Message: "must not be empty"}
	}

	var merged model.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.Profile
		err := tx.First(&p, "actor_id = ?", actorID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p = model.Profile{
				ActorID:          actorID,
				Preferences:      map[string]string{},
				ImportantFacts:   []string{},
				TopicsOfInterest: []string{},
				CreatedAt:        time.Now(),
			}
		} else if err != nil {
			return err
		}

		p.ImportantFacts = unionStrings(p.ImportantFacts, delta.Facts)
		p.TopicsOfInterest = unionStrings(p.TopicsOfInterest, delta.Topics)
		if p.Preferences == nil {
			p.Preferences = map[string]string{}
		}
		for k, v := range delta.Preferences {
			p.Preferences[k] = v
		}
		p.UpdatedAt = time.Now()

		merged = p
		return tx.Save(&p).Error
	})
	return merged, err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// unionStrings appends the items not already present, preserving existing
// order so repeated merges are stable.
func unionStrings(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range added {
		if v == "" || seen[v] {
			continue
		}
		existing = append(existing, v)
		seen[v] = true
	}
	return existing
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ registrystore.MemoryStore = (*PostgresStore)(nil)
