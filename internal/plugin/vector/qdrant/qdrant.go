package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/yanthraa/chat-memory/internal/config"
	"github.com/yanthraa/chat-memory/internal/model"
	registrymigrate "github.com/yanthraa/chat-memory/internal/registry/migrate"
	registryvector "github.com/yanthraa/chat-memory/internal/registry/vector"
	"github.com/yanthraa/chat-memory/internal/scope"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// qdrantMigrator implements migrate.Migrator for Qdrant collection setup.
type qdrantMigrator struct{}

func (m *qdrantMigrator) Name() string { return "qdrant" }
func (m *qdrantMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorType != "qdrant" || !cfg.VectorMigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()

	client := pb.NewCollectionsClient(conn)
	collectionName := cfg.QdrantCollectionName

	// Check if collection exists
	_, err = client.Get(migrateCtx, &pb.GetCollectionInfoRequest{CollectionName: collectionName})
	if err == nil {
		return nil // collection exists
	}

	// Create collection with cosine distance
	_, err = client.Create(migrateCtx, &pb.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     effectiveEmbeddingDimension(cfg),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 newUint64(16),
			EfConstruct:       newUint64(64),
			FullScanThreshold: newUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: create collection: %w", err)
	}
	log.Info("Created Qdrant collection", "name", collectionName)
	return nil
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "qdrant",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &qdrantMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &QdrantStore{
		points:         pb.NewPointsClient(conn),
		conn:           conn,
		collectionName: cfg.QdrantCollectionName,
	}, nil
}

// QdrantStore implements VectorStore against a Qdrant collection. Visibility
// fields are mirrored into point payloads; sharing transitions are pushed to
// the payload so the scope filter stays accurate.
type QdrantStore struct {
	points         pb.PointsClient
	conn           *grpc.ClientConn
	collectionName string
}

func (s *QdrantStore) IsEnabled() bool { return true }
func (s *QdrantStore) Name() string    { return "qdrant" }

func (s *QdrantStore) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	if req.Scope.Kind == scope.KindNone {
		return nil, nil
	}

	filter := &pb.Filter{
		MustNot: []*pb.Condition{keywordCondition("chat_id", req.ExcludeChatID)},
	}
	if sf := scopeFilter(req.Scope); sf != nil {
		filter.Must = []*pb.Condition{nestedCondition(sf)}
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collectionName,
		Vector:         req.Embedding,
		Limit:          uint64(req.Limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         filter,
	})
	if err != nil {
		return nil, err
	}

	var results []registryvector.SearchResult
	for _, pt := range resp.GetResult() {
		r := registryvector.SearchResult{
			Score: float64(pt.GetScore()),
		}
		payload := pt.GetPayload()
		if v, ok := payload["record_id"]; ok {
			if id, err := uuid.Parse(v.GetStringValue()); err == nil {
				r.RecordID = id
			}
		}
		if v, ok := payload["chat_id"]; ok {
			r.ChatID = v.GetStringValue()
		}
		results = append(results, r)
	}
	return results, nil
}

// scopeFilter translates a visibility scope into a Qdrant payload filter:
// an OR of per-clause AND filters matching exactly the reference predicate.
// Nil means unrestricted.
func scopeFilter(s scope.Scope) *pb.Filter {
	switch s.Kind {
	case scope.KindAll:
		return nil
	case scope.KindTeamLead:
		return &pb.Filter{
			Should: []*pb.Condition{
				keywordCondition("actor_id", s.ActorID),
				nestedCondition(&pb.Filter{Must: []*pb.Condition{
					keywordCondition("organization_id", s.OrganizationID),
					keywordCondition("team_id", s.TeamID),
				}}),
				nestedCondition(&pb.Filter{Must: []*pb.Condition{
					keywordCondition("organization_id", s.OrganizationID),
					keywordCondition("sharing_level", string(model.SharingOrganization)),
				}}),
			},
		}
	case scope.KindMember:
		return &pb.Filter{
			Should: []*pb.Condition{
				keywordCondition("actor_id", s.ActorID),
				nestedCondition(&pb.Filter{Must: []*pb.Condition{
					keywordCondition("organization_id", s.OrganizationID),
					keywordCondition("sharing_level", string(model.SharingOrganization)),
				}}),
			},
		}
	default:
		// KindNone is rejected before search.
		return &pb.Filter{Must: []*pb.Condition{keywordCondition("record_id", "")}}
	}
}

func (s *QdrantStore) Upsert(ctx context.Context, records []registryvector.UpsertRequest) error {
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: r.RecordID.String()}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"record_id":       stringValue(r.RecordID.String()),
				"chat_id":         stringValue(r.ChatID),
				"actor_id":        stringValue(r.ActorID),
				"organization_id": stringValue(r.OrganizationID),
				"team_id":         stringValue(r.TeamID),
				"sharing_level":   stringValue(string(r.SharingLevel)),
				"model":           stringValue(r.ModelName),
			},
		}
	}
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         points,
	})
	return err
}

// SetSharingLevel rewrites the sharing_level payload field of the record's
// point so subsequent scope filters see the new visibility.
func (s *QdrantStore) SetSharingLevel(ctx context.Context, recordID uuid.UUID, level model.SharingLevel) error {
	_, err := s.points.SetPayload(ctx, &pb.SetPayloadPoints{
		CollectionName: s.collectionName,
		Payload: map[string]*pb.Value{
			"sharing_level": stringValue(string(level)),
		},
		PointsSelector: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: recordID.String()}}},
				},
			},
		},
	})
	return err
}

func (s *QdrantStore) DeleteByRecordID(ctx context.Context, recordID uuid.UUID) error {
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: recordID.String()}}},
				},
			},
		},
	})
	return err
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func nestedCondition(f *pb.Filter) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Filter{Filter: f}}
}

func stringValue(v string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
}

func newUint64(v uint64) *uint64 {
	return &v
}

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

func effectiveEmbeddingDimension(cfg *config.Config) uint64 {
	if cfg == nil {
		return 1536
	}
	if cfg.OpenAIDimensions > 0 {
		return uint64(cfg.OpenAIDimensions)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.EmbedType)) {
	case "local":
		return 384
	default:
		return 1536
	}
}

var _ registryvector.VectorStore = (*QdrantStore)(nil)
