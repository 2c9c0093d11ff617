package surreal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/vectorstore"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
)

const (
	registryTable = "vs_collection"
	tablePrefix   = "vs_"

	// knnEffort is the HNSW ef parameter used for queries.
	knnEffort = 40
)

const registrySQL = `
DEFINE TABLE IF NOT EXISTS vs_collection SCHEMALESS;
DEFINE INDEX IF NOT EXISTS vs_collection_name ON vs_collection FIELDS name UNIQUE;
`

const collectionSQLTemplate = `
DEFINE TABLE IF NOT EXISTS %[1]s SCHEMALESS;
DEFINE INDEX IF NOT EXISTS %[1]s_embedding ON %[1]s FIELDS embedding HNSW DIMENSION %[2]d DIST COSINE TYPE F32;
`

// Store is a vectorstore.Store backed by SurrealDB.
type Store struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	logger *slog.Logger
}

var _ vectorstore.Store = (*Store)(nil)

type collectionRow struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
}

type objectRow struct {
	ID         string                 `json:"id"`
	Properties vectorstore.Properties `json:"properties"`
	Embedding  []float32              `json:"embedding"`
	Distance   float64                `json:"distance"`
}

type objectInput struct {
	ID         string                 `json:"id"`
	Properties vectorstore.Properties `json:"properties"`
	Embedding  []float32              `json:"embedding"`
}

// Open connects to SurrealDB and prepares the collection registry.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, db, err := connect(ctx, cfg, log)
	if err != nil {
		return nil, core.ExternalServiceError("surrealdb", err)
	}

	s := &Store{conn: conn, db: db, logger: log.With("component", "surreal-vectorstore")}
	if _, err := surrealdb.Query[any](ctx, db, registrySQL, nil); err != nil {
		_ = conn.Close(ctx)
		return nil, wrapQueryError("init registry", err)
	}
	return s, nil
}

// tableName maps a collection to its table, rejecting names that would need escaping.
func tableName(collection string) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidCollectionName)
	}
	for _, r := range collection {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return "", fmt.Errorf("%w: %q", ErrInvalidCollectionName, collection)
		}
	}
	return tablePrefix + collection, nil
}

// collection loads the registry entry for name.
func (s *Store) collection(ctx context.Context, name string) (*collectionRow, error) {
	results, err := surrealdb.Query[[]collectionRow](ctx, s.db,
		`SELECT name, dimension FROM type::record("vs_collection", $name)`,
		map[string]any{"name": name})
	if err != nil {
		return nil, wrapQueryError("get collection", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, name)
	}
	return &(*results)[0].Result[0], nil
}

// EnsureCollection defines the collection table and its vector index.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimension int) error {
	table, err := tableName(name)
	if err != nil {
		return err
	}
	if dimension < 1 {
		return core.ValidationError("dimension must be positive, got %d", dimension)
	}

	if existing, err := s.collection(ctx, name); err == nil {
		return fmt.Errorf("%w: %s (dimension %d)", vectorstore.ErrCollectionExists, name, existing.Dimension)
	} else if !errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return err
	}

	if _, err := surrealdb.Query[any](ctx, s.db, fmt.Sprintf(collectionSQLTemplate, table, dimension), nil); err != nil {
		return wrapQueryError("define collection", err)
	}
	if _, err := surrealdb.Query[any](ctx, s.db,
		`CREATE type::record("vs_collection", $name) SET name = $name, dimension = $dimension, created_at = time::now()`,
		map[string]any{"name": name, "dimension": dimension}); err != nil {
		return wrapQueryError("register collection", err)
	}

	s.logger.Info("created collection", "collection", name, "dimension", dimension)
	return nil
}

// InsertBatch upserts objects in one transaction.
func (s *Store) InsertBatch(ctx context.Context, collection string, objects []vectorstore.Object) (int, error) {
	table, err := tableName(collection)
	if err != nil {
		return 0, err
	}
	info, err := s.collection(ctx, collection)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, nil
	}

	inputs := make([]objectInput, len(objects))
	for i, obj := range objects {
		if len(obj.Vector) != info.Dimension {
			return 0, fmt.Errorf("%w: object %d has %d values, collection %s expects %d",
				vectorstore.ErrDimensionMismatch, i, len(obj.Vector), collection, info.Dimension)
		}
		id := obj.ID
		if id == "" {
			id = vectorstore.NewObjectID()
		}
		inputs[i] = objectInput{ID: id, Properties: obj.Properties, Embedding: obj.Vector}
	}

	sql := `
		BEGIN TRANSACTION;
		FOR $o IN $objects {
			UPSERT type::record($tb, $o.id) CONTENT {
				properties: $o.properties,
				embedding: $o.embedding
			};
		};
		COMMIT TRANSACTION;
	`
	if _, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{"tb": table, "objects": inputs}); err != nil {
		return 0, wrapQueryError("insert batch", err)
	}
	return len(inputs), nil
}

// Query returns the nearest objects by cosine distance.
func (s *Store) Query(ctx context.Context, collection string, vector []float32, limit int) ([]vectorstore.Match, error) {
	table, err := tableName(collection)
	if err != nil {
		return nil, err
	}
	info, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != info.Dimension {
		return nil, fmt.Errorf("%w: query has %d values, collection %s expects %d",
			vectorstore.ErrDimensionMismatch, len(vector), collection, info.Dimension)
	}
	if limit < 1 {
		return []vectorstore.Match{}, nil
	}

	sql := fmt.Sprintf(`
		SELECT meta::id(id) AS id, properties, embedding, vector::distance::knn() AS distance
		FROM type::table($tb)
		WHERE embedding <|%d,%d|> $vec
		ORDER BY distance
	`, limit, knnEffort)

	results, err := surrealdb.Query[[]objectRow](ctx, s.db, sql, map[string]any{"tb": table, "vec": vector})
	if err != nil {
		return nil, wrapQueryError("query", err)
	}
	if results == nil || len(*results) == 0 {
		return []vectorstore.Match{}, nil
	}

	rows := (*results)[0].Result
	matches := make([]vectorstore.Match, len(rows))
	for i, row := range rows {
		matches[i] = vectorstore.Match{
			Object: vectorstore.Object{
				ID:         row.ID,
				Vector:     row.Embedding,
				Properties: row.Properties,
			},
			Distance: float32(row.Distance),
		}
	}
	return matches, nil
}

// ListObjectIDs returns every object id in a collection.
func (s *Store) ListObjectIDs(ctx context.Context, collection string) ([]string, error) {
	table, err := tableName(collection)
	if err != nil {
		return nil, err
	}
	if _, err := s.collection(ctx, collection); err != nil {
		return nil, err
	}

	results, err := surrealdb.Query[[]string](ctx, s.db,
		`SELECT VALUE meta::id(id) FROM type::table($tb)`,
		map[string]any{"tb": table})
	if err != nil {
		return nil, wrapQueryError("list objects", err)
	}
	if results == nil || len(*results) == 0 {
		return []string{}, nil
	}
	ids := (*results)[0].Result
	sort.Strings(ids)
	return ids, nil
}

// DeleteObject removes one object. Missing objects are ignored.
func (s *Store) DeleteObject(ctx context.Context, collection, id string) error {
	table, err := tableName(collection)
	if err != nil {
		return err
	}
	if _, err := surrealdb.Query[any](ctx, s.db,
		`DELETE type::record($tb, $id)`,
		map[string]any{"tb": table, "id": id}); err != nil {
		return wrapQueryError("delete object", err)
	}
	return nil
}

// Stats counts the objects of every registered collection, ordered by name.
func (s *Store) Stats(ctx context.Context) ([]vectorstore.CollectionStats, error) {
	results, err := surrealdb.Query[[]collectionRow](ctx, s.db,
		`SELECT name, dimension FROM vs_collection ORDER BY name`, nil)
	if err != nil {
		return nil, wrapQueryError("list collections", err)
	}
	if results == nil || len(*results) == 0 {
		return []vectorstore.CollectionStats{}, nil
	}

	stats := make([]vectorstore.CollectionStats, 0, len((*results)[0].Result))
	for _, c := range (*results)[0].Result {
		table, err := tableName(c.Name)
		if err != nil {
			s.logger.Warn("skipping collection with invalid name", "collection", c.Name)
			continue
		}
		counts, err := surrealdb.Query[[]struct{ C int }](ctx, s.db,
			`SELECT count() AS c FROM type::table($tb) GROUP ALL`,
			map[string]any{"tb": table})
		if err != nil {
			return nil, wrapQueryError("count objects", err)
		}
		count := 0
		if counts != nil && len(*counts) > 0 && len((*counts)[0].Result) > 0 {
			count = (*counts)[0].Result[0].C
		}
		stats = append(stats, vectorstore.CollectionStats{Name: c.Name, Dimension: c.Dimension, ObjectCount: count})
	}
	return stats, nil
}

// Ping runs a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, s.db, `RETURN true`, nil); err != nil {
		return wrapQueryError("ping", err)
	}
	return nil
}

// Close closes the connection.
func (s *Store) Close() error {
	s.logger.Info("closing SurrealDB connection")
	return s.conn.Close(context.Background())
}
