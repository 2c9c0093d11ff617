package surreal

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	containerOnce sync.Once
	containerURL  string
	containerErr  error
)

// surrealURL starts one SurrealDB container for the package and returns its RPC URL.
func surrealURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping SurrealDB integration test in short mode")
	}

	containerOnce.Do(func() {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
		ctx := context.Background()

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
				ExposedPorts: []string{"8000/tcp"},
				Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
				WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
			},
			Started: true,
		})
		if err != nil {
			containerErr = err
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			containerErr = err
			return
		}
		if host == "" || host == "null" {
			host = "localhost"
		}
		port, err := container.MappedPort(ctx, "8000")
		if err != nil {
			containerErr = err
			return
		}
		containerURL = fmt.Sprintf("ws://%s:%s/rpc", host, port.Port())
	})

	if containerErr != nil {
		t.Skipf("SurrealDB container unavailable: %v", containerErr)
	}
	return containerURL
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := surrealURL(t)
	ctx := context.Background()

	store, err := Open(ctx, Config{
		URL:       url,
		Namespace: "test",
		Database:  fmt.Sprintf("db_%d", time.Now().UnixNano()),
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTableName(t *testing.T) {
	name, err := tableName("docs_2025")
	require.NoError(t, err)
	assert.Equal(t, "vs_docs_2025", name)

	for _, bad := range []string{"", "docs-1", "a b", "x;DROP", "ü"} {
		_, err := tableName(bad)
		assert.ErrorIs(t, err, ErrInvalidCollectionName, bad)
		assert.ErrorIs(t, err, core.ErrValidation, bad)
	}
}

func TestStore_Lifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.EnsureCollection(ctx, "docs", 3))
	assert.ErrorIs(t, store.EnsureCollection(ctx, "docs", 3), vectorstore.ErrCollectionExists)

	n, err := store.InsertBatch(ctx, "docs", []vectorstore.Object{
		{ID: "first", Vector: []float32{1, 0, 0}, Properties: vectorstore.Properties{Title: "First", URL: "https://a"}},
		{ID: "second", Vector: []float32{0.9, 0.1, 0}, Properties: vectorstore.Properties{Title: "Second"}},
		{ID: "third", Vector: []float32{0, 0, 1}, Properties: vectorstore.Properties{Title: "Third"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	matches, err := store.Query(ctx, "docs", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].Object.ID)
	assert.Equal(t, "First", matches[0].Object.Properties.Title)
	assert.Equal(t, "second", matches[1].Object.ID)

	_, err = store.InsertBatch(ctx, "docs", []vectorstore.Object{{ID: "bad", Vector: []float32{1}}})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	ids, err := store.ListObjectIDs(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, ids)

	require.NoError(t, store.DeleteObject(ctx, "docs", "first"))
	require.NoError(t, store.DeleteObject(ctx, "docs", "missing"))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, vectorstore.CollectionStats{Name: "docs", Dimension: 3, ObjectCount: 2}, stats[0])
}

func TestStore_WithUploader(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	uploader, err := vectorstore.NewUploader(store, vectorstore.WithBatchSize(10))
	require.NoError(t, err)

	objects := make([]vectorstore.Object, 12)
	for i := range objects {
		objects[i] = vectorstore.Object{ID: vectorstore.NewObjectID(), Vector: []float32{float32(i + 1), 1}}
	}
	result, err := uploader.Upload(ctx, "pages", objects)
	require.NoError(t, err)
	assert.Equal(t, 12, result.Uploaded)
	assert.Equal(t, 2, result.Batches)

	cleared, err := uploader.Clear(ctx, "pages")
	require.NoError(t, err)
	assert.Equal(t, 12, cleared.DeletedCount)
}

func TestStore_MissingCollection(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.InsertBatch(ctx, "nothing", []vectorstore.Object{{Vector: []float32{1}}})
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	_, err = store.Query(ctx, "nothing", []float32{1}, 1)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}
