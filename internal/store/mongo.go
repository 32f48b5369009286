package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/types"
)

// Collection names.
const (
	colContents     = "contents"
	colEvents       = "events"
	colEventSources = "event_sources"
	colEventItems   = "event_items"
	colAPIKeys      = "api_keys"
	colRunReports   = "run_reports"
	colSources      = "sources"
)

// Mongo bundles every store interface over one MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

var (
	_ ContentRepository = (*Mongo)(nil)
	_ ClusterStore      = clusterView{}
	_ KeyPool           = (*Mongo)(nil)
	_ ReportStore       = (*Mongo)(nil)
	_ SourceStore       = (*Mongo)(nil)
)

// NewMongo connects to MongoDB and ensures the indexes the queries rely on.
func NewMongo(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	m := &Mongo{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger.With("component", "mongo_store"),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	m.logger.Info("mongo store ready", "database", cfg.Database)
	return m, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		colContents: {
			{Keys: bson.D{{Key: "datasource_id", Value: 1}, {Key: "url_hash", Value: 1}, {Key: "fetched_at", Value: -1}}},
			{Keys: bson.D{{Key: "fetched_at", Value: 1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "day", Value: 1}, {Key: "hot_score", Value: -1}}},
		},
		colEventSources: {
			{Keys: bson.D{{Key: "event_id", Value: 1}}},
		},
		colEventItems: {
			{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "position", Value: 1}}},
		},
		colAPIKeys: {
			{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "active", Value: 1}, {Key: "last_used_at", Value: 1}}},
		},
		colRunReports: {
			{Keys: bson.D{{Key: "datasource_id", Value: 1}, {Key: "triggered_at", Value: -1}}},
		},
	}
	for col, models := range specs {
		if _, err := m.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("ensure indexes on %s: %w", col, err)
		}
	}
	return nil
}

// --- ContentRepository ---

func (m *Mongo) LatestByURLHash(ctx context.Context, dataSourceID int64, urlHash string) (*types.IngestedRecord, error) {
	filter := bson.M{"datasource_id": dataSourceID, "url_hash": urlHash}
	opts := options.FindOne().SetSort(bson.D{{Key: "fetched_at", Value: -1}})
	return m.findOneContent(ctx, filter, opts)
}

func (m *Mongo) ParentForDay(ctx context.Context, dataSourceID int64, urlHash string, dayStart, dayEnd time.Time) (*types.IngestedRecord, error) {
	filter := bson.M{
		"datasource_id":       dataSourceID,
		"url_hash":            urlHash,
		"extra.is_discovered": false,
		"fetched_at":          bson.M{"$gte": dayStart, "$lt": dayEnd},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "fetched_at", Value: -1}})
	return m.findOneContent(ctx, filter, opts)
}

func (m *Mongo) findOneContent(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*types.IngestedRecord, error) {
	var rec types.IngestedRecord
	err := m.db.Collection(colContents).FindOne(ctx, filter, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find content: %w", err)
	}
	return &rec, nil
}

func (m *Mongo) Insert(ctx context.Context, rec *types.IngestedRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = primitive.NewObjectID().Hex()
	}
	if _, err := m.db.Collection(colContents).InsertOne(ctx, rec); err != nil {
		return "", fmt.Errorf("insert content: %w", err)
	}
	return rec.ID, nil
}

func (m *Mongo) Overwrite(ctx context.Context, id string, rec *types.IngestedRecord) error {
	rec.ID = id
	res, err := m.db.Collection(colContents).ReplaceOne(ctx, bson.M{"_id": id}, rec)
	if err != nil {
		return fmt.Errorf("overwrite content %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("overwrite content %s: no such record", id)
	}
	return nil
}

func (m *Mongo) ListDay(ctx context.Context, dayStart, dayEnd time.Time) ([]*types.IngestedRecord, error) {
	filter := bson.M{"fetched_at": bson.M{"$gte": dayStart, "$lt": dayEnd}}
	opts := options.Find().SetSort(bson.D{{Key: "fetched_at", Value: -1}})
	cur, err := m.db.Collection(colContents).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list day contents: %w", err)
	}
	defer cur.Close(ctx)

	var recs []*types.IngestedRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode day contents: %w", err)
	}
	return recs, nil
}

// --- ClusterStore ---

func (m *Mongo) ReplaceDay(ctx context.Context, day string, bundles []*EventBundle) error {
	removed, err := m.deleteDay(ctx, day)
	if err != nil {
		return err
	}

	for _, b := range bundles {
		if b.Cluster.ID == "" {
			b.Cluster.ID = primitive.NewObjectID().Hex()
		}
		if _, err := m.db.Collection(colEvents).InsertOne(ctx, b.Cluster); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if len(b.Sources) > 0 {
			docs := make([]any, len(b.Sources))
			for i := range b.Sources {
				b.Sources[i].EventID = b.Cluster.ID
				docs[i] = b.Sources[i]
			}
			if _, err := m.db.Collection(colEventSources).InsertMany(ctx, docs); err != nil {
				return fmt.Errorf("insert event sources: %w", err)
			}
		}
		if len(b.Items) > 0 {
			docs := make([]any, len(b.Items))
			for i := range b.Items {
				b.Items[i].EventID = b.Cluster.ID
				docs[i] = b.Items[i]
			}
			if _, err := m.db.Collection(colEventItems).InsertMany(ctx, docs); err != nil {
				return fmt.Errorf("insert event items: %w", err)
			}
		}
	}

	m.logger.Info("day clusters replaced", "day", day, "removed", removed, "written", len(bundles))
	return nil
}

// DeleteDay clears the day's clusters, sources and items.
func (m *Mongo) DeleteDay(ctx context.Context, day string) error {
	removed, err := m.deleteDay(ctx, day)
	if err == nil {
		m.logger.Info("day clusters deleted", "day", day, "removed", removed)
	}
	return err
}

// deleteDay removes the day's clusters along with their sources and items,
// returning how many clusters were dropped.
func (m *Mongo) deleteDay(ctx context.Context, day string) (int, error) {
	cur, err := m.db.Collection(colEvents).Find(ctx, bson.M{"day": day},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, fmt.Errorf("list day events: %w", err)
	}
	var existing []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &existing); err != nil {
		return 0, fmt.Errorf("decode day event ids: %w", err)
	}
	if len(existing) == 0 {
		return 0, nil
	}

	ids := make([]string, len(existing))
	for i, e := range existing {
		ids[i] = e.ID
	}
	inIDs := bson.M{"event_id": bson.M{"$in": ids}}
	if _, err := m.db.Collection(colEventItems).DeleteMany(ctx, inIDs); err != nil {
		return 0, fmt.Errorf("delete day event items: %w", err)
	}
	if _, err := m.db.Collection(colEventSources).DeleteMany(ctx, inIDs); err != nil {
		return 0, fmt.Errorf("delete day event sources: %w", err)
	}
	if _, err := m.db.Collection(colEvents).DeleteMany(ctx, bson.M{"day": day}); err != nil {
		return 0, fmt.Errorf("delete day events: %w", err)
	}
	return len(existing), nil
}

// ListDayClusters returns the day's clusters, hottest first. The name is
// distinct because ListDay already belongs to the content side; the
// ClusterStore interface is satisfied through Clusters().
func (m *Mongo) ListDayClusters(ctx context.Context, day string) ([]types.EventCluster, error) {
	opts := options.Find().SetSort(bson.D{{Key: "hot_score", Value: -1}})
	cur, err := m.db.Collection(colEvents).Find(ctx, bson.M{"day": day}, opts)
	if err != nil {
		return nil, fmt.Errorf("list day clusters: %w", err)
	}
	var clusters []types.EventCluster
	if err := cur.All(ctx, &clusters); err != nil {
		return nil, fmt.Errorf("decode day clusters: %w", err)
	}
	return clusters, nil
}

// Clusters returns the ClusterStore view of this store.
func (m *Mongo) Clusters() ClusterStore { return clusterView{m} }

type clusterView struct{ m *Mongo }

func (v clusterView) ReplaceDay(ctx context.Context, day string, bundles []*EventBundle) error {
	return v.m.ReplaceDay(ctx, day, bundles)
}

func (v clusterView) ListDay(ctx context.Context, day string) ([]types.EventCluster, error) {
	return v.m.ListDayClusters(ctx, day)
}

func (v clusterView) DeleteDay(ctx context.Context, day string) error {
	return v.m.DeleteDay(ctx, day)
}

// --- KeyPool ---

func (m *Mongo) Pick(ctx context.Context, provider string) (*APIKey, error) {
	filter := bson.M{"provider": provider, "active": true}
	update := bson.M{
		"$set": bson.M{"last_used_at": time.Now().UTC()},
		"$inc": bson.M{"use_count": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "last_used_at", Value: 1}}).
		SetReturnDocument(options.After)

	var key APIKey
	err := m.db.Collection(colAPIKeys).FindOneAndUpdate(ctx, filter, update, opts).Decode(&key)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("provider %s: %w", provider, types.ErrKeyPoolEmpty)
	}
	if err != nil {
		return nil, fmt.Errorf("pick api key: %w", err)
	}
	return &key, nil
}

// --- ReportStore ---

func (m *Mongo) Append(ctx context.Context, report *types.RunReport) error {
	if report.ID == "" {
		report.ID = primitive.NewObjectID().Hex()
	}
	col := m.db.Collection(colRunReports)
	if _, err := col.InsertOne(ctx, report); err != nil {
		return fmt.Errorf("append run report: %w", err)
	}

	// Trim the ring: drop everything beyond the newest maxReportsPerSource.
	opts := options.Find().
		SetSort(bson.D{{Key: "triggered_at", Value: -1}}).
		SetSkip(maxReportsPerSource).
		SetProjection(bson.M{"_id": 1})
	cur, err := col.Find(ctx, bson.M{"datasource_id": report.DataSourceID}, opts)
	if err != nil {
		return fmt.Errorf("trim run reports: %w", err)
	}
	var stale []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &stale); err != nil {
		return fmt.Errorf("decode stale reports: %w", err)
	}
	if len(stale) > 0 {
		ids := make([]string, len(stale))
		for i, s := range stale {
			ids[i] = s.ID
		}
		if _, err := col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
			return fmt.Errorf("delete stale reports: %w", err)
		}
	}
	return nil
}

func (m *Mongo) Recent(ctx context.Context, dataSourceID int64) ([]*types.RunReport, error) {
	opts := options.Find().SetSort(bson.D{{Key: "triggered_at", Value: -1}})
	cur, err := m.db.Collection(colRunReports).Find(ctx, bson.M{"datasource_id": dataSourceID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list run reports: %w", err)
	}
	var reports []*types.RunReport
	if err := cur.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("decode run reports: %w", err)
	}
	return reports, nil
}

// --- SourceStore ---

func (m *Mongo) UpdateRunTimes(ctx context.Context, dataSourceID int64, lastRun, nextRun time.Time) error {
	update := bson.M{"$set": bson.M{"last_run_at": lastRun, "next_run_at": nextRun}}
	opts := options.Update().SetUpsert(true)
	if _, err := m.db.Collection(colSources).UpdateOne(ctx, bson.M{"_id": dataSourceID}, update, opts); err != nil {
		return fmt.Errorf("update run times for source %d: %w", dataSourceID, err)
	}
	return nil
}
