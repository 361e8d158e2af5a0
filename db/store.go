package db

import (
	"context"
	"strings"

	"github.com/evergreen-ci/rowan"
	"github.com/evergreen-ci/rowan/model"
	"github.com/mongodb/anser/bsonutil"
	adb "github.com/mongodb/anser/db"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// rowDoc is the stored shape of a row. The ledger rides along inside
// the document itself, so fetching and upgrading a row stays a
// single-document operation with no side table to keep consistent.
type rowDoc struct {
	ID              any            `bson:"_id" json:"id"`
	AppliedUpgrades []string       `bson:"applied_upgrades,omitempty" json:"applied_upgrades,omitempty"`
	Fields          model.Document `bson:",inline"`
}

var (
	idKey              = bsonutil.MustHaveTag(rowDoc{}, "ID")
	appliedUpgradesKey = bsonutil.MustHaveTag(rowDoc{}, "AppliedUpgrades")
)

func (d rowDoc) row() model.Row {
	return model.Row{
		ID:              d.ID,
		AppliedUpgrades: d.AppliedUpgrades,
		Fields:          d.Fields,
	}
}

// Store reads and writes one entity's rows in a MongoDB collection.
type Store struct {
	collection *mongo.Collection
}

var _ rowan.Store = (*Store)(nil)

// NewStore binds a store to the named collection of the database.
func NewStore(database *mongo.Database, collection string) *Store {
	return &Store{collection: database.Collection(collection)}
}

// RowsMissingUpgrade returns up to limit rows whose ledgers do not
// name the upgrade, in _id order.
func (s *Store) RowsMissingUpgrade(ctx context.Context, upgrade string, limit int) ([]model.Row, error) {
	return s.find(ctx, missingUpgradeQuery(upgrade), limit)
}

// RowsWithUpgrade returns up to limit rows whose ledgers name the
// upgrade, in _id order.
func (s *Store) RowsWithUpgrade(ctx context.Context, upgrade string, limit int) ([]model.Row, error) {
	return s.find(ctx, withUpgradeQuery(upgrade), limit)
}

// ScanRows pages through the collection in _id order, returning up to
// limit rows with ids strictly greater than lastID. A nil lastID
// starts from the beginning.
func (s *Store) ScanRows(ctx context.Context, lastID any, limit int) ([]model.Row, error) {
	return s.find(ctx, scanQuery(lastID), limit)
}

func (s *Store) find(ctx context.Context, query bson.M, limit int) ([]model.Row, error) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("rowan.collection", s.collection.Name()),
	)

	opts := options.Find().SetSort(bson.D{{Key: idKey, Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "finding rows in '%s'", s.collection.Name())
	}

	docs := []rowDoc{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrapf(err, "decoding rows from '%s'", s.collection.Name())
	}

	rows := make([]model.Row, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, doc.row())
	}
	return rows, nil
}

// FindID fetches one stored row by id, returning the row as written
// without resolving any pending upgrades. Wrap the store in an
// EffectiveFinder to read upgraded rows. A missing row reports
// not-found in a form ResultsNotFound recognizes.
func (s *Store) FindID(ctx context.Context, id any) (model.Row, error) {
	res := s.collection.FindOne(ctx, bson.D{{Key: idKey, Value: id}})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Row{}, adb.ErrNotFound
		}
		return model.Row{}, errors.Wrapf(err, "finding row '%v' in '%s'", id, s.collection.Name())
	}

	doc := rowDoc{}
	if err := res.Decode(&doc); err != nil {
		return model.Row{}, errors.Wrapf(err, "decoding row '%v'", id)
	}
	return doc.row(), nil
}

// UpdateRow applies a patch to one row. A row deleted since it was
// fetched is not an error; the sweep just moves past it.
func (s *Store) UpdateRow(ctx context.Context, id any, patch model.Patch) error {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("rowan.collection", s.collection.Name()),
	)

	update, err := updateDoc(patch)
	if err != nil {
		return errors.Wrapf(err, "building update for row '%v'", id)
	}

	_, err = s.collection.UpdateOne(ctx, bson.D{{Key: idKey, Value: id}}, update)
	return errors.Wrapf(err, "updating row '%v' in '%s'", id, s.collection.Name())
}

func missingUpgradeQuery(upgrade string) bson.M {
	return bson.M{appliedUpgradesKey: bson.M{"$ne": upgrade}}
}

func withUpgradeQuery(upgrade string) bson.M {
	return bson.M{appliedUpgradesKey: upgrade}
}

func scanQuery(lastID any) bson.M {
	if lastID == nil {
		return bson.M{}
	}
	return bson.M{idKey: bson.M{"$gt": lastID}}
}

// updateDoc renders a patch as a MongoDB update document. Patches
// write whole top-level fields, never operators, so every key is
// checked before it reaches the database.
func updateDoc(patch model.Patch) (bson.M, error) {
	if patch.IsZero() {
		return nil, errors.New("patch has no effect")
	}

	catcher := grip.NewBasicCatcher()
	set := bson.M{}
	for key, value := range patch.Set {
		catcher.Add(checkFieldKey(key))
		set[key] = value
	}
	unset := bson.M{}
	for _, key := range patch.Unset {
		catcher.Add(checkFieldKey(key))
		unset[key] = 1
	}
	if catcher.HasErrors() {
		return nil, catcher.Resolve()
	}

	if patch.Ledger != nil {
		set[appliedUpgradesKey] = patch.Ledger
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update, nil
}

func checkFieldKey(key string) error {
	switch {
	case key == "":
		return errors.New("patch keys cannot be empty")
	case strings.HasPrefix(key, "$"):
		return errors.Errorf("patch key '%s' cannot start with '$'", key)
	case key == idKey, key == appliedUpgradesKey:
		return errors.Errorf("patch key '%s' is reserved", key)
	}
	return nil
}
