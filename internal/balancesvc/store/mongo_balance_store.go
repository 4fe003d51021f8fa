package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/balance-services/internal/balancesvc/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const balanceCollection = "player_balances"

// balanceDoc keys the document by the user so inserts of an existing player
// fail on the _id index. Single-document writes are atomic in MongoDB, which
// is the unit of work this table needs.
type balanceDoc struct {
	User    string               `bson:"_id"`
	Balance primitive.Decimal128 `bson:"balance"`
}

type MongoBalanceStore struct {
	coll *mongo.Collection
}

func NewMongoBalanceStore(db *mongo.Database) *MongoBalanceStore {
	return &MongoBalanceStore{coll: db.Collection(balanceCollection)}
}

func (s *MongoBalanceStore) EnsureSchema(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "balance", Value: -1}, {Key: "_id", Value: 1}},
	}
	if _, err := s.coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("ensure balance index: %w", err)
	}
	return nil
}

func (s *MongoBalanceStore) SelectAll(ctx context.Context) ([]models.StoredBalance, error) {
	cur, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("select all balances: %w", err)
	}
	return decodeBalances(ctx, cur)
}

func (s *MongoBalanceStore) Select(ctx context.Context, user uuid.UUID) (models.StoredBalance, bool, error) {
	var doc balanceDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": user.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.StoredBalance{}, false, nil
	}
	if err != nil {
		return models.StoredBalance{}, false, fmt.Errorf("select balance %s: %w", user, err)
	}

	b, err := fromBalanceDoc(doc)
	if err != nil {
		return models.StoredBalance{}, false, err
	}
	return b, true, nil
}

func (s *MongoBalanceStore) Insert(ctx context.Context, b models.StoredBalance) error {
	doc, err := toBalanceDoc(b)
	if err != nil {
		return err
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateUser, b.User)
		}
		return fmt.Errorf("insert balance %s: %w", b.User, err)
	}
	return nil
}

func (s *MongoBalanceStore) Upsert(ctx context.Context, b models.StoredBalance) error {
	doc, err := toBalanceDoc(b)
	if err != nil {
		return err
	}

	_, err = s.coll.UpdateOne(ctx,
		bson.M{"_id": doc.User},
		bson.M{"$set": bson.M{"balance": doc.Balance}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("update balance %s: %w", b.User, err)
	}
	return nil
}

func (s *MongoBalanceStore) SelectTop(ctx context.Context, n int) ([]models.StoredBalance, error) {
	if n <= 0 {
		return nil, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "balance", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(n))

	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("select top balances: %w", err)
	}
	return decodeBalances(ctx, cur)
}

func decodeBalances(ctx context.Context, cur *mongo.Cursor) ([]models.StoredBalance, error) {
	var docs []balanceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode balances: %w", err)
	}

	balances := make([]models.StoredBalance, 0, len(docs))
	for _, doc := range docs {
		b, err := fromBalanceDoc(doc)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, nil
}

func toBalanceDoc(b models.StoredBalance) (balanceDoc, error) {
	d, err := primitive.ParseDecimal128(b.Balance.String())
	if err != nil {
		return balanceDoc{}, fmt.Errorf("balance %s for %s does not fit decimal128: %w", b.Balance, b.User, err)
	}
	return balanceDoc{User: b.User.String(), Balance: d}, nil
}

func fromBalanceDoc(doc balanceDoc) (models.StoredBalance, error) {
	id, err := uuid.Parse(doc.User)
	if err != nil {
		return models.StoredBalance{}, fmt.Errorf("parse balance user %q: %w", doc.User, err)
	}
	amount, err := decimal.NewFromString(doc.Balance.String())
	if err != nil {
		return models.StoredBalance{}, fmt.Errorf("parse balance for %s: %w", id, err)
	}
	return models.NewStoredBalance(id, amount), nil
}
