package repo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/passwordreset/entity"
)

// purgeAfterExpiry keeps expired tokens around long enough that a late use
// still reports expiry instead of an unknown token.
const purgeAfterExpiry = 24 * time.Hour

type MongoRepo struct {
	coll *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{coll: db.Collection("password_reset_tokens")}
}

// EnsureIndexes creates the token lookup index, the one-per-user index and a
// TTL index for housekeeping.
func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_token")},
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_user_id")},
		{
			Keys:    bson.D{{Key: "expiry_date", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(purgeAfterExpiry.Seconds())).SetName("ttl_expiry_date"),
		},
	})
	return err
}

func (r *MongoRepo) Save(ctx context.Context, t *entity.ResetToken) error {
	// _id is immutable, so a token already held by the user keeps its id and
	// only the grant fields are overwritten.
	update := bson.M{
		"$set": bson.M{
			"token":       t.Token,
			"expiry_date": t.ExpiryDate,
			"created_at":  t.CreatedAt,
		},
		"$setOnInsert": bson.M{"_id": t.ID},
	}
	_, err := r.coll.UpdateOne(ctx, bson.M{"user_id": t.UserID}, update, options.Update().SetUpsert(true))
	return err
}

func (r *MongoRepo) Consume(ctx context.Context, token string) (*entity.ResetToken, error) {
	var t entity.ResetToken
	if err := r.coll.FindOneAndDelete(ctx, bson.M{"token": token}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *MongoRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}
