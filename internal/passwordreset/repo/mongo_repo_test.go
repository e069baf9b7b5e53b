package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/passwordreset/entity"
)

func sampleToken() *entity.ResetToken {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return &entity.ResetToken{
		ID:         "1790000000000000001",
		Token:      "3f1c2a9e-6f1d-4a53-9c1e-2f0e8b7d5a11",
		UserID:     "u1",
		ExpiryDate: now.Add(time.Hour),
		CreatedAt:  now,
	}
}

func TestMongoRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("save upserts on user id and keeps _id", func(mt *mtest.T) {
		tok := sampleToken()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		require.NoError(mt, NewMongoRepo(mt.DB).Save(ctx, tok))

		ev := mt.GetStartedEvent()
		require.NotNil(mt, ev)
		assert.Equal(mt, "update", ev.CommandName)
		stmt := ev.Command.Lookup("updates", "0").Document()
		assert.Equal(mt, "u1", stmt.Lookup("q", "user_id").StringValue())
		assert.True(mt, stmt.Lookup("upsert").Boolean())
		assert.Equal(mt, tok.Token, stmt.Lookup("u", "$set", "token").StringValue())
		assert.Equal(mt, tok.ID, stmt.Lookup("u", "$setOnInsert", "_id").StringValue())
		_, err := stmt.LookupErr("u", "$set", "_id")
		assert.Error(mt, err, "_id must only be written on insert")
	})

	mt.Run("consume deletes and returns the token", func(mt *mtest.T) {
		tok := sampleToken()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: tok.ID},
			{Key: "token", Value: tok.Token},
			{Key: "user_id", Value: tok.UserID},
			{Key: "expiry_date", Value: tok.ExpiryDate},
			{Key: "created_at", Value: tok.CreatedAt},
		}}))

		got, err := NewMongoRepo(mt.DB).Consume(ctx, tok.Token)
		require.NoError(mt, err)
		assert.Equal(mt, tok.ID, got.ID)
		assert.Equal(mt, tok.UserID, got.UserID)
		assert.True(mt, got.ExpiryDate.Equal(tok.ExpiryDate))

		ev := mt.GetStartedEvent()
		require.NotNil(mt, ev)
		assert.Equal(mt, "findAndModify", ev.CommandName)
		assert.True(mt, ev.Command.Lookup("remove").Boolean())
		assert.Equal(mt, tok.Token, ev.Command.Lookup("query", "token").StringValue())
	})

	mt.Run("consume of an unknown token", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := NewMongoRepo(mt.DB).Consume(ctx, "missing")
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("consume surfaces server errors", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad query", Name: "BadValue"}))

		_, err := NewMongoRepo(mt.DB).Consume(ctx, "t")
		require.Error(mt, err)
		assert.False(mt, errors.Is(err, ErrNotFound))
	})

	mt.Run("delete by user id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		require.NoError(mt, NewMongoRepo(mt.DB).DeleteByUserID(ctx, "u1"))
		ev := mt.GetStartedEvent()
		require.NotNil(mt, ev)
		assert.Equal(mt, "delete", ev.CommandName)
		assert.Equal(mt, "u1", ev.Command.Lookup("deletes", "0", "q", "user_id").StringValue())
	})
}
