// Package mongo keeps rooms as single documents and applies patches with
// per-field update operators, so writers to different fields never collide.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"signsense-quiz-service/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "rooms"

type RoomStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect dials uri, verifies the server, and ensures the unique code index.
func Connect(ctx context.Context, uri, database string) (*RoomStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	store := NewRoomStore(client, database)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

func NewRoomStore(client *mongo.Client, database string) *RoomStore {
	return &RoomStore{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
	}
}

func (s *RoomStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *RoomStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *RoomStore) Create(ctx context.Context, room domain.Room) error {
	if room.Players == nil {
		room.Players = make(map[string]domain.PlayerState)
	}
	if _, err := s.collection.InsertOne(ctx, room); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", domain.ErrRoomExists, room.Code)
		}
		return unavailable(err)
	}
	return nil
}

func (s *RoomStore) Get(ctx context.Context, code string) (domain.Room, error) {
	var room domain.Room
	err := s.collection.FindOne(ctx, bson.M{"code": code}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Room{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	}
	if err != nil {
		return domain.Room{}, unavailable(err)
	}
	if room.Players == nil {
		room.Players = make(map[string]domain.PlayerState)
	}
	return room, nil
}

func (s *RoomStore) Patch(ctx context.Context, code string, patch domain.RoomPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	res, err := s.collection.UpdateOne(ctx, patchFilter(code, patch), patchUpdate(patch))
	if err != nil {
		return unavailable(err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Nothing matched: replay the patch on a fresh read to see which condition failed.
	room, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	if err := patch.Apply(&room); err != nil {
		return err
	}
	return fmt.Errorf("%w: room %s changed during patch", domain.ErrConcurrentUpdate, code)
}

func (s *RoomStore) Delete(ctx context.Context, code string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"code": code})
	if err != nil {
		return unavailable(err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	}
	return nil
}

func patchFilter(code string, patch domain.RoomPatch) bson.M {
	filter := bson.M{"code": code}
	if len(patch.RequireState) > 0 {
		filter["state"] = bson.M{"$in": patch.StateNames()}
	}
	if patch.RequireQuestion != nil {
		filter["question_index"] = *patch.RequireQuestion
	}
	if patch.Player != "" && !patch.EnsurePlayer {
		filter["players."+patch.Player] = bson.M{"$exists": true}
	}
	if patch.Answer != nil {
		// $not also matches players stored before the field existed.
		filter["players."+patch.Player+".answered"] = bson.M{"$not": bson.M{"$gt": *patch.RequireQuestion}}
	}
	return filter
}

func patchUpdate(patch domain.RoomPatch) bson.M {
	set := bson.M{}
	inc := bson.M{"version": 1}
	if patch.State != nil {
		set["state"] = string(*patch.State)
	}
	if patch.AdvanceQuestion {
		inc["question_index"] = 1
	}
	if patch.Player != "" {
		prefix := "players." + patch.Player
		// $inc creates the entry with score 0 when the player is new.
		inc[prefix+".score"] = patch.ScoreDelta
		if patch.Answer != nil {
			set[prefix+".answer"] = *patch.Answer
			set[prefix+".answered"] = *patch.RequireQuestion + 1
		}
	}
	update := bson.M{"$inc": inc}
	if len(set) > 0 {
		update["$set"] = set
	}
	return update
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
