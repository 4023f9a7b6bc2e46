package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const (
	hashCollection = "image_hashes"
	userCollection = "users"
)

// Mongo backs HashIndex and UserStore with a shared MongoDB database. Both
// collections are mutated through single-document operations only, so no
// application-level locking is layered on top of the driver.
type Mongo struct {
	client *mongo.Client
	hashes *mongo.Collection
	users  *mongo.Collection
}

// Open connects to MongoDB, verifies the connection, and ensures the unique
// fingerprint index that makes dedup inserts first-writer-wins.
func Open(ctx context.Context, uri, database string, logger *zap.Logger) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	db := client.Database(database)
	hashes := db.Collection(hashCollection)
	users := db.Collection(userCollection)

	_, err = hashes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: hash index: %w", err)
	}
	_, err = users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: username index: %w", err)
	}

	if logger != nil {
		logger.Info("document store initialized", zap.String("database", database))
	}

	return &Mongo{client: client, hashes: hashes, users: users}, nil
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) Find(ctx context.Context, hash string) (HashEntry, error) {
	var entry HashEntry
	err := m.hashes.FindOne(ctx, bson.M{"hash": hash}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return HashEntry{}, ErrNotFound
	}
	if err != nil {
		return HashEntry{}, fmt.Errorf("store: find hash: %w", err)
	}
	return entry, nil
}

func (m *Mongo) Insert(ctx context.Context, entry HashEntry) error {
	_, err := m.hashes.UpdateOne(ctx,
		bson.M{"hash": entry.Hash},
		bson.M{"$setOnInsert": entry},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("store: insert hash: %w", err)
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, hash string) error {
	if _, err := m.hashes.DeleteOne(ctx, bson.M{"hash": hash}); err != nil {
		return fmt.Errorf("store: delete hash: %w", err)
	}
	return nil
}

// Users returns the UserStore view of the same database.
func (m *Mongo) Users() UserStore {
	return &mongoUsers{users: m.users}
}

type mongoUsers struct {
	users *mongo.Collection
}

func (m *mongoUsers) Find(ctx context.Context, username string) (UserAccount, error) {
	var account UserAccount
	err := m.users.FindOne(ctx, bson.M{"username": username}).Decode(&account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return UserAccount{}, ErrNotFound
	}
	if err != nil {
		return UserAccount{}, fmt.Errorf("store: find user: %w", err)
	}
	return account, nil
}

func (m *mongoUsers) Create(ctx context.Context, account UserAccount) error {
	if account.Uploads == nil {
		account.Uploads = []UploadRecord{}
	}
	_, err := m.users.InsertOne(ctx, account)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

func (m *mongoUsers) AddUpload(ctx context.Context, username string, record UploadRecord) error {
	_, err := m.users.UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$addToSet": bson.M{"uploads": record}},
	)
	if err != nil {
		return fmt.Errorf("store: add upload: %w", err)
	}
	return nil
}

func (m *mongoUsers) ReplaceUploads(ctx context.Context, username string, records []UploadRecord) error {
	if records == nil {
		records = []UploadRecord{}
	}
	_, err := m.users.UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"uploads": records}},
	)
	if err != nil {
		return fmt.Errorf("store: replace uploads: %w", err)
	}
	return nil
}
