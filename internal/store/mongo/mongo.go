// Package mongo implementa el adapter MongoDB.
// Cuentas en la colección "accounts" (índice único por email) y documentos
// de usuario en "user_documents" con upsert + $set.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dropDatabas3/momtrack/internal/store"
)

func init() {
	store.RegisterAdapter(&mongoAdapter{})
}

type mongoAdapter struct{}

func (a *mongoAdapter) Name() string { return "mongo" }

func (a *mongoAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	dbName := cfg.Database
	if dbName == "" {
		dbName = "momtrack"
	}
	db := client.Database(dbName)

	_, err = db.Collection("accounts").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("accounts_email_unique"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ensure indexes: %w", err)
	}

	return &Conn{client: client, db: db}, nil
}

// Conn es una conexión MongoDB.
type Conn struct {
	client *mongo.Client
	db     *mongo.Database
}

func (c *Conn) Name() string                   { return "mongo" }
func (c *Conn) Ping(ctx context.Context) error { return c.client.Ping(ctx, nil) }

func (c *Conn) Accounts() store.Accounts {
	return &accountRepo{col: c.db.Collection("accounts")}
}

func (c *Conn) Documents() store.Documents {
	return &documentRepo{col: c.db.Collection("user_documents")}
}

func (c *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}

// ─── Accounts ───

type accountDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Name         string    `bson:"name"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

type accountRepo struct{ col *mongo.Collection }

func (r *accountRepo) Create(ctx context.Context, a store.Account) error {
	_, err := r.col.InsertOne(ctx, accountDoc{
		ID:           a.ID,
		Email:        a.Email,
		Name:         a.Name,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt.UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrConflict
	}
	return err
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (store.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *accountRepo) GetByEmail(ctx context.Context, email string) (store.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *accountRepo) findOne(ctx context.Context, filter bson.M) (store.Account, error) {
	var d accountDoc
	err := r.col.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Account{}, store.ErrNotFound
	}
	if err != nil {
		return store.Account{}, err
	}
	return store.Account{
		ID:           d.ID,
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
	}, nil
}

func (r *accountRepo) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ─── Documents ───

type documentRepo struct{ col *mongo.Collection }

// Merge hace upsert con $set: las claves con nil quedan en null.
func (r *documentRepo) Merge(ctx context.Context, id string, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	set := bson.M{}
	for k, v := range patch {
		set[k] = v
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *documentRepo) Get(ctx context.Context, id string) (json.RawMessage, error) {
	var m bson.M
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	delete(m, "_id")
	return json.Marshal(m)
}

func (r *documentRepo) Delete(ctx context.Context, id string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
