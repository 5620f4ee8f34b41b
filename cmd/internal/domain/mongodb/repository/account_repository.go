package repository

import (
	"context"
	"errors"
	"time"

	"medibook/cmd/internal/domain/entity"
	"medibook/cmd/internal/domain/mongodb"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AccountRepository struct {
	accounts *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{accounts: db.Collection(mongodb.AccountsCollection)}
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *AccountRepository) FindBySub(ctx context.Context, sub string) (*entity.Account, error) {
	return r.findOne(ctx, bson.M{"subUuid": sub})
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*entity.Account, error) {
	var doc accountDocument
	err := r.accounts.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toEntity(), nil
}

func (r *AccountRepository) FindAll(ctx context.Context) ([]*entity.Account, error) {
	cur, err := r.accounts.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []accountDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]*entity.Account, len(docs))
	for i := range docs {
		out[i] = docs[i].toEntity()
	}
	return out, nil
}

func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	count, err := r.accounts.CountDocuments(ctx, bson.M{"email": email}, options.Count().SetLimit(1))
	return count > 0, err
}

func (r *AccountRepository) Create(ctx context.Context, acct *entity.Account) error {
	stamp(&acct.CreatedAt, &acct.UpdatedAt)
	_, err := r.accounts.InsertOne(ctx, toAccountDocument(acct))
	if mongo.IsDuplicateKeyError(err) {
		return entity.ErrEmailTaken
	}
	return err
}

func (r *AccountRepository) Save(ctx context.Context, acct *entity.Account) error {
	acct.UpdatedAt = time.Now().UnixMilli()
	_, err := r.accounts.ReplaceOne(ctx,
		bson.M{"_id": acct.ID},
		toAccountDocument(acct),
		options.Replace().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return entity.ErrEmailTaken
	}
	return err
}
