package repository

import (
	"context"
	"errors"

	"medibook/cmd/internal/domain/entity"

	"gorm.io/gorm"
)

type DefaultAccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *DefaultAccountRepository {
	return &DefaultAccountRepository{db: db}
}

func (u *DefaultAccountRepository) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	return u.findOne(ctx, "id = ?", id)
}

func (u *DefaultAccountRepository) FindBySub(ctx context.Context, sub string) (*entity.Account, error) {
	return u.findOne(ctx, "sub_uuid = ?", sub)
}

// FindByEmail expects an already normalized email.
func (u *DefaultAccountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	return u.findOne(ctx, "email = ?", email)
}

func (u *DefaultAccountRepository) findOne(ctx context.Context, query string, arg any) (*entity.Account, error) {
	var acct entity.Account
	err := u.db.WithContext(ctx).Where(query, arg).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (u *DefaultAccountRepository) FindAll(ctx context.Context) ([]*entity.Account, error) {
	var accts []*entity.Account
	err := u.db.WithContext(ctx).Order("created_at asc").Find(&accts).Error
	return accts, err
}

func (u *DefaultAccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := u.db.WithContext(ctx).Model(&entity.Account{}).
		Where("email = ?", email).
		Count(&count).Error
	return count > 0, err
}

func (u *DefaultAccountRepository) Create(ctx context.Context, acct *entity.Account) error {
	err := u.db.WithContext(ctx).Create(acct).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return entity.ErrEmailTaken
	}
	return err
}

func (u *DefaultAccountRepository) Save(ctx context.Context, acct *entity.Account) error {
	err := u.db.WithContext(ctx).Save(acct).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return entity.ErrEmailTaken
	}
	return err
}
