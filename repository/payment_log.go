package repository

import (
	"cardpay/dto/model"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

// PaymentLogStore persists the audit trail of finished checkouts.
type PaymentLogStore interface {
	InsertPaymentLog(ctx context.Context, entry model.PaymentLog) error
	FindPaymentLogsByReference(ctx context.Context, reference string) ([]model.PaymentLog, error)
}

type GormPaymentLogStore struct {
	db *gorm.DB
}

func NewGormPaymentLogStore(db *gorm.DB) *GormPaymentLogStore {
	return &GormPaymentLogStore{db: db}
}

func (s *GormPaymentLogStore) InsertPaymentLog(ctx context.Context, entry model.PaymentLog) error {
	return s.db.WithContext(ctx).Create(&entry).Error
}

func (s *GormPaymentLogStore) FindPaymentLogsByReference(ctx context.Context, reference string) ([]model.PaymentLog, error) {
	var logs []model.PaymentLog
	err := s.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("created_at asc").
		Find(&logs).Error
	return logs, err
}

const PaymentLogCollection = "payment_logs"

type MongoPaymentLogStore struct {
	collection *mongo.Collection
}

func NewMongoPaymentLogStore(collection *mongo.Collection) *MongoPaymentLogStore {
	return &MongoPaymentLogStore{collection: collection}
}

func (s *MongoPaymentLogStore) InsertPaymentLog(ctx context.Context, entry model.PaymentLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if _, err := s.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert payment log: %w", err)
	}
	return nil
}

func (s *MongoPaymentLogStore) FindPaymentLogsByReference(ctx context.Context, reference string) ([]model.PaymentLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"reference": reference}, opts)
	if err != nil {
		return nil, fmt.Errorf("find payment logs: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []model.PaymentLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("decode payment logs: %w", err)
	}
	return logs, nil
}
