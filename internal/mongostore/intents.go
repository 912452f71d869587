package mongostore

import (
	"context"
	"fmt"
	"time"

	"storefront-orders/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateIntent records a reservation before its first deduction.
func (s *Store) CreateIntent(ctx context.Context, intent *models.ReservationIntent) error {
	if intent.Deductions == nil {
		intent.Deductions = models.Deductions{}
	}
	if _, err := s.db.Collection(intentsCollection).InsertOne(ctx, intent); err != nil {
		return fmt.Errorf("failed to create reservation intent: %w", err)
	}
	return nil
}

// AppendDeduction records one successful deduction on a pending intent.
func (s *Store) AppendDeduction(ctx context.Context, intentID string, d models.Deduction) error {
	res, err := s.db.Collection(intentsCollection).UpdateOne(ctx,
		bson.M{"_id": intentID, "status": models.IntentStatusPending},
		bson.M{
			"$push": bson.M{"deductions": d},
			"$set":  bson.M{"updatedAt": time.Now()},
		})
	if err != nil {
		return fmt.Errorf("failed to record deduction: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: pending intent %s", ErrNotFound, intentID)
	}
	return nil
}

// MarkIntent moves a pending intent to committed or rolled_back.
func (s *Store) MarkIntent(ctx context.Context, intentID, status, orderID string) error {
	res, err := s.db.Collection(intentsCollection).UpdateOne(ctx,
		bson.M{"_id": intentID, "status": models.IntentStatusPending},
		bson.M{"$set": bson.M{"status": status, "orderId": orderID, "updatedAt": time.Now()}})
	if err != nil {
		return fmt.Errorf("failed to mark intent %s: %w", status, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: pending intent %s", ErrNotFound, intentID)
	}
	return nil
}

// ListStaleIntents returns pending intents created before the cutoff, oldest first.
func (s *Store) ListStaleIntents(ctx context.Context, before time.Time, limit int) ([]models.ReservationIntent, error) {
	cursor, err := s.db.Collection(intentsCollection).Find(ctx,
		bson.M{"status": models.IntentStatusPending, "createdAt": bson.M{"$lt": before}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	intents := []models.ReservationIntent{}
	if err := cursor.All(ctx, &intents); err != nil {
		return nil, err
	}
	return intents, nil
}
