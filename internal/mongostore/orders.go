package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-orders/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateOrder inserts a new order document.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.StatusHistory == nil {
		order.StatusHistory = models.StatusHistory{}
	}
	if order.AdminNotes == nil {
		order.AdminNotes = models.AdminNotes{}
	}

	if _, err := s.db.Collection(ordersCollection).InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	return s.findOrder(ctx, bson.M{"_id": id})
}

// GetOrderByNumber retrieves an order by its human-facing number
func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return s.findOrder(ctx, bson.M{"orderNumber": orderNumber})
}

// GetOrderByIdempotencyKey returns nil, nil when no order carries the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	order, err := s.findOrder(ctx, bson.M{"idempotencyKey": key})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return order, err
}

func (s *Store) findOrder(ctx context.Context, filter bson.M) (*models.Order, error) {
	var order models.Order
	err := s.db.Collection(ordersCollection).FindOne(ctx, filter).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: order %v", ErrNotFound, filter)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderState writes the lifecycle fields if the stored version still
// matches. On success order.Version is advanced.
func (s *Store) UpdateOrderState(ctx context.Context, order *models.Order) error {
	update := bson.M{
		"$set": bson.M{
			"status":        order.Status,
			"isPaid":        order.IsPaid,
			"paidAt":        order.PaidAt,
			"isProcessing":  order.IsProcessing,
			"processingAt":  order.ProcessingAt,
			"isPacked":      order.IsPacked,
			"packedAt":      order.PackedAt,
			"isShipped":     order.IsShipped,
			"shippedAt":     order.ShippedAt,
			"isDelivered":   order.IsDelivered,
			"deliveredAt":   order.DeliveredAt,
			"isCancelled":   order.IsCancelled,
			"cancelledAt":   order.CancelledAt,
			"cancelReason":  order.CancelReason,
			"paymentResult": order.PaymentResult,
			"statusHistory": order.StatusHistory,
			"updatedAt":     order.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}

	res, err := s.db.Collection(ordersCollection).UpdateOne(ctx,
		bson.M{"_id": order.ID, "version": order.Version}, update)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.db.Collection(ordersCollection).CountDocuments(ctx, bson.M{"_id": order.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: order %s", ErrNotFound, order.ID)
		}
		return fmt.Errorf("%w: order %s at version %d", ErrConflict, order.ID, order.Version)
	}
	order.Version++
	return nil
}

// AppendAdminNote pushes a staff note onto the order.
func (s *Store) AppendAdminNote(ctx context.Context, orderID string, note models.AdminNote) error {
	res, err := s.db.Collection(ordersCollection).UpdateOne(ctx,
		bson.M{"_id": orderID},
		bson.M{
			"$push": bson.M{"adminNotes": note},
			"$set":  bson.M{"updatedAt": time.Now()},
		})
	if err != nil {
		return fmt.Errorf("failed to append admin note: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return nil
}

// ListOrdersByUser retrieves orders for a user, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.findOrders(ctx, bson.M{"user": userID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// ListOrders pages through all orders, optionally restricted to one status.
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))
	return s.findOrders(ctx, query, opts)
}

func (s *Store) findOrders(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Order, error) {
	cursor, err := s.db.Collection(ordersCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.db.Collection(eventsCollection).CountDocuments(ctx, bson.M{"_id": eventID})
	return n > 0, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.Collection(eventsCollection).InsertOne(ctx, models.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}
