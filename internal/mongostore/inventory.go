package mongostore

import (
	"context"
	"errors"
	"fmt"

	"storefront-orders/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GetProduct loads a product document with its embedded variants.
func (s *Store) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product
	err := s.db.Collection(productsCollection).FindOne(ctx, bson.M{"_id": productID}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	for i := range product.Colors {
		product.Colors[i].ProductID = product.ID
	}
	return &product, nil
}

// ListVariants returns every color variant of every product.
func (s *Store) ListVariants(ctx context.Context) ([]models.ColorVariant, error) {
	cursor, err := s.db.Collection(productsCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var variants []models.ColorVariant
	for cursor.Next(ctx) {
		var product models.Product
		if err := cursor.Decode(&product); err != nil {
			return nil, err
		}
		for _, v := range product.Colors {
			v.ProductID = product.ID
			variants = append(variants, v)
		}
	}
	return variants, cursor.Err()
}

// SaveProduct upserts a product document.
func (s *Store) SaveProduct(ctx context.Context, product *models.Product) error {
	_, err := s.db.Collection(productsCollection).ReplaceOne(ctx,
		bson.M{"_id": product.ID}, product, options.Replace().SetUpsert(true))
	return err
}

// Available returns the current stock of a variant.
func (s *Store) Available(ctx context.Context, ref models.VariantRef) (int, error) {
	product, err := s.GetProduct(ctx, ref.ProductID)
	if err != nil {
		return 0, err
	}
	v, ok := product.SelectVariant(models.ColorSelector{VariantID: ref.VariantID})
	if !ok {
		return 0, fmt.Errorf("%w: variant %s/%s", ErrNotFound, ref.ProductID, ref.VariantID)
	}
	return v.Stock, nil
}

// adjustVariant rewrites one element of the colors array in a single
// pipeline update, so stock and inStock always change together.
func adjustVariant(variantID string, delta int, inStock interface{}) mongo.Pipeline {
	newStock := bson.M{"$add": bson.A{"$$c.stock", delta}}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"colors": bson.M{"$map": bson.M{
				"input": "$colors",
				"as":    "c",
				"in": bson.M{"$cond": bson.A{
					bson.M{"$eq": bson.A{"$$c.id", variantID}},
					bson.M{"$mergeObjects": bson.A{"$$c", bson.M{
						"stock":     newStock,
						"inStock":   inStock,
						"updatedAt": "$$NOW",
					}}},
					"$$c",
				}},
			}},
		}}},
	}
}

// Deduct atomically removes quantity from a variant and returns the stock it had before.
func (s *Store) Deduct(ctx context.Context, ref models.VariantRef, quantity int) (int, error) {
	filter := bson.M{
		"_id":    ref.ProductID,
		"colors": bson.M{"$elemMatch": bson.M{"id": ref.VariantID, "stock": bson.M{"$gte": quantity}}},
	}
	inStock := bson.M{"$gt": bson.A{bson.M{"$add": bson.A{"$$c.stock", -quantity}}, 0}}

	var before models.Product
	err := s.db.Collection(productsCollection).FindOneAndUpdate(ctx, filter,
		adjustVariant(ref.VariantID, -quantity, inStock),
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err == nil {
		v, _ := before.SelectVariant(models.ColorSelector{VariantID: ref.VariantID})
		return v.Stock, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("failed to deduct stock: %w", err)
	}

	n, err := s.db.Collection(productsCollection).CountDocuments(ctx,
		bson.M{"_id": ref.ProductID, "colors.id": ref.VariantID})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: variant %s/%s", ErrNotFound, ref.ProductID, ref.VariantID)
	}
	return 0, fmt.Errorf("%w: variant %s/%s", ErrInsufficientStock, ref.ProductID, ref.VariantID)
}

// Restore adds quantity back, marks the variant in stock and returns the resulting stock.
func (s *Store) Restore(ctx context.Context, ref models.VariantRef, quantity int) (int, error) {
	var after models.Product
	err := s.db.Collection(productsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": ref.ProductID, "colors.id": ref.VariantID},
		adjustVariant(ref.VariantID, quantity, true),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&after)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("%w: variant %s/%s", ErrNotFound, ref.ProductID, ref.VariantID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to restore stock: %w", err)
	}
	v, _ := after.SelectVariant(models.ColorSelector{VariantID: ref.VariantID})
	return v.Stock, nil
}

// AdjustVariantStock shifts the stored stock of a variant by delta. A
// positive delta marks the variant in stock, like Restore does.
func (s *Store) AdjustVariantStock(ctx context.Context, ref models.VariantRef, delta int) error {
	var inStock interface{} = true
	if delta <= 0 {
		inStock = bson.M{"$gt": bson.A{bson.M{"$add": bson.A{"$$c.stock", delta}}, 0}}
	}
	res, err := s.db.Collection(productsCollection).UpdateOne(ctx,
		bson.M{"_id": ref.ProductID, "colors.id": ref.VariantID},
		adjustVariant(ref.VariantID, delta, inStock))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: variant %s/%s", ErrNotFound, ref.ProductID, ref.VariantID)
	}
	return nil
}

// NextSequence increments the named counter with one upserting $inc.
func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Value int64 `bson:"sequenceValue"`
	}
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"sequenceValue": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
	}
	return counter.Value, nil
}
