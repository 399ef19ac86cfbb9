package metadata

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore wraps a Store with an in-process LRU cache keyed by object API
// name. Writes invalidate the affected entry.
type CachedStore struct {
	store *Store
	cache *lru.Cache[string, *ObjectWithFields]
}

// NewCachedStore creates a caching wrapper around a metadata store
func NewCachedStore(store *Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, *ObjectWithFields](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &CachedStore{store: store, cache: cache}, nil
}

// GetObjectWithFields returns an object and its fields, from cache when possible
func (c *CachedStore) GetObjectWithFields(ctx context.Context, apiName string) (*ObjectWithFields, error) {
	if cached, ok := c.cache.Get(apiName); ok {
		return cached, nil
	}

	result, err := c.store.GetObjectWithFields(ctx, apiName)
	if err != nil {
		return nil, err
	}

	c.cache.Add(apiName, result)
	return result, nil
}

// ListFields returns the field definitions for an object, from cache when possible
func (c *CachedStore) ListFields(ctx context.Context, objectAPIName string) ([]FieldDefinition, error) {
	result, err := c.GetObjectWithFields(ctx, objectAPIName)
	if err != nil {
		return nil, err
	}
	return result.Fields, nil
}

// GetObject returns an object definition, from cache when possible
func (c *CachedStore) GetObject(ctx context.Context, apiName string) (*ObjectDefinition, error) {
	result, err := c.GetObjectWithFields(ctx, apiName)
	if err != nil {
		return nil, err
	}
	obj := result.Object
	return &obj, nil
}

// ListObjects always hits the database; the cache is keyed per object
func (c *CachedStore) ListObjects(ctx context.Context) ([]ObjectDefinition, error) {
	return c.store.ListObjects(ctx)
}

// CreateObject creates an object definition
func (c *CachedStore) CreateObject(ctx context.Context, obj *ObjectDefinition) error {
	return c.store.CreateObject(ctx, obj)
}

// DeleteObject deletes an object definition and invalidates its cache entry
func (c *CachedStore) DeleteObject(ctx context.Context, apiName string) error {
	if err := c.store.DeleteObject(ctx, apiName); err != nil {
		return err
	}
	c.cache.Remove(apiName)
	return nil
}

// CreateField creates a field definition and invalidates the object's cache entry
func (c *CachedStore) CreateField(ctx context.Context, objectAPIName string, field *FieldDefinition) error {
	if err := c.store.CreateField(ctx, field); err != nil {
		return err
	}
	c.cache.Remove(objectAPIName)
	return nil
}

// UpdateField updates a field definition and invalidates the object's cache entry
func (c *CachedStore) UpdateField(ctx context.Context, objectAPIName string, field *FieldDefinition) error {
	if err := c.store.UpdateField(ctx, field); err != nil {
		return err
	}
	c.cache.Remove(objectAPIName)
	return nil
}

// DeleteField deletes a field definition and invalidates the object's cache entry
func (c *CachedStore) DeleteField(ctx context.Context, objectAPIName string, fieldID int64) error {
	if err := c.store.DeleteField(ctx, fieldID); err != nil {
		return err
	}
	c.cache.Remove(objectAPIName)
	return nil
}

// Purge drops all cached entries
func (c *CachedStore) Purge() {
	c.cache.Purge()
}
