// Package vectorstore provides namespaced vector upsert, similarity query,
// and deletion against a vector index.
package vectorstore

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// NamespacePublic is the shared namespace for public-visibility vectors.
const NamespacePublic = "public"

// ownerNamespacePrefix joins the private-namespace literal to an owner id.
// Owner ids are opaque identifiers that never contain the prefix syntax, so
// "user:{owner}" cannot collide with "public".
const ownerNamespacePrefix = "user:"

// OwnerNamespace returns the private namespace for an owner.
func OwnerNamespace(ownerID string) string {
	return ownerNamespacePrefix + ownerID
}

// NamespaceFor returns the namespace a vector with the given visibility and
// owner belongs to.
func NamespaceFor(visibility models.Visibility, ownerID string) string {
	if visibility == models.VisibilityPublic {
		return NamespacePublic
	}
	return OwnerNamespace(ownerID)
}

// Store defines vector index operations. The namespace a vector lives in is
// derived from its metadata's visibility and owner; queries name the
// namespace explicitly.
type Store interface {
	Upsert(ctx context.Context, id string, vector []float32, meta models.VectorMetadata) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.VectorMatch, error)
	// DeleteByIDs removes vectors by id. Visibility and ownerID scope the
	// deletion on namespace-keyed indexes; global indexes accept and ignore
	// them (kept for signature symmetry).
	DeleteByIDs(ctx context.Context, ids []string, visibility models.Visibility, ownerID string) error
}
