package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mkarim-dev/backend-bazar/internal/common"
	"github.com/mkarim-dev/backend-bazar/internal/tenant"
)

// APIKeyHeader carries seller credentials as "<key id>.<secret>".
const APIKeyHeader = "X-Api-Key"

var ErrInvalidAPIKey = errors.New("auth: invalid api key")

// APIKey is a seller credential bound to one store. Only the argon2id
// hash of the secret is stored.
type APIKey struct {
	ID         uuid.UUID
	StoreID    uuid.UUID
	SecretHash string
	Revoked    bool
}

// APIKeySource resolves an api key record by its public identifier.
type APIKeySource interface {
	FindAPIKey(ctx context.Context, id uuid.UUID) (APIKey, error)
}

// HashAPIKeySecret hashes a freshly generated secret for storage.
func HashAPIKeySecret(secret string) (string, error) {
	return argon2id.CreateHash(secret, argon2id.DefaultParams)
}

// VerifyAPIKey checks the presented credential against a stored record.
func VerifyAPIKey(key APIKey, secret string) error {
	if key.Revoked {
		return ErrInvalidAPIKey
	}
	match, err := argon2id.ComparePasswordAndHash(secret, key.SecretHash)
	if err != nil || !match {
		return ErrInvalidAPIKey
	}
	return nil
}

// SellerAuth authenticates store operators via API key and scopes the
// request to the key's store.
type SellerAuth struct {
	Keys APIKeySource
}

func (a SellerAuth) RequireSeller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := a.authenticate(r)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid api key", nil)
			return
		}
		ctx := tenant.WithTenant(r.Context(), key.StoreID.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a SellerAuth) authenticate(r *http.Request) (APIKey, error) {
	if a.Keys == nil {
		return APIKey{}, errors.New("auth: key source not configured")
	}
	raw := strings.TrimSpace(r.Header.Get(APIKeyHeader))
	id, secret, ok := strings.Cut(raw, ".")
	if !ok || secret == "" {
		return APIKey{}, ErrInvalidAPIKey
	}
	keyID, err := uuid.Parse(id)
	if err != nil {
		return APIKey{}, ErrInvalidAPIKey
	}
	key, err := a.Keys.FindAPIKey(r.Context(), keyID)
	if err != nil {
		return APIKey{}, ErrInvalidAPIKey
	}
	if err := VerifyAPIKey(key, secret); err != nil {
		return APIKey{}, err
	}
	return key, nil
}

// APIKeyRepo loads seller api keys from Postgres.
type APIKeyRepo struct {
	DB interface {
		QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	}
}

func (r *APIKeyRepo) FindAPIKey(ctx context.Context, id uuid.UUID) (APIKey, error) {
	const q = `SELECT id, store_id, secret_hash, revoked FROM seller_api_keys WHERE id = $1`
	var (
		key             APIKey
		idStr, storeStr string
	)
	if err := r.DB.QueryRow(ctx, q, id).Scan(&idStr, &storeStr, &key.SecretHash, &key.Revoked); err != nil {
		return APIKey{}, err
	}
	key.ID, _ = uuid.Parse(idStr)
	key.StoreID, _ = uuid.Parse(storeStr)
	return key, nil
}
