package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

var validRoles = map[store.Role]bool{store.RoleReader: true, store.RoleWriter: true, store.RoleAdmin: true}

// CreateAPIKeyRequest is the typed body of POST /admin/api-keys.
type CreateAPIKeyRequest struct {
	Name string    `json:"name"`
	Role store.Role `json:"role"`
}

// CreateAPIKey mints a new bearer secret, persisting only its hash. The raw
// secret is returned exactly once.
func (s *Service) CreateAPIKey(ctx context.Context, callerRole store.Role, req CreateAPIKeyRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleAdmin); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, relayerrors.Validation("name", "required")
	}
	if !validRoles[req.Role] {
		return nil, relayerrors.Validation("role", "must be reader, writer, or admin")
	}

	raw, err := generateAPIKeySecret()
	if err != nil {
		return nil, relayerrors.Internal("generate api key", err)
	}
	hash := hashAPIKeySecret(raw)

	saved, err := s.Store.SaveAPIKey(ctx, store.APIKey{
		KeyHash:   hash,
		KeyPrefix: raw[:8],
		Name:      req.Name,
		Role:      req.Role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.emitEvent(ctx, "apikey.created", map[string]string{"api_key_id": saved.ID}, map[string]interface{}{"role": string(req.Role)})
	return envelope(map[string]interface{}{"api_key": saved, "secret": raw},
		"Store this secret now; it will not be shown again",
	), nil
}

// ListAPIKeys returns every API key's metadata, never its hash or secret.
func (s *Service) ListAPIKeys(ctx context.Context, callerRole store.Role) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleAdmin); err != nil {
		return nil, err
	}
	keys, err := s.Store.ListAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"api_keys": keys, "count": len(keys)}), nil
}

// DeleteAPIKey revokes an API key.
func (s *Service) DeleteAPIKey(ctx context.Context, callerRole store.Role, id string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleAdmin); err != nil {
		return nil, err
	}
	deleted, err := s.Store.DeleteAPIKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, relayerrors.NotFound("api_key", id)
	}
	s.emitEvent(ctx, "apikey.deleted", map[string]string{"api_key_id": id}, nil)
	return envelope(map[string]interface{}{"deleted": true}), nil
}

// AuthenticateAPIKey resolves a raw bearer secret to its role, for the
// transport layer's auth middleware. A missing, unknown, or inactive key
// returns ok=false; the caller maps that to 401/403.
func (s *Service) AuthenticateAPIKey(ctx context.Context, raw string) (store.Role, bool, error) {
	if raw == "" {
		return "", false, nil
	}
	key, err := s.Store.GetAPIKeyByHash(ctx, hashAPIKeySecret(raw))
	if err != nil {
		return "", false, err
	}
	if key == nil || !key.Active {
		return "", false, nil
	}
	return key.Role, true, nil
}

func generateAPIKeySecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "relay_" + hex.EncodeToString(buf), nil
}

func hashAPIKeySecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
