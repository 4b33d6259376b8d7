package service

import (
	"context"
	"errors"
	"time"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/connectors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// errNoEncryptionKey surfaces a missing ENCRYPTION_KEY at first credential
// use instead of at startup, so read-only deployments can run without one.
var errNoEncryptionKey = errors.New("no encryption key configured")

// CreateConnectionRequest is the typed body of POST /connection.
type CreateConnectionRequest struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Credentials map[string]string `json:"credentials"`
}

// CreateConnection validates the name, encrypts the credential bundle, and
// persists a reusable connection.
func (s *Service) CreateConnection(ctx context.Context, callerRole store.Role, req CreateConnectionRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	if !connectionNamePattern.MatchString(req.Name) {
		return nil, relayerrors.Validation("name", "must match ^[A-Za-z][A-Za-z0-9_-]{1,62}$")
	}
	if existing, err := s.Store.GetConnectionByName(ctx, req.Name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, relayerrors.Conflict("a connection named " + req.Name + " already exists")
	}

	if s.Cipher == nil {
		return nil, relayerrors.EncryptionError(errNoEncryptionKey)
	}
	encrypted, err := s.Cipher.EncryptDict(req.Credentials)
	if err != nil {
		return nil, relayerrors.EncryptionError(err)
	}

	saved, err := s.Store.SaveConnection(ctx, store.Connection{
		Name:                 req.Name,
		Type:                 req.Type,
		Description:          req.Description,
		CredentialsEncrypted: encrypted,
	})
	if err != nil {
		return nil, err
	}

	s.emitEvent(ctx, "connection.created", map[string]string{"connection_id": saved.ID}, map[string]interface{}{"type": saved.Type})
	return envelope(map[string]interface{}{"connection": saved},
		"POST /connection/"+saved.ID+"/test to verify it",
	), nil
}

// ListConnections returns every stored connection, credentials omitted.
func (s *Service) ListConnections(ctx context.Context, callerRole store.Role) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	conns, err := s.Store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"connections": conns, "count": len(conns)}), nil
}

// GetConnection returns one connection by id, credentials omitted.
func (s *Service) GetConnection(ctx context.Context, callerRole store.Role, id string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	conn, err := s.Store.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, relayerrors.NotFound("connection", id)
	}
	return envelope(map[string]interface{}{"connection": conn}), nil
}

// UpdateConnectionRequest is the typed body of PUT /connection/{id}.
type UpdateConnectionRequest struct {
	Description *string           `json:"description"`
	Credentials map[string]string `json:"credentials"`
}

// UpdateConnection patches a connection's description and/or credentials.
func (s *Service) UpdateConnection(ctx context.Context, callerRole store.Role, id string, req UpdateConnectionRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Credentials != nil {
		if s.Cipher == nil {
			return nil, relayerrors.EncryptionError(errNoEncryptionKey)
		}
		encrypted, err := s.Cipher.EncryptDict(req.Credentials)
		if err != nil {
			return nil, relayerrors.EncryptionError(err)
		}
		updates["credentials_encrypted"] = encrypted
	}
	saved, err := s.Store.UpdateConnection(ctx, id, updates)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, relayerrors.NotFound("connection", id)
	}
	return envelope(map[string]interface{}{"connection": saved}), nil
}

// DeleteConnection removes a connection. The store refuses with Conflict
// while any pipeline's source still references the connection by name.
func (s *Service) DeleteConnection(ctx context.Context, callerRole store.Role, id string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	deleted, err := s.Store.DeleteConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, relayerrors.NotFound("connection", id)
	}
	s.emitEvent(ctx, "connection.deleted", map[string]string{"connection_id": id}, nil)
	return envelope(map[string]interface{}{"deleted": true}), nil
}

// TestConnectionLiveness decrypts a connection's credentials and runs a
// lightweight reachability probe, recording the outcome on the connection.
func (s *Service) TestConnectionLiveness(ctx context.Context, callerRole store.Role, id string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	conn, err := s.Store.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, relayerrors.NotFound("connection", id)
	}

	if s.Cipher == nil {
		return nil, relayerrors.EncryptionError(errNoEncryptionKey)
	}
	creds, err := s.Cipher.DecryptDict(conn.CredentialsEncrypted)
	if err != nil {
		return nil, relayerrors.EncryptionError(err)
	}

	result := connectors.TestConnection(ctx, conn.Type, creds)

	now := time.Now().UTC()
	if _, err := s.Store.UpdateConnection(ctx, id, map[string]interface{}{
		"last_tested_at":   now,
		"last_test_status": result.Status,
	}); err != nil {
		return nil, err
	}

	return envelope(map[string]interface{}{"result": result}), nil
}
