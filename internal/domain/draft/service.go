package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/intake/internal/platform/apperr"
	"github.com/clinicore/intake/internal/platform/auth"
	"github.com/clinicore/intake/internal/platform/cache"
)

// Service stages unsaved form sections per (scope, user). Scope is either
// a record id or "new" for a not-yet-created intake. Drafts expire on
// their own; a committed write discards them explicitly.
type Service struct {
	kv     cache.KV
	ttl    time.Duration
	logger zerolog.Logger
}

func NewService(kv cache.KV, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{kv: kv, ttl: ttl, logger: logger}
}

// maxPayloadBytes bounds one staged section. Debouncing is the client's
// job; the bound only protects the cache from runaway payloads.
const maxPayloadBytes = 256 << 10

func key(scope string, userID uuid.UUID, section string) string {
	return fmt.Sprintf("draft:%s:%s:%s", scope, userID, section)
}

// Save stages a section payload, replacing any previous snapshot for the
// same (scope, user, section).
func (s *Service) Save(ctx context.Context, session auth.Session, scope, section string, payload json.RawMessage) (*Snapshot, error) {
	if scope == "" {
		return nil, apperr.Validation("scope", "is required")
	}
	if section == "" {
		return nil, apperr.Validation("section", "is required")
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, apperr.Validation("payload", "must be valid JSON")
	}
	if len(payload) > maxPayloadBytes {
		return nil, apperr.Validation("payload", "exceeds the draft size limit")
	}

	snap := &Snapshot{
		Scope:   scope,
		Section: section,
		Payload: payload,
		SavedAt: time.Now().UTC(),
	}
	encoded, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Set(ctx, key(scope, session.UserID, section), string(encoded), s.ttl); err != nil {
		return nil, apperr.Unavailable("draft cache", err)
	}
	return snap, nil
}

// Peek returns the staged snapshot without consuming it, so a declined
// restore leaves the draft in place. ErrNotFound when nothing is staged.
func (s *Service) Peek(ctx context.Context, session auth.Session, scope, section string) (*Snapshot, error) {
	raw, err := s.kv.Get(ctx, key(scope, session.UserID, section))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Unavailable("draft cache", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Discard drops one staged section. Discarding an absent draft is a no-op.
func (s *Service) Discard(ctx context.Context, session auth.Session, scope, section string) error {
	if err := s.kv.Delete(ctx, key(scope, session.UserID, section)); err != nil {
		return apperr.Unavailable("draft cache", err)
	}
	return nil
}

// DiscardScope drops every staged section a user holds for a scope. The
// patient service calls this after a durable commit.
func (s *Service) DiscardScope(ctx context.Context, scope string, userID uuid.UUID) error {
	keys, err := s.kv.ScanKeys(ctx, key(scope, userID, "*"))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.kv.Delete(ctx, keys...)
}
