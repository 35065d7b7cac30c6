// Package sessionstore implements C10: the per-user session and
// message log, grounded on the teacher's valkey command-builder idiom
// (internal/infra/faqstore/valkey_store.go, internal/infra/uploadask/
// queue/valkey.go) — a per-session JSON metadata key, a per-session
// RPUSH'd message list, and a per-user ZSET of session-ids scored by
// last-activity.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	apperrors "github.com/ragserve/core/pkg/errors"
	"github.com/ragserve/core/pkg/util"

	"github.com/ragserve/core/internal/domain/rag"
)

// sessionTTL is spec.md §4.10's 30-day inactivity expiry, reset on
// every append/touch.
const sessionTTL = 30 * 24 * time.Hour

// ValkeyStore persists sessions and messages in Valkey.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore constructs the store.
func NewValkeyStore(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "rag:session"
	}
	return &ValkeyStore{client: client, prefix: prefix}
}

var _ rag.SessionStore = (*ValkeyStore)(nil)

func (s *ValkeyStore) metaKey(sessionID string) string { return fmt.Sprintf("%s:%s:meta", s.prefix, sessionID) }
func (s *ValkeyStore) messagesKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:messages", s.prefix, sessionID)
}
func (s *ValkeyStore) userSessionsKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:sessions", s.prefix, userID)
}

// CreateSession allocates a new session id and persists its metadata.
func (s *ValkeyStore) CreateSession(ctx context.Context, userID string, firstMessage string) (string, error) {
	sessionID := uuid.NewString()
	now := util.NowUTC()
	title := firstMessage
	if len(title) > 80 {
		title = title[:80]
	}
	meta := rag.SessionMeta{
		SessionID:    sessionID,
		UserID:       userID,
		CreatedAt:    now,
		LastActiveAt: now,
		Title:        title,
	}
	if err := s.writeMeta(ctx, meta); err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "create session", err)
	}
	if err := s.client.Do(ctx, s.client.B().Zadd().Key(s.userSessionsKey(userID)).
		ScoreMember().ScoreMember(float64(now.Unix()), sessionID).Build()).Error(); err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "index session for user", err)
	}
	return sessionID, nil
}

// Append adds a message to the session's ordered list and resets TTL.
func (s *ValkeyStore) Append(ctx context.Context, sessionID string, msg rag.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "marshal message", err)
	}
	if err := s.client.Do(ctx, s.client.B().Rpush().Key(s.messagesKey(sessionID)).Element(string(payload)).Build()).Error(); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "append message", err)
	}
	if err := s.client.Do(ctx, s.client.B().Expire().Key(s.messagesKey(sessionID)).Seconds(int64(sessionTTL.Seconds())).Build()).Error(); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "set message ttl", err)
	}
	return s.Touch(ctx, sessionID)
}

// Recent returns the last limit messages, oldest-to-newest.
func (s *ValkeyStore) Recent(ctx context.Context, sessionID string, limit int) ([]rag.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	resp := s.client.Do(ctx, s.client.B().Lrange().Key(s.messagesKey(sessionID)).Start(int64(-limit)).Stop(-1).Build())
	raw, err := resp.ToArray()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "load recent messages", err)
	}
	messages := make([]rag.Message, 0, len(raw))
	for _, item := range raw {
		text, err := item.ToString()
		if err != nil {
			continue
		}
		var msg rag.Message
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ListSessions returns a user's sessions, most recently active first.
func (s *ValkeyStore) ListSessions(ctx context.Context, userID string, limit, offset int) ([]rag.SessionMeta, error) {
	if limit <= 0 {
		limit = 20
	}
	resp := s.client.Do(ctx, s.client.B().Zrevrange().Key(s.userSessionsKey(userID)).
		Start(int64(offset)).Stop(int64(offset+limit-1)).Build())
	ids, err := resp.AsStrSlice()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list sessions", err)
	}
	out := make([]rag.SessionMeta, 0, len(ids))
	for _, id := range ids {
		meta, err := s.readMeta(ctx, id)
		if err != nil || meta == nil {
			continue
		}
		out = append(out, *meta)
	}
	return out, nil
}

// Delete removes a session's metadata and message log if owned by userID.
func (s *ValkeyStore) Delete(ctx context.Context, sessionID, userID string) error {
	meta, err := s.readMeta(ctx, sessionID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "load session for delete", err)
	}
	if meta == nil {
		return rag.ErrSessionNotFound()
	}
	if meta.UserID != userID {
		return rag.ErrSessionForbidden()
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.metaKey(sessionID), s.messagesKey(sessionID)).Build()).Error(); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "delete session keys", err)
	}
	return s.client.Do(ctx, s.client.B().Zrem().Key(s.userSessionsKey(userID)).Member(sessionID).Build()).Error()
}

// Touch resets the session's metadata TTL and last-active score.
func (s *ValkeyStore) Touch(ctx context.Context, sessionID string) error {
	meta, err := s.readMeta(ctx, sessionID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "load session for touch", err)
	}
	if meta == nil {
		return nil
	}
	meta.LastActiveAt = util.NowUTC()
	meta.MessageCount++
	if err := s.writeMeta(ctx, *meta); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "touch session", err)
	}
	return s.client.Do(ctx, s.client.B().Zadd().Key(s.userSessionsKey(meta.UserID)).
		ScoreMember().ScoreMember(float64(meta.LastActiveAt.Unix()), sessionID).Build()).Error()
}

// Get returns session metadata, or nil if it doesn't exist.
func (s *ValkeyStore) Get(ctx context.Context, sessionID string) (*rag.SessionMeta, error) {
	return s.readMeta(ctx, sessionID)
}

func (s *ValkeyStore) readMeta(ctx context.Context, sessionID string) (*rag.SessionMeta, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.metaKey(sessionID)).Build())
	payload, err := resp.ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	var meta rag.SessionMeta
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *ValkeyStore) writeMeta(ctx context.Context, meta rag.SessionMeta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	cmd := s.client.B().Set().Key(s.metaKey(meta.SessionID)).Value(string(payload)).Ex(sessionTTL).Build()
	return s.client.Do(ctx, cmd).Error()
}

// Ping satisfies rag.Pinger for /readiness.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}
