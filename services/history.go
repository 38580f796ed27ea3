package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"book-rag-backend/internal/config"
	"book-rag-backend/internal/logger"
	"book-rag-backend/models"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session id")
)

// SessionResolution tags the outcome of resolving a client-supplied session
// ID so callers can distinguish a fresh fallback session from a resumed one.
type SessionResolution int

const (
	SessionFound SessionResolution = iota
	SessionNotFound
	SessionIDInvalid
)

// HistoryService owns conversation sessions and their messages. Messages are
// append-only; the only delete is a whole-session cascade.
type HistoryService struct {
	client   *mongo.Client
	sessions *mongo.Collection
	messages *mongo.Collection
}

func NewHistoryService(client *mongo.Client, cfg *config.Config) *HistoryService {
	db := client.Database(cfg.DBName)
	return &HistoryService{
		client:   client,
		sessions: db.Collection("sessions"),
		messages: db.Collection("messages"),
	}
}

// CreateSession starts a fresh session for the user.
func (s *HistoryService) CreateSession(ctx context.Context, userID string) (models.ConversationSession, error) {
	now := time.Now().UTC()
	session := models.ConversationSession{
		ID:           uuid.New().String(),
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
	}
	if _, err := s.sessions.InsertOne(ctx, session); err != nil {
		return models.ConversationSession{}, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ResolveSession looks up a client-supplied session ID. A malformed or
// unknown ID is not an error; the resolution tag tells the caller to fall
// back to a new session.
func (s *HistoryService) ResolveSession(ctx context.Context, sessionID string) (models.ConversationSession, SessionResolution, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return models.ConversationSession{}, SessionIDInvalid, nil
	}

	var session models.ConversationSession
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ConversationSession{}, SessionNotFound, nil
		}
		return models.ConversationSession{}, SessionNotFound, fmt.Errorf("failed to resolve session: %w", err)
	}
	return session, SessionFound, nil
}

// SaveMessage appends a message to its session and touches the session's
// last activity. The message gets an ID and timestamp if the caller left
// them unset.
func (s *HistoryService) SaveMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return models.ChatMessage{}, fmt.Errorf("failed to save %s message: %w", msg.Role, err)
	}

	_, err := s.sessions.UpdateByID(ctx, msg.SessionID,
		bson.M{"$set": bson.M{"last_activity": msg.Timestamp}})
	if err != nil {
		// The message is already durable; a stale last_activity only delays
		// retention, so log and carry on.
		logger.Warn("failed to touch session activity", "session_id", msg.SessionID, "error", err)
	}
	return msg, nil
}

// GetHistory returns up to limit messages of a session in chronological
// order. Unknown sessions return ErrSessionNotFound, malformed IDs
// ErrInvalidSessionID.
func (s *HistoryService) GetHistory(ctx context.Context, sessionID string, limit int) (*models.HistoryResponse, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrInvalidSessionID
	}

	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	cursor, err := s.messages.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]models.ChatMessage, 0, limit)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	return &models.HistoryResponse{SessionID: sessionID, Messages: messages}, nil
}

// DeleteSession removes a session and all of its messages.
func (s *HistoryService) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return ErrInvalidSessionID
	}

	res, err := s.sessions.DeleteOne(ctx, bson.M{"_id": sessionID})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrSessionNotFound
	}

	if _, err := s.messages.DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}
	return nil
}

// PurgeIdleSessions cascade-deletes sessions whose last activity is older
// than the cutoff and returns how many were removed.
func (s *HistoryService) PurgeIdleSessions(ctx context.Context, idleFor time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-idleFor)

	cursor, err := s.sessions.Find(ctx,
		bson.M{"last_activity": bson.M{"$lt": cutoff}},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, fmt.Errorf("failed to find idle sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var stale []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &stale); err != nil {
		return 0, fmt.Errorf("failed to decode idle sessions: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]string, len(stale))
	for i, doc := range stale {
		ids[i] = doc.ID
	}

	if _, err := s.messages.DeleteMany(ctx, bson.M{"session_id": bson.M{"$in": ids}}); err != nil {
		return 0, fmt.Errorf("failed to delete messages of idle sessions: %w", err)
	}
	res, err := s.sessions.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete idle sessions: %w", err)
	}
	return res.DeletedCount, nil
}

// Healthy reports whether the backing database answers a ping. One retry
// covers a dropped pooled connection.
func (s *HistoryService) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.client.Ping(ctx, nil)
	if err != nil {
		err = s.client.Ping(ctx, nil)
	}
	if err != nil {
		logger.Error("database health check failed", "error", err)
		return false
	}
	return true
}
