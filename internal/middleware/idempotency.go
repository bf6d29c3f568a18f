package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// IdempotencyKeyHeader carries the client-chosen retry key
	IdempotencyKeyHeader = "Idempotency-Key"

	idempotencyKeyPrefix = "swiftbus:idempotency:"
)

type idempotencyStatus string

const (
	idempotencyProcessing idempotencyStatus = "processing"
	idempotencyCompleted  idempotencyStatus = "completed"
)

type idempotencyRecord struct {
	Status       idempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code,omitempty"`
	ResponseBody string            `json:"response_body,omitempty"`
}

// IdempotencyStore is the subset of the redis client the middleware needs
type IdempotencyStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// bodyCapture tees the response body so it can be replayed
type bodyCapture struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a request is retried with the
// same Idempotency-Key. Requests without the header pass through. Keys are
// scoped to the authenticated user. Redis errors fail open.
func Idempotency(store IdempotencyStore, ttl, lockTTL time.Duration, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if store == nil || key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		var bodyBytes []byte
		if c.Request.Body != nil {
			bodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		userID := ""
		if userCtx, ok := GetUserContext(c); ok {
			userID = userCtx.UserID.String()
		}
		redisKey := idempotencyKeyPrefix + userID + ":" + key
		requestHash := hashRequest(c.Request.Method, c.Request.URL.Path, bodyBytes)
		ctx := c.Request.Context()

		processing, _ := json.Marshal(idempotencyRecord{Status: idempotencyProcessing, RequestHash: requestHash})
		acquired, err := store.SetNX(ctx, redisKey, processing, lockTTL).Result()
		if err != nil {
			logger.WithError(err).Warn("Idempotency store unavailable, continuing without it")
			c.Next()
			return
		}

		if !acquired {
			existing, err := loadRecord(ctx, store, redisKey)
			if err != nil {
				logger.WithError(err).Warn("Failed to read idempotency record, continuing without it")
				c.Next()
				return
			}
			replayRecord(c, existing, requestHash)
			return
		}

		capture := &bodyCapture{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = capture

		c.Next()

		status := capture.Status()
		// Server errors are not cached so the client can retry.
		if status >= http.StatusInternalServerError {
			store.Del(ctx, redisKey)
			return
		}

		completed, _ := json.Marshal(idempotencyRecord{
			Status:       idempotencyCompleted,
			RequestHash:  requestHash,
			ResponseCode: status,
			ResponseBody: capture.body.String(),
		})
		if err := store.Set(ctx, redisKey, completed, ttl).Err(); err != nil {
			logger.WithError(err).WithField("key", key).Warn("Failed to store idempotent response")
		}
	}
}

func loadRecord(ctx context.Context, store IdempotencyStore, key string) (*idempotencyRecord, error) {
	raw, err := store.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func replayRecord(c *gin.Context, record *idempotencyRecord, requestHash string) {
	switch {
	case record == nil || record.Status == idempotencyProcessing:
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"success":    false,
			"message":    "A request with this idempotency key is already being processed",
			"error_code": "REQUEST_IN_PROGRESS",
		})
	case record.RequestHash != requestHash:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"success":    false,
			"message":    "Idempotency key already used with a different request",
			"error_code": "IDEMPOTENCY_KEY_REUSED",
		})
	default:
		c.Header("Idempotent-Replayed", "true")
		c.Data(record.ResponseCode, "application/json; charset=utf-8", []byte(record.ResponseBody))
		c.Abort()
	}
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
