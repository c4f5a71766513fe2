package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem provides an Idempotency-Key middleware backed by Redis. Completed
// responses are replayed for the same key and body; a key still being
// processed answers 409 and a key reused with a different body answers 422.
type Idem struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

const (
	idemPending = "pending"
	idemDone    = "done"
)

// idemRecord is what a key holds in Redis, first as a pending claim and then
// as the captured response.
type idemRecord struct {
	State       string          `json:"state"`
	Fingerprint string          `json:"fingerprint"`
	Status      int             `json:"status,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

func (i Idem) key(r *http.Request, header string) string {
	owner, _ := UserID(r.Context())
	sum := sha256.Sum256([]byte(owner + "|" + r.Method + "|" + r.URL.Path + "|" + header))
	prefix := i.Prefix
	if prefix == "" {
		prefix = "idem"
	}
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// bodyFingerprint reads the request body, restores it for the next handler
// and returns its hash.
func bodyFingerprint(r *http.Request) (string, error) {
	if r.Body == nil {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:]), nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return "", err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Middleware enforces idempotency semantics for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		fingerprint, err := bodyFingerprint(r)
		if err != nil {
			JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "could not read request body", nil)
			return
		}
		ctx := r.Context()
		key := i.key(r, header)
		claim, _ := json.Marshal(idemRecord{State: idemPending, Fingerprint: fingerprint})
		ok, err := i.R.SetNX(ctx, key, claim, i.TTL).Result()
		if err != nil {
			// Redis unavailable: process without replay protection.
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			i.replay(ctx, w, key, fingerprint)
			return
		}

		bg := context.WithoutCancel(ctx)
		defer func() {
			if rec := recover(); rec != nil {
				_ = i.R.Del(bg, key).Err()
				panic(rec)
			}
		}()

		capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(capture, r)

		if capture.status >= http.StatusInternalServerError || !json.Valid(capture.body.Bytes()) {
			_ = i.R.Del(bg, key).Err()
			return
		}
		payload, err := json.Marshal(idemRecord{
			State:       idemDone,
			Fingerprint: fingerprint,
			Status:      capture.status,
			Body:        capture.body.Bytes(),
		})
		if err != nil {
			_ = i.R.Del(bg, key).Err()
			return
		}
		_ = i.R.Set(bg, key, payload, i.TTL).Err()
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key, fingerprint string) {
	raw, err := i.R.Get(ctx, key).Bytes()
	if err != nil {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_IN_PROGRESS", "a request with this idempotency key is still being processed", nil)
		return
	}
	var stored idemRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
		return
	}
	if stored.Fingerprint != fingerprint {
		JSONError(w, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED",
			"this idempotency key was already used with a different request body", nil)
		return
	}
	if stored.State == idemPending {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_IN_PROGRESS", "a request with this idempotency key is still being processed", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
