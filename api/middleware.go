package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/monitoring"
	"github.com/warp/creator-rewards/ratelimit"
)

// Identity headers set by the upstream auth proxy.
const (
	HeaderClientID = "X-Client-ID"
	HeaderUserID   = "X-User-ID"
)

const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeLockedOut       = "LOCKED_OUT"
)

// =============================================================================
// IDENTITY
// =============================================================================

// Identity is the resolved caller of a request.
type Identity struct {
	ClientID loyalty.ClientID
	UserID   loyalty.UserID
	IsAdmin  bool
}

type identityKey struct{}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by Identify.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Identify resolves the identity headers to an enrolled creator. Failed
// resolutions count against the caller's address; once the lockout trips
// every request from that address gets 429 until the window passes.
func (h *Handler) Identify(lock *ratelimit.Lockout) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := clientAddr(r)

			if lock != nil {
				locked, err := lock.Locked(ctx, key)
				if err != nil {
					h.Logger.Error("lockout check failed", zap.String("addr", key), zap.Error(err))
				} else if locked {
					writeCodedError(w, http.StatusTooManyRequests, CodeLockedOut, "Too many failed attempts, try again later", nil)
					return
				}
			}

			clientID := loyalty.ClientID(r.Header.Get(HeaderClientID))
			userID := loyalty.UserID(r.Header.Get(HeaderUserID))
			var user *loyalty.User
			if clientID != "" && userID != "" {
				u, err := h.Store.GetUser(ctx, clientID, userID)
				if err != nil {
					writeDomainError(w, loyalty.Internal("resolve identity", err))
					return
				}
				user = u
			}

			if user == nil {
				if lock != nil {
					if err := lock.Fail(ctx, key); err != nil {
						h.Logger.Error("lockout record failed", zap.String("addr", key), zap.Error(err))
					}
				}
				h.Logger.Info("identity rejected",
					zap.String("addr", key),
					zap.String("client_id", string(clientID)),
					zap.String("user_id", string(userID)))
				writeCodedError(w, http.StatusUnauthorized, CodeUnauthenticated, "Unknown creator", nil)
				return
			}

			if lock != nil {
				if err := lock.Succeed(ctx, key); err != nil {
					h.Logger.Error("lockout reset failed", zap.String("addr", key), zap.Error(err))
				}
			}

			id := Identity{ClientID: user.ClientID, UserID: user.ID, IsAdmin: user.IsAdmin}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}

// RequireAdmin rejects callers that are not admins of their client.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok || !id.IsAdmin {
			writeCodedError(w, http.StatusForbidden, CodeForbidden, "Admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// =============================================================================
// LOGGING & METRICS
// =============================================================================

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// Metrics records request counts and latencies by route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		monitoring.HttpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		monitoring.ResponseTimeHistogram.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
