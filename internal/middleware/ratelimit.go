package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"meeting-booking-api/internal/logger"
)

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	burst   int
	stopCh  chan struct{}
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*client),
		r:       rate.Limit(rps),
		burst:   burst,
		stopCh:  make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup drops clients idle for more than three minutes
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for addr, c := range rl.clients {
				if time.Since(c.seen) > 3*time.Minute {
					delete(rl.clients, addr)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *RateLimiter) get(addr string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if c, ok := rl.clients[addr]; ok {
		c.seen = time.Now()
		return c.lim
	}
	l := rate.NewLimiter(rl.r, rl.burst)
	rl.clients[addr] = &client{lim: l, seen: time.Now()}
	return l
}

// Allow reports whether addr may make another request now.
func (rl *RateLimiter) Allow(addr string) bool {
	return rl.get(addr).Allow()
}

// RateLimit answers 429 once a client IP exhausts its bucket.
func RateLimit(rl *RateLimiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.Allow(ip) {
				log.Warn("Rate limit exceeded",
					"request_id", RequestIDFromContext(r.Context()),
					"client", ip,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"result":"Too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// methods that should be rate limited
var limited = map[string]bool{
	"/meeting.v1.MeetingService/ScheduleMeeting": true,
}

// ForwardedForKey carries the original client IP on calls relayed by a local
// proxy such as the gRPC-Web bridge.
const ForwardedForKey = "x-forwarded-for"

// UnaryRateLimit keys on the peer IP, or on the forwarded client IP when the
// peer is a local proxy.
func UnaryRateLimit(rl *RateLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !limited[info.FullMethod] {
			return next(ctx, req)
		}
		addr := peerKey(ctx)
		if !rl.Allow(addr) {
			return nil, status.Error(codes.ResourceExhausted, "too many requests")
		}
		return next(ctx, req)
	}
}

func peerKey(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	if localPeer(p.Addr) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(ForwardedForKey); len(v) > 0 && v[0] != "" {
				return strings.TrimSpace(strings.Split(v[0], ",")[0])
			}
		}
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return addr
}

// localPeer is true for loopback TCP and for in-process or unix transports.
func localPeer(addr net.Addr) bool {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.IsLoopback()
	}
	return addr.Network() != "tcp"
}
