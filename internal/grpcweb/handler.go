package grpcweb

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"meeting-booking-api/internal/grpcapi"
	"meeting-booking-api/internal/logger"
	"meeting-booking-api/internal/middleware"
)

// maxFrame caps the request body a browser may send through the bridge.
const maxFrame = 1 << 20

// Bridge translates gRPC-Web (browser HTTP/1.1) to native gRPC.
type Bridge struct {
	conn  grpc.ClientConnInterface
	close func() error
	log   *logger.Logger
}

// New dials the gRPC server at addr (e.g. "localhost:50051").
func New(addr string, log *logger.Logger) (*Bridge, error) {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpcweb dial: %w", err)
	}
	return &Bridge{conn: conn, close: conn.Close, log: log}, nil
}

// NewWithConn forwards over an existing connection, which the caller closes.
func NewWithConn(conn grpc.ClientConnInterface, log *logger.Logger) *Bridge {
	return &Bridge{conn: conn, log: log}
}

func (b *Bridge) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// RegisterRoutes exposes the meeting service methods at their gRPC paths.
func (b *Bridge) RegisterRoutes(router *httprouter.Router) {
	path := "/" + grpcapi.ServiceName + "/:method"
	router.POST(path, b.Handle)
	router.OPTIONS(path, b.Handle)
}

func (b *Bridge) Handle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers",
		"Content-Type, X-Grpc-Web, X-User-Agent, Idempotency-Key, x-grpc-web")
	w.Header().Set("Access-Control-Expose-Headers",
		"Grpc-Status, Grpc-Message, grpc-status, grpc-message")
	w.Header().Set("Access-Control-Max-Age", "86400")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc-web") {
		http.Error(w, "not grpc-web", http.StatusUnsupportedMediaType)
		return
	}

	b.forward(w, r)
}

func (b *Bridge) forward(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrame+5))
	if err != nil {
		writeError(w, codes.Internal, "read body failed")
		return
	}
	if len(body) < 5 {
		writeError(w, codes.InvalidArgument, "body too short")
		return
	}

	// grpc-web frame: 1-byte flag + 4-byte big-endian length + protobuf
	msgLen := binary.BigEndian.Uint32(body[1:5])
	if int(msgLen)+5 > len(body) {
		writeError(w, codes.InvalidArgument, "incomplete frame")
		return
	}
	payload := body[5 : 5+msgLen]

	// the server's rate limiter keys on this instead of the bridge's address
	ctx := metadata.AppendToOutgoingContext(r.Context(), middleware.ForwardedForKey, remoteIP(r))

	resp := &rawMsg{}
	err = b.conn.Invoke(ctx, r.URL.Path, &rawMsg{data: payload}, resp, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		st, _ := status.FromError(err)
		b.log.Info("grpc-web call failed",
			"method", r.URL.Path,
			"code", st.Code().String(),
			"message", st.Message(),
		)
		writeError(w, st.Code(), st.Message())
		return
	}

	writeSuccess(w, resp.data)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rawMsg wraps raw protobuf bytes.
type rawMsg struct{ data []byte }

// rawCodec passes bytes through without marshal/unmarshal.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	return v.(*rawMsg).data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	m := v.(*rawMsg)
	m.data = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return "proto" }

func frame(flag byte, data []byte) []byte {
	f := make([]byte, 5+len(data))
	f[0] = flag
	binary.BigEndian.PutUint32(f[1:5], uint32(len(data)))
	copy(f[5:], data)
	return f
}

func trailer(code codes.Code, msg string) []byte {
	t := fmt.Sprintf("grpc-status:%d\r\n", code)
	if msg != "" {
		msg = strings.NewReplacer("\r", " ", "\n", " ").Replace(msg)
		t += "grpc-message:" + msg + "\r\n"
	}
	return frame(0x80, []byte(t))
}

func writeError(w http.ResponseWriter, code codes.Code, msg string) {
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(trailer(code, msg))
}

func writeSuccess(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame(0x00, data))
	_, _ = w.Write(trailer(codes.OK, ""))
}
