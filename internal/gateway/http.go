// Package gateway exposes the broker operations over HTTP. The server is
// stateless with respect to the broker: every request carries its own
// connection descriptor, each handler opens one session, performs one
// operation, and closes the session before the response is written.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/nuetzliches/busgate/internal/sbus"
	"github.com/nuetzliches/busgate/internal/store"
)

const (
	// ConnectionHeader carries the base64-encoded JSON connection
	// descriptor for broker-facing routes.
	ConnectionHeader = "X-Busgate-Connection"

	defaultMaxBodyBytes = 2 << 20 // 2 MiB

	codeValidation   = "validation_error"
	codeConnectivity = "connectivity_error"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeBroker       = "broker_error"

	codeUnauthorized     = "unauthorized"
	codeMethodNotAllowed = "method_not_allowed"
	codeInvalidBody      = "invalid_body"
	codeInvalidQuery     = "invalid_query"
	codeStoreUnavailable = "store_unavailable"
)

type Authorizer func(r *http.Request) bool

// BearerTokenAuthorizer accepts requests carrying any of the configured
// bearer tokens. An empty token set means authorization is disabled.
func BearerTokenAuthorizer(tokens [][]byte) Authorizer {
	allowed := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		if len(t) == 0 {
			continue
		}
		cp := make([]byte, len(t))
		copy(cp, t)
		allowed = append(allowed, cp)
	}

	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}

		h := r.Header.Get("Authorization")
		if h == "" {
			return false
		}
		const prefix = "Bearer "
		if !strings.HasPrefix(h, prefix) {
			return false
		}
		got := strings.TrimSpace(strings.TrimPrefix(h, prefix))
		if got == "" {
			return false
		}
		gb := []byte(got)
		for _, want := range allowed {
			if subtle.ConstantTimeCompare(gb, want) == 1 {
				return true
			}
		}
		return false
	}
}

type Server struct {
	Dial              sbus.Dialer
	Store             store.Store
	Authorize         Authorizer
	Logger            *slog.Logger
	HealthDiagnostics func() map[string]any
	ResolvePeekLimits func() sbus.PeekLimits
	ObserveOperation  func(op string, err error)
	MaxBodyBytes      int64
}

func NewServer(dial sbus.Dialer) *Server {
	return &Server{
		Dial:         dial,
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

type errorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.Authorize != nil && !s.Authorize(r) {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "request is not authorized")
		return
	}

	cleanPath := path.Clean(r.URL.Path)
	switch {
	case cleanPath == "/healthz":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleHealthz(w, r)
	case cleanPath == "/connection/test":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		s.handleConnectionTest(w, r)
	case cleanPath == "/queues":
		switch r.Method {
		case http.MethodGet:
			s.handleQueueList(w, r)
		case http.MethodPost:
			s.handleQueueCreate(w, r)
		default:
			writeMethodNotAllowed(w, "GET or POST")
		}
	case strings.HasPrefix(cleanPath, "/queues/"):
		s.handleQueueResource(w, r, cleanPath)
	case cleanPath == "/topics":
		switch r.Method {
		case http.MethodGet:
			s.handleTopicList(w, r)
		case http.MethodPost:
			s.handleTopicCreate(w, r)
		default:
			writeMethodNotAllowed(w, "GET or POST")
		}
	case strings.HasPrefix(cleanPath, "/topics/"):
		s.handleTopicResource(w, r, cleanPath)
	case cleanPath == "/messages/peek":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		s.handlePeek(w, r, false)
	case cleanPath == "/messages/dead-letter/peek":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		s.handlePeek(w, r, true)
	case cleanPath == "/messages/send":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		s.handleSend(w, r)
	case cleanPath == "/profiles":
		switch r.Method {
		case http.MethodGet:
			s.handleProfileList(w, r)
		case http.MethodPost:
			s.handleProfileCreate(w, r)
		default:
			writeMethodNotAllowed(w, "GET or POST")
		}
	case strings.HasPrefix(cleanPath, "/profiles/"):
		s.handleProfileResource(w, r, cleanPath)
	default:
		writeError(w, http.StatusNotFound, codeNotFound, "resource was not found")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	detailsRaw := strings.TrimSpace(r.URL.Query().Get("details"))
	details, ok := parseBoolParam(detailsRaw)
	if !ok {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, "details must be true|false")
		return
	}
	if !details {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
		return
	}

	diagnostics := map[string]any{}
	if s.HealthDiagnostics != nil {
		if v := s.HealthDiagnostics(); v != nil {
			diagnostics = v
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":          true,
		"time":        time.Now().UTC().Format(time.RFC3339Nano),
		"diagnostics": diagnostics,
	})
}

// handleConnectionTest probes a descriptor. The answer is always a boolean;
// whatever goes wrong while probing is the meaning of false, not an error.
func (s *Server) handleConnectionTest(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error())
		return
	}
	conn, err := sbus.ParseConnection(body)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	valid := sbus.TestConnection(r.Context(), s.Logger, s.Dial, conn)
	s.observe("connection_test", nil)
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid})
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, "queue_list", func(ctx context.Context, sess sbus.Session) error {
		queues, err := sess.ListQueues(ctx)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"queues": queues})
		return nil
	})
}

type createQueueRequest struct {
	Name       string                `json:"name"`
	Properties *sbus.QueueProperties `json:"properties,omitempty"`
}

func (s *Server) handleQueueCreate(w http.ResponseWriter, r *http.Request) {
	var req createQueueRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.withSession(w, r, "queue_create", func(ctx context.Context, sess sbus.Session) error {
		created, err := sess.CreateQueue(ctx, req.Name, req.Properties)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, created)
		return nil
	})
}

func (s *Server) handleQueueResource(w http.ResponseWriter, r *http.Request, cleanPath string) {
	rest := strings.TrimPrefix(cleanPath, "/queues/")
	name, sub, _ := strings.Cut(rest, "/")
	if name == "" {
		writeError(w, http.StatusNotFound, codeNotFound, "resource was not found")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.withSession(w, r, "queue_get", func(ctx context.Context, sess sbus.Session) error {
				q, err := sess.GetQueue(ctx, name)
				if err != nil {
					return err
				}
				writeJSON(w, http.StatusOK, q)
				return nil
			})
		case http.MethodPut:
			var overlay sbus.QueueProperties
			if !s.decodeBody(w, r, &overlay) {
				return
			}
			s.withSession(w, r, "queue_update", func(ctx context.Context, sess sbus.Session) error {
				updated, err := sess.UpdateQueue(ctx, name, overlay)
				if err != nil {
					return err
				}
				writeJSON(w, http.StatusOK, updated)
				return nil
			})
		case http.MethodDelete:
			s.withSession(w, r, "queue_delete", func(ctx context.Context, sess sbus.Session) error {
				if err := sess.DeleteQueue(ctx, name); err != nil {
					return err
				}
				writeJSON(w, http.StatusOK, map[string]any{"success": true})
				return nil
			})
		default:
			writeMethodNotAllowed(w, "GET, PUT or DELETE")
		}
	case "purge":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		deadLetter, ok := parseBoolParam(strings.TrimSpace(r.URL.Query().Get("deadLetter")))
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, "deadLetter must be true|false")
			return
		}
		s.withSession(w, r, "queue_purge", func(ctx context.Context, sess sbus.Session) error {
			purged, err := sess.Purge(ctx, name, deadLetter)
			if err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, map[string]any{"purgedCount": purged})
			return nil
		})
	default:
		writeError(w, http.StatusNotFound, codeNotFound, "resource was not found")
	}
}

func (s *Server) handleTopicList(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, "topic_list", func(ctx context.Context, sess sbus.Session) error {
		topics, err := sess.ListTopics(ctx)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
		return nil
	})
}

type createTopicRequest struct {
	Name       string                `json:"name"`
	Properties *sbus.TopicProperties `json:"properties,omitempty"`
}

func (s *Server) handleTopicCreate(w http.ResponseWriter, r *http.Request) {
	var req createTopicRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.withSession(w, r, "topic_create", func(ctx context.Context, sess sbus.Session) error {
		if _, err := sess.CreateTopic(ctx, req.Name, req.Properties); err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true})
		return nil
	})
}

func (s *Server) handleTopicResource(w http.ResponseWriter, r *http.Request, cleanPath string) {
	rest := strings.TrimPrefix(cleanPath, "/topics/")
	topic, sub, _ := strings.Cut(rest, "/")
	if topic == "" {
		writeError(w, http.StatusNotFound, codeNotFound, "resource was not found")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.withSession(w, r, "topic_get", func(ctx context.Context, sess sbus.Session) error {
				t, err := sess.GetTopic(ctx, topic)
				if err != nil {
					return err
				}
				writeJSON(w, http.StatusOK, t)
				return nil
			})
		case http.MethodPut:
			var overlay sbus.TopicProperties
			if !s.decodeBody(w, r, &overlay) {
				return
			}
			s.withSession(w, r, "topic_update", func(ctx context.Context, sess sbus.Session) error {
				updated, err := sess.UpdateTopic(ctx, topic, overlay)
				if err != nil {
					return err
				}
				writeJSON(w, http.StatusOK, updated)
				return nil
			})
		case http.MethodDelete:
			s.withSession(w, r, "topic_delete", func(ctx context.Context, sess sbus.Session) error {
				if err := sess.DeleteTopic(ctx, topic); err != nil {
					return err
				}
				writeJSON(w, http.StatusOK, map[string]any{"success": true})
				return nil
			})
		default:
			writeMethodNotAllowed(w, "GET, PUT or DELETE")
		}
	case "subscriptions":
		switch r.Method {
		case http.MethodGet:
			s.withSession(w, r, "subscription_list", func(ctx context.Context, sess sbus.Session) error {
				subs, err := sess.ListSubscriptions(ctx, topic)
				if err != nil {
					return err
				}
				writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
				return nil
			})
		case http.MethodPost:
			var req createSubscriptionRequest
			if !s.decodeBody(w, r, &req) {
				return
			}
			s.withSession(w, r, "subscription_create", func(ctx context.Context, sess sbus.Session) error {
				created, err := sess.CreateSubscription(ctx, topic, req.Name, req.Properties)
				if err != nil {
					return err
				}
				writeJSON(w, http.StatusCreated, created)
				return nil
			})
		default:
			writeMethodNotAllowed(w, "GET or POST")
		}
	default:
		writeError(w, http.StatusNotFound, codeNotFound, "resource was not found")
	}
}

type createSubscriptionRequest struct {
	Name       string                       `json:"name"`
	Properties *sbus.SubscriptionProperties `json:"properties,omitempty"`
}

type peekRequest struct {
	QueueName        string `json:"queueName,omitempty"`
	TopicName        string `json:"topicName,omitempty"`
	SubscriptionName string `json:"subscriptionName,omitempty"`
	MaxCount         int    `json:"maxCount,omitempty"`
}

func (s *Server) handlePeek(w http.ResponseWriter, r *http.Request, deadLetter bool) {
	var req peekRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	addr, err := sbus.ResolveAddress(req.QueueName, req.TopicName, req.SubscriptionName)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	count := s.peekLimits().Clamp(req.MaxCount)

	op := "peek"
	if deadLetter {
		op = "peek_dead_letter"
	}
	s.withSession(w, r, op, func(ctx context.Context, sess sbus.Session) error {
		messages, err := sess.Peek(ctx, addr, deadLetter, count)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
		return nil
	})
}

type sendRequest struct {
	QueueName string       `json:"queueName,omitempty"`
	TopicName string       `json:"topicName,omitempty"`
	Message   sbus.Message `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	dest, err := sbus.ResolveDestination(req.QueueName, req.TopicName)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.withSession(w, r, "send", func(ctx context.Context, sess sbus.Session) error {
		if err := sess.Send(ctx, dest, req.Message); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return nil
	})
}

func (s *Server) handleProfileList(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, "profile store is not configured")
		return
	}
	profiles, err := s.Store.ListProfiles(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleProfileCreate(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, "profile store is not configured")
		return
	}
	var p store.Profile
	if !s.decodeBody(w, r, &p) {
		return
	}
	if strings.TrimSpace(p.Name) == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "profile name is required")
		return
	}
	created, err := s.Store.CreateProfile(r.Context(), p)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleProfileResource(w http.ResponseWriter, r *http.Request, cleanPath string) {
	if s.Store == nil {
		writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, "profile store is not configured")
		return
	}
	rest := strings.TrimPrefix(cleanPath, "/profiles/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, codeNotFound, "resource was not found")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			p, err := s.Store.GetProfile(r.Context(), id)
			if err != nil {
				s.writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
		case http.MethodPut:
			var p store.Profile
			if !s.decodeBody(w, r, &p) {
				return
			}
			if strings.TrimSpace(p.Name) == "" {
				writeError(w, http.StatusBadRequest, codeValidation, "profile name is required")
				return
			}
			p.ID = id
			updated, err := s.Store.UpdateProfile(r.Context(), p)
			if err != nil {
				s.writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			if err := s.Store.DeleteProfile(r.Context(), id); err != nil {
				s.writeStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeMethodNotAllowed(w, "GET, PUT or DELETE")
		}
	case "sort":
		switch r.Method {
		case http.MethodGet:
			pref, ok, err := s.Store.GetSortPreference(r.Context(), id)
			if err != nil {
				s.writeStoreError(w, err)
				return
			}
			if !ok {
				writeError(w, http.StatusNotFound, codeNotFound, "no sort preference is set")
				return
			}
			writeJSON(w, http.StatusOK, pref)
		case http.MethodPut:
			var pref store.SortPreference
			if !s.decodeBody(w, r, &pref) {
				return
			}
			if err := s.Store.SetSortPreference(r.Context(), id, pref); err != nil {
				s.writeStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeMethodNotAllowed(w, "GET or PUT")
		}
	default:
		writeError(w, http.StatusNotFound, codeNotFound, "resource was not found")
	}
}

// withSession runs one broker operation against a freshly dialed session.
// Descriptor validation happens before the dial, so invalid requests never
// touch the broker; the session is closed whatever the operation returns.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, sess sbus.Session) error) {
	conn, err := s.connectionFromHeader(r)
	if err != nil {
		s.observe(op, err)
		s.writeOperationError(w, err)
		return
	}

	ctx := r.Context()
	sess, err := s.Dial.Dial(ctx, conn)
	if err != nil {
		s.observe(op, err)
		s.writeOperationError(w, err)
		return
	}
	defer sbus.CloseSession(context.WithoutCancel(ctx), s.Logger, sess)

	if err := fn(ctx, sess); err != nil {
		s.observe(op, err)
		s.writeOperationError(w, err)
		return
	}
	s.observe(op, nil)
}

func (s *Server) connectionFromHeader(r *http.Request) (sbus.Connection, error) {
	raw := strings.TrimSpace(r.Header.Get(ConnectionHeader))
	if raw == "" {
		return sbus.Connection{}, sbus.Errorf(sbus.KindValidation, "%s header is required", ConnectionHeader)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return sbus.Connection{}, sbus.WrapError(sbus.KindValidation, ConnectionHeader+" header is not valid base64", err)
	}
	conn, err := sbus.ParseConnection(decoded)
	if err != nil {
		return sbus.Connection{}, err
	}
	if err := conn.Validate(); err != nil {
		return sbus.Connection{}, err
	}
	return conn, nil
}

func (s *Server) peekLimits() sbus.PeekLimits {
	if s.ResolvePeekLimits != nil {
		return s.ResolvePeekLimits()
	}
	return sbus.DefaultPeekLimits()
}

func (s *Server) observe(op string, err error) {
	if s.ObserveOperation != nil {
		s.ObserveOperation(op, err)
	}
}

func (s *Server) readBody(r *http.Request) ([]byte, error) {
	maxBytes := s.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, errors.New("request body too large")
	}
	return body, nil
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	body, err := s.readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error())
		return false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "request body is required")
		return false
	}
	if err := json.Unmarshal(body, into); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeOperationError(w http.ResponseWriter, err error) {
	kind := sbus.KindOf(err)
	status, code := statusForKind(kind)
	writeError(w, status, code, err.Error())
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, store.ErrNameTaken):
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeStoreUnavailable, err.Error())
	}
}

func statusForKind(kind sbus.Kind) (int, string) {
	switch kind {
	case sbus.KindValidation:
		return http.StatusBadRequest, codeValidation
	case sbus.KindNotFound:
		return http.StatusNotFound, codeNotFound
	case sbus.KindConflict:
		return http.StatusConflict, codeConflict
	case sbus.KindConnectivity:
		return http.StatusBadGateway, codeConnectivity
	default:
		return http.StatusBadGateway, codeBroker
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	if w == nil {
		return
	}
	code = strings.TrimSpace(code)
	if code == "" {
		code = codeInvalidBody
	}
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Detail: detail})
}

func writeMethodNotAllowed(w http.ResponseWriter, expected string) {
	expected = strings.TrimSpace(expected)
	detail := "method is not allowed"
	if expected != "" {
		detail = fmt.Sprintf("method must be %s", expected)
	}
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, detail)
}

func parseBoolParam(raw string) (value, ok bool) {
	switch strings.ToLower(raw) {
	case "":
		return false, true
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}
