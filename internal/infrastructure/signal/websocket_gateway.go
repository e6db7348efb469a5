// Package signal implements the SignalingGateway port over a WebSocket
// connection to the media-relay coordinator.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"callkit/internal/core/ports"
	"callkit/internal/core/signaling"
	"callkit/pkg/circuitbreaker"
	callerrors "callkit/pkg/errors"
	"callkit/pkg/retry"
	"callkit/pkg/validation"
)

// Config configures the gateway connection.
type Config struct {
	URL               string
	ClientID          string
	TokenSecret       string
	TokenTTL          time.Duration
	DialTimeout       time.Duration
	DialAttempts      int
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	CommandsPerSecond float64
	Burst             int
}

// envelope is the wire frame in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// WebSocketGateway is the gorilla/websocket implementation of
// ports.SignalingGateway. A single read pump goroutine parses inbound
// frames into the typed event set and fans them out to subscribers;
// malformed frames are logged and discarded. Outbound commands pass a
// rate limiter and a circuit breaker before hitting the socket.
type WebSocketGateway struct {
	cfg     Config
	conn    *websocket.Conn
	log     *zap.SugaredLogger
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker

	writeMu sync.Mutex

	subMu   sync.RWMutex
	subs    map[int]func(signaling.Event)
	nextSub int

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the coordinator, retrying with exponential backoff,
// and starts the read pump.
func Dial(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*WebSocketGateway, error) {
	if err := validation.ValidateURL(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid signaling URL: %w", err)
	}

	token, err := signJoinToken(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to sign join token: %w", err)
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.DialAttempts

	conn, err := retry.RetryWithResult(ctx, retryCfg, func() (*websocket.Conn, error) {
		c, resp, dialErr := dialer.DialContext(ctx, cfg.URL, header)
		if dialErr != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %w (status %d)", cfg.URL, dialErr, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", cfg.URL, dialErr)
		}
		return c, nil
	})
	if err != nil {
		return nil, callerrors.NewSignalingError("failed to connect to signaling coordinator", err)
	}

	g := &WebSocketGateway{
		cfg:     cfg,
		conn:    conn,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.CommandsPerSecond), cfg.Burst),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		subs:    make(map[int]func(signaling.Event)),
		done:    make(chan struct{}),
	}
	g.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		g.log.Warnw("signaling breaker state changed", "from", from, "to", to)
	})

	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	go g.readPump()
	go g.pingLoop()

	log.Infow("connected to signaling coordinator", "url", cfg.URL)
	return g, nil
}

// signJoinToken issues the short-lived HS256 credential attached on dial.
func signJoinToken(cfg Config) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": cfg.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(cfg.TokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.TokenSecret))
}

// Send encodes and writes one command.
func (g *WebSocketGateway) Send(ctx context.Context, cmd signaling.Command) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return callerrors.NewSignalingError("command rate limit wait aborted", err).
			WithContext("command_type", string(cmd.CommandType()))
	}

	data, err := encodeCommand(cmd)
	if err != nil {
		return callerrors.NewSignalingError("failed to encode command", err).
			WithContext("command_type", string(cmd.CommandType()))
	}

	err = g.breaker.Execute(func() error {
		g.writeMu.Lock()
		defer g.writeMu.Unlock()
		_ = g.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
		return g.conn.WriteMessage(websocket.TextMessage, data)
	})
	if err != nil {
		return callerrors.NewSignalingError("failed to send command", err).
			WithContext("command_type", string(cmd.CommandType()))
	}
	commandsTotal.WithLabelValues(string(cmd.CommandType())).Inc()
	return nil
}

type subscription struct {
	cancel func()
	once   sync.Once
}

func (s *subscription) Unsubscribe() { s.once.Do(s.cancel) }

// Subscribe registers an event listener and returns its handle.
func (g *WebSocketGateway) Subscribe(fn func(signaling.Event)) ports.Subscription {
	g.subMu.Lock()
	defer g.subMu.Unlock()

	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn

	return &subscription{cancel: func() {
		g.subMu.Lock()
		defer g.subMu.Unlock()
		delete(g.subs, id)
	}}
}

// Close shuts the connection down.
func (g *WebSocketGateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		g.writeMu.Lock()
		_ = g.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(g.cfg.WriteTimeout),
		)
		g.writeMu.Unlock()
		err = g.conn.Close()
	})
	return err
}

func (g *WebSocketGateway) readPump() {
	for {
		_, data, err := g.conn.ReadMessage()
		if err != nil {
			select {
			case <-g.done:
			default:
				g.log.Errorw("signaling read failed", "error", err)
			}
			return
		}

		ev, err := parseEvent(data)
		if err != nil {
			malformedFramesTotal.Inc()
			g.log.Warnw("discarding malformed signaling frame", "error", err)
			continue
		}
		eventsTotal.WithLabelValues(string(ev.EventType())).Inc()
		g.publish(ev)
	}
}

func (g *WebSocketGateway) publish(ev signaling.Event) {
	g.subMu.RLock()
	fns := make([]func(signaling.Event), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.subMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (g *WebSocketGateway) pingLoop() {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.writeMu.Lock()
			err := g.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(g.cfg.WriteTimeout))
			g.writeMu.Unlock()
			if err != nil {
				g.log.Warnw("signaling ping failed", "error", err)
				return
			}
		}
	}
}

// encodeCommand wraps a command in the wire envelope.
func encodeCommand(cmd signaling.Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: string(cmd.CommandType()), Payload: payload})
}

// parseEvent validates one inbound frame and parses it into the typed
// event set. Unknown types and invalid payloads are rejected here so the
// core only ever sees well-formed events.
func parseEvent(data []byte) (signaling.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, callerrors.NewProtocolViolation("invalid envelope", err)
	}

	switch signaling.EventType(env.Type) {
	case signaling.EventCapabilityDescription:
		var e signaling.CapabilityDescription
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateChannelID(string(e.RoomID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		if len(e.Capabilities) == 0 {
			return nil, invalidField(env.Type, fmt.Errorf("capabilities are required"))
		}
		return e, nil

	case signaling.EventTransportCreated:
		var e signaling.TransportCreated
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateTransportID(string(e.TransportID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		if e.Direction != "send" && e.Direction != "recv" {
			return nil, invalidField(env.Type, fmt.Errorf("invalid direction %q", e.Direction))
		}
		return e, nil

	case signaling.EventTransportConnected:
		var e signaling.TransportConnected
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateTransportID(string(e.TransportID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		return e, nil

	case signaling.EventProducerCreated:
		var e signaling.ProducerCreated
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateTransportID(string(e.TransportID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		if err := validation.ValidateProducerID(string(e.ProducerID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		return e, nil

	case signaling.EventNewRemoteProducer:
		var e signaling.NewRemoteProducer
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateProducerID(string(e.ProducerID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		if err := validation.ValidateParticipantID(string(e.OwnerID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		if err := validation.ValidateMediaKind(string(e.Kind)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		return e, nil

	case signaling.EventConsumerCreated:
		var e signaling.ConsumerCreated
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateConsumerID(string(e.ConsumerID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		if err := validation.ValidateProducerID(string(e.ProducerID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		if err := validation.ValidateParticipantID(string(e.OwnerID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		if err := validation.ValidateMediaKind(string(e.Kind)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		return e, nil

	case signaling.EventConsumerResumed:
		var e signaling.ConsumerResumed
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateConsumerID(string(e.ConsumerID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		return e, nil

	case signaling.EventPeerJoined:
		var e signaling.PeerJoined
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateParticipantID(string(e.UserID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		return e, nil

	case signaling.EventPeerLeft:
		var e signaling.PeerLeft
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateParticipantID(string(e.UserID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		return e, nil

	case signaling.EventMediaStateChanged:
		var e signaling.MediaStateChanged
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateParticipantID(string(e.UserID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		return e, nil

	case signaling.EventScreenShareChanged:
		var e signaling.ScreenShareChanged
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateParticipantID(string(e.UserID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		return e, nil

	case signaling.EventSpeakingChanged:
		var e signaling.SpeakingChanged
		if err := unmarshalPayload(env, &e); err != nil {
			return nil, err
		}
		if err := validation.ValidateParticipantID(string(e.UserID)); err != nil {
			return nil, invalidField(env.Type, err)
		}
		return e, nil

	default:
		return nil, callerrors.NewProtocolViolation("unknown event type", nil).
			WithContext("type", env.Type)
	}
}

func unmarshalPayload(env envelope, out interface{}) error {
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return callerrors.NewProtocolViolation("invalid event payload", err).
			WithContext("type", env.Type)
	}
	return nil
}

func invalidField(eventType string, err error) error {
	return callerrors.NewProtocolViolation("invalid event field", err).
		WithContext("type", eventType)
}
