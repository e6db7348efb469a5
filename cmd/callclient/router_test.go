package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callkit/internal/core/domain"
	"callkit/internal/core/ports"
	"callkit/internal/core/services"
	"callkit/internal/core/signaling"
	"callkit/pkg/logger"
)

type stubSubscription struct{}

func (stubSubscription) Unsubscribe() {}

type stubGateway struct{}

func (stubGateway) Send(context.Context, signaling.Command) error { return nil }
func (stubGateway) Subscribe(func(signaling.Event)) ports.Subscription {
	return stubSubscription{}
}
func (stubGateway) Close() error { return nil }

type stubTrack struct {
	kind   domain.MediaKind
	source domain.TrackSource
}

func (t stubTrack) Kind() domain.MediaKind         { return t.kind }
func (t stubTrack) Source() domain.TrackSource     { return t.source }
func (t stubTrack) RTPParameters() json.RawMessage { return json.RawMessage(`{}`) }
func (t stubTrack) Close() error                   { return nil }

type stubEngine struct{}

func (stubEngine) LoadCapabilities(context.Context, json.RawMessage) (domain.CapabilityProfile, error) {
	return domain.CapabilityProfile{RTPCapabilities: json.RawMessage(`{"codecs":[]}`)}, nil
}

func (stubEngine) AcquireTracks(_ context.Context, audio, video bool) (ports.LocalTracks, error) {
	var tracks ports.LocalTracks
	if audio {
		tracks.Audio = stubTrack{kind: domain.KindAudio, source: domain.SourceMicrophone}
	}
	if video {
		tracks.Video = stubTrack{kind: domain.KindVideo, source: domain.SourceCamera}
	}
	return tracks, nil
}

func (stubEngine) AcquireScreenTrack(context.Context) (ports.LocalTrack, error) {
	return stubTrack{kind: domain.KindVideo, source: domain.SourceScreen}, nil
}

func (stubEngine) CreateTransport(context.Context, ports.TransportParams) (ports.MediaTransport, error) {
	return nil, nil
}

func (stubEngine) CreateReceiver(context.Context, domain.TransportID, domain.ConsumerID, domain.ProducerID, domain.MediaKind, json.RawMessage) (ports.RemoteTrack, error) {
	return nil, nil
}

func (stubEngine) NetworkSignal() domain.NetworkSignal      { return domain.NetworkSignal{} }
func (stubEngine) SetAudioLevelHandler(func(level float64)) {}
func (stubEngine) Release()                                 {}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logger.NewNop()
	manager := services.NewCallSessionManager(services.Options{
		ClientID:          "local-user",
		DisplayName:       "Local User",
		AudioEnabled:      true,
		SpeakingThreshold: 0.05,
		SilenceTimeout:    500 * time.Millisecond,
	}, stubGateway{}, stubEngine{}, ports.MediaSinks{}, nil, log)
	return newRouter(manager, log)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStateIdleByDefault(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodGet, "/call/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap services.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.SessionIdle, snap.State)
}

func TestStartThenStateActive(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/call/start", `{"channel_id":"room-7"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/call/state", "")
	var snap services.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.SessionActive, snap.State)
	assert.Equal(t, domain.ChannelID("room-7"), snap.ChannelID)
}

func TestStateSerializesSnakeCase(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/call/start", `{"channel_id":"room-7"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/call/state", "")
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Contains(t, raw, "local")

	var local map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["local"], &local))
	assert.Contains(t, local, "display_name")
	assert.Contains(t, local, "media")
	assert.NotContains(t, local, "DisplayName")

	var media map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(local["media"], &media))
	assert.Contains(t, media, "audio")
	assert.Contains(t, media, "screen")
}

func TestStartRejectsMissingChannel(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/call/start", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRejectsInvalidChannelID(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/call/start", `{"channel_id":"room 7!"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSecondStartConflicts(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/call/start", `{"channel_id":"room-7"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/call/start", `{"channel_id":"room-8"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLeaveWithoutSessionConflicts(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/call/leave", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestToggleUnknownKind(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/call/toggle/hologram", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQualityRejectsUnknownTier(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/call/quality", `{"tier":"warp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQualityAcceptsKnownTier(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/call/quality", `{"tier":"slow"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
