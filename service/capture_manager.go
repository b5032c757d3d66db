package service

import (
	"context"
	"errors"
	"sync"

	"github.com/keepsakehq/keepsake/capture"
	"github.com/keepsakehq/keepsake/pkg/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrSessionNotFound = errors.New("capture session not found")

// CaptureManager owns the live recording sessions. Independent sessions may
// record concurrently without sharing state; each holds its own device
// stream.
type CaptureManager struct {
	source  capture.DeviceSource
	prober  capture.EncodingProber
	stories *StoryService
	logger  *logrus.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*capture.Session
}

func NewCaptureManager(source capture.DeviceSource, prober capture.EncodingProber, stories *StoryService, logger *logrus.Logger) *CaptureManager {
	return &CaptureManager{
		source:   source,
		prober:   prober,
		stories:  stories,
		logger:   logger,
		sessions: make(map[uuid.UUID]*capture.Session),
	}
}

// StartSession creates a session and begins recording immediately. On device
// acquisition failure no session is retained.
func (m *CaptureManager) StartSession(ctx context.Context, mode capture.Mode, deviceID string) (uuid.UUID, error) {
	session := capture.NewSession(m.source, m.prober, mode, deviceID)
	if err := session.Start(ctx); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	metrics.ActiveRecordingSessions.Inc()
	m.logger.WithField("session_id", id).WithField("mode", mode).Info("recording session started")
	return id, nil
}

func (m *CaptureManager) get(id uuid.UUID) (*capture.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// StopSession finalizes the take for review and releases the device.
func (m *CaptureManager) StopSession(id uuid.UUID) (*capture.Blob, error) {
	session, err := m.get(id)
	if err != nil {
		return nil, err
	}
	wasRecording := session.State() == capture.StateRecording
	blob, err := session.Stop()
	if err != nil {
		return nil, err
	}
	if wasRecording {
		metrics.ActiveRecordingSessions.Dec()
	}
	return blob, nil
}

// RetakeSession discards the reviewed take; the session stays alive for a
// fresh Start.
func (m *CaptureManager) RetakeSession(ctx context.Context, id uuid.UUID) error {
	session, err := m.get(id)
	if err != nil {
		return err
	}
	if err := session.Retake(); err != nil {
		return err
	}
	if err := session.Start(ctx); err != nil {
		return err
	}
	metrics.ActiveRecordingSessions.Inc()
	return nil
}

// SaveSession runs the reviewed blob through the primary save path and
// removes the session on success. A failed save leaves the session in its
// Failed state so the save can be retried without a new capture.
func (m *CaptureManager) SaveSession(ctx context.Context, id, storyID, userID uuid.UUID) (*SaveResult, error) {
	session, err := m.get(id)
	if err != nil {
		return nil, err
	}

	blob, err := session.BeginSave()
	if err != nil {
		return nil, err
	}

	result, saveErr := m.stories.SaveRecording(ctx, storyID, userID, blob)
	if ferr := session.FinishSave(saveErr); ferr != nil {
		m.logger.WithError(ferr).Error("session state desync on save completion")
	}
	if saveErr != nil {
		return nil, saveErr
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return result, nil
}

// CloseSession tears a session down from any state, releasing the device if
// it is still held.
func (m *CaptureManager) CloseSession(id uuid.UUID) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if session.State() == capture.StateRecording {
		metrics.ActiveRecordingSessions.Dec()
	}
	return session.Close()
}

// SessionStatus reports the session state and elapsed counter for UI
// polling.
func (m *CaptureManager) SessionStatus(id uuid.UUID) (capture.State, int, error) {
	session, err := m.get(id)
	if err != nil {
		return "", 0, err
	}
	return session.State(), session.ElapsedSeconds(), nil
}

// CloseAll tears down every live session, for shutdown paths. No device may
// stay held after the process exits the serving loop.
func (m *CaptureManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*capture.Session)
	m.mu.Unlock()

	for id, session := range sessions {
		if session.State() == capture.StateRecording {
			metrics.ActiveRecordingSessions.Dec()
		}
		if err := session.Close(); err != nil {
			m.logger.WithError(err).WithField("session_id", id).Warn("failed to close capture session")
		}
	}
}
