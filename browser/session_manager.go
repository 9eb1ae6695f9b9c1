package browser

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// SessionManager tracks page targets and the flattened CDP sessions attached
// to them.
type SessionManager struct {
	client         *CDPClient
	logger         *slog.Logger
	targets        map[string]*Target
	sessions       map[string]*CDPSession
	targetSessions map[string]map[string]struct{}
	attachWaiters  map[string][]chan *CDPSession
	mu             sync.Mutex
}

func NewSessionManager(client *CDPClient, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		client:         client,
		logger:         logger,
		targets:        make(map[string]*Target),
		sessions:       make(map[string]*CDPSession),
		targetSessions: make(map[string]map[string]struct{}),
		attachWaiters:  make(map[string][]chan *CDPSession),
	}
}

func (sm *SessionManager) StartMonitoring(ctx context.Context) error {
	sm.client.Register("Target.attachedToTarget", sm.handleTargetAttached)
	sm.client.Register("Target.detachedFromTarget", sm.handleTargetDetached)
	sm.client.Register("Target.targetInfoChanged", sm.handleTargetInfoChanged)

	_, err := sm.client.Send(ctx, "Target.setDiscoverTargets", map[string]any{
		"discover": true,
		"filter":   []map[string]string{{"type": "page"}},
	}, "")
	if err != nil {
		return err
	}
	return sm.initializeExistingTargets(ctx)
}

func (sm *SessionManager) initializeExistingTargets(ctx context.Context) error {
	result, err := sm.client.Send(ctx, "Target.getTargets", nil, "")
	if err != nil {
		return err
	}
	var infos []Target
	if raw := result.Get("targetInfos"); raw.Exists() {
		if err := json.Unmarshal([]byte(raw.Raw), &infos); err != nil {
			return err
		}
	}
	for _, info := range infos {
		if !isPageTarget(info.TargetType) {
			continue
		}
		sm.mu.Lock()
		sm.storeTarget(&info)
		sm.mu.Unlock()
		_, _ = sm.client.Send(ctx, "Target.attachToTarget", map[string]any{
			"targetId": info.TargetID,
			"flatten":  true,
		}, "")
	}
	return nil
}

func (sm *SessionManager) handleTargetAttached(event CDPEvent) {
	var payload struct {
		SessionID  string `json:"sessionId"`
		TargetInfo Target `json:"targetInfo"`
	}
	if err := json.Unmarshal(event.Params, &payload); err != nil {
		return
	}
	if payload.SessionID == "" || payload.TargetInfo.TargetID == "" {
		return
	}
	session := &CDPSession{TargetID: payload.TargetInfo.TargetID, SessionID: payload.SessionID}
	if isPageTarget(payload.TargetInfo.TargetType) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = sm.client.Send(ctx, "Page.enable", nil, payload.SessionID)
		_, _ = sm.client.Send(ctx, "Runtime.enable", nil, payload.SessionID)
		cancel()
	}

	sm.mu.Lock()
	sm.storeTarget(&payload.TargetInfo)
	sm.sessions[payload.SessionID] = session
	if sm.targetSessions[payload.TargetInfo.TargetID] == nil {
		sm.targetSessions[payload.TargetInfo.TargetID] = make(map[string]struct{})
	}
	sm.targetSessions[payload.TargetInfo.TargetID][payload.SessionID] = struct{}{}
	waiters := sm.attachWaiters[payload.TargetInfo.TargetID]
	delete(sm.attachWaiters, payload.TargetInfo.TargetID)
	sm.mu.Unlock()

	sm.logger.Debug("attached to target", "target", payload.TargetInfo.TargetID, "session", payload.SessionID)
	for _, waiter := range waiters {
		waiter <- session
	}
}

func (sm *SessionManager) handleTargetDetached(event CDPEvent) {
	var payload struct {
		SessionID string `json:"sessionId"`
		TargetID  string `json:"targetId"`
	}
	if err := json.Unmarshal(event.Params, &payload); err != nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, payload.SessionID)
	if payload.TargetID != "" {
		if sessions := sm.targetSessions[payload.TargetID]; sessions != nil {
			delete(sessions, payload.SessionID)
			if len(sessions) == 0 {
				delete(sm.targetSessions, payload.TargetID)
				delete(sm.targets, payload.TargetID)
			}
		}
	}
}

func (sm *SessionManager) handleTargetInfoChanged(event CDPEvent) {
	var payload struct {
		TargetInfo Target `json:"targetInfo"`
	}
	if err := json.Unmarshal(event.Params, &payload); err != nil {
		return
	}
	sm.mu.Lock()
	sm.storeTarget(&payload.TargetInfo)
	sm.mu.Unlock()
}

// storeTarget must be called with sm.mu held.
func (sm *SessionManager) storeTarget(target *Target) {
	if target == nil || target.TargetID == "" {
		return
	}
	copyTarget := *target
	sm.targets[target.TargetID] = &copyTarget
}

func (sm *SessionManager) GetAllPageTargets() []*Target {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	var targets []*Target
	for _, target := range sm.targets {
		if isPageTarget(target.TargetType) {
			targets = append(targets, target)
		}
	}
	return targets
}

func (sm *SessionManager) GetSessionForTarget(targetID string) *CDPSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for sessionID := range sm.targetSessions[targetID] {
		return sm.sessions[sessionID]
	}
	return nil
}

// WaitForSession blocks until a session for targetID is attached. A session
// that attached before the call returns immediately.
func (sm *SessionManager) WaitForSession(ctx context.Context, targetID string, timeout time.Duration) (*CDPSession, error) {
	ch := make(chan *CDPSession, 1)
	sm.mu.Lock()
	for sessionID := range sm.targetSessions[targetID] {
		session := sm.sessions[sessionID]
		sm.mu.Unlock()
		return session, nil
	}
	sm.attachWaiters[targetID] = append(sm.attachWaiters[targetID], ch)
	sm.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case session := <-ch:
		return session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, context.DeadlineExceeded
	}
}

func (sm *SessionManager) GetTarget(targetID string) *Target {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.targets[targetID]
}

func isPageTarget(targetType string) bool {
	return targetType == "page" || targetType == "tab"
}
