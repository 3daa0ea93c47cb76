package telegram

import "sync"

// UserState represents the current state of a user's conversation. A user
// with no entry is idle.
type UserState struct {
	State string
	Data  map[string]interface{}
}

// StateManager manages per-affiliate conversation states for the FSM.
type StateManager struct {
	mu     sync.RWMutex
	states map[int64]*UserState
}

// NewStateManager creates a new state manager
func NewStateManager() *StateManager {
	return &StateManager{
		states: make(map[int64]*UserState),
	}
}

// Set sets a user's state
func (sm *StateManager) Set(userID int64, state string, data map[string]interface{}) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if data == nil {
		data = make(map[string]interface{})
	}
	sm.states[userID] = &UserState{
		State: state,
		Data:  data,
	}
}

// Get returns a user's current state, nil when idle.
func (sm *StateManager) Get(userID int64) *UserState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.states[userID]
}

// Clear returns a user to the idle state.
func (sm *StateManager) Clear(userID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.states, userID)
}

// campaignIDFromState pulls the campaign id stashed by the campaign-id
// step. Reports false when the stored value is missing or not a string.
func campaignIDFromState(state *UserState) (string, bool) {
	if state == nil || state.Data == nil {
		return "", false
	}
	id, ok := state.Data["campaign_id"].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// State constants
const (
	StateWaitDefaultReward  = "wait_default_reward"
	StateWaitCampaignID     = "wait_campaign_id"
	StateWaitCampaignReward = "wait_campaign_reward"
	StateWaitGrant          = "wait_grant"
	StateWaitRevoke         = "wait_revoke"
	StateWaitViewOwner      = "wait_view_owner"
)
