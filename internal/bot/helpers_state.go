package bot

import (
	"time"

	"vpn-shop-bot/internal/storage"
)

// State management helpers over the persistent state store

func (b *Bot) getUserState(userID int64) (string, bool) {
	state, err := b.states.GetUserState(userID)
	if err != nil {
		return "", false
	}
	return state, true
}

func (b *Bot) setUserState(userID int64, state string) error {
	return b.states.SetUserState(userID, state)
}

func (b *Bot) deleteUserState(userID int64) error {
	return b.states.DeleteUserState(userID)
}

func (b *Bot) getDepositState(userID int64) (*storage.DepositState, bool) {
	state, err := b.states.GetDepositState(userID)
	if err != nil {
		return nil, false
	}
	return state, true
}

func (b *Bot) setDepositState(userID int64, amount int64) error {
	return b.states.SetDepositState(userID, &storage.DepositState{
		Amount:    amount,
		Timestamp: time.Now(),
	})
}

func (b *Bot) getBroadcastState(adminID int64) (*storage.BroadcastState, bool) {
	state, err := b.states.GetBroadcastState(adminID)
	if err != nil {
		return nil, false
	}
	return state, true
}

func (b *Bot) setBroadcastState(adminID int64, state *storage.BroadcastState) error {
	return b.states.SetBroadcastState(adminID, state)
}

// clearStates drops every pending conversation for userID
func (b *Bot) clearStates(userID int64) {
	if err := b.states.DeleteUserState(userID); err != nil {
		b.logger.Errorf("Failed to delete user state: %v", err)
	}
	if err := b.states.DeleteDepositState(userID); err != nil {
		b.logger.Errorf("Failed to delete deposit state: %v", err)
	}
	if err := b.states.DeleteBroadcastState(userID); err != nil {
		b.logger.Errorf("Failed to delete broadcast state: %v", err)
	}
}
