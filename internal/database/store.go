package database

import (
	"deribit-alert-bot/internal/types"
)

// Store adapts the package-level helpers to the monitor's store interface.
type Store struct{}

func (Store) GetActiveAlerts() ([]types.Alert, error) {
	return GetActiveAlerts()
}

func (Store) UpdateLastPrice(alertID int64, price float64) error {
	return UpdateLastPrice(alertID, price)
}

func (Store) MarkTriggered(alertID int64) error {
	return MarkTriggered(alertID)
}
