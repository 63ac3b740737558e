package database

import (
	"database/sql"
	"fmt"

	"deribit-alert-bot/internal/types"

	log "github.com/sirupsen/logrus"
)

// InsertAlert saves a new active alert. seedPrice is the price observed at
// creation time and becomes the first crossing baseline.
func InsertAlert(chatID int64, symbol string, targetPrice, seedPrice float64) (int64, error) {
	query := `
	INSERT INTO alerts (chat_id, symbol, target_price, last_price, state)
	VALUES (?, ?, ?, ?, ?);`

	res, err := DB.Exec(query, chatID, symbol, targetPrice, seedPrice, types.StateActive)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted alert id: %w", err)
	}

	log.Debugf("Alert inserted: ID: %d, ChatID: %d, Symbol: %s, Target: %f, Seed: %f", id, chatID, symbol, targetPrice, seedPrice)
	return id, nil
}

// GetActiveAlerts fetches every alert that has not triggered yet, in
// creation order.
func GetActiveAlerts() ([]types.Alert, error) {
	query := `
	SELECT id, chat_id, symbol, target_price, last_price, state, created_at
	FROM alerts WHERE state = ? ORDER BY id;`

	rows, err := DB.Query(query, types.StateActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetActiveAlertsByChatID fetches the untriggered alerts of a single chat,
// in creation order.
func GetActiveAlertsByChatID(chatID int64) ([]types.Alert, error) {
	query := `
	SELECT id, chat_id, symbol, target_price, last_price, state, created_at
	FROM alerts WHERE chat_id = ? AND state = ? ORDER BY id;`

	rows, err := DB.Query(query, chatID, types.StateActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts for chat ID %d: %w", chatID, err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]types.Alert, error) {
	var alerts []types.Alert
	for rows.Next() {
		var alert types.Alert
		var lastPrice sql.NullFloat64
		if err := rows.Scan(&alert.ID, &alert.ChatID, &alert.Symbol, &alert.TargetPrice, &lastPrice, &alert.State, &alert.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if lastPrice.Valid {
			v := lastPrice.Float64
			alert.LastPrice = &v
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// UpdateLastPrice overwrites the most recent observation for an alert. It
// never touches the state column, so it cannot resurrect a triggered alert,
// and it is a no-op for a deleted id.
func UpdateLastPrice(alertID int64, price float64) error {
	query := `UPDATE alerts SET last_price = ? WHERE id = ?;`
	_, err := DB.Exec(query, price, alertID)
	if err != nil {
		return fmt.Errorf("failed to update last price: %w", err)
	}
	return nil
}

// MarkTriggered moves an alert into the triggered state. Idempotent: marking
// an already-triggered or deleted alert changes nothing.
func MarkTriggered(alertID int64) error {
	query := `UPDATE alerts SET state = ? WHERE id = ?;`
	_, err := DB.Exec(query, types.StateTriggered, alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert triggered: %w", err)
	}
	return nil
}

// DeleteAlert removes an alert from the store.
func DeleteAlert(alertID int64) error {
	query := `DELETE FROM alerts WHERE id = ?;`
	_, err := DB.Exec(query, alertID)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	return nil
}
