package toolserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// actionTools are the write side of the registry: approved proposals land
// here. Every mutation runs in a transaction with the row locked, and every
// result reports old and new values so the approval record shows exactly
// what changed. A missing or conflicting row is a domain failure, returned
// as {success: false, error} inside a 2xx envelope rather than an HTTP
// error; it means the tool ran fine and the request could not be honored.
type actionTools struct {
	db *sql.DB
}

func domainFailure(format string, a ...any) map[string]any {
	return map[string]any{
		"success": false,
		"error":   fmt.Sprintf(format, a...),
	}
}

var ticketPriorities = map[string]bool{
	"low":      true,
	"normal":   true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

// UpdateInventory implements update_inventory. Arguments: product_id
// (required), quantity_change (required, may be negative), reason
// (optional). Stock never goes below zero.
func (t *actionTools) UpdateInventory(ctx context.Context, args map[string]any) (any, error) {
	productID, err := intArg(args, "product_id", 0)
	if err != nil {
		return nil, err
	}
	if productID <= 0 {
		return nil, argErr("product_id is required")
	}
	if _, ok := args["quantity_change"]; !ok {
		return nil, argErr("quantity_change is required")
	}
	change, err := intArg(args, "quantity_change", 0)
	if err != nil {
		return nil, err
	}
	reason, err := stringArg(args, "reason", "")
	if err != nil {
		return nil, err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		name    string
		current int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT name, stock_qty FROM products WHERE id = $1 FOR UPDATE`,
		productID).Scan(&name, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return domainFailure("Product %d not found", productID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock product %d: %w", productID, err)
	}

	newQty := current + int64(change)
	if newQty < 0 {
		return domainFailure("Cannot reduce stock below 0. Current: %d, Change: %d", current, change), nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET stock_qty = $1 WHERE id = $2`,
		newQty, productID); err != nil {
		return nil, fmt.Errorf("update stock for product %d: %w", productID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stock update: %w", err)
	}

	return map[string]any{
		"success":      true,
		"product_id":   productID,
		"product_name": name,
		"old_quantity": current,
		"new_quantity": newQty,
		"change":       change,
		"reason":       reason,
	}, nil
}

// UpdateCampaignStatus implements update_campaign_status. Arguments:
// campaign_id (required), status ("active" or "paused"), reason (optional).
func (t *actionTools) UpdateCampaignStatus(ctx context.Context, args map[string]any) (any, error) {
	campaignID, err := intArg(args, "campaign_id", 0)
	if err != nil {
		return nil, err
	}
	if campaignID <= 0 {
		return nil, argErr("campaign_id is required")
	}
	status, err := stringArg(args, "status", "")
	if err != nil {
		return nil, err
	}
	if status != "active" && status != "paused" {
		return nil, argErr("status must be active or paused")
	}
	reason, err := stringArg(args, "reason", "")
	if err != nil {
		return nil, err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		name      string
		oldStatus string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT name, status FROM campaigns WHERE id = $1 FOR UPDATE`,
		campaignID).Scan(&name, &oldStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return domainFailure("Campaign %d not found", campaignID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock campaign %d: %w", campaignID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET status = $1 WHERE id = $2`,
		status, campaignID); err != nil {
		return nil, fmt.Errorf("update status for campaign %d: %w", campaignID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}

	return map[string]any{
		"success":       true,
		"campaign_id":   campaignID,
		"campaign_name": name,
		"old_status":    oldStatus,
		"new_status":    status,
		"reason":        reason,
	}, nil
}

// UpdateCampaignBudget implements update_campaign_budget. Arguments:
// campaign_id (required), new_budget (required, positive), reason
// (optional).
func (t *actionTools) UpdateCampaignBudget(ctx context.Context, args map[string]any) (any, error) {
	campaignID, err := intArg(args, "campaign_id", 0)
	if err != nil {
		return nil, err
	}
	if campaignID <= 0 {
		return nil, argErr("campaign_id is required")
	}
	newBudget, err := floatArg(args, "new_budget", 0)
	if err != nil {
		return nil, err
	}
	if newBudget <= 0 {
		return nil, argErr("new_budget must be positive")
	}
	reason, err := stringArg(args, "reason", "")
	if err != nil {
		return nil, err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		name      string
		oldBudget float64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT name, budget FROM campaigns WHERE id = $1 FOR UPDATE`,
		campaignID).Scan(&name, &oldBudget)
	if errors.Is(err, sql.ErrNoRows) {
		return domainFailure("Campaign %d not found", campaignID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock campaign %d: %w", campaignID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET budget = $1 WHERE id = $2`,
		newBudget, campaignID); err != nil {
		return nil, fmt.Errorf("update budget for campaign %d: %w", campaignID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit budget update: %w", err)
	}

	return map[string]any{
		"success":       true,
		"campaign_id":   campaignID,
		"campaign_name": name,
		"old_budget":    round2(oldBudget),
		"new_budget":    round2(newBudget),
		"reason":        reason,
	}, nil
}

// EscalateTicket implements escalate_ticket. Arguments: ticket_id
// (required), priority (default "high"), reason (optional). The ticket is
// marked escalated and its priority raised in one step.
func (t *actionTools) EscalateTicket(ctx context.Context, args map[string]any) (any, error) {
	ticketID, err := intArg(args, "ticket_id", 0)
	if err != nil {
		return nil, err
	}
	if ticketID <= 0 {
		return nil, argErr("ticket_id is required")
	}
	priority, err := stringArg(args, "priority", "high")
	if err != nil {
		return nil, err
	}
	if !ticketPriorities[priority] {
		return nil, argErr("priority must be one of low, normal, medium, high, critical")
	}
	reason, err := stringArg(args, "reason", "")
	if err != nil {
		return nil, err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldPriority string
	err = tx.QueryRowContext(ctx,
		`SELECT priority FROM support_tickets WHERE id = $1 FOR UPDATE`,
		ticketID).Scan(&oldPriority)
	if errors.Is(err, sql.ErrNoRows) {
		return domainFailure("Ticket %d not found", ticketID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock ticket %d: %w", ticketID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE support_tickets SET priority = $1, status = 'escalated' WHERE id = $2`,
		priority, ticketID); err != nil {
		return nil, fmt.Errorf("escalate ticket %d: %w", ticketID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ticket escalation: %w", err)
	}

	return map[string]any{
		"success":      true,
		"ticket_id":    ticketID,
		"old_priority": oldPriority,
		"new_priority": priority,
		"status":       "escalated",
		"reason":       reason,
	}, nil
}

// CloseTicket implements close_ticket. Arguments: ticket_id (required),
// resolution (optional note recorded in the result only). Closing a closed
// ticket is a domain failure.
func (t *actionTools) CloseTicket(ctx context.Context, args map[string]any) (any, error) {
	ticketID, err := intArg(args, "ticket_id", 0)
	if err != nil {
		return nil, err
	}
	if ticketID <= 0 {
		return nil, argErr("ticket_id is required")
	}
	resolution, err := stringArg(args, "resolution", "")
	if err != nil {
		return nil, err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldStatus string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM support_tickets WHERE id = $1 FOR UPDATE`,
		ticketID).Scan(&oldStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return domainFailure("Ticket %d not found", ticketID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock ticket %d: %w", ticketID, err)
	}
	if oldStatus == "closed" {
		return domainFailure("Ticket %d is already closed", ticketID), nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE support_tickets SET status = 'closed' WHERE id = $1`,
		ticketID); err != nil {
		return nil, fmt.Errorf("close ticket %d: %w", ticketID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ticket close: %w", err)
	}

	return map[string]any{
		"success":    true,
		"ticket_id":  ticketID,
		"old_status": oldStatus,
		"new_status": "closed",
		"resolution": resolution,
	}, nil
}

// PrioritizeTicket implements prioritize_ticket. Arguments: ticket_id
// (required), priority (default "medium"), reason (optional). Only the
// priority changes; the ticket keeps its status.
func (t *actionTools) PrioritizeTicket(ctx context.Context, args map[string]any) (any, error) {
	ticketID, err := intArg(args, "ticket_id", 0)
	if err != nil {
		return nil, err
	}
	if ticketID <= 0 {
		return nil, argErr("ticket_id is required")
	}
	priority, err := stringArg(args, "priority", "medium")
	if err != nil {
		return nil, err
	}
	if !ticketPriorities[priority] {
		return nil, argErr("priority must be one of low, normal, medium, high, critical")
	}
	reason, err := stringArg(args, "reason", "")
	if err != nil {
		return nil, err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldPriority string
	err = tx.QueryRowContext(ctx,
		`SELECT priority FROM support_tickets WHERE id = $1 FOR UPDATE`,
		ticketID).Scan(&oldPriority)
	if errors.Is(err, sql.ErrNoRows) {
		return domainFailure("Ticket %d not found", ticketID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock ticket %d: %w", ticketID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE support_tickets SET priority = $1 WHERE id = $2`,
		priority, ticketID); err != nil {
		return nil, fmt.Errorf("prioritize ticket %d: %w", ticketID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ticket priority: %w", err)
	}

	return map[string]any{
		"success":      true,
		"ticket_id":    ticketID,
		"old_priority": oldPriority,
		"new_priority": priority,
		"reason":       reason,
	}, nil
}
