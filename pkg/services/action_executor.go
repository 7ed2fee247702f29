package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ecomops/opsloop/pkg/mcp"
	"github.com/ecomops/opsloop/pkg/models"
)

// actionToolMap maps the action types agents propose to the tool that
// carries them out.
var actionToolMap = map[string]string{
	"execute_custom_sql":     "execute_sql_query",
	"restock_item":           "update_inventory",
	"update_inventory":       "update_inventory",
	"adjust_stock":           "update_inventory",
	"pause_campaign":         "update_campaign_status",
	"resume_campaign":        "update_campaign_status",
	"update_campaign_status": "update_campaign_status",
	"adjust_budget":          "update_campaign_budget",
	"update_campaign_budget": "update_campaign_budget",
	"escalate_ticket":        "escalate_ticket",
	"close_ticket":           "close_ticket",
	"prioritize_ticket":      "prioritize_ticket",
}

// SupportedActionTypes lists the action types the executor can run.
func SupportedActionTypes() []string {
	types := make([]string, 0, len(actionToolMap))
	for t := range actionToolMap {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ActionExecutor runs approved pending actions against the tool server and
// records the outcome on the row.
type ActionExecutor struct {
	invoker mcp.Invoker
	actions *PendingActionService
	logger  *slog.Logger
}

// NewActionExecutor wires the executor over the shared tool client and the
// pending-action store.
func NewActionExecutor(invoker mcp.Invoker, actions *PendingActionService) *ActionExecutor {
	return &ActionExecutor{invoker: invoker, actions: actions, logger: slog.With("service", "action_executor")}
}

// ExecuteApproved runs one approved action. Tool faults are reported in the
// returned result and leave the row approved so the action can be retried;
// only row lookup and status problems surface as errors.
func (e *ActionExecutor) ExecuteApproved(ctx context.Context, id int64) (*models.ExecutionResult, error) {
	action, err := e.actions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.Status != models.ActionApproved {
		return nil, fmt.Errorf("action %d is %s, not approved: %w", id, action.Status, ErrInvalidTransition)
	}

	tool, ok := actionToolMap[action.ActionType]
	if !ok {
		e.logger.Warn("Unknown action type", "action_id", id, "action_type", action.ActionType)
		return &models.ExecutionResult{
			Success: false,
			Message: fmt.Sprintf("unknown action type %q", action.ActionType),
			Result:  map[string]any{"error": "unknown_action_type", "valid_types": SupportedActionTypes()},
		}, nil
	}

	args := transformPayload(action.ActionType, action.Payload)
	envelope, err := e.invoker.Invoke(ctx, tool, args)
	if err != nil {
		return e.invokeFailure(action, tool, err), nil
	}

	result := mcp.Result(envelope)
	if success, ok := result["success"].(bool); ok && !success {
		msg, _ := result["error"].(string)
		if msg == "" {
			msg = "tool reported failure"
		}
		e.logger.Warn("Action rejected by tool", "action_id", id, "tool", tool, "error", msg)
		return &models.ExecutionResult{
			Success: false,
			Message: fmt.Sprintf("%s via %s: %s", action.ActionType, tool, msg),
			Result:  result,
		}, nil
	}

	message := fmt.Sprintf("executed %s via %s", action.ActionType, tool)
	if _, err := e.actions.MarkExecuted(ctx, id, result); err != nil {
		e.logger.Error("Action executed but status update failed", "action_id", id, "error", err)
		message = fmt.Sprintf("%s; status update failed: %v", message, err)
	} else {
		e.logger.Info("Action executed", "action_id", id, "action_type", action.ActionType, "tool", tool)
	}
	return &models.ExecutionResult{Success: true, Message: message, Result: result}, nil
}

// invokeFailure maps a tool-call error onto a failed execution result. The
// row keeps its approved status in both cases.
func (e *ActionExecutor) invokeFailure(action *models.PendingAction, tool string, err error) *models.ExecutionResult {
	var toolErr *mcp.ToolInvocationError
	if errors.As(err, &toolErr) {
		e.logger.Warn("Tool rejected the action",
			"action_id", action.ID, "tool", tool, "status", toolErr.StatusCode, "error", toolErr.Message)
		return &models.ExecutionResult{
			Success: false,
			Message: fmt.Sprintf("tool %s rejected %s: %s", tool, action.ActionType, toolErr.Message),
			Result: map[string]any{
				"error":       toolErr.Type,
				"details":     toolErr.Message,
				"status_code": toolErr.StatusCode,
			},
		}
	}
	e.logger.Warn("Tool transport failed", "action_id", action.ID, "tool", tool, "error", err)
	return &models.ExecutionResult{
		Success: false,
		Message: fmt.Sprintf("tool transport failed for %s: %v", action.ActionType, err),
		Result:  map[string]any{"error": "transport_error", "details": err.Error()},
	}
}

// transformPayload reshapes an agent payload into the arguments the mapped
// tool expects. Agent payloads may carry narrative extras; tools ignore
// arguments they do not know.
func transformPayload(actionType string, payload map[string]any) map[string]any {
	args := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		args[k] = v
	}

	switch actionType {
	case "restock_item":
		if qty, ok := args["quantity"]; ok {
			if _, exists := args["quantity_change"]; !exists {
				args["quantity_change"] = qty
				delete(args, "quantity")
			}
		}
		if _, ok := args["reason"]; !ok {
			args["reason"] = "Restock requested by agent"
		}
	case "pause_campaign":
		args["status"] = "paused"
		if _, ok := args["reason"]; !ok {
			args["reason"] = "Campaign paused by agent recommendation"
		}
	case "resume_campaign":
		args["status"] = "active"
		if _, ok := args["reason"]; !ok {
			args["reason"] = "Campaign resumed by agent recommendation"
		}
	}
	return args
}
