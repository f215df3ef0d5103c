package service

import (
	"github.com/tapline/tapline-backend/pkg/errors"
)

// Workflow types
const (
	WorkflowInventoryCount = "inventory_count"
	WorkflowReceiving      = "receiving"
	WorkflowQuickUpdate    = "quick_update"
	WorkflowStockTake      = "stock_take"
)

// WorkflowConfig is the per-workflow behavior, resolved once at session
// start and frozen on the session row. AutoApplyChanges controls whether
// scans hit inventory immediately or only at completion.
type WorkflowConfig struct {
	Type              string `json:"workflow_type"`
	AllowQuantityEdit bool   `json:"allow_quantity_edit"`
	RequireLocation   bool   `json:"require_location"`
	AutoApplyChanges  bool   `json:"auto_apply_changes"`
	Instructions      string `json:"instructions"`
}

var workflowConfigs = map[string]WorkflowConfig{
	WorkflowInventoryCount: {
		Type:              WorkflowInventoryCount,
		AllowQuantityEdit: true,
		RequireLocation:   false,
		AutoApplyChanges:  false,
		Instructions:      "Scan every item in the area. Counted quantities replace current stock when the session is completed.",
	},
	WorkflowReceiving: {
		Type:              WorkflowReceiving,
		AllowQuantityEdit: true,
		RequireLocation:   true,
		AutoApplyChanges:  false,
		Instructions:      "Scan each delivered case or unit. Received quantities are added to stock when the session is completed.",
	},
	WorkflowQuickUpdate: {
		Type:              WorkflowQuickUpdate,
		AllowQuantityEdit: false,
		RequireLocation:   false,
		AutoApplyChanges:  true,
		Instructions:      "Each scan adjusts stock immediately. Use for one-off corrections.",
	},
	WorkflowStockTake: {
		Type:              WorkflowStockTake,
		AllowQuantityEdit: true,
		RequireLocation:   true,
		AutoApplyChanges:  false,
		Instructions:      "Full stock take. Every active item should be counted; quantities replace current stock on completion.",
	},
}

// ResolveWorkflow returns the frozen configuration for a workflow type
func ResolveWorkflow(workflowType string) (*WorkflowConfig, error) {
	if workflowType == "" {
		return nil, errors.Validation(map[string]string{
			"workflow_type": "workflow_type is required",
		})
	}

	cfg, ok := workflowConfigs[workflowType]
	if !ok {
		return nil, errors.Validation(map[string]string{
			"workflow_type": "unknown workflow type: " + workflowType,
		})
	}

	return &cfg, nil
}

// WorkflowTypes lists the supported workflow types
func WorkflowTypes() []string {
	return []string{WorkflowInventoryCount, WorkflowReceiving, WorkflowQuickUpdate, WorkflowStockTake}
}
