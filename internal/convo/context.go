package convo

// EntityRef points at a domain entity by kind and id. Title is carried so
// positional references can be echoed back without another store round-trip.
type EntityRef struct {
	Kind  string `json:"kind"` // "campaign"
	ID    int64  `json:"id"`
	Title string `json:"title,omitempty"`
}

// DialogueContext is the legacy per-user state used by the fallback
// pipeline: positional reference resolution ("number 2") and multi-step
// workflow tracking. Same TTL rules as conversations.
type DialogueContext struct {
	// LastResults is the ordered result set of the most recent search,
	// so "number 2" resolves positionally.
	LastResults []EntityRef `json:"last_results,omitempty"`

	// ActiveEntity is the single entity recent turns referred to.
	ActiveEntity *EntityRef `json:"active_entity,omitempty"`

	// Workflow names an in-progress multi-step form, "" when none.
	Workflow string `json:"workflow,omitempty"`

	// WorkflowData holds the partial field map of that workflow.
	WorkflowData map[string]string `json:"workflow_data,omitempty"`
}

// Nth resolves a 1-based positional reference against the last result set.
func (dc DialogueContext) Nth(n int) (EntityRef, bool) {
	if n < 1 || n > len(dc.LastResults) {
		return EntityRef{}, false
	}
	return dc.LastResults[n-1], true
}

// StartWorkflow begins a multi-step form, replacing any in-progress one.
func (dc *DialogueContext) StartWorkflow(name string) {
	dc.Workflow = name
	dc.WorkflowData = make(map[string]string)
}

// UpdateWorkflow records one collected field.
func (dc *DialogueContext) UpdateWorkflow(key, value string) {
	if dc.WorkflowData == nil {
		dc.WorkflowData = make(map[string]string)
	}
	dc.WorkflowData[key] = value
}

// CompleteWorkflow ends the workflow and returns its collected fields.
func (dc *DialogueContext) CompleteWorkflow() map[string]string {
	data := dc.WorkflowData
	dc.Workflow = ""
	dc.WorkflowData = nil
	return data
}

// ClearWorkflow abandons an in-progress workflow.
func (dc *DialogueContext) ClearWorkflow() {
	dc.Workflow = ""
	dc.WorkflowData = nil
}
