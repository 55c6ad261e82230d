package ops

// Policy governs acceptance behavior for a state.
type Policy struct {
	AllowOpenConflicts     bool     `json:"allow_open_conflicts"`
	RequiredChecks         []string `json:"required_checks,omitempty"`
	RequiredHumanApprovals int      `json:"required_human_approvals,omitempty"`
}

// PermissivePolicy is the bootstrap default given to "main".
func PermissivePolicy() Policy {
	return Policy{AllowOpenConflicts: true}
}

// StrictPolicy is the default given to a state named "prod".
func StrictPolicy() Policy {
	return Policy{AllowOpenConflicts: false}
}

// State is a named causal DAG head: {name, base_state?, base_heads,
// heads, policy, created_at, updated_at}.
type State struct {
	Name      string   `json:"name"`
	BaseState string   `json:"base_state,omitempty"`
	BaseHeads []string `json:"base_heads,omitempty"`
	Heads     []string `json:"heads"`
	Policy    Policy   `json:"policy"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}
