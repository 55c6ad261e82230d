package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"forge/internal/api"
	"forge/internal/ops"
)

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadLocalConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg.Server)

	var detail api.StateDetailResponse
	if err := client.get("/v1/states/"+statePath(cfg.CurrentState), &detail); err != nil {
		return err
	}
	if jsonOutput {
		printJSON(detail)
		return nil
	}

	fmt.Printf("state:  %s\n", detail.State.Name)
	fmt.Printf("heads:  %v\n", detail.State.Heads)
	fmt.Printf("base:   %s\n", detail.State.BaseState)
	fmt.Printf("files:  %d\n", len(detail.Tree))
	if len(detail.OpenConflicts) == 0 {
		fmt.Println("conflicts: none")
	} else {
		fmt.Printf("conflicts: %d open\n", len(detail.OpenConflicts))
		for _, c := range detail.OpenConflicts {
			fmt.Printf("  %s  %s  %s\n", c.ID, c.Type, c.Target)
		}
	}
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadLocalConfig()
	if err != nil {
		return err
	}
	symbolID, path, contentFile := args[0], args[1], args[2]

	content, err := os.ReadFile(contentFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", contentFile, err)
	}

	state := cfg.CurrentState
	if fromFlag != "" {
		state = fromFlag
	}
	op := ops.Operation{
		State:  state,
		Target: ops.Target{SymbolID: symbolID, PathHint: path},
		Writes: []string{symbolID},
		Effect: ops.Effect{Kind: ops.EffectUpsertFile, Path: path, Content: string(content)},
		Metadata: ops.Metadata{Author: authorFlag, Intent: intentFlag},
	}

	client := newAPIClient(cfg.Server)
	var resp api.ChangeSetSubmitResponse
	if err := client.post("/v1/ops", op, &resp); err != nil {
		return err
	}
	if jsonOutput {
		printJSON(resp)
	} else {
		fmt.Printf("status: %s\n", resp.Status)
		for _, id := range resp.Accepted {
			fmt.Printf("accepted: %s\n", id)
		}
		for _, id := range resp.Conflicts {
			fmt.Printf("conflict: %s\n", id)
		}
	}
	exitNonZeroOnFailure(resp.Status)
	return nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadLocalConfig()
	if err != nil {
		return err
	}

	var data []byte
	switch {
	case submitFile != "":
		data, err = os.ReadFile(submitFile)
	case len(args) == 1:
		data, err = os.ReadFile(args[0])
	default:
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading submission: %w", err)
	}

	// A change set carries a top-level "ops" array; a lone op does not.
	var probe struct {
		State string            `json:"state"`
		Ops   []json.RawMessage `json:"ops"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("parsing submission: %w", err)
	}

	state := cfg.CurrentState
	if submitTo != "" {
		state = submitTo
	}

	path := "/v1/ops"
	if probe.Ops != nil {
		var cs ops.ChangeSet
		if err := json.Unmarshal(data, &cs); err != nil {
			return fmt.Errorf("parsing change set: %w", err)
		}
		if cs.State == "" {
			cs.State = state
		}
		state = cs.State
		data, err = json.Marshal(cs)
		if err != nil {
			return err
		}
		path = "/v1/change-sets"
	} else {
		var op ops.Operation
		if err := json.Unmarshal(data, &op); err != nil {
			return fmt.Errorf("parsing op: %w", err)
		}
		if op.State == "" {
			op.State = state
		}
		state = op.State
		if submitMessage != "" {
			op.Metadata.Intent = submitMessage
		}
		if submitAuthor != "" {
			op.Metadata.Author = submitAuthor
		}
		data, err = json.Marshal(op)
		if err != nil {
			return err
		}
	}

	client := newAPIClient(cfg.Server)
	var resp api.ChangeSetSubmitResponse
	if err := client.post(path, json.RawMessage(data), &resp); err != nil {
		return err
	}
	if jsonOutput {
		printJSON(resp)
	} else {
		fmt.Printf("status: %s\n", resp.Status)
		for _, id := range resp.Accepted {
			fmt.Printf("accepted: %s\n", id)
		}
		for _, id := range resp.Conflicts {
			fmt.Printf("conflict: %s\n", id)
		}
	}

	if submitStack && resp.Status == ops.StatusAccepted {
		logState = state
		if err := runStack(cmd, nil); err != nil {
			return err
		}
	}

	exitNonZeroOnFailure(resp.Status)
	return nil
}

// exitNonZeroOnFailure exits the process with a non-zero code when a
// submission was conflicted or rejected, without cobra printing usage
// text for what is a semantic outcome, not a CLI usage error.
func exitNonZeroOnFailure(status ops.ChangeSetStatus) {
	if status == ops.StatusConflicted || status == ops.StatusRejected {
		os.Exit(1)
	}
}

func runStack(cmd *cobra.Command, args []string) error {
	cfg, err := loadLocalConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg.Server)

	query := "?state=" + statePath(cfg.CurrentState)
	switch {
	case logAll:
		query = ""
	case logState != "":
		query = "?state=" + statePath(logState)
	}

	var resp api.ChangeSetsListResponse
	if err := client.get("/v1/change-sets"+query, &resp); err != nil {
		return err
	}

	changeSets := resp.ChangeSets
	if pathFlag != "" {
		changeSets, err = filterByPath(client, changeSets, pathFlag)
		if err != nil {
			return err
		}
	}
	if logLimit > 0 && len(changeSets) > logLimit {
		changeSets = changeSets[len(changeSets)-logLimit:]
	}

	if jsonOutput {
		printJSON(changeSets)
		return nil
	}
	for _, cs := range changeSets {
		fmt.Printf("%s  %s  %d ops\n", cs.ChangeSetID, cs.Status, len(cs.Results))
	}
	return nil
}

// filterByPath keeps only change sets with at least one accepted op
// whose target path matches pattern, a doublestar glob.
func filterByPath(client *apiClient, changeSets []ops.ChangeSetRecord, pattern string) ([]ops.ChangeSetRecord, error) {
	var kept []ops.ChangeSetRecord
	for _, cs := range changeSets {
		matched := false
		for _, opID := range cs.Accepted {
			var op ops.Operation
			if err := client.get("/v1/ops/"+opID, &op); err != nil {
				continue
			}
			path := op.Effect.Path
			if path == "" {
				path = op.Target.PathHint
			}
			ok, err := doublestar.Match(pattern, path)
			if err == nil && ok {
				matched = true
				break
			}
		}
		if matched {
			kept = append(kept, cs)
		}
	}
	return kept, nil
}

// runShow dispatches by id prefix: cs_ change sets, op_ operations,
// conf_ conflicts.
func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadLocalConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg.Server)
	id := args[0]

	switch {
	case strings.HasPrefix(id, "cs_"):
		var cs ops.ChangeSetRecord
		if err := client.get("/v1/change-sets/"+id, &cs); err != nil {
			return err
		}
		printJSON(cs)
	case strings.HasPrefix(id, "conf_"):
		var c ops.Conflict
		if err := client.get("/v1/conflicts/"+id, &c); err != nil {
			return err
		}
		printJSON(c)
	default:
		var op ops.Operation
		if err := client.get("/v1/ops/"+id, &op); err != nil {
			return err
		}
		printJSON(op)
	}
	return nil
}

func runStates(cmd *cobra.Command, args []string) error {
	cfg, err := loadLocalConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg.Server)
	var resp api.StatesListResponse
	if err := client.get("/v1/states", &resp); err != nil {
		return err
	}
	if jsonOutput {
		printJSON(resp)
		return nil
	}
	for _, s := range resp.States {
		fmt.Printf("%-24s heads=%v op_count=%d open_conflicts=%d\n", s.Name, s.Heads, s.OpCount, s.OpenConflicts)
	}
	return nil
}

func runStateCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadLocalConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg.Server)
	req := api.CreateStateRequest{Name: args[0], FromState: fromFlag}
	var resp api.CreateStateResponse
	if err := client.post("/v1/states", req, &resp); err != nil {
		return err
	}
	fmt.Printf("created state %q\n", resp.State.Name)
	return nil
}

func runStatePromote(cmd *cobra.Command, args []string) error {
	cfg, err := loadLocalConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg.Server)
	req := api.PromoteRequest{TargetState: targetFlag, Author: authorFlag}

	var resp struct {
		OK        bool     `json:"ok"`
		Accepted  []string `json:"accepted"`
		Conflicts []string `json:"conflicts"`
		Results   []struct {
			SourceOpID string   `json:"source_op_id"`
			Status     string   `json:"status"`
			NewOpID    string   `json:"new_op_id,omitempty"`
			Conflicts  []string `json:"conflicts,omitempty"`
			Error      string   `json:"error,omitempty"`
		} `json:"results"`
	}
	if err := client.post("/v1/states/"+statePath(args[0])+"/promote", req, &resp); err != nil {
		return err
	}
	if jsonOutput {
		printJSON(resp)
		return nil
	}
	fmt.Printf("promoted %s -> %s: %d accepted, %d conflicts\n", args[0], targetFlag, len(resp.Accepted), len(resp.Conflicts))
	for _, id := range resp.Conflicts {
		fmt.Printf("  conflict: %s\n", id)
	}
	failed := len(resp.Conflicts) > 0
	for _, r := range resp.Results {
		if r.Status == "conflicted" || r.Status == "rejected" {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
	return nil
}

func runConflicts(cmd *cobra.Command, args []string) error {
	cfg, err := loadLocalConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg.Server)
	var resp api.ConflictsListResponse
	if err := client.get("/v1/states/"+statePath(cfg.CurrentState)+"/conflicts", &resp); err != nil {
		return err
	}
	if jsonOutput {
		printJSON(resp)
		return nil
	}
	for _, c := range resp.Conflicts {
		fmt.Printf("%s  %s  %s  status=%s\n", c.ID, c.Type, c.Target, c.Status)
	}
	return nil
}

func runConflictShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadLocalConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg.Server)
	var c ops.Conflict
	if err := client.get("/v1/conflicts/"+args[0], &c); err != nil {
		return err
	}
	printJSON(c)
	return nil
}

func runConflictResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadLocalConfig()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[1], err)
	}
	var op ops.Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return fmt.Errorf("parsing %s: %w", args[1], err)
	}

	client := newAPIClient(cfg.Server)
	var resp api.ResolveResponse
	if err := client.post("/v1/conflicts/"+args[0]+"/resolve", api.ResolveRequest{Op: op}, &resp); err != nil {
		return err
	}
	printJSON(resp)
	exitNonZeroOnFailure(resp.SubmitResult.Status)
	return nil
}
