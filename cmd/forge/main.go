// Package main provides the forge CLI, a thin client over forged's
// HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	forgeDir       = ".forge"
	localConfig    = "config.json"
	defaultServer  = "http://localhost:8420"
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "forge - semantic version control for concurrent human/agent editors",
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a local .forge directory pointing at a server",
	RunE:  runInit,
}

var attachCmd = &cobra.Command{
	Use:   "attach <state>",
	Short: "Set the current working state",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttach,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state's heads and open conflicts",
	RunE:  runStatus,
}

var createCmd = &cobra.Command{
	Use:   "create <symbol-id> <path> <content-file>",
	Short: "Submit an upsert_file op on the current state",
	Args:  cobra.ExactArgs(3),
	RunE:  runCreate,
}

var submitCmd = &cobra.Command{
	Use:   "submit [op-or-changeset.json]",
	Short: "Submit a raw op or change set, from --file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSubmit,
}

var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "List change sets on the current state",
	RunE:  runStack,
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List change sets, optionally filtered by --path/--state/--all",
	RunE:  runStack,
}

var showCmd = &cobra.Command{
	Use:   "show <cs_|op_|conf_ id>",
	Short: "Show a single operation, change set, or conflict by id prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "List all states",
	RunE:  runStates,
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "State commands",
}

var stateCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new state",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateCreate,
}

var statePromoteCmd = &cobra.Command{
	Use:   "promote <name>",
	Short: "Promote a state into --target",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatePromote,
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List open conflicts on the current state",
	RunE:  runConflicts,
}

var conflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Conflict commands",
}

var conflictShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single conflict",
	Args:  cobra.ExactArgs(1),
	RunE:  runConflictShow,
}

var conflictResolveCmd = &cobra.Command{
	Use:   "resolve <id> <resolving-op.json>",
	Short: "Resolve a conflict by submitting a resolving op",
	Args:  cobra.ExactArgs(2),
	RunE:  runConflictResolve,
}

var (
	serverFlag string
	fromFlag   string
	targetFlag string
	authorFlag string
	intentFlag string
	jsonOutput bool
	pathFlag   string
	logLimit   int
	logState   string
	logAll     bool

	submitFile    string
	submitMessage string
	submitAuthor  string
	submitTo      string
	submitStack   bool
)

func init() {
	initCmd.Flags().StringVar(&serverFlag, "server", defaultServer, "forged server address")
	createCmd.Flags().StringVar(&fromFlag, "from", "", "base state for a new symbol's op")
	createCmd.Flags().StringVar(&authorFlag, "author", "", "op author")
	createCmd.Flags().StringVar(&intentFlag, "intent", "", "op intent text")
	stateCreateCmd.Flags().StringVar(&fromFlag, "from", "", "state to branch from")
	statePromoteCmd.Flags().StringVar(&targetFlag, "target", "main", "target state")
	statePromoteCmd.Flags().StringVar(&authorFlag, "author", "", "promotion author")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")
	for _, c := range []*cobra.Command{stackCmd, logCmd} {
		c.Flags().StringVar(&pathFlag, "path", "", "only show change sets touching a path matching this doublestar glob")
		c.Flags().IntVar(&logLimit, "limit", 0, "show at most this many change sets (0 = unlimited)")
		c.Flags().StringVar(&logState, "state", "", "state to list (default: the attached state)")
		c.Flags().BoolVar(&logAll, "all", false, "list change sets across every state")
	}
	submitCmd.Flags().StringVar(&submitFile, "file", "", "path to the op or change set JSON (default: stdin)")
	submitCmd.Flags().StringVar(&submitMessage, "message", "", "sets metadata.intent on a raw single-op submission")
	submitCmd.Flags().StringVar(&submitAuthor, "author", "", "sets metadata.author on a raw single-op submission")
	submitCmd.Flags().StringVar(&submitTo, "to", "", "state to submit into (default: the attached state)")
	submitCmd.Flags().BoolVar(&submitStack, "stack", false, "print the resulting stack after a successful submit")

	stateCmd.AddCommand(stateCreateCmd, statePromoteCmd)
	conflictCmd.AddCommand(conflictShowCmd, conflictResolveCmd)

	rootCmd.AddCommand(initCmd, attachCmd, statusCmd, createCmd, submitCmd,
		stackCmd, logCmd, showCmd, statesCmd, stateCmd, conflictsCmd, conflictCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
