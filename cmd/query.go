// File: cmd/query.go
package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/auditdb/api/schemas"
	"github.com/xkilldash9x/auditdb/internal/config"
	"github.com/xkilldash9x/auditdb/internal/reporting"
	"github.com/xkilldash9x/auditdb/internal/store"
)

const (
	maxConcurrentCounts = 4

	// namePrefix forces an argument to be read as an auditor name.
	namePrefix = "name:"
)

// queryFunc runs against an open store and returns the value to render.
type queryFunc func(ctx context.Context, s schemas.Store) (any, error)

// runQuery opens the store, runs fn and renders its result.
func runQuery(cmd *cobra.Command, provider storeProvider, fn queryFunc) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}

	storeService, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	result, err := fn(ctx, storeService)
	if err != nil {
		return err
	}
	return writeResult(cmd, cfg, result)
}

// parseAuditorRef treats an all-digit argument as an id and anything else as
// a name. A "name:" prefix always selects by name, so names made of digits
// stay reachable.
func parseAuditorRef(arg string) schemas.AuditorRef {
	if name, ok := strings.CutPrefix(arg, namePrefix); ok {
		return schemas.AuditorByName(name)
	}
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return schemas.AuditorByID(id)
	}
	return schemas.AuditorByName(arg)
}

func parseAuditorRefs(args []string) []schemas.AuditorRef {
	refs := make([]schemas.AuditorRef, 0, len(args))
	for _, arg := range args {
		refs = append(refs, parseAuditorRef(arg))
	}
	return refs
}

func newAuditorsCmd(provider storeProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "auditors [ID|NAME...]",
		Short: "List auditors, or look up specific ones by id or name",
		Long: `Lists every auditor ordered by id, or the auditors named by the arguments.
An argument made of digits is an id; prefix it with "name:" to look up an
auditor whose name is all digits (for example name:42).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := parseAuditorRefs(args)
			return runQuery(cmd, provider, func(ctx context.Context, s schemas.Store) (any, error) {
				return s.GetAuditors(ctx, refs...)
			})
		},
	}
}

func newFindingsCmd(provider storeProvider) *cobra.Command {
	var auditors []string
	var severities []string

	findingsCmd := &cobra.Command{
		Use:   "findings",
		Short: "List findings by auditor or by severity",
		Long: `Lists findings with their auditor resolved. --auditor accepts ids or names
(use the "name:" prefix for all-digit names); every one must exist. --severity accepts values from the fixed enumeration.
The two filters cannot be combined. Without filters every finding is listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(auditors) > 0 && len(severities) > 0 {
				return fmt.Errorf("--auditor and --severity cannot be combined")
			}
			return runQuery(cmd, provider, func(ctx context.Context, s schemas.Store) (any, error) {
				if len(severities) > 0 {
					sevs := make([]schemas.Severity, len(severities))
					for i, sev := range severities {
						sevs[i] = schemas.Severity(sev)
					}
					return s.GetFindingsBySeverities(ctx, sevs...)
				}
				return s.GetFindingsByAuditors(ctx, parseAuditorRefs(auditors)...)
			})
		},
	}

	findingsCmd.Flags().StringSliceVarP(&auditors, "auditor", "a", nil, "auditor id or name (repeatable)")
	findingsCmd.Flags().StringSliceVarP(&severities, "severity", "s", nil, "severity to match (repeatable)")
	return findingsCmd
}

func newIssuesCmd(provider storeProvider) *cobra.Command {
	var sel schemas.IssueSelector

	issuesCmd := &cobra.Command{
		Use:   "issues",
		Short: "List issues joined with their auditors",
		Long: `Lists one row per issue and auditor. Each flag narrows the result and
the flags are combined with AND.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, provider, func(ctx context.Context, s schemas.Store) (any, error) {
				return s.GetIssues(ctx, sel)
			})
		},
	}

	issuesCmd.Flags().Int64SliceVar(&sel.AuditorIDs, "auditor-id", nil, "auditor id (repeatable)")
	issuesCmd.Flags().StringSliceVar(&sel.AuditorNames, "auditor-name", nil, "auditor name (repeatable)")
	issuesCmd.Flags().Int64SliceVar(&sel.IssueIDs, "issue-id", nil, "issue id (repeatable)")
	issuesCmd.Flags().StringSliceVar(&sel.IssueTitles, "issue-title", nil, "issue title (repeatable)")
	return issuesCmd
}

func newCountCmd(provider storeProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "count [TABLE...]",
		Short: "Count the rows of one or more tables",
		Long: `Counts the rows of each TABLE, or of every audit table when none are given.
Tables are counted concurrently over the connection pool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables := args
			if len(tables) == 0 {
				tables = store.Tables
			}
			return runQuery(cmd, provider, func(ctx context.Context, s schemas.Store) (any, error) {
				return countTables(ctx, s, tables)
			})
		},
	}
}

// countTables counts every table with at most maxConcurrentCounts queries in
// flight. Results keep the order of tables.
func countTables(ctx context.Context, s schemas.Store, tables []string) ([]reporting.RowCount, error) {
	counts := make([]reporting.RowCount, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCounts)
	for i, table := range tables {
		i, table := i, table
		g.Go(func() error {
			n, err := s.GetRowCount(gctx, table)
			if err != nil {
				return err
			}
			counts[i] = reporting.RowCount{Table: table, Rows: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func newSQLCmd(provider storeProvider) *cobra.Command {
	var raw bool

	sqlCmd := &cobra.Command{
		Use:   "sql SCRIPT [PARAM...]",
		Short: "Run a read-only parameterized query",
		Long: `Runs SCRIPT inside a read-only transaction with PARAMs bound to $1, $2, ...
Integer-looking params are bound as integers, "true" and "false" as booleans,
everything else as text. --raw prints the rows without column names.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, params := args[0], parseParams(args[1:])
			return runQuery(cmd, provider, func(ctx context.Context, s schemas.Store) (any, error) {
				if raw {
					return s.Execute(ctx, script, params...)
				}
				return s.GetDataFrame(ctx, script, params...)
			})
		},
	}

	sqlCmd.Flags().BoolVar(&raw, "raw", false, "print bare rows instead of a frame")
	return sqlCmd
}

func parseParams(args []string) []any {
	params := make([]any, len(args))
	for i, arg := range args {
		if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
			params[i] = n
			continue
		}
		switch strings.ToLower(arg) {
		case "true":
			params[i] = true
		case "false":
			params[i] = false
		default:
			params[i] = arg
		}
	}
	return params
}

func newSeveritiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "severities",
		Short: "Print the severity enumeration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				cfg = config.NewDefaultConfig()
			}
			return writeResult(cmd, cfg, schemas.Severities())
		},
	}
}
