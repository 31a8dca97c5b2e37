package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/formulapm/access-management/internal/authz"
	"github.com/formulapm/access-management/internal/policy"
	policypg "github.com/formulapm/access-management/internal/policy/postgres"
	"github.com/formulapm/access-management/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	policySnapshotPath string
	policyFromDB       bool
)

var policyCheckCmd = &cobra.Command{
	Use:   "policy-check",
	Short: "Verify stored row-level policies against the rule table",
	Long: `Parse every stored policy predicate from a snapshot, verify it is
semantically equivalent to the rule table's row filter, and flag
predicates that still evaluate identity functions per row. Runs
offline; interrupt with SIGINT to stop between predicates.`,
	RunE: runPolicyCheck,
}

func init() {
	policyCheckCmd.Flags().StringVarP(&policySnapshotPath, "snapshot", "s", "config/policy_snapshot.yml", "policy snapshot YAML file")
	policyCheckCmd.Flags().BoolVar(&policyFromDB, "from-db", false, "load the latest snapshot from the database instead of a file")
}

func runPolicyCheck(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(".")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	ruleTable, err := authz.LoadRuleTable(cfg.Authz.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to load rule table: %w", err)
	}

	var policies []policy.StoredPolicy
	if policyFromDB {
		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		gormDB, err := initGormDB(db)
		if err != nil {
			return fmt.Errorf("failed to init gorm: %w", err)
		}

		policies, err = policypg.NewSnapshotRepository(gormDB).GetLatest(ctx)
		if err != nil {
			return fmt.Errorf("failed to load snapshot from db: %w", err)
		}
	} else {
		policies, err = policy.LoadSnapshot(policySnapshotPath)
		if err != nil {
			return err
		}
	}

	if len(policies) == 0 {
		fmt.Println("no stored policies to check")
		return nil
	}

	checker := policy.NewChecker(ruleTable, lg)
	report, err := checker.Run(ctx, policies)
	if err != nil {
		return fmt.Errorf("check interrupted after %d predicates: %w", len(report.Results), err)
	}

	diverged := report.Diverged()
	slow := report.NonPerformant()

	fmt.Printf("checked %d stored policies: %d diverged, %d not performant\n",
		len(report.Results), len(diverged), len(slow))

	for _, res := range diverged {
		if res.Err != nil {
			fmt.Printf("  ERROR %s: %v\n", res.Policy.Name, res.Err)
			continue
		}
		fmt.Printf("  DIVERGED %s: %s\n", res.Policy.Name, res.Counterexample.String())
	}
	for _, res := range slow {
		for _, issue := range res.Shape.Issues {
			fmt.Printf("  SLOW %s: %s() evaluated per row (%d occurrence(s))\n",
				res.Policy.Name, issue.Fn, issue.Occurrences)
		}
	}

	if len(diverged) > 0 {
		os.Exit(1)
	}
	return nil
}
