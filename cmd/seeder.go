package cmd

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/formulapm/access-management/internal/authz"
)

// seedIdentities covers one account per role, plus the seniority spread
// for project managers.
var seedIdentities = []struct {
	Email     string
	Name      string
	Role      string
	Seniority string
}{
	{"admin@formulapm.dev", "Site Admin", "admin", "regular"},
	{"management@formulapm.dev", "Managing Director", "management", "regular"},
	{"purchasing@formulapm.dev", "Purchase Manager", "purchase_manager", "regular"},
	{"tech@formulapm.dev", "Technical Lead", "technical_lead", "regular"},
	{"pm@formulapm.dev", "Project Manager", "project_manager", "regular"},
	{"pm.senior@formulapm.dev", "Senior Project Manager", "project_manager", "senior"},
	{"pm.exec@formulapm.dev", "Executive Project Manager", "project_manager", "executive"},
	{"client@formulapm.dev", "Client Viewer", "client", "regular"},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with one identity per role for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGormDB(db)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := gormDB.Exec("DELETE FROM user_identities").Error; err != nil {
				log.Fatalf("failed to clear identities: %v", err)
			}
			fmt.Println("Cleared existing identities")
		}

		password := "password"
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("failed to hash seed password: %v", err)
		}

		for _, s := range seedIdentities {
			var exists int
			row := gormDB.Raw("SELECT 1 FROM user_identities WHERE email = ?", s.Email).Row()
			if err := row.Scan(&exists); err == nil {
				fmt.Printf("identity already exists: %s\n", s.Email)
				continue
			}

			err := gormDB.Exec(
				"INSERT INTO user_identities (id, email, name, password_hash, role, seniority, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, true, now(), now())",
				uuid.NewString(), s.Email, s.Name, string(hash), s.Role, s.Seniority,
			).Error
			if err != nil {
				log.Fatalf("failed to insert identity %s: %v", s.Email, err)
			}
			fmt.Printf("Seeded identity: %s (%s/%s)\n", s.Email, s.Role, s.Seniority)
		}

		if err := mirrorPermissionRules(gormDB, cfg.Authz.RulesPath); err != nil {
			log.Fatalf("failed to mirror permission rules: %v", err)
		}

		fmt.Println("Identities seeded successfully")
	},
}

// mirrorPermissionRules copies the rule table artifact into the
// permission_rules table. The service never reads the mirror; stored
// policies and operators do.
func mirrorPermissionRules(db *gorm.DB, rulesPath string) error {
	table, err := authz.LoadRuleTable(rulesPath)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM permission_rules").Error; err != nil {
			return err
		}
		for _, rule := range table.Rules() {
			ownerColumns := ""
			if rule.Filter != nil {
				ownerColumns = strings.Join(rule.Filter.OwnerColumns, ",")
			}
			err := tx.Exec(
				"INSERT INTO permission_rules (role, resource, action, allowed, owner_columns) VALUES (?, ?, ?, ?, ?)",
				string(rule.Role), rule.Resource, string(rule.Action), rule.Allowed, ownerColumns,
			).Error
			if err != nil {
				return err
			}
		}
		fmt.Printf("Mirrored %d permission rules\n", table.Len())
		return nil
	})
}
