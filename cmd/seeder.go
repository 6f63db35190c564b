package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/frahmantamala/access-management/internal/auth"
	authPostgres "github.com/frahmantamala/access-management/internal/auth/postgres"
	"github.com/frahmantamala/access-management/internal/core/common/validation"
	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
	"github.com/frahmantamala/access-management/internal/core/store"
	"github.com/frahmantamala/access-management/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const adminRole = "admin"

var (
	seedAdminEmail    string
	seedAdminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create or promote the administrator account",
	Long: `Ensure an active account with the admin role exists. Roles and permissions come from the
migrations; run "migrate" first. The password is read from --password or APP_SEED_ADMIN_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

		password := seedAdminPassword
		if password == "" {
			password = os.Getenv("APP_SEED_ADMIN_PASSWORD")
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		gormDB, err := initGorm(db)
		if err != nil {
			return err
		}

		hasher := auth.NewBcryptHasher(cfg.Security.BCryptCost)
		return seedAdmin(cmd.Context(), store.New(gormDB), hasher, logger.LoggerWrapper(), seedAdminEmail, password)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminEmail, "email", "admin@example.com", "administrator email")
	seedCmd.Flags().StringVar(&seedAdminPassword, "password", "", "administrator password for a new account")
}

// seedAdmin creates the account when missing and links it to the admin role. An existing
// account keeps its password.
func seedAdmin(ctx context.Context, st *store.Store, hasher auth.PasswordHasher, lg *slog.Logger, email, password string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	return st.WithinTx(ctx, func(tx *gorm.DB) error {
		repos := authPostgres.NewRepositories(tx)

		role, err := repos.Permissions.FindRoleByName(ctx, adminRole)
		if err != nil {
			if store.IsNotFound(err) {
				return errors.New("admin role missing: run migrate first")
			}
			return fmt.Errorf("lookup admin role: %w", err)
		}

		account, err := repos.Users.FindByEmail(ctx, email)
		switch {
		case err == nil:
			lg.Info("admin account already exists", "email", email)
		case store.IsNotFound(err):
			if appErr := validation.ValidateCredentials(email, password); appErr != nil {
				return fmt.Errorf("invalid admin credentials: %w", appErr)
			}
			hash, err := hasher.Hash(password)
			if err != nil {
				return fmt.Errorf("hash admin password: %w", err)
			}
			account = &userDatamodel.User{Email: email, PasswordHash: hash, IsActive: true}
			if err := repos.Users.Create(ctx, account); err != nil {
				return fmt.Errorf("create admin account: %w", err)
			}
			lg.Info("admin account created", "email", email, "user_id", account.ID)
		default:
			return fmt.Errorf("lookup admin account: %w", err)
		}

		link := userDatamodel.UserRole{UserID: account.ID, RoleID: role.ID}
		if err := tx.WithContext(ctx).
			Where("user_id = ? AND role_id = ?", account.ID, role.ID).
			Attrs(userDatamodel.UserRole{AssignedAt: time.Now().UTC()}).
			FirstOrCreate(&link).Error; err != nil {
			return fmt.Errorf("grant admin role: %w", err)
		}
		return nil
	})
}
