package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/retroproto/msnpd/internal/cli/output"
	"github.com/retroproto/msnpd/internal/cli/prompt"
	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/config"
	"github.com/retroproto/msnpd/pkg/store"
	"github.com/retroproto/msnpd/pkg/store/gormstore"
	"github.com/retroproto/msnpd/pkg/store/models"
)

// newUserCmd builds the account management command tree. These commands
// operate on the database directly and do not require a running server.
func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage Messenger accounts",
	}

	cmd.AddCommand(newUserAddCmd())
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserDeleteCmd())
	return cmd
}

// openStore opens the configured database for a CLI command.
func openStore() (store.Store, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}
	return gormstore.New(&cfg.Database)
}

func newUserAddCmd() *cobra.Command {
	var displayName string

	cmd := &cobra.Command{
		Use:   "add <identity>",
		Short: "Add a Messenger account (prompts for a password)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := msnp.NormalizeIdentity(args[0])
			if !msnp.ValidIdentity(identity) {
				return fmt.Errorf("identity %q must be email-shaped (local@domain)", args[0])
			}

			password, err := prompt.PasswordWithConfirmation("Password", "Confirm password", 1)
			if err != nil {
				return err
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			user := &models.User{
				Identity:    identity,
				Credential:  password,
				DisplayName: displayName,
			}
			if err := st.CreateUser(cmd.Context(), user); err != nil {
				if errors.Is(err, store.ErrUserExists) {
					return fmt.Errorf("account %q already exists", identity)
				}
				return err
			}

			fmt.Printf("Account %q created\n", identity)
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "Display name (defaults to the identity)")
	return cmd
}

func newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List Messenger accounts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			users, err := st.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Println("No accounts")
				return nil
			}

			table := output.NewTableData("IDENTITY", "DISPLAY NAME", "CREATED")
			for _, u := range users {
				displayName := u.DisplayName
				if displayName == "" {
					displayName = "-"
				}
				table.AddRow(u.Identity, displayName, u.CreatedAt.Format("2006-01-02 15:04"))
			}
			table.Print(os.Stdout)
			return nil
		},
	}
}

func newUserDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <identity>",
		Aliases: []string{"del", "remove"},
		Short:   "Delete a Messenger account and its contact lists",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := msnp.NormalizeIdentity(args[0])

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if _, err := st.GetUser(cmd.Context(), identity); err != nil {
				if errors.Is(err, store.ErrUserNotFound) {
					return fmt.Errorf("account %q not found", identity)
				}
				return err
			}

			if !force {
				ok, err := prompt.Confirm(fmt.Sprintf("Delete account %q", identity))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted")
					return nil
				}
			}

			if err := st.DeleteUser(cmd.Context(), identity); err != nil {
				return err
			}

			fmt.Printf("Account %q deleted\n", identity)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")
	return cmd
}
