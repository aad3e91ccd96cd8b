package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"welfare-server-go/auth"
	"welfare-server-go/db"
	"welfare-server-go/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage login accounts",
}

var newUser auth.NewUser

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a login account",
	Args:  cobra.NoArgs,
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List login accounts",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

var userLogoutCmd = &cobra.Command{
	Use:   "logout USERNAME",
	Short: "Revoke every session of USERNAME",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserLogout,
}

func init() {
	f := userAddCmd.Flags()
	f.StringVarP(&newUser.Username, "username", "u", "", "login name")
	f.StringVarP(&newUser.Password, "password", "p", "", "password, at least 6 characters")
	f.StringVar((*string)(&newUser.Role), "role", string(models.RoleUser), "admin or user")
	_ = userAddCmd.MarkFlagRequired("username")
	_ = userAddCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userAddCmd, userListCmd, userLogoutCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	store, err := db.NewSQLite(cfg.StoragePath)
	if err != nil {
		return err
	}
	defer store.Close()

	// account management never touches sessions
	u, err := auth.NewService(store, nil, cfg.Session.TTL, logger).CreateUser(cmd.Context(), newUser)
	if err != nil {
		return fmt.Errorf("create user: %s", models.ValidationMessage(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", u.Username, u.Role)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	store, err := db.NewSQLite(cfg.StoragePath)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := store.ListUsers(cmd.Context())
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-6s %s\n", u.Username, u.Role, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runUserLogout(cmd *cobra.Command, args []string) error {
	client, err := db.InitializeRedisClient(cmd.Context(), cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	n, err := db.NewRedisService(client, logger).DeleteUserSessions(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %d session(s) of %s\n", n, args[0])
	return nil
}
