package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/repository"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user and issue their first API key",
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  runUserList,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a user and everything they own",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

var (
	userName     string
	userPassword string
)

func init() {
	userAddCmd.Flags().StringVar(&userName, "name", "", "User name")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "User password (will prompt if not provided)")
	userAddCmd.MarkFlagRequired("name")

	userCmd.AddCommand(userAddCmd, userListCmd, userDeleteCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	existing, err := env.users.GetByName(userName)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("user %s already exists", userName)
	}

	// Prompt for password if not provided
	password := userPassword
	if password == "" {
		fmt.Print("Enter password: ")
		pwBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)

		fmt.Print("Confirm password: ")
		pwBytes2, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		if password != string(pwBytes2) {
			return fmt.Errorf("passwords do not match")
		}
	}

	if len(password) < 10 {
		return fmt.Errorf("password must be at least 10 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:         userName,
		PasswordHash: string(hash),
	}
	if err := env.users.Create(user); err != nil {
		return err
	}

	apiKeys := repository.NewAPIKeyRepository(env.database.DB)
	key, err := apiKeys.Create(user.ID)
	if err != nil {
		return fmt.Errorf("user created but API key generation failed: %w", err)
	}

	fmt.Printf("User %s created (id %s)\n\n", user.Name, user.ID)
	fmt.Printf("API key (shown only once, store it now):\n  %s\n", key.Key)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	users, err := env.users.List()
	if err != nil {
		return err
	}

	if len(users) == 0 {
		fmt.Println("No users")
		return nil
	}

	apiKeys := repository.NewAPIKeyRepository(env.database.DB)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tAPI KEYS")
	fmt.Fprintln(w, "--\t----\t-------\t--------")

	for _, u := range users {
		keys, err := apiKeys.ListByUser(u.ID)
		if err != nil {
			return err
		}
		active := 0
		for _, k := range keys {
			if k.Active {
				active++
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
			u.ID, u.Name, u.CreatedAt.Format("2006-01-02 15:04"), active)
	}

	w.Flush()
	return nil
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	user, err := env.users.GetByName(name)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s not found", name)
	}

	// Templates, instances and keys cascade with the user row
	fmt.Printf("Are you sure you want to delete user %s? [y/N]: ", name)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))

	if response != "y" && response != "yes" {
		fmt.Println("Cancelled")
		return nil
	}

	if err := env.users.Delete(user.ID); err != nil {
		return err
	}

	fmt.Printf("User %s deleted\n", name)
	return nil
}
