package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/chroniclehq/chronicle/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chronicle",
	Short: "Chronicle CLI",
	Long: `chronicle is the command-line interface for a Chronicle server.

It lets you manage your account, write and publish posts, and moderate
comments and categories from the terminal.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.chronicle")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.chronicle/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Chronicle server URL (default http://localhost:8080)")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(versionCmd)
}

// ── Credential store ─────────────────────────────────────────────────────────

// credentials is the on-disk token file, one per server URL.
type credentials struct {
	Server string `json:"server"`
	Email  string `json:"email"`
	client.TokenPair
}

func credentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".chronicle", "credentials.json"), nil
}

func saveCredentials(creds *credentials) error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	b, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	// Tokens grant account access; keep the file owner-only.
	return os.WriteFile(path, b, 0o600)
}

func loadCredentials() (*credentials, error) {
	path, err := credentialsPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("not logged in: run 'chronicle login' first")
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var creds credentials
	if err := json.Unmarshal(b, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &creds, nil
}

func removeCredentials() error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// authedClient builds an SDK client seeded with the stored token pair.
func authedClient() (*client.Client, error) {
	creds, err := loadCredentials()
	if err != nil {
		return nil, err
	}
	return client.New(serverURL, client.WithTokenPair(creds.TokenPair))
}

func promptPassword(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// ── register / login / logout / whoami ───────────────────────────────────────

var registerCmd = &cobra.Command{
	Use:   "register <email> <username>",
	Short: "Create a new account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := promptPassword("Password")
		if err != nil {
			return err
		}

		c, err := client.New(serverURL)
		if err != nil {
			return err
		}
		a, err := c.Register(context.Background(), args[0], args[1], password)
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}

		fmt.Printf("✓ Account created: %s (%s)\n\n", a.Username, a.Email)
		fmt.Println("Check your inbox for the activation link, then run 'chronicle login'.")
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in and store tokens in ~/.chronicle/credentials.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := promptPassword("Password")
		if err != nil {
			return err
		}

		c, err := client.New(serverURL)
		if err != nil {
			return err
		}
		result, err := c.Login(context.Background(), args[0], password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		creds := &credentials{Server: serverURL, Email: result.Account.Email, TokenPair: result.TokenPair}
		if err := saveCredentials(creds); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}

		fmt.Printf("✓ Logged in as %s\n", result.Account.Username)
		return nil
	},
}

var logoutAll bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the stored tokens and forget them",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			// No stored credentials is already the desired state.
			fmt.Println("not logged in")
			return nil
		}

		ctx := context.Background()
		if logoutAll {
			err = c.LogoutAll(ctx)
		} else {
			err = c.Logout(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: server-side revocation failed: %v\n", err)
		}

		if err := removeCredentials(); err != nil {
			return fmt.Errorf("remove credentials: %w", err)
		}
		fmt.Println("✓ Logged out")
		return nil
	},
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Revoke every session and token for the account, not just this one")
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated account",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		a, err := c.Me(context.Background())
		if err != nil {
			return fmt.Errorf("fetch profile: %w", err)
		}

		fmt.Printf("Username:  %s\n", a.Username)
		fmt.Printf("Email:     %s\n", a.Email)
		if a.DisplayName != "" {
			fmt.Printf("Name:      %s\n", a.DisplayName)
		}
		fmt.Printf("Staff:     %t\n", a.IsStaff)
		fmt.Printf("Confirmed: %t\n", a.EmailConfirmed)
		fmt.Printf("Joined:    %s\n", a.CreatedAt.Format("2006-01-02"))
		return nil
	},
}

// ── posts ────────────────────────────────────────────────────────────────────

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Browse and manage posts",
}

var (
	postsStatus   string
	postsCategory string
	postsSearch   string
	postsLimit    int
	postsFormat   string
)

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			// Anonymous listing still works; it only sees published posts.
			c, err = client.New(serverURL)
			if err != nil {
				return err
			}
		}

		list, err := c.ListPosts(context.Background(), client.PostFilter{
			Status:   postsStatus,
			Category: postsCategory,
			Search:   postsSearch,
			Limit:    postsLimit,
		})
		if err != nil {
			return fmt.Errorf("list posts: %w", err)
		}

		if postsFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(list.Posts)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tTITLE\tSTATUS\tAUTHOR\tCATEGORY\tPUBLISHED")
		for _, p := range list.Posts {
			published := ""
			if p.PublishedAt != nil {
				published = p.PublishedAt.Format("2006-01-02")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				p.Slug, truncate(p.Title, 40), p.Status, p.AuthorName, p.Category, published)
		}
		return w.Flush()
	},
}

var postsGetCmd = &cobra.Command{
	Use:   "get <slug>",
	Short: "Show a single post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			c, err = client.New(serverURL)
			if err != nil {
				return err
			}
		}
		p, err := c.GetPost(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get post: %w", err)
		}

		if postsFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		}

		fmt.Printf("# %s\n\n", p.Title)
		fmt.Printf("by %s · %s", p.AuthorName, p.Status)
		if len(p.Tags) > 0 {
			fmt.Printf(" · %s", strings.Join(p.Tags, ", "))
		}
		fmt.Printf("\n\n%s\n", p.Content)
		return nil
	},
}

var (
	createTitle    string
	createCategory string
	createTags     []string
	createPublish  bool
	createFile     string
)

var postsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a post (staff only)",
	Long: `Create a post from a markdown file or stdin.

  chronicle posts create --title "Release notes" --file notes.md --publish
  cat notes.md | chronicle posts create --title "Release notes"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var body []byte
		var err error
		if createFile != "" {
			body, err = os.ReadFile(createFile)
		} else {
			body, err = readAllStdin()
		}
		if err != nil {
			return fmt.Errorf("read post body: %w", err)
		}

		status := client.StatusDraft
		if createPublish {
			status = client.StatusPublished
		}

		c, err := authedClient()
		if err != nil {
			return err
		}
		p, err := c.CreatePost(context.Background(), client.PostInput{
			Title:    createTitle,
			Content:  string(body),
			Status:   status,
			Category: createCategory,
			Tags:     createTags,
		})
		if err != nil {
			return fmt.Errorf("create post: %w", err)
		}

		fmt.Printf("✓ Post created: %s (%s)\n", p.Slug, p.Status)
		return nil
	},
}

var postsPublishCmd = &cobra.Command{
	Use:   "publish <slug>",
	Short: "Flip a draft to published (staff only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		p, err := c.GetPost(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get post: %w", err)
		}
		if p.Status == client.StatusPublished {
			fmt.Printf("post %s is already published\n", p.Slug)
			return nil
		}

		updated, err := c.UpdatePost(ctx, p.Slug, client.PostInput{
			Title:    p.Title,
			Content:  p.Content,
			Status:   client.StatusPublished,
			Category: p.Category,
			Tags:     p.Tags,
		})
		if err != nil {
			return fmt.Errorf("publish post: %w", err)
		}

		fmt.Printf("✓ Published %s at %s\n", updated.Slug, updated.PublishedAt.Format(time.RFC3339))
		return nil
	},
}

var postsDeleteCmd = &cobra.Command{
	Use:   "delete <slug>",
	Short: "Delete a post (staff only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		if err := c.DeletePost(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		fmt.Printf("✓ Deleted %s\n", args[0])
		return nil
	},
}

var postsCommentsCmd = &cobra.Command{
	Use:   "comments <slug>",
	Short: "List a post's comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			c, err = client.New(serverURL)
			if err != nil {
				return err
			}
		}
		comments, err := c.ListComments(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("list comments: %w", err)
		}

		for _, cm := range comments {
			fmt.Printf("%s  %s  (%s)\n  %s\n\n",
				cm.CreatedAt.Format("2006-01-02 15:04"), cm.AuthorName, cm.ID, cm.Body)
		}
		if len(comments) == 0 {
			fmt.Println("no comments")
		}
		return nil
	},
}

func init() {
	postsCmd.AddCommand(postsListCmd)
	postsCmd.AddCommand(postsGetCmd)
	postsCmd.AddCommand(postsCreateCmd)
	postsCmd.AddCommand(postsPublishCmd)
	postsCmd.AddCommand(postsDeleteCmd)
	postsCmd.AddCommand(postsCommentsCmd)

	postsCmd.PersistentFlags().StringVar(&postsFormat, "format", "text", "Output format: text or json")

	postsListCmd.Flags().StringVar(&postsStatus, "status", "", "Filter by status: draft or publish")
	postsListCmd.Flags().StringVar(&postsCategory, "category", "", "Filter by category slug")
	postsListCmd.Flags().StringVar(&postsSearch, "search", "", "Full-text search in title and body")
	postsListCmd.Flags().IntVar(&postsLimit, "limit", 20, "Maximum number of posts to return")

	postsCreateCmd.Flags().StringVar(&createTitle, "title", "", "Post title (required)")
	postsCreateCmd.Flags().StringVar(&createCategory, "category", "", "Category slug")
	postsCreateCmd.Flags().StringSliceVar(&createTags, "tags", nil, "Comma-separated tags")
	postsCreateCmd.Flags().BoolVar(&createPublish, "publish", false, "Publish immediately instead of saving a draft")
	postsCreateCmd.Flags().StringVar(&createFile, "file", "", "Read the post body from this file (default stdin)")
	_ = postsCreateCmd.MarkFlagRequired("title")
}

// ── categories ───────────────────────────────────────────────────────────────

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Browse and manage categories",
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(serverURL)
		if err != nil {
			return err
		}
		cats, err := c.ListCategories(context.Background())
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tNAME")
		for _, cat := range cats {
			fmt.Fprintf(w, "%s\t%s\n", cat.Slug, cat.Name)
		}
		return w.Flush()
	},
}

var categoriesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a category (staff only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		cat, err := c.CreateCategory(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("create category: %w", err)
		}
		fmt.Printf("✓ Category created: %s\n", cat.Slug)
		return nil
	},
}

func init() {
	categoriesCmd.AddCommand(categoriesListCmd)
	categoriesCmd.AddCommand(categoriesCreateCmd)
}

// ── users ────────────────────────────────────────────────────────────────────

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts (staff only)",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		list, err := c.ListUsers(context.Background())
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tEMAIL\tACTIVE\tSTAFF\tJOINED")
		for _, a := range list {
			fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n",
				a.Username, a.Email, a.IsActive, a.IsStaff, a.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var usersDeactivateCmd = &cobra.Command{
	Use:   "deactivate <username>",
	Short: "Disable an account and revoke its credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		if err := c.DeactivateUser(context.Background(), args[0]); err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}
		fmt.Printf("✓ Deactivated %s\n", args[0])
		return nil
	},
}

var usersReactivateCmd = &cobra.Command{
	Use:   "reactivate <username>",
	Short: "Re-enable a deactivated account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		if err := c.ReactivateUser(context.Background(), args[0]); err != nil {
			return fmt.Errorf("reactivate user: %w", err)
		}
		fmt.Printf("✓ Reactivated %s\n", args[0])
		return nil
	},
}

func init() {
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersDeactivateCmd)
	usersCmd.AddCommand(usersReactivateCmd)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chronicle %s\n", version)
	},
}

// ── helpers ──────────────────────────────────────────────────────────────────

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func readAllStdin() ([]byte, error) {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("no --file given and stdin is a terminal")
	}
	return io.ReadAll(os.Stdin)
}
