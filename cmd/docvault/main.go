package main

import (
	"fmt"
	"os"
	"time"

	"docvault/internal/app"
	"docvault/internal/config"
	"docvault/internal/content"
	"docvault/internal/database"
	"docvault/internal/model"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config, creates a VaultApp and authenticates the
// caller. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Upload", "Grant").
func newApp(cmd *cobra.Command, operation string) (*app.VaultApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewVaultApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	credential, _ := cmd.Flags().GetString("credential")
	if credential == "" {
		credential = os.Getenv("DOCVAULT_CREDENTIAL")
	}
	if credential == "" {
		a.Close()
		return nil, fmt.Errorf("no credential: pass --credential or set DOCVAULT_CREDENTIAL")
	}

	if err := a.Authenticate(credential); err != nil {
		a.Close()
		return nil, fmt.Errorf("authenticating: %w", err)
	}

	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// readPassphrase prompts for a passphrase without echoing it.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

// unlockIfEncrypted prompts for the passphrase and unlocks the content
// store when encryption is configured.
func unlockIfEncrypted(a *app.VaultApp) error {
	if !a.EncryptionEnabled() {
		return nil
	}
	pass, err := readPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	return a.UnlockContent(pass)
}

var rootCmd = &cobra.Command{
	Use:   "docvault",
	Short: "Multi-tenant document vault",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Content:    %s (encrypted: %v)\n", cfg.Content.Type, cfg.Content.Encryption.Enabled)
		fmt.Printf("Identity:   %s\n", cfg.Identity.Type)
		return nil
	},
}

var configKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the content encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		kc := content.NewKeychain(cfg.Content.Encryption)
		if kc.IsConfigured() {
			return fmt.Errorf("key pair already exists; refusing to overwrite")
		}

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := kc.Setup(pass); err != nil {
			return fmt.Errorf("generating key pair: %w", err)
		}

		fmt.Println("Key pair generated.")
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		store, err := database.NewStoreFromConfig(cfg.Database)
		if err != nil {
			return fmt.Errorf("creating store: %w", err)
		}
		defer store.Close()

		if err := store.MigrateUp(); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}

		fmt.Println("Database is up to date.")
		return nil
	},
}

// whoami command
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated subtenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Whoami")
		if err != nil {
			return err
		}
		defer a.Close()

		caller, err := a.Caller()
		if err != nil {
			return err
		}

		st := caller.Subtenant
		fmt.Printf("Subtenant:   %s\n", st.ID)
		fmt.Printf("Name:        %s\n", st.Name)
		fmt.Printf("Description: %s\n", st.Description)
		fmt.Printf("Principal:   %s\n", caller.ExternalID)
		return nil
	},
}

// dir command
var dirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Manage the directory tree",
}

var dirResolveCmd = &cobra.Command{
	Use:   "resolve PATH",
	Short: "Resolve a path, creating missing directories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ResolvePath")
		if err != nil {
			return err
		}
		defer a.Close()

		dir, err := a.ResolvePath(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s  %s\n", dir.ID, dir.Path)
		return nil
	},
}

var dirLsCmd = &cobra.Command{
	Use:   "ls PATH",
	Short: "List visible contents of a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		includePrivate, _ := cmd.Flags().GetBool("private")

		a, err := newApp(cmd, "ListDirectory")
		if err != nil {
			return err
		}
		defer a.Close()

		dirs, docs, err := a.ListDirectory(args[0], includePrivate)
		if err != nil {
			return err
		}

		if len(dirs) == 0 && len(docs) == 0 {
			fmt.Println("Empty.")
			return nil
		}

		for _, d := range dirs {
			fmt.Printf("d  %s  %s/\n", d.ID, d.Name)
		}
		for _, d := range docs {
			fmt.Printf("-  %s  %s  v%d\n", d.ID, d.Name, d.Version)
		}
		return nil
	},
}

// doc command
var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage documents",
}

var docUploadCmd = &cobra.Command{
	Use:   "upload PATH FILE",
	Short: "Upload a file as a document version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Upload")
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.Upload(args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("Uploaded %s as %s (version %d)\n", args[1], doc.ID, doc.Version)
		return nil
	},
}

var docVersionCmd = &cobra.Command{
	Use:   "version DOCUMENT_ID FILE",
	Short: "Upload the next version of an existing document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "UploadVersion")
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.UploadVersion(args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("Uploaded %s as %s (version %d)\n", args[1], doc.ID, doc.Version)
		return nil
	},
}

var docHistoryCmd = &cobra.Command{
	Use:   "history PATH NAME",
	Short: "Show the version history of a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "History")
		if err != nil {
			return err
		}
		defer a.Close()

		history, err := a.History(args[0], args[1])
		if err != nil {
			return err
		}

		for _, d := range history {
			fmt.Printf("v%-4d  %s  %s  %s\n",
				d.Version,
				d.ID,
				d.CreatedAt.Format("2006-01-02 15:04:05"),
				d.OriginalFilename,
			)
		}
		return nil
	},
}

var docCatCmd = &cobra.Command{
	Use:   "cat DOCUMENT_ID",
	Short: "Print a document's content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Cat")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlockIfEncrypted(a); err != nil {
			return err
		}

		return a.Cat(args[0], os.Stdout)
	},
}

// share command
var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Manage permission grants",
}

var shareGrantCmd = &cobra.Command{
	Use:   "grant RESOURCE_KIND RESOURCE_ID LEVEL",
	Short: "Grant access to a resource you own",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		subtenant, _ := cmd.Flags().GetString("subtenant")
		group, _ := cmd.Flags().GetString("group")
		expiresIn, _ := cmd.Flags().GetDuration("expires-in")

		var granteeKind model.GranteeKind
		var granteeID string
		switch {
		case subtenant != "" && group == "":
			granteeKind, granteeID = model.GranteeSubtenant, subtenant
		case group != "" && subtenant == "":
			granteeKind, granteeID = model.GranteeGroup, group
		default:
			return fmt.Errorf("pass exactly one of --subtenant or --group")
		}

		var expiresAt *time.Time
		if expiresIn > 0 {
			t := time.Now().UTC().Add(expiresIn)
			expiresAt = &t
		}

		a, err := newApp(cmd, "Grant")
		if err != nil {
			return err
		}
		defer a.Close()

		grant, err := a.Grant(granteeKind, granteeID,
			model.ResourceKind(args[0]), args[1], model.Level(args[2]), expiresAt)
		if err != nil {
			return err
		}

		fmt.Printf("Granted %s on %s %s to %s %s (grant %s)\n",
			grant.Level, grant.ResourceKind, grant.ResourceID,
			grant.GranteeKind, grant.GranteeID, grant.ID)
		return nil
	},
}

var shareRevokeCmd = &cobra.Command{
	Use:   "revoke GRANT_ID",
	Short: "Revoke a grant you issued",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Revoke")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Revoke(args[0]); err != nil {
			return err
		}

		fmt.Printf("Revoked grant %s\n", args[0])
		return nil
	},
}

var shareLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List grants you issued",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		id, _ := cmd.Flags().GetString("id")

		a, err := newApp(cmd, "ListGrants")
		if err != nil {
			return err
		}
		defer a.Close()

		grants, err := a.ListGrants(model.ResourceKind(kind), id)
		if err != nil {
			return err
		}

		if len(grants) == 0 {
			fmt.Println("No grants.")
			return nil
		}

		for _, g := range grants {
			expiry := "never"
			if g.ExpiresAt != nil {
				expiry = g.ExpiresAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  %-6s  %s %s  ->  %s %s  expires:%s\n",
				g.ID, g.Level, g.ResourceKind, g.ResourceID,
				g.GranteeKind, g.GranteeID, expiry)
		}
		return nil
	},
}

// account command
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage your subtenant",
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update your subtenant profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")

		a, err := newApp(cmd, "UpdateSubtenant")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.UpdateSubtenant(name, description)
		if err != nil {
			return err
		}

		fmt.Printf("Updated subtenant %s (%s)\n", st.ID, st.Name)
		return nil
	},
}

var accountDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate your subtenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DeactivateSubtenant")
		if err != nil {
			return err
		}
		defer a.Close()

		caller, err := a.Caller()
		if err != nil {
			return err
		}

		if err := a.DeactivateSubtenant(caller.SubtenantID()); err != nil {
			return err
		}

		fmt.Printf("Deactivated subtenant %s\n", caller.SubtenantID())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("credential", "c", "", "Credential for the identity provider (or DOCVAULT_CREDENTIAL)")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeygenCmd)

	// dir subcommands
	dirCmd.AddCommand(dirResolveCmd)
	dirCmd.AddCommand(dirLsCmd)
	dirLsCmd.Flags().BoolP("private", "p", false, "Include private resources you can access")

	// doc subcommands
	docCmd.AddCommand(docUploadCmd)
	docCmd.AddCommand(docVersionCmd)
	docCmd.AddCommand(docHistoryCmd)
	docCmd.AddCommand(docCatCmd)

	// share subcommands
	shareCmd.AddCommand(shareGrantCmd)
	shareGrantCmd.Flags().String("subtenant", "", "Grantee subtenant id")
	shareGrantCmd.Flags().String("group", "", "Grantee group id")
	shareGrantCmd.Flags().Duration("expires-in", 0, "Grant lifetime (e.g. 72h); omit for no expiry")
	shareCmd.AddCommand(shareRevokeCmd)
	shareCmd.AddCommand(shareLsCmd)
	shareLsCmd.Flags().String("kind", "", "Filter by resource kind (directory or document)")
	shareLsCmd.Flags().String("id", "", "Filter by resource id")

	// account subcommands
	accountCmd.AddCommand(accountUpdateCmd)
	accountCmd.AddCommand(accountDeactivateCmd)
	accountUpdateCmd.Flags().String("name", "", "New display name")
	accountUpdateCmd.Flags().String("description", "", "New description")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(dirCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(accountCmd)
}
