package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nifty-go/internal/app"
	"nifty-go/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// credential is the --credential flag; NIFTY_CREDENTIAL is used when it is empty.
var credential string

func callerCredential() (string, error) {
	if credential != "" {
		return credential, nil
	}
	if c := os.Getenv("NIFTY_CREDENTIAL"); c != "" {
		return c, nil
	}
	return "", fmt.Errorf("no credential: pass --credential or set NIFTY_CREDENTIAL")
}

func readConfig() (*config.Config, error) {
	paths, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a NiftyApp. The caller must defer app.Close().
func newApp(ctx context.Context, command string) (*app.NiftyApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewNiftyApp(ctx, cfg, command)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp runs fn with a fresh NiftyApp and the caller's credential.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.NiftyApp, cred string) error) error {
	cred, err := callerCredential()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.CommandPath())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, cred)
}

var rootCmd = &cobra.Command{
	Use:           "nifty",
	Short:         "Folder-organized file registry with transferable ownership tokens",
	SilenceUsage: true,
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
		paths, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(paths.BaseDir)
		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Println("Run 'nifty db migrate' to create the database.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(paths.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", paths.ConfigPath)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s (level %s)\n", cfg.LogDir, cfg.LogLevel)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Content:    %s\n", describeContent(cfg.Content))
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		fmt.Printf("Identity:   %s\n", cfg.Identity.Type)
		fmt.Printf("Listen:     %s\n", cfg.Server.Listen)
		return nil
	},
}

func describeContent(c config.ContentConfig) string {
	switch c.Type {
	case "filesystem":
		return "filesystem " + c.Root
	case "s3":
		return fmt.Sprintf("s3 bucket=%s prefix=%s region=%s", c.S3Bucket, c.S3Prefix, c.S3Region)
	case "pinata":
		return "pinata gateway=" + c.PinataGateway
	default:
		return c.Type
	}
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the registry database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if err := app.Migrate(cfg); err != nil {
			return err
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the database into the content store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd.CommandPath())
		if err != nil {
			return err
		}
		defer a.Close()

		cid, err := a.Backup(cmd.Context())
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("Database snapshot stored as %s\n", cid)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the registry over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cmd.CommandPath())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.NeedsPassphrase() {
			pass, err := promptPassword("Passphrase to unlock content (empty to serve metadata only): ")
			if err != nil {
				return err
			}
			if pass != "" {
				if err := a.Unlock(pass); err != nil {
					return err
				}
			}
		}

		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			a.Config().Server.Listen = addr
		}
		fmt.Printf("Listening on %s\n", a.Config().Server.Listen)
		return a.Serve(ctx)
	},
}

// auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage bearer credentials",
}

var authIssueCmd = &cobra.Command{
	Use:   "issue ACCOUNT",
	Short: "Issue a signed bearer token for an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		token, expires, err := app.IssueToken(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Println(token)
		if !expires.IsZero() {
			fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format("2006-01-02 15:04:05 MST"))
		}
		return nil
	},
}

// encryption command
var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Manage content encryption",
}

var encryptionSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		pass, err := promptPassword("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}
		if err := app.SetupEncryption(cfg, pass); err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		fmt.Printf("Keys written to %s and %s\n", cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&credential, "credential", "", "Caller credential (default $NIFTY_CREDENTIAL)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbBackupCmd)

	authCmd.AddCommand(authIssueCmd)
	encryptionCmd.AddCommand(encryptionSetupCmd)

	serveCmd.Flags().String("listen", "", "Listen address (overrides server.listen)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(encryptionCmd)
}
