package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andy/billsink/internal/config"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Inspect and create the configuration file",
	Annotations: map[string]string{skipApp: "true"},
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a default config file",
	Annotations: map[string]string{skipApp: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigPath()
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		cfg := config.DefaultConfig()
		if name, _ := cmd.Flags().GetString("name"); name != "" {
			cfg.User.Name = name
		}
		if email, _ := cmd.Flags().GetString("email"); email != "" {
			cfg.User.Email = email
		}
		if err := cfg.Save(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Printf("✓ Config written to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Print the effective configuration, including environment overrides",
	Annotations: map[string]string{skipApp: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDefault()
		if err != nil {
			return err
		}
		if cfg.Notifier.APIKey != "" {
			cfg.Notifier.APIKey = "********"
		}
		if cfg.Server.JWTSecret != "" {
			cfg.Server.JWTSecret = "********"
		}
		if cfg.Server.InternalAPIKey != "" {
			cfg.Server.InternalAPIKey = "********"
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	configInitCmd.Flags().String("name", "", "Your name, printed on invoices")
	configInitCmd.Flags().String("email", "", "Your email, used as the reply-to address")
}
