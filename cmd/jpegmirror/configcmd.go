package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/jpegmirror/internal/config"
	"github.com/muurk/jpegmirror/internal/ui"
)

var (
	configInitPath  string
	configInitForce bool
	configShowPath  string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration as YAML.

Without --path the file goes to the OS config directory
(e.g. ~/.config/jpegmirror/config.yaml). An existing file is left alone
unless --force is given.`,
	Example: `  jpegmirror config init
  jpegmirror config init --path ./jpegmirror.yaml --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.WriteDefault(configInitPath, configInitForce)
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		if err != nil {
			return err
		}
		fmt.Println(ui.NewSuccessResult("Configuration written").
			AddDetail("Path", path).
			AddDetail("Overrides", config.EnvPrefix+"_* environment variables"))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after merging defaults, the config file and JPEGMIRROR_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configShowPath)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(cfg)
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitPath, "path", "", "Destination file (default: OS config dir)")
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing file")
	configShowCmd.Flags().StringVarP(&configShowPath, "config", "c", "", "Path to config file (default: OS config dir)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
