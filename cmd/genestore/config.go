package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"genestore/internal/config"
	"genestore/internal/userconfig"
)

var (
	configShowDiff  bool
	configInitForce bool
	configDefaultsFile string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage genestore configuration",
	Long:  "View and manage the configuration stored in <root>/config.json",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration: config.json merged with defaults and
GENESTORE_* environment overrides.

Examples:
  genestore config show              # Pretty-print current config
  genestore config show --format json
  genestore config show --diff       # Only show non-default values`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.json to the storage root",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the onboarding defaults given to new users",
	Long:  "Print the user configuration defaults as TOML. Use the output as a starting point for an override file.",
	Args:  cobra.NoArgs,
	RunE:  runConfigDefaults,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	Args:  cobra.NoArgs,
	Run:   runConfigEnv,
}

func init() {
	configShowCmd.Flags().BoolVar(&configShowDiff, "diff", false, "Only show non-default values")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config.json")

	configDefaultsCmd.Flags().StringVar(&configDefaultsFile, "file", "", "Override file to merge over the built-in defaults")
	configCmd.AddCommand(configShowCmd, configInitCmd, configDefaultsCmd, configEnvCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(rootDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if OutputFormat(formatArg) != FormatHuman {
		configMap, err := toMap(cfg)
		if err != nil {
			return err
		}
		if configShowDiff {
			defaults, err := toMap(config.DefaultConfig())
			if err != nil {
				return err
			}
			// The storage root always differs from the default ".".
			delete(configMap, "storageRoot")
			configMap = computeDiff(configMap, defaults)
		}
		return printResult(cmd.OutOrStdout(), configMap)
	}

	outputConfigHuman(cmd.OutOrStdout(), cfg, configShowDiff)
	return nil
}

func outputConfigHuman(w io.Writer, cfg *config.Config, diffOnly bool) {
	defaults := config.DefaultConfig()

	fmt.Fprintln(w, "genestore Configuration")
	fmt.Fprintln(w, strings.Repeat("─", 50))
	path := filepath.Join(cfg.StorageRoot, config.FileName)
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "Source: %s\n", path)
	} else {
		fmt.Fprintln(w, "Source: defaults (no config file found)")
	}
	fmt.Fprintln(w)

	if diffOnly {
		current, _ := toMap(cfg)
		base, _ := toMap(defaults)
		delete(current, "storageRoot")
		diff := flatten(computeDiff(current, base), "")
		fmt.Fprintln(w, "Modified Settings (differs from defaults):")
		if len(diff) == 0 {
			fmt.Fprintln(w, "  (no modifications - using all defaults)")
			return
		}
		keys := make([]string, 0, len(diff))
		for k := range diff {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, diff[k])
		}
		return
	}

	printConfigSection(w, "version", cfg.Version, defaults.Version)
	printConfigSection(w, "storageRoot", cfg.StorageRoot, cfg.StorageRoot)

	fmt.Fprintln(w, "\nhistory:")
	printConfigSection(w, "  backend", cfg.History.Backend, defaults.History.Backend)
	printConfigSection(w, "  gitBinary", cfg.History.GitBinary, defaults.History.GitBinary)
	printConfigSection(w, "  timeoutMs", cfg.History.TimeoutMs, defaults.History.TimeoutMs)
	printConfigSection(w, "  compressionLevel", cfg.History.CompressionLevel, defaults.History.CompressionLevel)

	fmt.Fprintln(w, "\nrollupCache:")
	printConfigSection(w, "  capacity", cfg.RollupCache.Capacity, defaults.RollupCache.Capacity)

	fmt.Fprintln(w, "\nsequences:")
	printConfigSection(w, "  verifyContent", cfg.Sequences.VerifyContent, defaults.Sequences.VerifyContent)

	fmt.Fprintln(w, "\nauth:")
	printConfigSection(w, "  enabled", cfg.Auth.Enabled, defaults.Auth.Enabled)
	printConfigSection(w, "  defaultUser", cfg.Auth.DefaultUser, defaults.Auth.DefaultUser)

	fmt.Fprintln(w, "\nserver:")
	printConfigSection(w, "  host", cfg.Server.Host, defaults.Server.Host)
	printConfigSection(w, "  port", cfg.Server.Port, defaults.Server.Port)
	printConfigSection(w, "  configFile", valueOrDefault(cfg.Server.ConfigFile, "(none)"), "(none)")

	fmt.Fprintln(w, "\nlogging:")
	printConfigSection(w, "  format", cfg.Logging.Format, defaults.Logging.Format)
	printConfigSection(w, "  level", cfg.Logging.Level, defaults.Logging.Level)
	printConfigSection(w, "  file", valueOrDefault(cfg.Logging.File, "(stderr only)"), "(stderr only)")
	printConfigSection(w, "  maxSize", cfg.Logging.MaxSize, defaults.Logging.MaxSize)
	printConfigSection(w, "  maxBackups", cfg.Logging.MaxBackups, defaults.Logging.MaxBackups)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Use 'genestore config show --format json' for full configuration")
	fmt.Fprintln(w, "Use 'genestore config env' to see supported environment variables")
}

func printConfigSection(w io.Writer, name string, value, defaultValue interface{}) {
	modified := ""
	if !isEqual(value, defaultValue) {
		modified = fmt.Sprintf(" (default: %v)", defaultValue)
	}
	fmt.Fprintf(w, "%s: %v%s\n", name, value, modified)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(rootDir, config.FileName)
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.DefaultConfig()
	cfg.StorageRoot = rootDir
	if err := cfg.Save(rootDir); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

type envVarInfo struct {
	name    string
	desc    string
	varType string
}

func runConfigEnv(cmd *cobra.Command, args []string) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Supported genestore Environment Variables")
	fmt.Fprintln(w, strings.Repeat("─", 50))
	fmt.Fprintln(w)

	categories := map[string][]envVarInfo{
		"Storage": {
			{"GENESTORE_STORAGEROOT", "Storage root directory", "string"},
			{"GENESTORE_ROLLUPCACHE_CAPACITY", "Projects kept in the rollup cache (0 = unbounded)", "int"},
			{"GENESTORE_SEQUENCES_VERIFYCONTENT", "Check sequence md5 on write", "bool"},
		},
		"History": {
			{"GENESTORE_HISTORY_BACKEND", "History backend (sqlite, git)", "string"},
			{"GENESTORE_HISTORY_GITBINARY", "git executable for the git backend", "string"},
			{"GENESTORE_HISTORY_TIMEOUTMS", "Timeout per history operation", "int"},
			{"GENESTORE_HISTORY_COMPRESSIONLEVEL", "zstd level for the sqlite backend (1-4)", "int"},
		},
		"Server": {
			{"GENESTORE_SERVER_HOST", "Host to bind to", "string"},
			{"GENESTORE_SERVER_PORT", "Port to listen on", "int"},
			{"GENESTORE_SERVER_CONFIGFILE", "TOML file with http, cors, auth and metrics settings", "string"},
			{"GENESTORE_AUTH_ENABLED", "Require API tokens", "bool"},
			{"GENESTORE_AUTH_DEFAULTUSER", "User when auth is disabled", "string"},
		},
		"Logging": {
			{"GENESTORE_LOGGING_LEVEL", "Log level (debug, info, warn, error)", "string"},
			{"GENESTORE_LOGGING_FORMAT", "Log format (human, json)", "string"},
			{"GENESTORE_LOGGING_FILE", "Also log to this file", "string"},
		},
	}

	order := []string{"Storage", "History", "Server", "Logging"}
	for _, cat := range order {
		fmt.Fprintf(w, "%s:\n", cat)
		for _, v := range categories[cat] {
			fmt.Fprintf(w, "  %-36s %s (%s)\n", v.name, v.desc, v.varType)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Example usage:")
	fmt.Fprintln(w, "  GENESTORE_HISTORY_BACKEND=git genestore serve")
	fmt.Fprintln(w, "  GENESTORE_LOGGING_LEVEL=debug genestore serve")
}

func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func isEqual(a, b interface{}) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func computeDiff(current, defaults map[string]interface{}) map[string]interface{} {
	diff := make(map[string]interface{})
	for key, currentVal := range current {
		defaultVal, exists := defaults[key]
		if !exists {
			diff[key] = currentVal
			continue
		}

		currentMap, currentIsMap := currentVal.(map[string]interface{})
		defaultMap, defaultIsMap := defaultVal.(map[string]interface{})
		if currentIsMap && defaultIsMap {
			if nested := computeDiff(currentMap, defaultMap); len(nested) > 0 {
				diff[key] = nested
			}
		} else if !isEqual(currentVal, defaultVal) {
			diff[key] = currentVal
		}
	}
	return diff
}

// flatten turns nested maps into dotted keys.
func flatten(m map[string]interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			for nk, nv := range flatten(nested, prefix+k+".") {
				out[nk] = nv
			}
			continue
		}
		out[prefix+k] = v
	}
	return out
}

func runConfigDefaults(cmd *cobra.Command, args []string) error {
	defaults, err := userconfig.LoadDefaults(configDefaultsFile)
	if err != nil {
		return err
	}
	if OutputFormat(formatArg) != FormatHuman {
		return printResult(cmd.OutOrStdout(), defaults)
	}
	data, err := userconfig.EncodeTOML(defaults)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
