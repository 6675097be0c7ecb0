package cli

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/insightshq/nl2sql-processor/internal/config"
)

var (
	cfgFile    string
	devMode    bool
	appVersion string
)

// ExitError ends the program with Code after printing Message, if any.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	return newRootCmd(version, commit, date).Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insightshq",
		Short: "Answer natural-language questions over the data warehouse",
		Long: `InsightsHQ NL2SQL processor.

Questions arrive on an Azure Service Bus queue. Each one is answered by a
language model that discovers the documented views, inspects their schema,
and runs read-only SQL against the warehouse. Requests, answers and
container health are recorded in MongoDB (Cosmos DB) or SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				pterm.DisableStyling()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./insightshq.yaml)")
	cmd.PersistentFlags().BoolVar(&devMode, "dev", false, "development mode (debug logging)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().String("log-format", "", "log format: text or json")
	viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))

	cmd.AddCommand(newProcessCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newHealthcheckCmd())
	cmd.AddCommand(newHealthLogsCmd())
	cmd.AddCommand(newPurgeCmd())
	cmd.AddCommand(newCatalogCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

// loadConfig reads the optional YAML file, layers the environment on top
// and checks that everything needs requires is present.
func loadConfig(needs config.Needs) (*config.Config, error) {
	v := viper.GetViper()
	if cfgFile != "" {
		if err := config.ReadConfigFile(v, cfgFile); err != nil {
			return nil, err
		}
	} else if path := findConfigFile(); path != "" {
		if err := config.ReadConfigFile(v, path); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if devMode {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(needs); err != nil {
		return nil, err
	}
	return cfg, nil
}
