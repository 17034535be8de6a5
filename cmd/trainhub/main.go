package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MarcoPoloResearchLab/trainhub/internal/client"
	"github.com/MarcoPoloResearchLab/trainhub/internal/config"
	"github.com/MarcoPoloResearchLab/trainhub/internal/logging"
	"github.com/MarcoPoloResearchLab/trainhub/internal/session"
	"github.com/MarcoPoloResearchLab/trainhub/internal/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

// environment holds everything a command needs once configuration is loaded.
type environment struct {
	config  config.ClientConfig
	logger  *zap.Logger
	session *session.Session
	api     *client.API
	auth    *client.Auth
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
		os.Exit(1)
	}
}

// describe renders err for the terminal. Local failures such as a bad flag keep their own text.
func describe(err error) string {
	if errors.Is(err, client.ErrSignedOut) {
		return "not signed in, run: trainhub login <email> <password>"
	}
	message := transport.UserMessage(err)
	if message == transport.MessageUnexpected {
		return err.Error()
	}
	return message
}

func newRootCommand() *cobra.Command {
	env := &environment{}
	rootCmd := &cobra.Command{
		Use:           "trainhub",
		Short:         "TrainHub inventory and training client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			return env.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if env.logger != nil {
				_ = env.logger.Sync()
			}
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newSignupCommand(env),
		newLoginCommand(env),
		newLogoutCommand(env),
		newWhoamiCommand(env),
		newInventoryCommand(env),
		newTrainingCommand(env),
		newBinCommand(env),
		newBarcodeCommand(env),
		newUploadCommand(env),
		newWatchCommand(env),
		newBrowseCommand(env),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyClientDefaults(viper.GetViper())
	defaults := viper.New()
	config.ApplyClientDefaults(defaults)
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("server", defaults.GetString("server.url"), "TrainHub API base URL")
	cmd.PersistentFlags().String("session-path", defaults.GetString("session.path"), "File holding the signed-in session")
	cmd.PersistentFlags().Int("timeout-seconds", defaults.GetInt("client.timeout_seconds"), "Request timeout in seconds")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "server.url", "server")
	bindFlag(cmd, "session.path", "session-path")
	bindFlag(cmd, "client.timeout_seconds", "timeout-seconds")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func (e *environment) load() error {
	cfg, err := config.LoadClient(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	storage, err := session.NewFileStorage(cfg.SessionPath)
	if err != nil {
		return err
	}
	current := session.New(session.Config{Storage: storage, Logger: logger})
	tr, err := transport.New(transport.Config{
		BaseURL: cfg.ServerURL,
		Timeout: cfg.Timeout,
		Tokens:  current.Token,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	api := client.NewAPI(tr)

	e.config = cfg
	e.logger = logger
	e.session = current
	e.api = api
	e.auth = client.NewAuth(api, current, logger)
	return nil
}

// principal returns the signed-in principal or client.ErrSignedOut.
func (e *environment) principal() (session.Principal, error) {
	principal, ok := e.auth.Current()
	if !ok {
		return session.Principal{}, client.ErrSignedOut
	}
	return principal, nil
}

func (e *environment) inventory() (*client.InventoryStore, error) {
	principal, err := e.principal()
	if err != nil {
		return nil, err
	}
	return client.NewInventoryStore(e.api, principal.Email, e.logger)
}

func (e *environment) trainings() (*client.TrainingStore, error) {
	principal, err := e.principal()
	if err != nil {
		return nil, err
	}
	return client.NewTrainingStore(e.api, principal.Email, e.logger)
}
