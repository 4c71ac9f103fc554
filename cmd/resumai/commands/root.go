// Package commands implements the resumai operator CLI: local extraction and
// evaluation, and the evaluation lifecycle against the deployed bucket.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/documentevaluator/internal/config"
	"github.com/Lllllllleong/documentevaluator/internal/extract"
	"github.com/Lllllllleong/documentevaluator/internal/gcp"
	"github.com/Lllllllleong/documentevaluator/internal/llm"
	"github.com/Lllllllleong/documentevaluator/internal/logging"
	"github.com/Lllllllleong/documentevaluator/internal/secrets"
	"github.com/Lllllllleong/documentevaluator/internal/services"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	cfgFile  string
	envFile  string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger

	// overridable in tests
	extractor services.Extractor
	newClient func(ctx context.Context) (llm.Client, error)
	lifecycle func(ctx context.Context) (lifecycle, func() error, error)
	evaluator func(ctx context.Context) (batchProcessor, error)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "resumai",
		Short: "Evaluate resumes and manage stored evaluations",
		Long: `resumai runs the evaluation pipeline locally against a file, summarises call
transcripts, and manages evaluations held in the configured bucket.

Settings come from --config, a .env file and the environment, in increasing order
of precedence.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file path")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")
	root.PersistentFlags().String("provider", "", "inference provider: vertex, gemini or openai")
	root.PersistentFlags().String("model", "", "model name for the provider")
	root.PersistentFlags().Int("max-words", 0, "word budget of one prompt page")

	root.AddCommand(
		newExtractCmd(a),
		newEvaluateCmd(a),
		newSummarizeCmd(a),
		newProcessCmd(a),
		newUploadCmd(a),
		newFetchCmd(a),
		newDownloadCmd(a),
		newDeleteCmd(a),
		newListCmd(a),
	)
	return root
}

// flagKeys maps configuration keys to the persistent flags that override them.
var flagKeys = map[string]string{
	"llm.provider":       "provider",
	"llm.model":          "model",
	"pipeline.max-words": "max-words",
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	v := viper.New()
	for key, name := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	cfg, err := config.LoadWith(v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	logger, err := logging.NewWithWriter(cmd.ErrOrStderr(), "text", level)
	if err != nil {
		return err
	}
	a.logger = logger

	if a.extractor == nil {
		a.extractor = extract.New(logger)
	}
	if a.newClient == nil {
		a.newClient = a.connectLLM
	}
	if a.lifecycle == nil {
		a.lifecycle = a.connectRuntime
	}
	if a.evaluator == nil {
		a.evaluator = func(ctx context.Context) (batchProcessor, error) {
			return services.NewEvaluatorFromConfig(ctx, a.cfg, a.logger)
		}
	}
	return nil
}

// connectLLM builds a client the way the trigger does, reaching Secret Manager
// only when the credential is configured there.
func (a *app) connectLLM(ctx context.Context) (llm.Client, error) {
	var accessor secrets.Accessor
	if a.cfg.LLM.APIKeySecret != "" {
		sm, err := gcp.NewSecretManager(ctx, a.cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		defer sm.Close()
		accessor = sm
	}
	return services.NewLLM(ctx, a.cfg, secrets.NewResolver(accessor))
}

func (a *app) connectRuntime(ctx context.Context) (lifecycle, func() error, error) {
	rt, err := services.NewRuntime(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return rt.Manager, rt.Close, nil
}
