package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/entrhq/episodic/pkg/analyst"
	"github.com/entrhq/episodic/pkg/config"
	"github.com/entrhq/episodic/pkg/digest"
	"github.com/entrhq/episodic/pkg/llm/tokenizer"
	"github.com/entrhq/episodic/pkg/lock"
	"github.com/entrhq/episodic/pkg/logging"
	"github.com/entrhq/episodic/pkg/metrics"
	"github.com/entrhq/episodic/pkg/rollup"
	"github.com/entrhq/episodic/pkg/state"
)

// app carries the persistent flags and what setup derives from them.
type app struct {
	configPath string
	root       string
	verbosity  string

	cfg config.Config
	log *logging.Logger
}

// Close releases the session log.
func (a *app) Close() {
	if a.log != nil {
		_ = a.log.Close()
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "episodic",
		Short: "Hierarchical rollups of a record corpus",
		Long: "episodic rolls raw records up into weekly digests, weeklies into monthlies,\n" +
			"and so on up the level chain, firing a level early once enough items are\n" +
			"pending or when its periodic window has elapsed.",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup(cmd) },
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "config file (default <root>/"+config.FileName+")")
	f.StringVar(&a.root, "root", ".", "corpus root directory")
	f.StringVar(&a.verbosity, "verbosity", "", "log verbosity: quiet, normal, verbose or debug (overrides the config)")

	cmd.AddCommand(
		newInitCmd(a),
		newCheckCmd(a),
		newRunCmd(a),
		newShadowCmd(a),
		newRollupCmd(a),
		newFinalizeCmd(a),
		newMigrateCmd(a),
		newStatusCmd(a),
	)
	return cmd
}

// setup loads the config and opens the session log.
func (a *app) setup(cmd *cobra.Command) error {
	path, optional := a.configPath, cmd.Name() == "init"
	if path == "" {
		path, optional = filepath.Join(a.root, config.FileName), true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return err
	}
	if cfg.Root == "" || cmd.Flags().Changed("root") {
		cfg.Root = a.root
	}
	if a.verbosity != "" {
		cfg.Logging.Verbosity = a.verbosity
	}
	level, err := cfg.Verbosity()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logging.Configure(cfg.LogDir(), level)
	logger, err := logging.NewLogger("episodic")
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
	a.log = logger
	a.log.Debugf("command %s, root %s, config %s", cmd.CommandPath(), cfg.Root, path)
	return nil
}

// engineFlags are shared by the commands that may call the analyst.
type engineFlags struct {
	analyst   string
	overwrite string
	provider  config.ProviderFlags
}

func (ef *engineFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&ef.analyst, "analyst", "", "analyst: placeholder or llm (default from config)")
	f.StringVar(&ef.overwrite, "overwrite", "", "when the digest exists: abort, overwrite or skip (default from config)")
	f.StringVar(&ef.provider.Model, "model", "", "LLM model (llm analyst)")
	f.StringVar(&ef.provider.BaseURL, "base-url", "", "LLM API base URL (llm analyst)")
	f.StringVar(&ef.provider.APIKey, "api-key", "", "LLM API key (llm analyst)")
}

// session is an open engine plus everything that must be released with it.
type session struct {
	engine   *rollup.Engine
	store    state.Store
	metrics  *metrics.Recorder
	lock     *lock.Lock
	log      *logging.Logger
	textfile string
}

// open wires an engine. Mutating sessions hold the corpus lock.
func (a *app) open(ctx context.Context, mutate bool, ef *engineFlags) (*session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &session{log: a.log, textfile: a.cfg.MetricsPath()}
	if mutate {
		l, err := lock.Acquire(filepath.Join(a.cfg.Root, lock.FileName))
		if err != nil {
			return nil, err
		}
		s.lock = l
	}

	registry, err := a.cfg.Registry()
	if err != nil {
		s.Close()
		return nil, err
	}
	store, err := a.cfg.OpenStore(a.log.Named("state"))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.store = store

	var an analyst.Analyst = analyst.Placeholder{}
	if ef != nil {
		an, err = a.analyst(ef)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	s.metrics = metrics.NewRecorder()
	s.engine, err = rollup.New(rollup.Deps{
		Registry: registry,
		Layout:   a.cfg.Layout(),
		Store:    store,
		Analyst:  an,
		Metrics:  s.metrics,
		Logger:   a.log,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (a *app) analyst(ef *engineFlags) (analyst.Analyst, error) {
	kind := ef.analyst
	if kind == "" {
		kind = a.cfg.Analyst.Kind
	}
	switch kind {
	case config.AnalystPlaceholder:
		return analyst.Placeholder{}, nil
	case config.AnalystLLM:
		provider, err := a.cfg.BuildProvider(ef.provider)
		if err != nil {
			return nil, err
		}
		tok, err := tokenizer.New()
		if err != nil {
			a.log.Warnf("tokenizer unavailable, estimating token counts: %v", err)
		}
		return analyst.NewLLM(provider,
			analyst.WithTokenizer(tok),
			analyst.WithMaxInputTokens(a.cfg.Analyst.MaxInputTokens),
			analyst.WithLogger(a.log.Named("analyst")),
		), nil
	default:
		return nil, fmt.Errorf("unknown analyst %q (must be %s or %s)", kind, config.AnalystPlaceholder, config.AnalystLLM)
	}
}

// policy resolves --overwrite over the configured policy.
func (a *app) policy(ef *engineFlags) (digest.OverwritePolicy, error) {
	if ef.overwrite == "" {
		return a.cfg.Policy()
	}
	return digest.ParseOverwritePolicy(ef.overwrite)
}

// Close exports metrics and releases the store and the lock.
func (s *session) Close() {
	if s.textfile != "" && s.metrics != nil {
		if err := os.MkdirAll(filepath.Dir(s.textfile), 0o750); err == nil {
			if err := s.metrics.WriteTextfile(s.textfile); err != nil {
				s.log.Warnf("metrics export to %s failed: %v", s.textfile, err)
			}
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warnf("closing state store: %v", err)
		}
	}
	if err := s.lock.Release(); err != nil {
		s.log.Warnf("releasing lock: %v", err)
	}
}
