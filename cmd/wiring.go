// -- cmd/wiring.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/accessibility"
	"github.com/xkilldash9x/deskpilot/internal/agent"
	"github.com/xkilldash9x/deskpilot/internal/apps"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/filestore"
	"github.com/xkilldash9x/deskpilot/internal/input"
	"github.com/xkilldash9x/deskpilot/internal/llmclient"
	"github.com/xkilldash9x/deskpilot/internal/overlay"
	"github.com/xkilldash9x/deskpilot/internal/preferences"
	"github.com/xkilldash9x/deskpilot/internal/store"
	"github.com/xkilldash9x/deskpilot/internal/terminal"
)

// errNoPlatform is returned when no accessibility backend can be built.
var errNoPlatform = errors.New("perception.snapshot_path is required: set it or pass --snapshot")

// newLLMClient builds the tiered model client. Replaced in tests.
var newLLMClient = func(ctx context.Context, logger *zap.Logger, cfg config.LLMConfig) (schemas.LLMClient, error) {
	apiKey, ok := config.LookupAPIKey(cfg, config.KeyGemini)
	if !ok {
		return nil, fmt.Errorf("no Gemini API key found in DESKPILOT_GEMINI_API_KEY or %s", cfg.APIKeyEnv)
	}
	return llmclient.NewClients(ctx, logger, cfg, apiKey)
}

// newPlatform builds the accessibility backend. Only recorded snapshots are
// supported.
func newPlatform(cfg config.PerceptionConfig) (*accessibility.SnapshotPlatform, error) {
	if cfg.SnapshotPath == "" {
		return nil, errNoPlatform
	}
	return accessibility.NewFileSnapshotPlatform(cfg.SnapshotPath), nil
}

// components holds everything one command invocation wires together.
type components struct {
	logger   *zap.Logger
	cfg      *config.Config
	platform *accessibility.SnapshotPlatform
	reader   *accessibility.Reader
	// voiceReader serves the supervisor. Each reader expires only its own
	// analyses, so voice turns never invalidate the agent's index map.
	voiceReader *accessibility.Reader
	console     *terminal.Console
	overlay     *overlay.LogOverlay
	prefs       *preferences.Store
	journal     *store.Journal
	llm         schemas.LLMClient
	agent       *agent.Agent

	// background runs the console pump and the preferences watcher.
	background *errgroup.Group
	cancel     context.CancelFunc
}

// buildComponents wires the agent and its collaborators. The console reads
// in and writes out; it backs the speak and ask actions.
func buildComponents(ctx context.Context, logger *zap.Logger, cfg *config.Config, in io.Reader, out io.Writer) (c *components, err error) {
	c = &components{logger: logger, cfg: cfg}
	defer func() {
		if err != nil {
			c.Shutdown()
		}
	}()

	if c.platform, err = newPlatform(cfg.Perception()); err != nil {
		return nil, err
	}
	agentName := cfg.Agent().Name
	c.reader = accessibility.NewReader(logger, c.platform, cfg.Perception(), agentName)
	c.voiceReader = accessibility.NewReader(logger.Named("voice"), c.platform, cfg.Perception(), agentName)

	files, err := filestore.New(logger, cfg.Files())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file store: %w", err)
	}
	if c.prefs, err = preferences.New(logger, cfg.Preferences()); err != nil {
		return nil, fmt.Errorf("failed to initialize preferences: %w", err)
	}
	if cfg.Journal().Enabled {
		if c.journal, err = store.Open(ctx, logger, cfg.Journal()); err != nil {
			return nil, fmt.Errorf("failed to open run journal: %w", err)
		}
	}
	if c.llm, err = newLLMClient(ctx, logger, cfg.LLM()); err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	c.console = terminal.NewConsole(logger, in, out, agentName)
	c.overlay = overlay.NewLogOverlay(logger)

	deps := agent.Deps{
		Perceiver:   c.reader,
		Decider:     llmclient.NewAgentOutputGenerator(logger, c.llm),
		Input:       input.NewDispatcher(logger, input.NewDryRunExecutor(logger)),
		Files:       files,
		Apps:        apps.NewLauncher(logger, cfg.Apps(), apps.CommandOpener{}),
		Speaker:     terminal.NewSpeaker(c.console),
		Asker:       terminal.NewAsker(c.console),
		Overlay:     c.overlay,
		Preferences: c.prefs,
		Permissions: c.platform,
	}
	// A nil *store.Journal must not become a non-nil interface.
	if c.journal != nil {
		deps.Journal = c.journal
	}
	c.agent = agent.New(logger, cfg.Agent(), deps)

	bgCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.background, bgCtx = errgroup.WithContext(bgCtx)
	c.background.Go(func() error { return c.console.Run(bgCtx) })
	if cfg.Preferences().Enabled && cfg.Preferences().Watch {
		c.background.Go(func() error {
			if err := c.prefs.Watch(bgCtx); err != nil {
				logger.Warn("Preferences watcher stopped", zap.Error(err))
			}
			return nil
		})
	}
	return c, nil
}

// Shutdown stops the agent and background work and releases resources. The
// console pump is not awaited: a read blocked on stdin cannot be interrupted.
func (c *components) Shutdown() {
	if c.agent != nil {
		c.agent.Stop()
		c.agent.Wait()
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			c.logger.Warn("Failed to close LLM client", zap.Error(err))
		}
	}
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			c.logger.Warn("Failed to close run journal", zap.Error(err))
		}
	}
}
