package main

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"subline/internal/audit"
	"subline/internal/authz"
	"subline/internal/config"
	"subline/internal/ingest"
	"subline/internal/lifecycle"
	"subline/internal/logging"
	"subline/internal/storage"
	"subline/internal/topic"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// localServices are the components a CLI command drives directly against the
// topic database.
type localServices struct {
	cfg       *config.Config
	store     *topic.Store
	files     *storage.Store
	recorder  *audit.Recorder
	lifecycle *lifecycle.Service
	ingest    *ingest.Service
}

func (c *commandContext) withServices(fn func(*localServices) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := topic.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	files, err := storage.FromConfig(cfg)
	if err != nil {
		return err
	}
	logger := logging.NewNop()
	recorder := audit.NewRecorder(store, logger, false)
	return fn(&localServices{
		cfg:       cfg,
		store:     store,
		files:     files,
		recorder:  recorder,
		lifecycle: lifecycle.New(cfg, store, recorder, nil, logger),
		ingest:    ingest.New(store, files, nil, cfg.Provider.DefaultModel, logger),
	})
}

// operatorContext attaches the local operator principal. Whoever can open the
// database file is treated as an admin.
func operatorContext(ctx context.Context) context.Context {
	name := strings.TrimSpace(os.Getenv("USER"))
	if name == "" {
		name = authz.System.Name
	}
	return authz.WithPrincipal(ctx, authz.Principal{Name: "cli:" + name, Role: authz.RoleAdmin})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
