package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"harvest/internal/client"
	"harvest/internal/config"
)

type commandContext struct {
	addrFlag   *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addrFlag, configFlag *string) *commandContext {
	return &commandContext{
		addrFlag:   addrFlag,
		configFlag: configFlag,
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

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// apiAddr resolves the daemon base URL from --addr or the configured bind
// address. A bare host:port is promoted to http://.
func (c *commandContext) apiAddr() (string, error) {
	addr := ""
	if c.addrFlag != nil {
		addr = strings.TrimSpace(*c.addrFlag)
	}
	if addr == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return "", err
		}
		addr = strings.TrimSpace(cfg.Paths.APIBind)
	}
	if addr == "" {
		return "", fmt.Errorf("no daemon address: set paths.api_bind in the config or pass --addr")
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		if strings.HasPrefix(addr, ":") {
			addr = "127.0.0.1" + addr
		}
		addr = "http://" + addr
	}
	return addr, nil
}

func (c *commandContext) apiClient() (*client.Client, error) {
	addr, err := c.apiAddr()
	if err != nil {
		return nil, err
	}
	token := ""
	if cfg, cfgErr := c.ensureConfig(); cfgErr == nil && cfg != nil {
		token = cfg.Paths.APIToken
	}
	return client.New(addr, token), nil
}

func (c *commandContext) withClient(fn func(*client.Client) error) error {
	cl, err := c.apiClient()
	if err != nil {
		return err
	}
	return fn(cl)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
