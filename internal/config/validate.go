package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateMachines(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StoreDir) == "" {
		return errors.New("paths.store_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateSources() error {
	for name, src := range c.Sources {
		if !src.Enabled {
			continue
		}
		if strings.TrimSpace(src.BaseURL) == "" {
			return fmt.Errorf("sources.%s.base_url must be set when enabled", name)
		}
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	if c.Embedding.Dimension < 0 {
		return errors.New("embedding.dimension must not be negative")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	p := c.Processing
	if p.ChunkMaxSize <= 0 {
		return errors.New("processing.chunk_max_size must be positive")
	}
	if p.ChunkTargetSize > p.ChunkMaxSize {
		return errors.New("processing.chunk_target_size must not exceed chunk_max_size")
	}
	if p.ChunkMinSize > p.ChunkTargetSize {
		return errors.New("processing.chunk_min_size must not exceed chunk_target_size")
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkMaxSize {
		return errors.New("processing.chunk_overlap must be smaller than chunk_max_size")
	}
	return nil
}

func (c *Config) validateMachines() error {
	seen := make(map[string]struct{}, len(c.Machines))
	for _, machine := range c.Machines {
		if machine.Name == "" {
			return errors.New("machines entries require a name")
		}
		if machine.URL == "" {
			return fmt.Errorf("machines.%s requires a url", machine.Name)
		}
		if _, dup := seen[machine.Name]; dup {
			return fmt.Errorf("machines.%s is defined twice", machine.Name)
		}
		seen[machine.Name] = struct{}{}
	}
	return nil
}
