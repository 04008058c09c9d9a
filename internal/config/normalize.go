package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSources()
	c.normalizeBackends()
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.normalizeMachines()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StoreDir, err = expandPath(c.Paths.StoreDir); err != nil {
		return fmt.Errorf("paths.store_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Paths.Hostname = strings.TrimSpace(c.Paths.Hostname)
	return nil
}

func (c *Config) normalizeSources() {
	for name, src := range c.Sources {
		if src.MinRequestIntervalMS <= 0 {
			src.MinRequestIntervalMS = defaultMinRequestIntervalMS
		}
		src.BaseURL = strings.TrimSpace(src.BaseURL)
		if strings.TrimSpace(src.Collection) == "" {
			src.Collection = name
		}
		c.Sources[name] = src
	}
}

func (c *Config) normalizeBackends() {
	if strings.TrimSpace(c.Transcription.Binary) == "" {
		c.Transcription.Binary = defaultTranscriptionBinary
	}
	if strings.TrimSpace(c.Transcription.Model) == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaultTranscriptionTimeout
	}
	c.Embedding.BaseURL = strings.TrimRight(strings.TrimSpace(c.Embedding.BaseURL), "/")
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = defaultEmbeddingBaseURL
	}
	if strings.TrimSpace(c.Embedding.Model) == "" {
		c.Embedding.Model = defaultEmbeddingModel
	}
	if c.Embedding.TimeoutSeconds <= 0 {
		c.Embedding.TimeoutSeconds = defaultEmbeddingTimeout
	}
	if c.Indexing.BatchSize <= 0 {
		c.Indexing.BatchSize = defaultIndexBatchSize
	}
	if c.Indexing.ExtractTimeoutSeconds <= 0 {
		c.Indexing.ExtractTimeoutSeconds = defaultIndexExtractTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.SweepInterval <= 0 {
		c.Workflow.SweepInterval = defaultSweepInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.RetryBudget <= 0 {
		c.Workflow.RetryBudget = defaultRetryBudget
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeMachines() {
	for i, machine := range c.Machines {
		machine.Name = strings.TrimSpace(machine.Name)
		machine.URL = strings.TrimRight(strings.TrimSpace(machine.URL), "/")
		if machine.ProbeTimeoutSeconds <= 0 {
			machine.ProbeTimeoutSeconds = defaultMachineProbeTimeout
		}
		c.Machines[i] = machine
	}
}
