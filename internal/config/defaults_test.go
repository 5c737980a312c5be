package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultServerMode, cfg.Server.Mode)
	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
	assert.Equal(t, DefaultNeo4jURI, cfg.Neo4j.URI)
	assert.Equal(t, DefaultAnnotationURL, cfg.Annotation.ServerURL)
	assert.Equal(t, DefaultAnnotationTimeout, cfg.Annotation.Timeout)
	assert.Equal(t, DefaultPipelineMode, cfg.Pipeline.Mode)
	assert.Equal(t, DefaultMaxChunkChars, cfg.Pipeline.MaxChunkChars)
	assert.Equal(t, DefaultPipelineParallelism, cfg.Pipeline.Parallelism)
	assert.Equal(t, DefaultEntityContextChars, cfg.Pipeline.EntityContextChars)
	assert.Equal(t, DefaultRelationContextChars, cfg.Pipeline.RelationContextChars)
	assert.Equal(t, DefaultMetricsNamespace, cfg.Metrics.Namespace)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Pipeline.MaxChunkChars = 512
	cfg.Annotation.Timeout = 5 * time.Second
	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 512, cfg.Pipeline.MaxChunkChars)
	assert.Equal(t, 5*time.Second, cfg.Annotation.Timeout)
}

func TestApplyDefaults_NilConfigDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
