package phasegate

import (
	"go.uber.org/zap"

	"github.com/ppiankov/phasegate/internal/taskstore"
)

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	workflowPath  string
	auditLogPath  string
	signingSecret []byte
	store         taskstore.Store
	logger        *zap.Logger
}

// WithWorkflow sets the path to a workflow YAML file. Empty uses the
// built-in default workflow.
func WithWorkflow(path string) Option {
	return func(c *clientConfig) { c.workflowPath = path }
}

// WithAuditLog sets the path to the audit log JSONL file.
func WithAuditLog(path string) Option {
	return func(c *clientConfig) { c.auditLogPath = path }
}

// WithSigningSecret overrides the secret reference declared in the
// workflow file.
func WithSigningSecret(key []byte) Option {
	return func(c *clientConfig) { c.signingSecret = append([]byte(nil), key...) }
}

// WithStore sets the task store backend. Defaults to in-memory.
func WithStore(st taskstore.Store) Option {
	return func(c *clientConfig) { c.store = st }
}

// WithLogger sets the structured logger for engine events.
func WithLogger(lg *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = lg }
}
