// Package logging provides the logr-fronted, zap-backed logger used by the
// CLI; the verification packages do not log.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log wraps logr.Logger so callers depend on the interface, not zap
// directly.
type Log struct {
	logr.Logger
}

// New builds a logger: colorized development encoding normally, JSON
// production encoding when production is true.
func New(name string, production bool) (*Log, error) {
	var zc zap.Config
	if production {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.DisableCaller = true
	zc.DisableStacktrace = true

	z, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return &Log{Logger: zapr.NewLogger(z).WithName(name)}, nil
}

// NewSimple builds a logger against the global zap logger, for call sites
// that don't carry a *Log through construction.
func NewSimple(name string) *Log {
	return &Log{Logger: zapr.NewLogger(zap.L().Named(name))}
}

// With returns a sub-logger scoped under name.
func (l *Log) With(name string) *Log {
	return &Log{Logger: l.WithName(name)}
}
