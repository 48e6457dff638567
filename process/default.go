package process

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/jabolina/goprocess/errs"
)

var (
	defaultOnce sync.Once
	defaultCtx  *Context
	defaultErr  error
	defaultName string
	defaultMu   sync.Mutex
)

// Init builds the package-level singleton Context, or returns the existing
// one if Default/Init already ran. A later call naming a different
// WithDelegateName than the first is rejected with errs.ErrConfigError
// rather than silently reusing the first context - matching the "implicit
// initialization, explicit identity" design of a process-wide singleton.
func Init(opts ...Option) (*Context, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	defaultMu.Lock()
	if defaultCtx != nil || defaultErr != nil {
		name := cfg.delegate
		if name != "" && name != defaultName {
			defaultMu.Unlock()
			return nil, errors.Wrapf(errs.ErrConfigError, "default context already initialized as %q", defaultName)
		}
		defaultMu.Unlock()
		return defaultCtx, defaultErr
	}
	defaultMu.Unlock()

	defaultOnce.Do(func() {
		defaultCtx, defaultErr = New(opts...)
		defaultMu.Lock()
		defaultName = cfg.delegate
		defaultMu.Unlock()
		if defaultErr == nil {
			defaultCtx.Start()
		}
	})
	return defaultCtx, defaultErr
}

// Default returns the package-level singleton, initializing it with no
// options on first use.
func Default() (*Context, error) {
	return Init()
}
