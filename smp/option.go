package smp

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/blesm"
	"github.com/rigado/blesm/alg"
)

// EngineOption is implemented by the engine to accept configuration options.
type EngineOption interface {
	SetConfig(blesm.Config) error
	SetStore(blesm.Store) error
	SetIOHandler(IOHandler) error
	SetEventHandler(EventHandler) error
	SetPrimitives(alg.Primitives) error
	SetKeyPair(*alg.KeyPair) error
	SetLogger(blesm.Logger) error
	SetClock(func() time.Time) error
	SetIdentity(irk []byte, addr blesm.Addr) error
}

// An Option is a configuration function, which configures the engine.
type Option func(EngineOption) error

// WithConfig sets the local pairing capabilities.
func WithConfig(cfg blesm.Config) Option {
	return func(opt EngineOption) error {
		return opt.SetConfig(cfg)
	}
}

// WithStore sets the bonding store. The default keeps records in memory.
func WithStore(s blesm.Store) Option {
	return func(opt EngineOption) error {
		return opt.SetStore(s)
	}
}

// WithIOHandler sets the handler asked for passkeys, OOB data and
// numeric comparisons.
func WithIOHandler(h IOHandler) Option {
	return func(opt EngineOption) error {
		return opt.SetIOHandler(h)
	}
}

// WithEventHandler sets the handler told of every procedure outcome.
func WithEventHandler(h EventHandler) Option {
	return func(opt EngineOption) error {
		return opt.SetEventHandler(h)
	}
}

// WithPrimitives replaces the cryptographic primitives.
func WithPrimitives(p alg.Primitives) Option {
	return func(opt EngineOption) error {
		return opt.SetPrimitives(p)
	}
}

// WithKeyPair fixes the P-256 key pair used for Secure Connections instead
// of generating one per procedure.
func WithKeyPair(kp *alg.KeyPair) Option {
	return func(opt EngineOption) error {
		return opt.SetKeyPair(kp)
	}
}

// WithLogger sets the logger. The default is the package logger.
func WithLogger(l blesm.Logger) Option {
	return func(opt EngineOption) error {
		return opt.SetLogger(l)
	}
}

// WithClock overrides time.Now for procedure deadlines.
func WithClock(now func() time.Time) Option {
	return func(opt EngineOption) error {
		return opt.SetClock(now)
	}
}

// WithIdentity sets the IRK and identity address distributed in phase 3.
func WithIdentity(irk []byte, addr blesm.Addr) Option {
	return func(opt EngineOption) error {
		return opt.SetIdentity(irk, addr)
	}
}

// SetConfig validates cfg and makes it the local configuration.
func (e *Engine) SetConfig(cfg blesm.Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "smp config")
	}
	e.cfg = cfg
	return nil
}

// SetStore sets the bonding store.
func (e *Engine) SetStore(s blesm.Store) error {
	if s == nil {
		return errors.Wrap(ErrInvalid, "nil store")
	}
	e.store = s
	return nil
}

// SetIOHandler sets the io handler. nil disables user interaction.
func (e *Engine) SetIOHandler(h IOHandler) error {
	if h == nil {
		h = nopIO{}
	}
	e.io = h
	return nil
}

// SetEventHandler sets the event handler. nil drops events.
func (e *Engine) SetEventHandler(h EventHandler) error {
	if h == nil {
		h = nopEvents{}
	}
	e.events = h
	return nil
}

// SetPrimitives overrides the cryptographic primitives.
func (e *Engine) SetPrimitives(p alg.Primitives) error {
	e.alg = alg.NewSuite(p)
	return nil
}

// SetKeyPair fixes the Secure Connections key pair.
func (e *Engine) SetKeyPair(kp *alg.KeyPair) error {
	if kp == nil || len(kp.Public) != 64 {
		return errors.Wrap(ErrInvalid, "key pair")
	}
	e.keyPair = kp
	return nil
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(l blesm.Logger) error {
	if l == nil {
		return errors.Wrap(ErrInvalid, "nil logger")
	}
	e.log = l.ChildLogger(map[string]interface{}{"mod": "smp"})
	return nil
}

// SetClock overrides the clock used for procedure deadlines.
func (e *Engine) SetClock(now func() time.Time) error {
	if now == nil {
		return errors.Wrap(ErrInvalid, "nil clock")
	}
	e.now = now
	return nil
}

// SetIdentity sets the distributed IRK and identity address.
func (e *Engine) SetIdentity(irk []byte, addr blesm.Addr) error {
	if len(irk) != 16 {
		return errors.Wrapf(ErrInvalid, "irk length %d", len(irk))
	}
	e.irk = append([]byte(nil), irk...)
	e.identity = addr
	return nil
}
