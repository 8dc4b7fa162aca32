package factory

import (
	"errors"
	"fmt"
	"sync"

	"crcmarket/core/events"
	"crcmarket/core/types"
	"crcmarket/crypto"
	"crcmarket/native/cycle"
	"crcmarket/native/offer"
	"crcmarket/native/payments"
	"crcmarket/native/token"
	"crcmarket/native/trust"
	"crcmarket/native/weights"
)

var (
	errConfigAddress   = errors.New("factory: factory address required")
	errConfigToken     = errors.New("factory: token required")
	errConfigTransport = errors.New("factory: transport required")
	errConfigReceivers = errors.New("factory: receiver registry required")
	errConfigState     = errors.New("factory: state required")
	errForeignLedger   = errors.New("factory: weight ledger was not created by this factory")
	errUnknownCreator  = errors.New("factory: offer creator is not a registered cycle")
	errRegistryNeeded  = errors.New("factory: trust registry required for binary ledgers")
)

// State aggregates the persistence surfaces of every engine the factory
// constructs. The overlapping weight-scope methods of the two strategies
// share one signature, so both embeds resolve to the same implementation.
type State interface {
	offer.State
	cycle.State
	weights.GradedState
	weights.BinaryState
}

// Config wires the factory with the collaborators it hands to new engines.
type Config struct {
	// Address seeds contract-address derivation for created instances.
	Address types.Address
	// Token is the fungible token shared by all offers and cycles.
	Token token.Token
	// Transport delivers CRC payments; Receivers registers the callback
	// endpoints of created contracts on it.
	Transport payments.Transport
	Receivers payments.ReceiverRegistry
	// Registry backs binary-ledger delegates and cycle trust orgs. It may
	// be nil when only graded ledgers are used.
	Registry *trust.Registry
	// State is the shared persistence backend.
	State State
}

type cycleEntry struct {
	engine *cycle.Engine
	ledger weights.Ledger
}

// Factory constructs weight ledgers, cycles and offers, and keeps the
// provenance registry that lets the rest of the system verify a supplied
// instance was actually produced here. The created-by-cycle flag each new
// offer receives is resolved by looking the creator up in the cycle
// registry and passed as an explicit constructor parameter.
type Factory struct {
	cfg     Config
	emitter events.Emitter
	nowFn   func() int64

	mu      sync.Mutex
	nonce   uint64
	ledgers map[weights.Ledger]struct{}
	cycles  map[types.Address]*cycleEntry
	offers  map[types.Address]*offer.Engine
}

// New validates the wiring and returns a factory.
func New(cfg Config) (*Factory, error) {
	if cfg.Address.IsZero() {
		return nil, errConfigAddress
	}
	if cfg.Token == nil {
		return nil, errConfigToken
	}
	if cfg.Transport == nil {
		return nil, errConfigTransport
	}
	if cfg.Receivers == nil {
		return nil, errConfigReceivers
	}
	if cfg.State == nil {
		return nil, errConfigState
	}
	return &Factory{
		cfg:     cfg,
		emitter: events.NoopEmitter{},
		ledgers: make(map[weights.Ledger]struct{}),
		cycles:  make(map[types.Address]*cycleEntry),
		offers:  make(map[types.Address]*offer.Engine),
	}, nil
}

// SetEmitter configures the emitter handed to every engine created from
// here on. Passing nil resets it to a no-op.
func (f *Factory) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		f.emitter = events.NoopEmitter{}
		return
	}
	f.emitter = emitter
}

// SetNowFunc sets the time source handed to every engine created from here
// on. Primarily for deterministic tests.
func (f *Factory) SetNowFunc(now func() int64) { f.nowFn = now }

func (f *Factory) nextAddress() types.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce++
	return crypto.DeriveContractAddress(f.cfg.Address, f.nonce)
}

// CreateGradedLedger constructs a graded weight ledger administered by
// admin and records its provenance.
func (f *Factory) CreateGradedLedger(admin types.Address) (*weights.Graded, error) {
	ledger, err := weights.NewGraded(admin, f.cfg.State)
	if err != nil {
		return nil, err
	}
	ledger.SetEmitter(f.emitter)
	f.mu.Lock()
	f.ledgers[ledger] = struct{}{}
	f.mu.Unlock()
	return ledger, nil
}

// CreateBinaryLedger constructs a binary weight ledger whose per-scope
// delegates are exclusively-owned organizations in the trust registry.
func (f *Factory) CreateBinaryLedger(admin types.Address, namePrefix string) (*weights.Binary, error) {
	if f.cfg.Registry == nil {
		return nil, errRegistryNeeded
	}
	registry := f.cfg.Registry
	backendFor := func(scope types.Address) (weights.EligibilityBackend, error) {
		return trust.NewScopeBackend(registry, scope, fmt.Sprintf("%s-%s", namePrefix, scope.Hex()))
	}
	ledger, err := weights.NewBinary(admin, f.cfg.State, backendFor)
	if err != nil {
		return nil, err
	}
	ledger.SetEmitter(f.emitter)
	f.mu.Lock()
	f.ledgers[ledger] = struct{}{}
	f.mu.Unlock()
	return ledger, nil
}

// CycleParams carries the admin-chosen configuration for a new cycle.
type CycleParams struct {
	Admin      types.Address
	Start      int64
	Duration   int64
	SoftLock   bool
	Ledger     weights.Ledger
	NamePrefix string
}

// CreateCycle constructs a cycle around a ledger previously produced by
// this factory. Supplying a foreign ledger is rejected outright.
func (f *Factory) CreateCycle(params CycleParams) (*cycle.Engine, error) {
	if !f.IsLedger(params.Ledger) {
		return nil, errForeignLedger
	}
	address := f.nextAddress()
	var trustOrg types.Address
	if f.cfg.Registry != nil {
		org, err := f.cfg.Registry.RegisterOrganization(address, fmt.Sprintf("%s-currencies", params.NamePrefix), [32]byte{})
		if err != nil {
			return nil, err
		}
		trustOrg = org
	}
	engine, err := cycle.New(cycle.Config{
		Address:     address,
		Admin:       params.Admin,
		Token:       f.cfg.Token,
		Start:       params.Start,
		Duration:    params.Duration,
		SoftLock:    params.SoftLock,
		Ledger:      params.Ledger,
		NamePrefix:  params.NamePrefix,
		Transport:   f.cfg.Transport,
		Registry:    f.cfg.Registry,
		TrustOrg:    trustOrg,
		Constructor: f,
	}, f.cfg.State)
	if err != nil {
		return nil, err
	}
	engine.SetEmitter(f.emitter)
	if f.nowFn != nil {
		engine.SetNowFunc(f.nowFn)
	}
	f.cfg.Receivers.RegisterReceiver(address, engine)
	f.mu.Lock()
	f.cycles[address] = &cycleEntry{engine: engine, ledger: params.Ledger}
	f.mu.Unlock()
	return engine, nil
}

// CreateOffer implements cycle.OfferConstructor. Only registered cycles may
// call it; the new offer is owned by the calling cycle and flagged as
// cycle-spawned.
func (f *Factory) CreateOffer(caller types.Address, spec cycle.OfferSpec) (*offer.Engine, error) {
	f.mu.Lock()
	entry, ok := f.cycles[caller]
	f.mu.Unlock()
	if !ok {
		return nil, errUnknownCreator
	}
	return f.buildOffer(caller, entry.ledger, spec, true)
}

// CreateStandaloneOffer constructs an offer outside any cycle. The owner
// funds it directly and claim payers are taken at face value.
func (f *Factory) CreateStandaloneOffer(owner types.Address, ledger weights.Ledger, spec cycle.OfferSpec) (*offer.Engine, error) {
	if !f.IsLedger(ledger) {
		return nil, errForeignLedger
	}
	return f.buildOffer(owner, ledger, spec, false)
}

func (f *Factory) buildOffer(owner types.Address, ledger weights.Ledger, spec cycle.OfferSpec, createdByCycle bool) (*offer.Engine, error) {
	address := f.nextAddress()
	engine, err := offer.New(offer.Config{
		Address:        address,
		Owner:          owner,
		Token:          f.cfg.Token,
		Price:          spec.Price,
		BaseLimit:      spec.BaseLimit,
		WindowStart:    spec.WindowStart,
		WindowEnd:      spec.WindowEnd,
		Ledger:         ledger,
		Transport:      f.cfg.Transport,
		Accepted:       spec.Accepted,
		CreatedByCycle: createdByCycle,
	}, f.cfg.State)
	if err != nil {
		return nil, err
	}
	engine.SetEmitter(f.emitter)
	if f.nowFn != nil {
		engine.SetNowFunc(f.nowFn)
	}
	f.cfg.Receivers.RegisterReceiver(address, engine)
	f.mu.Lock()
	f.offers[address] = engine
	f.mu.Unlock()
	return engine, nil
}

// IsLedger reports whether the ledger was produced by this factory.
func (f *Factory) IsLedger(ledger weights.Ledger) bool {
	if ledger == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ledgers[ledger]
	return ok
}

// IsCycle reports whether the address belongs to a cycle from this factory.
func (f *Factory) IsCycle(addr types.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.cycles[addr]
	return ok
}

// IsOffer reports whether the address belongs to an offer from this
// factory.
func (f *Factory) IsOffer(addr types.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.offers[addr]
	return ok
}

// OfferByAddress resolves a created offer engine.
func (f *Factory) OfferByAddress(addr types.Address) (*offer.Engine, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	engine, ok := f.offers[addr]
	return engine, ok
}

// CycleByAddress resolves a created cycle engine.
func (f *Factory) CycleByAddress(addr types.Address) (*cycle.Engine, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cycles[addr]
	if !ok {
		return nil, false
	}
	return entry.engine, true
}
