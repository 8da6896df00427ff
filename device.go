package loramac

import (
	"sync"
	"time"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/loraedge/loramac/band"
	"github.com/loraedge/loramac/internal/dutycycle"
	"github.com/loraedge/loramac/internal/maccommand"
	"github.com/loraedge/loramac/internal/session"
)

// DeviceIdentity is the provisioning-time identity of the device.
type DeviceIdentity struct {
	DevEUI  lorawan.EUI64
	JoinEUI lorawan.EUI64

	// AppKey is the 1.0.4 root key. NwkKey may be left zero, in which
	// case it mirrors AppKey (1.0 compatibility).
	AppKey lorawan.AES128Key
	NwkKey lorawan.AES128Key
}

// Config configures a Device. Radio, Timer, RNG and Storage are mandatory.
type Config struct {
	Band      band.Name
	DwellTime lorawan.DwellTime

	Identity DeviceIdentity

	Radio   Radio
	Timer   Timer
	RNG     RNG
	Storage Storage

	// PersistStride coalesces FCntUp persistence: the session is written
	// every PersistStride uplinks. 0 means every uplink.
	PersistStride uint32

	// PrivateNetwork selects the private sync word instead of 0x34.
	PrivateNetwork bool

	// BatteryLevel reports the battery charge in [0, 1] for DevStatusAns;
	// ok false (or a nil func) reports "unknown".
	BatteryLevel func() (level float64, ok bool)

	Events Events
}

// Device is the Class A MAC engine. It owns the radio exclusively; MAC
// operations are strictly sequential and a second operation started while
// one is outstanding fails with ErrBusy.
type Device struct {
	cfg  Config
	band band.Band
	plan *band.ChannelPlan

	ledger     *dutycycle.Ledger
	joinBudget *dutycycle.JoinBudget
	store      *session.Store
	queue      *maccommand.Queue

	mu sync.Mutex

	identity session.DeviceIdentity
	sess     *session.Session

	devNonce     uint16
	devNonceUsed bool

	adrAckCnt   int
	ackPending  bool
	lastRX      *RXQuality
	joinAttempt int
	nextJoinTry time.Time

	state State
}

// RXQuality reports the signal quality of a received downlink.
type RXQuality struct {
	RSSI int
	SNR  float64
}

// SessionSummary describes the established session.
type SessionSummary struct {
	DevAddr lorawan.DevAddr
	FCntUp  uint32
	DR      int
}

// New creates a Device for the given configuration and restores any
// persisted session state.
func New(cfg Config) (*Device, error) {
	if cfg.Radio == nil || cfg.Timer == nil || cfg.RNG == nil || cfg.Storage == nil {
		return nil, errors.New("loramac: Radio, Timer, RNG and Storage are required")
	}

	b, err := band.GetConfig(cfg.Band, cfg.DwellTime)
	if err != nil {
		return nil, err
	}

	id := session.DeviceIdentity{
		DevEUI:  cfg.Identity.DevEUI,
		JoinEUI: cfg.Identity.JoinEUI,
		AppKey:  cfg.Identity.AppKey,
		NwkKey:  cfg.Identity.NwkKey,
	}
	if id.NwkKey == (lorawan.AES128Key{}) {
		id.NwkKey = id.AppKey
	}

	d := &Device{
		cfg:        cfg,
		band:       b,
		plan:       band.NewChannelPlan(b),
		ledger:     dutycycle.NewLedger(b),
		joinBudget: dutycycle.NewJoinBudget(),
		store:      session.NewStore(cfg.Storage, cfg.PersistStride),
		queue:      &maccommand.Queue{},
		identity:   id,
		state:      StateUnjoined,
	}

	if nonce, ok, err := d.store.LoadDevNonce(); err != nil {
		return nil, errors.Wrap(err, "load devnonce error")
	} else if ok {
		d.devNonce = nonce
		d.devNonceUsed = true
	}

	sess, err := d.store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load session error")
	}
	if sess != nil {
		d.sess = sess
		if len(sess.Channels) > 0 {
			d.plan.Restore(sess.Channels)
		}
		d.state = StateIdle
		log.WithFields(log.Fields{
			"dev_eui":  id.DevEUI,
			"dev_addr": sess.DevAddr,
			"fcnt_up":  sess.FCntUp,
		}).Info("device: session restored")
	}

	return d, nil
}

// State returns the engine state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Joined returns true when a session is established.
func (d *Device) Joined() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess != nil
}

// Session returns a summary of the active session.
func (d *Device) Session() (SessionSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess == nil {
		return SessionSummary{}, ErrNotJoined
	}
	return SessionSummary{
		DevAddr: d.sess.DevAddr,
		FCntUp:  d.sess.FCntUp,
		DR:      d.sess.DR,
	}, nil
}

// ProvisionABP installs a personalized session directly, bypassing the
// join procedure. Intended for development use.
func (d *Device) ProvisionABP(devAddr lorawan.DevAddr, nwkSKey, appSKey lorawan.AES128Key) error {
	if !d.mu.TryLock() {
		return ErrBusy
	}
	defer d.mu.Unlock()

	sess := session.NewSession(d.band)
	sess.DevAddr = devAddr
	sess.NwkSKey = nwkSKey
	sess.AppSKey = appSKey
	sess.ADR = true
	sess.SkipFCntCheck = true
	sess.Channels = d.plan.Snapshot()

	if err := d.store.Persist(sess, true); err != nil {
		return errors.Wrap(ErrPersistence, err.Error())
	}
	d.sess = &sess
	d.setState(StateIdle)

	log.WithFields(log.Fields{
		"dev_addr": devAddr,
	}).Info("device: abp session installed")
	return nil
}

// Reset drops the session and returns the device to the unjoined state.
// The DevNonce counter is preserved.
func (d *Device) Reset() error {
	if !d.mu.TryLock() {
		return ErrBusy
	}
	defer d.mu.Unlock()

	d.sess = nil
	d.queue = &maccommand.Queue{}
	d.adrAckCnt = 0
	d.ackPending = false
	d.plan = band.NewChannelPlan(d.band)
	d.setState(StateUnjoined)
	return errors.Wrap(d.store.Clear(), "clear session error")
}

// RequestLinkCheck queues a LinkCheckReq on the next uplink. The answer is
// surfaced through Events.LinkCheck.
func (d *Device) RequestLinkCheck() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.Add(maccommand.RequestLinkCheck())
}

// RequestDeviceTime queues a DeviceTimeReq on the next uplink. The answer
// is surfaced through Events.DeviceTime.
func (d *Device) RequestDeviceTime() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.Add(maccommand.RequestDeviceTime())
}

func (d *Device) setState(s State) {
	if d.state == s {
		return
	}
	d.state = s
	if d.cfg.Events.StateChanged != nil {
		d.cfg.Events.StateChanged(s)
	}
}

func (d *Device) macContext() *maccommand.Context {
	ctx := &maccommand.Context{
		Session:      d.sess,
		Plan:         d.plan,
		Band:         d.band,
		Ledger:       d.ledger,
		BatteryLevel: d.cfg.BatteryLevel,
		OnLinkCheck:  d.cfg.Events.LinkCheck,
		OnDeviceTime: d.cfg.Events.DeviceTime,
	}
	if d.lastRX != nil {
		ctx.RXSNR = d.lastRX.SNR
	}
	return ctx
}
