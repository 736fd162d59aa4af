package ncp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zigbee-ncp-host/internal/ash"
	"zigbee-ncp-host/internal/ezsp"
)

const (
	DefaultResponseTimeout = 5 * time.Second
	DefaultResetTimeout    = 5 * time.Second
)

// Option configures a Driver.
type Option func(*Driver)

// WithResponseTimeout bounds how long a command waits for its response.
func WithResponseTimeout(d time.Duration) Option {
	return func(drv *Driver) { drv.responseTimeout = d }
}

// WithResetTimeout bounds how long Reset waits for RSTACK.
func WithResetTimeout(d time.Duration) Option {
	return func(drv *Driver) { drv.resetTimeout = d }
}

// WithFramer replaces the default ASH framer.
func WithFramer(f *ash.Framer) Option {
	return func(drv *Driver) { drv.framer = f }
}

// Driver implements NCP on top of an ASH framer. It owns no goroutines:
// bytes from the NCP go in through Feed and bytes for the NCP come out of
// PollOutgoing or NextOutgoing. Link wires both ends to a serial port.
//
// Responses are matched to commands positionally. The NCP answers in
// send order, so the oldest pending command owns the next response; the
// echoed sequence byte is checked to catch a broken queue.
type Driver struct {
	logger          *slog.Logger
	responseTimeout time.Duration
	resetTimeout    time.Duration

	// mu guards everything below up to handlerMu.
	mu        sync.Mutex
	framer    *ash.Framer
	version   ezsp.ProtocolVersion
	seq       uint8
	pending   []*pendingCall
	linkErr   error
	resetWait chan struct{}
	info      Info
	stats     Stats
	closed    bool

	outReady chan struct{}
	done     chan struct{}

	// Callbacks.
	handlerMu         sync.RWMutex
	onStackStatus     func(ezsp.StackStatusHandler)
	onTrustCenterJoin func(ezsp.TrustCenterJoinHandler)
	onMessageSent     func(ezsp.MessageSentHandler)
	onIncomingMessage func(ezsp.IncomingMessageHandler)
	onLinkDown        func(error)
}

type pendingCall struct {
	seq       uint8
	frameID   ezsp.FrameID
	ch        chan callResult
	abandoned bool
}

type callResult struct {
	params []byte
	err    error
}

var _ NCP = (*Driver)(nil)

// NewDriver returns a driver whose link is not yet ready; call Reset.
func NewDriver(logger *slog.Logger, opts ...Option) *Driver {
	d := &Driver{
		logger:          logger,
		responseTimeout: DefaultResponseTimeout,
		resetTimeout:    DefaultResetTimeout,
		outReady:        make(chan struct{}, 1),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.framer == nil {
		d.framer = ash.NewFramer()
	}
	return d
}

// --- Transport boundary ---

// Feed hands bytes read from the NCP to the driver. Completed responses
// are delivered to their callers and callbacks to their handlers before
// Feed returns. It returns the number of bytes consumed, which is always
// len(data), and the link failure the bytes caused, if any.
func (d *Driver) Feed(data []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	var (
		callbacks []ezsp.Callback
		fatal     error
	)
	for _, fr := range d.framer.Feed(data) {
		switch fr := fr.(type) {
		case ash.Data:
			if fatal != nil {
				continue
			}
			cb, err := d.handleDataLocked(fr.Payload)
			if cb != nil {
				callbacks = append(callbacks, cb)
			}
			if err != nil && fatal == nil {
				fatal = err
			}
		case ash.ResetAck:
			d.logger.Info("ash RSTACK", "version", fr.Version, "code", fr.Code.String())
			d.info.ResetCode = fr.Code
			if d.resetWait != nil {
				close(d.resetWait)
				d.resetWait = nil
			} else if d.version == ezsp.Version1 && fatal == nil {
				// The NCP lost the negotiated session.
				fatal = fmt.Errorf("%w: %s", ErrUnexpectedReset, fr.Code)
			}
		case ash.Error:
			d.logger.Error("ash ERROR", "version", fr.Version, "code", fr.Code.String())
			if fatal == nil {
				fatal = fmt.Errorf("ncp error frame: %s", fr.Code)
			}
		}
	}
	d.signalOutgoingLocked()
	d.mu.Unlock()

	for _, cb := range callbacks {
		d.dispatch(cb)
	}
	if fatal != nil {
		return len(data), d.failLink(fatal)
	}
	return len(data), nil
}

// handleDataLocked routes one EZSP frame. It returns a callback to
// dispatch once the lock is released, or a fatal link error.
func (d *Driver) handleDataLocked(payload []byte) (ezsp.Callback, error) {
	f, err := ezsp.DecodeFrame(d.version, payload)
	if err != nil {
		d.logger.Warn("ezsp RX undecodable", "version", d.version.String(), "payload", fmt.Sprintf("%X", payload), "err", err)
		return nil, nil
	}
	if !f.Response {
		d.logger.Warn("ezsp RX command frame from NCP", "cmd", f.FrameID.String(), "seq", f.Sequence)
		return nil, nil
	}
	if f.Truncated || f.Overflow {
		d.logger.Warn("ezsp RX flags", "cmd", f.FrameID.String(), "truncated", f.Truncated, "overflow", f.Overflow)
	}

	if f.CallbackType == ezsp.CallbackAsync {
		d.stats.Callbacks++
		cb, err := ezsp.DecodeCallback(f.FrameID, f.Params)
		if err != nil {
			d.logger.Warn("ezsp callback decode", "cmd", f.FrameID.String(), "payload", fmt.Sprintf("%X", f.Params), "err", err)
			return nil, nil
		}
		return cb, nil
	}

	if len(d.pending) == 0 {
		d.stats.Orphaned++
		d.logger.Warn("ezsp orphaned response", "cmd", f.FrameID.String(), "seq", f.Sequence, "payload", fmt.Sprintf("%X", f.Params))
		return nil, nil
	}
	// The head stays queued until the response is known to be its own, so
	// a desync fails its caller along with the rest of the queue.
	head := d.pending[0]
	if f.Sequence != head.seq {
		return nil, fmt.Errorf("%w: got seq %d for %s, want seq %d for %s", ErrQueueDesync, f.Sequence, f.FrameID, head.seq, head.frameID)
	}

	var res callResult
	switch f.FrameID {
	case head.frameID:
		params := make([]byte, len(f.Params))
		copy(params, f.Params)
		res.params = params
	case ezsp.FrameInvalidCommand:
		var ic ezsp.InvalidCommandResponse
		if err := ezsp.DecodeParams(f.Params, &ic); err != nil {
			res.err = fmt.Errorf("decode invalid command: %w", err)
		} else {
			res.err = &InvalidCommandError{Command: head.frameID, Reason: ic.Reason}
		}
	default:
		return nil, fmt.Errorf("%w: got %s for seq %d, want %s", ErrQueueDesync, f.FrameID, f.Sequence, head.frameID)
	}
	d.pending[0] = nil
	d.pending = d.pending[1:]

	d.stats.Responses++
	if head.abandoned {
		d.stats.Discarded++
		d.logger.Debug("ezsp late response discarded", "cmd", f.FrameID.String(), "seq", f.Sequence)
		return nil, nil
	}
	d.logger.Debug("ezsp RX", "cmd", f.FrameID.String(), "seq", f.Sequence, "payload", fmt.Sprintf("%X", f.Params))
	head.ch <- res
	return nil, nil
}

// PollOutgoing returns framed bytes waiting to be written to the NCP, or
// nil.
func (d *Driver) PollOutgoing() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.framer.PollOutgoing()
}

// NextOutgoing blocks until framed bytes are ready to be written.
func (d *Driver) NextOutgoing(ctx context.Context) ([]byte, error) {
	for {
		if out := d.PollOutgoing(); out != nil {
			return out, nil
		}
		select {
		case <-d.outReady:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-d.done:
			return nil, ErrClosed
		}
	}
}

func (d *Driver) signalOutgoingLocked() {
	if !d.framer.Pending() {
		return
	}
	select {
	case d.outReady <- struct{}{}:
	default:
	}
}

// Tick drives ASH retransmission. Call it periodically, well below the
// ack timeout.
func (d *Driver) Tick(now time.Time) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	n, err := d.framer.Expire(now)
	if n > 0 {
		d.logger.Warn("ash retransmit", "frames", n)
		d.signalOutgoingLocked()
	}
	d.mu.Unlock()
	if err != nil {
		return d.failLink(err)
	}
	return nil
}

// --- Link state ---

// Fail takes the link down with cause, as if the NCP had stopped
// answering. The transport calls it when the byte channel itself breaks.
// Pending commands fail and OnLinkDown fires; Reset recovers.
func (d *Driver) Fail(cause error) error {
	return d.failLink(cause)
}

// Reset starts a new connection: commands still pending fail with
// ErrLinkReset, the protocol version drops back to Version0 and the
// sequence counter to 0. It returns once the NCP acknowledges the reset.
func (d *Driver) Reset(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.failPendingLocked(ErrLinkReset)
	d.framer.Reset()
	d.version = ezsp.Version0
	d.seq = 0
	d.linkErr = nil
	d.info = Info{}
	wait := make(chan struct{})
	d.resetWait = wait
	d.signalOutgoingLocked()
	d.mu.Unlock()

	d.logger.Info("ash RST")

	ctx, cancel := context.WithTimeout(ctx, d.resetTimeout)
	defer cancel()
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		if d.resetWait == wait {
			d.resetWait = nil
		}
		d.mu.Unlock()
		return fmt.Errorf("ncp reset: %w: %w", ash.ErrNotReady, ctx.Err())
	case <-d.done:
		return ErrClosed
	}
}

// failLink tears the connection down after an unrecoverable error and
// returns the error commands will see until the next Reset.
func (d *Driver) failLink(cause error) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.linkErr != nil {
		err := d.linkErr
		d.mu.Unlock()
		return err
	}
	if errors.Is(cause, ErrQueueDesync) {
		d.stats.Desyncs++
	}
	d.stats.LinkDowns++
	d.linkErr = fmt.Errorf("%w: %w", ErrLinkDown, cause)
	d.failPendingLocked(d.linkErr)
	err := d.linkErr
	d.mu.Unlock()

	d.logger.Error("ncp link down", "err", cause)

	d.handlerMu.RLock()
	onLinkDown := d.onLinkDown
	d.handlerMu.RUnlock()
	if onLinkDown != nil {
		onLinkDown(err)
	}
	return err
}

func (d *Driver) failPendingLocked(err error) {
	for _, p := range d.pending {
		if !p.abandoned {
			p.ch <- callResult{err: err}
		}
	}
	d.pending = nil
}

// Close fails every pending command with ErrClosed. It does not touch
// the transport.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.failPendingLocked(ErrClosed)
	close(d.done)
	return nil
}

// Info returns what the handshake learned about the NCP.
func (d *Driver) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	info := d.info
	info.Ready = d.framer.Ready() && d.linkErr == nil
	return info
}

// Stats returns a snapshot of the driver and framer counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Stats = d.framer.Stats()
	s.Pending = len(d.pending)
	s.Ready = d.framer.Ready() && d.linkErr == nil
	s.Version = d.version
	return s
}

// --- Commands ---

// send transmits one command and enqueues its completion slot in a single
// step under the lock, so transmit order and queue order agree.
func (d *Driver) send(id ezsp.FrameID, params []byte) (*pendingCall, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.closed:
		return nil, ErrClosed
	case d.linkErr != nil:
		return nil, d.linkErr
	case !d.framer.Ready():
		return nil, ash.ErrNotReady
	}

	seq := d.seq
	raw, err := ezsp.EncodeFrame(d.version, &ezsp.Frame{Sequence: seq, FrameID: id, Params: params})
	if err != nil {
		return nil, err
	}
	if err := d.framer.Send(raw); err != nil {
		return nil, err
	}
	d.seq++
	call := &pendingCall{seq: seq, frameID: id, ch: make(chan callResult, 1)}
	d.pending = append(d.pending, call)
	d.stats.Commands++
	d.signalOutgoingLocked()
	d.logger.Debug("ezsp TX", "cmd", id.String(), "seq", seq, "payload", fmt.Sprintf("%X", params))
	return call, nil
}

// abandon keeps the slot queued so the late response is still consumed in
// order, but nobody receives it. Results are delivered under d.mu, so a
// result that raced the deadline is returned instead with delivered set.
func (d *Driver) abandon(call *pendingCall) (res callResult, delivered bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case res = <-call.ch:
		return res, true
	default:
	}
	for _, p := range d.pending {
		if p == call {
			p.abandoned = true
			break
		}
	}
	d.stats.Timeouts++
	return callResult{}, false
}

// command sends cmd and decodes the response into resp, which may be nil
// for commands without response parameters.
func (d *Driver) command(ctx context.Context, cmd ezsp.Command, resp ezsp.Response) error {
	id := cmd.FrameID()
	params, err := ezsp.EncodeParams(cmd)
	if err != nil {
		return err
	}
	call, err := d.send(id, params)
	if err != nil {
		return fmt.Errorf("ezsp %s: %w", id, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.responseTimeout)
	defer cancel()

	var res callResult
	select {
	case res = <-call.ch:
	case <-ctx.Done():
		var delivered bool
		if res, delivered = d.abandon(call); !delivered {
			d.logger.Warn("ezsp timeout", "cmd", id.String(), "seq", call.seq, "err", ctx.Err())
			return fmt.Errorf("ezsp %s: %w", id, ctx.Err())
		}
	}
	if res.err != nil {
		return fmt.Errorf("ezsp %s: %w", id, res.err)
	}
	if resp == nil {
		return nil
	}
	if err := ezsp.DecodeParams(res.params, resp); err != nil {
		return fmt.Errorf("ezsp %s: decode response: %w", id, err)
	}
	if sr, ok := resp.(ezsp.StatusResponse); ok {
		if st := sr.ResponseStatus(); !st.Success() {
			d.mu.Lock()
			d.stats.StatusErrors++
			d.mu.Unlock()
			d.logger.Warn("ezsp RX", "cmd", id.String(), "status", st.String())
			return &StatusError{Command: id, Status: st}
		}
	}
	return nil
}

// QueryVersion negotiates the protocol version. It must be the first
// command after Reset; afterwards the driver speaks the extended frame
// format regardless of the version the NCP reports.
func (d *Driver) QueryVersion(ctx context.Context, desired uint8) (*ezsp.VersionResponse, error) {
	var resp ezsp.VersionResponse
	if err := d.command(ctx, ezsp.VersionRequest{DesiredProtocolVersion: desired}, &resp); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.version = ezsp.Version1
	d.info.ProtocolVersion = resp.ProtocolVersion
	d.info.StackType = resp.StackType
	d.info.StackVersion = resp.StackVersionString()
	d.mu.Unlock()
	d.logger.Info("ezsp version",
		"protocol", resp.ProtocolVersion,
		"stack_type", resp.StackType,
		"stack_version", resp.StackVersionString())
	return &resp, nil
}

func (d *Driver) Nop(ctx context.Context) error {
	return d.command(ctx, ezsp.NopRequest{}, nil)
}

func (d *Driver) Echo(ctx context.Context, data []byte) ([]byte, error) {
	var resp ezsp.EchoResponse
	if err := d.command(ctx, ezsp.EchoRequest{Data: data}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (d *Driver) GetConfigurationValue(ctx context.Context, id ezsp.ConfigID) (uint16, error) {
	var resp ezsp.GetConfigurationValueResponse
	if err := d.command(ctx, ezsp.GetConfigurationValueRequest{ConfigID: id}, &resp); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (d *Driver) SetConfigurationValue(ctx context.Context, id ezsp.ConfigID, value uint16) error {
	return d.command(ctx, ezsp.SetConfigurationValueRequest{ConfigID: id, Value: value}, &ezsp.EzspStatusResponse{})
}

func (d *Driver) GetPolicy(ctx context.Context, id ezsp.PolicyID) (ezsp.DecisionID, error) {
	var resp ezsp.GetPolicyResponse
	if err := d.command(ctx, ezsp.GetPolicyRequest{PolicyID: id}, &resp); err != nil {
		return 0, err
	}
	return resp.Decision, nil
}

func (d *Driver) SetPolicy(ctx context.Context, id ezsp.PolicyID, decision ezsp.DecisionID) error {
	return d.command(ctx, ezsp.SetPolicyRequest{PolicyID: id, Decision: decision}, &ezsp.EzspStatusResponse{})
}

func (d *Driver) GetValue(ctx context.Context, id ezsp.ValueID) ([]byte, error) {
	var resp ezsp.GetValueResponse
	if err := d.command(ctx, ezsp.GetValueRequest{ValueID: id}, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (d *Driver) SetValue(ctx context.Context, id ezsp.ValueID, value []byte) error {
	return d.command(ctx, ezsp.SetValueRequest{ValueID: id, Value: value}, &ezsp.EzspStatusResponse{})
}

func (d *Driver) AddEndpoint(ctx context.Context, req ezsp.AddEndpointRequest) error {
	return d.command(ctx, req, &ezsp.EzspStatusResponse{})
}

func (d *Driver) SetConcentrator(ctx context.Context, req ezsp.SetConcentratorRequest) error {
	return d.command(ctx, req, &ezsp.EmberStatusResponse{})
}

func (d *Driver) SetManufacturerCode(ctx context.Context, code uint16) error {
	return d.command(ctx, ezsp.SetManufacturerCodeRequest{Code: code}, nil)
}

// NetworkInit resumes the network stored in NCP tokens. EmberNotJoined
// means there is none; the network is up once a stack status callback
// reports EmberNetworkUp.
func (d *Driver) NetworkInit(ctx context.Context) error {
	return d.command(ctx, ezsp.NetworkInitRequest{}, &ezsp.EmberStatusResponse{})
}

func (d *Driver) NetworkState(ctx context.Context) (ezsp.NetworkStatus, error) {
	var resp ezsp.NetworkStateResponse
	if err := d.command(ctx, ezsp.NetworkStateRequest{}, &resp); err != nil {
		return 0, err
	}
	return resp.Status, nil
}

func (d *Driver) SetInitialSecurityState(ctx context.Context, state ezsp.InitialSecurityState) error {
	return d.command(ctx, ezsp.SetInitialSecurityStateRequest{State: state}, &ezsp.EmberStatusResponse{})
}

func (d *Driver) FormNetwork(ctx context.Context, params ezsp.NetworkParameters) error {
	return d.command(ctx, ezsp.FormNetworkRequest{Parameters: params}, &ezsp.EmberStatusResponse{})
}

func (d *Driver) LeaveNetwork(ctx context.Context) error {
	return d.command(ctx, ezsp.LeaveNetworkRequest{}, &ezsp.EmberStatusResponse{})
}

func (d *Driver) PermitJoining(ctx context.Context, seconds uint8) error {
	return d.command(ctx, ezsp.PermitJoiningRequest{Duration: seconds}, &ezsp.EmberStatusResponse{})
}

func (d *Driver) GetEUI64(ctx context.Context) (ezsp.EUI64, error) {
	var resp ezsp.GetEui64Response
	if err := d.command(ctx, ezsp.GetEui64Request{}, &resp); err != nil {
		return ezsp.EUI64{}, err
	}
	return resp.EUI64, nil
}

func (d *Driver) GetNodeID(ctx context.Context) (uint16, error) {
	var resp ezsp.GetNodeIDResponse
	if err := d.command(ctx, ezsp.GetNodeIDRequest{}, &resp); err != nil {
		return 0, err
	}
	return resp.NodeID, nil
}

func (d *Driver) GetNetworkParameters(ctx context.Context) (ezsp.NodeType, ezsp.NetworkParameters, error) {
	var resp ezsp.GetNetworkParametersResponse
	if err := d.command(ctx, ezsp.GetNetworkParametersRequest{}, &resp); err != nil {
		return 0, ezsp.NetworkParameters{}, err
	}
	return resp.NodeType, resp.Parameters, nil
}

// SendUnicast queues a message and returns its APS sequence number.
// Delivery is confirmed later by a message sent callback.
func (d *Driver) SendUnicast(ctx context.Context, req ezsp.SendUnicastRequest) (uint8, error) {
	var resp ezsp.SendUnicastResponse
	if err := d.command(ctx, req, &resp); err != nil {
		return 0, err
	}
	return resp.Sequence, nil
}

// --- Callbacks ---

// Handlers run on the goroutine calling Feed. They must not wait for a
// command response, which can only arrive through a later Feed.

func (d *Driver) OnStackStatus(handler func(ezsp.StackStatusHandler)) {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	d.onStackStatus = handler
}

func (d *Driver) OnTrustCenterJoin(handler func(ezsp.TrustCenterJoinHandler)) {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	d.onTrustCenterJoin = handler
}

func (d *Driver) OnMessageSent(handler func(ezsp.MessageSentHandler)) {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	d.onMessageSent = handler
}

func (d *Driver) OnIncomingMessage(handler func(ezsp.IncomingMessageHandler)) {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	d.onIncomingMessage = handler
}

// OnLinkDown registers a handler for fatal link failures. Reset recovers.
func (d *Driver) OnLinkDown(handler func(error)) {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	d.onLinkDown = handler
}

func (d *Driver) dispatch(cb ezsp.Callback) {
	d.handlerMu.RLock()
	onStackStatus := d.onStackStatus
	onTrustCenterJoin := d.onTrustCenterJoin
	onMessageSent := d.onMessageSent
	onIncomingMessage := d.onIncomingMessage
	d.handlerMu.RUnlock()

	switch cb := cb.(type) {
	case *ezsp.StackStatusHandler:
		d.logger.Info("ezsp stack status", "status", cb.Status.String())
		if onStackStatus != nil {
			onStackStatus(*cb)
		}
	case *ezsp.TrustCenterJoinHandler:
		d.logger.Info("ezsp trust center join",
			"node", fmt.Sprintf("0x%04X", cb.NewNodeID),
			"eui64", cb.NewNodeEUI64.String(),
			"status", cb.Status.String(),
			"decision", cb.PolicyDecision.String())
		if onTrustCenterJoin != nil {
			onTrustCenterJoin(*cb)
		}
	case *ezsp.MessageSentHandler:
		d.logger.Debug("ezsp message sent", "dest", fmt.Sprintf("0x%04X", cb.IndexOrDestination), "tag", cb.MessageTag, "status", cb.Status.String())
		if onMessageSent != nil {
			onMessageSent(*cb)
		}
	case *ezsp.IncomingMessageHandler:
		d.logger.Debug("ezsp incoming message",
			"sender", fmt.Sprintf("0x%04X", cb.Sender),
			"cluster", fmt.Sprintf("0x%04X", cb.ApsFrame.ClusterID),
			"lqi", cb.LastHopLQI,
			"rssi", cb.LastHopRSSI)
		if onIncomingMessage != nil {
			onIncomingMessage(*cb)
		}
	default:
		d.logger.Info("ezsp unhandled callback", "cmd", cb.FrameID().String(), "payload", fmt.Sprintf("%X", unknownParams(cb)))
	}
}

func unknownParams(cb ezsp.Callback) []byte {
	if u, ok := cb.(ezsp.UnknownCallback); ok {
		return u.Params
	}
	return nil
}
