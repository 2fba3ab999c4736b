// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/inputbackend"
	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/protocol"
)

const attachReplyTimeout = 10 * time.Second

// egressSendTimeout limita quanto tempo o Poller pode ficar preso
// entregando um frame ao Egress.
const egressSendTimeout = time.Second

// Poller é o dono de todos os Controllers: é o único worker que muta esse
// conjunto. Limita a própria cadência de amostragem, conecta pads recém
// descobertos via canal de controle, aplica notificações de rumble e de
// reconexão, e agrupa as amostras em um frame de Data por tick para o
// Egress.
type Poller struct {
	backend   inputbackend.InputBackend
	control   *ControlChannel
	egress    *EgressWorker
	ingress   *IngressWorker
	lifecycle *Lifecycle
	logger    *slog.Logger

	// limiter roda em pollingRate/2 eventos/s com burst 1: o loop principal
	// faz no máximo pollingRate/2 ticks por segundo, e nada no loop dobra
	// essa cadência. A taxa escolhida é logada como effective_hz para o
	// operador ver o número real.
	limiter       *rate.Limiter
	pollingRate   int
	effectiveRate int

	// mu protege controllers. A goroutine do Poller é a única mutadora; o
	// lock existe para Snapshot (testes e o leitor de diagnostics) poder
	// ler com segurança de fora.
	mu          sync.Mutex
	controllers map[inputbackend.GamepadID]*Controller
	allocator   *handleAllocator

	stopCh chan struct{}
}

// Snapshot retorna uma cópia pontual de todos os Controllers conectados.
// Seguro de chamar de qualquer goroutine.
func (p *Poller) Snapshot() []Controller {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Controller, 0, len(p.controllers))
	for _, c := range p.controllers {
		out = append(out, *c)
	}
	return out
}

// EffectiveRateHz retorna os eventos/s configurados no rate limiter, isto
// é, pollingRate/2.
func (p *Poller) EffectiveRateHz() int {
	return p.effectiveRate
}

// NewPoller constrói um Poller. pollingRate é o Hz pedido na linha de
// comando, já validado para [20, 1000].
func NewPoller(backend inputbackend.InputBackend, control *ControlChannel, egress *EgressWorker, ingress *IngressWorker, lifecycle *Lifecycle, pollingRate int, logger *slog.Logger) *Poller {
	effectiveRate := pollingRate / 2
	if effectiveRate < 1 {
		effectiveRate = 1
	}
	logger = logger.With("component", "poller")
	logger.Info("poller configured", "requested_hz", pollingRate, "effective_hz", effectiveRate)

	return &Poller{
		backend:       backend,
		control:       control,
		egress:        egress,
		ingress:       ingress,
		lifecycle:     lifecycle,
		logger:        logger,
		limiter:       rate.NewLimiter(rate.Limit(effectiveRate), 1),
		pollingRate:   pollingRate,
		effectiveRate: effectiveRate,
		controllers:   make(map[inputbackend.GamepadID]*Controller),
		allocator:     newHandleAllocator(),
		stopCh:        make(chan struct{}),
	}
}

// Stop sinaliza o loop para sair.
func (p *Poller) Stop() {
	close(p.stopCh)
}

// Run bloqueia até o lifecycle chegar em Exiting ou Stop ser chamado.
func (p *Poller) Run() {
	if !p.initialize() {
		return
	}

	ctx, cancel := p.stopContext()
	defer cancel()

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		switch p.lifecycle.Load() {
		case Exiting:
			return
		case Disconnected:
			select {
			case <-time.After(time.Second):
				continue
			case <-p.stopCh:
				return
			}
		}

		p.drainRumble()
		p.drainReconnect()
		p.drainBackendEvents()
		p.emit()
	}
}

// stopContext adapta p.stopCh em um context.Context para limiter.Wait.
func (p *Poller) stopContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// initialize bloqueia até o lifecycle sair de Disconnected e então conecta
// cada pad já conhecido. Retorna false se o processo está encerrando antes
// disso acontecer.
func (p *Poller) initialize() bool {
	for p.lifecycle.Load() == Disconnected {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-p.stopCh:
			return false
		}
	}
	if p.lifecycle.Load() == Exiting {
		return false
	}

	for _, id := range p.backend.Gamepads() {
		p.attach(id)
	}
	return true
}

// attach deriva um handle para id (se ainda não conectado), pede Attach ao
// canal de controle, e no sucesso guarda o Controller mais um efeito de
// rumble fraco opcional.
func (p *Poller) attach(id inputbackend.GamepadID) {
	p.mu.Lock()
	_, exists := p.controllers[id]
	p.mu.Unlock()
	if exists {
		return
	}

	handle := p.allocator.allocate(id)
	req, reply := NewAttachRequest(handle)
	p.control.Submit(req)

	var outcome AttachOutcome
	select {
	case outcome = <-reply:
	case <-time.After(attachReplyTimeout):
		p.allocator.release(id, handle)
		p.logger.Warn("attach timed out", "backend_id", id, "handle", handle)
		return
	case <-p.stopCh:
		p.allocator.release(id, handle)
		return
	}

	if !outcome.Ok {
		p.allocator.release(id, handle)
		return
	}

	ctrl := &Controller{
		BackendID:  id,
		Handle:     handle,
		DeviceSlot: outcome.DeviceSlot,
		PadSlot:    outcome.PadSlot,
	}

	if p.backend.SupportsForceFeedback(id) {
		effect, err := p.backend.NewWeakEffect(id)
		if err != nil {
			p.logger.Warn("failed to construct rumble effect, continuing without it", "backend_id", id, "error", err)
		} else {
			ctrl.Effect = effect
		}
	}

	p.mu.Lock()
	p.controllers[id] = ctrl
	p.mu.Unlock()
	p.logger.Info("attached controller", "backend_id", id, "handle", handle,
		"device_slot", ctrl.DeviceSlot, "pad_slot", ctrl.PadSlot)
}

// detach emite um Detach para o controle em id e remove o registro local.
func (p *Poller) detach(id inputbackend.GamepadID) {
	p.mu.Lock()
	ctrl, ok := p.controllers[id]
	if ok {
		delete(p.controllers, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	p.control.Submit(NewDetachRequest(ctrl.Handle))
	p.allocator.release(id, ctrl.Handle)
	p.logger.Info("detached controller", "backend_id", id, "handle", ctrl.Handle)
}

// drainRumble aplica no máximo um RumbleEvent por tick.
func (p *Poller) drainRumble() {
	select {
	case ev := <-p.ingress.Events():
		p.applyRumble(ev)
	default:
	}
}

// applyRumble localiza o controle pelo handle e aciona o efeito. Controle
// ausente ou sem efeito é no-op.
func (p *Poller) applyRumble(ev RumbleEvent) {
	p.mu.Lock()
	var effect inputbackend.Effect
	for _, ctrl := range p.controllers {
		if ctrl.Handle == ev.Handle {
			effect = ctrl.Effect
			break
		}
	}
	p.mu.Unlock()

	if effect == nil {
		return
	}

	var err error
	switch ev.Kind {
	case RumbleStart:
		err = effect.Play()
	case RumbleStop:
		err = effect.Stop()
	}
	if err != nil {
		p.logger.Debug("rumble effect call failed, ignoring", "handle", ev.Handle, "error", err)
	}
}

// drainReconnect reconecta cada controle conhecido se o canal de controle
// sinalizou uma reconexão desde o último tick. Em caso de falha os slots
// anteriores são mantidos.
func (p *Poller) drainReconnect() {
	select {
	case <-p.control.Reconnected():
	default:
		return
	}

	p.mu.Lock()
	ids := make([]inputbackend.GamepadID, 0, len(p.controllers))
	for id := range p.controllers {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.mu.Lock()
		ctrl, ok := p.controllers[id]
		p.mu.Unlock()
		if !ok {
			continue
		}

		req, reply := NewAttachRequest(ctrl.Handle)
		p.control.Submit(req)

		select {
		case outcome := <-reply:
			if outcome.Ok {
				p.mu.Lock()
				if c, ok := p.controllers[id]; ok {
					c.DeviceSlot = outcome.DeviceSlot
					c.PadSlot = outcome.PadSlot
				}
				p.mu.Unlock()
			}
		case <-time.After(attachReplyTimeout):
		case <-p.stopCh:
			return
		}
	}
}

// drainBackendEvents aplica notificações de conexão/desconexão de pads
// vindas do backend.
func (p *Poller) drainBackendEvents() {
	p.backend.Drain()
	for _, ev := range p.backend.Events() {
		switch ev.Kind {
		case inputbackend.GamepadConnected:
			p.attach(ev.ID)
		case inputbackend.GamepadDisconnected:
			p.detach(ev.ID)
		}
	}
}

// emit amostra cada controle e envia um frame de Data em lote para o
// Egress.
func (p *Poller) emit() {
	snapshot := p.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	samples := make([]protocol.ControllerSample, 0, len(snapshot))
	for _, ctrl := range snapshot {
		stick, err := p.backend.Sample(ctrl.BackendID)
		if err != nil {
			p.logger.Debug("sample failed, skipping controller this tick", "handle", ctrl.Handle, "error", err)
			continue
		}
		samples = append(samples, protocol.ControllerSample{
			Handle:     ctrl.Handle,
			DeviceSlot: ctrl.DeviceSlot,
			PadSlot:    ctrl.PadSlot,
			State:      EncodeState(stick),
		})
	}

	if len(samples) == 0 {
		return
	}
	if len(samples) > 255 {
		p.logger.Warn("controller count exceeds 255, truncating", "count", len(samples))
	}

	frame := protocol.EncodeData(samples)
	if !p.egress.Send(frame, egressSendTimeout) {
		p.logger.Debug("dropping data frame, egress not draining")
	}
}
