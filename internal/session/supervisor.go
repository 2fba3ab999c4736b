// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/inputbackend"
)

const pingInterval = time.Second

// Supervisor é o dono do LifecycleState compartilhado: sobe e junta os
// quatro workers e dispara o gatilho periódico de keepalive.
type Supervisor struct {
	lifecycle *Lifecycle
	control   *ControlChannel
	egress    *EgressWorker
	ingress   *IngressWorker
	poller    *Poller
	logger    *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSupervisor liga os quatro workers para wiiuIP e retorna um Supervisor
// pronto para Run. backend é a implementação de InputBackend fornecida pelo
// chamador.
func NewSupervisor(wiiuIP string, pollingRate int, backend inputbackend.InputBackend, logger *slog.Logger) (*Supervisor, error) {
	lifecycle := NewLifecycle()

	control := NewControlChannel(wiiuIP, lifecycle, logger)
	egress, err := NewEgressWorker(wiiuIP, lifecycle, logger)
	if err != nil {
		return nil, err
	}
	ingress := NewIngressWorker(wiiuIP, lifecycle, logger)
	poller := NewPoller(backend, control, egress, ingress, lifecycle, pollingRate, logger)

	return &Supervisor{
		lifecycle: lifecycle,
		control:   control,
		egress:    egress,
		ingress:   ingress,
		poller:    poller,
		logger:    logger.With("component", "supervisor"),
		stopCh:    make(chan struct{}),
	}, nil
}

// Run sobe todos os workers, dirige o loop de ping até Exiting, e junta
// cada worker em ordem inversa de start antes de retornar. A falha de um
// worker individual é logada, nunca propagada.
func (s *Supervisor) Run() {
	s.start(s.control.Run, "control_channel")
	s.start(s.egress.Run, "egress")
	s.start(s.ingress.Run, "ingress")
	s.start(s.poller.Run, "poller")

	for s.lifecycle.Load() != Exiting {
		if s.lifecycle.Load() == Connected {
			// Enfileira o ping com um canal de resposta descartável por
			// tentativa (capacidade 1, quem responde nunca bloqueia). O
			// resultado não precisa ser observado aqui: o próprio canal de
			// controle derruba o estado para Disconnected quando o pong
			// falha.
			req, _ := NewPingRequest()
			s.control.Submit(req)
		}

		select {
		case <-time.After(pingInterval):
		case <-s.stopCh:
		}
	}

	s.poller.Stop()
	s.ingress.Stop()
	s.egress.Stop()
	s.control.Stop()
	s.wg.Wait()
}

// Lifecycle expõe o estado compartilhado para observadores read-only.
func (s *Supervisor) Lifecycle() *Lifecycle {
	return s.lifecycle
}

// LifecycleString retorna a forma textual do estado atual, para
// observadores (diagnostics) que querem um valor simples em vez do próprio
// Lifecycle.
func (s *Supervisor) LifecycleString() string {
	return s.lifecycle.Load().String()
}

// ReconnectCount retorna o número de handshakes completados com sucesso
// pelo canal de controle na vida da sessão.
func (s *Supervisor) ReconnectCount() uint64 {
	return s.control.ReconnectCount()
}

// ControllerCount retorna o número de controles atualmente conectados.
func (s *Supervisor) ControllerCount() int {
	return len(s.poller.Snapshot())
}

// EffectivePollingRate retorna a taxa efetiva de amostragem do Poller em Hz.
func (s *Supervisor) EffectivePollingRate() int {
	return s.poller.EffectiveRateHz()
}

// SetDSCP configura a marcação DSCP nos sockets de controle e de saída.
// Chamar antes de Run; codepoint 0 desabilita.
func (s *Supervisor) SetDSCP(codepoint int) {
	s.control.SetDSCP(codepoint)
	s.egress.SetDSCP(codepoint)
}

// Shutdown marca a sessão como Exiting com uma store atômica e fecha stopCh
// (uma única vez, via sync.Once) para acordar o loop de Run sem esperar o
// próximo intervalo de ping. Seguro de chamar mais de uma vez e de
// qualquer goroutine.
func (s *Supervisor) Shutdown() {
	s.lifecycle.Store(Exiting)
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Supervisor) start(fn func(), name string) {
	s.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("worker panicked", "worker", name, "panic", r)
			}
			s.wg.Done()
		}()
		fn()
	}()
}
