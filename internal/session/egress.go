// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package session

import (
	"log/slog"
	"net"
	"time"

	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/dscp"
	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/protocol"
)

// egressQueueCapacity é a capacidade rendezvous da fila de saída: um canal
// Go com buffer 0 já dá exatamente a semântica de encontro entre Poller e
// Egress, então não há um tipo de fila customizado aqui como há para os
// requests de controle.
const egressQueueCapacity = 0

// EgressWorker é o dono do socket de datagrama de saída: encaminha frames
// de dados de controle já codificados para wiiu_ip:8113 e nunca derruba a
// sessão por falha de envio — perda de datagrama é esperada.
type EgressWorker struct {
	wiiuAddr  *net.UDPAddr
	localPort int
	lifecycle *Lifecycle
	queue     chan []byte
	logger    *slog.Logger

	// dscpCodepoint espelha a marcação do canal de controle para o socket
	// UDP de saída. Zero desabilita.
	dscpCodepoint int

	stopCh chan struct{}
}

// SetDSCP configura o code point DSCP aplicado ao socket assim que ele for
// aberto. Chamar antes de Run; codepoint 0 desabilita.
func (e *EgressWorker) SetDSCP(codepoint int) {
	e.dscpCodepoint = codepoint
}

// NewEgressWorker constrói um EgressWorker apontando para wiiu_ip:8113.
func NewEgressWorker(wiiuIP string, lifecycle *Lifecycle, logger *slog.Logger) (*EgressWorker, error) {
	return newEgressWorker(net.JoinHostPort(wiiuIP, "8113"), protocol.EgressUDPPort, lifecycle, logger)
}

// newEgressWorker monta um EgressWorker contra um endereço remoto e uma
// porta local arbitrários, para que os testes não usem a porta fixa de
// produção (que colidiria com um peer de loopback no mesmo host).
func newEgressWorker(remoteAddr string, localPort int, lifecycle *Lifecycle, logger *slog.Logger) (*EgressWorker, error) {
	addr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, err
	}
	return &EgressWorker{
		wiiuAddr:  addr,
		localPort: localPort,
		lifecycle: lifecycle,
		queue:     make(chan []byte, egressQueueCapacity),
		logger:    logger.With("component", "egress"),
		stopCh:    make(chan struct{}),
	}, nil
}

// Send enfileira um frame respeitando o timeout de envio do chamador.
// Retorna false se o envio expirou ou o worker parou — o chamador descarta
// o payload e loga em debug, sem retry.
func (e *EgressWorker) Send(frame []byte, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e.queue <- frame:
		return true
	case <-timer.C:
		return false
	case <-e.stopCh:
		return false
	}
}

// Stop sinaliza o loop para sair.
func (e *EgressWorker) Stop() {
	close(e.stopCh)
}

// Run abre o socket local e atende a fila de saída até o lifecycle chegar
// em Exiting ou Stop ser chamado. Falha de bind é retentada a cada 1s
// indefinidamente — o worker não retorna antes de Exiting.
func (e *EgressWorker) Run() {
	var conn *net.UDPConn
	for conn == nil {
		select {
		case <-e.stopCh:
			return
		default:
		}
		if e.lifecycle.Load() == Exiting {
			return
		}

		c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: e.localPort})
		if err != nil {
			e.logger.Error("failed to bind egress socket, retrying", "error", err)
			select {
			case <-time.After(time.Second):
			case <-e.stopCh:
				return
			}
			continue
		}
		conn = c
	}
	defer conn.Close()

	if err := dscp.Apply(conn, e.dscpCodepoint); err != nil {
		e.logger.Warn("failed to apply DSCP marking to egress socket", "error", err)
	}

	for {
		switch e.lifecycle.Load() {
		case Exiting:
			return
		case Disconnected:
			select {
			case <-time.After(time.Second):
				continue
			case <-e.stopCh:
				return
			}
		}

		select {
		case <-e.stopCh:
			return
		case frame := <-e.queue:
			if _, err := conn.WriteToUDP(frame, e.wiiuAddr); err != nil {
				e.logger.Debug("egress send failed", "error", err)
			}
		case <-time.After(time.Second):
		}
	}
}
