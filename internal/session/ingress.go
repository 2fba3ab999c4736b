// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package session

import (
	"log/slog"
	"net"
	"time"

	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/protocol"
)

// IngressWorker é o dono do socket de datagrama de entrada: parseia frames
// de rumble vindos do wiiu_ip e despacha RumbleEvents ao Poller por um
// canal rendezvous (capacidade 0).
type IngressWorker struct {
	wiiuIP    string
	localPort int
	lifecycle *Lifecycle
	out       chan RumbleEvent
	logger    *slog.Logger

	stopCh chan struct{}
	bound  chan *net.UDPAddr
}

// NewIngressWorker constrói um IngressWorker escutando em 0.0.0.0:8114.
func NewIngressWorker(wiiuIP string, lifecycle *Lifecycle, logger *slog.Logger) *IngressWorker {
	return newIngressWorker(wiiuIP, protocol.IngressUDPPort, lifecycle, logger)
}

// newIngressWorker monta um IngressWorker em uma porta local arbitrária,
// para que os testes não usem a porta fixa de produção.
func newIngressWorker(wiiuIP string, localPort int, lifecycle *Lifecycle, logger *slog.Logger) *IngressWorker {
	return &IngressWorker{
		wiiuIP:    wiiuIP,
		localPort: localPort,
		lifecycle: lifecycle,
		out:       make(chan RumbleEvent),
		logger:    logger.With("component", "ingress"),
		stopCh:    make(chan struct{}),
		bound:     make(chan *net.UDPAddr, 1),
	}
}

// BoundAddr bloqueia até o socket estar aberto e retorna o endereço local.
// Pensado para testes que precisam da porta efêmera atribuída pelo SO.
func (i *IngressWorker) BoundAddr() *net.UDPAddr {
	return <-i.bound
}

// Events expõe o canal rendezvous que o Poller drena.
func (i *IngressWorker) Events() <-chan RumbleEvent {
	return i.out
}

// Stop sinaliza o loop para sair.
func (i *IngressWorker) Stop() {
	close(i.stopCh)
}

// Run abre o socket local e atende datagramas de rumble até o lifecycle
// chegar em Exiting ou Stop ser chamado. Falha de bind é retentada a cada
// 1s, igual ao Egress.
func (i *IngressWorker) Run() {
	// Com wiiuIP IPv4 o socket é só IPv4 (0.0.0.0): um socket dual-stack
	// entregaria o peer como endereço IPv6 e ele nunca bateria com wiiuIP na
	// comparação abaixo.
	network := "udp"
	if ip := net.ParseIP(i.wiiuIP); ip != nil && ip.To4() != nil {
		network = "udp4"
	}

	var conn *net.UDPConn
	for conn == nil {
		select {
		case <-i.stopCh:
			return
		default:
		}
		if i.lifecycle.Load() == Exiting {
			return
		}

		c, err := net.ListenUDP(network, &net.UDPAddr{IP: net.IPv4zero, Port: i.localPort})
		if err != nil {
			i.logger.Error("failed to bind ingress socket, retrying", "error", err)
			select {
			case <-time.After(time.Second):
			case <-i.stopCh:
				return
			}
			continue
		}
		conn = c
	}
	defer conn.Close()

	select {
	case i.bound <- conn.LocalAddr().(*net.UDPAddr):
	default:
	}

	buf := make([]byte, protocol.MaxDatagramSize)

	for {
		switch i.lifecycle.Load() {
		case Exiting:
			return
		case Disconnected:
			select {
			case <-time.After(time.Second):
				continue
			case <-i.stopCh:
				return
			}
		}

		select {
		case <-i.stopCh:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Timeout é esperado e ignorado; outros erros só voltam para a
			// checagem de lifecycle acima.
			continue
		}

		if n < protocol.RumbleFrameMinSize {
			continue
		}
		// Datagramas de qualquer outro peer são descartados sem parse.
		if peer.IP.String() != i.wiiuIP {
			clear(buf[:n])
			continue
		}

		frame, err := protocol.ReadRumble(buf[:n])
		clear(buf[:n])
		if err != nil {
			i.logger.Debug("dropping malformed rumble datagram", "error", err)
			continue
		}

		kind := RumbleStop
		if frame.Start {
			kind = RumbleStart
		}

		i.dispatch(RumbleEvent{Handle: frame.Handle, Kind: kind})
	}
}

// dispatch envia com timeout de 1s, descartando o evento se o Poller não
// estiver drenando.
func (i *IngressWorker) dispatch(ev RumbleEvent) {
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	select {
	case i.out <- ev:
	case <-timer.C:
		i.logger.Debug("dropping rumble event, poller not draining", "handle", ev.Handle)
	case <-i.stopCh:
	}
}
