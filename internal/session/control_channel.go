// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package session

import (
	"bufio"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/dscp"
	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/protocol"
)

const (
	connectTimeout  = 2 * time.Second
	reconnectDelay  = 2 * time.Second
	ioTimeout       = 2 * time.Second
	requestWaitTime = 1 * time.Second
)

// ControlChannel é o dono do socket de stream: handshake, request/response
// de attach/detach, ping/pong, e as transições de LifecycleState que
// decorrem do sucesso ou falha dessas operações. O protocolo é half-duplex
// request/response, então uma única goroutine é dona do socket durante toda
// a vida da conexão — nenhum outro worker escreve nele.
type ControlChannel struct {
	addr      string
	lifecycle *Lifecycle
	queue     *requestQueue
	logger    *slog.Logger

	// reconnected é o notificador one-shot de reconexão: um canal de
	// capacidade 1 com send não-bloqueante. Um handshake bem-sucedido faz o
	// send; o Poller drena com um receive não-bloqueante uma vez por tick.
	// Notificações colapsam — o Poller só precisa saber que houve pelo menos
	// uma desde o último tick, nunca quantas.
	reconnected chan struct{}

	// dscpCodepoint é a marcação DSCP opcional aplicada ao socket logo após
	// o connect. Zero desabilita.
	dscpCodepoint int

	// reconnectCount conta handshakes bem-sucedidos ao longo da vida do
	// canal, exposto aos snapshots de diagnostics.
	reconnectCount atomic.Uint64

	stopCh chan struct{}
}

// NewControlChannel constrói um ControlChannel para wiiu_ip:8112.
func NewControlChannel(wiiuIP string, lifecycle *Lifecycle, logger *slog.Logger) *ControlChannel {
	return newControlChannel(net.JoinHostPort(wiiuIP, "8112"), lifecycle, logger)
}

// newControlChannel monta um ControlChannel contra um endereço arbitrário,
// permitindo que testes apontem para um listener de loopback em vez da
// porta fixa de produção.
func newControlChannel(addr string, lifecycle *Lifecycle, logger *slog.Logger) *ControlChannel {
	return &ControlChannel{
		addr:        addr,
		lifecycle:   lifecycle,
		queue:       newRequestQueue(),
		logger:      logger.With("component", "control_channel"),
		reconnected: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
}

// SetDSCP configura o code point DSCP aplicado ao socket em cada connect
// futuro. Chamar antes de Run; codepoint 0 desabilita a marcação.
func (c *ControlChannel) SetDSCP(codepoint int) {
	c.dscpCodepoint = codepoint
}

// Reconnected expõe o notificador de reconexão para o Poller.
func (c *ControlChannel) Reconnected() <-chan struct{} {
	return c.reconnected
}

// ReconnectCount retorna o número de handshakes completados com sucesso na
// vida deste canal. Seguro de chamar de qualquer goroutine.
func (c *ControlChannel) ReconnectCount() uint64 {
	return c.reconnectCount.Load()
}

// Submit enfileira um request de controle. Nunca bloqueia — a fila de
// controle é ilimitada.
func (c *ControlChannel) Submit(req *ControlRequest) {
	c.queue.push(req)
}

// Stop sinaliza o loop para sair; Run retorna depois que o socket vivo (se
// houver) enviou ABORT e fechou.
func (c *ControlChannel) Stop() {
	close(c.stopCh)
	c.queue.close()
}

// Run é a máquina de estados inteira do canal de controle. Bloqueia até
// Stop ser chamado ou o lifecycle compartilhado chegar em Exiting.
func (c *ControlChannel) Run() {
	for {
		if c.lifecycle.Load() == Exiting {
			return
		}
		select {
		case <-c.stopCh:
			return
		default:
		}

		conn, err := c.offline()
		if err != nil {
			c.lifecycle.MarkDisconnected()
			select {
			case <-c.stopCh:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		// A notificação de reconexão é publicada ANTES do estado virar
		// Connected: quem observar Connected já enxerga o reconnect
		// pendente.
		c.notifyReconnected()
		c.lifecycle.MarkConnected()
		c.reconnectCount.Add(1)

		c.online(conn)

		conn.Close()
		c.lifecycle.MarkDisconnected()
	}
}

// notifyReconnected faz o send colapsante, não-bloqueante.
func (c *ControlChannel) notifyReconnected() {
	select {
	case c.reconnected <- struct{}{}:
	default:
	}
}

// offline tenta um connect + handshake. Em qualquer falha retorna erro
// não-nil e nenhum socket fica aberto.
func (c *ControlChannel) offline() (net.Conn, error) {
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.Dial("tcp", c.addr)
	if err != nil {
		c.logger.Warn("connect failed", "addr", c.addr, "error", err)
		return nil, err
	}

	if err := dscp.Apply(conn, c.dscpCodepoint); err != nil {
		c.logger.Warn("failed to apply DSCP marking to control socket", "error", err)
	}

	conn.SetDeadline(time.Now().Add(ioTimeout))
	if err := c.handshake(conn); err != nil {
		c.logger.Warn("handshake failed", "error", err)
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})

	c.logger.Info("control channel connected", "addr", c.addr)
	return conn, nil
}

// handshake: o server envia um byte de versão, o cliente ecoa, o server
// confirma com um byte que não pode ser Unknown nem Abort.
func (c *ControlChannel) handshake(conn net.Conn) error {
	version, err := protocol.ReadHandshakeVersion(conn)
	if err != nil {
		return err
	}
	if version != protocol.ProtocolVersion {
		return protocol.ErrHandshakeVersion
	}

	if err := protocol.WriteHandshakeEcho(conn, version); err != nil {
		return err
	}

	final, err := protocol.ReadHandshakeFinal(conn)
	if err != nil {
		return err
	}
	if final == protocol.OpUnknownHandshake || final == protocol.OpAbort {
		return protocol.ErrHandshakeRejected
	}
	return nil
}

// online atende a fila de requests até o socket ser marcado como falho,
// Stop ser chamado ou o lifecycle chegar em Exiting.
func (c *ControlChannel) online(conn net.Conn) {
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	for {
		if c.lifecycle.Load() == Exiting {
			c.sendAbort(conn)
			return
		}

		select {
		case <-c.stopCh:
			c.sendAbort(conn)
			return
		default:
		}

		timer := time.NewTimer(requestWaitTime)
		c.queue.wait(timer.C, c.stopCh)
		timer.Stop()

		// Drena tudo que está pendente: o canal de notificação colapsa
		// pushes, então um único wakeup pode cobrir vários requests.
		for {
			req, ok := c.queue.pop()
			if !ok {
				break
			}
			if !c.dispatch(conn, rw, req) {
				return
			}
		}
	}
}

// dispatch trata um request. Retorna false se o socket deve ser
// considerado falho e o loop online deve sair.
func (c *ControlChannel) dispatch(conn net.Conn, rw *bufio.ReadWriter, req *ControlRequest) bool {
	conn.SetDeadline(time.Now().Add(ioTimeout))
	defer conn.SetDeadline(time.Time{})

	switch req.kind {
	case reqPing:
		return c.dispatchPing(rw, req)
	case reqAttach:
		return c.dispatchAttach(rw, req)
	case reqDetach:
		return c.dispatchDetach(rw, req)
	default:
		return true
	}
}

// dispatchPing responde ao chamador ANTES de derrubar o socket: um Ping em
// voo nunca fica sem resposta.
func (c *ControlChannel) dispatchPing(rw *bufio.ReadWriter, req *ControlRequest) bool {
	if err := protocol.WritePing(rw.Writer); err != nil || rw.Flush() != nil {
		req.replyPing(PingDisconnect)
		return false
	}

	ok, err := protocol.ReadPongByte(rw.Reader)
	if err != nil {
		req.replyPing(PingDisconnect)
		return false
	}
	if !ok {
		req.replyPing(PingDisconnect)
		return false
	}

	req.replyPing(Pong)
	return true
}

func (c *ControlChannel) dispatchAttach(rw *bufio.ReadWriter, req *ControlRequest) bool {
	if err := protocol.WriteAttach(rw.Writer, req.handle); err != nil || rw.Flush() != nil {
		req.replyAttach(AttachOutcome{})
		return false
	}

	resp, err := protocol.ReadAttachResponse(rw.Reader)
	if err != nil {
		req.replyAttach(AttachOutcome{})
		return false
	}

	if !resp.Ok() {
		// Falha soft: os slots voltaram negativos mas o socket está bom.
		c.logger.Warn("attach rejected", "handle", req.handle,
			"config_status", resp.ConfigStatus, "userdata_status", resp.UserdataStatus)
		req.replyAttach(AttachOutcome{})
		return true
	}

	req.replyAttach(AttachOutcome{DeviceSlot: resp.DeviceSlot, PadSlot: resp.PadSlot, Ok: true})
	return true
}

// dispatchDetach trata falha de escrita como socket morto, igual a
// Ping/Attach: uma escrita que falha em um stream TCP é evidência de que a
// conexão inteira quebrou, não de um problema pontual da mensagem.
func (c *ControlChannel) dispatchDetach(rw *bufio.ReadWriter, req *ControlRequest) bool {
	if err := protocol.WriteDetach(rw.Writer, req.handle); err != nil || rw.Flush() != nil {
		return false
	}
	return true
}

func (c *ControlChannel) sendAbort(conn net.Conn) {
	conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if err := protocol.WriteAbort(conn); err != nil {
		c.logger.Debug("failed to send abort", "error", err)
	}
}
