// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package dscp aplica marcação DSCP/QoS aos sockets do núcleo da sessão.
// É tuning inteiramente opcional: desabilitado por default, e no-op em
// qualquer tipo de conexão que o SO não suporte.
package dscp

import (
	"fmt"
	"net"
	"strings"
	"syscall"
)

// values mapeia nomes DSCP (RFC 2474/4594) para seus code points de 6
// bits. O code point não é o byte TOS inteiro — quem aplica desloca 2 bits
// à esquerda antes de setar IP_TOS (TOS = DSCP<<2 | ECN).
var values = map[string]int{
	// Expedited Forwarding — tráfego de baixa latência e baixo jitter,
	// como o handshake de controle e os datagramas de dados de controle
	// que este cliente envia.
	"EF": 46,

	// Assured Forwarding, classes 1-4, drop precedence 1-3.
	"AF11": 10, "AF12": 12, "AF13": 14,
	"AF21": 18, "AF22": 20, "AF23": 22,
	"AF31": 26, "AF32": 28, "AF33": 30,
	"AF41": 34, "AF42": 36, "AF43": 38,

	// Class Selector, retrocompatível com IP Precedence.
	"CS0": 0, "CS1": 8, "CS2": 16, "CS3": 24,
	"CS4": 32, "CS5": 40, "CS6": 48, "CS7": 56,
}

// Parse converte um nome DSCP (ex. "EF", "AF41") no code point numérico.
// String vazia retorna 0, nil (marcação desabilitada).
func Parse(name string) (int, error) {
	name = strings.TrimSpace(strings.ToUpper(name))
	if name == "" {
		return 0, nil
	}

	val, ok := values[name]
	if !ok {
		return 0, fmt.Errorf("dscp: unknown value %q (valid: EF, AF11..AF43, CS0..CS7)", name)
	}
	return val, nil
}

// syscallConn é satisfeita por *net.TCPConn e *net.UDPConn.
type syscallConn interface {
	SyscallConn() (syscall.RawConn, error)
}

// Apply seta a opção de socket IP_TOS com codepoint em conn. É no-op
// quando codepoint é 0. conn precisa ser *net.TCPConn ou *net.UDPConn;
// qualquer outro net.Conn retorna erro.
func Apply(conn net.Conn, codepoint int) error {
	if codepoint == 0 {
		return nil
	}

	sc, ok := conn.(syscallConn)
	if !ok {
		return fmt.Errorf("dscp: cannot apply to %T, not a raw-conn-capable socket", conn)
	}

	rawConn, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("dscp: getting raw conn: %w", err)
	}

	tos := codepoint << 2

	var sysErr error
	if err := rawConn.Control(func(fd uintptr) {
		sysErr = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_IP, syscall.IP_TOS, tos)
	}); err != nil {
		return fmt.Errorf("dscp: control fd: %w", err)
	}
	if sysErr != nil {
		return fmt.Errorf("dscp: setsockopt IP_TOS=%d: %w", tos, sysErr)
	}

	return nil
}
