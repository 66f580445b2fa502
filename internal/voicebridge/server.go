package voicebridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/javierd009/concierge/internal/config"
	"github.com/javierd009/concierge/internal/database"
	"github.com/javierd009/concierge/internal/realtime"
	"github.com/javierd009/concierge/internal/tools"
)

// handshakeTimeout bounds how long a telephony connection has to send its
// opening call-id frame before the bridge gives up on it.
const handshakeTimeout = 10 * time.Second

// Server accepts telephony connections on the AudioSocket-style TCP port and
// bridges each one to the realtime model for the lifetime of the call.
type Server struct {
	cfg        *config.Config
	db         *database.DB
	client     *realtime.Client
	tenantName string
	log        *slog.Logger

	mu       sync.Mutex
	sessions map[string]*CallSession
}

// NewServer resolves this process's tenant once at construction (voice
// bridge deployments are one process per tenant trunk, matching the
// configured, process-wide TenantID) and builds the realtime client.
func NewServer(cfg *config.Config, db *database.DB, log *slog.Logger) (*Server, error) {
	tenant, err := database.NewTenantRepository(db).GetByID(context.Background(), cfg.TenantID)
	if err != nil {
		return nil, fmt.Errorf("voicebridge: loading tenant %q: %w", cfg.TenantID, err)
	}
	return &Server{
		cfg:        cfg,
		db:         db,
		client:     realtime.New(cfg.RealtimeModelURL, cfg.RealtimeBearerToken),
		tenantName: tenant.DisplayName,
		log:        log,
		sessions:   make(map[string]*CallSession),
	}, nil
}

// ListenAndServe runs the telephony TCP server until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.VoiceStreamPort))
	if err != nil {
		return fmt.Errorf("voicebridge: listen: %w", err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("voicebridge: accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	setNoDelay(conn)

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	msgType, payload, err := readFrame(conn)
	if err != nil || msgType != frameUUID {
		s.log.Warn("telephony connection did not open with a call-id frame", "error", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	callID, err := parseCallID(payload)
	if err != nil {
		s.log.Warn("invalid call-id handshake", "error", err)
		return
	}

	cfg := sessionConfig{
		GuardExtension:       s.cfg.GuardExtension,
		NoiseGateThreshold:   s.cfg.NoiseGateRMSThreshold,
		PrebufferFrames:      s.cfg.PlayoutPrebufferFrames,
		QueueMaxFrames:       s.cfg.PlayoutQueueMaxFrames,
		VADThreshold:         s.cfg.VADThreshold,
		VADPrefixPaddingMs:   s.cfg.VADPrefixPaddingMs,
		VADSilenceDurationMs: s.cfg.VADSilenceDurationMs,
	}

	session := newCallSession(conn, callID, s.cfg.TenantID, cfg, s.log)
	s.register(callID, session)
	defer s.unregister(callID)

	instructions := buildSystemPrompt(s.tenantName, s.cfg.GuardExtension)
	buildRuntime := func(call tools.CallControl) *tools.Runtime {
		return tools.New(s.db, s.cfg, call)
	}

	if err := session.run(ctx, s.client, buildRuntime, instructions, cfg); err != nil {
		s.log.Warn("call session ended with error", "channel_id", callID, "error", err)
	}
}

func (s *Server) register(channelID string, session *CallSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[channelID] = session
}

func (s *Server) unregister(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, channelID)
}

// ActiveCalls reports how many telephony connections are currently bridged.
func (s *Server) ActiveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func buildSystemPrompt(tenantName, guardExtension string) string {
	if tenantName == "" {
		tenantName = "el condominio"
	}
	return fmt.Sprintf(`Eres un agente de seguridad virtual profesional para el condominio "%s".
Tu trabajo es atender a los visitantes que llegan a la puerta principal de manera eficiente y segura.

FLUJO PRINCIPAL DE CONVERSACIÓN:
1. Saluda y pregunta en qué puedes ayudar.
2. Pide el nombre del visitante.
3. Identifica el destino (número de casa/departamento o nombre del residente) con find_resident.
4. Usa check_preauthorized_visitor. Si ya hay autorización, usa open_gate y despide al visitante.
5. Si no hay autorización previa, usa request_authorization y espera la respuesta del residente.
6. Si el residente no autoriza o no responde, ofrece transferir a guardia con transfer_to_guard.
7. Registra siempre el resultado de la visita con log_visit.

REGLAS:
- Sé cortés pero eficiente, habla en español natural.
- Nunca reveles información de residentes que el visitante no haya confirmado ya.
- Ante cualquier emergencia o sospecha, transfiere de inmediato a guardia (extensión %s).
`, tenantName, guardExtension)
}
