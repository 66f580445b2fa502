// Package fastpath implements the Fast-Path Dispatcher: a small, regex-driven
// command table that opens a gate directly, bypassing the realtime model and
// its tool-call round trip entirely.
package fastpath

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/javierd009/concierge/internal/config"
	"github.com/javierd009/concierge/internal/devices"
)

// Target is one of the closed set of fast-path destinations.
type Target string

const (
	TargetVehicularEntryPanel     Target = "vehicular_entry_panel"
	TargetVehicularExitPanel      Target = "vehicular_exit_panel"
	TargetPedestrianGate          Target = "pedestrian_gate"
	TargetVehicularEntryBiometric Target = "vehicular_entry_biometric"
)

type pattern struct {
	re     *regexp.Regexp
	target Target
}

// openPatterns are matched in order; the first match wins. Case-insensitive,
// accented and unaccented vowel spellings are both accepted.
var openPatterns = []pattern{
	{regexp.MustCompile(`(?i)^\s*(abrir|abre)\s+(entrada|port[oó]n\s+entrada|port[oó]n\s+vehicular)\s*$`), TargetVehicularEntryPanel},
	{regexp.MustCompile(`(?i)^\s*(abrir|abre)\s+(salida|port[oó]n\s+salida)\s*$`), TargetVehicularExitPanel},
	{regexp.MustCompile(`(?i)^\s*(abrir|abre)\s+(peatonal|peat[oó]n|puerta\s+peatonal)\s*$`), TargetPedestrianGate},
	{regexp.MustCompile(`(?i)^\s*(abrir|abre)\s+(entrada)\s+(biom[eé]trico|biometrico)\s*$`), TargetVehicularEntryBiometric},
}

// Parse matches text against the fast-path command table. It returns false
// when nothing matches, so the caller can fall back to the intent classifier.
func Parse(text string) (Target, bool) {
	for _, p := range openPatterns {
		if p.re.MatchString(text) {
			return p.target, true
		}
	}
	return "", false
}

// targetRoute is the static (access_point, door, xml_mode, label)
// configuration behind each target; deviceFor supplies the device host.
type targetRoute struct {
	accessPoint string
	door        int
	xmlMode     string // "strict" | "legacy" | "auto"
	label       string
}

var routes = map[Target]targetRoute{
	TargetVehicularEntryPanel:     {accessPoint: "vehicular_entry", door: 1, xmlMode: "strict", label: "Entrada"},
	TargetVehicularExitPanel:      {accessPoint: "vehicular_exit", door: 2, xmlMode: "strict", label: "Salida"},
	TargetPedestrianGate:          {accessPoint: "pedestrian", door: 1, xmlMode: "auto", label: "Peatonal"},
	TargetVehicularEntryBiometric: {accessPoint: "vehicular_entry", door: 1, xmlMode: "auto", label: "Entrada (biométrico)"},
}

// Dispatcher holds the per-process debounce table. One Dispatcher is shared
// across all resident sessions for the life of the process.
type Dispatcher struct {
	cfg *config.Config

	mu       sync.Mutex
	lastOpen map[Target]time.Time

	nowFunc func() time.Time
}

// New constructs a Dispatcher wired to cfg.
func New(cfg *config.Config) *Dispatcher {
	return &Dispatcher{cfg: cfg, lastOpen: make(map[Target]time.Time), nowFunc: time.Now}
}

// Result is what Execute returns to the WhatsApp command handler.
type Result struct {
	OK          bool
	UserMessage string
	LogContext  map[string]any
}

// Execute runs the debounce check, resolves the target's device route and
// invokes the Access-Device Client with the target's xml_mode policy. Raw
// device payloads never leave this function; only a short Spanish message
// and a structured log context do.
func (d *Dispatcher) Execute(ctx context.Context, target Target) Result {
	if d.debounced(target) {
		return Result{OK: true, UserMessage: "Listo. Ya se estaba abriendo.", LogContext: map[string]any{"debounced": true}}
	}

	route, ok := routes[target]
	if !ok {
		return Result{OK: false, UserMessage: "No configurado.", LogContext: map[string]any{"target": string(target)}}
	}

	host, port, password := d.deviceFor(target)
	if host == "" {
		return Result{OK: false, UserMessage: fmt.Sprintf("No se pudo abrir %s.", route.label), LogContext: map[string]any{
			"access_point": route.accessPoint, "error": "device not configured",
		}}
	}

	client := devices.Get(host, port, d.cfg.DeviceUsername, password, d.cfg.FastOpenTimeout())
	ok = d.openWithVariants(ctx, client, route.door, route.xmlMode)

	logCtx := map[string]any{
		"access_point": route.accessPoint,
		"device_host":  host,
		"door_id":      route.door,
		"success":      ok,
	}
	if ok {
		return Result{OK: true, UserMessage: fmt.Sprintf("Listo. %s abierto.", route.label), LogContext: logCtx}
	}
	return Result{OK: false, UserMessage: fmt.Sprintf("No se pudo abrir %s.", route.label), LogContext: logCtx}
}

// openWithVariants tries the xml_mode's payload variant(s) once, then (in
// auto mode only) repeats the whole sequence a second time. strict and
// legacy modes get one extra attempt of their single variant, matching the
// "single retry of the whole sequence" rule.
func (d *Dispatcher) openWithVariants(ctx context.Context, client *devices.Client, door int, xmlMode string) bool {
	var variants []string
	switch xmlMode {
	case "strict":
		variants = []string{"strict"}
	case "legacy":
		variants = []string{"legacy"}
	default:
		variants = []string{"strict", "legacy"}
	}

	for attempt := 0; attempt < 2; attempt++ {
		for _, v := range variants {
			if ok, _ := client.OpenDoorVariant(ctx, door, v); ok {
				return true
			}
		}
	}
	return false
}

func (d *Dispatcher) deviceFor(target Target) (host string, port int, password string) {
	switch target {
	case TargetVehicularEntryPanel, TargetVehicularExitPanel:
		return d.cfg.AccessPanelHost, d.cfg.AccessPanelPort, d.cfg.AccessPanelPassword
	case TargetPedestrianGate:
		password = d.cfg.PedestrianPassword
		if password == "" {
			password = d.cfg.AccessPanelPassword
		}
		return d.cfg.PedestrianHost, d.cfg.PedestrianPort, password
	case TargetVehicularEntryBiometric:
		return d.cfg.Biometric1Host, d.cfg.Biometric1Port, d.cfg.Biometric1Password
	default:
		return "", 0, ""
	}
}

func (d *Dispatcher) debounced(target Target) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.nowFunc()
	if last, ok := d.lastOpen[target]; ok && now.Sub(last) < d.cfg.FastOpenDebounce() {
		return true
	}
	d.lastOpen[target] = now
	return false
}
