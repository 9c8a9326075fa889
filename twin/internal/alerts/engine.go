package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/config"
)

const defaultCooldown = 24 * time.Hour

// Alert is a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Battery    string     `json:"battery"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	Step       int64      `json:"step"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against aging evaluations and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	battery  string
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)

	inflight sync.WaitGroup
}

// New creates an Engine for one battery. An Engine with no rules is valid;
// Evaluate then does nothing.
func New(battery string, cfg config.AlertsConfig) *Engine {
	return &Engine{
		battery:  battery,
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}
}

// Evaluate tests every rule against p. Rules that start firing are stored and
// delivered asynchronously; firing rules whose condition no longer holds are
// resolved.
func (e *Engine) Evaluate(p types.AgingPoint) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, rule := range e.rules {
		fires, value := evalCondition(rule.Condition, p)

		e.mu.Lock()
		a, firing := e.active[rule.Name]
		switch {
		case fires && !firing:
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if last, ok := e.lastFire[rule.Name]; ok && now.Sub(last) < cooldown {
				e.mu.Unlock()
				continue
			}
			sev := rule.Severity
			if sev == "" {
				sev = "warning"
			}
			a = &Alert{
				ID:       fmt.Sprintf("%s:%s:%d", rule.Name, e.battery, p.K),
				RuleName: rule.Name,
				Battery:  e.battery,
				Severity: sev,
				Value:    value,
				Step:     p.K,
				Message: fmt.Sprintf("[%s] %s fired on %s at step %d: %s (value %.4f)",
					sev, rule.Name, e.battery, p.K, rule.Condition, value),
				FiredAt: now,
				State:   "firing",
			}
			e.active[rule.Name] = a
			e.lastFire[rule.Name] = now
			alertCopy := *a
			e.mu.Unlock()

			slog.Warn("alerts: alert fired",
				"rule", rule.Name, "battery", e.battery, "value", value, "severity", sev)
			e.dispatch(&alertCopy)

		case !fires && firing:
			resolved := now
			a.State = "resolved"
			a.ResolvedAt = &resolved
			delete(e.active, rule.Name)
			alertCopy := *a
			e.mu.Unlock()

			slog.Info("alerts: alert resolved", "rule", rule.Name, "battery", e.battery)
			e.dispatch(&alertCopy)

		default:
			e.mu.Unlock()
		}
	}
}

// Active returns copies of the currently firing alerts.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	return out
}

// Wait blocks until every webhook delivery started so far has finished.
func (e *Engine) Wait() { e.inflight.Wait() }

func (e *Engine) dispatch(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.deliver(a)
	}()
}
