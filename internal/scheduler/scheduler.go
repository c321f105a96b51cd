// Package scheduler implementa el bucle de tareas cooperativo de un único
// hilo descrito en §4.2: un conjunto de tareas periódicas con prioridad,
// ejecutadas en orden estable dentro de cada tick, con reintento por
// backoff lineal.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/domain"
)

// TaskFunc es el trabajo que ejecuta una tarea programada en un tick en el
// que está vencida.
type TaskFunc func(ctx context.Context) error

// DefaultTasks reproduce la tabla de tareas por defecto del sistema
// original: nombre, intervalo, prioridad, reintentos máximos y el retardo
// base de backoff lineal.
func DefaultTasks() []domain.ScheduledTask {
	return []domain.ScheduledTask{
		{Name: "risk_check", Interval: 10 * time.Second, Priority: domain.PriorityCritical, MaxRetries: 3, RetryDelay: 5 * time.Second, Enabled: true},
		{Name: "price_update", Interval: 30 * time.Second, Priority: domain.PriorityHigh, MaxRetries: 3, RetryDelay: 5 * time.Second, Enabled: true},
		{Name: "order_monitor", Interval: 15 * time.Second, Priority: domain.PriorityHigh, MaxRetries: 3, RetryDelay: 5 * time.Second, Enabled: true},
		{Name: "market_scan", Interval: 300 * time.Second, Priority: domain.PriorityNormal, MaxRetries: 3, RetryDelay: 5 * time.Second, Enabled: true},
		{Name: "forecast_update", Interval: 900 * time.Second, Priority: domain.PriorityNormal, MaxRetries: 3, RetryDelay: 5 * time.Second, Enabled: true},
		{Name: "trading_cycle", Interval: 120 * time.Second, Priority: domain.PriorityNormal, MaxRetries: 3, RetryDelay: 5 * time.Second, Enabled: true},
		{Name: "status_broadcast", Interval: 5 * time.Second, Priority: domain.PriorityLow, MaxRetries: 3, RetryDelay: 5 * time.Second, Enabled: true},
		{Name: "metrics_log", Interval: 60 * time.Second, Priority: domain.PriorityLow, MaxRetries: 3, RetryDelay: 5 * time.Second, Enabled: true},
	}
}

// TaskResult es el resultado de ejecutar una tarea en un tick.
type TaskResult struct {
	Name string
	Err  error
}

type entry struct {
	task domain.ScheduledTask
	fn   TaskFunc
}

// Scheduler ejecuta tareas registradas en orden de prioridad dentro de cada
// tick, nunca en paralelo entre sí — el motor entero corre en un solo
// goroutine lógico, igual que el resto de la orquestación.
type Scheduler struct {
	clock    clock.Clock
	tickRate time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	order   []string // orden de registro, para desempate estable entre iguales prioridades
	paused  bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New crea un Scheduler que sondea cada tickRate para encontrar tareas vencidas.
func New(c clock.Clock, tickRate time.Duration) *Scheduler {
	return &Scheduler{
		clock:    c,
		tickRate: tickRate,
		entries:  make(map[string]*entry),
	}
}

// Register añade una tarea con su función de trabajo. NextDue se inicializa
// a ahora + Interval, de forma que la tarea no se ejecuta inmediatamente al
// arrancar.
func (s *Scheduler) Register(task domain.ScheduledTask, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.NextDue.IsZero() {
		task.NextDue = s.clock.Now().Add(task.Interval)
	}
	if _, exists := s.entries[task.Name]; !exists {
		s.order = append(s.order, task.Name)
	}
	s.entries[task.Name] = &entry{task: task, fn: fn}
}

// Enable activa una tarea registrada, marcándola como debida de inmediato.
func (s *Scheduler) Enable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.task.Enabled = true
		e.task.NextDue = s.clock.Now()
	}
}

// Disable desactiva una tarea registrada sin perder su estado acumulado.
func (s *Scheduler) Disable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.task.Enabled = false
	}
}

// Pause detiene la ejecución de todas las tareas en ticks subsiguientes sin
// alterar NextDue: al reanudar, cualquier tarea que venció durante la pausa
// corre inmediatamente en el siguiente tick.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume reanuda la ejecución de tareas.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// IsPaused indica si el scheduler está en pausa.
func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Task devuelve una copia del estado de una tarea registrada.
func (s *Scheduler) Task(name string) (domain.ScheduledTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return domain.ScheduledTask{}, false
	}
	return e.task, true
}

// Tasks devuelve una copia del estado de todas las tareas registradas, en
// orden de registro.
func (s *Scheduler) Tasks() []domain.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ScheduledTask, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name].task)
	}
	return out
}

// Tick ejecuta, en orden de prioridad ascendente (ties resueltos por orden
// de registro), todas las tareas vencidas en `now`. Devuelve el resultado de
// cada ejecución. Si el scheduler está en pausa, no ejecuta nada.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []TaskResult {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return nil
	}
	due := make([]*entry, 0)
	for _, name := range s.order {
		e := s.entries[name]
		if e.task.IsDue(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].task.Priority < due[j].task.Priority })

	results := make([]TaskResult, 0, len(due))
	for _, e := range due {
		err := s.execute(ctx, e, now)
		results = append(results, TaskResult{Name: e.task.Name, Err: err})
	}
	return results
}

// execute corre una tarea vencida y actualiza su estado según el resultado:
// éxito reinicia el contador de errores y reprograma a now+Interval; fallo
// incrementa el contador y reprograma con backoff lineal
// now + RetryDelay*min(ErrorCount, MaxRetries).
func (s *Scheduler) execute(ctx context.Context, e *entry, now time.Time) error {
	err := e.fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	e.task.LastRun = now
	e.task.RunCount++

	if err != nil {
		e.task.ErrorCount++
		e.task.LastError = err.Error()
		retries := e.task.ErrorCount
		if retries > e.task.MaxRetries {
			retries = e.task.MaxRetries
		}
		e.task.NextDue = now.Add(e.task.RetryDelay * time.Duration(retries))
		slog.Warn("scheduled task failed", "task", e.task.Name, "error_count", e.task.ErrorCount, "err", err)
		return err
	}

	e.task.ErrorCount = 0
	e.task.LastError = ""
	e.task.NextDue = now.Add(e.task.Interval)
	return nil
}

// Start arranca el bucle de ticks en tiempo real, sondeando cada tickRate
// hasta que ctx se cancele o Stop sea llamado. Bloquea al llamador; se
// espera que se invoque desde su propio goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	ticker := time.NewTicker(s.tickRate)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx, s.clock.Now())
		}
	}
}

// Stop detiene un bucle arrancado con Start y espera a que termine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}
