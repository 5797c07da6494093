// A miniature Odoo-shaped server wired up with the instrumentation. It
// exposes the same seams a real host would (application slot, bus slot,
// dispatcher registry, model registry), runs PostLoad against them and then
// serves a handful of endpoints that exercise the traced paths.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mattn/go-sqlite3"
	"github.com/newrelic/go-agent/v3/newrelic"

	odoonewrelic "github.com/QuatraInternational/odoo-newrelic"
	"github.com/QuatraInternational/odoo-newrelic/domain"
	"github.com/QuatraInternational/odoo-newrelic/pkg/nrsql"
)

func main() {
	nrsql.Register("sqlite3-nr", &sqlite3.SQLiteDriver{}, nrsql.WithProduct(newrelic.DatastoreSQLite))
	db, err := sql.Open("sqlite3-nr", "file:odoo-demo?cache=shared&mode=memory")
	if err != nil {
		log.Fatalf("failed to open instrumented db connection: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS res_partner (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		log.Fatalf("failed to create table: %v", err)
	}
	for i := 1; i <= 10; i++ {
		if _, err := db.ExecContext(ctx, `INSERT INTO res_partner (name) VALUES (?)`, fmt.Sprintf("Partner %d", i)); err != nil {
			log.Fatalf("failed to seed table: %v", err)
		}
	}

	models := newModelRegistry(db)

	r := chi.NewRouter()
	r.Get("/", helloHandler)
	r.Get("/partners", partnersHandler(models))
	r.Get("/partners/slow", slowPartnersHandler(models))
	r.Get("/n-plus-one", nPlusOneHandler(db))
	r.Get("/error", erroringHandler)

	host := &domain.Host{
		Application: &appSlot{app: r},
		Bus:         &busSlot{dispatch: dispatchNotifications},
		Dispatchers: newDispatcherRegistry(),
		Models:      models,
	}

	inst := odoonewrelic.PostLoad(host)
	defer inst.Shutdown(5 * time.Second)

	mux := http.NewServeMux()
	mux.Handle("/", host.Application.App())
	mux.Handle("/newrelic/status", inst.StatusHandler())
	mux.Handle("/metrics", inst.StatusHandler())

	// Fire the bus dispatch periodically, the way a websocket gateway would.
	go func() {
		bus := host.Bus.Dispatch()
		for range time.Tick(10 * time.Second) {
			if err := bus(context.Background()); err != nil {
				log.Printf("bus dispatch: %v", err)
			}
		}
	}()

	log.Println("Starting demo server on :8069")
	log.Println("Partners endpoint: http://localhost:8069/partners")
	log.Println("N+1 test endpoint: http://localhost:8069/n-plus-one")
	log.Println("Error test endpoint: http://localhost:8069/error")
	log.Println("Status endpoint: http://localhost:8069/newrelic/status")
	log.Println("Prometheus endpoint: http://localhost:8069/metrics")

	if err := http.ListenAndServe(":8069", mux); err != nil {
		log.Fatalf("could not start server: %v", err)
	}
}

// --- host seams ---

type appSlot struct {
	mu  sync.Mutex
	app http.Handler
}

func (s *appSlot) App() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app
}

func (s *appSlot) SetApp(h http.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app = h
	return nil
}

type busSlot struct {
	mu       sync.Mutex
	dispatch domain.BusDispatch
}

func (b *busSlot) Dispatch() domain.BusDispatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dispatch
}

func (b *busSlot) SetDispatch(d domain.BusDispatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dispatch = d
}

func dispatchNotifications(ctx context.Context) error {
	time.Sleep(5 * time.Millisecond)
	return nil
}

// --- dispatchers ---

type httpDispatcher struct {
	kind string
}

func (d *httpDispatcher) Kind() string { return d.kind }

func (d *httpDispatcher) HandleError(ctx context.Context, err error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code, ok := domain.HTTPStatusCode(err); ok {
			http.Error(w, err.Error(), code)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
	})
}

type dispatcherRegistry struct {
	mu          sync.Mutex
	dispatchers map[string]domain.Dispatcher
}

func newDispatcherRegistry() *dispatcherRegistry {
	return &dispatcherRegistry{dispatchers: map[string]domain.Dispatcher{
		"http":    &httpDispatcher{kind: "http"},
		"jsonrpc": &httpDispatcher{kind: "jsonrpc"},
	}}
}

func (r *dispatcherRegistry) Dispatcher(kind string) (domain.Dispatcher, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dispatchers[kind]
	return d, ok
}

func (r *dispatcherRegistry) Replace(kind string, d domain.Dispatcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dispatchers[kind]; !ok {
		return fmt.Errorf("unknown dispatcher kind %q", kind)
	}
	r.dispatchers[kind] = d
	return nil
}

// --- a toy model registry ---

// modelRegistry dispatches every model method call through the interceptor
// chain registered for it, the way the host ORM would.
type modelRegistry struct {
	mu    sync.Mutex
	db    *sql.DB
	hooks map[string][]domain.MethodInterceptor
}

func newModelRegistry(db *sql.DB) *modelRegistry {
	return &modelRegistry{db: db, hooks: map[string][]domain.MethodInterceptor{}}
}

func (m *modelRegistry) AddMethodHook(model, method string, ic domain.MethodInterceptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := model + "." + method
	m.hooks[key] = append(m.hooks[key], ic)
	return nil
}

func (m *modelRegistry) call(ctx context.Context, model, method string, impl domain.MethodCall, args ...any) (any, error) {
	m.mu.Lock()
	chain := m.hooks[model+"."+method]
	m.mu.Unlock()

	call := impl
	for i := len(chain) - 1; i >= 0; i-- {
		call = chain[i](call)
	}
	return call(ctx, args...)
}

func (m *modelRegistry) searchPartners(ctx context.Context) ([]string, error) {
	res, err := m.call(ctx, "BaseModel", "search", func(ctx context.Context, args ...any) (any, error) {
		rows, err := m.db.QueryContext(ctx, "SELECT name FROM res_partner")
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var names []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, err
			}
			names = append(names, name)
		}
		return names, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

// --- handlers ---

func helloHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "Hello from the demo Odoo host!")
}

func partnersHandler(models *modelRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := models.searchPartners(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, name := range names {
			fmt.Fprintln(w, name)
		}
	}
}

func slowPartnersHandler(models *modelRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(600 * time.Millisecond)
		partnersHandler(models)(w, r)
	}
}

func erroringHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintln(w, "This endpoint always returns an error.")
}

func nPlusOneHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		for id := 1; id <= 10; id++ {
			var name string
			_ = db.QueryRowContext(ctx, "SELECT name FROM res_partner WHERE id = ?", id).Scan(&name)
		}
		fmt.Fprintln(w, "Executed 10 per-record queries.")
	}
}
