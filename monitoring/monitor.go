// Package monitoring turns live timer engines into a small web server, so
// that a long-running test session can be inspected and driven from outside
// the process.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/faketimers/timers"
)

// portEnvVar names the environment variable that selects the server port
// when WithPortNumber is not used. It is also read from a .env file in the
// working directory.
const portEnvVar = "FAKETIMERS_MONITOR_PORT"

// Monitor can turn a set of timer engines into a server and allows
// external inspection and driving of virtual time.
//
// The engines themselves are single-threaded; the monitor is meant for
// interactive sessions where the process is otherwise idle, not for use
// while a test is concurrently driving the same engine.
type Monitor struct {
	portNumber int
	url        string

	engineNames []string
	engines     map[string]*timers.Engine
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		engines: make(map[string]*timers.Engine),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterEngine registers an engine under the given name. An empty name is
// replaced with a generated one.
func (m *Monitor) RegisterEngine(name string, e *timers.Engine) {
	if name == "" {
		name = "Engine" + timers.GetIDGenerator().Generate()
	}

	if _, ok := m.engines[name]; ok {
		panic("engine " + name + " already registered")
	}

	m.engineNames = append(m.engineNames, name)
	m.engines[name] = e
}

// StartServer starts the monitor as a web server, on the configured port, a
// port taken from FAKETIMERS_MONITOR_PORT (environment or .env file), or a
// random port, in that order.
func (m *Monitor) StartServer() {
	r := m.createRouter()
	http.Handle("/", r)

	actualPort := ":0"
	if port := m.resolvePort(); port > 1000 {
		actualPort = ":" + strconv.Itoa(port)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.url = fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring timer engines with %s\n", m.url)

	atexit.Register(func() { _ = listener.Close() })

	go func() {
		serveErr := http.Serve(listener, nil)
		if !errors.Is(serveErr, net.ErrClosed) {
			dieOnErr(serveErr)
		}
	}()
}

// OpenStatusPage opens the monitor's status page in the default browser.
// StartServer must have been called first.
func (m *Monitor) OpenStatusPage() {
	if m.url == "" {
		panic("monitor server is not started")
	}

	err := browser.OpenURL(m.url)
	dieOnErr(err)
}

func (m *Monitor) resolvePort() int {
	if m.portNumber != 0 {
		return m.portNumber
	}

	_ = godotenv.Load()

	portStr := os.Getenv(portEnvVar)
	if portStr == "" {
		return 0
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1000 {
		fmt.Fprintf(os.Stderr,
			"Ignoring invalid %s=%q. Using a random port instead.\n",
			portEnvVar, portStr)
		return 0
	}

	return port
}

func (m *Monitor) createRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/engines", m.listEngines)
	r.HandleFunc("/api/now/{engine}", m.now)
	r.HandleFunc("/api/timers/{engine}", m.listTimers)
	r.HandleFunc("/api/timer/{engine}/{handle}", m.timerDetails)
	r.HandleFunc("/api/engine/{engine}", m.engineDetails)
	r.HandleFunc("/api/advance/{engine}/{delta}", m.advance)
	r.HandleFunc("/api/tick/{engine}", m.tick)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/", m.statusPage)

	return r
}

func (m *Monitor) listEngines(w http.ResponseWriter, _ *http.Request) {
	bytes, err := json.Marshal(m.engineNames)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, r *http.Request) {
	engine := m.findEngineOr404(w, mux.Vars(r)["engine"])
	if engine == nil {
		return
	}

	fmt.Fprintf(w, "{\"now\":\"%s\"}", engine.CurrentTime())
}

type timerSummary struct {
	Handle   uint32 `json:"handle"`
	Name     string `json:"name"`
	Period   string `json:"period"`
	Behavior string `json:"behavior"`
	Active   bool   `json:"active"`
	Expiry   string `json:"expiry,omitempty"`
}

func (m *Monitor) summarize(
	engine *timers.Engine,
	h timers.Handle,
) timerSummary {
	s := timerSummary{
		Handle:   uint32(h),
		Name:     engine.Name(h),
		Period:   engine.Period(h).String(),
		Behavior: engine.Behavior(h).String(),
		Active:   engine.IsActive(h),
	}

	if s.Active {
		s.Expiry = engine.ExpiryTime(h).String()
	}

	return s
}

func (m *Monitor) listTimers(w http.ResponseWriter, r *http.Request) {
	engine := m.findEngineOr404(w, mux.Vars(r)["engine"])
	if engine == nil {
		return
	}

	summaries := make([]timerSummary, 0)
	for _, h := range engine.Handles() {
		summaries = append(summaries, m.summarize(engine, h))
	}

	bytes, err := json.Marshal(summaries)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) timerDetails(w http.ResponseWriter, r *http.Request) {
	engine := m.findEngineOr404(w, mux.Vars(r)["engine"])
	if engine == nil {
		return
	}

	handleNumber, err := strconv.Atoi(mux.Vars(r)["handle"])
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	handle := m.findTimerOr404(w, engine, handleNumber)
	if handle == timers.InvalidHandle {
		return
	}

	bytes, err := json.Marshal(m.summarize(engine, handle))
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) engineDetails(w http.ResponseWriter, r *http.Request) {
	engine := m.findEngineOr404(w, mux.Vars(r)["engine"])
	if engine == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(engine)
	serializer.SetMaxDepth(2)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) advance(w http.ResponseWriter, r *http.Request) {
	engine := m.findEngineOr404(w, mux.Vars(r)["engine"])
	if engine == nil {
		return
	}

	delta, err := time.ParseDuration(mux.Vars(r)["delta"])
	if err != nil || delta < 0 {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Invalid delta %q", mux.Vars(r)["delta"])
		return
	}

	engine.MoveTimeForward(delta)

	fmt.Fprintf(w, "{\"now\":\"%s\"}", engine.CurrentTime())
}

func (m *Monitor) tick(w http.ResponseWriter, r *http.Request) {
	engine := m.findEngineOr404(w, mux.Vars(r)["engine"])
	if engine == nil {
		return
	}

	engine.Tick()

	fmt.Fprintf(w, "{\"now\":\"%s\"}", engine.CurrentTime())
}

func (m *Monitor) statusPage(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w,
		"<html><head><title>FakeTimers Monitor</title></head><body>")
	fmt.Fprint(w, "<h1>Timer Engines</h1><ul>")

	for _, name := range m.engineNames {
		engine := m.engines[name]
		fmt.Fprintf(w, "<li><a href=\"/api/timers/%s\">%s</a> @ %s</li>",
			name, name, engine.CurrentTime())
	}

	fmt.Fprint(w, "</ul></body></html>")
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	bytes, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) findEngineOr404(
	w http.ResponseWriter,
	name string,
) *timers.Engine {
	engine := m.engines[name]
	if engine == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Engine not found"))
		dieOnErr(err)
	}

	return engine
}

func (m *Monitor) findTimerOr404(
	w http.ResponseWriter,
	engine *timers.Engine,
	handleNumber int,
) timers.Handle {
	for _, h := range engine.Handles() {
		if int(h) == handleNumber {
			return h
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Timer not found"))
	dieOnErr(err)

	return timers.InvalidHandle
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
