package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tepel-chen/demil/internal/model"
	"github.com/tepel-chen/demil/internal/pack"
)

const (
	startupTimeout = 10 * time.Second
	pollInterval   = 100 * time.Millisecond
)

// lockedBuffer is a thread-safe wrapper around bytes.Buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// serverProc holds the running server subprocess and its output.
type serverProc struct {
	cmd    *exec.Cmd
	stdout *lockedBuffer
	url    string
}

var (
	builtBinary string
	buildOnce   sync.Once
	buildErr    error
)

func getBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "demil-e2e-*")
		if err != nil {
			buildErr = err
			return
		}
		binary := filepath.Join(dir, "demil")
		cmd := exec.Command("go", "build", "-o", binary, "./cmd/demil")
		cmd.Dir = findRepoRoot(t)
		out, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("go build failed: %w\n%s", err, out)
			return
		}
		builtBinary = binary
	})
	if buildErr != nil {
		t.Fatal(buildErr)
	}
	return builtBinary
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root")
		}
		dir = parent
	}
}

// writeWorkshop installs one mission pack with steam id 100.
func writeWorkshop(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	payload := pack.Payload{Missions: []model.Mission{
		{ID: "first", DisplayName: "First Bomb", Generator: &model.GeneratorSetting{
			TimeLimit:      180,
			NumStrikes:     3,
			ComponentPools: []model.ComponentPool{{Count: 3, ComponentTypes: []model.ComponentType{"Wires", "Keypad"}}},
		}},
	}}
	if _, err := pack.WriteFixture(dir, "100", pack.Manifest{ID: "starter", Title: "Starter Pack"}, payload); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}
	return dir
}

func startServer(t *testing.T, binary string, args ...string) *serverProc {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	stdout := &lockedBuffer{}
	cmd := exec.Command(binary, args...)
	cmd.Env = append(os.Environ(),
		"DEMIL_LISTEN_ADDR="+addr,
		"DEMIL_DB_PATH="+dbPath,
		"DEMIL_LOG_LEVEL=info",
		"DEMIL_WORKSHOP_DIR="+writeWorkshop(t),
		"DEMIL_TICK_INTERVAL=2ms",
	)
	cmd.Stdout = stdout
	cmd.Stderr = stdout

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	sp := &serverProc{
		cmd:    cmd,
		stdout: stdout,
		url:    "http://" + addr,
	}

	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return sp
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("server did not become ready within %v\nstdout:\n%s", startupTimeout, stdout.String())
	return nil
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}

func TestBinaryBuildsAndStarts(t *testing.T) {
	binary := getBinary(t)
	if _, err := os.Stat(binary); os.IsNotExist(err) {
		t.Fatal("binary does not exist after build")
	}

	sp := startServer(t, binary)
	if sp == nil {
		t.Fatal("server did not start")
	}
}

func TestHealthz(t *testing.T) {
	sp := startServer(t, getBinary(t))

	var body map[string]string
	if status := getJSON(t, sp.url+"/healthz", &body); status != 200 {
		t.Errorf("status = %d, want 200", status)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestMetrics(t *testing.T) {
	sp := startServer(t, getBinary(t))

	resp, err := http.Get(sp.url + "/version")
	if err != nil {
		t.Fatalf("GET /version: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(sp.url + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	for _, name := range []string{
		"demil_http_requests_total",
		"demil_http_request_duration_seconds",
		"demil_requests_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestLoadListAndStart(t *testing.T) {
	sp := startServer(t, getBinary(t))

	var entry map[string]any
	if status := getJSON(t, sp.url+"/loadMission?steamID=100", &entry); status != 200 {
		t.Fatalf("loadMission status = %d, body %v", status, entry)
	}
	if entry["ModID"] != "starter" {
		t.Errorf("ModID = %v, want starter", entry["ModID"])
	}

	var list []map[string]any
	if status := getJSON(t, sp.url+"/missions", &list); status != 200 {
		t.Fatalf("missions status = %d", status)
	}
	if len(list) != 1 || list[0]["SteamID"] != "100" {
		t.Errorf("missions = %v", list)
	}

	var started map[string]any
	if status := getJSON(t, sp.url+"/startMission?missionName=first", &started); status != 200 {
		t.Fatalf("startMission status = %d, body %v", status, started)
	}
	if started["MissionID"] != "first" || started["Seed"] != "-1" {
		t.Errorf("started = %v", started)
	}

	var failed map[string]any
	if status := getJSON(t, sp.url+"/loadMission?steamID=abc", &failed); status != 400 {
		t.Errorf("bad steam id status = %d, want 400", status)
	}
	if failed["ERROR"] != "SteamID must be numbers" {
		t.Errorf("ERROR = %v", failed["ERROR"])
	}
}

func TestRequestJournal(t *testing.T) {
	sp := startServer(t, getBinary(t))

	var v map[string]any
	getJSON(t, sp.url+"/version", &v)

	deadline := time.Now().Add(2 * time.Second)
	var page map[string]any
	for time.Now().Before(deadline) {
		getJSON(t, sp.url+"/requests", &page)
		if reqs, ok := page["Requests"].([]any); ok && len(reqs) >= 1 {
			first := reqs[len(reqs)-1].(map[string]any)
			if first["Status"] == "completed" && first["Route"] == "version" {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("version request was not journaled: %v", page)
}

func TestStructuredJSONLogs(t *testing.T) {
	sp := startServer(t, getBinary(t))

	resp, err := http.Get(sp.url + "/version")
	if err != nil {
		t.Fatalf("GET /version: %v", err)
	}
	resp.Body.Close()

	// Poll for log output with a deadline.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(sp.stdout.String(), `"msg":"request finished"`) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	found := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(sp.stdout.String()))
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		msg, _ := entry["msg"].(string)
		switch msg {
		case "request":
			for _, key := range []string{"method", "path", "status", "duration_ms"} {
				if _, ok := entry[key]; !ok {
					t.Errorf("request log missing field %q", key)
				}
			}
		case "request finished":
			for _, key := range []string{"id", "route", "status", "duration_ms"} {
				if _, ok := entry[key]; !ok {
					t.Errorf("request finished log missing field %q", key)
				}
			}
		}
		found[msg] = true
	}
	for _, msg := range []string{"request", "request accepted", "request finished"} {
		if !found[msg] {
			t.Errorf("no %q log found in stdout\noutput:\n%s", msg, sp.stdout.String())
		}
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demil.yaml")
	cfg := "host:\n  version: \"9.9.9\"\n"
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	sp := startServer(t, getBinary(t), "--config", path)

	var v map[string]any
	if status := getJSON(t, sp.url+"/version", &v); status != 200 {
		t.Fatalf("status = %d", status)
	}
	if v["Version"] != "9.9.9" {
		t.Errorf("Version = %v, want 9.9.9", v["Version"])
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := exec.Command(getBinary(t), "version").CombinedOutput()
	if err != nil {
		t.Fatalf("demil version: %v\n%s", err, out)
	}
	if strings.TrimSpace(string(out)) != "dev" {
		t.Errorf("output = %q, want dev", out)
	}
}
