package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"timetrack/internal/db"
	"timetrack/internal/handler"
	"timetrack/internal/realtime"
	"timetrack/internal/repository"
	"timetrack/internal/router"
	"timetrack/internal/service"
)

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type entryEnvelope struct {
	TimeEntry *struct {
		ID                 string  `json:"id"`
		Description        string  `json:"description"`
		StartTime          string  `json:"startTime"`
		EndTime            *string `json:"endTime"`
		DurationSeconds    int     `json:"durationSeconds"`
		IsRunning          bool    `json:"isRunning"`
		HourlyRateSnapshot float64 `json:"hourlyRateSnapshot"`
		ProjectID          *string `json:"projectId"`
		TaskID             *string `json:"taskId"`
	} `json:"timeEntry"`
}

type entriesEnvelope struct {
	TimeEntries []struct {
		ID string `json:"id"`
	} `json:"timeEntries"`
}

type projectEnvelope struct {
	Project struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		HourlyRate *float64 `json:"hourlyRate"`
	} `json:"project"`
}

type userEnvelope struct {
	User struct {
		ID                 string  `json:"id"`
		Email              string  `json:"email"`
		DefaultHourlyRate  float64 `json:"defaultHourlyRate"`
		IdleTimeoutSeconds int     `json:"idleTimeoutSeconds"`
	} `json:"user"`
}

type taskEnvelope struct {
	Task struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		HourlyRate *float64 `json:"hourlyRate"`
	} `json:"task"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			TimeEntry struct {
				ID string `json:"id"`
			} `json:"timeEntry"`
		} `json:"details"`
	} `json:"error"`
}

func TestTimerLifecycle(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "timer@example.com", "123456")

	// Nothing running yet: an explicit null, not a 404.
	current := getCurrent(t, engine, user.Token)
	if current.TimeEntry != nil {
		t.Fatalf("expected no running entry, got %+v", current.TimeEntry)
	}

	status, body := requestJSON(t, engine, http.MethodPost, "/api/time-entries/start", user.Token, map[string]string{
		"description": "deep work",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on start, got %d: %s", status, body)
	}
	started := decodeEntry(t, body)
	if !started.TimeEntry.IsRunning {
		t.Fatal("started entry should be running")
	}
	if started.TimeEntry.EndTime != nil {
		t.Fatalf("running entry must not have an end time, got %v", *started.TimeEntry.EndTime)
	}

	// A second start conflicts and names the running entry.
	status, body = requestJSON(t, engine, http.MethodPost, "/api/time-entries/start", user.Token, map[string]string{
		"description": "second timer",
	})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 on double start, got %d: %s", status, body)
	}
	conflict := decodeAPIError(t, body)
	if conflict.Error.Code != "timer_running" {
		t.Fatalf("expected timer_running, got %s", conflict.Error.Code)
	}
	if conflict.Error.Details.TimeEntry.ID != started.TimeEntry.ID {
		t.Fatalf("conflict details should reference entry %s, got %s",
			started.TimeEntry.ID, conflict.Error.Details.TimeEntry.ID)
	}

	current = getCurrent(t, engine, user.Token)
	if current.TimeEntry == nil || current.TimeEntry.ID != started.TimeEntry.ID {
		t.Fatalf("current should return the started entry, got %+v", current.TimeEntry)
	}

	status, body = requestJSON(t, engine, http.MethodPost, "/api/time-entries/"+started.TimeEntry.ID+"/stop", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on stop, got %d: %s", status, body)
	}
	stopped := decodeEntry(t, body)
	if stopped.TimeEntry.IsRunning {
		t.Fatal("stopped entry should not be running")
	}
	if stopped.TimeEntry.EndTime == nil {
		t.Fatal("stopped entry should have an end time")
	}
	if stopped.TimeEntry.DurationSeconds < 0 {
		t.Fatalf("negative duration: %d", stopped.TimeEntry.DurationSeconds)
	}

	// Stopping again means another device already won; reject, don't absorb.
	status, body = requestJSON(t, engine, http.MethodPost, "/api/time-entries/"+started.TimeEntry.ID+"/stop", user.Token, nil)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 on double stop, got %d: %s", status, body)
	}
	if code := decodeAPIError(t, body).Error.Code; code != "not_running" {
		t.Fatalf("expected not_running, got %s", code)
	}

	current = getCurrent(t, engine, user.Token)
	if current.TimeEntry != nil {
		t.Fatalf("expected no running entry after stop, got %+v", current.TimeEntry)
	}
}

func TestEditRules(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "edit@example.com", "123456")

	_, body := requestJSON(t, engine, http.MethodPost, "/api/time-entries/start", user.Token, map[string]string{
		"description": "initial",
	})
	entry := decodeEntry(t, body)
	entryPath := "/api/time-entries/" + entry.TimeEntry.ID

	// Times are locked while the timer runs.
	status, body := requestJSON(t, engine, http.MethodPut, entryPath, user.Token, map[string]interface{}{
		"startTime": time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 editing times of running entry, got %d: %s", status, body)
	}
	if code := decodeAPIError(t, body).Error.Code; code != "entry_running" {
		t.Fatalf("expected entry_running, got %s", code)
	}

	// The description is not.
	status, body = requestJSON(t, engine, http.MethodPut, entryPath, user.Token, map[string]interface{}{
		"description": "renamed while running",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 editing description, got %d: %s", status, body)
	}
	if got := decodeEntry(t, body).TimeEntry.Description; got != "renamed while running" {
		t.Fatalf("description not applied, got %q", got)
	}

	requestJSON(t, engine, http.MethodPost, entryPath+"/stop", user.Token, nil)

	for _, hours := range []float64{0, -1, 24.5} {
		status, body = requestJSON(t, engine, http.MethodPut, entryPath, user.Token, map[string]interface{}{
			"hours": hours,
		})
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400 for hours=%v, got %d: %s", hours, status, body)
		}
		if code := decodeAPIError(t, body).Error.Code; code != "invalid_hours" {
			t.Fatalf("expected invalid_hours for hours=%v, got %s", hours, code)
		}
	}

	// The upper bound itself is allowed.
	status, body = requestJSON(t, engine, http.MethodPut, entryPath, user.Token, map[string]interface{}{
		"hours": 24,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 for hours=24, got %d: %s", status, body)
	}
	if got := decodeEntry(t, body).TimeEntry.DurationSeconds; got != 24*3600 {
		t.Fatalf("expected %d seconds from hours=24, got %d", 24*3600, got)
	}

	// hours wins over a contradicting endTime in the same patch.
	status, body = requestJSON(t, engine, http.MethodPut, entryPath, user.Token, map[string]interface{}{
		"hours":   2,
		"endTime": time.Now().UTC().Add(10 * time.Hour).Format(time.RFC3339),
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 for hours edit, got %d: %s", status, body)
	}
	if got := decodeEntry(t, body).TimeEntry.DurationSeconds; got != 7200 {
		t.Fatalf("expected 7200 seconds from hours=2, got %d", got)
	}

	status, body = requestJSON(t, engine, http.MethodPut, entryPath, user.Token, map[string]interface{}{
		"endTime": time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339),
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for endTime before startTime, got %d: %s", status, body)
	}
	if code := decodeAPIError(t, body).Error.Code; code != "invalid_time_range" {
		t.Fatalf("expected invalid_time_range, got %s", code)
	}
}

func TestRateSnapshotIsFrozen(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "rates@example.com", "123456")

	status, body := requestJSON(t, engine, http.MethodPost, "/api/projects", user.Token, map[string]interface{}{
		"name":       "Client A",
		"hourlyRate": 40,
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 creating project, got %d: %s", status, body)
	}
	var project projectEnvelope
	if err := json.Unmarshal(body, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	status, body = requestJSON(t, engine, http.MethodPost, "/api/time-entries/start", user.Token, map[string]interface{}{
		"description": "billable",
		"projectId":   project.Project.ID,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on start, got %d: %s", status, body)
	}
	entry := decodeEntry(t, body)
	if entry.TimeEntry.HourlyRateSnapshot != 40 {
		t.Fatalf("expected snapshot 40, got %v", entry.TimeEntry.HourlyRateSnapshot)
	}

	// Raising the project rate mid-entry must not touch the snapshot.
	status, body = requestJSON(t, engine, http.MethodPut, "/api/projects/"+project.Project.ID, user.Token, map[string]interface{}{
		"hourlyRate": 60,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 updating project, got %d: %s", status, body)
	}

	status, body = requestJSON(t, engine, http.MethodPost, "/api/time-entries/"+entry.TimeEntry.ID+"/stop", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on stop, got %d: %s", status, body)
	}
	if got := decodeEntry(t, body).TimeEntry.HourlyRateSnapshot; got != 40 {
		t.Fatalf("snapshot changed after rate update: got %v, want 40", got)
	}

	// A fresh entry picks up the new rate.
	status, body = requestJSON(t, engine, http.MethodPost, "/api/time-entries/start", user.Token, map[string]interface{}{
		"projectId": project.Project.ID,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on second start, got %d: %s", status, body)
	}
	if got := decodeEntry(t, body).TimeEntry.HourlyRateSnapshot; got != 60 {
		t.Fatalf("expected snapshot 60 for new entry, got %v", got)
	}
}

func TestAssignmentEditRefreezesSnapshot(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "refreeze@example.com", "123456")

	_, body := requestJSON(t, engine, http.MethodPost, "/api/projects", user.Token, map[string]interface{}{
		"name":       "Client B",
		"hourlyRate": 40,
	})
	var project projectEnvelope
	if err := json.Unmarshal(body, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	status, body := requestJSON(t, engine, http.MethodPost, "/api/projects/"+project.Project.ID+"/tasks", user.Token, map[string]interface{}{
		"name":       "Design review",
		"hourlyRate": 60,
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 creating task, got %d: %s", status, body)
	}
	var task taskEnvelope
	if err := json.Unmarshal(body, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	_, body = requestJSON(t, engine, http.MethodPost, "/api/time-entries/start", user.Token, map[string]interface{}{
		"projectId": project.Project.ID,
	})
	entry := decodeEntry(t, body)
	if entry.TimeEntry.HourlyRateSnapshot != 40 {
		t.Fatalf("expected project rate snapshot 40, got %v", entry.TimeEntry.HourlyRateSnapshot)
	}
	entryPath := "/api/time-entries/" + entry.TimeEntry.ID
	requestJSON(t, engine, http.MethodPost, entryPath+"/stop", user.Token, nil)

	// Assigning the task re-resolves the chain; the task rate now wins.
	status, body = requestJSON(t, engine, http.MethodPut, entryPath, user.Token, map[string]interface{}{
		"taskId": task.Task.ID,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 assigning task, got %d: %s", status, body)
	}
	if got := decodeEntry(t, body).TimeEntry.HourlyRateSnapshot; got != 60 {
		t.Fatalf("expected snapshot 60 after task assignment, got %v", got)
	}

	// A later task rate change must not leak into the frozen entry.
	status, body = requestJSON(t, engine, http.MethodPut, "/api/tasks/"+task.Task.ID, user.Token, map[string]interface{}{
		"hourlyRate": 90,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 updating task, got %d: %s", status, body)
	}

	status, body = requestJSON(t, engine, http.MethodGet, "/api/time-entries?limit=10", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 listing entries, got %d: %s", status, body)
	}
	var listed struct {
		TimeEntries []struct {
			ID                 string  `json:"id"`
			HourlyRateSnapshot float64 `json:"hourlyRateSnapshot"`
		} `json:"timeEntries"`
	}
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("unmarshal entries: %v", err)
	}
	for _, got := range listed.TimeEntries {
		if got.ID == entry.TimeEntry.ID && got.HourlyRateSnapshot != 60 {
			t.Fatalf("snapshot changed after task rate update: got %v, want 60", got.HourlyRateSnapshot)
		}
	}
}

func TestUserIsolation(t *testing.T) {
	engine := setupTestEngine(t)
	alice := registerUser(t, engine, "alice@example.com", "123456")
	bob := registerUser(t, engine, "bob@example.com", "123456")

	_, body := requestJSON(t, engine, http.MethodPost, "/api/time-entries/start", alice.Token, map[string]string{
		"description": "alice works",
	})
	aliceEntry := decodeEntry(t, body)

	// Bob cannot see or touch Alice's entry; not-owned reads as not-found.
	status, body := requestJSON(t, engine, http.MethodPost, "/api/time-entries/"+aliceEntry.TimeEntry.ID+"/stop", bob.Token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 stopping someone else's entry, got %d: %s", status, body)
	}

	status, body = requestJSON(t, engine, http.MethodGet, "/api/time-entries?limit=10", bob.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 listing entries, got %d: %s", status, body)
	}
	var bobEntries entriesEnvelope
	if err := json.Unmarshal(body, &bobEntries); err != nil {
		t.Fatalf("unmarshal entries: %v", err)
	}
	if len(bobEntries.TimeEntries) != 0 {
		t.Fatalf("expected no entries for bob, got %d", len(bobEntries.TimeEntries))
	}

	current := getCurrent(t, engine, bob.Token)
	if current.TimeEntry != nil {
		t.Fatalf("bob should have nothing running, got %+v", current.TimeEntry)
	}
}

func TestUserSettingsRoundTrip(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "settings@example.com", "123456")

	status, body := requestJSON(t, engine, http.MethodGet, "/api/me", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for me, got %d: %s", status, body)
	}
	me := decodeUser(t, body)
	if me.User.IdleTimeoutSeconds != 600 {
		t.Fatalf("expected default idle timeout 600, got %d", me.User.IdleTimeoutSeconds)
	}

	status, body = requestJSON(t, engine, http.MethodPut, "/api/me/settings", user.Token, map[string]interface{}{
		"defaultHourlyRate":  25,
		"idleTimeoutSeconds": 120,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 updating settings, got %d: %s", status, body)
	}

	// A fresh fetch must reflect the stored settings so other devices can
	// pick up the new idle threshold.
	status, body = requestJSON(t, engine, http.MethodGet, "/api/me", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for me, got %d: %s", status, body)
	}
	me = decodeUser(t, body)
	if me.User.IdleTimeoutSeconds != 120 {
		t.Fatalf("expected idle timeout 120 after update, got %d", me.User.IdleTimeoutSeconds)
	}
	if me.User.DefaultHourlyRate != 25 {
		t.Fatalf("expected default rate 25 after update, got %v", me.User.DefaultHourlyRate)
	}

	status, body = requestJSON(t, engine, http.MethodPut, "/api/me/settings", user.Token, map[string]interface{}{
		"idleTimeoutSeconds": 30,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for sub-minute idle timeout, got %d: %s", status, body)
	}
	if code := decodeAPIError(t, body).Error.Code; code != "invalid_idle_timeout" {
		t.Fatalf("expected invalid_idle_timeout, got %s", code)
	}
}

func TestDeleteEntry(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "delete@example.com", "123456")

	start := time.Now().UTC().Add(-2 * time.Hour)
	end := start.Add(time.Hour)
	status, body := requestJSON(t, engine, http.MethodPost, "/api/time-entries", user.Token, map[string]interface{}{
		"description": "manual entry",
		"startTime":   start.Format(time.RFC3339),
		"endTime":     end.Format(time.RFC3339),
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 creating manual entry, got %d: %s", status, body)
	}
	entry := decodeEntry(t, body)
	if entry.TimeEntry.DurationSeconds != 3600 {
		t.Fatalf("expected 3600 seconds, got %d", entry.TimeEntry.DurationSeconds)
	}

	status, _ = requestJSON(t, engine, http.MethodDelete, "/api/time-entries/"+entry.TimeEntry.ID, user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", status)
	}

	status, body = requestJSON(t, engine, http.MethodDelete, "/api/time-entries/"+entry.TimeEntry.ID, user.Token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d: %s", status, body)
	}
}

func TestCORSPreflight(t *testing.T) {
	engine := setupTestEngine(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	recorder := httptest.NewRecorder()

	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: %s", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
}

func setupTestEngine(t *testing.T) http.Handler {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	if err := db.RunMigrations(database, migrationsDir); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	userRepo := repository.NewUserRepository(database)
	entryRepo := repository.NewEntryRepository(database)
	projectRepo := repository.NewProjectRepository(database)
	taskRepo := repository.NewTaskRepository(database)

	authService := service.NewAuthService(userRepo, "test-secret", 24*time.Hour)
	hub := realtime.NewHub(authService, nil)
	t.Cleanup(hub.CloseAll)

	timerService := service.NewTimerService(entryRepo, projectRepo, taskRepo, userRepo, hub)
	projectService := service.NewProjectService(projectRepo, taskRepo, hub)
	taskService := service.NewTaskService(taskRepo, projectRepo, hub)

	authHandler := handler.NewAuthHandler(authService)
	entryHandler := handler.NewEntryHandler(timerService)
	projectHandler := handler.NewProjectHandler(projectService, taskService)

	return router.New(authService, authHandler, entryHandler, projectHandler, hub, []string{"http://localhost:5173"})
}

func registerUser(t *testing.T, server http.Handler, email, password string) authResponse {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s failed with status %d: %s", email, status, string(body))
	}
	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("empty token for user %s", email)
	}
	return resp
}

func getCurrent(t *testing.T, server http.Handler, token string) entryEnvelope {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodGet, "/api/time-entries/current", token, nil)
	if status != http.StatusOK {
		t.Fatalf("get current failed with status %d: %s", status, string(body))
	}
	return decodeEntry(t, body)
}

func decodeUser(t *testing.T, body []byte) userEnvelope {
	t.Helper()
	var resp userEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal user envelope: %v (%s)", err, string(body))
	}
	return resp
}

func decodeEntry(t *testing.T, body []byte) entryEnvelope {
	t.Helper()
	var resp entryEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal entry envelope: %v (%s)", err, string(body))
	}
	return resp
}

func decodeAPIError(t *testing.T, body []byte) apiErrorEnvelope {
	t.Helper()
	var resp apiErrorEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(body))
	}
	return resp
}

func requestJSON(
	t *testing.T,
	server http.Handler,
	method, path, token string,
	body interface{},
) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		payload = raw
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder.Code, recorder.Body.Bytes()
}
