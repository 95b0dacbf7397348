//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/ogurasousui/codex-hr-provisioning/internal/adapters/identity/gotrue"
	repo "github.com/ogurasousui/codex-hr-provisioning/internal/adapters/repository/postgres"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/employee"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/identity"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/provisioning"
	"github.com/ogurasousui/codex-hr-provisioning/internal/platform/config"
	pg "github.com/ogurasousui/codex-hr-provisioning/internal/platform/db/postgres"
	"github.com/sirupsen/logrus"
)

const migrationsDir = "../assets/migrations"

func TestEmployeeProvisioningIntegration(t *testing.T) {
	dbCfg, err := config.LoadDatabase(configPathFromEnv())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if err := resetMigrations(dbCfg.DSN(), migrationsDir); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	ctx := context.Background()
	pool, err := pg.NewPool(ctx, *dbCfg, nil)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	authServer := newFakeGoTrue()
	srv := httptest.NewServer(authServer)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	directory, err := gotrue.New(gotrue.Config{URL: srv.URL, ServiceKey: "integration-key", CreateTimeout: 5 * time.Second}, gotrue.WithLogger(log))
	if err != nil {
		t.Fatalf("failed to create identity client: %v", err)
	}

	employeeRepo := repo.NewEmployeeRepository(pool)
	saga := provisioning.New(directory, employeeRepo, provisioning.WithLogger(log), provisioning.WithVerifyPolicy(3, 10*time.Millisecond))
	svc := employee.NewService(employeeRepo, directory, nil, pg.NewTransactionManager(pool), log)

	res := saga.Provision(ctx, provisioning.Input{Name: "Integration", Email: " Integration@Example.com ", Password: "secret123"})
	if !res.Succeeded() {
		t.Fatalf("Provision failed: %s %v", res.Outcome, res.Err)
	}
	created := res.Employee
	if created.Email != "integration@example.com" || created.Role != employee.RoleEmployee || !created.IsActive {
		t.Fatalf("unexpected defaults: %+v", created)
	}

	dup := saga.Provision(ctx, provisioning.Input{Name: "Again", Email: "INTEGRATION@example.com", Password: "secret123"})
	if dup.Outcome != provisioning.OutcomeDuplicate || dup.Conflict != provisioning.ConflictDirectory {
		t.Fatalf("expected directory-side duplicate, got %s/%s", dup.Outcome, dup.Conflict)
	}

	// 一意制約による競合: 事前確認をすり抜けた場合でもアカウントは削除される
	authServer.setAllowDuplicates(true)
	raced, err := employeeRepo.Create(ctx, &employee.Employee{
		ID:       "6a1b2c3d-0000-4000-8000-000000000001",
		Email:    "Race@Example.com",
		Name:     "Winner",
		Role:     employee.RoleEmployee,
		HireDate: time.Now().UTC(),
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("seed row failed: %v", err)
	}
	loser := saga.Provision(ctx, provisioning.Input{Name: "Loser", Email: "race@example.com", Password: "secret123"})
	if loser.Outcome != provisioning.OutcomeDuplicate {
		t.Fatalf("expected duplicate for %s, got %s", raced.Email, loser.Outcome)
	}
	if loser.IdentityID != "" {
		if _, err := directory.Get(ctx, loser.IdentityID); !errors.Is(err, identity.ErrNotFound) {
			t.Fatalf("expected orphan identity to be deleted, got %v", err)
		}
	}

	newName := "Updated"
	updated, err := svc.UpdateEmployee(ctx, employee.UpdateEmployeeInput{ID: created.ID, Name: &newName})
	if err != nil {
		t.Fatalf("UpdateEmployee error: %v", err)
	}
	if updated.Name != newName {
		t.Fatalf("update not applied: %+v", updated)
	}

	deleted, err := svc.DeleteEmployee(ctx, employee.DeleteEmployeeInput{ID: created.ID})
	if err != nil {
		t.Fatalf("DeleteEmployee error: %v", err)
	}
	if deleted.ID != created.ID {
		t.Fatalf("unexpected deleted row: %+v", deleted)
	}

	if _, err := employeeRepo.FindByID(ctx, created.ID); !errors.Is(err, employee.ErrEmployeeNotFound) {
		t.Fatalf("expected ErrEmployeeNotFound, got %v", err)
	}
	if _, err := directory.Get(ctx, created.ID); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected identity to be deleted, got %v", err)
	}
}

func resetMigrations(dsn, dir string) error {
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func configPathFromEnv() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "../assets/local.yaml"
}

// fakeGoTrue は管理 API の最小限のインメモリ実装です。
type fakeGoTrue struct {
	mu              sync.Mutex
	users           map[string]map[string]any
	seq             int
	allowDuplicates bool
}

func newFakeGoTrue() *fakeGoTrue {
	return &fakeGoTrue{users: make(map[string]map[string]any)}
}

func (f *fakeGoTrue) setAllowDuplicates(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowDuplicates = v
}

func (f *fakeGoTrue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const base = "/auth/v1/admin/users"
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, base), "/")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && id == "":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		email, _ := body["email"].(string)
		if !f.allowDuplicates {
			for _, u := range f.users {
				if strings.EqualFold(u["email"].(string), email) {
					w.WriteHeader(http.StatusUnprocessableEntity)
					_, _ = io.WriteString(w, `{"msg":"A user with this email address has already been registered"}`)
					return
				}
			}
		}
		f.seq++
		newID := fmt.Sprintf("5b0c0000-0000-4000-8000-%012d", f.seq)
		user := map[string]any{"id": newID, "email": email, "user_metadata": body["user_metadata"], "email_confirmed_at": time.Now().UTC()}
		f.users[newID] = user
		_ = json.NewEncoder(w).Encode(user)
	case r.Method == http.MethodGet && id == "":
		users := make([]map[string]any, 0, len(f.users))
		if r.URL.Query().Get("page") == "1" {
			for _, u := range f.users {
				users = append(users, u)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"users": users})
	case r.Method == http.MethodGet:
		user, ok := f.users[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"msg":"User not found"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(user)
	case r.Method == http.MethodPut:
		user, ok := f.users[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if email, ok := body["email"].(string); ok {
			user["email"] = email
		}
		if meta, ok := body["user_metadata"]; ok {
			user["user_metadata"] = meta
		}
		_ = json.NewEncoder(w).Encode(user)
	case r.Method == http.MethodDelete:
		if _, ok := f.users[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.users, id)
		_, _ = io.WriteString(w, `{}`)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
