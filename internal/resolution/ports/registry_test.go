package ports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timekeep/internal/platform/upstream"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/sentinel"
)

func TestStaticRegistryFromFile(t *testing.T) {
	tenant := id.TenantID(uuid.New())
	employee := id.EmployeeID(uuid.New())
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tenant.String()+":\n  ZK-001:\n    \"17\": "+employee.String()+"\n"), 0o600))

	r, err := LoadStaticRegistry(path)
	require.NoError(t, err)

	got, err := r.Lookup(context.Background(), tenant, "ZK-001", "17")
	require.NoError(t, err)
	assert.Equal(t, employee, got)

	_, err = r.Lookup(context.Background(), tenant, "ZK-001", "18")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = r.Lookup(context.Background(), id.TenantID(uuid.New()), "ZK-001", "17")
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "mappings never cross tenants")
}

func TestHTTPRegistry(t *testing.T) {
	tenant := id.TenantID(uuid.New())
	employee := id.EmployeeID(uuid.New())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/tenants/"+tenant.String()+"/devices/ZK-001/users/17" {
			_, _ = w.Write([]byte(`{"employee_id":"` + employee.String() + `"}`))
			return
		}
		if r.URL.Path == "/v1/tenants/"+tenant.String()+"/devices/ZK-001/users/bad" {
			_, _ = w.Write([]byte(`{"employee_id":"nope"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client, err := upstream.New("registry", srv.URL)
	require.NoError(t, err)
	r := NewHTTPRegistry(client)

	got, err := r.Lookup(context.Background(), tenant, "ZK-001", "17")
	require.NoError(t, err)
	assert.Equal(t, employee, got)

	_, err = r.Lookup(context.Background(), tenant, "ZK-001", "99")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = r.Lookup(context.Background(), tenant, "ZK-001", "bad")
	assert.False(t, upstream.IsRetryable(err))
}
