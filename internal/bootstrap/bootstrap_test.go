package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"org-authority-go/internal/config"
	"org-authority-go/internal/model"
	"org-authority-go/internal/repository"
	"org-authority-go/internal/service"
)

func sqliteConfig(t *testing.T) config.Config {
	var cfg config.Config
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "org.db")
	cfg.Resolution.Backend = "memory"
	cfg.Resolution.StalenessSLA = time.Minute
	cfg.Resolution.VacantTTL = 5 * time.Second
	return cfg
}

func TestBuildWiresServicesOnSQLite(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, sqliteConfig(t))
	require.NoError(t, err)
	defer app.Close()
	require.NoError(t, repository.AutoMigrate(ctx, app.DB))

	actor := model.Actor{UserID: "hr-1"}
	dept, err := app.Services.Org.CreateDepartment(ctx, "acme", service.DepartmentInput{Name: "Ops", Code: "OPS"}, actor)
	require.NoError(t, err)
	pos, err := app.Services.Org.CreatePosition(ctx, "acme", service.PositionInput{
		DepartmentID: dept.ID, Title: "Lead", Code: "LEAD", Level: 1, Headcount: 1,
	}, actor)
	require.NoError(t, err)
	_, err = app.Services.Assignments.Assign(ctx, service.AssignRequest{
		CompanyID: "acme", PositionID: pos.ID, UserID: "alice", StartAt: time.Now().Add(-time.Minute), Actor: actor,
	})
	require.NoError(t, err)

	ea, err := app.Services.Resolution.Resolve(ctx, service.ResolveRequest{CompanyID: "acme", PositionID: pos.ID})
	require.NoError(t, err)
	require.Equal(t, "alice", ea.UserID)
	require.Nil(t, app.Producer)
	require.Nil(t, app.Index)
}

func TestBuildUsesRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := sqliteConfig(t)
	cfg.Resolution.Backend = "redis"
	cfg.Database.Redis.Addr = mr.Addr()

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()
	require.NotNil(t, app.Redis)
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Resolution.Backend = "memcached"
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
}
