package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryset_registry/internal/broker"
	"queryset_registry/internal/models"
)

func TestCreateQueryset(t *testing.T) {
	env := newTestEnv(t)
	env.authority.addTable("orders", "id", "total", "status")

	qs, err := env.svc.CreateQueryset(context.Background(), &CreateQuerysetRequest{
		Name:    "recent_orders",
		Table:   "orders",
		Columns: columns("total", "id", "total"),
	})
	require.NoError(t, err)
	assert.Equal(t, "recent_orders", qs.Name)
	assert.Equal(t, "orders", qs.Table)
	assert.Equal(t, []string{"id", "total"}, models.ColumnNames(qs.Columns))

	table, err := env.svc.GetTable(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "total"}, models.ColumnNames(table.Columns))
}

func TestCreateQuerysetWithoutColumns(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "empty", "orders")

	qs, err := env.svc.GetQueryset(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, qs.Columns)
}

func TestCreateQuerysetRejectsUnknownReferences(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.authority.addTable("orders", "id")

	t.Run("unknown table", func(t *testing.T) {
		_, err := env.svc.CreateQueryset(ctx, &CreateQuerysetRequest{Name: "q", Table: "customers"})
		require.ErrorIs(t, err, ErrInvalidReference)

		var refErr *InvalidReferenceError
		require.ErrorAs(t, err, &refErr)
		assert.Equal(t, "customers", refErr.Table)
		assert.Empty(t, refErr.Column)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := env.svc.CreateQueryset(ctx, &CreateQuerysetRequest{
			Name:    "q",
			Table:   "orders",
			Columns: columns("id", "total"),
		})
		require.ErrorIs(t, err, ErrInvalidReference)

		var refErr *InvalidReferenceError
		require.ErrorAs(t, err, &refErr)
		assert.Equal(t, "total", refErr.Column)
	})

	// nothing was written by either attempt
	summaries, err := env.svc.ListQuerysets(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	tables, err := env.svc.ListTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestCreateQuerysetDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "q", "orders", "id")
	calls := env.authority.callCount()

	_, err := env.svc.CreateQueryset(context.Background(), &CreateQuerysetRequest{Name: "q", Table: "orders"})
	assert.ErrorIs(t, err, ErrQuerysetExists)
	assert.Equal(t, calls, env.authority.callCount(), "conflict is detected before asking the broker")
}

func TestCreateQuerysetIndeterminate(t *testing.T) {
	env := newTestEnv(t)
	env.authority.addTable("orders", "id")
	env.authority.fail(errors.New("broker timeout"))

	_, err := env.svc.CreateQueryset(context.Background(), &CreateQuerysetRequest{
		Name:    "q",
		Table:   "orders",
		Columns: columns("id"),
	})
	require.ErrorIs(t, err, broker.ErrIndeterminate)
	assert.NotErrorIs(t, err, ErrInvalidReference)

	_, err = env.svc.GetQueryset(context.Background(), "q")
	assert.ErrorIs(t, err, ErrQuerysetNotFound)
}

func TestSameColumnNameUnderTwoTables(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "orders_q", "orders", "id")
	env.mustCreate(t, "customers_q", "customers", "id")

	tables, err := env.svc.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.NotEqual(t, tables[0].Columns[0].ID, tables[1].Columns[0].ID)

	// pruning one table's column leaves the other alone
	env.authority.dropColumn("orders", "id")
	outcome, err := env.svc.RepairQueryset(context.Background(), "orders_q")
	require.NoError(t, err)
	assert.Equal(t, models.RepairColumnsPruned, outcome.Action)

	qs, err := env.svc.GetQueryset(context.Background(), "customers_q")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, models.ColumnNames(qs.Columns))
}

func TestUpdateQuerysetColumns(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.mustCreate(t, "q", "orders", "id", "total")
	env.authority.addTable("orders", "status")

	err := env.svc.UpdateQuerysetColumns(ctx, "q", &UpdateQuerysetRequest{Columns: columns("status", "total")})
	require.NoError(t, err)

	qs, err := env.svc.GetQueryset(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "total"}, models.ColumnNames(qs.Columns))

	t.Run("missing queryset", func(t *testing.T) {
		err := env.svc.UpdateQuerysetColumns(ctx, "nope", &UpdateQuerysetRequest{Columns: columns("id")})
		assert.ErrorIs(t, err, ErrQuerysetNotFound)
	})

	t.Run("absent column leaves queryset unchanged", func(t *testing.T) {
		err := env.svc.UpdateQuerysetColumns(ctx, "q", &UpdateQuerysetRequest{Columns: columns("id", "discount")})
		assert.ErrorIs(t, err, ErrInvalidReference)

		qs, err := env.svc.GetQueryset(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, []string{"status", "total"}, models.ColumnNames(qs.Columns))
	})

	t.Run("empty set clears columns", func(t *testing.T) {
		require.NoError(t, env.svc.UpdateQuerysetColumns(ctx, "q", &UpdateQuerysetRequest{Columns: []ColumnRef{}}))

		qs, err := env.svc.GetQueryset(ctx, "q")
		require.NoError(t, err)
		assert.Empty(t, qs.Columns)
	})
}

func TestDeleteQueryset(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.mustCreate(t, "q", "orders", "id")

	require.NoError(t, env.svc.DeleteQueryset(ctx, "q"))

	_, err := env.svc.GetQueryset(ctx, "q")
	assert.ErrorIs(t, err, ErrQuerysetNotFound)
	assert.ErrorIs(t, env.svc.DeleteQueryset(ctx, "q"), ErrQuerysetNotFound)

	// the name can be reused
	env.mustCreate(t, "q", "orders", "id")
}

func TestListQuerysetsDoesNotConsultBroker(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "b", "orders", "id", "total")
	env.mustCreate(t, "a", "orders")
	env.authority.fail(errors.New("broker down"))

	summaries, err := env.svc.ListQuerysets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.QuerysetSummary{
		{Name: "a", Table: "orders", ColumnCount: 0},
		{Name: "b", Table: "orders", ColumnCount: 2},
	}, summaries)
}

func TestGetTable(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "q", "orders", "total", "id")

	table, err := env.svc.GetTable(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "total"}, models.ColumnNames(table.Columns))

	_, err = env.svc.GetTable(context.Background(), "customers")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestGetQuerysetValidateOnRead(t *testing.T) {
	ctx := context.Background()

	t.Run("prunes before returning", func(t *testing.T) {
		env := newTestEnv(t, withValidateOnRead())
		env.mustCreate(t, "q", "orders", "id", "total")
		env.authority.dropColumn("orders", "total")

		qs, err := env.svc.GetQueryset(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, []string{"id"}, models.ColumnNames(qs.Columns))
	})

	t.Run("removed queryset reads as missing", func(t *testing.T) {
		env := newTestEnv(t, withValidateOnRead())
		env.mustCreate(t, "q", "orders", "id")
		env.authority.dropTable("orders")

		_, err := env.svc.GetQueryset(ctx, "q")
		assert.ErrorIs(t, err, ErrQuerysetNotFound)

		summaries, err := env.svc.ListQuerysets(ctx)
		require.NoError(t, err)
		assert.Empty(t, summaries)
	})

	t.Run("indeterminate fails the read", func(t *testing.T) {
		env := newTestEnv(t, withValidateOnRead())
		env.mustCreate(t, "q", "orders", "id")
		env.authority.fail(errors.New("broker down"))

		_, err := env.svc.GetQueryset(ctx, "q")
		assert.ErrorIs(t, err, broker.ErrIndeterminate)
	})

	t.Run("disabled returns stored state", func(t *testing.T) {
		env := newTestEnv(t)
		env.mustCreate(t, "q", "orders", "id", "total")
		env.authority.dropColumn("orders", "total")
		calls := env.authority.callCount()

		qs, err := env.svc.GetQueryset(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "total"}, models.ColumnNames(qs.Columns))
		assert.Equal(t, calls, env.authority.callCount())
	})
}

func TestValidateQueryset(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.mustCreate(t, "q", "orders", "id", "total")

	valid, err := env.svc.ValidateQueryset(ctx, "q")
	require.NoError(t, err)
	assert.True(t, valid)

	env.authority.dropColumn("orders", "total")
	valid, err = env.svc.ValidateQueryset(ctx, "q")
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = env.svc.ValidateQueryset(ctx, "missing")
	assert.ErrorIs(t, err, ErrQuerysetNotFound)
}

func TestColumnSet(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, columnSet(columns("b", "a", "b")))
	assert.Empty(t, columnSet(nil))
}

func TestConcurrentCreateSameName(t *testing.T) {
	env := newTestEnv(t)
	env.authority.addTable("orders", "id")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.CreateQueryset(context.Background(), &CreateQuerysetRequest{
				Name:    "q",
				Table:   "orders",
				Columns: columns("id"),
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrQuerysetExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 7, conflicts)
}
