package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "cities",
		Columns:      []string{"insee_code", "name"},
		ConflictKeys: []string{"insee_code"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "cities",
		ConflictKeys: []string{"insee_code"},
	}, [][]any{{"17300", "La Rochelle"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "cities",
		Columns: []string{"insee_code", "name"},
	}, [][]any{{"17300", "La Rochelle"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"insee_code", "name"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_cities"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_cities"}, cols).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "cities" .* DO UPDATE SET "name" = EXCLUDED."name"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "cities",
		Columns:      cols,
		ConflictKeys: []string{"insee_code"},
	}, [][]any{{"17300", "La Rochelle"}, {"29019", "Brest"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CreateTempFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "psychologists",
		Columns:      []string{"id_out", "first_name"},
		ConflictKeys: []string{"id_out"},
	}, [][]any{{"42", "Ada"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create temp table for psychologists")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeSQL(t *testing.T) {
	tests := []struct {
		name string
		cfg  UpsertConfig
		want string
	}{
		{
			name: "update all non key columns",
			cfg: UpsertConfig{
				Table:        "cities",
				Columns:      []string{"insee_code", "name", "region_name"},
				ConflictKeys: []string{"insee_code"},
			},
			want: `INSERT INTO "cities" ("insee_code", "name", "region_name") SELECT "insee_code", "name", "region_name" FROM "_tmp_upsert_cities" ON CONFLICT ("insee_code") DO UPDATE SET "name" = EXCLUDED."name", "region_name" = EXCLUDED."region_name"`,
		},
		{
			name: "explicit update columns",
			cfg: UpsertConfig{
				Table:        "public.cities",
				Columns:      []string{"insee_code", "name", "region_name"},
				ConflictKeys: []string{"insee_code"},
				UpdateCols:   []string{"name"},
			},
			want: `INSERT INTO "public"."cities" ("insee_code", "name", "region_name") SELECT "insee_code", "name", "region_name" FROM "_tmp_upsert_public_cities" ON CONFLICT ("insee_code") DO UPDATE SET "name" = EXCLUDED."name"`,
		},
		{
			name: "skip duplicates",
			cfg: UpsertConfig{
				Table:        "cities",
				Columns:      []string{"insee_code", "name"},
				ConflictKeys: []string{"insee_code"},
				OnConflict:   ConflictSkip,
			},
			want: `INSERT INTO "cities" ("insee_code", "name") SELECT "insee_code", "name" FROM "_tmp_upsert_cities" ON CONFLICT ("insee_code") DO NOTHING`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mergeSQL(tt.cfg))
		})
	}
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"cities", `"cities"`},
		{"public.cities", `"public"."cities"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id_out", "data", "city_ids"`, quoteAndJoin([]string{"id_out", "data", "city_ids"}))
}
