package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/mig"
)

func TestColumnSQL(t *testing.T) {
	cases := []struct {
		name string
		col  *mig.Column
		want string
	}{
		{
			"primary key",
			mig.NewColumn("id", mig.TypePrimaryKey, nil),
			`"id" BIGSERIAL PRIMARY KEY`,
		},
		{
			"serial identity",
			mig.NewColumn("seq", mig.TypeInteger, &mig.ColumnOptions{Identity: true}),
			`"seq" SERIAL`,
		},
		{
			"string without limit",
			mig.NewColumn("name", mig.TypeString, nil),
			`"name" VARCHAR NOT NULL`,
		},
		{
			"string with limit",
			mig.NewColumn("code", mig.TypeString, &mig.ColumnOptions{Limit: 16}),
			`"code" VARCHAR(16) NOT NULL`,
		},
		{
			"numeric",
			mig.NewColumn("price", mig.TypeDecimal, &mig.ColumnOptions{Precision: 12, Scale: 4}),
			`"price" NUMERIC(12,4) NOT NULL`,
		},
		{
			"timestamp nullable",
			mig.NewColumn("deleted_at", mig.TypeDateTime, &mig.ColumnOptions{Null: true}),
			`"deleted_at" TIMESTAMP`,
		},
		{
			"boolean with default",
			mig.NewColumn("active", mig.TypeBoolean, &mig.ColumnOptions{Default: true}),
			`"active" BOOLEAN NOT NULL DEFAULT TRUE`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := columnSQL(tc.col)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTypeSQLUnsupported(t *testing.T) {
	_, err := typeSQL(mig.NewColumn("x", mig.ColumnType("hstore"), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hstore")
}

func TestDialector(t *testing.T) {
	assert.Equal(t, `"users"`, dialector.Quote("users"))
	assert.Equal(t, "$1", dialector.Placeholder(1))
	assert.Equal(t, "$7", dialector.Placeholder(7))
}
