package model_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/apolondb/apolon/core/model"
)

func validUser() *model.EntityMetadata {
	return &model.EntityMetadata{
		Name:  "User",
		Table: "users",
		Columns: []model.ColumnMetadata{
			{Name: "id", DBType: "BIGINT"},
			{Name: "email", DBType: "VARCHAR(255)", Unique: true},
		},
		PrimaryKey: model.PrimaryKeyMetadata{Column: "id", AutoIncrement: true},
	}
}

func TestEntityMetadataValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.EntityMetadata)
		wantErr error
	}{
		{
			name:   "valid entity",
			mutate: func(*model.EntityMetadata) {},
		},
		{
			name:    "missing table name",
			mutate:  func(e *model.EntityMetadata) { e.Table = "" },
			wantErr: model.ErrNoTableName,
		},
		{
			name:    "no columns",
			mutate:  func(e *model.EntityMetadata) { e.Columns = nil },
			wantErr: model.ErrNoColumns,
		},
		{
			name:    "no primary key",
			mutate:  func(e *model.EntityMetadata) { e.PrimaryKey = model.PrimaryKeyMetadata{} },
			wantErr: model.ErrNoPrimaryKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			e := validUser()
			tt.mutate(e)

			err := e.Validate()
			if tt.wantErr == nil {
				c.Assert(err, qt.IsNil)
				return
			}
			c.Assert(err, qt.ErrorIs, tt.wantErr)
		})
	}
}

func TestEntityMetadataValidate_UndeclaredColumns(t *testing.T) {
	c := qt.New(t)

	e := validUser()
	e.PrimaryKey.Column = "uuid"
	c.Assert(e.Validate(), qt.ErrorMatches, `.*primary key column "uuid" is not declared`)

	e = validUser()
	e.ForeignKeys = []model.ForeignKeyMetadata{{Column: "team_id", RefEntity: "Team"}}
	c.Assert(e.Validate(), qt.ErrorMatches, `.*foreign key column "team_id" is not declared`)
}

func TestRegistry(t *testing.T) {
	c := qt.New(t)

	user := validUser()
	post := &model.EntityMetadata{
		Name:  "Post",
		Table: "posts",
		Columns: []model.ColumnMetadata{
			{Name: "id", DBType: "BIGINT"},
			{Name: "user_id", DBType: "BIGINT"},
		},
		PrimaryKey:  model.PrimaryKeyMetadata{Column: "id"},
		ForeignKeys: []model.ForeignKeyMetadata{{Column: "user_id", RefEntity: "User"}},
	}

	reg, err := model.NewRegistry(user, post)
	c.Assert(err, qt.IsNil)

	// Registration order is preserved.
	entities := reg.Entities()
	c.Assert(entities, qt.HasLen, 2)
	c.Assert(entities[0].Name, qt.Equals, "User")
	c.Assert(entities[1].Name, qt.Equals, "Post")

	resolved, err := reg.Resolve("User")
	c.Assert(err, qt.IsNil)
	c.Assert(resolved, qt.Equals, user)

	_, err = reg.Resolve("Comment")
	c.Assert(err, qt.ErrorIs, model.ErrUnknownEntity)
}

func TestRegistry_DuplicateName(t *testing.T) {
	c := qt.New(t)

	_, err := model.NewRegistry(validUser(), validUser())
	c.Assert(err, qt.ErrorMatches, `entity "User" registered twice`)
}

func TestRegistry_InvalidEntity(t *testing.T) {
	c := qt.New(t)

	bad := validUser()
	bad.Table = ""
	_, err := model.NewRegistry(bad)
	c.Assert(err, qt.ErrorIs, model.ErrNoTableName)
}
