package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnect_Error(t *testing.T) {
	t.Run("Error_UnknownDriver", func(t *testing.T) {
		db, err := Connect(context.Background(), Config{Driver: "nope", ConnectionString: "x"})
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}
