package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectToDB_RequiresDatabaseName(t *testing.T) {
	_, err := ConnectToDB("mongodb://localhost:27017")
	assert.ErrorContains(t, err, "no database name")
}

func TestConnectToDB_BadURI(t *testing.T) {
	_, err := ConnectToDB("mongodb://%zz")
	assert.Error(t, err)
}
