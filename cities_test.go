package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsServiceableCity(t *testing.T) {
	assert.True(t, IsServiceableCity("Makati"))
	assert.True(t, IsServiceableCity("makati"))
	assert.True(t, IsServiceableCity("  Quezon City  "))
	assert.True(t, IsServiceableCity("Parañaque"))

	assert.False(t, IsServiceableCity("Cebu"))
	assert.False(t, IsServiceableCity(""))
}

func TestServiceableCitiesIsACopy(t *testing.T) {
	cities := ServiceableCities()
	assert.NotEmpty(t, cities)

	cities[0] = "Atlantis"
	assert.NotEqual(t, "Atlantis", ServiceableCities()[0])
}
