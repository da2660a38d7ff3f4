package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/crossmargin/internal/domain"
)

func TestFillStore_AppendAndGetByMarket(t *testing.T) {
	s := NewFillStore()
	s.Append(1, domain.Fill{FillID: "f1", Quantity: 1}, domain.Fill{FillID: "f2", Quantity: 2})
	s.Append(1, domain.Fill{FillID: "f3"})
	s.Append(2, domain.Fill{FillID: "other"})

	fills := s.GetByMarket(1)
	require.Len(t, fills, 3)
	assert.Equal(t, "f1", fills[0].FillID)
	assert.Equal(t, "f3", fills[2].FillID)

	assert.Empty(t, s.GetByMarket(7))
	assert.NotNil(t, s.GetByMarket(7))
}

func TestFillStore_ReturnsCopy(t *testing.T) {
	s := NewFillStore()
	s.Append(0, domain.Fill{FillID: "f1"})
	fills := s.GetByMarket(0)
	fills[0].FillID = "mutated"
	assert.Equal(t, "f1", s.GetByMarket(0)[0].FillID)
}
