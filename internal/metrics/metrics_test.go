package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/efreitasn/crossmargin/internal/domain"
)

func TestReason(t *testing.T) {
	assert.Equal(t, "stale", Reason(fmt.Errorf("asset 1: %w", domain.ErrStale)))
	assert.Equal(t, "book_full", Reason(domain.ErrBookFull))
	assert.Equal(t, "validation", Reason(&domain.ValidationError{Message: "bad"}))
	assert.Equal(t, "internal", Reason(errors.New("disk on fire")))
}

func TestObserveFills(t *testing.T) {
	before := testutil.ToFloat64(lotsTraded.WithLabelValues("14"))
	ObserveFills(14, []domain.Fill{{Quantity: 2}, {Quantity: 3}})
	ObserveFills(14, nil)
	assert.Equal(t, before+5, testutil.ToFloat64(lotsTraded.WithLabelValues("14")))
}

func TestSetOpenInterest(t *testing.T) {
	SetOpenInterest(13, 42)
	assert.Equal(t, 42.0, testutil.ToFloat64(openInterest.WithLabelValues("13")))
}
