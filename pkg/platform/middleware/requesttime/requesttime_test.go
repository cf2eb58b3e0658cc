package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"contactlink/pkg/requestcontext"
)

func TestWithClockPinsOneTimePerRequest(t *testing.T) {
	frozen := time.Date(2023, 4, 1, 9, 30, 0, 0, time.FixedZone("IST", 19800))
	calls := 0
	clock := func() time.Time {
		calls++
		return frozen
	}

	var first, second time.Time
	h := WithClock(clock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		second = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/identify", nil))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.True(t, first.Equal(frozen))
	assert.Equal(t, time.UTC, first.Location())
}
