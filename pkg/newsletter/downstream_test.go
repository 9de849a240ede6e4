package newsletter

import (
	"net/http"
	"testing"
)

func TestStatusForResult(t *testing.T) {
	cases := []struct {
		result ForwardResult
		want   string
	}{
		{ForwardResult{Success: true, StatusCode: 200}, "confirmation_sent"},
		{ForwardResult{StatusCode: http.StatusTooManyRequests}, "pending"},
		{ForwardResult{StatusCode: 400}, "failed"},
		{ForwardResult{StatusCode: 0}, "failed"},
	}
	for _, c := range cases {
		if got := StatusForResult(c.result); got != c.want {
			t.Errorf("StatusForResult(%+v) = %q, want %q", c.result, got, c.want)
		}
	}
}
