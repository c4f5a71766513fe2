package common

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIdentifierHeaderOrder(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": " 198.51.100.7 , 10.0.0.1", "CF-Connecting-IP": "203.0.113.1", "X-Real-IP": "192.0.2.1"}, "198.51.100.7"},
		{"cdn before real ip", map[string]string{"CF-Connecting-IP": "203.0.113.1", "X-Real-IP": "192.0.2.1"}, "203.0.113.1"},
		{"real ip", map[string]string{"X-Real-IP": " 192.0.2.1 "}, "192.0.2.1"},
		{"empty forwarded value skipped", map[string]string{"X-Forwarded-For": " ,10.0.0.1", "X-Real-IP": "192.0.2.1"}, "192.0.2.1"},
		{"nothing", nil, UnknownClient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.headers {
				h.Set(k, v)
			}
			require.Equal(t, tc.want, ClientIdentifier(h))
		})
	}
	require.Equal(t, UnknownClient, ClientIdentifier(nil))
}
