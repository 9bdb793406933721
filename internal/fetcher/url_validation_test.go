package fetcher

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL_RejectsBadScheme(t *testing.T) {
	err := validateURL("ftp://example.com", false)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestValidateURL_RejectsEmptyHost(t *testing.T) {
	err := validateURL("http://", false)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestValidateURL_AllowsHTTPWhenNotDenyingPrivateIPs(t *testing.T) {
	err := validateURL("http://localhost", false)
	assert.NoError(t, err)
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.5", true},
		{"172.16.0.5", true},
		{"192.168.1.5", true},
		{"169.254.1.1", true},
		{"::1", true},
		{"8.8.8.8", false},
		{"93.184.216.34", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, isPrivateIP(net.ParseIP(tt.ip)))
		})
	}
}
