package security

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidateAgentURL(t *testing.T) {
	strict := URLPolicy{}
	dev := DevelopmentURLPolicy()

	tests := []struct {
		name   string
		url    string
		policy URLPolicy
		ok     bool
	}{
		{"https public", "https://agent.example.com", strict, true},
		{"http strict", "http://agent.example.com", strict, false},
		{"http dev", "http://agent.example.com", dev, true},
		{"localhost strict", "https://localhost:8000", strict, false},
		{"localhost dev", "http://localhost:8000", dev, true},
		{"mdns strict", "https://shop.local", strict, false},
		{"loopback strict", "https://127.0.0.1:8000", strict, false},
		{"private strict", "https://10.1.2.3", strict, false},
		{"private dev", "https://10.1.2.3", dev, true},
		{"mapped loopback", "https://[::ffff:127.0.0.1]/", strict, false},
		{"zoned strict", "https://[fe80::1%25eth0]/", strict, false},
		{"zoned dev", "https://[fe80::1%25eth0]/", dev, true},
		{"unspecified", "http://0.0.0.0:8000", dev, false},
		{"ftp", "ftp://agent.example.com", dev, false},
		{"no host", "https://", dev, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAgentURL(tt.url, tt.policy)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrUnsafeURL), "got %v", err)
			}
		})
	}
}
